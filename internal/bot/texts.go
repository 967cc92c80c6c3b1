package bot

import (
	"fmt"
	"strings"

	"github.com/suPer8Hu/gopherchat-bot/internal/analytics"
	"github.com/suPer8Hu/gopherchat-bot/internal/chat"
	"github.com/suPer8Hu/gopherchat-bot/internal/telegram"
)

// CallbackCancel is the callback data of the cancel button in the image
// quality keyboard.
const CallbackCancel = "cancel"

const (
	textWelcome          = "Hi! I'm GopherChat, an AI assistant. Send me a message to start talking, or use /help to see what I can do."
	textLoading          = "⏳ Thinking..."
	textChatCreated      = "New chat started. Send me a message!"
	textPleaseStart      = "I don't know you yet. Please send /start first."
	textCompletionFailed = "Sorry, I couldn't generate a reply. Please try again later."
	textGenericError     = "Something went wrong. Please try again later."
	textUnknownOption    = "Unknown option."
	textRestricted       = "This command is restricted."

	textChooseQuality   = "Choose image quality:"
	textDescribeImage   = "Describe the image you want."
	textImageCancelled  = "Image generation cancelled."
	textNothingToCancel = "Nothing to cancel."
	textGeneratingImage = "🎨 Generating image..."
	textImageFailed     = "Sorry, I couldn't generate the image. Please try again later."
	textEmptyPrompt     = "Please describe the image in words."
	textNotYourDialog   = "This image request belongs to someone else."
)

const textHelp = `I'm GopherChat, an AI assistant.

/start - register and start a new chat
/newchat - start a fresh conversation
/models - choose the AI model
/image - generate an image
/help - show this message

Any other text is sent to the model together with the recent history of the current chat.`

// Commands is the menu registered with setMyCommands.
func Commands() []telegram.BotCommand {
	return []telegram.BotCommand{
		{Command: "start", Description: "Register and start a new chat"},
		{Command: "newchat", Description: "Start a fresh conversation"},
		{Command: "models", Description: "Choose the AI model"},
		{Command: "image", Description: "Generate an image"},
		{Command: "help", Description: "Show help"},
	}
}

func textChooseModel(current string) string {
	return fmt.Sprintf("Choose a model (current: %s):", current)
}

func textModelSelected(label string) string {
	return fmt.Sprintf("Model set to %s.", label)
}

func textQualityChosen(label string) string {
	return fmt.Sprintf("Quality: %s. Now describe the image you want.", label)
}

func textQualitySaved(label string) string {
	return fmt.Sprintf("Image quality set to %s.", label)
}

func textStats(t chat.Totals, s *analytics.Summary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Users: %d\nChats: %d\nMessages: %d", t.Users, t.Chats, t.Messages)
	if s != nil {
		b.WriteString("\n\nLast 24h:")
		for _, et := range analytics.EventTypes() {
			fmt.Fprintf(&b, "\n%s: %d", et, s.Counts[et])
		}
	}
	return b.String()
}
