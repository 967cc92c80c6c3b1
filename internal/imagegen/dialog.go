// Package imagegen holds the image-generation dialog state machine.
//
// The dialog lives inside the per-conversation session so that it survives
// between updates: each update loads the session, applies one transition and
// saves it back.
package imagegen

import (
	"errors"
	"fmt"
	"strings"
)

type State string

const (
	StateIdle            State = ""
	StateAwaitingQuality State = "awaiting_quality"
	StateAwaitingPrompt  State = "awaiting_prompt"
	StateGenerating      State = "generating"
	StateDelivered       State = "delivered"
	StateCancelled       State = "cancelled"
	StateFailed          State = "failed"
)

var ErrInvalidTransition = errors.New("imagegen: invalid transition")

// Dialog is the durable part of one image request.
type Dialog struct {
	State  State  `json:"state,omitempty"`
	UserID int64  `json:"user_id,omitempty"`
	Prompt string `json:"prompt,omitempty"`
}

// Start opens a new dialog for userID, discarding any previous one. Only that
// user can advance or cancel it.
func (d *Dialog) Start(userID int64, selectQuality bool) State {
	d.Prompt = ""
	d.UserID = userID
	if selectQuality {
		d.State = StateAwaitingQuality
	} else {
		d.State = StateAwaitingPrompt
	}
	return d.State
}

func (d *Dialog) ChooseQuality() error {
	return d.move(StateAwaitingQuality, StateAwaitingPrompt)
}

// Cancel is only possible before a prompt was requested.
func (d *Dialog) Cancel() error {
	return d.move(StateAwaitingQuality, StateCancelled)
}

func (d *Dialog) Submit(prompt string) error {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return fmt.Errorf("%w: empty prompt", ErrInvalidTransition)
	}
	if err := d.move(StateAwaitingPrompt, StateGenerating); err != nil {
		return err
	}
	d.Prompt = prompt
	return nil
}

// Finish records the outcome of the generation call.
func (d *Dialog) Finish(genErr error) error {
	to := StateDelivered
	if genErr != nil {
		to = StateFailed
	}
	return d.move(StateGenerating, to)
}

// Reset drops the dialog after a command interrupts it.
func (d *Dialog) Reset() {
	*d = Dialog{}
}

// Active reports whether the dialog is waiting for user input.
func (d Dialog) Active() bool {
	return d.State == StateAwaitingQuality || d.State == StateAwaitingPrompt
}

// OwnedBy reports whether userID started the dialog.
func (d Dialog) OwnedBy(userID int64) bool { return d.UserID == userID }

func (d Dialog) AwaitingPrompt() bool { return d.State == StateAwaitingPrompt }

func (d Dialog) AwaitingQuality() bool { return d.State == StateAwaitingQuality }

func (d *Dialog) move(from, to State) error {
	if d.State != from {
		return fmt.Errorf("%w: %q -> %q (current %q)", ErrInvalidTransition, from, to, d.State)
	}
	d.State = to
	return nil
}
