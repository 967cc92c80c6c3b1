package ai

import "strings"

const (
	QualityStandard = "standard"
	QualityHD       = "hd"
)

// ModelInfo describes one selectable chat model. Provider is the Registry name
// the model is served by.
type ModelInfo struct {
	ID       string
	Label    string
	Provider string
}

type QualityInfo struct {
	ID    string
	Label string
}

// Catalog is the immutable table of selectable models and image quality tiers.
// It is built once at startup and shared read-only between handlers.
type Catalog struct {
	models       []ModelInfo
	byID         map[string]ModelInfo
	qualities    []QualityInfo
	qualityByID  map[string]QualityInfo
	defaultModel string
}

func DefaultModels() []ModelInfo {
	return []ModelInfo{
		{ID: "gpt-4o-mini", Label: "GPT-4o mini", Provider: "openai"},
		{ID: "gpt-4o", Label: "GPT-4o", Provider: "openai"},
		{ID: "gpt-4.1-mini", Label: "GPT-4.1 mini", Provider: "openai"},
	}
}

func DefaultQualities() []QualityInfo {
	return []QualityInfo{
		{ID: QualityStandard, Label: "Standard"},
		{ID: QualityHD, Label: "HD"},
	}
}

// NewCatalog copies its inputs. Entries with an empty id and duplicate ids are
// skipped. If defaultModel is unknown the first model becomes the default.
func NewCatalog(models []ModelInfo, qualities []QualityInfo, defaultModel string) *Catalog {
	c := &Catalog{
		byID:        make(map[string]ModelInfo, len(models)),
		qualityByID: make(map[string]QualityInfo, len(qualities)),
	}
	for _, m := range models {
		m.ID = strings.TrimSpace(m.ID)
		if m.ID == "" {
			continue
		}
		if _, dup := c.byID[m.ID]; dup {
			continue
		}
		if m.Label == "" {
			m.Label = m.ID
		}
		c.models = append(c.models, m)
		c.byID[m.ID] = m
	}
	for _, q := range qualities {
		if q.ID == "" {
			continue
		}
		if _, dup := c.qualityByID[q.ID]; dup {
			continue
		}
		c.qualities = append(c.qualities, q)
		c.qualityByID[q.ID] = q
	}

	c.defaultModel = defaultModel
	if _, ok := c.byID[defaultModel]; !ok && len(c.models) > 0 {
		c.defaultModel = c.models[0].ID
	}
	return c
}

func (c *Catalog) Models() []ModelInfo {
	return append([]ModelInfo(nil), c.models...)
}

func (c *Catalog) Model(id string) (ModelInfo, bool) {
	m, ok := c.byID[id]
	return m, ok
}

func (c *Catalog) IsModel(id string) bool {
	_, ok := c.byID[id]
	return ok
}

// Label returns the display label of a model, or the id itself when unknown.
func (c *Catalog) Label(id string) string {
	if m, ok := c.byID[id]; ok {
		return m.Label
	}
	return id
}

func (c *Catalog) DefaultModel() string { return c.defaultModel }

func (c *Catalog) Qualities() []QualityInfo {
	return append([]QualityInfo(nil), c.qualities...)
}

func (c *Catalog) IsQuality(id string) bool {
	_, ok := c.qualityByID[id]
	return ok
}

func (c *Catalog) QualityLabel(id string) string {
	if q, ok := c.qualityByID[id]; ok {
		return q.Label
	}
	return id
}

func (c *Catalog) DefaultQuality() string { return QualityStandard }
