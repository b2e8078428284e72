package models

// BrewNote represents a single brewing record.
// Brew notes expose a distinct updatedAt in addition to the creation
// timestamp, so edits move updatedAt while timestamp stays put.
type BrewNote struct {
	ID        string     `json:"id"`
	BeanID    string     `json:"beanId,omitempty"`
	Equipment string     `json:"equipment,omitempty"`
	Method    string     `json:"method,omitempty"`
	Params    BrewParams `json:"params,omitempty"`
	Rating    float64    `json:"rating,omitempty"`
	Taste     TasteNotes `json:"taste,omitempty"`
	Notes     string     `json:"notes,omitempty"`
	Timestamp int64      `json:"timestamp"`
	UpdatedAt int64      `json:"updatedAt,omitempty"`
}

// BrewParams holds the brewing parameters of a note.
type BrewParams struct {
	Coffee      string `json:"coffee,omitempty"`
	Water       string `json:"water,omitempty"`
	Ratio       string `json:"ratio,omitempty"`
	GrindSize   string `json:"grindSize,omitempty"`
	Temperature string `json:"temp,omitempty"`
}

// TasteNotes holds the 0-5 taste scores of a note.
type TasteNotes struct {
	Acidity    int `json:"acidity,omitempty"`
	Sweetness  int `json:"sweetness,omitempty"`
	Bitterness int `json:"bitterness,omitempty"`
	Body       int `json:"body,omitempty"`
}

func (n *BrewNote) Table() Table           { return TableBrewNotes }
func (n *BrewNote) RecordID() string       { return n.ID }
func (n *BrewNote) UpdatedAtMillis() int64 { return n.UpdatedAt }
