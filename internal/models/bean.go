package models

// Bean represents a coffee bean entry.
type Bean struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Remaining   string          `json:"remaining,omitempty"`
	Capacity    string          `json:"capacity,omitempty"`
	RoastDate   string          `json:"roastDate,omitempty"` // YYYY-MM-DD
	RoastLevel  string          `json:"roastLevel,omitempty"`
	StartDay    int             `json:"startDay,omitempty"` // flavor window start, days after roast
	EndDay      int             `json:"endDay,omitempty"`   // flavor window end
	IsFrozen    bool            `json:"isFrozen,omitempty"`
	Price       string          `json:"price,omitempty"`
	FlavorNotes []string        `json:"flavorNotes,omitempty"`
	Blend       []BeanComponent `json:"blendComponents,omitempty"`
	Timestamp   int64           `json:"timestamp"`
}

// BeanComponent is one origin inside a blend.
type BeanComponent struct {
	Origin     string `json:"origin,omitempty"`
	Process    string `json:"process,omitempty"`
	Variety    string `json:"variety,omitempty"`
	Percentage int    `json:"percentage,omitempty"`
}

func (b *Bean) Table() Table           { return TableBeans }
func (b *Bean) RecordID() string       { return b.ID }
func (b *Bean) UpdatedAtMillis() int64 { return 0 }
