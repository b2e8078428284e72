package models

// Equipment represents a custom brewing equipment entry.
type Equipment struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Animation   string `json:"animationType,omitempty"`
	HasValve    bool   `json:"hasValve,omitempty"`
	IsCustom    bool   `json:"isCustom,omitempty"`
	Timestamp   int64  `json:"timestamp"`
}

func (e *Equipment) Table() Table           { return TableEquipments }
func (e *Equipment) RecordID() string       { return e.ID }
func (e *Equipment) UpdatedAtMillis() int64 { return 0 }
