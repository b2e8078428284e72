package models

// SettingsID is the fixed record id of the singleton settings document.
const SettingsID = "settings"

// Settings is the app-level settings document. It is a singleton: one
// record per tenant, reconciled with a one-directional rule instead of
// the per-record diff used for content tables.
type Settings struct {
	ID            string `json:"id"`
	Grinder       string `json:"grinder,omitempty"`
	GrinderUnit   string `json:"grinderUnit,omitempty"`
	Language      string `json:"language,omitempty"`
	ShowFlavor    bool   `json:"showFlavorPeriod,omitempty"`
	DecrementStep string `json:"decrementStep,omitempty"`
	Timestamp     int64  `json:"timestamp"`
}

func (s *Settings) Table() Table           { return TableSettings }
func (s *Settings) RecordID() string       { return s.ID }
func (s *Settings) UpdatedAtMillis() int64 { return 0 }
