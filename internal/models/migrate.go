package models

// Default flavor window applied to beans written by clients that predate
// the window fields.
const (
	defaultStartDay = 7
	defaultEndDay   = 30
)

// MigratePayload applies pending per-record format migrations to a
// payload. It returns the (possibly updated) payload and whether a
// migration changed it. Run on freshly pulled data after a sync pass so
// records written by older clients converge on the current format.
func MigratePayload(p Payload) (Payload, bool) {
	switch v := p.(type) {
	case *Bean:
		changed := false
		if v.StartDay == 0 && v.EndDay == 0 && v.RoastDate != "" {
			v.StartDay = defaultStartDay
			v.EndDay = defaultEndDay
			changed = true
		}
		return v, changed
	case *BrewNote:
		if v.UpdatedAt == 0 && v.Timestamp > 0 {
			v.UpdatedAt = v.Timestamp
			return v, true
		}
		return v, false
	case *MethodGroup:
		changed := false
		for i := range v.Methods {
			if v.Methods[i].ID == "" {
				v.Methods[i].ID = v.EquipmentID + "-" + v.Methods[i].Name
				changed = true
			}
		}
		return v, changed
	default:
		return p, false
	}
}
