package models

import (
	"encoding/json"
	"fmt"
)

// MethodGroup holds all custom brew methods of one equipment. The cloud
// stores custom methods grouped by parent equipment id: one row per
// equipment whose id is the equipment id and whose payload carries the
// method list. The local store keeps the same grouped shape.
type MethodGroup struct {
	EquipmentID string       `json:"equipmentId"`
	Methods     []BrewMethod `json:"methods"`
	Timestamp   int64        `json:"timestamp"`
}

// BrewMethod is one custom method inside a group.
type BrewMethod struct {
	ID     string     `json:"id,omitempty"`
	Name   string     `json:"name"`
	Params BrewParams `json:"params,omitempty"`
	Stages []Stage    `json:"stages,omitempty"`
}

// Stage is one pour stage of a method.
type Stage struct {
	Time  int    `json:"time,omitempty"`  // seconds from start
	Label string `json:"label,omitempty"`
	Water string `json:"water,omitempty"`
}

func (g *MethodGroup) Table() Table           { return TableCustomMethods }
func (g *MethodGroup) RecordID() string       { return g.EquipmentID }
func (g *MethodGroup) UpdatedAtMillis() int64 { return 0 }

// TranslateMethodsRow converts a raw custom_methods cloud row into the
// local grouped shape. Older clients wrote the payload as a bare method
// array keyed only by the row id; newer ones write the grouped object.
// Both must be accepted before the local write.
func TranslateMethodsRow(cloud *CloudRecord) (*MethodGroup, error) {
	if !cloud.HasPayload() {
		return nil, fmt.Errorf("custom_methods row %s has no payload", cloud.ID)
	}

	group := &MethodGroup{}
	if err := json.Unmarshal(cloud.Payload, group); err == nil && group.EquipmentID != "" {
		return group, nil
	}

	var methods []BrewMethod
	if err := json.Unmarshal(cloud.Payload, &methods); err != nil {
		return nil, fmt.Errorf("failed to decode custom_methods row %s: %w", cloud.ID, err)
	}
	return &MethodGroup{
		EquipmentID: cloud.ID,
		Methods:     methods,
		Timestamp:   ParseISO(cloud.UpdatedAt),
	}, nil
}
