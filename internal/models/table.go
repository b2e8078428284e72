// Package models provides data model definitions for the BrewSync engine.
package models

import "fmt"

// Table identifies a replicated entity collection.
type Table string

const (
	TableBeans         Table = "beans"
	TableBrewNotes     Table = "brew_notes"
	TableEquipments    Table = "equipments"
	TableCustomMethods Table = "custom_methods"
	TableSettings      Table = "settings"
)

// ContentTables lists the collections handled by the per-table reconcile
// path. Settings is excluded: it is a singleton document with its own
// one-directional rule.
func ContentTables() []Table {
	return []Table{TableBeans, TableBrewNotes, TableEquipments, TableCustomMethods}
}

// Primary reports whether a table holds primary user content.
// Failures on primary tables are reported distinctly from secondary ones.
func (t Table) Primary() bool {
	return t == TableBeans || t == TableBrewNotes
}

// ParseTable validates a table identifier coming from storage or the wire.
func ParseTable(s string) (Table, error) {
	switch Table(s) {
	case TableBeans, TableBrewNotes, TableEquipments, TableCustomMethods, TableSettings:
		return Table(s), nil
	}
	return "", fmt.Errorf("unknown table %q", s)
}
