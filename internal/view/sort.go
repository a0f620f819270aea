package view

import "github.com/starford/mtvsearch/internal/models"

// SortAffordance is one direction toggle of a column header. The active one
// is emphasized and not clickable; the others trigger a sort change.
type SortAffordance struct {
	Field     string               `json:"field"`
	Direction models.SortDirection `json:"direction"`
	Active    bool                 `json:"active"`
}

// SortIndicators returns the ascending and descending affordances of field.
func SortIndicators(currentField string, currentDir models.SortDirection, field string) [2]SortAffordance {
	return [2]SortAffordance{
		{Field: field, Direction: models.Ascending, Active: field == currentField && currentDir == models.Ascending},
		{Field: field, Direction: models.Descending, Active: field == currentField && currentDir == models.Descending},
	}
}
