package view

import (
	"github.com/starford/mtvsearch/internal/filter"
	"github.com/starford/mtvsearch/internal/models"
	"github.com/starford/mtvsearch/internal/query"
)

// Columns lists the result table columns in display order.
var Columns = []string{
	filter.FieldTitle,
	filter.FieldChannel,
	filter.FieldStart,
	filter.FieldDuration,
	filter.FieldTopic,
}

// FilterView is the displayed state of one filter field.
type FilterView struct {
	Field    string `json:"field"`
	Value    string `json:"value"`
	Modifier string `json:"modifier"`
	Token    string `json:"token,omitempty"`
}

// Column is a table header with its sort toggles.
type Column struct {
	Field string            `json:"field"`
	Sort  [2]SortAffordance `json:"sort"`
}

// View is the read-only snapshot a renderer consumes.
type View struct {
	Phase         string               `json:"phase"`
	InProgress    bool                 `json:"in_progress"`
	Error         string               `json:"error,omitempty"`
	BusyReason    string               `json:"busy_reason,omitempty"`
	Filters       []FilterView         `json:"filters"`
	Rules         []string             `json:"rules"`
	Rows          []models.ResultRow   `json:"rows"`
	Page          int                  `json:"page"`
	LastPage      int                  `json:"last_page"`
	ItemCount     int                  `json:"item_count"`
	Bounds        Bounds               `json:"bounds"`
	Pager         []PageItem           `json:"pager"`
	Columns       []Column             `json:"columns"`
	SortField     string               `json:"sort_field"`
	SortDirection models.SortDirection `json:"sort_direction"`
	Version       uint64               `json:"version"`
}

// Build derives the view of s with a pager of at most windowSize pages.
func Build(s query.State, windowSize int) View {
	v := View{
		Phase:         s.Phase.String(),
		InProgress:    s.InFlight,
		BusyReason:    s.BusyReason,
		Rules:         s.ActiveRules,
		Rows:          s.Rows,
		Page:          s.Page,
		LastPage:      s.LastPage,
		ItemCount:     s.ItemCount,
		Bounds:        ResultBounds(s.Page, s.Limit, s.ItemCount),
		Pager:         PageWindow(s.Page, s.LastPage, windowSize),
		SortField:     s.SortField,
		SortDirection: s.SortDirection,
		Version:       s.Version,
	}
	if s.Err != nil {
		v.Error = s.Err.Error()
	}
	if v.Rules == nil {
		v.Rules = []string{}
	}
	if v.Rows == nil {
		v.Rows = []models.ResultRow{}
	}
	if v.Pager == nil {
		v.Pager = []PageItem{}
	}

	v.Filters = make([]FilterView, 0, len(Columns))
	v.Columns = make([]Column, 0, len(Columns))
	for _, field := range Columns {
		fv := s.Filters[field]
		v.Filters = append(v.Filters, FilterView{
			Field:    field,
			Value:    fv.Text,
			Modifier: fv.Modifier.String(),
			Token:    fv.Token(),
		})
		v.Columns = append(v.Columns, Column{
			Field: field,
			Sort:  SortIndicators(s.SortField, s.SortDirection, field),
		})
	}
	return v
}
