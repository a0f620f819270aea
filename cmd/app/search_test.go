package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/starford/mtvsearch/internal/models"
	"github.com/starford/mtvsearch/internal/testutil"
	"github.com/starford/mtvsearch/internal/view"
)

func TestRenderPager(t *testing.T) {
	got := renderPager(view.PageWindow(11, 20, 10))
	if got != "1 ... 6 7 8 9 10 11 12 13 14 15 ... 20" {
		t.Errorf("pager = %q", got)
	}
	if got := renderPager(nil); got != "" {
		t.Errorf("empty pager = %q", got)
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		in   string
		n    int
		want string
	}{
		{"Wartezimmer", 20, "Wartezimmer"},
		{"Wartezimmer", 5, "Wart~"},
		{"Übersicht", 3, "Üb~"},
		{"abc", 1, "a"},
	}
	for _, tt := range tests {
		if got := truncate(tt.in, tt.n); got != tt.want {
			t.Errorf("truncate(%q, %d) = %q, want %q", tt.in, tt.n, got, tt.want)
		}
	}
}

func TestRenderView(t *testing.T) {
	v := view.View{
		Rules:     []string{"title=Wart"},
		Rows:      []models.ResultRow{testutil.Row("Wartezimmer", "ARD", "2020-01-01", 1800, "Doku")},
		Page:      1,
		LastPage:  3,
		ItemCount: 21,
		Bounds:    view.ResultBounds(1, 10, 21),
		Pager:     view.PageWindow(1, 3, 10),
		Columns: []view.Column{
			{Field: "title", Sort: view.SortIndicators("title", models.Ascending, "title")},
			{Field: "channel", Sort: view.SortIndicators("title", models.Ascending, "channel")},
		},
	}

	var buf bytes.Buffer
	renderView(&buf, v)
	out := buf.String()
	for _, want := range []string{"title ^", "channel", "Wartezimmer", "ARD", "1-10 of 21", "2 3"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestRenderView_NoFilters(t *testing.T) {
	var buf bytes.Buffer
	renderView(&buf, view.View{Error: "boom"})
	out := buf.String()
	if !strings.Contains(out, "Error: boom") || !strings.Contains(out, "No filters set") {
		t.Errorf("output = %q", out)
	}
}
