// Package filter models the per-field search filters and turns them into
// canonical rule tokens.
package filter

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

// Catalog fields.
const (
	FieldTitle    = "title"
	FieldChannel  = "channel"
	FieldStart    = "start"
	FieldDuration = "duration"
	FieldTopic    = "topic"
)

// Kind selects how a field renders its rule token.
type Kind int

const (
	KindPlain Kind = iota
	KindDate
	KindDuration
)

var fieldKinds = map[string]Kind{
	FieldTitle:    KindPlain,
	FieldChannel:  KindPlain,
	FieldStart:    KindDate,
	FieldDuration: KindDuration,
	FieldTopic:    KindPlain,
}

// ErrUnknownField is returned for names outside the fixed field set.
var ErrUnknownField = errors.New("filter: unknown field")

// ErrModifierNotSupported is returned when a modifier does not apply to a field kind.
var ErrModifierNotSupported = errors.New("filter: modifier not supported by field")

// Fields returns the known field names in sorted order.
func Fields() []string {
	names := make([]string, 0, len(fieldKinds))
	for name := range fieldKinds {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// KindOf returns the kind of the named field.
func KindOf(field string) (Kind, error) {
	k, ok := fieldKinds[field]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownField, field)
	}
	return k, nil
}

// IsField reports whether name is one of the known fields.
func IsField(name string) bool {
	_, ok := fieldKinds[name]
	return ok
}

// Modifier is the comparison mode of a date or duration field.
type Modifier int

const (
	None Modifier = iota
	Before
	After
	RelativeAge
	Shorter
	Longer
)

var modifierNames = map[Modifier]string{
	None:        "none",
	Before:      "before",
	After:       "after",
	RelativeAge: "age",
	Shorter:     "shorter",
	Longer:      "longer",
}

func (m Modifier) String() string {
	if s, ok := modifierNames[m]; ok {
		return s
	}
	return fmt.Sprintf("Modifier(%d)", int(m))
}

// ParseModifier parses the textual form produced by String. The empty string
// parses as None.
func ParseModifier(s string) (Modifier, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return None, nil
	}
	for m, name := range modifierNames {
		if name == s {
			return m, nil
		}
	}
	return None, fmt.Errorf("filter: unknown modifier %q", s)
}

// ValidFor reports whether m may be set on a field of kind k.
func (m Modifier) ValidFor(k Kind) bool {
	switch m {
	case None:
		return true
	case Before, After, RelativeAge:
		return k == KindDate
	case Shorter, Longer:
		return k == KindDuration
	}
	return false
}

// Value is an immutable snapshot of one field's filter state.
type Value struct {
	Field    string
	Text     string
	Modifier Modifier
}

// Token returns the canonical rule token, or "" when the field contributes no
// filter. Empty text never contributes a filter, whatever the modifier.
func (v Value) Token() string {
	if v.Text == "" {
		return ""
	}
	kind, ok := fieldKinds[v.Field]
	if !ok {
		return ""
	}
	switch kind {
	case KindDate:
		switch v.Modifier {
		case Before:
			return "start-" + v.Text
		case After:
			return "start+" + v.Text
		case RelativeAge:
			return "age-" + v.Text
		}
		return ""
	case KindDuration:
		switch v.Modifier {
		case Shorter:
			return "duration+" + v.Text
		case Longer:
			return "duration-" + v.Text
		}
		return ""
	default:
		return v.Field + "=" + v.Text
	}
}

// Input is the model behind one field widget. Every mutation recomputes the
// token and pushes a Value snapshot to the notify callback; Input never shares
// its state by reference.
type Input struct {
	kind   Kind
	value  Value
	notify func(Value)
}

// NewInput returns an Input for field. notify may be nil.
func NewInput(field string, notify func(Value)) (*Input, error) {
	kind, err := KindOf(field)
	if err != nil {
		return nil, err
	}
	return &Input{kind: kind, value: Value{Field: field}, notify: notify}, nil
}

// SetValue updates the raw text.
func (in *Input) SetValue(text string) {
	in.value.Text = text
	in.emit()
}

// SetModifier updates the comparison mode.
func (in *Input) SetModifier(m Modifier) error {
	if !m.ValidFor(in.kind) {
		return fmt.Errorf("%w: %s on %s", ErrModifierNotSupported, m, in.value.Field)
	}
	in.value.Modifier = m
	in.emit()
	return nil
}

// Value returns the current snapshot.
func (in *Input) Value() Value { return in.value }

// Token returns the current rule token.
func (in *Input) Token() string { return in.value.Token() }

func (in *Input) emit() {
	if in.notify != nil {
		in.notify(in.value)
	}
}
