package query

import (
	"maps"
	"slices"

	"github.com/starford/mtvsearch/internal/filter"
	"github.com/starford/mtvsearch/internal/models"
)

// Phase is the controller's position in the reconciliation state machine.
type Phase int

const (
	Idle Phase = iota
	Debouncing
	Querying
	BusyPolling
	Committed
	Failed
)

func (p Phase) String() string {
	switch p {
	case Idle:
		return "idle"
	case Debouncing:
		return "debouncing"
	case Querying:
		return "querying"
	case BusyPolling:
		return "busy_polling"
	case Committed:
		return "committed"
	case Failed:
		return "failed"
	}
	return "unknown"
}

// State is a read-only copy of the controller's query state.
type State struct {
	Filters       map[string]filter.Value
	SortField     string
	SortDirection models.SortDirection
	Limit         int
	Page          int
	LastPage      int
	ItemCount     int
	Rows          []models.ResultRow
	InFlight      bool
	ActiveRules   []string
	Phase         Phase
	BusyReason    string
	Err           error
	Version       uint64
}

// Settled reports whether no further transition is pending without new input.
func (s State) Settled() bool {
	return s.Phase == Idle || s.Phase == Committed || s.Phase == Failed
}

// machine is the mutable query state. It is owned by the controller loop.
type machine struct {
	filters   map[string]filter.Value
	sortField string
	sortDir   models.SortDirection

	page      int
	lastPage  int
	itemCount int
	rows      []models.ResultRow

	inFlight    bool
	activeRules []string
	phase       Phase
	debouncing  bool
	busyReason  string
	err         error

	seq     uint64
	version uint64
}

func newMachine(opts Options) *machine {
	filters := make(map[string]filter.Value)
	for _, f := range filter.Fields() {
		filters[f] = filter.Value{Field: f}
	}
	return &machine{
		filters:     filters,
		sortField:   opts.SortField,
		sortDir:     opts.SortDirection,
		activeRules: []string{},
	}
}

// live assembles the rules of the current filter values.
func (m *machine) live() []string {
	return filter.Assemble(m.filters)
}

// isLive reports whether rules match the live filter state.
func (m *machine) isLive(rules []string) bool {
	return filter.Equal(rules, m.live())
}

// clear drops the displayed result set and returns to Idle.
func (m *machine) clear() {
	m.rows = nil
	m.page = 0
	m.lastPage = 0
	m.itemCount = 0
	m.inFlight = false
	m.activeRules = []string{}
	m.phase = Idle
	m.busyReason = ""
	m.err = nil
}

// applyPage commits all fields of a result together.
func (m *machine) applyPage(p page) {
	m.rows = p.rows
	m.page = p.page
	m.lastPage = p.lastPage
	m.itemCount = p.itemCount
}

func (m *machine) snapshot(limit int) State {
	phase := m.phase
	if m.debouncing {
		phase = Debouncing
	}
	return State{
		Filters:       maps.Clone(m.filters),
		SortField:     m.sortField,
		SortDirection: m.sortDir,
		Limit:         limit,
		Page:          m.page,
		LastPage:      m.lastPage,
		ItemCount:     m.itemCount,
		Rows:          slices.Clone(m.rows),
		InFlight:      m.inFlight,
		ActiveRules:   slices.Clone(m.activeRules),
		Phase:         phase,
		BusyReason:    m.busyReason,
		Err:           m.err,
		Version:       m.version,
	}
}

type page struct {
	rows      []models.ResultRow
	page      int
	lastPage  int
	itemCount int
}
