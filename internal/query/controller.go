// Package query reconciles filter input against the catalog query service.
//
// A Controller owns the filter values, the sort selection, the page position
// and the last committed result set. All state lives in a single event-loop
// goroutine; callers communicate with it through channels, the same way the
// SSE broker manages its clients. Results are fenced against the live rule
// list so that a late answer for an outdated filter never reaches the view.
package query

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync/atomic"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/starford/mtvsearch/internal/backend"
	"github.com/starford/mtvsearch/internal/debounce"
	"github.com/starford/mtvsearch/internal/filter"
	"github.com/starford/mtvsearch/internal/models"
)

var (
	// ErrClosed is returned by operations on a closed Controller.
	ErrClosed = errors.New("query: controller closed")
	// ErrBackendBusy is the failure recorded when the service stays busy
	// for the whole retry budget.
	ErrBackendBusy = errors.New("query: backend still busy")
	// ErrInvalidPage is returned for page numbers below 1.
	ErrInvalidPage = errors.New("query: page must be >= 1")
	// ErrInvalidSort is returned for an unknown sort direction.
	ErrInvalidSort = errors.New("query: invalid sort direction")

	errBusy      = errors.New("query: backend busy")
	errAbandoned = errors.New("query: request abandoned")
)

// Querier performs one query against the catalog service.
type Querier interface {
	Query(ctx context.Context, req backend.Request) (backend.Response, error)
}

// RetryPolicy bounds the busy-poll loop.
type RetryPolicy struct {
	MaxRetries uint64
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

// backoff returns a fresh backoff; retry backoffs are stateful and must not
// be shared between requests.
func (p RetryPolicy) backoff() retry.Backoff {
	b := retry.NewExponential(p.BaseDelay)
	if p.MaxDelay > 0 {
		b = retry.WithCappedDuration(p.MaxDelay, b)
	}
	return retry.WithMaxRetries(p.MaxRetries, b)
}

// Options configures a Controller.
type Options struct {
	PageSize      int
	Debounce      time.Duration
	SortField     string
	SortDirection models.SortDirection
	Retry         RetryPolicy
	Logger        *slog.Logger
}

// DefaultOptions returns the stock controller settings.
func DefaultOptions() Options {
	return Options{
		PageSize:      10,
		Debounce:      300 * time.Millisecond,
		SortField:     filter.FieldStart,
		SortDirection: models.Descending,
		Retry: RetryPolicy{
			MaxRetries: 8,
			BaseDelay:  100 * time.Millisecond,
			MaxDelay:   5 * time.Second,
		},
	}
}

func (o Options) withDefaults() Options {
	def := DefaultOptions()
	if o.PageSize <= 0 {
		o.PageSize = def.PageSize
	}
	if o.Debounce <= 0 {
		o.Debounce = def.Debounce
	}
	if !filter.IsField(o.SortField) {
		o.SortField = def.SortField
	}
	if !o.SortDirection.Valid() {
		o.SortDirection = def.SortDirection
	}
	if o.Retry.BaseDelay <= 0 {
		o.Retry.BaseDelay = def.Retry.BaseDelay
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

type sortCmd struct {
	field string
	dir   models.SortDirection
}

type busyNote struct {
	seq    uint64
	rules  []string
	reason string
}

type result struct {
	seq  uint64
	req  backend.Request
	resp backend.Response
	err  error
}

type activeReq struct {
	seq   uint64
	rules []string
	resp  chan bool
}

// Controller drives the query state machine for one search session.
type Controller struct {
	querier   Querier
	opts      Options
	log       *slog.Logger
	debouncer *debounce.Debouncer[struct{}]

	ctx    context.Context
	cancel context.CancelFunc

	filterCh      chan filter.Value
	sortCh        chan sortCmd
	pageCh        chan int
	refreshCh     chan struct{}
	reconcileCh   chan struct{}
	busyCh        chan busyNote
	resultCh      chan result
	activeCh      chan activeReq
	snapshotCh    chan chan State
	subscribeCh   chan chan State
	unsubscribeCh chan (<-chan State)

	stopCh  chan struct{}
	stopped chan struct{}
	closed  atomic.Bool
}

// New creates a Controller and starts its event loop.
func New(q Querier, opts Options) *Controller {
	opts = opts.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		querier:       q,
		opts:          opts,
		log:           opts.Logger,
		ctx:           ctx,
		cancel:        cancel,
		filterCh:      make(chan filter.Value),
		sortCh:        make(chan sortCmd),
		pageCh:        make(chan int),
		refreshCh:     make(chan struct{}),
		reconcileCh:   make(chan struct{}),
		busyCh:        make(chan busyNote),
		resultCh:      make(chan result),
		activeCh:      make(chan activeReq),
		snapshotCh:    make(chan chan State),
		subscribeCh:   make(chan chan State),
		unsubscribeCh: make(chan (<-chan State)),
		stopCh:        make(chan struct{}),
		stopped:       make(chan struct{}),
	}
	c.debouncer = debounce.New(opts.Debounce, c.requestReconcile)
	go c.run()
	return c
}

// SetFilter records a new value for one filter field. The rule list is
// reconciled once the input settles for the debounce interval.
func (c *Controller) SetFilter(v filter.Value) error {
	kind, err := filter.KindOf(v.Field)
	if err != nil {
		return err
	}
	if !v.Modifier.ValidFor(kind) {
		return fmt.Errorf("%w: %s on %s", filter.ErrModifierNotSupported, v.Modifier, v.Field)
	}
	if err := send(c, c.filterCh, v); err != nil {
		return err
	}
	c.debouncer.Call(struct{}{})
	return nil
}

// Input returns a field editor that feeds its changes into the controller.
func (c *Controller) Input(field string) (*filter.Input, error) {
	return filter.NewInput(field, func(v filter.Value) {
		if err := c.SetFilter(v); err != nil && !errors.Is(err, ErrClosed) {
			c.log.Warn("query: filter update rejected", slog.String("field", v.Field), slog.String("error", err.Error()))
		}
	})
}

// SetSort selects the sort column and direction and re-queries immediately.
func (c *Controller) SetSort(field string, dir models.SortDirection) error {
	if !filter.IsField(field) {
		return fmt.Errorf("%w: %q", filter.ErrUnknownField, field)
	}
	if !dir.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidSort, dir)
	}
	return send(c, c.sortCh, sortCmd{field: field, dir: dir})
}

// SetPage navigates to page n of the current rule list.
func (c *Controller) SetPage(n int) error {
	if n < 1 {
		return fmt.Errorf("%w: got %d", ErrInvalidPage, n)
	}
	return send(c, c.pageCh, n)
}

// Refresh re-issues the current request.
func (c *Controller) Refresh() error {
	return send(c, c.refreshCh, struct{}{})
}

// Flush runs a pending debounced reconcile now. It reports whether one was
// pending.
func (c *Controller) Flush() bool {
	return c.debouncer.Flush()
}

// Snapshot returns a copy of the current state.
func (c *Controller) Snapshot() State {
	if c.closed.Load() {
		return State{}
	}
	resp := make(chan State, 1)
	select {
	case c.snapshotCh <- resp:
	case <-c.stopped:
		return State{}
	}
	select {
	case s := <-resp:
		return s
	case <-c.stopped:
		return State{}
	}
}

// Subscribe returns a channel that receives the latest state after every
// change. Slow readers only miss intermediate states, never the newest one.
// The channel is closed by Unsubscribe or Close.
func (c *Controller) Subscribe() <-chan State {
	ch := make(chan State, 1)
	if c.closed.Load() {
		close(ch)
		return ch
	}
	select {
	case c.subscribeCh <- ch:
	case <-c.stopped:
		close(ch)
	}
	return ch
}

// Unsubscribe stops delivery to ch and closes it.
func (c *Controller) Unsubscribe(ch <-chan State) {
	if c.closed.Load() {
		return
	}
	select {
	case c.unsubscribeCh <- ch:
	case <-c.stopped:
	}
}

// Settle blocks until the controller reaches Idle, Committed or Failed and
// returns that state.
func (c *Controller) Settle(ctx context.Context) (State, error) {
	ch := c.Subscribe()
	defer c.Unsubscribe(ch)
	for {
		select {
		case <-ctx.Done():
			return State{}, ctx.Err()
		case s, ok := <-ch:
			if !ok {
				return State{}, ErrClosed
			}
			if s.Settled() {
				return s, nil
			}
		}
	}
}

// Close stops the event loop, cancels outstanding requests and closes all
// subscriber channels. It is safe to call more than once.
func (c *Controller) Close() {
	if c.closed.CompareAndSwap(false, true) {
		c.debouncer.Stop()
		c.cancel()
		close(c.stopCh)
	}
	<-c.stopped
}

// run is the event loop. It exclusively owns the machine and the subscriber
// set.
func (c *Controller) run() {
	defer close(c.stopped)

	m := newMachine(c.opts)
	subs := make(map[<-chan State]chan State)
	publish := func() {
		m.version++
		s := m.snapshot(c.opts.PageSize)
		for _, ch := range subs {
			offer(ch, s)
		}
	}

	for {
		select {
		case <-c.stopCh:
			for _, ch := range subs {
				close(ch)
			}
			return

		case v := <-c.filterCh:
			m.filters[v.Field] = v
			m.debouncing = true
			publish()

		case <-c.reconcileCh:
			m.debouncing = false
			c.reconcile(m)
			publish()

		case cmd := <-c.sortCh:
			m.sortField, m.sortDir = cmd.field, cmd.dir
			c.requery(m, false, 0)
			publish()

		case n := <-c.pageCh:
			c.requery(m, false, n)
			publish()

		case <-c.refreshCh:
			c.requery(m, true, 0)
			publish()

		case note := <-c.busyCh:
			if note.seq == m.seq && m.inFlight && m.isLive(note.rules) {
				m.phase = BusyPolling
				m.busyReason = note.reason
				publish()
			}

		case res := <-c.resultCh:
			if c.settle(m, res) {
				publish()
			}

		case req := <-c.activeCh:
			req.resp <- req.seq == m.seq && m.isLive(req.rules)

		case resp := <-c.snapshotCh:
			resp <- m.snapshot(c.opts.PageSize)

		case ch := <-c.subscribeCh:
			subs[ch] = ch
			offer(ch, m.snapshot(c.opts.PageSize))

		case ch := <-c.unsubscribeCh:
			if sub, ok := subs[ch]; ok {
				delete(subs, ch)
				close(sub)
			}
		}
	}
}

// reconcile handles the debounced end of a filter burst.
func (c *Controller) reconcile(m *machine) {
	rules := m.live()
	if len(rules) == 0 {
		m.clear()
		return
	}
	if filter.Equal(rules, m.activeRules) && (m.inFlight || m.phase == Committed) {
		return
	}
	m.page = 1
	c.issue(m, rules)
}

// requery handles sort changes, page navigation and refresh. These bypass
// the debouncer and always query the live rule list. page 0 keeps the
// current page; a rule list that differs from the displayed one restarts
// at page 1 unless keep is set.
func (c *Controller) requery(m *machine, keep bool, page int) {
	c.debouncer.Stop()
	m.debouncing = false

	rules := m.live()
	if len(rules) == 0 {
		m.clear()
		return
	}
	switch {
	case page > 0:
		m.page = page
	case !keep && !filter.Equal(rules, m.activeRules):
		m.page = 1
	}
	if m.page < 1 {
		m.page = 1
	}
	c.issue(m, rules)
}

func (c *Controller) issue(m *machine, rules []string) {
	m.seq++
	m.activeRules = rules
	m.inFlight = true
	m.phase = Querying
	m.busyReason = ""
	m.err = nil

	req := backend.Request{
		Limit:         c.opts.PageSize,
		Rules:         slices.Clone(rules),
		Page:          m.page,
		SortField:     m.sortField,
		SortDirection: m.sortDir,
	}
	c.log.Debug("query: issuing",
		slog.Uint64("seq", m.seq),
		slog.Any("rules", req.Rules),
		slog.Int("page", req.Page),
		slog.String("sort_field", req.SortField),
		slog.String("sort_direction", string(req.SortDirection)),
	)
	go c.execute(m.seq, req)
}

// settle applies a finished request. It reports whether the state changed.
func (c *Controller) settle(m *machine, res result) bool {
	if !m.isLive(res.req.Rules) {
		c.log.Debug("query: discarding stale result",
			slog.Uint64("seq", res.seq),
			slog.Any("rules", res.req.Rules),
		)
		return false
	}

	if res.seq != m.seq {
		// Same rules, but a later page, sort or refresh request replaced it.
		c.log.Debug("query: discarding superseded result",
			slog.Uint64("seq", res.seq),
			slog.Uint64("latest", m.seq),
			slog.Int("page", res.req.Page),
		)
		return false
	}

	m.inFlight = false
	m.busyReason = ""
	if res.err != nil {
		m.phase = Failed
		m.err = res.err
		c.log.Warn("query: request failed", slog.Any("rules", res.req.Rules), slog.String("error", res.err.Error()))
		return true
	}
	m.applyPage(pageOf(res.resp))
	m.phase = Committed
	m.err = nil
	return true
}

// execute runs one request, polling while the service reports busy. Before
// every retry it checks that the request is still the latest one for the
// live rules and gives up quietly if it is not.
func (c *Controller) execute(seq uint64, req backend.Request) {
	attempts := 0
	var resp backend.Response
	err := retry.Do(c.ctx, c.opts.Retry.backoff(), func(ctx context.Context) error {
		if attempts > 0 && !c.isActive(seq, req.Rules) {
			return errAbandoned
		}
		attempts++

		r, err := c.querier.Query(ctx, req)
		if err != nil {
			return err
		}
		if r.Busy {
			c.noteBusy(busyNote{seq: seq, rules: req.Rules, reason: r.BusyReason})
			return retry.RetryableError(errBusy)
		}
		resp = r
		return nil
	})

	switch {
	case c.ctx.Err() != nil:
		return
	case errors.Is(err, errAbandoned):
		c.log.Debug("query: abandoned busy poll", slog.Uint64("seq", seq), slog.Int("attempts", attempts))
		return
	case errors.Is(err, errBusy):
		err = fmt.Errorf("%w after %d attempts", ErrBackendBusy, attempts)
	}

	select {
	case c.resultCh <- result{seq: seq, req: req, resp: resp, err: err}:
	case <-c.stopped:
	}
}

func (c *Controller) isActive(seq uint64, rules []string) bool {
	req := activeReq{seq: seq, rules: rules, resp: make(chan bool, 1)}
	select {
	case c.activeCh <- req:
	case <-c.stopped:
		return false
	}
	select {
	case ok := <-req.resp:
		return ok
	case <-c.stopped:
		return false
	}
}

func (c *Controller) noteBusy(n busyNote) {
	select {
	case c.busyCh <- n:
	case <-c.stopped:
	}
}

// requestReconcile is the debouncer action.
func (c *Controller) requestReconcile(struct{}) {
	select {
	case c.reconcileCh <- struct{}{}:
	case <-c.stopped:
	}
}

func send[T any](c *Controller, ch chan T, v T) error {
	if c.closed.Load() {
		return ErrClosed
	}
	select {
	case ch <- v:
		return nil
	case <-c.stopped:
		return ErrClosed
	}
}

// offer replaces any undelivered state in ch with s.
func offer(ch chan State, s State) {
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- s:
	default:
	}
}

func pageOf(r backend.Response) page {
	return page{rows: r.Rows, page: r.Page, lastPage: r.LastPage, itemCount: r.ItemCount}
}
