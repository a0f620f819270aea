// Package session keeps one query controller per client search session.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/starford/mtvsearch/internal/apperr"
	"github.com/starford/mtvsearch/internal/filter"
	"github.com/starford/mtvsearch/internal/models"
	"github.com/starford/mtvsearch/internal/query"
	"github.com/starford/mtvsearch/internal/view"
)

// Options configures the session service.
type Options struct {
	Query      query.Options
	WindowSize int
	Logger     *slog.Logger
	// OnClose is called with the id of every session that is deleted or
	// swept, after its controller has stopped.
	OnClose func(id string)
}

// Listener receives every view change of a session.
type Listener func(id string, v view.View)

type entry struct {
	ctrl     *query.Controller
	lastSeen time.Time
	watchers int
}

// Service coordinates the controllers of all open sessions.
type Service struct {
	querier query.Querier
	opts    Options
	log     *slog.Logger
	onView  Listener

	mu       sync.Mutex
	sessions map[string]*entry
	wg       sync.WaitGroup
	now      func() time.Time
}

// NewService creates a session service. onView may be nil.
func NewService(q query.Querier, opts Options, onView Listener) *Service {
	if opts.WindowSize <= 0 {
		opts.WindowSize = 10
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	opts.Query.Logger = opts.Logger
	return &Service{
		querier:  q,
		opts:     opts,
		log:      opts.Logger,
		onView:   onView,
		sessions: make(map[string]*entry),
		now:      time.Now,
	}
}

// Create opens a new session and returns its id.
func (s *Service) Create(_ context.Context) (string, error) {
	id := uuid.NewString()
	ctrl := query.New(s.querier, s.opts.Query)
	updates := ctrl.Subscribe()

	s.mu.Lock()
	s.sessions[id] = &entry{ctrl: ctrl, lastSeen: s.now()}
	s.mu.Unlock()

	s.wg.Add(1)
	go s.forward(id, updates)

	s.log.Info("session created", slog.String("id", id))
	return id, nil
}

func (s *Service) forward(id string, updates <-chan query.State) {
	defer s.wg.Done()
	for st := range updates {
		if s.onView != nil {
			s.onView(id, view.Build(st, s.opts.WindowSize))
		}
	}
}

// Delete closes a session.
func (s *Service) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	e, ok := s.sessions[id]
	delete(s.sessions, id)
	s.mu.Unlock()
	if !ok {
		return apperr.ErrNotFound
	}
	e.ctrl.Close()
	s.closed(id)
	s.log.Info("session deleted", slog.String("id", id))
	return nil
}

// Watch marks a session as observed until release is called. Watched
// sessions are never swept.
func (s *Service) Watch(_ context.Context, id string) (release func(), err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.sessions[id]
	if !ok {
		return nil, apperr.ErrNotFound
	}
	e.watchers++
	e.lastSeen = s.now()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			e.watchers--
			e.lastSeen = s.now()
		})
	}, nil
}

func (s *Service) closed(id string) {
	if s.opts.OnClose != nil {
		s.opts.OnClose(id)
	}
}

// SetFilter updates one filter field of a session.
func (s *Service) SetFilter(_ context.Context, id, field, value, modifier string) error {
	ctrl, err := s.lookup(id)
	if err != nil {
		return err
	}
	m, err := filter.ParseModifier(modifier)
	if err != nil {
		return fmt.Errorf("%w: %v", apperr.ErrInvalidArgument, err)
	}
	return invalid(ctrl.SetFilter(filter.Value{Field: field, Text: value, Modifier: m}))
}

// SetSort changes the sort order of a session.
func (s *Service) SetSort(_ context.Context, id, field, direction string) error {
	ctrl, err := s.lookup(id)
	if err != nil {
		return err
	}
	dir, err := models.ParseSortDirection(direction)
	if err != nil {
		return fmt.Errorf("%w: %v", apperr.ErrInvalidArgument, err)
	}
	return invalid(ctrl.SetSort(field, dir))
}

// SetPage navigates a session to page n.
func (s *Service) SetPage(_ context.Context, id string, n int) error {
	ctrl, err := s.lookup(id)
	if err != nil {
		return err
	}
	return invalid(ctrl.SetPage(n))
}

// Refresh re-issues the session's current request.
func (s *Service) Refresh(_ context.Context, id string) error {
	ctrl, err := s.lookup(id)
	if err != nil {
		return err
	}
	return invalid(ctrl.Refresh())
}

// View returns the current view of a session.
func (s *Service) View(_ context.Context, id string) (view.View, error) {
	ctrl, err := s.lookup(id)
	if err != nil {
		return view.View{}, err
	}
	return view.Build(ctrl.Snapshot(), s.opts.WindowSize), nil
}

// SearchParams describe a one-shot search.
type SearchParams struct {
	Filters       []filter.Value
	Page          int
	SortField     string
	SortDirection models.SortDirection
}

// Search runs a throwaway controller until it settles and returns its view.
func (s *Service) Search(ctx context.Context, p SearchParams) (view.View, error) {
	ctrl := query.New(s.querier, s.opts.Query)
	defer ctrl.Close()

	// Sorting first while no rules are live only records the order.
	if p.SortField != "" || p.SortDirection != "" {
		field, dir := p.SortField, p.SortDirection
		if field == "" {
			field = s.opts.Query.SortField
		}
		if dir == "" {
			dir = s.opts.Query.SortDirection
		}
		if err := ctrl.SetSort(field, dir); err != nil {
			return view.View{}, invalid(err)
		}
	}
	for _, v := range p.Filters {
		if err := ctrl.SetFilter(v); err != nil {
			return view.View{}, invalid(err)
		}
	}
	page := max(p.Page, 1)
	if err := ctrl.SetPage(page); err != nil {
		return view.View{}, invalid(err)
	}

	st, err := ctrl.Settle(ctx)
	if err != nil {
		return view.View{}, err
	}
	return view.Build(st, s.opts.WindowSize), nil
}

// Count returns the number of open sessions.
func (s *Service) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Sweep closes unwatched sessions that have been idle for longer than
// maxIdle and returns how many were closed.
func (s *Service) Sweep(maxIdle time.Duration) int {
	cutoff := s.now().Add(-maxIdle)

	s.mu.Lock()
	stale := make(map[string]*entry)
	for id, e := range s.sessions {
		if e.watchers == 0 && e.lastSeen.Before(cutoff) {
			stale[id] = e
			delete(s.sessions, id)
		}
	}
	s.mu.Unlock()

	for id, e := range stale {
		e.ctrl.Close()
		s.closed(id)
	}
	if len(stale) > 0 {
		s.log.Info("idle sessions closed", slog.Int("count", len(stale)))
	}
	return len(stale)
}

// RunSweeper calls Sweep every interval until ctx is cancelled.
func (s *Service) RunSweeper(ctx context.Context, interval, maxIdle time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.Sweep(maxIdle)
		}
	}
}

// Close shuts down every session.
func (s *Service) Close() {
	s.mu.Lock()
	all := s.sessions
	s.sessions = make(map[string]*entry)
	s.mu.Unlock()

	for _, e := range all {
		e.ctrl.Close()
	}
	s.wg.Wait()
}

func (s *Service) lookup(id string) (*query.Controller, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.sessions[id]
	if !ok {
		return nil, apperr.ErrNotFound
	}
	e.lastSeen = s.now()
	return e.ctrl, nil
}

// invalid tags caller mistakes reported by the controller.
func invalid(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, filter.ErrUnknownField),
		errors.Is(err, filter.ErrModifierNotSupported),
		errors.Is(err, query.ErrInvalidPage),
		errors.Is(err, query.ErrInvalidSort):
		return fmt.Errorf("%w: %v", apperr.ErrInvalidArgument, err)
	case errors.Is(err, query.ErrClosed):
		return apperr.ErrNotFound
	}
	return err
}
