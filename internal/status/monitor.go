// Package status tracks the query service's database status text.
package status

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Status texts produced by the monitor itself.
const (
	Connecting  = "connecting to server"
	Unreachable = "server unreachable"
	Refreshing  = "requesting database refresh"
)

// Modes.
const (
	ModePoll   = "poll"
	ModeStream = "stream"
)

// Source is the part of the backend client the monitor needs.
type Source interface {
	Status(ctx context.Context) (string, error)
	StatusStream(ctx context.Context, fn func(string)) error
	Refresh(ctx context.Context) (string, error)
}

// Monitor keeps the latest status text and reports changes to a listener.
type Monitor struct {
	src      Source
	mode     string
	interval time.Duration
	log      *slog.Logger

	mu       sync.Mutex
	current  string
	onChange func(string)

	// notifyMu orders onChange calls the same way as updates to current.
	notifyMu sync.Mutex
}

// New creates a Monitor. onChange may be nil.
func New(src Source, mode string, interval time.Duration, log *slog.Logger, onChange func(string)) *Monitor {
	if interval <= 0 {
		interval = time.Second
	}
	if log == nil {
		log = slog.Default()
	}
	return &Monitor{
		src:      src,
		mode:     mode,
		interval: interval,
		log:      log,
		current:  Connecting,
		onChange: onChange,
	}
}

// Current returns the latest status text.
func (m *Monitor) Current() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Run tracks the status until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) error {
	m.log.Info("status monitor started", slog.String("mode", m.mode), slog.Duration("interval", m.interval))
	if m.mode == ModeStream {
		return m.stream(ctx)
	}
	return m.poll(ctx)
}

func (m *Monitor) poll(ctx context.Context) error {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.fetch(ctx)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			m.fetch(ctx)
		}
	}
}

func (m *Monitor) fetch(ctx context.Context) {
	text, err := m.src.Status(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		m.log.Debug("status fetch failed", slog.String("error", err.Error()))
		m.set(Unreachable)
		return
	}
	m.set(text)
}

// stream consumes the status event stream and reconnects after interval
// whenever it ends.
func (m *Monitor) stream(ctx context.Context) error {
	for {
		err := m.src.StatusStream(ctx, m.set)
		if ctx.Err() != nil {
			return nil
		}
		m.log.Debug("status stream ended", slog.String("error", errString(err)))
		m.set(Unreachable)

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(m.interval):
		}
	}
}

// RequestRefresh asks the service to refresh its database and returns the
// acknowledgement.
func (m *Monitor) RequestRefresh(ctx context.Context) (string, error) {
	m.set(Refreshing)
	ack, err := m.src.Refresh(ctx)
	if err != nil {
		m.set(Unreachable)
		return "", fmt.Errorf("status: refresh: %w", err)
	}
	if ack != "" {
		m.set(ack)
	}
	return m.Current(), nil
}

func (m *Monitor) set(text string) {
	m.notifyMu.Lock()
	defer m.notifyMu.Unlock()

	m.mu.Lock()
	if text == m.current {
		m.mu.Unlock()
		return
	}
	m.current = text
	fn := m.onChange
	m.mu.Unlock()

	if fn != nil {
		fn(text)
	}
}

func errString(err error) string {
	if err == nil || errors.Is(err, context.Canceled) {
		return ""
	}
	return err.Error()
}
