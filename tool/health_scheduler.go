package tool

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

const defaultHealthPollInterval = 30 * time.Second

var healthCronParser = cron.NewParser(
	cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow,
)

// parseHealthSchedule parses a manifest's five-field cron schedule. Schedules
// are UTC-only; timezone prefixes are rejected.
func parseHealthSchedule(expr string) (cron.Schedule, error) {
	clean := strings.TrimSpace(expr)
	if clean == "" {
		return nil, fmt.Errorf("tool: health schedule is required")
	}
	upper := strings.ToUpper(clean)
	if strings.Contains(upper, "CRON_TZ=") || strings.Contains(upper, "TZ=") {
		return nil, fmt.Errorf("tool: health schedule must be UTC-only")
	}
	schedule, err := healthCronParser.Parse(clean)
	if err != nil {
		return nil, fmt.Errorf("tool: invalid health schedule: %w", err)
	}
	return schedule, nil
}

// HealthEvent captures one scheduler-driven health evaluation.
type HealthEvent struct {
	ToolName      string
	PreviousState HealthState
	Report        HealthReport
}

// HealthEventHandler handles scheduler health events.
type HealthEventHandler func(event HealthEvent)

// HealthSchedulerConfig controls background health scheduling.
type HealthSchedulerConfig struct {
	Store        Store
	Prober       Prober
	Observer     Observer
	PollInterval time.Duration
	Now          func() time.Time
	OnEvent      HealthEventHandler
}

// HealthScheduler periodically probes manifests whose cron schedule is due.
// State lives in the scheduler, not the store: a probe never mutates a
// manifest.
type HealthScheduler struct {
	store        Store
	prober       Prober
	observer     Observer
	pollInterval time.Duration
	now          func() time.Time
	onEvent      HealthEventHandler

	mu       sync.Mutex
	lastRun  map[string]time.Time
	state    map[string]HealthState
	failures map[string]int
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewHealthScheduler creates a health scheduler.
func NewHealthScheduler(cfg HealthSchedulerConfig) (*HealthScheduler, error) {
	if cfg.Store == nil {
		return nil, errors.New("tool: health scheduler store is nil")
	}
	if cfg.Prober == nil {
		return nil, errors.New("tool: health scheduler prober is nil")
	}
	if cfg.Observer == nil {
		cfg.Observer = NoopObserver{}
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultHealthPollInterval
	}
	if cfg.Now == nil {
		cfg.Now = func() time.Time { return time.Now().UTC() }
	}
	if cfg.OnEvent == nil {
		cfg.OnEvent = func(HealthEvent) {}
	}

	return &HealthScheduler{
		store:        cfg.Store,
		prober:       cfg.Prober,
		observer:     cfg.Observer,
		pollInterval: cfg.PollInterval,
		now:          cfg.Now,
		onEvent:      cfg.OnEvent,
		lastRun:      make(map[string]time.Time),
		state:        make(map[string]HealthState),
		failures:     make(map[string]int),
	}, nil
}

// Start begins scheduler execution. Starting a running scheduler is a no-op.
func (s *HealthScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.cancel != nil {
		s.mu.Unlock()
		return nil
	}
	loopCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	s.cancel = cancel
	s.done = done
	s.mu.Unlock()

	go func() {
		defer close(done)
		_ = s.RunOnce(loopCtx)
		ticker := time.NewTicker(s.pollInterval)
		defer ticker.Stop()

		for {
			select {
			case <-loopCtx.Done():
				return
			case <-ticker.C:
				_ = s.RunOnce(loopCtx)
			}
		}
	}()

	return nil
}

// Stop terminates scheduler execution, waiting for the loop to drain.
func (s *HealthScheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	cancel := s.cancel
	done := s.done
	s.cancel = nil
	s.done = nil
	s.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunOnce performs one scheduling pass over all stored manifests.
func (s *HealthScheduler) RunOnce(ctx context.Context) error {
	manifests, err := s.store.List(ctx)
	if err != nil {
		return err
	}
	now := s.now()

	for _, m := range manifests {
		if m.Health == nil || m.Health.Endpoint == "" {
			continue
		}
		if !s.isDue(m, now) {
			continue
		}

		report := s.prober.Probe(ctx, m)

		s.mu.Lock()
		previous, ok := s.state[m.Name]
		if !ok {
			previous = HealthUnknown
		}
		if report.State == HealthUnhealthy {
			s.failures[m.Name]++
		} else {
			s.failures[m.Name] = 0
		}
		report.FailureCount = s.failures[m.Name]
		s.state[m.Name] = report.State
		s.lastRun[m.Name] = now
		s.mu.Unlock()

		s.observer.ObserveHealth(HealthObservation{
			ToolName:      m.Name,
			State:         report.State,
			FailureCount:  report.FailureCount,
			DurationMS:    report.LatencyMS,
			PreviousState: previous,
		})
		s.onEvent(HealthEvent{
			ToolName:      m.Name,
			PreviousState: previous,
			Report:        report,
		})
	}
	return nil
}

// State returns the last probed state for a tool.
func (s *HealthScheduler) State(name string) HealthState {
	s.mu.Lock()
	defer s.mu.Unlock()
	if state, ok := s.state[name]; ok {
		return state
	}
	return HealthUnknown
}

func (s *HealthScheduler) isDue(m Manifest, now time.Time) bool {
	s.mu.Lock()
	last, ran := s.lastRun[m.Name]
	s.mu.Unlock()

	if !ran {
		return true
	}
	schedule, err := parseHealthSchedule(m.Health.Schedule)
	if err != nil {
		// Malformed schedules fall back to the poll interval.
		return !now.Before(last.Add(s.pollInterval))
	}
	return !now.Before(schedule.Next(last))
}
