// Package scheduler owns each profile's lifecycle: periodic, poll, and
// webhook triggers feeding one coalescing dispatch queue per profile, a
// state machine broadcast to the observability bus, and failure-count
// backoff. Each profile runs one worker goroutine, a pool of exactly one
// long-lived worker consuming from that profile's own queue, plus one
// goroutine for its periodic and poll timers.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"plexanibridge/internal/bus"
	"plexanibridge/internal/domain"
)

// TriggerKind is the kind of sync a Trigger requests.
type TriggerKind string

const (
	TriggerFull    TriggerKind = "full"
	TriggerPoll    TriggerKind = "poll"
	TriggerWebhook TriggerKind = "webhook"
)

// Trigger is one request to sync a profile.
type Trigger struct {
	Kind      TriggerKind
	RatingKey string // set only for TriggerWebhook
}

// State is a profile's current lifecycle stage.
type State string

const (
	StateIdle        State = "idle"
	StatePreparing   State = "preparing"
	StateScanning    State = "scanning"
	StateReconciling State = "reconciling"
	StateWriting     State = "writing"
	StateFailed      State = "failed"
)

// Status is the runtime snapshot exposed to the control surface's
// status() operation.
type Status struct {
	Profile             string
	State               State
	Stage               string
	Section             string
	Processed           int
	Total               int
	LastSyncedAt        *time.Time
	ConsecutiveFailures int
	CooldownUntil       *time.Time
}

// Runner performs the actual sync work for one trigger; implemented by
// the composition root (internal/runtime) which wires together the Plex
// client, resolver, AniList client, and reconciler. Kept as an interface
// so the scheduler has no import-time dependency on those packages.
type Runner interface {
	RunSync(ctx context.Context, profile domain.Profile, trigger Trigger, report func(Status)) error
}

const failureCooldownThreshold = 5

// profileWorker serializes one profile's syncs and coalesces pending
// triggers: at most one pending trigger of each kind is retained while
// a sync is in flight.
type profileWorker struct {
	profile domain.Profile
	runner  Runner
	bus     *bus.Bus
	logger  *slog.Logger

	mu      sync.Mutex
	pending map[TriggerKind]Trigger
	wake    chan struct{}

	status Status

	cancel context.CancelFunc
}

// Supervisor owns every profile's worker. The database-sync job
// (DBSyncJob) runs on its own, outside the Supervisor.
type Supervisor struct {
	bus    *bus.Bus
	logger *slog.Logger

	mu      sync.RWMutex
	workers map[string]*profileWorker
}

// New builds a Supervisor that publishes state transitions to b.
func New(b *bus.Bus, logger *slog.Logger) *Supervisor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Supervisor{bus: b, logger: logger, workers: make(map[string]*profileWorker)}
}

// Register starts a worker goroutine and a timer goroutine for profile,
// backed by runner. Call once per profile at startup.
func (s *Supervisor) Register(ctx context.Context, profile domain.Profile, runner Runner) {
	w := &profileWorker{
		profile: profile,
		runner:  runner,
		bus:     s.bus,
		logger:  s.logger.With("profile", profile.Name),
		pending: make(map[TriggerKind]Trigger),
		wake:    make(chan struct{}, 1),
		status:  Status{Profile: profile.Name, State: StateIdle},
	}
	workerCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	s.mu.Lock()
	s.workers[profile.Name] = w
	s.mu.Unlock()

	go w.run(workerCtx)
	go w.scheduleTimers(workerCtx)
}

// Trigger enqueues a sync request for profile, coalescing with any
// already-pending trigger of the same kind.
func (s *Supervisor) Trigger(profileName string, t Trigger) bool {
	s.mu.RLock()
	w, ok := s.workers[profileName]
	s.mu.RUnlock()
	if !ok {
		return false
	}
	w.enqueue(t)
	return true
}

// Status returns the current runtime status for profileName.
func (s *Supervisor) Status(profileName string) (Status, bool) {
	s.mu.RLock()
	w, ok := s.workers[profileName]
	s.mu.RUnlock()
	if !ok {
		return Status{}, false
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.status, true
}

// AllStatus returns every registered profile's status.
func (s *Supervisor) AllStatus() []Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Status, 0, len(s.workers))
	for _, w := range s.workers {
		w.mu.Lock()
		out = append(out, w.status)
		w.mu.Unlock()
	}
	return out
}

// Shutdown cancels every profile worker and waits is not required: the
// parent context cancellation already propagates, this just releases
// resources the Supervisor itself owns.
func (s *Supervisor) Shutdown() {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, w := range s.workers {
		w.cancel()
	}
}

func (w *profileWorker) enqueue(t Trigger) {
	w.mu.Lock()
	w.pending[t.Kind] = t
	w.mu.Unlock()
	select {
	case w.wake <- struct{}{}:
	default:
	}
}

func (w *profileWorker) scheduleTimers(ctx context.Context) {
	var periodic, poll *time.Ticker
	if w.profile.HasMode(domain.SyncModePeriodic) && w.profile.ScanIntervalSeconds > 0 {
		periodic = time.NewTicker(time.Duration(w.profile.ScanIntervalSeconds) * time.Second)
		defer periodic.Stop()
	}
	if w.profile.HasMode(domain.SyncModePoll) && w.profile.PollIntervalSeconds > 0 {
		poll = time.NewTicker(time.Duration(w.profile.PollIntervalSeconds) * time.Second)
		defer poll.Stop()
	}

	var periodicC, pollC <-chan time.Time
	if periodic != nil {
		periodicC = periodic.C
	}
	if poll != nil {
		pollC = poll.C
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-periodicC:
			w.enqueue(Trigger{Kind: TriggerFull})
		case <-pollC:
			w.enqueue(Trigger{Kind: TriggerPoll})
		}
	}
}

func (w *profileWorker) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.wake:
		}

		if w.inCooldown() {
			continue
		}

		for {
			t, ok := w.popPending()
			if !ok {
				break
			}
			w.execute(ctx, t)
			if ctx.Err() != nil {
				return
			}
		}
	}
}

func (w *profileWorker) inCooldown() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.status.CooldownUntil == nil {
		return false
	}
	if time.Now().Before(*w.status.CooldownUntil) {
		return true
	}
	w.status.CooldownUntil = nil
	return false
}

// popPending dequeues one pending trigger, preferring full over poll
// over webhook. Triggers of the other kinds stay pending and run after it.
func (w *profileWorker) popPending() (Trigger, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, kind := range []TriggerKind{TriggerFull, TriggerPoll, TriggerWebhook} {
		if t, ok := w.pending[kind]; ok {
			delete(w.pending, kind)
			return t, true
		}
	}
	return Trigger{}, false
}

func (w *profileWorker) execute(ctx context.Context, t Trigger) {
	w.setState(StatePreparing, "", "", 0, 0)

	report := func(st Status) {
		w.mu.Lock()
		st.Profile = w.profile.Name
		w.status = st
		w.mu.Unlock()
		w.publish(st)
	}

	err := w.runner.RunSync(ctx, w.profile, t, report)

	w.mu.Lock()
	if err != nil {
		w.status.State = StateFailed
		w.status.ConsecutiveFailures++
		if w.status.ConsecutiveFailures >= failureCooldownThreshold {
			backoff := backoffFor(w.status.ConsecutiveFailures, w.profile.ScanIntervalSeconds)
			until := time.Now().Add(backoff)
			w.status.CooldownUntil = &until
			w.logger.Warn("profile entering cooldown after repeated failures",
				"consecutive_failures", w.status.ConsecutiveFailures, "cooldown", backoff)
		}
		w.logger.Error("sync failed", "error", err)
	} else {
		now := time.Now()
		w.status.State = StateIdle
		w.status.ConsecutiveFailures = 0
		w.status.LastSyncedAt = &now
	}
	status := w.status
	w.mu.Unlock()
	w.publish(status)
}

func (w *profileWorker) setState(state State, stage, section string, processed, total int) {
	w.mu.Lock()
	w.status.State = state
	w.status.Stage = stage
	w.status.Section = section
	w.status.Processed = processed
	w.status.Total = total
	status := w.status
	w.mu.Unlock()
	w.publish(status)
}

func (w *profileWorker) publish(status Status) {
	if w.bus == nil {
		return
	}
	w.bus.Publish(bus.Event{
		Type:      bus.EventProfileStateChanged,
		Profile:   w.profile.Name,
		Timestamp: time.Now(),
		Payload:   status,
	})
}

// backoffFor grows exponentially with each failure past the threshold,
// capped at scanIntervalSeconds (or 1h if periodic sync is disabled).
func backoffFor(consecutiveFailures, scanIntervalSeconds int) time.Duration {
	cap := time.Hour
	if scanIntervalSeconds > 0 {
		cap = time.Duration(scanIntervalSeconds) * time.Second
	}
	extra := consecutiveFailures - failureCooldownThreshold + 1
	backoff := time.Duration(1<<uint(minInt(extra, 10))) * time.Second
	if backoff > cap {
		backoff = cap
	}
	return backoff
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
