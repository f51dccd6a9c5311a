package scheduling

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"televet/internal/docstore"
	"televet/internal/maintenance"
	"televet/internal/metrics"
	"televet/internal/model"
	"televet/internal/repository"
	"televet/internal/slots"
)

// Deps are the collaborators shared by every session of a Registry.
type Deps struct {
	Schedules  *repository.ScheduleRepository
	Settings   SettingsReader
	Maintainer *maintenance.Maintainer
	// Now returns the current time in the vets' zone.
	Now func() time.Time
	// MaxRangeDays caps the length of an apply range; zero means no cap.
	MaxRangeDays int
	Logger       *zerolog.Logger
}

// Registry owns one Session per vet. A session lives until it is released,
// evicted as idle, or the registry is closed.
type Registry struct {
	deps       Deps
	analyzer   *Analyzer
	applicator *Applicator
	days       *Days

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	sessions map[string]*Session
	closed   bool
}

func NewRegistry(deps Deps) *Registry {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Logger == nil {
		nop := zerolog.Nop()
		deps.Logger = &nop
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Registry{
		deps:       deps,
		analyzer:   NewAnalyzer(deps.Schedules, deps.Now),
		applicator: NewApplicator(deps.Schedules, deps.Settings, deps.Now, deps.Logger),
		days:       NewDays(deps.Schedules, deps.Settings, deps.Now, deps.Logger),
		ctx:        ctx,
		cancel:     cancel,
		sessions:   make(map[string]*Session),
	}
}

// Open returns the vet's session, starting it on first use: settings are
// loaded, a sweep runs, the schedule collection is watched and the expiry
// timer is armed.
func (r *Registry) Open(ctx context.Context, vetID string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, ErrSessionClosed
	}
	if s, ok := r.sessions[vetID]; ok {
		s.touch()
		return s, nil
	}

	s, err := r.start(ctx, vetID)
	if err != nil {
		return nil, err
	}
	s.touch()
	r.sessions[vetID] = s
	metrics.SessionOpened()
	return s, nil
}

// RecalculateExpiry opens the vet's session and rewrites slot expiries for
// a new minimum advance.
func (r *Registry) RecalculateExpiry(ctx context.Context, vetID string, minAdvance int) (int, error) {
	s, err := r.Open(ctx, vetID)
	if err != nil {
		return 0, err
	}
	return s.RecalculateExpiry(ctx, minAdvance)
}

// Release closes the vet's session. The next Open starts a fresh one.
func (r *Registry) Release(vetID string) bool {
	r.mu.Lock()
	s, ok := r.sessions[vetID]
	delete(r.sessions, vetID)
	r.mu.Unlock()
	if !ok {
		return false
	}
	s.Close()
	metrics.SessionClosed()
	return true
}

// EvictIdle closes every session that has not been used for idle and
// returns how many were closed.
func (r *Registry) EvictIdle(idle time.Duration) int {
	cutoff := r.deps.Now().Add(-idle).UnixNano()

	r.mu.Lock()
	var idleSessions []*Session
	for vetID, s := range r.sessions {
		if s.lastUsed.Load() <= cutoff {
			idleSessions = append(idleSessions, s)
			delete(r.sessions, vetID)
		}
	}
	r.mu.Unlock()

	for _, s := range idleSessions {
		s.Close()
		metrics.SessionClosed()
	}
	return len(idleSessions)
}

// RunEviction evicts idle sessions every interval until ctx is done.
func (r *Registry) RunEviction(ctx context.Context, idle, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := r.EvictIdle(idle); n > 0 {
				r.deps.Logger.Info().Int("sessions", n).Msg("idle scheduling sessions closed")
			}
		}
	}
}

// Close stops every session.
func (r *Registry) Close() {
	r.mu.Lock()
	sessions := r.sessions
	r.sessions = make(map[string]*Session)
	r.closed = true
	r.mu.Unlock()

	for _, s := range sessions {
		s.Close()
		metrics.SessionClosed()
	}
	r.cancel()
}

func (r *Registry) start(ctx context.Context, vetID string) (*Session, error) {
	logger := r.deps.Logger.With().Str("vet_id", vetID).Logger()
	if _, err := r.deps.Settings.Get(ctx, vetID); err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}

	sctx, cancel := context.WithCancel(r.ctx)
	s := &Session{
		vetID:   vetID,
		reg:     r,
		ctx:     sctx,
		cancel:  cancel,
		changes: make(chan struct{}, 1),
		logger:  &logger,
	}
	s.timer = maintenance.NewExpiryTimer(sctx, r.deps.Maintainer, vetID, &s.mu, &logger)

	if _, err := r.deps.Maintainer.Sweep(ctx, vetID); err != nil {
		cancel()
		return nil, fmt.Errorf("initial sweep: %w", err)
	}
	unsubscribe, err := r.deps.Schedules.Subscribe(sctx, vetID, s.onChange)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("watch schedules: %w", err)
	}
	s.unsubscribe = unsubscribe
	if err := s.timer.Rearm(ctx); err != nil {
		unsubscribe()
		cancel()
		return nil, fmt.Errorf("arm expiry timer: %w", err)
	}

	go s.watch()
	logger.Info().Msg("scheduling session opened")
	return s, nil
}

// Session is one vet's scheduling context. Its vet-side operations run one
// at a time together with the expiry timer's sweeps.
type Session struct {
	vetID string
	reg   *Registry

	mu          sync.Mutex
	timer       *maintenance.ExpiryTimer
	unsubscribe func()
	changes     chan struct{}

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
	lastUsed  atomic.Int64
	logger    *zerolog.Logger
}

func (s *Session) VetID() string { return s.vetID }

// NextExpiry returns the instant the expiry timer is armed for.
func (s *Session) NextExpiry() (time.Time, bool) {
	return s.timer.Next()
}

// Close stops the timer and the schedule watch.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.timer.Stop()
		if s.unsubscribe != nil {
			s.unsubscribe()
		}
		s.cancel()
		s.logger.Info().Msg("scheduling session closed")
	})
}

// onChange coalesces store notifications; watch re-arms once per burst.
func (s *Session) onChange(docstore.Change) {
	select {
	case s.changes <- struct{}{}:
	default:
	}
}

func (s *Session) watch() {
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-s.changes:
			if err := s.timer.Rearm(s.ctx); err != nil && s.ctx.Err() == nil {
				s.logger.Error().Err(err).Msg("failed to re-arm expiry timer")
			}
		}
	}
}

func (s *Session) touch() {
	s.lastUsed.Store(s.reg.deps.Now().UnixNano())
}

func (s *Session) lock() error {
	s.touch()
	s.mu.Lock()
	if s.ctx.Err() != nil {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	return nil
}

// Analyze classifies the template against the stored schedule. Only these
// analyses are counted in the conflict metrics, not the pre-check of an apply.
func (s *Session) Analyze(ctx context.Context, tpl *model.AvailabilityTemplate, start, end string) (Analysis, error) {
	if err := s.lock(); err != nil {
		return Analysis{}, err
	}
	defer s.mu.Unlock()
	if err := s.checkRange(start, end); err != nil {
		return Analysis{}, err
	}
	analysis, err := s.reg.analyzer.Analyze(ctx, s.vetID, tpl, start, end)
	if err != nil {
		return Analysis{}, err
	}
	metrics.AddConflicts(NoConflict.String(), len(analysis.Case1))
	metrics.AddConflicts(SoftConflict.String(), len(analysis.Case2))
	metrics.AddConflicts(HardConflict.String(), len(analysis.Case3))
	return analysis, nil
}

// ApplyTemplate analyzes the range and applies the template when nothing
// blocks it. Dates holding bookings that overlap the template produce a
// HardConflictError; soft conflicts missing a decision produce a
// DecisionRequiredError. Neither writes anything.
func (s *Session) ApplyTemplate(ctx context.Context, tpl *model.AvailabilityTemplate, start, end string, res Resolution) (ApplyReport, error) {
	if err := s.lock(); err != nil {
		return ApplyReport{}, err
	}
	defer s.mu.Unlock()

	if start < slots.DateKey(s.reg.deps.Now()) {
		return ApplyReport{}, ErrStartInPast
	}
	if err := s.checkRange(start, end); err != nil {
		return ApplyReport{}, err
	}

	analysis, err := s.reg.analyzer.Analyze(ctx, s.vetID, tpl, start, end)
	if err != nil {
		return ApplyReport{}, err
	}
	if len(analysis.Case3) > 0 {
		return ApplyReport{}, &HardConflictError{Dates: analysis.Case3}
	}
	replace, skip := res.sets()
	var undecided []string
	for _, d := range analysis.Case2 {
		if !replace[d] && !skip[d] {
			undecided = append(undecided, d)
		}
	}
	if len(undecided) > 0 {
		return ApplyReport{}, &DecisionRequiredError{Dates: undecided}
	}

	return s.reg.applicator.Apply(ctx, s.vetID, tpl, start, end, res)
}

// Schedules sweeps, then returns the filtered schedules.
func (s *Session) Schedules(ctx context.Context, f Filter) ([]model.DaySchedule, error) {
	if err := s.lock(); err != nil {
		return nil, err
	}
	defer s.mu.Unlock()
	if _, err := s.reg.deps.Maintainer.Sweep(ctx, s.vetID); err != nil {
		s.logger.Error().Err(err).Msg("sweep on access failed")
	}
	return s.reg.days.Schedules(ctx, s.vetID, f)
}

func (s *Session) EditDay(ctx context.Context, date string, input []model.TemplateSlot) (EditResult, error) {
	if err := s.lock(); err != nil {
		return EditResult{}, err
	}
	defer s.mu.Unlock()
	return s.reg.days.EditDay(ctx, s.vetID, date, input)
}

func (s *Session) BlockDates(ctx context.Context, dates []string) error {
	if err := s.lock(); err != nil {
		return err
	}
	defer s.mu.Unlock()
	return s.reg.days.BlockDates(ctx, s.vetID, dates)
}

func (s *Session) UnblockDate(ctx context.Context, date string) error {
	if err := s.lock(); err != nil {
		return err
	}
	defer s.mu.Unlock()
	return s.reg.days.UnblockDate(ctx, s.vetID, date)
}

func (s *Session) BlockedDates(ctx context.Context) ([]string, error) {
	s.touch()
	return s.reg.days.BlockedDates(ctx, s.vetID)
}

// Sweep marks passed slots expired now rather than at the next timer.
func (s *Session) Sweep(ctx context.Context) (int, error) {
	if err := s.lock(); err != nil {
		return 0, err
	}
	defer s.mu.Unlock()
	return s.reg.deps.Maintainer.Sweep(ctx, s.vetID)
}

func (s *Session) PurgeExpired(ctx context.Context) (int, error) {
	if err := s.lock(); err != nil {
		return 0, err
	}
	defer s.mu.Unlock()
	return s.reg.deps.Maintainer.PurgeExpired(ctx, s.vetID)
}

// RecalculateExpiry rewrites expiries for a new policy and re-arms.
func (s *Session) RecalculateExpiry(ctx context.Context, minAdvance int) (int, error) {
	if err := s.lock(); err != nil {
		return 0, err
	}
	n, err := s.reg.deps.Maintainer.RecalculateExpiry(ctx, s.vetID, minAdvance)
	s.mu.Unlock()
	if err != nil {
		return n, err
	}
	return n, s.timer.Rearm(ctx)
}

func (s *Session) checkRange(start, end string) error {
	limit := s.reg.deps.MaxRangeDays
	if limit <= 0 {
		return nil
	}
	dates, err := slots.DatesInRange(start, end, s.reg.deps.Now().Location())
	if err != nil {
		return err
	}
	if len(dates) > limit {
		return fmt.Errorf("%w: %d days, at most %d allowed", ErrRangeTooLong, len(dates), limit)
	}
	return nil
}
