package session

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tphakala/emotion-go/internal/datastore"
	"github.com/tphakala/emotion-go/internal/errors"
	"github.com/tphakala/emotion-go/internal/logger"
	"github.com/tphakala/emotion-go/internal/model"
	"github.com/tphakala/emotion-go/internal/performance"
)

// Journal is the subset of the datastore the manager writes to.
type Journal interface {
	Begin(rec *datastore.SessionRecord) error
	BindServerID(localID, serverID string) error
	RecordAnomaly(localID string) error
	Finish(localID string, endedAt time.Time, reason string, stats *datastore.SessionStats) error
	CloseOpen(reason string, at time.Time) (int64, error)
}

// EndedFunc is called after a session reaches Ended, with its final state.
// It must not call StartSession or EndSession.
type EndedFunc func(s Session)

// Option configures a Manager.
type Option func(*Manager)

// WithJournal records sessions in j.
func WithJournal(j Journal) Option {
	return func(m *Manager) { m.journal = j }
}

// WithStats supplies the statistics written to the journal on end.
func WithStats(fn func() performance.Snapshot) Option {
	return func(m *Manager) { m.stats = fn }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithEndTimeout bounds the best-effort server end call.
func WithEndTimeout(d time.Duration) Option {
	return func(m *Manager) { m.endTimeout = d }
}

// Manager serializes session transitions. Start, end and recovery are
// mutually exclusive; ObserveResult never waits on the network.
type Manager struct {
	api        API
	journal    Journal
	stats      func() performance.Snapshot
	now        func() time.Time
	endTimeout time.Duration
	log        logger.Logger

	// opMu serializes Start, End and Recover, which call the server.
	opMu sync.Mutex

	mu        sync.Mutex
	state     State
	current   Session
	recovered bool
	timer     *time.Timer
	listeners []EndedFunc
}

// NewManager returns an idle manager.
func NewManager(api API, log logger.Logger, opts ...Option) *Manager {
	m := &Manager{
		api:        api,
		now:        time.Now,
		endTimeout: 5 * time.Second,
		log:        log.Module("session"),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// OnEnded registers fn to run after every session end.
func (m *Manager) OnEnded(fn EndedFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, fn)
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Current returns a copy of the current or most recent session. ok is false
// while idle.
func (m *Manager) Current() (s Session, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == StateIdle {
		return Session{}, false
	}
	return m.copyLocked(), true
}

// SessionID returns the confirmed server id of the active session.
func (m *Manager) SessionID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateActive {
		return ""
	}
	return m.current.ID
}

func (m *Manager) copyLocked() Session {
	s := m.current
	s.State = m.state
	s.StateName = m.state.String()
	s.Config.EnabledEmotions = slices.Clone(m.current.Config.EnabledEmotions)
	return s
}

// RecoverDanglingSession ends a session the server still considers active
// and closes open journal records. It must succeed before a new session
// can start.
func (m *Manager) RecoverDanglingSession(ctx context.Context) error {
	m.opMu.Lock()
	defer m.opMu.Unlock()
	return m.recoverLocked(ctx)
}

func (m *Manager) recoverLocked(ctx context.Context) error {
	active, err := m.api.Active(ctx)
	if err != nil {
		return errors.New(err).
			Component("session").
			Context("operation", "recover").
			Build()
	}
	if active != nil {
		m.log.Warn("ending dangling server session",
			logger.String("session_id", active.ID),
			logger.Time("started_at", active.StartedAt))
		if err := m.api.End(ctx); err != nil {
			return errors.New(err).
				Component("session").
				Context("operation", "recover_end").
				Context("session_id", active.ID).
				Build()
		}
	}
	if m.journal != nil {
		if _, err := m.journal.CloseOpen(ReasonRecovered, m.now()); err != nil {
			m.log.Warn("failed to close dangling journal records", logger.Error(err))
		}
	}

	m.mu.Lock()
	m.recovered = true
	m.mu.Unlock()
	return nil
}

// StartSession begins a session optimistically. The server start call is
// best effort; without it the id is learned from the first analysis result.
// Recovery runs first if it has not yet succeeded in this process.
func (m *Manager) StartSession(ctx context.Context, cfg Config) (Session, error) {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	m.mu.Lock()
	state, recovered := m.state, m.recovered
	m.mu.Unlock()

	if state == StateActive {
		return Session{}, errors.Newf("a session is already active").
			Component("session").
			Category(errors.CategoryState).
			Build()
	}
	if !recovered {
		if err := m.recoverLocked(ctx); err != nil {
			return Session{}, err
		}
	}

	s := Session{
		LocalID:   uuid.NewString(),
		Config:    cfg,
		StartedAt: m.now(),
	}

	m.mu.Lock()
	m.current = s
	m.state = StateActive
	if cfg.MaxDuration > 0 {
		localID := s.LocalID
		m.timer = time.AfterFunc(cfg.MaxDuration, func() {
			m.expire(localID)
		})
	}
	m.mu.Unlock()

	if m.journal != nil {
		if err := m.journal.Begin(journalRecord(&s)); err != nil {
			m.log.Warn("failed to journal session start", logger.Error(err))
		}
	}

	m.log.Info("session started",
		logger.String("local_id", s.LocalID),
		logger.String("camera_resolution", cfg.CameraResolution),
		logger.Duration("max_duration", cfg.MaxDuration))

	id, err := m.api.Start(ctx, &cfg)
	if err != nil {
		m.log.Warn("server session start failed, awaiting id from results",
			logger.String("local_id", s.LocalID),
			logger.Error(err))
	} else if id != "" {
		// a concurrent result may have confirmed first
		_ = m.confirm(s.LocalID, id)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	return m.copyLocked(), nil
}

// ObserveResult binds the server session id carried by r. The first id
// wins; a later, different id is a protocol anomaly and is returned as a
// CategoryProtocolAnomaly error without changing the binding.
func (m *Manager) ObserveResult(r *model.AnalysisResult) error {
	if r == nil || r.SessionID == "" {
		return nil
	}
	m.mu.Lock()
	if m.state != StateActive {
		m.mu.Unlock()
		return nil
	}
	localID := m.current.LocalID
	m.mu.Unlock()
	return m.confirm(localID, r.SessionID)
}

func (m *Manager) confirm(localID, id string) error {
	m.mu.Lock()
	if m.state != StateActive || m.current.LocalID != localID {
		m.mu.Unlock()
		return nil
	}
	bound := m.current.ID
	switch {
	case bound == "":
		m.current.ID = id
		m.mu.Unlock()
		m.log.Info("session confirmed",
			logger.String("local_id", localID),
			logger.String("session_id", id))
		if m.journal != nil {
			if err := m.journal.BindServerID(localID, id); err != nil {
				m.log.Warn("failed to journal session id", logger.Error(err))
			}
		}
		return nil
	case bound == id:
		m.mu.Unlock()
		return nil
	default:
		m.current.Anomalies++
		m.mu.Unlock()
		if m.journal != nil {
			if err := m.journal.RecordAnomaly(localID); err != nil {
				m.log.Warn("failed to journal anomaly", logger.Error(err))
			}
		}
		m.log.Warn("result carried a different session id",
			logger.String("bound", bound),
			logger.String("received", id))
		return errors.Newf("session id mismatch: bound %s, received %s", bound, id).
			Component("session").
			Category(errors.CategoryProtocolAnomaly).
			Context("bound_session_id", bound).
			Context("received_session_id", id).
			Build()
	}
}

func (m *Manager) expire(localID string) {
	m.mu.Lock()
	match := m.state == StateActive && m.current.LocalID == localID
	m.mu.Unlock()
	if !match {
		return
	}
	m.log.Info("session reached max duration", logger.String("local_id", localID))
	_ = m.endSession(context.Background(), localID, ReasonMaxDuration)
}

// EndSession ends the active session. The local transition to Ended always
// completes; a failed server notification is returned for reporting only.
// Ending when no session is active is a no-op.
func (m *Manager) EndSession(ctx context.Context, reason string) error {
	return m.endSession(ctx, "", reason)
}

func (m *Manager) endSession(ctx context.Context, localID, reason string) error {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	m.mu.Lock()
	if m.state != StateActive || (localID != "" && m.current.LocalID != localID) {
		m.mu.Unlock()
		return nil
	}
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	endedAt := m.now()
	m.state = StateEnding
	m.current.EndedAt = &endedAt
	m.current.EndReason = strings.TrimSpace(reason)
	m.mu.Unlock()

	endCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.endTimeout)
	err := m.api.End(endCtx)
	cancel()

	// Ended is reached whatever the server said
	m.mu.Lock()
	m.state = StateEnded
	ended := m.copyLocked()
	listeners := slices.Clone(m.listeners)
	m.mu.Unlock()
	if err != nil {
		m.log.Warn("server session end failed, session ended locally",
			logger.String("local_id", ended.LocalID),
			logger.Error(err))
		err = errors.New(err).
			Component("session").
			Context("operation", "end").
			Build()
	}

	if m.journal != nil {
		var stats *datastore.SessionStats
		if m.stats != nil {
			stats = journalStats(m.stats())
		}
		if jerr := m.journal.Finish(ended.LocalID, endedAt, ended.EndReason, stats); jerr != nil {
			m.log.Warn("failed to journal session end", logger.Error(jerr))
		}
	}

	m.log.Info("session ended",
		logger.String("local_id", ended.LocalID),
		logger.String("session_id", ended.ID),
		logger.String("reason", ended.EndReason),
		logger.Duration("duration", endedAt.Sub(ended.StartedAt)))

	for _, fn := range listeners {
		fn(ended)
	}
	return err
}

func journalRecord(s *Session) *datastore.SessionRecord {
	emotions := make([]string, 0, len(s.Config.EnabledEmotions))
	for _, e := range s.Config.EnabledEmotions {
		emotions = append(emotions, string(e))
	}
	return &datastore.SessionRecord{
		LocalID:            s.LocalID,
		CameraResolution:   s.Config.CameraResolution,
		AnalysisIntervalMs: s.Config.AnalysisInterval.Milliseconds(),
		DetectionThreshold: s.Config.DetectionThreshold,
		EnabledEmotions:    strings.Join(emotions, ","),
		MaxDurationMs:      s.Config.MaxDuration.Milliseconds(),
		StartedAt:          s.StartedAt,
	}
}

func journalStats(snap performance.Snapshot) *datastore.SessionStats {
	return &datastore.SessionStats{
		TotalAnalyses:        snap.TotalAnalyses,
		SuccessfulDetections: snap.SuccessfulDetections,
		FailedDetections:     snap.FailedDetections,
		DetectionRate:        snap.DetectionRatePercent,
		AvgProcessingTimeMs:  snap.AverageProcessingTimeMs,
		AvgFPS:               snap.AverageFPS,
		CacheHitRate:         snap.CacheHitRatePercent,
	}
}
