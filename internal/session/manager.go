package session

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"fluxboom/internal/domain"
	"fluxboom/internal/infra"
	"fluxboom/internal/orchestrator"
)

// Factory builds a fresh orchestrator for a generation session.
type Factory func() *orchestrator.Orchestrator

type session struct {
	id   string
	orch *orchestrator.Orchestrator
	busy bool
}

// Manager tracks generation sessions. Each session owns one orchestrator at a
// time; terminal sessions are retained so status reads keep working after the
// run finishes.
type Manager struct {
	factory Factory
	logger  infra.Logger

	mu       sync.Mutex
	sessions map[string]*session
}

// NewManager creates a session manager around the given orchestrator factory.
func NewManager(factory Factory, logger *infra.Logger) *Manager {
	l := zerolog.Nop()
	if logger != nil {
		l = *logger
	}
	return &Manager{
		factory:  factory,
		logger:   l,
		sessions: make(map[string]*session),
	}
}

// Start launches a generation run. An empty sessionID starts a new session;
// a known sessionID reuses it, which fails with ErrGenerationInFlight while a
// run is still active. The run itself proceeds in the background; its outcome
// is read through Get.
func (m *Manager) Start(req domain.GenerationRequest, sessionID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var sess *session
	if sessionID == "" {
		sess = &session{id: uuid.NewString(), orch: m.factory()}
		m.sessions[sess.id] = sess
	} else {
		existing, ok := m.sessions[sessionID]
		if !ok {
			return "", fmt.Errorf("%w: session %s", domain.ErrNotFound, sessionID)
		}
		if existing.busy {
			return "", domain.ErrGenerationInFlight
		}
		// Cancellation is one-shot per orchestrator, so a reused session
		// gets a fresh instance.
		existing.orch = m.factory()
		sess = existing
	}
	sess.busy = true

	go m.run(sess, req)
	return sess.id, nil
}

func (m *Manager) run(sess *session, req domain.GenerationRequest) {
	defer func() {
		m.mu.Lock()
		sess.busy = false
		m.mu.Unlock()
	}()
	// The run outlives the originating HTTP request.
	if _, err := sess.orch.Run(context.Background(), req); err != nil {
		m.logger.Warn().Err(err).Str("session_id", sess.id).Msg("session: generation finished with error")
		return
	}
	m.logger.Info().Str("session_id", sess.id).Msg("session: generation finished")
}

// Get returns the current snapshot of a session's orchestrator.
func (m *Manager) Get(sessionID string) (orchestrator.Snapshot, error) {
	m.mu.Lock()
	sess, ok := m.sessions[sessionID]
	var orch *orchestrator.Orchestrator
	if ok {
		orch = sess.orch
	}
	m.mu.Unlock()
	if !ok {
		return orchestrator.Snapshot{}, fmt.Errorf("%w: session %s", domain.ErrNotFound, sessionID)
	}
	return orch.State(), nil
}

// Cancel requests cancellation of a session's run. Canceling an idle or
// terminal session is a no-op.
func (m *Manager) Cancel(sessionID string) error {
	m.mu.Lock()
	sess, ok := m.sessions[sessionID]
	var orch *orchestrator.Orchestrator
	if ok {
		orch = sess.orch
	}
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: session %s", domain.ErrNotFound, sessionID)
	}
	orch.Cancel()
	return nil
}
