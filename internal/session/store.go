package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/teemow/calendar-mcp/internal/logging"
)

// maxIDAttempts bounds regeneration on ID collision.
const maxIDAttempts = 3

// Store is the session store shared by the OAuth callback (writer) and the
// tool handlers (readers). It is safe for concurrent use.
type Store struct {
	backend  Backend
	logger   *slog.Logger
	newID    func() string
	now      func() time.Time
	recorder TransitionRecorder

	// mu serializes read-modify-write transitions on the backend.
	mu sync.Mutex
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger used by the store.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// WithIDGenerator replaces the UUID generator. Intended for tests.
func WithIDGenerator(gen func() string) Option {
	return func(s *Store) {
		s.newID = gen
	}
}

// WithClock replaces time.Now. Intended for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// WithTransitionRecorder reports every lifecycle transition to r.
func WithTransitionRecorder(r TransitionRecorder) Option {
	return func(s *Store) {
		s.recorder = r
	}
}

// NewStore creates a store on top of backend.
func NewStore(backend Backend, opts ...Option) *Store {
	s := &Store{
		backend: backend,
		logger:  slog.Default(),
		newID:   uuid.NewString,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = logging.WithComponent(s.logger, "session")
	return s
}

// NewMemoryStore is shorthand for NewStore(NewMemoryBackend(), opts...).
func NewMemoryStore(opts ...Option) *Store {
	return NewStore(NewMemoryBackend(), opts...)
}

// Create inserts a fresh Pending session and returns its ID.
func (s *Store) Create(ctx context.Context) (string, error) {
	next, err := transition(StateNone, triggerLoginStarted)
	if err != nil {
		return "", err
	}

	for attempt := 0; attempt < maxIDAttempts; attempt++ {
		id := s.newID()
		now := s.now()
		rec := &Record{
			ID:        id,
			State:     next,
			CreatedAt: now,
			UpdatedAt: now,
		}

		err := s.backend.Insert(ctx, rec)
		if errors.Is(err, ErrExists) {
			s.logger.Warn("session ID collision, regenerating", logging.Session(id))
			continue
		}
		if err != nil {
			return "", fmt.Errorf("failed to create session: %w", err)
		}

		s.recordTransition(ctx, StateNone, next)
		s.logger.Debug("session created", logging.Session(id), logging.SessionState(string(next)))
		return id, nil
	}

	return "", fmt.Errorf("failed to create session: %w after %d attempts", ErrExists, maxIDAttempts)
}

// MarkAuthenticated stores the user info and access token for id and moves the
// session to Authenticated. Unknown IDs are inserted rather than rejected,
// since the callback is the only path that knows the token.
func (s *Store) MarkAuthenticated(ctx context.Context, id string, info UserInfo, accessToken string) error {
	if id == "" {
		return fmt.Errorf("failed to mark session authenticated: empty session ID")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	current := StateNone

	rec, err := s.backend.Get(ctx, id)
	switch {
	case errors.Is(err, ErrNotFound):
		s.logger.Warn("callback for unknown session, inserting", logging.Session(id))
		rec = &Record{ID: id, CreatedAt: now}
	case err != nil:
		return fmt.Errorf("failed to load session: %w", err)
	default:
		current = rec.State
	}

	next, err := transition(current, triggerCallbackSucceeded)
	if err != nil {
		return err
	}

	rec.State = next
	rec.UserInfo = info.Clone()
	rec.AccessToken = accessToken
	rec.UpdatedAt = now

	if err := s.backend.Put(ctx, rec); err != nil {
		return fmt.Errorf("failed to store session: %w", err)
	}

	s.recordTransition(ctx, current, next)
	s.logger.Info("session authenticated",
		logging.Session(id),
		logging.UserHash(info.Email()),
		slog.String("from", string(current)))
	return nil
}

// Get returns a copy of the record for id.
func (s *Store) Get(ctx context.Context, id string) (*Record, bool) {
	if id == "" {
		return nil, false
	}
	rec, err := s.backend.Get(ctx, id)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			s.logger.Error("session lookup failed", logging.Session(id), logging.Err(err))
		}
		return nil, false
	}
	return rec, true
}

// AccessToken returns the token of an Authenticated session.
// Absent and Pending sessions report false.
func (s *Store) AccessToken(ctx context.Context, id string) (string, bool) {
	rec, ok := s.Get(ctx, id)
	if !ok || rec.State != StateAuthenticated {
		return "", false
	}
	return rec.AccessToken, true
}

// UserInfo returns the provider user info of an Authenticated session.
func (s *Store) UserInfo(ctx context.Context, id string) (UserInfo, bool) {
	rec, ok := s.Get(ctx, id)
	if !ok || rec.State != StateAuthenticated {
		return nil, false
	}
	return rec.UserInfo.Clone(), true
}

// Contains reports whether id was ever issued or authenticated.
func (s *Store) Contains(ctx context.Context, id string) bool {
	_, ok := s.Get(ctx, id)
	return ok
}

// IsAuthenticated reports whether id is in the Authenticated state.
func (s *Store) IsAuthenticated(ctx context.Context, id string) bool {
	rec, ok := s.Get(ctx, id)
	return ok && rec.State == StateAuthenticated
}

// Counts returns the number of sessions per state.
func (s *Store) Counts(ctx context.Context) (map[State]int, error) {
	return s.backend.Counts(ctx)
}

// Close closes the backend.
func (s *Store) Close() error {
	return s.backend.Close()
}

func (s *Store) recordTransition(ctx context.Context, from, to State) {
	if s.recorder != nil {
		s.recorder.RecordSessionTransition(ctx, string(from), string(to))
	}
}
