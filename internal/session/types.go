package session

import (
	"context"
	"errors"
	"time"
)

// State is the lifecycle state of a session.
type State string

const (
	// StateNone is the implicit state of an ID that was never stored.
	StateNone State = "none"

	// StatePending means a login URL was issued but the callback has not completed.
	StatePending State = "pending"

	// StateAuthenticated means the callback completed and an access token is stored.
	StateAuthenticated State = "authenticated"
)

var (
	// ErrNotFound is returned by backends when no session has the given ID.
	ErrNotFound = errors.New("session not found")

	// ErrExists is returned by Backend.Insert when the ID is already taken.
	ErrExists = errors.New("session already exists")

	// ErrInvalidTransition is returned when a lifecycle transition is not allowed.
	ErrInvalidTransition = errors.New("invalid session transition")
)

// UserInfo is the user-info payload returned by the identity provider, kept verbatim.
type UserInfo map[string]any

// Email returns the "email" claim, or "".
func (u UserInfo) Email() string { return u.stringClaim("email") }

// Name returns the "name" claim, or "".
func (u UserInfo) Name() string { return u.stringClaim("name") }

// Subject returns the stable subject identifier ("sub"), or "".
func (u UserInfo) Subject() string { return u.stringClaim("sub") }

func (u UserInfo) stringClaim(key string) string {
	if u == nil {
		return ""
	}
	v, _ := u[key].(string)
	return v
}

// Clone returns a shallow copy of u. Nil stays nil.
func (u UserInfo) Clone() UserInfo {
	if u == nil {
		return nil
	}
	out := make(UserInfo, len(u))
	for k, v := range u {
		out[k] = v
	}
	return out
}

// WithAccessToken returns a copy of u with the access token merged in under
// "access_token", the shape the callback persists.
func (u UserInfo) WithAccessToken(token string) UserInfo {
	out := u.Clone()
	if out == nil {
		out = UserInfo{}
	}
	out["access_token"] = token
	return out
}

// Record is a stored session.
type Record struct {
	ID          string
	State       State
	UserInfo    UserInfo
	AccessToken string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Clone returns a deep enough copy of r for backends to hand out safely.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	out := *r
	out.UserInfo = r.UserInfo.Clone()
	return &out
}

// Backend persists session records. Implementations must be safe for
// concurrent use.
type Backend interface {
	// Get returns the record for id, or ErrNotFound.
	Get(ctx context.Context, id string) (*Record, error)

	// Insert stores a new record, or returns ErrExists if the ID is taken.
	Insert(ctx context.Context, rec *Record) error

	// Put inserts or replaces the record.
	Put(ctx context.Context, rec *Record) error

	// Counts returns the number of stored sessions per state.
	Counts(ctx context.Context) (map[State]int, error)

	// Close releases backend resources.
	Close() error
}

// TransitionRecorder observes lifecycle transitions, typically for metrics.
type TransitionRecorder interface {
	RecordSessionTransition(ctx context.Context, from, to string)
}
