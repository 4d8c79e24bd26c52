package state

import (
	"maps"
	"time"
)

// Stage names a point in the conversation state machine.
type Stage string

// Session stores the conversation position and the facts collected so far for a user.
type Session struct {
	UserID       string
	Stage        Stage
	Context      map[string]string
	CreatedAt    time.Time
	LastActivity time.Time
}

// Value returns a context value and whether it was collected.
func (s Session) Value(key string) (string, bool) {
	v, ok := s.Context[key]
	return v, ok
}

func (s *Session) clone() Session {
	out := *s
	out.Context = maps.Clone(s.Context)
	if out.Context == nil {
		out.Context = make(map[string]string)
	}
	return out
}

// Patch describes a context mutation. Set overwrites key-wise; it never replaces the map.
type Patch struct {
	Set map[string]string
	// Unset drops keys owned by a sub-flow the user is leaving.
	Unset []string
	// Reset clears the whole context before Set is applied.
	Reset bool
}

// IsZero reports whether applying the patch would leave the context unchanged.
func (p Patch) IsZero() bool {
	return len(p.Set) == 0 && len(p.Unset) == 0 && !p.Reset
}

func (p Patch) apply(ctx map[string]string) map[string]string {
	if ctx == nil || p.Reset {
		ctx = make(map[string]string, len(p.Set))
	}
	for _, k := range p.Unset {
		delete(ctx, k)
	}
	for k, v := range p.Set {
		ctx[k] = v
	}
	return ctx
}

// Store owns every live session, keyed by channel user id.
type Store interface {
	// GetOrCreate returns a snapshot of the user's session, creating it at the
	// initial stage when absent. The flag reports whether it was just created.
	GetOrCreate(userID string) (Session, bool)
	Get(userID string) (Session, bool)
	// Update sets the stage and merges the patch into the session context.
	Update(userID string, stage Stage, patch Patch) Session
	// Clear removes the session entirely.
	Clear(userID string)
	// Lock serializes transitions for one user id. Callers must invoke unlock.
	Lock(userID string) (unlock func())
	// Sweep removes sessions idle for longer than idle and returns how many were dropped.
	Sweep(idle time.Duration) int
	Len() int
}
