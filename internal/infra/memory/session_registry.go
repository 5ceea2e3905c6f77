package memory

import (
	"fmt"
	"math/rand"
	"sync"
	"time"

	"arena-session-service/internal/app"
	"arena-session-service/internal/domain"
)

// codeAttempts bounds code regeneration on collision. With a six-digit code
// space this is practically unreachable, but exhaustion is still an error,
// not a hang.
const codeAttempts = 16

// SessionRegistry is the in-memory implementation of app.SessionRegistry.
// Ended sessions stay resident so results remain queryable.
type SessionRegistry struct {
	mu       sync.RWMutex
	sessions map[string]*app.Session
	nextCode func() string
}

func NewSessionRegistry() *SessionRegistry {
	rnd := rand.New(rand.NewSource(time.Now().UnixNano()))
	return &SessionRegistry{
		sessions: make(map[string]*app.Session),
		nextCode: func() string { return fmt.Sprintf("%06d", 100000+rnd.Intn(900000)) },
	}
}

// NewSessionRegistryWithCodes is test-only for deterministic codes.
func NewSessionRegistryWithCodes(next func() string) *SessionRegistry {
	return &SessionRegistry{
		sessions: make(map[string]*app.Session),
		nextCode: next,
	}
}

func (r *SessionRegistry) Create(build func(code string) *app.Session) (*app.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := 0; i < codeAttempts; i++ {
		code := r.nextCode()
		if _, taken := r.sessions[code]; taken {
			continue
		}
		session := build(code)
		r.sessions[code] = session
		return session, nil
	}
	return nil, domain.ErrCapacityExhausted
}

func (r *SessionRegistry) Get(code string) (*app.Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	session, ok := r.sessions[code]
	return session, ok
}

// MarkEnded is a no-op: in-memory sessions carry their own ended flag and
// stay resident for results reads.
func (r *SessionRegistry) MarkEnded(string) {}
