package redis

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"arena-session-service/internal/app"
	"arena-session-service/internal/domain"
)

const codeAttempts = 16

// SessionRegistry is a Redis-aware implementation of app.SessionRegistry.
// Notes:
//   - Live sessions stay in a local map to reuse the in-process broadcast
//     logic; Redis marks code liveness so concurrent instances cannot hand
//     out a code another instance is serving.
//   - For true distribution you'd pair this with a pub/sub projector that
//     fans out updates across instances.
type SessionRegistry struct {
	client   *redis.Client
	ttl      time.Duration
	mu       sync.RWMutex
	sessions map[string]*app.Session
	rnd      *rand.Rand
}

func NewSessionRegistry(client *redis.Client, ttl time.Duration) *SessionRegistry {
	return &SessionRegistry{
		client:   client,
		ttl:      ttl,
		sessions: make(map[string]*app.Session),
		rnd:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (r *SessionRegistry) Create(build func(code string) *app.Session) (*app.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := 0; i < codeAttempts; i++ {
		code := fmt.Sprintf("%06d", 100000+r.rnd.Intn(900000))
		if _, taken := r.sessions[code]; taken {
			continue
		}
		// SETNX makes the claim atomic against other instances.
		claimed, err := r.client.SetNX(context.Background(), r.key(code), "1", r.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("%w: claim code: %v", domain.ErrStorageUnavailable, err)
		}
		if !claimed {
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

// MarkEnded frees the code for reuse; the session stays locally readable for
// results.
func (r *SessionRegistry) MarkEnded(code string) {
	_ = r.client.Del(context.Background(), r.key(code)).Err()
}

func (r *SessionRegistry) key(code string) string {
	return "session:" + code + ":live"
}
