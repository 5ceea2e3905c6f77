package app

import (
	"context"
	"fmt"
	"log"
	"time"

	"arena-session-service/internal/domain"
)

// SessionRegistry maps short human-entered codes to live sessions. Create
// picks a free code, calls build with it, and stores the result; it fails
// with domain.ErrCapacityExhausted after a bounded number of attempts.
type SessionRegistry interface {
	Create(build func(code string) *Session) (*Session, error)
	Get(code string) (*Session, bool)
	// MarkEnded lets store implementations clear liveness markers; the
	// session itself stays readable for results.
	MarkEnded(code string)
}

// QuizRepository loads quiz content (from cache/backing store). It is a
// read-only collaborator; the coordinator never writes quiz content.
type QuizRepository interface {
	GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
}

// ResultsArchiver persists a session's final leaderboard once it ends.
type ResultsArchiver interface {
	Archive(ctx context.Context, code string, final domain.Leaderboard) error
}

// Coordinator composes the registry, quiz repository, and answer ledger into
// the client-facing protocol. It validates parameters and delegates; it
// holds no session state of its own.
type Coordinator struct {
	registry SessionRegistry
	quizzes  QuizRepository
	ledger   AnswerLedger
	archiver ResultsArchiver
	now      func() time.Time
}

// CoordinatorOption tweaks construction; used by tests for fake clocks.
type CoordinatorOption func(*Coordinator)

// WithClock is test-only for deterministic timestamps.
func WithClock(now func() time.Time) CoordinatorOption {
	return func(c *Coordinator) { c.now = now }
}

// WithResultsArchiver enables durable final-leaderboard writes.
func WithResultsArchiver(a ResultsArchiver) CoordinatorOption {
	return func(c *Coordinator) { c.archiver = a }
}

func NewCoordinator(registry SessionRegistry, quizzes QuizRepository, ledger AnswerLedger, opts ...CoordinatorOption) *Coordinator {
	c := &Coordinator{
		registry: registry,
		quizzes:  quizzes,
		ledger:   ledger,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CreateSession registers a joinable session for the given question list and
// returns its shareable code.
func (c *Coordinator) CreateSession(_ context.Context, questions []domain.Question, durationSeconds int) (string, error) {
	if err := validateQuiz(questions, durationSeconds); err != nil {
		return "", err
	}
	session, err := c.registry.Create(func(code string) *Session {
		return NewSession(SessionConfig{
			Code:            code,
			Questions:       questions,
			DurationSeconds: durationSeconds,
			Ledger:          c.ledger,
			Now:             c.now,
			OnEnd:           c.endHook(code),
		})
	})
	if err != nil {
		return "", err
	}
	return session.Code(), nil
}

// CreateSessionFromQuiz loads stored quiz content and opens a session for it.
func (c *Coordinator) CreateSessionFromQuiz(ctx context.Context, quizID string) (string, error) {
	quiz, err := c.quizzes.GetQuiz(ctx, quizID)
	if err != nil {
		return "", err
	}
	return c.CreateSession(ctx, quiz.Questions, quiz.DurationSeconds)
}

// Join adds a new player to the session behind code.
func (c *Coordinator) Join(_ context.Context, code, name string) (domain.Player, error) {
	session, ok := c.registry.Get(code)
	if !ok {
		return domain.Player{}, domain.ErrSessionNotFound
	}
	return session.Join(name)
}

// SubmitAnswer records one answer for a joined player.
func (c *Coordinator) SubmitAnswer(ctx context.Context, code, playerID string, questionIndex int, chosenOption string) (domain.AnswerResult, error) {
	session, ok := c.registry.Get(code)
	if !ok {
		return domain.AnswerResult{}, domain.ErrSessionNotFound
	}
	return session.Submit(ctx, playerID, questionIndex, chosenOption)
}

// Questions returns the session's immutable question list.
func (c *Coordinator) Questions(_ context.Context, code string) ([]domain.Question, error) {
	session, ok := c.registry.Get(code)
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return session.Questions(), nil
}

// ListPlayers returns the roster in no defined order.
func (c *Coordinator) ListPlayers(_ context.Context, code string) ([]domain.Player, error) {
	session, ok := c.registry.Get(code)
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return session.Players(), nil
}

// Leaderboard returns the current ranking snapshot.
func (c *Coordinator) Leaderboard(_ context.Context, code string) (domain.Leaderboard, error) {
	session, ok := c.registry.Get(code)
	if !ok {
		return domain.Leaderboard{}, domain.ErrSessionNotFound
	}
	return session.Leaderboard(), nil
}

// SubscribeLeaderboard opens a push stream of ranking updates. The caller
// must invoke the returned cancel function to avoid leaks.
func (c *Coordinator) SubscribeLeaderboard(_ context.Context, code string) (<-chan domain.Leaderboard, func(), error) {
	session, ok := c.registry.Get(code)
	if !ok {
		return nil, nil, domain.ErrSessionNotFound
	}
	ch, cancel := session.SubscribeLeaderboard()
	return ch, cancel, nil
}

// SubscribeClock opens a push stream of countdown ticks ending with a
// terminal Ended update.
func (c *Coordinator) SubscribeClock(_ context.Context, code string) (<-chan domain.ClockUpdate, func(), error) {
	session, ok := c.registry.Get(code)
	if !ok {
		return nil, nil, domain.ErrSessionNotFound
	}
	ch, cancel := session.SubscribeClock()
	return ch, cancel, nil
}

// Results returns the final leaderboard plus the caller's own rank. Valid
// only once the session has ended.
func (c *Coordinator) Results(_ context.Context, code, playerID string) (domain.SessionResults, error) {
	session, ok := c.registry.Get(code)
	if !ok {
		return domain.SessionResults{}, domain.ErrSessionNotFound
	}
	return session.Results(playerID)
}

// EndSession terminates the session; repeated calls are no-ops.
func (c *Coordinator) EndSession(_ context.Context, code string) error {
	session, ok := c.registry.Get(code)
	if !ok {
		return domain.ErrSessionNotFound
	}
	session.End()
	return nil
}

// endHook archives the final leaderboard and clears store liveness markers.
// Archiving is best-effort and off the request path; the in-memory results
// stay authoritative either way.
func (c *Coordinator) endHook(code string) func(domain.Leaderboard) {
	return func(final domain.Leaderboard) {
		c.registry.MarkEnded(code)
		if c.archiver == nil {
			return
		}
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := c.archiver.Archive(ctx, code, final); err != nil {
				log.Printf("archive results for session %s: %v", code, err)
			}
		}()
	}
}

func validateQuiz(questions []domain.Question, durationSeconds int) error {
	if len(questions) == 0 {
		return fmt.Errorf("%w: empty question list", domain.ErrInvalidQuiz)
	}
	if durationSeconds <= 0 {
		return fmt.Errorf("%w: non-positive duration", domain.ErrInvalidQuiz)
	}
	for i, q := range questions {
		if len(q.Options) != 4 {
			return fmt.Errorf("%w: question %d needs exactly 4 options", domain.ErrInvalidQuiz, i)
		}
		seen := make(map[string]struct{}, len(q.Options))
		for _, opt := range q.Options {
			if _, dup := seen[opt]; dup {
				return fmt.Errorf("%w: question %d has duplicate option %q", domain.ErrInvalidQuiz, i, opt)
			}
			seen[opt] = struct{}{}
		}
		if !q.HasOption(q.CorrectAnswer) {
			return fmt.Errorf("%w: question %d answer not among options", domain.ErrInvalidQuiz, i)
		}
	}
	return nil
}
