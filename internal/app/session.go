package app

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"arena-session-service/internal/domain"
)

// PointsPerCorrect is the flat score delta for a correct answer. No partial
// credit and no time bonus; a different scheme would be a separate policy.
const PointsPerCorrect = 10

// AnswerLedger is the authority for the at-most-once answer constraint.
// Record must atomically check-and-insert for the (code, player, question)
// key: it returns false when a record already exists, and an error only for
// storage failures (never for duplicates).
type AnswerLedger interface {
	Record(ctx context.Context, code string, rec domain.AnswerRecord) (bool, error)
}

// Session is the live state of one quiz run: the roster of players, the
// shared countdown, and the subscriber sets receiving pushed updates.
// All mutable state is guarded by mu; sessions are independent units of
// concurrency and never share state.
type Session struct {
	code     string
	quest    []domain.Question
	duration time.Duration
	ledger   AnswerLedger
	now      func() time.Time
	onEnd    func(domain.Leaderboard)

	mu        sync.RWMutex
	startedAt time.Time
	endedAt   time.Time
	players   map[string]*domain.Player
	lbSubs    map[chan domain.Leaderboard]struct{}
	clockSubs map[chan domain.ClockUpdate]struct{}
	stopClock chan struct{}
}

// SessionConfig carries everything a session needs at construction. Questions
// and duration are fixed for the session's lifetime.
type SessionConfig struct {
	Code            string
	Questions       []domain.Question
	DurationSeconds int
	Ledger          AnswerLedger
	// Now is test-only for deterministic timestamps; defaults to time.Now.
	Now func() time.Time
	// OnEnd is invoked exactly once, off the session lock, with the final leaderboard.
	OnEnd func(domain.Leaderboard)
}

func NewSession(cfg SessionConfig) *Session {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Session{
		code:      cfg.Code,
		quest:     cfg.Questions,
		duration:  time.Duration(cfg.DurationSeconds) * time.Second,
		ledger:    cfg.Ledger,
		now:       now,
		onEnd:     cfg.OnEnd,
		players:   make(map[string]*domain.Player),
		lbSubs:    make(map[chan domain.Leaderboard]struct{}),
		clockSubs: make(map[chan domain.ClockUpdate]struct{}),
	}
}

func (s *Session) Code() string { return s.code }

// Questions returns the immutable question list.
func (s *Session) Questions() []domain.Question { return s.quest }

// Join registers a new player. Duplicate names are allowed and always create
// a distinct player; names are not identity. The first join starts the
// shared countdown.
func (s *Session) Join(name string) (domain.Player, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.endedAt.IsZero() {
		return domain.Player{}, domain.ErrSessionEnded
	}
	if s.startedAt.IsZero() {
		s.startedAt = s.now()
		s.stopClock = make(chan struct{})
		go s.runClock(s.stopClock)
	}

	p := &domain.Player{
		ID:        uuid.NewString(),
		Name:      name,
		AvatarRef: domain.AvatarRefFor(name),
		JoinedAt:  s.now(),
	}
	s.players[p.ID] = p
	s.broadcastLocked()
	return *p, nil
}

// Players returns the roster in no particular order; ordering is the
// leaderboard's concern.
func (s *Session) Players() []domain.Player {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Player, 0, len(s.players))
	for _, p := range s.players {
		out = append(out, *p)
	}
	return out
}

// Submit validates and records one answer. The endedAt check, the ledger
// check-and-insert, and the score update all happen under the session lock,
// so concurrent duplicates resolve to exactly one accepted record and an
// expiring clock can never leave an accepted-but-unscored answer behind.
func (s *Session) Submit(ctx context.Context, playerID string, questionIndex int, chosenOption string) (domain.AnswerResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.endedAt.IsZero() {
		return domain.AnswerResult{QuestionIndex: questionIndex}, domain.ErrSessionEnded
	}
	p, ok := s.players[playerID]
	if !ok {
		return domain.AnswerResult{QuestionIndex: questionIndex}, domain.ErrPlayerNotFound
	}
	if questionIndex < 0 || questionIndex >= len(s.quest) {
		return domain.AnswerResult{QuestionIndex: questionIndex}, domain.ErrInvalidQuestionIndex
	}
	q := s.quest[questionIndex]
	if !q.HasOption(chosenOption) {
		return domain.AnswerResult{QuestionIndex: questionIndex}, domain.ErrInvalidOption
	}

	rec := domain.AnswerRecord{
		PlayerID:      playerID,
		QuestionIndex: questionIndex,
		ChosenOption:  chosenOption,
		Correct:       chosenOption == q.CorrectAnswer,
		SubmittedAt:   s.now(),
	}
	accepted, err := s.ledger.Record(ctx, s.code, rec)
	if err != nil {
		return domain.AnswerResult{QuestionIndex: questionIndex}, fmt.Errorf("%w: %v", domain.ErrStorageUnavailable, err)
	}
	if !accepted {
		return domain.AnswerResult{QuestionIndex: questionIndex}, domain.ErrDuplicateAnswer
	}

	awarded := 0
	if rec.Correct {
		p.Score += PointsPerCorrect
		awarded = PointsPerCorrect
	}
	s.broadcastLocked()

	return domain.AnswerResult{
		Accepted:      true,
		Correct:       rec.Correct,
		Awarded:       awarded,
		TotalScore:    p.Score,
		QuestionIndex: questionIndex,
	}, nil
}

// Leaderboard returns a consistent snapshot of the current ranking.
func (s *Session) Leaderboard() domain.Leaderboard {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

// Results is valid only once the session has ended and returns the caller's
// rank computed by the same ordering as every leaderboard read.
func (s *Session) Results(playerID string) (domain.SessionResults, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.endedAt.IsZero() {
		return domain.SessionResults{}, domain.ErrSessionActive
	}
	p, ok := s.players[playerID]
	if !ok {
		return domain.SessionResults{}, domain.ErrPlayerNotFound
	}
	lb := s.snapshotLocked()
	rank := 0
	for _, e := range lb.Entries {
		if e.PlayerID == playerID {
			rank = e.Rank
			break
		}
	}
	return domain.SessionResults{Rank: rank, Score: p.Score, Leaderboard: lb}, nil
}

// SubscribeLeaderboard registers a push channel for score changes. The
// channel receives the current snapshot immediately and is closed when the
// session ends or the cancel function runs; the final snapshot is delivered
// before close.
func (s *Session) SubscribeLeaderboard() (<-chan domain.Leaderboard, func()) {
	ch := make(chan domain.Leaderboard, 8)

	// The initial send happens under the lock so a racing End cannot close
	// the channel first; the fresh buffer guarantees it never blocks.
	s.mu.Lock()
	initial := s.snapshotLocked()
	ended := !s.endedAt.IsZero()
	if !ended {
		s.lbSubs[ch] = struct{}{}
	}
	ch <- initial
	s.mu.Unlock()

	if ended {
		close(ch)
		return ch, func() {}
	}

	cancel := func() {
		s.mu.Lock()
		if _, ok := s.lbSubs[ch]; ok {
			delete(s.lbSubs, ch)
			close(ch)
		}
		s.mu.Unlock()
	}
	return ch, cancel
}

// SubscribeClock registers a push channel for countdown ticks. The terminal
// update carries Ended=true; the channel is closed right after it.
func (s *Session) SubscribeClock() (<-chan domain.ClockUpdate, func()) {
	ch := make(chan domain.ClockUpdate, 8)

	s.mu.Lock()
	initial := s.clockUpdateLocked()
	if !initial.Ended {
		s.clockSubs[ch] = struct{}{}
	}
	ch <- initial
	s.mu.Unlock()

	if initial.Ended {
		close(ch)
		return ch, func() {}
	}

	cancel := func() {
		s.mu.Lock()
		if _, ok := s.clockSubs[ch]; ok {
			delete(s.clockSubs, ch)
			close(ch)
		}
		s.mu.Unlock()
	}
	return ch, cancel
}

// SecondsRemaining reports the shared countdown. Before the first join it is
// the full duration; a late joiner sees time relative to startedAt, never a
// fresh countdown.
func (s *Session) SecondsRemaining() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.remainingLocked()
}

// Ended reports whether endedAt has been set.
func (s *Session) Ended() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return !s.endedAt.IsZero()
}

// End terminates the session: idempotent, sets endedAt once, stops the clock,
// delivers terminal events to every open subscription, and closes them. No
// answer is accepted once it returns.
func (s *Session) End() {
	s.mu.Lock()
	if !s.endedAt.IsZero() {
		s.mu.Unlock()
		return
	}
	s.endedAt = s.now()
	if s.stopClock != nil {
		close(s.stopClock)
		s.stopClock = nil
	}

	final := s.snapshotLocked()
	for ch := range s.lbSubs {
		sendLatest(ch, final)
		close(ch)
	}
	s.lbSubs = make(map[chan domain.Leaderboard]struct{})

	terminal := domain.ClockUpdate{SecondsRemaining: 0, Ended: true}
	for ch := range s.clockSubs {
		sendLatest(ch, terminal)
		close(ch)
	}
	s.clockSubs = make(map[chan domain.ClockUpdate]struct{})

	onEnd := s.onEnd
	s.onEnd = nil
	s.mu.Unlock()

	if onEnd != nil {
		onEnd(final)
	}
}

// runClock ticks once a second and ends the session when the shared deadline
// passes. It runs in its own goroutine so client-facing calls never block on it.
func (s *Session) runClock(stop <-chan struct{}) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			s.mu.Lock()
			if !s.endedAt.IsZero() {
				s.mu.Unlock()
				return
			}
			remaining := s.remainingLocked()
			if remaining <= 0 {
				s.mu.Unlock()
				s.End()
				return
			}
			update := domain.ClockUpdate{SecondsRemaining: remaining}
			for ch := range s.clockSubs {
				sendLatest(ch, update)
			}
			s.mu.Unlock()
		}
	}
}

func (s *Session) remainingLocked() int {
	if !s.endedAt.IsZero() {
		return 0
	}
	if s.startedAt.IsZero() {
		return int(s.duration / time.Second)
	}
	left := s.startedAt.Add(s.duration).Sub(s.now())
	if left <= 0 {
		return 0
	}
	// Round up so clients never see 0 while submissions are still accepted.
	return int((left + time.Second - 1) / time.Second)
}

func (s *Session) clockUpdateLocked() domain.ClockUpdate {
	if !s.endedAt.IsZero() {
		return domain.ClockUpdate{SecondsRemaining: 0, Ended: true}
	}
	return domain.ClockUpdate{SecondsRemaining: s.remainingLocked()}
}

func (s *Session) broadcastLocked() {
	lb := s.snapshotLocked()
	for ch := range s.lbSubs {
		sendLatest(ch, lb)
	}
}

func (s *Session) snapshotLocked() domain.Leaderboard {
	entries := make([]domain.LeaderboardEntry, 0, len(s.players))
	for _, p := range s.players {
		entries = append(entries, domain.LeaderboardEntry{
			PlayerID: p.ID,
			Name:     p.Name,
			Score:    p.Score,
		})
	}

	// Total order: score desc, name asc, then player id asc. Names are not
	// unique, so the id leg keeps equal (score, name) pairs reproducible.
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Score != entries[j].Score {
			return entries[i].Score > entries[j].Score
		}
		if entries[i].Name != entries[j].Name {
			return entries[i].Name < entries[j].Name
		}
		return entries[i].PlayerID < entries[j].PlayerID
	})
	for i := range entries {
		entries[i].Rank = i + 1
	}

	return domain.Leaderboard{
		Code:      s.code,
		Entries:   entries,
		Final:     !s.endedAt.IsZero(),
		UpdatedAt: s.now(),
	}
}

// sendLatest delivers without blocking: a slow subscriber has its stale
// update replaced rather than stalling the broadcast.
func sendLatest[T any](ch chan T, v T) {
	select {
	case ch <- v:
	default:
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- v:
		default:
		}
	}
}
