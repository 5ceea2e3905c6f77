package memory

import (
	"context"
	"strconv"
	"sync"

	"arena-session-service/internal/domain"
)

// AnswerLedger is the in-memory implementation of app.AnswerLedger: an
// append-only map whose check-and-insert runs under one mutex, making the
// at-most-once guarantee hold for concurrent duplicates.
type AnswerLedger struct {
	mu      sync.Mutex
	records map[string]domain.AnswerRecord
}

func NewAnswerLedger() *AnswerLedger {
	return &AnswerLedger{records: make(map[string]domain.AnswerRecord)}
}

func (l *AnswerLedger) Record(_ context.Context, code string, rec domain.AnswerRecord) (bool, error) {
	key := answerKey(code, rec.PlayerID, rec.QuestionIndex)
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, exists := l.records[key]; exists {
		return false, nil
	}
	l.records[key] = rec
	return true, nil
}

// Get returns the recorded answer for a key, if any.
func (l *AnswerLedger) Get(code, playerID string, questionIndex int) (domain.AnswerRecord, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	rec, ok := l.records[answerKey(code, playerID, questionIndex)]
	return rec, ok
}

func answerKey(code, playerID string, questionIndex int) string {
	return code + ":" + playerID + ":" + strconv.Itoa(questionIndex)
}
