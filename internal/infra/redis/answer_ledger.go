package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"arena-session-service/internal/domain"
)

// AnswerLedger enforces the at-most-once answer constraint in Redis.
// Each record is one SETNX on the (code, player, question) key, which stays
// atomic across processes and survives restarts; retried submissions after a
// crash still land on the existing key and come back as duplicates.
type AnswerLedger struct {
	client *redis.Client
	ttl    time.Duration
}

// NewAnswerLedger retains records for ttl after write; ttl must comfortably
// outlive the longest session duration.
func NewAnswerLedger(client *redis.Client, ttl time.Duration) *AnswerLedger {
	return &AnswerLedger{client: client, ttl: ttl}
}

func (l *AnswerLedger) Record(ctx context.Context, code string, rec domain.AnswerRecord) (bool, error) {
	payload, err := json.Marshal(rec)
	if err != nil {
		return false, fmt.Errorf("marshal answer: %w", err)
	}
	accepted, err := l.client.SetNX(ctx, l.key(code, rec.PlayerID, rec.QuestionIndex), payload, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("record answer: %w", err)
	}
	return accepted, nil
}

// Get returns the recorded answer for a key, if any.
func (l *AnswerLedger) Get(ctx context.Context, code, playerID string, questionIndex int) (domain.AnswerRecord, bool, error) {
	raw, err := l.client.Get(ctx, l.key(code, playerID, questionIndex)).Bytes()
	if err == redis.Nil {
		return domain.AnswerRecord{}, false, nil
	}
	if err != nil {
		return domain.AnswerRecord{}, false, fmt.Errorf("load answer: %w", err)
	}
	var rec domain.AnswerRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return domain.AnswerRecord{}, false, fmt.Errorf("unmarshal answer: %w", err)
	}
	return rec, true, nil
}

func (l *AnswerLedger) key(code, playerID string, questionIndex int) string {
	return "session:" + code + ":answer:" + playerID + ":" + strconv.Itoa(questionIndex)
}
