package domain

import "errors"

var (
	// ErrSessionNotFound is returned when no live session exists for a code.
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionEnded is returned for joins and submissions after endedAt is set.
	ErrSessionEnded = errors.New("session has ended")
	// ErrSessionActive is returned when results are requested before the session ends.
	ErrSessionActive = errors.New("session still active")
	// ErrPlayerNotFound is returned when a player id is unknown to the session.
	ErrPlayerNotFound = errors.New("player not found in session")
	// ErrInvalidQuestionIndex indicates a question index outside the session's question list.
	ErrInvalidQuestionIndex = errors.New("question index out of range")
	// ErrInvalidOption indicates a chosen option that is not among the question's options.
	ErrInvalidOption = errors.New("option not part of question")
	// ErrDuplicateAnswer indicates the (player, question) pair already has a
	// recorded answer. Callers should treat it as "already recorded", not retry.
	ErrDuplicateAnswer = errors.New("answer already recorded")
	// ErrCapacityExhausted is returned when session code generation runs out of retries.
	ErrCapacityExhausted = errors.New("no free session code")
	// ErrInvalidQuiz indicates question content that violates the quiz shape
	// (option count, distinctness, answer membership, duration).
	ErrInvalidQuiz = errors.New("quiz failed validation")
	// ErrQuizNotFound indicates the quiz content could not be loaded.
	ErrQuizNotFound = errors.New("quiz not found")
	// ErrStorageUnavailable wraps transient collaborator failures; callers may retry.
	ErrStorageUnavailable = errors.New("storage unavailable")
)
