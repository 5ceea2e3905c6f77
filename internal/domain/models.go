package domain

import (
	"strings"
	"time"
)

// Question models an MCQ question with exactly one correct option.
// Text may embed delimited math markup; Image is an optional URI.
// Both are opaque to this service.
type Question struct {
	Text          string   `json:"text"`
	Options       []string `json:"options"`
	CorrectAnswer string   `json:"correctAnswer"`
	Image         string   `json:"image,omitempty"`
}

// HasOption reports whether the given choice is one of the question's options.
func (q Question) HasOption(choice string) bool {
	for _, opt := range q.Options {
		if opt == choice {
			return true
		}
	}
	return false
}

// Quiz is the immutable content a session is run against: an ordered question
// list plus the countdown length shared by all participants.
type Quiz struct {
	ID              string     `json:"id"`
	Questions       []Question `json:"questions"`
	DurationSeconds int        `json:"durationSeconds"`
}

// Player is one participant's identity within a single session. Score only
// ever grows; it is mutated exclusively by the answer-accept path.
type Player struct {
	ID        string    `json:"playerId"`
	Name      string    `json:"name"`
	AvatarRef string    `json:"avatarRef"`
	Score     int       `json:"score"`
	JoinedAt  time.Time `json:"joinedAt"`
}

// AnswerRecord is the append-only record of one accepted submission.
// At most one exists per (player, question index).
type AnswerRecord struct {
	PlayerID      string    `json:"playerId"`
	QuestionIndex int       `json:"questionIndex"`
	ChosenOption  string    `json:"chosenOption"`
	Correct       bool      `json:"correct"`
	SubmittedAt   time.Time `json:"submittedAt"`
}

// AnswerResult summarizes the outcome of a submission for the caller.
type AnswerResult struct {
	Accepted      bool   `json:"accepted"`
	Correct       bool   `json:"isCorrect"`
	Awarded       int    `json:"awarded"`
	TotalScore    int    `json:"totalScore"`
	QuestionIndex int    `json:"questionIndex"`
	Reason        string `json:"reason,omitempty"`
}

// LeaderboardEntry is a ranked view of one player.
type LeaderboardEntry struct {
	Rank     int    `json:"rank"`
	PlayerID string `json:"playerId"`
	Name     string `json:"name"`
	Score    int    `json:"score"`
}

// Leaderboard captures the ordered scoreboard for a session at a point in
// time: score descending, ties by name ascending then player id ascending so
// the order is reproducible.
type Leaderboard struct {
	Code      string             `json:"code"`
	Entries   []LeaderboardEntry `json:"entries"`
	Final     bool               `json:"final"`
	UpdatedAt time.Time          `json:"updatedAt"`
}

// ClockUpdate is one tick of the shared session countdown. Ended marks the
// terminal event; no further updates follow it.
type ClockUpdate struct {
	SecondsRemaining int  `json:"secondsRemaining"`
	Ended            bool `json:"ended"`
}

// SessionResults is the post-session view for one caller: their own rank and
// score plus the final leaderboard, ranked by the normal ordering rules.
type SessionResults struct {
	Rank        int         `json:"rank"`
	Score       int         `json:"score"`
	Leaderboard Leaderboard `json:"leaderboard"`
}

// AvatarRefFor derives a stable avatar URI from a display name. Distinct
// names may collide after whitespace stripping; that is acceptable.
func AvatarRefFor(name string) string {
	slug := strings.Join(strings.Fields(name), "")
	if slug == "" {
		slug = "guest"
	}
	return "https://robohash.org/" + slug + ".png?size=40x40&set=set4"
}
