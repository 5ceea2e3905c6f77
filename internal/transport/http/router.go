package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"arena-session-service/internal/app"
	"arena-session-service/internal/domain"
)

// API exposes the coordinator over REST plus the websocket streams.
type API struct {
	coordinator *app.Coordinator
	ws          *WSHandler
}

func NewAPI(coordinator *app.Coordinator) *API {
	return &API{coordinator: coordinator, ws: NewWSHandler(coordinator)}
}

// Router wires all routes.
func (a *API) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("ok"))
	}).Methods(http.MethodGet)

	r.HandleFunc("/sessions", a.createSession).Methods(http.MethodPost)
	r.HandleFunc("/sessions/{code}/join", a.join).Methods(http.MethodPost)
	r.HandleFunc("/sessions/{code}/answers", a.submitAnswer).Methods(http.MethodPost)
	r.HandleFunc("/sessions/{code}/questions", a.questions).Methods(http.MethodGet)
	r.HandleFunc("/sessions/{code}/players", a.listPlayers).Methods(http.MethodGet)
	r.HandleFunc("/sessions/{code}/leaderboard", a.leaderboard).Methods(http.MethodGet)
	r.HandleFunc("/sessions/{code}/results", a.results).Methods(http.MethodGet)
	r.HandleFunc("/sessions/{code}/end", a.endSession).Methods(http.MethodPost)
	r.HandleFunc("/ws", a.ws.ServeWS)
	return r
}

type createSessionRequest struct {
	QuizID          string            `json:"quizId,omitempty"`
	Questions       []domain.Question `json:"questions,omitempty"`
	DurationSeconds int               `json:"durationSeconds,omitempty"`
}

func (a *API) createSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	var (
		code string
		err  error
	)
	if req.QuizID != "" {
		code, err = a.coordinator.CreateSessionFromQuiz(r.Context(), req.QuizID)
	} else {
		code, err = a.coordinator.CreateSession(r.Context(), req.Questions, req.DurationSeconds)
	}
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"code": code})
}

type joinRequest struct {
	Name string `json:"name"`
}

func (a *API) join(w http.ResponseWriter, r *http.Request) {
	var req joinRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	player, err := a.coordinator.Join(r.Context(), mux.Vars(r)["code"], req.Name)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, player)
}

type submitAnswerRequest struct {
	PlayerID      string `json:"playerId"`
	QuestionIndex int    `json:"questionIndex"`
	ChosenOption  string `json:"chosenOption"`
}

func (a *API) submitAnswer(w http.ResponseWriter, r *http.Request) {
	var req submitAnswerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.PlayerID == "" {
		writeError(w, http.StatusBadRequest, "playerId and answer fields are required")
		return
	}
	result, err := a.coordinator.SubmitAnswer(r.Context(), mux.Vars(r)["code"], req.PlayerID, req.QuestionIndex, req.ChosenOption)
	if err != nil {
		if reason, ok := rejectionReason(err); ok {
			result.Accepted = false
			result.Reason = reason
			writeJSON(w, http.StatusOK, result)
			return
		}
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// questionView strips the correct answer before questions leave the server.
type questionView struct {
	Index   int      `json:"index"`
	Text    string   `json:"text"`
	Options []string `json:"options"`
	Image   string   `json:"image,omitempty"`
}

func (a *API) questions(w http.ResponseWriter, r *http.Request) {
	questions, err := a.coordinator.Questions(r.Context(), mux.Vars(r)["code"])
	if err != nil {
		writeDomainError(w, err)
		return
	}
	views := make([]questionView, len(questions))
	for i, q := range questions {
		views[i] = questionView{Index: i, Text: q.Text, Options: q.Options, Image: q.Image}
	}
	writeJSON(w, http.StatusOK, views)
}

func (a *API) listPlayers(w http.ResponseWriter, r *http.Request) {
	players, err := a.coordinator.ListPlayers(r.Context(), mux.Vars(r)["code"])
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, players)
}

func (a *API) leaderboard(w http.ResponseWriter, r *http.Request) {
	lb, err := a.coordinator.Leaderboard(r.Context(), mux.Vars(r)["code"])
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, lb)
}

func (a *API) results(w http.ResponseWriter, r *http.Request) {
	playerID := r.URL.Query().Get("playerId")
	if playerID == "" {
		writeError(w, http.StatusBadRequest, "playerId query parameter is required")
		return
	}
	res, err := a.coordinator.Results(r.Context(), mux.Vars(r)["code"], playerID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (a *API) endSession(w http.ResponseWriter, r *http.Request) {
	if err := a.coordinator.EndSession(r.Context(), mux.Vars(r)["code"]); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// rejectionReason maps expected submission outcomes to the wire reasons. The
// spec-level contract treats these as ordinary responses, not HTTP failures:
// a duplicate means "already recorded", never a retryable fault.
func rejectionReason(err error) (string, bool) {
	switch {
	case errors.Is(err, domain.ErrSessionEnded):
		return "SessionEnded", true
	case errors.Is(err, domain.ErrDuplicateAnswer):
		return "DuplicateAnswer", true
	case errors.Is(err, domain.ErrInvalidQuestionIndex):
		return "InvalidQuestionIndex", true
	case errors.Is(err, domain.ErrInvalidOption):
		return "InvalidOption", true
	}
	return "", false
}

func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrSessionNotFound), errors.Is(err, domain.ErrQuizNotFound), errors.Is(err, domain.ErrPlayerNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrSessionEnded), errors.Is(err, domain.ErrSessionActive):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrInvalidQuiz):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrCapacityExhausted), errors.Is(err, domain.ErrStorageUnavailable):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
