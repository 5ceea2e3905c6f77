package http

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/gorilla/websocket"

	"arena-session-service/internal/app"
	"arena-session-service/internal/domain"
)

// WSHandler serves the push side of the protocol: one socket carries the
// leaderboard stream, the clock stream, and answer submissions for a player.
type WSHandler struct {
	coordinator *app.Coordinator
	upgrader    websocket.Upgrader
}

func NewWSHandler(coordinator *app.Coordinator) *WSHandler {
	return &WSHandler{
		coordinator: coordinator,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type answerPayload struct {
	QuestionIndex int    `json:"questionIndex"`
	ChosenOption  string `json:"chosenOption"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type errorPayload struct {
	Message string `json:"message"`
}

// ServeWS upgrades the request and streams session events. Clients either
// present a playerId from an earlier REST join, or a name to join on the
// spot.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	playerID := r.URL.Query().Get("playerId")
	name := r.URL.Query().Get("name")
	if code == "" || (playerID == "" && name == "") {
		http.Error(w, "missing code and playerId or name", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	if playerID == "" {
		player, err := h.coordinator.Join(r.Context(), code, name)
		if err != nil {
			_ = conn.WriteJSON(outboundMessage[errorPayload]{Type: "error", Payload: errorPayload{Message: err.Error()}})
			return
		}
		playerID = player.ID
		_ = conn.WriteJSON(outboundMessage[domain.Player]{Type: "joined", Payload: player})
	}

	lbUpdates, lbCancel, err := h.coordinator.SubscribeLeaderboard(r.Context(), code)
	if err != nil {
		_ = conn.WriteJSON(outboundMessage[errorPayload]{Type: "error", Payload: errorPayload{Message: err.Error()}})
		return
	}
	defer lbCancel()

	clockUpdates, clockCancel, err := h.coordinator.SubscribeClock(r.Context(), code)
	if err != nil {
		_ = conn.WriteJSON(outboundMessage[errorPayload]{Type: "error", Payload: errorPayload{Message: err.Error()}})
		return
	}
	defer clockCancel()

	send := make(chan outboundMessage[any], 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	pumpDone := make(chan struct{})

	// Single writer goroutine; gorilla connections do not allow concurrent writes.
	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				log.Printf("ws write error: %v", err)
				return
			}
		}
	}()

	go func() {
		defer close(pumpDone)
		for lbUpdates != nil || clockUpdates != nil {
			select {
			case update, ok := <-lbUpdates:
				if !ok {
					lbUpdates = nil
					continue
				}
				select {
				case send <- outboundMessage[any]{Type: "leaderboard", Payload: update}:
				case <-closeSignals:
					return
				}
			case update, ok := <-clockUpdates:
				if !ok {
					clockUpdates = nil
					continue
				}
				msgType := "clock"
				if update.Ended {
					msgType = "sessionEnded"
				}
				select {
				case send <- outboundMessage[any]{Type: msgType, Payload: update}:
				case <-closeSignals:
					return
				}
			case <-closeSignals:
				return
			}
		}
	}()

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		switch inbound.Type {
		case "answer":
			var payload answerPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "invalid answer payload"}}
				continue
			}
			result, err := h.coordinator.SubmitAnswer(r.Context(), code, playerID, payload.QuestionIndex, payload.ChosenOption)
			if err != nil {
				if reason, ok := rejectionReason(err); ok {
					result.Accepted = false
					result.Reason = reason
					send <- outboundMessage[any]{Type: "answerResult", Payload: result}
					continue
				}
				send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: err.Error()}}
				continue
			}
			send <- outboundMessage[any]{Type: "answerResult", Payload: result}
		default:
			send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "unsupported message type"}}
		}
	}

	close(closeSignals)
	<-pumpDone
	close(send)
	<-writerDone
}
