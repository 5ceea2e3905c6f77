package http

import (
	"context"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func TestWebSocketAnswerFlow(t *testing.T) {
	server, _ := newTestServer(t)

	createResp, created := postJSON(t, server.URL+"/sessions", map[string]any{"quizId": "demo"})
	if createResp.StatusCode != 201 {
		t.Fatalf("create session: status %d", createResp.StatusCode)
	}
	code := created["code"].(string)

	u := "ws" + server.URL[len("http"):] + "/ws?code=" + code + "&name=Alice"
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	// Expect joined first, then the initial leaderboard and clock snapshots
	// in either order.
	msgType, payload := readNext(conn, t, "joined")
	if payload["playerId"] == nil {
		t.Fatalf("expected player in joined payload, got %v", payload)
	}
	seen := map[string]bool{}
	for i := 0; i < 2; i++ {
		msgType, _ = readNext(conn, t, "")
		seen[msgType] = true
	}
	if !seen["leaderboard"] || !seen["clock"] {
		t.Fatalf("expected initial leaderboard and clock, got %v", seen)
	}

	answer := map[string]any{
		"type": "answer",
		"payload": map[string]any{
			"questionIndex": 0,
			"chosenOption":  "Paris",
		},
	}
	if err := conn.WriteJSON(answer); err != nil {
		t.Fatalf("write answer: %v", err)
	}

	answerSeen := false
	leaderboardSeen := false
	for i := 0; i < 5 && !(answerSeen && leaderboardSeen); i++ {
		typ, payload := readNext(conn, t, "")
		switch typ {
		case "answerResult":
			answerSeen = true
			if payload["accepted"] != true || payload["isCorrect"] != true {
				t.Fatalf("expected accepted correct result, got %v", payload)
			}
		case "leaderboard":
			leaderboardSeen = true
		}
	}
	if !answerSeen || !leaderboardSeen {
		t.Fatalf("expected answerResult and leaderboard, got answerResult=%v leaderboard=%v", answerSeen, leaderboardSeen)
	}
}

func TestWebSocketDeliversSessionEnded(t *testing.T) {
	server, coordinator := newTestServer(t)

	_, created := postJSON(t, server.URL+"/sessions", map[string]any{"quizId": "demo"})
	code := created["code"].(string)

	u := "ws" + server.URL[len("http"):] + "/ws?code=" + code + "&name=Bob"
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	readNext(conn, t, "joined")

	if err := coordinator.EndSession(context.Background(), code); err != nil {
		t.Fatalf("end session: %v", err)
	}

	for i := 0; i < 6; i++ {
		typ, payload := readNext(conn, t, "")
		if typ == "sessionEnded" {
			if payload["ended"] != true {
				t.Fatalf("expected terminal payload, got %v", payload)
			}
			return
		}
	}
	t.Fatalf("never received sessionEnded event")
}

func TestWebSocketRejectsMissingParams(t *testing.T) {
	server, _ := newTestServer(t)

	u := "ws" + server.URL[len("http"):] + "/ws?code=123456"
	_, resp, err := websocket.DefaultDialer.Dial(u, nil)
	if err == nil {
		t.Fatalf("expected dial to fail without name or playerId")
	}
	if resp == nil || resp.StatusCode != 400 {
		t.Fatalf("expected 400 handshake rejection, got %+v", resp)
	}
}

func readNext(conn *websocket.Conn, t *testing.T, expect string) (string, map[string]any) {
	t.Helper()
	var msg struct {
		Type    string         `json:"type"`
		Payload map[string]any `json:"payload"`
	}
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read json: %v", err)
	}
	if expect != "" && msg.Type != expect {
		t.Fatalf("expected type %s, got %s", expect, msg.Type)
	}
	return msg.Type, msg.Payload
}
