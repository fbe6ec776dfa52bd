// E2E test: connects two WebSocket clients to the same room through a live
// relay and checks presence notices and message relay in both directions.
// Usage: go run ./cmd/e2etest -relay ws://localhost:8080
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

var (
	relayURL = flag.String("relay", "ws://localhost:8080", "relay base URL")
	roomID   = flag.String("room", "", "room to use (random when empty)")
)

type message struct {
	Type         string          `json:"type"`
	ConnectionID string          `json:"connectionId"`
	RoomID       string          `json:"roomId"`
	UserCount    int             `json:"userCount"`
	Timestamp    int64           `json:"timestamp"`
	Code         string          `json:"code"`
	Data         json.RawMessage `json:"data"`
}

func main() {
	flag.Parse()
	log.SetFlags(log.Ltime | log.Lmicroseconds)

	room := *roomID
	if room == "" {
		room = "e2e-" + uuid.NewString()[:8]
	}
	url := *relayURL + "/room/" + room

	log.Println(">> Connecting A...")
	a, err := dial(url)
	if err != nil {
		log.Fatal("A connect:", err)
	}
	defer a.Close()
	welcomeA := expect(a, "connected")
	log.Printf("   A connected as %s (users=%d)", welcomeA.ConnectionID, welcomeA.UserCount)

	log.Println(">> Connecting B...")
	b, err := dial(url)
	if err != nil {
		log.Fatal("B connect:", err)
	}
	defer b.Close()
	welcomeB := expect(b, "connected")
	log.Printf("   B connected as %s (users=%d)", welcomeB.ConnectionID, welcomeB.UserCount)

	joined := expect(a, "user-joined")
	if joined.ConnectionID != welcomeB.ConnectionID {
		log.Fatalf("A saw join of %s, want %s", joined.ConnectionID, welcomeB.ConnectionID)
	}

	log.Println(">> A sending message...")
	send(a, `{"type":"chat","data":{"text":"hello from A"}}`)
	got := expect(b, "chat")
	if got.ConnectionID != welcomeA.ConnectionID {
		log.Fatalf("B got sender %s, want %s", got.ConnectionID, welcomeA.ConnectionID)
	}
	log.Printf("   B received %s ✓", string(got.Data))

	log.Println(">> B sending message...")
	send(b, `{"type":"chat","data":{"text":"hello from B"}}`)
	got = expect(a, "chat")
	log.Printf("   A received %s ✓", string(got.Data))

	log.Println(">> B sending invalid message...")
	send(b, `{}`)
	if e := expect(b, "error"); e.Code != "INVALID_MESSAGE" {
		log.Fatalf("B got error code %s, want INVALID_MESSAGE", e.Code)
	}

	log.Println(">> B leaving...")
	_ = b.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	left := expect(a, "user-left")
	log.Printf("   A saw user-left (users=%d) ✓", left.UserCount)

	fmt.Println()
	log.Println("═══════════════════════════════")
	log.Println("  E2E TEST PASSED ✓")
	log.Println("═══════════════════════════════")
	os.Exit(0)
}

func dial(url string) (*websocket.Conn, error) {
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	return conn, err
}

func send(conn *websocket.Conn, payload string) {
	if err := conn.WriteMessage(websocket.TextMessage, []byte(payload)); err != nil {
		log.Fatal("send:", err)
	}
}

// expect reads until a message of type typ arrives.
func expect(conn *websocket.Conn, typ string) message {
	deadline := time.Now().Add(5 * time.Second)
	for {
		_ = conn.SetReadDeadline(deadline)
		_, raw, err := conn.ReadMessage()
		if err != nil {
			log.Fatalf("waiting for %s: %v", typ, err)
		}
		var m message
		if err := json.Unmarshal(raw, &m); err != nil {
			log.Fatalf("bad message %q: %v", raw, err)
		}
		if m.Type == typ {
			return m
		}
	}
}
