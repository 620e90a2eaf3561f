package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
)

// Connects to the WebSocket bridge, prints every signal it receives, and
// sends periodic heartbeats so the server can measure round-trip latency.
// Useful as a manual probe when testing failover.
func main() {
	addr := flag.String("addr", "ws://localhost:8765/ws", "WebSocket bridge URL")
	heartbeatSec := flag.Int("heartbeat", 5, "heartbeat interval in seconds")
	flag.Parse()

	conn, _, err := websocket.DefaultDialer.Dial(*addr, nil)
	if err != nil {
		fmt.Printf("Failed to connect to %s: %v\n", *addr, err)
		os.Exit(1)
	}
	defer conn.Close()
	fmt.Printf("Connected to %s\n", *addr)

	done := make(chan struct{})
	go readLoop(conn, done)

	ticker := time.NewTicker(time.Duration(*heartbeatSec) * time.Second)
	defer ticker.Stop()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	for {
		select {
		case <-ticker.C:
			hb := map[string]interface{}{
				"type":             "heartbeat",
				"client_timestamp": time.Now().UnixNano(),
			}
			if err := conn.WriteJSON(hb); err != nil {
				fmt.Printf("Heartbeat failed: %v\n", err)
				return
			}
		case <-sigChan:
			fmt.Println("\nDisconnecting")
			conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			select {
			case <-done:
			case <-time.After(time.Second):
			}
			return
		case <-done:
			return
		}
	}
}

func readLoop(conn *websocket.Conn, done chan struct{}) {
	defer close(done)
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			fmt.Printf("Connection closed: %v\n", err)
			return
		}

		var msg map[string]interface{}
		if err := json.Unmarshal(data, &msg); err != nil {
			fmt.Printf("Unparseable message: %s\n", data)
			continue
		}

		switch msg["type"] {
		case "signal":
			fmt.Printf("[SIGNAL] %s %s confidence=%.2f reason=%v\n",
				msg["symbol"], msg["action"], asFloat(msg["confidence"]), msg["reason"])
		case "heartbeat_response":
			fmt.Printf("[HEARTBEAT] server avg latency %.2f ms\n", asFloat(msg["avg_latency_ms"]))
		default:
			fmt.Printf("[%v] %s\n", msg["type"], data)
		}
	}
}

func asFloat(v interface{}) float64 {
	f, _ := v.(float64)
	return f
}
