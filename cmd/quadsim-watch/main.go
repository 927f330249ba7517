package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/url"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
)

// quadsim-watch tails the quadsim state websocket and prints telemetry.
// Useful for watching a bench run without wiring a scope to the pins.

type stateEnvelope struct {
	Type string          `json:"type"`
	Ts   *time.Time      `json:"ts,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`
}

type tickData struct {
	PinA             int   `json:"pin_a"`
	PinB             int   `json:"pin_b"`
	TransitionCount  int32 `json:"transition_count"`
	TotalRevolutions int32 `json:"total_revolutions"`
	TickAccum        int32 `json:"tick_accum"`
}

type directionData struct {
	Direction string `json:"direction"`
}

type runStateData struct {
	RunState string `json:"run_state"`
}

type configData struct {
	RefreshIntervalMS int64   `json:"refresh_interval_ms"`
	ToothCount        int     `json:"tooth_count"`
	Mode              string  `json:"mode"`
	TickLimit         int32   `json:"tick_limit,omitempty"`
	RevPerSecond      float64 `json:"rev_per_second"`
}

func main() {
	var (
		wsURL = flag.String("ws", "ws://127.0.0.1:8791/ws/state", "quadsim state websocket URL")
		raw   = flag.Bool("raw", false, "Print raw JSON frames instead of formatted output")
	)
	flag.Parse()

	u, err := url.Parse(*wsURL)
	if err != nil {
		log.Fatalf("invalid websocket URL: %v", err)
	}

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)

	d := websocket.Dialer{
		HandshakeTimeout: 5 * time.Second,
	}

	log.Printf("connecting to %s...", u.String())
	conn, _, err := d.Dial(u.String(), nil)
	if err != nil {
		log.Fatalf("failed to connect: %v", err)
	}
	defer conn.Close()

	log.Printf("connected! (press Ctrl+C to exit)")

	// Mutex to protect concurrent writes to the websocket (close frame vs
	// pong replies written by the library).
	var writeMu sync.Mutex

	conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPingHandler(func(appData string) error {
		conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		writeMu.Lock()
		defer writeMu.Unlock()
		return conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(5*time.Second))
	})

	// Track revolutions for change detection so the default output stays
	// readable at high tick rates.
	var lastRevs *int32

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			messageType, message, err := conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					log.Printf("websocket error: %v", err)
				}
				return
			}
			if messageType != websocket.TextMessage {
				continue
			}

			if *raw {
				fmt.Printf("%s\n", string(message))
				continue
			}

			var env stateEnvelope
			if err := json.Unmarshal(message, &env); err != nil {
				fmt.Printf("[TEXT] %s\n", string(message))
				continue
			}
			printEnvelope(env, &lastRevs)
		}
	}()

	select {
	case <-sigc:
		log.Printf("shutting down...")
		writeMu.Lock()
		err := conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		writeMu.Unlock()
		if err != nil {
			log.Printf("error closing connection: %v", err)
		}
	case <-done:
		log.Printf("connection closed")
	}
}

func printEnvelope(env stateEnvelope, lastRevs **int32) {
	switch env.Type {
	case "state_init":
		pretty, _ := json.MarshalIndent(json.RawMessage(env.Data), "", "  ")
		fmt.Printf("[STATE]\n%s\n", string(pretty))

	case "tick":
		var t tickData
		if err := json.Unmarshal(env.Data, &t); err != nil {
			return
		}
		fmt.Printf("[TICK] a=%d b=%d transitions=%d accum=%d\n",
			t.PinA, t.PinB, t.TransitionCount, t.TickAccum)

		if *lastRevs == nil || **lastRevs != t.TotalRevolutions {
			fmt.Printf("[REV] %d\n", t.TotalRevolutions)
			v := t.TotalRevolutions
			*lastRevs = &v
		}

	case "direction_changed":
		var d directionData
		if err := json.Unmarshal(env.Data, &d); err != nil {
			return
		}
		fmt.Printf("[DIRECTION] %s\n", d.Direction)

	case "run_state_changed":
		var r runStateData
		if err := json.Unmarshal(env.Data, &r); err != nil {
			return
		}
		fmt.Printf("[RUN] %s\n", r.RunState)

	case "config_changed":
		var c configData
		if err := json.Unmarshal(env.Data, &c); err != nil {
			return
		}
		if c.Mode == "tick_limited" {
			fmt.Printf("[CONFIG] refresh=%dms teeth=%d mode=%s limit=%d rev/s=%.3f\n",
				c.RefreshIntervalMS, c.ToothCount, c.Mode, c.TickLimit, c.RevPerSecond)
		} else {
			fmt.Printf("[CONFIG] refresh=%dms teeth=%d mode=%s rev/s=%.3f\n",
				c.RefreshIntervalMS, c.ToothCount, c.Mode, c.RevPerSecond)
		}

	default:
		fmt.Printf("[%s] %s\n", env.Type, string(env.Data))
	}
}
