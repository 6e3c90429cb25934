// Package main runs a demo WebSocket viewer for the dashboard frame stream.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/gorilla/websocket"
)

type wsMessage struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type frame struct {
	Seq    uint64 `json:"seq"`
	Status struct {
		Connected         bool              `json:"connected"`
		DispatchSucceeded bool              `json:"dispatchSucceeded"`
		Taxis             int               `json:"taxis"`
		Clusters          int               `json:"clusters"`
		Assignments       int               `json:"assignments"`
		Reasons           map[string]string `json:"reasons"`
	} `json:"status"`
}

func main() {
	request := flag.Bool("request", false, "send request_baecha after connecting")
	click := flag.String("click", "", "open the popup of this cluster id")
	wait := flag.Duration("wait", 10*time.Second, "how long to watch frames")
	flag.Parse()

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	u := url.URL{Scheme: "ws", Host: "localhost:" + port, Path: "/ws"}
	c, _, err := websocket.DefaultDialer.Dial(u.String(), http.Header{})
	if err != nil {
		log.Fatal("dial:", err)
	}
	defer func() { _ = c.Close() }()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			var m wsMessage
			if err := c.ReadJSON(&m); err != nil {
				log.Printf("read: %v", err)
				return
			}
			switch m.Type {
			case "frame":
				var f frame
				if err := json.Unmarshal(m.Payload, &f); err != nil {
					log.Printf("bad frame: %v", err)
					continue
				}
				log.Printf("frame #%d connected=%v succeeded=%v taxis=%d clusters=%d assignments=%d reasons=%v",
					f.Seq, f.Status.Connected, f.Status.DispatchSucceeded, f.Status.Taxis, f.Status.Clusters, f.Status.Assignments, f.Status.Reasons)
			default:
				log.Printf("WS <- %s %s: %s", m.Type, m.ID, string(m.Payload))
			}
		}
	}()

	if *request {
		if err := c.WriteJSON(wsMessage{Type: "request_baecha", ID: "req-1"}); err != nil {
			log.Fatal(err)
		}
	}
	if *click != "" {
		pl, _ := json.Marshal(map[string]string{"clusterId": *click})
		if err := c.WriteJSON(wsMessage{Type: "cluster_click", ID: fmt.Sprintf("click-%s", *click), Payload: pl}); err != nil {
			log.Fatal(err)
		}
	}

	select {
	case <-time.After(*wait):
	case <-done:
	}
}
