package server

import (
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// handleWebSocket upgrades to WebSocket and streams messages to the client.
func (s *Server) handleWebSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("websocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	// Subscribe to the hub for messages.
	messages := s.hub.Subscribe()

	// Read pump — detect client disconnect.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				conn.Close()
				return
			}
		}
	}()

	// Write pump — send messages as JSON.
	for msg := range messages {
		frame := struct {
			Timestamp string `json:"timestamp"`
			Direction string `json:"direction"`
			SrcIP     string `json:"srcip"`
			SrcPort   int    `json:"srcport"`
			DstIP     string `json:"dstip"`
			DstPort   int    `json:"dstport"`
			Proto     string `json:"proto"`
			Method    string `json:"method"`
			Body      string `json:"body"`
			Source    string `json:"source"`
		}{
			Timestamp: msg.Timestamp.Format(time.RFC3339Nano),
			Direction: string(msg.Direction),
			SrcIP:     msg.SrcIP,
			SrcPort:   msg.SrcPort,
			DstIP:     msg.DstIP,
			DstPort:   msg.DstPort,
			Proto:     msg.Proto,
			Method:    msg.Method,
			Body:      msg.Body,
			Source:    msg.Source,
		}

		if err := conn.WriteJSON(frame); err != nil {
			log.Printf("websocket write failed: %v", err)
			return
		}
	}
}
