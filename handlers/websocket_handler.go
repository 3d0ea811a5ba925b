package handlers

import (
	"log"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/runbattle/runbattle-server/live"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// TODO: restrict to the frontend origin once it is deployed.
		return true
	},
}

type WebSocketHandler struct {
	hub *live.Hub
}

func NewWebSocketHandler(hub *live.Hub) *WebSocketHandler {
	return &WebSocketHandler{hub: hub}
}

// ServeWs upgrades the connection and subscribes the client to one battle's
// event stream. Clients connect to /ws/battles/{battleID}.
func (h *WebSocketHandler) ServeWs(w http.ResponseWriter, r *http.Request) {
	battleID, err := urlParamInt(r, "battleID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("Failed to upgrade connection for battle %d: %v", battleID, err)
		return
	}

	client := &live.Client{
		Hub:  h.hub,
		Conn: conn,
		Send: make(chan []byte, 256),
		Room: live.BattleRoom(battleID),
	}
	client.Hub.Register <- client

	go client.WritePump()
	go client.ReadPump()
}
