package server

import (
	"net/http"

	"hlswatch/core/registry"
	"hlswatch/logger"
)

type healthResponse struct {
	Status      string `json:"status"`
	Monitors    int    `json:"monitors"`
	Subscribers int    `json:"subscribers"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:      "ok",
		Monitors:    s.reg.Len(),
		Subscribers: s.hub.ClientCount(),
	})
}

type monitorsResponse struct {
	Count    int             `json:"count"`
	Monitors []registry.Info `json:"monitors"`
}

func (s *Server) handleMonitors(w http.ResponseWriter, r *http.Request) {
	snap := s.reg.Snapshot()
	writeJSON(w, http.StatusOK, monitorsResponse{Count: len(snap), Monitors: snap})
}

func (s *Server) handleSegments(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("websocket upgrade failed", logger.ErrorField(err))
		return
	}

	client := &Client{hub: s.hub, conn: conn, send: make(chan []byte, sendBuffer)}
	if !s.hub.Register(client) {
		conn.Close()
		return
	}
	go client.writePump()
	go client.readPump()
}
