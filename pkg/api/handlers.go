package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/nimbusim/nimbus-node/pkg/storage"
)

// StatusResponse reports the node's connection and dispatch state
type StatusResponse struct {
	State             string    `json:"state"`
	Generation        uint64    `json:"generation"`
	ReconnectAttempts int       `json:"reconnectAttempts"`
	Endpoints         []string  `json:"endpoints"`
	Sessions          int       `json:"sessions"`
	Messages          int       `json:"messages"`
	FramesDispatched  uint64    `json:"framesDispatched"`
	Heartbeats        uint64    `json:"heartbeats"`
	UnknownFrames     uint64    `json:"unknownFrames"`
	CheckedAt         time.Time `json:"checkedAt"`
}

// PeerInfo is one entry of the peers listing
type PeerInfo struct {
	Peer              string    `json:"peer"`
	SessionID         string    `json:"sessionId"`
	MessageCounter    uint64    `json:"messageCounter"`
	IntegrityFailures uint64    `json:"integrityFailures"`
	SessionCreatedAt  time.Time `json:"sessionCreatedAt"`
	FirstSeen         int64     `json:"firstSeen,omitempty"`
	LastSeen          int64     `json:"lastSeen,omitempty"`
}

// MessageInfo is one entry of the message history listing
type MessageInfo struct {
	FrameID   uint32 `json:"frameId"`
	Peer      string `json:"peer"`
	Type      uint8  `json:"type"`
	Body      string `json:"body"`
	Timestamp int64  `json:"timestamp"`
	Outgoing  bool   `json:"outgoing"`
	Status    string `json:"status"`
}

// handleHealth handles GET /health
func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"state":  s.conn.State().String(),
	})
}

// handleStatus handles GET /api/v1/status
func (s *Server) handleStatus(c *gin.Context) {
	endpoints := make([]string, 0, len(s.conn.Endpoints()))
	for _, ep := range s.conn.Endpoints() {
		endpoints = append(endpoints, ep.Addr())
	}

	messages, err := s.history.MessageCount()
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "History unavailable", Message: err.Error()})
		return
	}

	stats := s.dispatcher.Stats()
	c.JSON(http.StatusOK, StatusResponse{
		State:             s.conn.State().String(),
		Generation:        s.conn.Generation(),
		ReconnectAttempts: s.conn.Attempts(),
		Endpoints:         endpoints,
		Sessions:          s.sessions.Count(),
		Messages:          messages,
		FramesDispatched:  stats.Frames,
		Heartbeats:        stats.Heartbeats,
		UnknownFrames:     stats.Unknown,
		CheckedAt:         time.Now(),
	})
}

// handlePeers handles GET /api/v1/peers
func (s *Server) handlePeers(c *gin.Context) {
	peers := make([]PeerInfo, 0)
	for _, peer := range s.sessions.Peers() {
		sess, ok := s.sessions.Info(peer)
		if !ok {
			continue
		}
		info := PeerInfo{
			Peer:              peer,
			SessionID:         sess.ID,
			MessageCounter:    sess.MessageCounter,
			IntegrityFailures: s.sessions.IntegrityFailures(peer),
			SessionCreatedAt:  sess.CreatedAt,
		}
		if rec, err := s.history.GetPeer(peer); err == nil {
			info.FirstSeen = rec.FirstSeen
			info.LastSeen = rec.LastSeen
		}
		peers = append(peers, info)
	}

	c.JSON(http.StatusOK, gin.H{"peers": peers, "count": len(peers)})
}

// handleRemovePeer handles DELETE /api/v1/peers/:id. It destroys the
// peer's session and purges its history.
func (s *Server) handleRemovePeer(c *gin.Context) {
	peer := c.Param("id")

	removed := s.sessions.Remove(peer)
	if err := s.history.RemovePeer(peer); err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Failed to remove peer history", Message: err.Error()})
		return
	}

	if !removed {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "Unknown peer", Message: "No session exists for " + peer})
		return
	}

	c.JSON(http.StatusOK, gin.H{"removed": peer})
}

// handleMessages handles GET /api/v1/messages?peer=X&limit=N&offset=M
func (s *Server) handleMessages(c *gin.Context) {
	peer := c.Query("peer")
	if peer == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Missing peer", Message: "The peer query parameter is required"})
		return
	}

	limit := 50
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 500 {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid limit", Message: "limit must be between 1 and 500"})
			return
		}
		limit = n
	}

	offset := 0
	if v := c.Query("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid offset", Message: "offset must be non-negative"})
			return
		}
		offset = n
	}

	stored, err := s.history.MessagesForPeer(peer, limit, offset)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "History unavailable", Message: err.Error()})
		return
	}

	messages := make([]MessageInfo, 0, len(stored))
	for _, m := range stored {
		messages = append(messages, MessageInfo{
			FrameID:   m.FrameID,
			Peer:      m.Peer,
			Type:      m.Type,
			Body:      string(m.Body),
			Timestamp: m.Timestamp,
			Outgoing:  m.Outgoing,
			Status:    string(m.Status),
		})
	}

	c.JSON(http.StatusOK, gin.H{"peer": peer, "messages": messages, "count": len(messages)})
}
