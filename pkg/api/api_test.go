package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/nimbusim/nimbus-node/pkg/network"
	"github.com/nimbusim/nimbus-node/pkg/protocol"
	"github.com/nimbusim/nimbus-node/pkg/router"
	"github.com/nimbusim/nimbus-node/pkg/session"
	"github.com/nimbusim/nimbus-node/pkg/storage"
)

type testNode struct {
	server   *Server
	sessions *session.Store
	history  *storage.HistoryDB
}

func newTestNode(t *testing.T) *testNode {
	t.Helper()

	conn := network.NewConn(network.DefaultConfig(network.Endpoint{Host: "127.0.0.1", Port: 9000}))
	t.Cleanup(func() { conn.Close() })

	sessions := session.NewStore()

	history, err := storage.OpenHistory(filepath.Join(t.TempDir(), "history.db"), "test")
	assert.NoError(t, err)
	t.Cleanup(func() { history.Close() })

	dispatcher := router.New(conn, sessions)

	return &testNode{
		server:   NewServer(conn, sessions, history, dispatcher, DefaultConfig()),
		sessions: sessions,
		history:  history,
	}
}

func (n *testNode) request(method, url string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, url, nil)
	w := httptest.NewRecorder()
	n.server.engine.ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	n := newTestNode(t)

	w := n.request("GET", "/health")
	assert.Equal(t, http.StatusOK, w.Code)

	var body map[string]string
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "disconnected", body["state"])
}

func TestStatus(t *testing.T) {
	n := newTestNode(t)

	_, err := n.sessions.Encrypt("alice", []byte("hi"))
	assert.NoError(t, err)

	w := n.request("GET", "/api/v1/status")
	assert.Equal(t, http.StatusOK, w.Code)

	var status StatusResponse
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	assert.Equal(t, "disconnected", status.State)
	assert.Equal(t, uint64(0), status.Generation)
	assert.Equal(t, 1, status.Sessions)
	assert.Equal(t, []string{"127.0.0.1:9000"}, status.Endpoints)
}

func TestPeers(t *testing.T) {
	n := newTestNode(t)

	_, err := n.sessions.Encrypt("alice", []byte("hi"))
	assert.NoError(t, err)
	err = n.history.SaveMessage(&storage.StoredMessage{
		FrameID: 1, Peer: "alice", Type: protocol.TypeText,
		Body: []byte("hi"), Timestamp: 1700000000, Outgoing: true,
		Status: storage.MessageStatusSent,
	})
	assert.NoError(t, err)

	w := n.request("GET", "/api/v1/peers")
	assert.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Peers []PeerInfo `json:"peers"`
		Count int        `json:"count"`
	}
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, 1, body.Count)
	assert.Equal(t, "alice", body.Peers[0].Peer)
	assert.NotEmpty(t, body.Peers[0].SessionID)
	assert.Equal(t, uint64(1), body.Peers[0].MessageCounter)
	assert.Equal(t, int64(1700000000), body.Peers[0].LastSeen)
}

func TestRemovePeer(t *testing.T) {
	n := newTestNode(t)

	_, err := n.sessions.Encrypt("alice", []byte("hi"))
	assert.NoError(t, err)
	err = n.history.SaveMessage(&storage.StoredMessage{
		FrameID: 1, Peer: "alice", Type: protocol.TypeText,
		Body: []byte("hi"), Timestamp: 1700000000, Status: storage.MessageStatusSent,
	})
	assert.NoError(t, err)

	w := n.request("DELETE", "/api/v1/peers/alice")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.False(t, n.sessions.Has("alice"))

	msgs, err := n.history.MessagesForPeer("alice", 10, 0)
	assert.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestRemovePeerUnknown(t *testing.T) {
	n := newTestNode(t)

	w := n.request("DELETE", "/api/v1/peers/nobody")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestMessages(t *testing.T) {
	n := newTestNode(t)

	for i := 0; i < 3; i++ {
		err := n.history.SaveMessage(&storage.StoredMessage{
			FrameID: uint32(10 + i), Peer: "alice", Type: protocol.TypeText,
			Body: []byte{byte('a' + i)}, Timestamp: int64(1700000000 + i),
			Status: storage.MessageStatusReceived,
		})
		assert.NoError(t, err)
	}

	w := n.request("GET", "/api/v1/messages?peer=alice&limit=2")
	assert.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Peer     string        `json:"peer"`
		Messages []MessageInfo `json:"messages"`
		Count    int           `json:"count"`
	}
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "alice", body.Peer)
	assert.Equal(t, 2, body.Count)
	// Newest first
	assert.Equal(t, uint32(12), body.Messages[0].FrameID)
	assert.Equal(t, "c", body.Messages[0].Body)
}

func TestMessagesValidation(t *testing.T) {
	n := newTestNode(t)

	assert.Equal(t, http.StatusBadRequest, n.request("GET", "/api/v1/messages").Code)
	assert.Equal(t, http.StatusBadRequest, n.request("GET", "/api/v1/messages?peer=alice&limit=0").Code)
	assert.Equal(t, http.StatusBadRequest, n.request("GET", "/api/v1/messages?peer=alice&limit=headers").Code)
	assert.Equal(t, http.StatusBadRequest, n.request("GET", "/api/v1/messages?peer=alice&offset=-1").Code)
}

func TestRateLimit(t *testing.T) {
	limiter := NewRateLimiter(3)

	for i := 0; i < 3; i++ {
		assert.True(t, limiter.Allow("10.0.0.1"))
	}
	assert.False(t, limiter.Allow("10.0.0.1"))
	// Other clients are unaffected
	assert.True(t, limiter.Allow("10.0.0.2"))
}
