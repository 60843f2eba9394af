package storage

import (
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/nimbusim/nimbus-node/pkg/crypto"
)

var ErrNotFound = errors.New("not found")

// keySalt is the PBKDF2 salt for the history encryption key. Fixed per
// database format version; a passphrase change requires re-encryption.
var keySalt = []byte("nimbus-history-v1")

// MessageStatus represents message delivery status
type MessageStatus string

const (
	MessageStatusSending   MessageStatus = "sending"
	MessageStatusSent      MessageStatus = "sent"
	MessageStatusDelivered MessageStatus = "delivered"
	MessageStatusRead      MessageStatus = "read"
	MessageStatusFailed    MessageStatus = "failed"
	MessageStatusReceived  MessageStatus = "received"
)

// HistoryDB is the local encrypted message history. Message bodies are
// encrypted with AES-256-GCM under a key derived from the user's
// passphrase; metadata columns stay queryable in the clear.
type HistoryDB struct {
	db  *sql.DB
	key []byte
}

// StoredMessage is one history entry
type StoredMessage struct {
	ID        int64
	FrameID   uint32
	Peer      string
	Type      uint8
	Body      []byte
	Timestamp int64
	Outgoing  bool
	Status    MessageStatus
}

// PeerRecord tracks a known remote peer
type PeerRecord struct {
	Peer      string
	SessionID string
	FirstSeen int64
	LastSeen  int64
}

// OpenHistory opens (or creates) the history database at path
func OpenHistory(path string, passphrase string) (*HistoryDB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %v", err)
	}

	// WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %v", err)
	}

	h := &HistoryDB{
		db:  db,
		key: crypto.DeriveKey(passphrase, keySalt),
	}

	if err := h.initSchema(); err != nil {
		db.Close()
		return nil, err
	}

	return h, nil
}

// initSchema creates database tables
func (h *HistoryDB) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS messages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		frame_id INTEGER NOT NULL,
		peer TEXT NOT NULL,
		type INTEGER NOT NULL,
		body BLOB NOT NULL,
		timestamp INTEGER NOT NULL,
		is_outgoing INTEGER NOT NULL,
		status TEXT NOT NULL,
		created_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now'))
	);

	CREATE TABLE IF NOT EXISTS peers (
		peer TEXT PRIMARY KEY,
		session_id TEXT,
		first_seen INTEGER NOT NULL,
		last_seen INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_messages_peer ON messages(peer, timestamp DESC);
	CREATE INDEX IF NOT EXISTS idx_messages_frame ON messages(frame_id);
	`

	if _, err := h.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %v", err)
	}
	return nil
}

// Close closes the database connection
func (h *HistoryDB) Close() error {
	return h.db.Close()
}

// ===== MESSAGE OPERATIONS =====

// SaveMessage stores a message, encrypting its body
func (h *HistoryDB) SaveMessage(msg *StoredMessage) error {
	body, err := crypto.AESEncrypt(msg.Body, h.key)
	if err != nil {
		return fmt.Errorf("failed to encrypt body: %v", err)
	}

	query := `
		INSERT INTO messages (frame_id, peer, type, body, timestamp, is_outgoing, status)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	result, err := h.db.Exec(
		query,
		msg.FrameID,
		msg.Peer,
		msg.Type,
		body,
		msg.Timestamp,
		boolToInt(msg.Outgoing),
		msg.Status,
	)
	if err != nil {
		return fmt.Errorf("failed to save message: %v", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	msg.ID = id

	return h.touchPeer(msg.Peer, msg.Timestamp)
}

// MessagesForPeer retrieves history with a peer, newest first
func (h *HistoryDB) MessagesForPeer(peer string, limit, offset int) ([]*StoredMessage, error) {
	query := `
		SELECT id, frame_id, peer, type, body, timestamp, is_outgoing, status
		FROM messages
		WHERE peer = ?
		ORDER BY timestamp DESC
		LIMIT ? OFFSET ?
	`
	rows, err := h.db.Query(query, peer, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []*StoredMessage
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		msg.Body, err = crypto.AESDecrypt(msg.Body, h.key)
		if err != nil {
			return nil, fmt.Errorf("failed to decrypt body: %v", err)
		}
		messages = append(messages, msg)
	}

	return messages, rows.Err()
}

// GetMessage retrieves one message by frame id
func (h *HistoryDB) GetMessage(frameID uint32) (*StoredMessage, error) {
	query := `
		SELECT id, frame_id, peer, type, body, timestamp, is_outgoing, status
		FROM messages WHERE frame_id = ?
		ORDER BY id DESC LIMIT 1
	`
	msg, err := scanMessage(h.db.QueryRow(query, frameID))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	msg.Body, err = crypto.AESDecrypt(msg.Body, h.key)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt body: %v", err)
	}
	return msg, nil
}

// UpdateStatus updates the delivery status for a frame id
func (h *HistoryDB) UpdateStatus(frameID uint32, status MessageStatus) error {
	_, err := h.db.Exec(`UPDATE messages SET status = ? WHERE frame_id = ?`, status, frameID)
	return err
}

// DeleteMessagesForPeer removes all history with a peer
func (h *HistoryDB) DeleteMessagesForPeer(peer string) error {
	_, err := h.db.Exec(`DELETE FROM messages WHERE peer = ?`, peer)
	return err
}

// MessageCount returns the number of stored messages
func (h *HistoryDB) MessageCount() (int, error) {
	var n int
	err := h.db.QueryRow(`SELECT COUNT(*) FROM messages`).Scan(&n)
	return n, err
}

// ===== PEER OPERATIONS =====

// touchPeer inserts or refreshes the peer record
func (h *HistoryDB) touchPeer(peer string, seen int64) error {
	query := `
		INSERT INTO peers (peer, first_seen, last_seen) VALUES (?, ?, ?)
		ON CONFLICT(peer) DO UPDATE SET last_seen = excluded.last_seen
	`
	_, err := h.db.Exec(query, peer, seen, seen)
	return err
}

// SetPeerSession records the session id associated with a peer
func (h *HistoryDB) SetPeerSession(peer, sessionID string, seen int64) error {
	query := `
		INSERT INTO peers (peer, session_id, first_seen, last_seen) VALUES (?, ?, ?, ?)
		ON CONFLICT(peer) DO UPDATE SET session_id = excluded.session_id, last_seen = excluded.last_seen
	`
	_, err := h.db.Exec(query, peer, sessionID, seen, seen)
	return err
}

// GetPeer retrieves one peer record
func (h *HistoryDB) GetPeer(peer string) (*PeerRecord, error) {
	query := `SELECT peer, COALESCE(session_id, ''), first_seen, last_seen FROM peers WHERE peer = ?`

	var rec PeerRecord
	err := h.db.QueryRow(query, peer).Scan(&rec.Peer, &rec.SessionID, &rec.FirstSeen, &rec.LastSeen)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// Peers lists all known peers, most recently seen first
func (h *HistoryDB) Peers() ([]*PeerRecord, error) {
	query := `SELECT peer, COALESCE(session_id, ''), first_seen, last_seen FROM peers ORDER BY last_seen DESC`

	rows, err := h.db.Query(query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var peers []*PeerRecord
	for rows.Next() {
		var rec PeerRecord
		if err := rows.Scan(&rec.Peer, &rec.SessionID, &rec.FirstSeen, &rec.LastSeen); err != nil {
			return nil, err
		}
		peers = append(peers, &rec)
	}
	return peers, rows.Err()
}

// RemovePeer deletes a peer record and its message history
func (h *HistoryDB) RemovePeer(peer string) error {
	if err := h.DeleteMessagesForPeer(peer); err != nil {
		return err
	}
	_, err := h.db.Exec(`DELETE FROM peers WHERE peer = ?`, peer)
	return err
}

// ===== HELPERS =====

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMessage(row rowScanner) (*StoredMessage, error) {
	var msg StoredMessage
	var outgoing int
	err := row.Scan(
		&msg.ID,
		&msg.FrameID,
		&msg.Peer,
		&msg.Type,
		&msg.Body,
		&msg.Timestamp,
		&outgoing,
		&msg.Status,
	)
	if err != nil {
		return nil, err
	}
	msg.Outgoing = outgoing != 0
	return &msg, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
