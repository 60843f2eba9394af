package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/nimbusim/nimbus-node/pkg/api"
	"github.com/nimbusim/nimbus-node/pkg/network"
	"github.com/nimbusim/nimbus-node/pkg/protocol"
	"github.com/nimbusim/nimbus-node/pkg/router"
	"github.com/nimbusim/nimbus-node/pkg/session"
	"github.com/nimbusim/nimbus-node/pkg/storage"
)

const (
	defaultEndpoints = "127.0.0.1:7443"
	defaultAPIPort   = 8080
	defaultDBPath    = "./data/history.db"
)

var (
	endpointsFlag = flag.String("endpoints", defaultEndpoints, "Comma-separated server list, primary first (host:port,...)")
	apiPort       = flag.Int("api-port", defaultAPIPort, "Local HTTP API port")
	dbPath        = flag.String("db", defaultDBPath, "Path to the message history database")
	passphrase    = flag.String("passphrase", "", "Passphrase protecting the history database (required)")
	insecure      = flag.Bool("insecure", true, "Skip TLS certificate verification")
)

func main() {
	flag.Parse()

	printBanner()

	if *passphrase == "" {
		log.Fatal("Error: -passphrase flag is required")
	}

	endpoints, err := parseEndpoints(*endpointsFlag)
	if err != nil {
		log.Fatalf("Invalid -endpoints: %v", err)
	}

	// Open message history
	if err := os.MkdirAll(filepath.Dir(*dbPath), 0700); err != nil {
		log.Fatalf("Failed to create data directory: %v", err)
	}
	history, err := storage.OpenHistory(*dbPath, *passphrase)
	if err != nil {
		log.Fatalf("Failed to open history database: %v", err)
	}
	log.Printf("📬 Message history at %s", *dbPath)

	// Session store and connection
	sessions := session.NewStore()

	cfg := network.DefaultConfig(endpoints...)
	cfg.InsecureSkipVerify = *insecure
	conn := network.NewConn(cfg)

	dispatcher := router.New(conn, sessions)
	dispatcher.Run()

	// Local status API
	apiConfig := api.DefaultConfig()
	apiConfig.Port = *apiPort
	server := api.NewServer(conn, sessions, history, dispatcher, apiConfig)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		if err := server.Start(ctx); err != nil {
			log.Fatalf("API server error: %v", err)
		}
	}()
	log.Printf("🌐 Status API listening on port %d", *apiPort)

	// Consume dispatched messages
	go consumeMessages(dispatcher, sessions, history)

	log.Printf("Connecting to %s...", endpoints[0].Addr())
	if err := conn.Connect(); err != nil {
		log.Printf("⚠️  Initial connect failed: %v (will keep the API up; retry with a signal or restart)", err)
	}

	waitForShutdown(cancel, conn, dispatcher, server, history)
}

func printBanner() {
	fmt.Println("╔═══════════════════════════════════════════════════╗")
	fmt.Println("║             Nimbus Messaging Client v1.0          ║")
	fmt.Println("║       Persistent encrypted chat endpoint          ║")
	fmt.Println("╚═══════════════════════════════════════════════════╝")
	fmt.Println()
}

// parseEndpoints splits a comma-separated host:port list
func parseEndpoints(s string) ([]network.Endpoint, error) {
	var endpoints []network.Endpoint
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		host, portStr, err := net.SplitHostPort(part)
		if err != nil {
			return nil, fmt.Errorf("endpoint %q: %v", part, err)
		}
		port, err := strconv.Atoi(portStr)
		if err != nil || port < 1 || port > 65535 {
			return nil, fmt.Errorf("endpoint %q: invalid port", part)
		}
		endpoints = append(endpoints, network.Endpoint{Host: host, Port: port})
	}
	if len(endpoints) == 0 {
		return nil, fmt.Errorf("empty endpoint list")
	}
	return endpoints, nil
}

// consumeMessages drains the router channels, logging traffic and
// persisting it to the history database
func consumeMessages(dispatcher *router.Router, sessions *session.Store, history *storage.HistoryDB) {
	for {
		select {
		case msg := <-dispatcher.Texts():
			log.Printf("💬 %s: %s", msg.From, msg.Content)
			saveIncoming(history, &storage.StoredMessage{
				Peer:      msg.From,
				Type:      protocol.TypeText,
				Body:      msg.Content,
				Timestamp: int64(msg.Timestamp),
				Status:    storage.MessageStatusReceived,
			})

		case dec := <-dispatcher.Decrypted():
			if dec.Err != nil {
				log.Printf("⚠️  Undecryptable envelope from %s: %v", dec.Peer, dec.Err)
				continue
			}
			log.Printf("🔒 %s: %s", dec.Peer, dec.Plaintext)
			if info, ok := sessions.Info(dec.Peer); ok {
				history.SetPeerSession(dec.Peer, info.ID, int64(protocol.NowUnix()))
			}
			saveIncoming(history, &storage.StoredMessage{
				FrameID:   dec.FrameID,
				Peer:      dec.Peer,
				Type:      protocol.TypeEncrypted,
				Body:      dec.Plaintext,
				Timestamp: int64(protocol.NowUnix()),
				Status:    storage.MessageStatusReceived,
			})

		case p := <-dispatcher.Presence():
			log.Printf("👤 %s is %s", p.Peer, presenceName(p.Status))

		case ind := <-dispatcher.Typing():
			if ind.IsTyping {
				log.Printf("✏️  %s is typing...", ind.From)
			}

		case rc := <-dispatcher.Receipts():
			status := storage.MessageStatusDelivered
			if rc.Status == protocol.ReceiptRead {
				status = storage.MessageStatusRead
			}
			if err := history.UpdateStatus(rc.FrameID, status); err != nil {
				log.Printf("Failed to update message status: %v", err)
			}

		case raw := <-dispatcher.Raw():
			log.Printf("📦 %s frame (%d bytes)", protocol.TypeName(raw.Frame.Type), len(raw.Frame.Payload))

		case e := <-dispatcher.Connectivity():
			switch e.Kind {
			case network.EventConnected:
				log.Printf("✓ Connected (generation %d)", e.Generation)
			case network.EventDisconnected:
				log.Printf("⚠️  Disconnected: %v (reconnecting)", e.Err)
			case network.EventMaxReconnect:
				log.Printf("❌ Gave up reconnecting: %v", e.Err)
			}
		}
	}
}

func saveIncoming(history *storage.HistoryDB, msg *storage.StoredMessage) {
	if msg.FrameID == 0 {
		msg.FrameID = protocol.GenerateFrameID()
	}
	if err := history.SaveMessage(msg); err != nil {
		log.Printf("Failed to store message: %v", err)
	}
}

func presenceName(status uint8) string {
	switch status {
	case protocol.PresenceOnline:
		return "online"
	case protocol.PresenceOffline:
		return "offline"
	case protocol.PresenceAway:
		return "away"
	default:
		return fmt.Sprintf("status %d", status)
	}
}

func waitForShutdown(cancel context.CancelFunc, conn *network.Conn, dispatcher *router.Router, server *api.Server, history *storage.HistoryDB) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	<-sigChan

	fmt.Println()
	log.Println("Shutting down gracefully...")

	cancel()
	if err := server.Stop(); err != nil {
		log.Printf("Error stopping API server: %v", err)
	}

	dispatcher.Stop()
	if err := conn.Close(); err != nil {
		log.Printf("Error closing connection: %v", err)
	}

	if err := history.Close(); err != nil {
		log.Printf("Error closing history database: %v", err)
	} else {
		log.Println("✓ History database closed")
	}

	log.Println("✓ Client stopped")
}
