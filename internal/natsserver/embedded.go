// Package natsserver runs an in-process NATS broker for single-node installs,
// so utterance notices and node announcements need no external server.
package natsserver

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"time"

	"github.com/loqalabs/loqa-tts/internal/config"
	"github.com/nats-io/nats-server/v2/server"
)

const startupTimeout = 5 * time.Second

// Broker is the embedded NATS server.
type Broker struct {
	ns     *server.Server
	logger *slog.Logger
}

// Start launches the broker when cfg.Embedded is set and returns nil
// otherwise. The server is named after the node so peers can tell brokers
// apart in their connection info. A port of -1 picks a free port.
func Start(cfg config.BusConfig, nodeID string, logger *slog.Logger) (*Broker, error) {
	if !cfg.Embedded {
		return nil, nil
	}
	logger = logger.With(slog.String("component", "natsserver"))

	ns, err := server.NewServer(&server.Options{
		ServerName: nodeID,
		Host:       "0.0.0.0",
		Port:       cfg.Port,
		NoSigs:     true,
		NoLog:      true,
	})
	if err != nil {
		return nil, fmt.Errorf("create embedded broker: %w", err)
	}
	go ns.Start()

	if !ns.ReadyForConnections(startupTimeout) {
		ns.Shutdown()
		return nil, errors.New("embedded broker not ready after " + startupTimeout.String())
	}

	b := &Broker{ns: ns, logger: logger}
	logger.Info("embedded broker listening",
		slog.String("node_id", nodeID),
		slog.String("client_url", b.ClientURL()))
	return b, nil
}

// ClientURL is the loopback URL this process's bus client dials.
func (b *Broker) ClientURL() string {
	if b == nil || b.ns == nil {
		return ""
	}
	if addr, ok := b.ns.Addr().(*net.TCPAddr); ok {
		return "nats://" + net.JoinHostPort("127.0.0.1", strconv.Itoa(addr.Port))
	}
	return b.ns.ClientURL()
}

// Shutdown stops the broker after the bus client has disconnected.
func (b *Broker) Shutdown() {
	if b == nil || b.ns == nil {
		return
	}
	b.ns.Shutdown()
	b.ns.WaitForShutdown()
	b.logger.Info("embedded broker stopped")
}
