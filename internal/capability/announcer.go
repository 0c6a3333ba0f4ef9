// Package capability advertises this synthesis node on the bus and tracks
// peers that do the same.
package capability

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/loqalabs/loqa-tts/internal/bus"
	"github.com/loqalabs/loqa-tts/internal/config"
	"github.com/loqalabs/loqa-tts/internal/protocol"
	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const Role = "tts"

// Peer is a node seen on the bus.
type Peer struct {
	ID             string
	Role           string
	Voices         []string
	Languages      []string
	Streaming      bool
	Address        string
	ActiveSessions int64
	LastSeen       time.Time
	Healthy        bool
}

// Announcer publishes the local announcement once and a heartbeat on every
// interval. Peers missing three heartbeats are marked unhealthy.
type Announcer struct {
	cfg      config.NodeConfig
	self     protocol.NodeAnnouncement
	active   func() int64
	bus      *bus.Client
	log      *slog.Logger
	interval time.Duration

	mu     sync.RWMutex
	peers  map[string]*Peer
	subs   []*nats.Subscription
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewAnnouncer subscribes to peer traffic, announces self and starts the
// heartbeat loop. active reports the current session count.
func NewAnnouncer(ctx context.Context, cfg config.NodeConfig, self protocol.NodeAnnouncement, active func() int64, busClient *bus.Client, log *slog.Logger) (*Announcer, error) {
	ctx, cancel := context.WithCancel(ctx)
	self.NodeID = cfg.ID
	self.Role = Role
	a := &Announcer{
		cfg:      cfg,
		self:     self,
		active:   active,
		bus:      busClient,
		log:      log.With(slog.String("component", "capability")),
		interval: time.Duration(cfg.HeartbeatInterval) * time.Millisecond,
		peers:    make(map[string]*Peer),
		cancel:   cancel,
	}

	if err := a.initMetrics(); err != nil {
		a.log.Warn("failed to initialize metrics", slog.String("error", err.Error()))
	}

	if err := a.subscribe(); err != nil {
		cancel()
		return nil, err
	}

	if err := a.announce(); err != nil {
		a.log.Warn("failed to announce node", slog.String("error", err.Error()))
	}

	a.wg.Add(1)
	go a.run(ctx)
	return a, nil
}

func (a *Announcer) Close() {
	a.cancel()
	a.wg.Wait()
	for _, sub := range a.subs {
		_ = sub.Drain()
	}
}

func (a *Announcer) subscribe() error {
	conn := a.bus.Conn()
	announceSub, err := conn.Subscribe(protocol.SubjectNodeAnnounce, a.handleAnnounce)
	if err != nil {
		return fmt.Errorf("subscribe announce: %w", err)
	}
	a.subs = append(a.subs, announceSub)

	heartbeatSub, err := conn.Subscribe(protocol.SubjectNodeHeartbeatPrefix+".*", a.handleHeartbeat)
	if err != nil {
		return fmt.Errorf("subscribe heartbeat: %w", err)
	}
	a.subs = append(a.subs, heartbeatSub)
	return nil
}

func (a *Announcer) run(ctx context.Context) {
	defer a.wg.Done()
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := a.publishHeartbeat(); err != nil {
				a.log.Warn("failed to publish heartbeat", slog.String("error", err.Error()))
			}
			a.evaluateHealth()
		}
	}
}

func (a *Announcer) announce() error {
	msg := a.self
	msg.Timestamp = time.Now().UTC()
	return a.bus.PublishJSON(protocol.SubjectNodeAnnounce, msg)
}

func (a *Announcer) publishHeartbeat() error {
	msg := protocol.NodeHeartbeat{NodeID: a.cfg.ID, Timestamp: time.Now().UTC()}
	if a.active != nil {
		msg.ActiveSessions = a.active()
	}
	return a.bus.PublishJSON(protocol.SubjectNodeHeartbeatPrefix+"."+a.cfg.ID, msg)
}

func (a *Announcer) handleAnnounce(msg *nats.Msg) {
	var ann protocol.NodeAnnouncement
	if err := json.Unmarshal(msg.Data, &ann); err != nil {
		a.log.Warn("invalid announce message", slog.String("error", err.Error()))
		return
	}
	if ann.NodeID == "" {
		return
	}
	if ann.Timestamp.IsZero() {
		ann.Timestamp = time.Now().UTC()
	}

	a.mu.Lock()
	_, known := a.peers[ann.NodeID]
	p := a.peer(ann.NodeID)
	p.Role = ann.Role
	p.Voices = ann.Voices
	p.Languages = ann.Languages
	p.Streaming = ann.Streaming
	p.Address = ann.Address
	p.LastSeen = ann.Timestamp
	p.Healthy = true
	a.mu.Unlock()

	// Newcomers only hear announcements made after they subscribed.
	if !known && ann.NodeID != a.cfg.ID {
		if err := a.announce(); err != nil {
			a.log.Warn("failed to announce node", slog.String("error", err.Error()))
		}
	}
}

func (a *Announcer) handleHeartbeat(msg *nats.Msg) {
	var hb protocol.NodeHeartbeat
	if err := json.Unmarshal(msg.Data, &hb); err != nil {
		a.log.Warn("invalid heartbeat message", slog.String("error", err.Error()))
		return
	}
	if hb.NodeID == "" {
		return
	}
	if hb.Timestamp.IsZero() {
		hb.Timestamp = time.Now().UTC()
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	p := a.peer(hb.NodeID)
	p.ActiveSessions = hb.ActiveSessions
	p.LastSeen = hb.Timestamp
	p.Healthy = true
}

// peer returns the entry for id, creating it. Callers hold a.mu.
func (a *Announcer) peer(id string) *Peer {
	p, ok := a.peers[id]
	if !ok {
		p = &Peer{ID: id}
		a.peers[id] = p
	}
	return p
}

func (a *Announcer) evaluateHealth() {
	a.mu.Lock()
	defer a.mu.Unlock()
	timeout := 3 * a.interval
	now := time.Now()
	for _, p := range a.peers {
		if now.Sub(p.LastSeen) > timeout {
			p.Healthy = false
		}
	}
}

// Healthy reports whether this node has seen its own announcement or
// heartbeat come back from the bus recently.
func (a *Announcer) Healthy() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	p, ok := a.peers[a.cfg.ID]
	return ok && p.Healthy
}

// Peers returns the known nodes sorted by id, optionally filtered.
func (a *Announcer) Peers(filter func(Peer) bool) []Peer {
	a.mu.RLock()
	defer a.mu.RUnlock()
	var out []Peer
	for _, p := range a.peers {
		cp := *p
		if filter == nil || filter(cp) {
			out = append(out, cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// SpeaksLanguage matches peers advertising lang.
func SpeaksLanguage(lang string) func(Peer) bool {
	return func(p Peer) bool {
		for _, l := range p.Languages {
			if l == lang {
				return true
			}
		}
		return false
	}
}

func (a *Announcer) initMetrics() error {
	meter := otel.Meter("github.com/loqalabs/loqa-tts/capability")
	gauge, err := meter.Int64ObservableGauge("loqa.tts.nodes", metric.WithDescription("Number of healthy synthesis nodes"))
	if err != nil {
		return err
	}
	_, err = meter.RegisterCallback(func(ctx context.Context, obs metric.Observer) error {
		obs.ObserveInt64(gauge, int64(len(a.Peers(func(p Peer) bool { return p.Healthy }))))
		return nil
	}, gauge)
	return err
}
