// Package notify publishes utterance lifecycle notices on the bus.
package notify

import (
	"context"
	"log/slog"
	"time"

	"github.com/loqalabs/loqa-tts/internal/bus"
	"github.com/loqalabs/loqa-tts/internal/protocol"
	"github.com/loqalabs/loqa-tts/internal/session"
)

type Publisher struct {
	bus    *bus.Client
	nodeID string
	logger *slog.Logger
}

func NewPublisher(busClient *bus.Client, nodeID string, logger *slog.Logger) *Publisher {
	return &Publisher{
		bus:    busClient,
		nodeID: nodeID,
		logger: logger.With(slog.String("component", "notify")),
	}
}

func (p *Publisher) UtteranceStarted(_ context.Context, u session.Utterance) {
	p.publish(protocol.SubjectUtteranceStarted, p.notice(u, u.StartedAt))
}

func (p *Publisher) UtteranceFinished(_ context.Context, u session.Utterance) {
	subject := protocol.SubjectUtteranceCompleted
	if u.Outcome == session.OutcomeFailed {
		subject = protocol.SubjectUtteranceFailed
	}
	notice := p.notice(u, time.Now().UTC())
	notice.Chars = u.Chars
	notice.Segments = u.Segments
	notice.Failed = u.Failed
	notice.AudioBytes = u.AudioBytes
	notice.Outcome = u.Outcome
	notice.DurationMS = u.Duration.Milliseconds()
	p.publish(subject, notice)
}

func (p *Publisher) notice(u session.Utterance, ts time.Time) protocol.UtteranceNotice {
	return protocol.UtteranceNotice{
		NodeID:    p.nodeID,
		SessionID: u.SessionID,
		Kind:      u.Kind,
		Voice:     u.Voice,
		Language:  u.Language,
		Timestamp: ts,
	}
}

func (p *Publisher) publish(name string, notice protocol.UtteranceNotice) {
	subject := p.bus.Subject(name)
	if err := p.bus.PublishJSON(subject, notice); err != nil {
		p.logger.Warn("failed to publish notice", slog.String("subject", subject), slog.String("error", err.Error()))
	}
}
