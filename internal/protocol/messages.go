package protocol

import "time"

// UtteranceNotice is published on the bus when an utterance starts and when it ends.
type UtteranceNotice struct {
	NodeID     string    `json:"node_id"`
	SessionID  string    `json:"session_id"`
	Kind       string    `json:"kind"`
	Voice      string    `json:"voice"`
	Language   string    `json:"language"`
	Chars      int       `json:"chars,omitempty"`
	Segments   int       `json:"segments,omitempty"`
	Failed     int       `json:"failed_segments,omitempty"`
	AudioBytes int       `json:"audio_bytes,omitempty"`
	Outcome    string    `json:"outcome,omitempty"`
	DurationMS int64     `json:"duration_ms,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// NodeAnnouncement advertises a synthesis node and what it can speak.
type NodeAnnouncement struct {
	NodeID    string    `json:"node_id"`
	Role      string    `json:"role"`
	Voices    []string  `json:"voices"`
	Languages []string  `json:"languages"`
	Streaming bool      `json:"streaming"`
	Address   string    `json:"address"`
	Timestamp time.Time `json:"timestamp"`
}

type NodeHeartbeat struct {
	NodeID         string    `json:"node_id"`
	ActiveSessions int64     `json:"active_sessions"`
	Timestamp      time.Time `json:"timestamp"`
}

const (
	SubjectUtteranceStarted   = "utterance.started"
	SubjectUtteranceCompleted = "utterance.completed"
	SubjectUtteranceFailed    = "utterance.failed"

	SubjectNodeAnnounce        = "ctrl.node.announce"
	SubjectNodeHeartbeatPrefix = "ctrl.node.heartbeat"
)
