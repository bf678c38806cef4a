package types

import "time"

// EventType names an outbound event delivered to sessions.
type EventType string

const (
	EventJoined      EventType = "joined"
	EventNicknameSet EventType = "nickname_set"
	EventMessage     EventType = "message"
	EventLeft        EventType = "left"
	EventNotice      EventType = "notice"
)

// FrameType names an inbound frame sent by a client.
type FrameType string

const (
	FrameNickname FrameType = "nickname"
	FrameMessage  FrameType = "message"
	FrameLeave    FrameType = "leave"
)

// Notice codes sent to the originating client only.
const (
	NoticeNotActive       = "not_active"
	NoticeInvalidNickname = "invalid_nickname"
	NoticeSpam            = "spam"
	NoticeRateLimited     = "rate_limited"
	NoticeBadRequest      = "bad_request"
	NoticeAnnouncement    = "announcement"
)

// Event is an outbound chat event.
type Event struct {
	Type      EventType  `json:"type"`
	SessionID string     `json:"session_id,omitempty"`
	Nickname  string     `json:"nickname,omitempty"`
	Text      string     `json:"text,omitempty"`
	Code      string     `json:"code,omitempty"`
	Flagged   bool       `json:"flagged,omitempty"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
}

// Frame is an inbound client frame.
type Frame struct {
	Type     FrameType `json:"type"`
	Nickname string    `json:"nickname,omitempty"`
	Text     string    `json:"text,omitempty"`
}

// SessionInfo holds metadata about a connected session.
type SessionInfo struct {
	ID          string    `json:"id"`
	Nickname    string    `json:"nickname,omitempty"`
	State       string    `json:"state"`
	ConnectedAt time.Time `json:"connected_at"`
}

// Conn abstracts a WebSocket connection for testability.
type Conn interface {
	WriteJSON(v any) error
	ReadJSON(v any) error
	SetWriteDeadline(t time.Time) error
	Close() error
}
