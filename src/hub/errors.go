package hub

import (
	"errors"
	"fmt"

	"github.com/orchestra-mcp/chat-relay/src/registry"
)

var (
	ErrUnknownSession    = registry.ErrUnknownSession
	ErrDuplicateID       = registry.ErrDuplicateID
	ErrNotActive         = errors.New("session has not announced a nickname")
	ErrInvalidNickname   = errors.New("nickname is empty after sanitizing")
	ErrRateLimited       = errors.New("message rate exceeded")
	ErrSpamDropped       = errors.New("message classified as spam")
	ErrEmptyAnnouncement = errors.New("announcement is empty")
	ErrHubClosed         = errors.New("hub is closed")

	ErrChannelClosed  = errors.New("channel closed")
	ErrSendBufferFull = errors.New("send buffer full")
)

// DeliveryError reports a failed send to a single recipient.
type DeliveryError struct {
	SessionID string
	Err       error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("deliver to %s: %v", e.SessionID, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }
