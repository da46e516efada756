package services

import (
	"errors"
	"time"
)

type ConnectionState string

const (
	StateDisconnected ConnectionState = "disconnected"
	StateConnecting   ConnectionState = "connecting"
	StateConnected    ConnectionState = "connected"
	StateFailed       ConnectionState = "failed"
)

const (
	TopicAnnotations = "annotations"
	TopicConnStatus  = "conn.status"
)

var (
	// ErrSendRejected is returned by Send while the connection is not open.
	// The payload is dropped, never queued.
	ErrSendRejected = errors.New("send rejected: websocket is not connected")
	// ErrReconnectExhausted is attached to the terminal disconnected status
	// published once every reconnect attempt has failed.
	ErrReconnectExhausted = errors.New("max reconnect attempts reached")
)

// ReconnectPolicy is a fixed interval retry budget. Attempts is reset on
// every successful connection.
type ReconnectPolicy struct {
	Attempts    int
	MaxAttempts int
	RetryDelay  time.Duration
}

func DefaultReconnectPolicy() ReconnectPolicy {
	return ReconnectPolicy{
		MaxAttempts: 10,
		RetryDelay:  5 * time.Second,
	}
}

// ConnStatus is published on TopicConnStatus on every state transition.
type ConnStatus struct {
	State     ConnectionState
	Endpoint  string
	SessionID string
	Attempt   int
	Err       error
	Timestamp time.Time
}

// Terminal reports whether this status ends the connection lifetime after
// the reconnect budget ran out.
func (s ConnStatus) Terminal() bool {
	return s.State == StateDisconnected && errors.Is(s.Err, ErrReconnectExhausted)
}
