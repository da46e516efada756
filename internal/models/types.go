package models

import "time"

// VideoFrame is the only outbound message: a base64 encoded JPEG.
type VideoFrame struct {
	Frame string `json:"frame"`
}

// OutboundFrame lives from the capture tick until it is handed to the
// transport. TraceID is local only and never sent.
type OutboundFrame struct {
	Message VideoFrame
	SentAt  time.Time
	TraceID string
	Width   int
	Height  int
	Bytes   int
}
