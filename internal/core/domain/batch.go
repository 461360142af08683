package domain

import "time"

// BatchPage is one collected page of an in-progress multi-page submission.
// Key identifies the page itself, "<conversation key>-p<seq>".
type BatchPage struct {
	Key        string    `json:"key"`
	File       FileRef   `json:"file"`
	Seq        int       `json:"seq"`
	ReceivedAt time.Time `json:"received_at"`
}

// BatchSession is an explicitly started page collection tied to a
// conversation key. The session marker is distinct from "has pages": a
// started session with zero pages is still active.
type BatchSession struct {
	ConversationKey string      `json:"conversation_key"`
	Pages           []BatchPage `json:"pages"`
	StartedAt       time.Time   `json:"started_at"`
}
