// Package domain holds the types exchanged between the voice-interaction components.
package domain

import "time"

// Sender identifies which side of the conversation produced a message.
type Sender string

const (
	SenderUser Sender = "user"
	SenderBot  Sender = "bot"
)

// Message is one immutable turn in the conversation log.
type Message struct {
	ID        int64     `json:"id"`
	Text      string    `json:"text"`
	Sender    Sender    `json:"sender"`
	Intent    string    `json:"intent,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Reply is the intent service's answer to one dispatched query.
type Reply struct {
	ResponseText string `json:"response_text"`
	Intent       string `json:"intent"`
}

// Reason classifies why a transcription session terminated abnormally.
type Reason string

const (
	ReasonNoSpeech         Reason = "no-speech"
	ReasonAudioCapture     Reason = "audio-capture"
	ReasonPermissionDenied Reason = "permission-denied"
	ReasonNetwork          Reason = "network"
	// ReasonAborted marks a caller-initiated teardown; it is never shown to the user.
	ReasonAborted Reason = "aborted"
	ReasonOther   Reason = "other"
)

// EventKind identifies one of the closed set of transcription session events.
type EventKind string

const (
	// EventPartial carries unstable interim text; it may be revised or discarded.
	EventPartial EventKind = "partial"
	// EventFinal carries authoritative transcript text; a session emits at most one.
	EventFinal EventKind = "final"
	// EventEnded reports that recognition stopped naturally.
	EventEnded EventKind = "ended"
	// EventErrored reports that recognition failed with a Reason.
	EventErrored EventKind = "errored"
)

// TranscriptEvent is one typed event produced by a transcription session.
// Text holds transcript content for partial/final events and failure detail
// for errored events.
type TranscriptEvent struct {
	Kind   EventKind `json:"kind"`
	Text   string    `json:"text"`
	Reason Reason    `json:"reason,omitempty"`
}
