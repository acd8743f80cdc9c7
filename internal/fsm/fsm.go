// Package fsm defines the interaction state machine transition table.
package fsm

import "fmt"

type State string

type Event string

const (
	StateIdle       State = "idle"
	StateListening  State = "listening"
	StateProcessing State = "processing"
)

const (
	// EventStart is an accepted start-listening command.
	EventStart Event = "start"
	// EventInterim is an interim transcript update; it never leaves Listening.
	EventInterim Event = "interim"
	// EventFinal is a finalized transcript handed off for dispatch.
	EventFinal Event = "final"
	// EventSessionEnded covers both the session's terminal event and the stop command.
	EventSessionEnded Event = "session_ended"
	// EventResolved is the dispatch outcome, success or failure.
	EventResolved Event = "resolved"
)

func Transition(current State, event Event) (State, error) {
	switch current {
	case StateIdle:
		switch event {
		case EventStart:
			return StateListening, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateListening:
		switch event {
		case EventInterim:
			return StateListening, nil
		case EventFinal:
			return StateProcessing, nil
		case EventSessionEnded:
			return StateIdle, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateProcessing:
		switch event {
		case EventResolved:
			return StateIdle, nil
		default:
			return current, invalidTransition(current, event)
		}
	default:
		return current, fmt.Errorf("unknown state %q", current)
	}
}

func invalidTransition(state State, event Event) error {
	return fmt.Errorf("invalid transition: %s --(%s)--> ?", state, event)
}
