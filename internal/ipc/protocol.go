// Package ipc carries commands from the parley CLI to the running session
// over a unix socket, one JSON line per request and response.
package ipc

import "encoding/json"

type Request struct {
	Command string `json:"command"`
}

type Response struct {
	OK      bool            `json:"ok"`
	State   string          `json:"state,omitempty"`
	Message string          `json:"message,omitempty"`
	Error   string          `json:"error,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}
