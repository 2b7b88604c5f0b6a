package ipc

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/1broseidon/sashd/internal/history"
	"github.com/1broseidon/sashd/internal/resolve"
	"github.com/1broseidon/sashd/internal/wm"
)

// CommandType represents different IPC command types
type CommandType string

const (
	CommandFocus        CommandType = "FOCUS"
	CommandMove         CommandType = "MOVE"
	CommandResize       CommandType = "RESIZE"
	CommandMaximize     CommandType = "MAXIMIZE"
	CommandMoveDisplay  CommandType = "MOVE_DISPLAY"
	CommandGetState     CommandType = "GET_STATE"
	CommandUndo         CommandType = "UNDO"
	CommandRedo         CommandType = "REDO"
	CommandHistoryList  CommandType = "HISTORY_LIST"
	CommandHistoryClear CommandType = "HISTORY_CLEAR"
	CommandGetStatus    CommandType = "GET_STATUS"
	CommandSubscribe    CommandType = "SUBSCRIBE"
)

// Error codes carried in failed responses so clients can react without
// parsing messages.
const (
	CodeAppNotFound     = "app_not_found"
	CodeActionFailed    = "action_failed"
	CodeTimeout         = "timeout"
	CodeHistoryDisabled = "history_disabled"
	CodeHistoryEmpty    = "history_empty"
	CodeBadRequest      = "bad_request"
	CodeInternal        = "internal"
)

// Request represents an IPC request from client to server
type Request struct {
	Command CommandType     `json:"command"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Response represents an IPC response from server to client
type Response struct {
	Status string          `json:"status"` // "OK" or "ERROR"
	Code   string          `json:"code,omitempty"`
	Data   json.RawMessage `json:"data,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// TargetPayload addresses a single application by name query.
type TargetPayload struct {
	App string `json:"app"`
}

// MovePayload represents the payload for MOVE
type MovePayload struct {
	App string `json:"app"`
	X   int    `json:"x"`
	Y   int    `json:"y"`
}

// ResizePayload represents the payload for RESIZE
type ResizePayload struct {
	App    string `json:"app"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// MoveDisplayPayload represents the payload for MOVE_DISPLAY
type MoveDisplayPayload struct {
	App     string `json:"app"`
	Display string `json:"display"`
}

// SubscribePayload represents the payload for SUBSCRIBE
type SubscribePayload struct {
	Filters []string `json:"filters,omitempty"` // empty = all events
}

// ActionData is the data returned by window action commands.
type ActionData struct {
	App       string       `json:"app"`
	PID       int32        `json:"pid"`
	MatchType string       `json:"match_type"`
	Distance  int          `json:"distance,omitempty"`
	Geometry  *wm.Geometry `json:"geometry,omitempty"`
}

// HistoryActionData is the data returned by UNDO and REDO.
type HistoryActionData struct {
	Action string `json:"action"`
	App    string `json:"app"`
	PID    int32  `json:"pid"`
}

// HistoryListData is the data returned by HISTORY_LIST.
type HistoryListData struct {
	Records []history.Record `json:"records"`
	Cursor  int              `json:"cursor"`
}

// StatusData represents the data returned by GET_STATUS
type StatusData struct {
	DaemonRunning  bool   `json:"daemon_running"`
	UptimeSeconds  int64  `json:"uptime_seconds"`
	AppCount       int    `json:"app_count"`
	Subscribers    int    `json:"subscribers"`
	LastSeq        uint64 `json:"last_seq"`
	HistoryEnabled bool   `json:"history_enabled"`
	UndoDepth      int    `json:"undo_depth"`
	RedoDepth      int    `json:"redo_depth"`
}

// SubscribedData acknowledges a SUBSCRIBE before the event stream begins.
type SubscribedData struct {
	SubscriptionID uint64   `json:"subscription_id"`
	Filters        []string `json:"filters,omitempty"`
}

// StreamEvent is one event line on a subscription stream. Data stays raw
// so clients can decode per kind.
type StreamEvent struct {
	Seq  uint64          `json:"seq"`
	Ts   time.Time       `json:"ts"`
	Kind string          `json:"kind"`
	Data json.RawMessage `json:"data,omitempty"`
}

func actionData(match resolve.MatchResult, geom *wm.Geometry) ActionData {
	return ActionData{
		App:       match.App.Name,
		PID:       match.App.PID,
		MatchType: string(match.Type),
		Distance:  match.Distance,
		Geometry:  geom,
	}
}

// NewOKResponse creates a successful response with optional data
func NewOKResponse(data interface{}) (*Response, error) {
	var dataBytes json.RawMessage
	if data != nil {
		bytes, err := json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal response data: %w", err)
		}
		dataBytes = bytes
	}

	return &Response{
		Status: "OK",
		Data:   dataBytes,
	}, nil
}

// NewErrorResponse creates an error response with a code and message
func NewErrorResponse(code, errMsg string) *Response {
	return &Response{
		Status: "ERROR",
		Code:   code,
		Error:  errMsg,
	}
}

// ParseRequest parses a request from JSON bytes
func ParseRequest(data []byte) (*Request, error) {
	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("failed to parse request: %w", err)
	}
	return &req, nil
}

// Marshal converts a response to JSON bytes
func (r *Response) Marshal() ([]byte, error) {
	return json.Marshal(r)
}
