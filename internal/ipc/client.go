package ipc

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"
	"time"

	"github.com/1broseidon/sashd/internal/runtimepath"
)

// Client handles IPC communication with the daemon
type Client struct {
	socketPath string
	timeout    time.Duration
}

// ErrorReply is a daemon error surfaced to the caller with its code.
type ErrorReply struct {
	Code    string
	Message string
}

func (e *ErrorReply) Error() string {
	return fmt.Sprintf("daemon error (%s): %s", e.Code, e.Message)
}

// NewClient creates a new IPC client
func NewClient() *Client {
	socketPath, err := runtimepath.SocketPath()
	if err != nil {
		// Keep constructor non-failing; sendRequest surfaces connection errors.
		socketPath = ""
	}

	return &Client{
		socketPath: socketPath,
		timeout:    10 * time.Second,
	}
}

// sendRequest sends a request and waits for a response
func (c *Client) sendRequest(req *Request) (*Response, error) {
	conn, err := net.DialTimeout("unix", c.socketPath, c.timeout)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to daemon: %w (is the daemon running?)", err)
	}
	defer conn.Close()

	conn.SetDeadline(time.Now().Add(c.timeout))

	reqData, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	reqData = append(reqData, '\n')
	if _, err := conn.Write(reqData); err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}

	reader := bufio.NewReader(conn)
	respData, err := reader.ReadBytes('\n')
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var resp Response
	if err := json.Unmarshal(respData, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	if resp.Status == "ERROR" {
		code := resp.Code
		if code == "" {
			code = CodeInternal
		}
		return nil, &ErrorReply{Code: code, Message: resp.Error}
	}

	return &resp, nil
}

// sendAction sends a command with a payload and decodes the action data.
func (c *Client) sendAction(cmd CommandType, payload interface{}) (*ActionData, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}

	resp, err := c.sendRequest(&Request{Command: cmd, Payload: data})
	if err != nil {
		return nil, err
	}

	var action ActionData
	if err := json.Unmarshal(resp.Data, &action); err != nil {
		return nil, fmt.Errorf("failed to parse action data: %w", err)
	}
	return &action, nil
}

// Focus asks the daemon to focus the application matching app.
func (c *Client) Focus(app string) (*ActionData, error) {
	return c.sendAction(CommandFocus, TargetPayload{App: app})
}

// Move asks the daemon to move the application's window.
func (c *Client) Move(app string, x, y int) (*ActionData, error) {
	return c.sendAction(CommandMove, MovePayload{App: app, X: x, Y: y})
}

// Resize asks the daemon to resize the application's window.
func (c *Client) Resize(app string, width, height int) (*ActionData, error) {
	return c.sendAction(CommandResize, ResizePayload{App: app, Width: width, Height: height})
}

// Maximize asks the daemon to maximize the application's window.
func (c *Client) Maximize(app string) (*ActionData, error) {
	return c.sendAction(CommandMaximize, TargetPayload{App: app})
}

// MoveDisplay asks the daemon to move the application's window to display.
func (c *Client) MoveDisplay(app, display string) (*ActionData, error) {
	return c.sendAction(CommandMoveDisplay, MoveDisplayPayload{App: app, Display: display})
}

// GetState retrieves the application's current window geometry.
func (c *Client) GetState(app string) (*ActionData, error) {
	return c.sendAction(CommandGetState, TargetPayload{App: app})
}

// Undo reverses the most recent recorded action.
func (c *Client) Undo() (*HistoryActionData, error) {
	resp, err := c.sendRequest(&Request{Command: CommandUndo})
	if err != nil {
		return nil, err
	}

	var data HistoryActionData
	if err := json.Unmarshal(resp.Data, &data); err != nil {
		return nil, fmt.Errorf("failed to parse undo data: %w", err)
	}
	return &data, nil
}

// Redo replays the most recently undone action.
func (c *Client) Redo() (*HistoryActionData, error) {
	resp, err := c.sendRequest(&Request{Command: CommandRedo})
	if err != nil {
		return nil, err
	}

	var data HistoryActionData
	if err := json.Unmarshal(resp.Data, &data); err != nil {
		return nil, fmt.Errorf("failed to parse redo data: %w", err)
	}
	return &data, nil
}

// HistoryList retrieves the retained action records and cursor.
func (c *Client) HistoryList() (*HistoryListData, error) {
	resp, err := c.sendRequest(&Request{Command: CommandHistoryList})
	if err != nil {
		return nil, err
	}

	var data HistoryListData
	if err := json.Unmarshal(resp.Data, &data); err != nil {
		return nil, fmt.Errorf("failed to parse history data: %w", err)
	}
	return &data, nil
}

// HistoryClear discards all retained action records.
func (c *Client) HistoryClear() error {
	_, err := c.sendRequest(&Request{Command: CommandHistoryClear})
	return err
}

// GetStatus retrieves daemon status
func (c *Client) GetStatus() (*StatusData, error) {
	resp, err := c.sendRequest(&Request{Command: CommandGetStatus})
	if err != nil {
		return nil, err
	}

	var status StatusData
	if err := json.Unmarshal(resp.Data, &status); err != nil {
		return nil, fmt.Errorf("failed to parse status data: %w", err)
	}

	return &status, nil
}

// Ping checks if the daemon is responding
func (c *Client) Ping() error {
	_, err := c.GetStatus()
	return err
}

// Subscribe opens an event stream and calls handle for each event until
// the connection closes, the daemon drops the subscriber, or handle
// returns an error. Blocks for the lifetime of the stream.
func (c *Client) Subscribe(filters []string, handle func(StreamEvent) error) error {
	conn, err := net.DialTimeout("unix", c.socketPath, c.timeout)
	if err != nil {
		return fmt.Errorf("failed to connect to daemon: %w (is the daemon running?)", err)
	}
	defer conn.Close()

	payload, err := json.Marshal(SubscribePayload{Filters: filters})
	if err != nil {
		return fmt.Errorf("failed to marshal subscribe payload: %w", err)
	}

	reqData, err := json.Marshal(&Request{Command: CommandSubscribe, Payload: payload})
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	if _, err := conn.Write(append(reqData, '\n')); err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}

	reader := bufio.NewReader(conn)

	// First line is the subscription acknowledgement.
	ackData, err := reader.ReadBytes('\n')
	if err != nil {
		return fmt.Errorf("failed to read subscribe ack: %w", err)
	}
	var ack Response
	if err := json.Unmarshal(ackData, &ack); err != nil {
		return fmt.Errorf("failed to parse subscribe ack: %w", err)
	}
	if ack.Status == "ERROR" {
		code := ack.Code
		if code == "" {
			code = CodeInternal
		}
		return &ErrorReply{Code: code, Message: ack.Error}
	}

	for {
		line, err := reader.ReadBytes('\n')
		if err != nil {
			return nil // stream closed
		}

		var ev StreamEvent
		if err := json.Unmarshal(line, &ev); err != nil {
			return fmt.Errorf("failed to parse event: %w", err)
		}
		if err := handle(ev); err != nil {
			return err
		}
	}
}
