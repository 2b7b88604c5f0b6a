package ipc

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/1broseidon/sashd/internal/dispatch"
	"github.com/1broseidon/sashd/internal/event"
	"github.com/1broseidon/sashd/internal/history"
	"github.com/1broseidon/sashd/internal/wm"
)

// Server handles IPC requests from clients. Control commands are
// one-shot: one request line, one response line. SUBSCRIBE switches the
// connection into a stream of event lines that lasts until the client
// disconnects or the bus kicks the subscriber for lagging.
type Server struct {
	socketPath string
	listener   net.Listener

	dispatcher *dispatch.Dispatcher
	hist       *history.Store
	bus        *event.Bus
	lister     wm.Lister

	startTime    time.Time
	shuttingDown bool
	shutdownMu   sync.Mutex
	logger       *zap.Logger
}

// NewServer creates a new IPC server
func NewServer(socketPath string, dispatcher *dispatch.Dispatcher, hist *history.Store, bus *event.Bus, lister wm.Lister, logger *zap.Logger) *Server {
	return &Server{
		socketPath: socketPath,
		dispatcher: dispatcher,
		hist:       hist,
		bus:        bus,
		lister:     lister,
		startTime:  time.Now(),
		logger:     logger,
	}
}

// Start begins listening for IPC connections. An existing socket file is
// removed only when nothing answers on it; a socket that still accepts
// connections belongs to a live daemon and is left alone.
func (s *Server) Start() error {
	if _, err := os.Stat(s.socketPath); err == nil {
		if conn, err := net.DialTimeout("unix", s.socketPath, time.Second); err == nil {
			conn.Close()
			return fmt.Errorf("socket %s is already in use by a running daemon", s.socketPath)
		}
		// Stale socket from an unclean shutdown.
		os.Remove(s.socketPath)
	}

	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("failed to create IPC socket: %w", err)
	}
	s.listener = listener

	// Set socket permissions
	if err := os.Chmod(s.socketPath, 0600); err != nil {
		return fmt.Errorf("failed to set socket permissions: %w", err)
	}

	s.logger.Info("IPC server listening", zap.String("socket", s.socketPath))

	// Accept connections
	go s.acceptLoop()

	return nil
}

// acceptLoop accepts incoming connections
func (s *Server) acceptLoop() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			s.shutdownMu.Lock()
			if s.shuttingDown {
				s.shutdownMu.Unlock()
				return
			}
			s.shutdownMu.Unlock()
			s.logger.Warn("IPC accept error", zap.Error(err))
			continue
		}

		go s.handleConnection(conn)
	}
}

// handleConnection handles a single IPC connection
func (s *Server) handleConnection(conn net.Conn) {
	defer conn.Close()

	reader := bufio.NewReader(conn)

	// Read the request (expect JSON on a single line)
	data, err := reader.ReadBytes('\n')
	if err != nil && err != io.EOF {
		s.logger.Warn("IPC read error", zap.Error(err))
		return
	}

	req, err := ParseRequest(data)
	if err != nil {
		s.sendError(conn, CodeBadRequest, fmt.Sprintf("Invalid request: %v", err))
		return
	}

	if req.Command == CommandSubscribe {
		s.handleSubscribe(conn, reader, req.Payload)
		return
	}

	resp := s.handleCommand(req)

	respData, err := resp.Marshal()
	if err != nil {
		s.logger.Error("failed to marshal response", zap.Error(err))
		return
	}

	respData = append(respData, '\n')
	if _, err := conn.Write(respData); err != nil {
		s.logger.Warn("failed to send response", zap.Error(err))
	}
}

// handleCommand processes an IPC command and returns a response
func (s *Server) handleCommand(req *Request) *Response {
	switch req.Command {
	case CommandFocus:
		return s.handleFocus(req.Payload)
	case CommandMove:
		return s.handleMove(req.Payload)
	case CommandResize:
		return s.handleResize(req.Payload)
	case CommandMaximize:
		return s.handleMaximize(req.Payload)
	case CommandMoveDisplay:
		return s.handleMoveDisplay(req.Payload)
	case CommandGetState:
		return s.handleGetState(req.Payload)
	case CommandUndo:
		return s.handleUndo()
	case CommandRedo:
		return s.handleRedo()
	case CommandHistoryList:
		return s.handleHistoryList()
	case CommandHistoryClear:
		return s.handleHistoryClear()
	case CommandGetStatus:
		return s.handleGetStatus()
	default:
		return NewErrorResponse(CodeBadRequest, fmt.Sprintf("Unknown command: %s", req.Command))
	}
}

func (s *Server) handleFocus(payload json.RawMessage) *Response {
	var p TargetPayload
	if resp := unmarshalPayload(payload, &p); resp != nil {
		return resp
	}
	if p.App == "" {
		return NewErrorResponse(CodeBadRequest, "app is required")
	}

	result, err := s.dispatcher.Focus(p.App)
	if err != nil {
		return errorResponse(err)
	}

	resp, _ := NewOKResponse(actionData(result.Match, nil))
	return resp
}

func (s *Server) handleMove(payload json.RawMessage) *Response {
	var p MovePayload
	if resp := unmarshalPayload(payload, &p); resp != nil {
		return resp
	}
	if p.App == "" {
		return NewErrorResponse(CodeBadRequest, "app is required")
	}

	result, err := s.dispatcher.Move(p.App, p.X, p.Y)
	if err != nil {
		return errorResponse(err)
	}

	resp, _ := NewOKResponse(actionData(result.Match, result.Geometry))
	return resp
}

func (s *Server) handleResize(payload json.RawMessage) *Response {
	var p ResizePayload
	if resp := unmarshalPayload(payload, &p); resp != nil {
		return resp
	}
	if p.App == "" {
		return NewErrorResponse(CodeBadRequest, "app is required")
	}
	if p.Width <= 0 || p.Height <= 0 {
		return NewErrorResponse(CodeBadRequest, "width and height must be positive")
	}

	result, err := s.dispatcher.Resize(p.App, p.Width, p.Height)
	if err != nil {
		return errorResponse(err)
	}

	resp, _ := NewOKResponse(actionData(result.Match, result.Geometry))
	return resp
}

func (s *Server) handleMaximize(payload json.RawMessage) *Response {
	var p TargetPayload
	if resp := unmarshalPayload(payload, &p); resp != nil {
		return resp
	}
	if p.App == "" {
		return NewErrorResponse(CodeBadRequest, "app is required")
	}

	result, err := s.dispatcher.Maximize(p.App)
	if err != nil {
		return errorResponse(err)
	}

	resp, _ := NewOKResponse(actionData(result.Match, result.Geometry))
	return resp
}

func (s *Server) handleMoveDisplay(payload json.RawMessage) *Response {
	var p MoveDisplayPayload
	if resp := unmarshalPayload(payload, &p); resp != nil {
		return resp
	}
	if p.App == "" {
		return NewErrorResponse(CodeBadRequest, "app is required")
	}
	if p.Display == "" {
		return NewErrorResponse(CodeBadRequest, "display is required")
	}

	result, err := s.dispatcher.MoveDisplay(p.App, p.Display)
	if err != nil {
		return errorResponse(err)
	}

	resp, _ := NewOKResponse(actionData(result.Match, result.Geometry))
	return resp
}

func (s *Server) handleGetState(payload json.RawMessage) *Response {
	var p TargetPayload
	if resp := unmarshalPayload(payload, &p); resp != nil {
		return resp
	}
	if p.App == "" {
		return NewErrorResponse(CodeBadRequest, "app is required")
	}

	result, err := s.dispatcher.State(p.App)
	if err != nil {
		return errorResponse(err)
	}

	resp, _ := NewOKResponse(actionData(result.Match, result.Geometry))
	return resp
}

func (s *Server) handleUndo() *Response {
	rec, err := s.dispatcher.Undo()
	if err != nil {
		return errorResponse(err)
	}

	resp, _ := NewOKResponse(HistoryActionData{Action: rec.Kind, App: rec.App, PID: rec.PID})
	return resp
}

func (s *Server) handleRedo() *Response {
	rec, err := s.dispatcher.Redo()
	if err != nil {
		return errorResponse(err)
	}

	resp, _ := NewOKResponse(HistoryActionData{Action: rec.Kind, App: rec.App, PID: rec.PID})
	return resp
}

func (s *Server) handleHistoryList() *Response {
	if !s.hist.Enabled() {
		return NewErrorResponse(CodeHistoryDisabled, history.ErrDisabled.Error())
	}

	records, cursor := s.hist.List()
	resp, _ := NewOKResponse(HistoryListData{Records: records, Cursor: cursor})
	return resp
}

func (s *Server) handleHistoryClear() *Response {
	if !s.hist.Enabled() {
		return NewErrorResponse(CodeHistoryDisabled, history.ErrDisabled.Error())
	}

	s.hist.Clear()
	resp, _ := NewOKResponse(nil)
	return resp
}

// handleGetStatus returns current daemon status
func (s *Server) handleGetStatus() *Response {
	undo, redo := s.hist.Depths()

	status := StatusData{
		DaemonRunning:  true,
		UptimeSeconds:  int64(time.Since(s.startTime).Seconds()),
		AppCount:       len(s.lister.Apps()),
		Subscribers:    s.bus.SubscriberCount(),
		LastSeq:        s.bus.Seq(),
		HistoryEnabled: s.hist.Enabled(),
		UndoDepth:      undo,
		RedoDepth:      redo,
	}

	resp, _ := NewOKResponse(status)
	return resp
}

// handleSubscribe acknowledges the subscription, then pumps matching
// events to the connection as JSON lines. A second goroutine drains the
// connection so a client close is noticed even when no events flow.
func (s *Server) handleSubscribe(conn net.Conn, reader *bufio.Reader, payload json.RawMessage) {
	var p SubscribePayload
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &p); err != nil {
			s.sendError(conn, CodeBadRequest, fmt.Sprintf("Invalid subscribe payload: %v", err))
			return
		}
	}

	for _, f := range p.Filters {
		if len(event.ExpandFilters([]string{f})) == 0 {
			s.sendError(conn, CodeBadRequest, fmt.Sprintf("Unknown event filter: %s", f))
			return
		}
	}

	sub := s.bus.Register(p.Filters)
	defer s.bus.Unregister(sub.ID())

	ack, _ := NewOKResponse(SubscribedData{SubscriptionID: sub.ID(), Filters: p.Filters})
	ackData, _ := ack.Marshal()
	if _, err := conn.Write(append(ackData, '\n')); err != nil {
		return
	}

	s.logger.Info("event subscriber connected",
		zap.Uint64("id", sub.ID()),
		zap.Strings("filters", p.Filters))

	// Detect client disconnect.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		buf := make([]byte, 64)
		for {
			if _, err := reader.Read(buf); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case ev := <-sub.Events():
			line, err := json.Marshal(ev)
			if err != nil {
				s.logger.Error("failed to marshal event", zap.Error(err))
				continue
			}
			if _, err := conn.Write(append(line, '\n')); err != nil {
				return
			}
		case <-sub.Done():
			s.logger.Info("event subscriber dropped",
				zap.Uint64("id", sub.ID()),
				zap.Uint64("lag", sub.Lag()))
			return
		case <-closed:
			s.logger.Debug("event subscriber disconnected", zap.Uint64("id", sub.ID()))
			return
		}
	}
}

// errorResponse maps a dispatcher or history error to a wire response.
func errorResponse(err error) *Response {
	var notFound *dispatch.AppNotFoundError
	switch {
	case errors.As(err, &notFound):
		return NewErrorResponse(CodeAppNotFound, err.Error())
	case errors.Is(err, dispatch.ErrTimeout):
		return NewErrorResponse(CodeTimeout, err.Error())
	case errors.Is(err, history.ErrDisabled):
		return NewErrorResponse(CodeHistoryDisabled, err.Error())
	case errors.Is(err, history.ErrEmpty):
		return NewErrorResponse(CodeHistoryEmpty, err.Error())
	default:
		var action *dispatch.ActionError
		if errors.As(err, &action) {
			return NewErrorResponse(CodeActionFailed, err.Error())
		}
		return NewErrorResponse(CodeInternal, err.Error())
	}
}

func unmarshalPayload(payload json.RawMessage, v interface{}) *Response {
	if len(payload) == 0 {
		return NewErrorResponse(CodeBadRequest, "payload is required")
	}
	if err := json.Unmarshal(payload, v); err != nil {
		return NewErrorResponse(CodeBadRequest, fmt.Sprintf("Invalid payload: %v", err))
	}
	return nil
}

// sendError sends an error response
func (s *Server) sendError(conn net.Conn, code, errMsg string) {
	resp := NewErrorResponse(code, errMsg)
	data, _ := resp.Marshal()
	data = append(data, '\n')
	conn.Write(data)
}

// Stop gracefully shuts down the IPC server
func (s *Server) Stop() {
	s.shutdownMu.Lock()
	s.shuttingDown = true
	s.shutdownMu.Unlock()

	if s.listener != nil {
		s.listener.Close()
	}
	os.Remove(s.socketPath)
}
