package ws

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/AgentOS/terminals/internal/domain/terminal"
	"github.com/GriffinCanCode/AgentOS/terminals/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/AgentOS/terminals/internal/shared/id"
)

const (
	writeWait  = 10 * time.Second
	pingPeriod = 30 * time.Second
	pongWait   = 2 * pingPeriod
	// exitWait bounds how long to wait for an exit status after output ends.
	exitWait = 2 * time.Second
	// maxMessageSize caps client messages; pastes beyond it are rejected.
	maxMessageSize = 1 << 20
)

// Terminals hands out handle clones for attached clients.
type Terminals interface {
	Acquire(terminalID id.TerminalID) (*terminal.Handle, bool)
}

// ClientMessage is a control message from the browser.
type ClientMessage struct {
	Type string `json:"type"`
	Data string `json:"data,omitempty"`
	Cols uint16 `json:"cols,omitempty"`
	Rows uint16 `json:"rows,omitempty"`
}

// Handler manages WebSocket attachments
type Handler struct {
	terminals Terminals
	metrics   *monitoring.Metrics
	log       *zap.Logger
	upgrader  websocket.Upgrader
}

// NewHandler creates a new WebSocket handler. checkOrigin nil allows every
// origin.
func NewHandler(terminals Terminals, metrics *monitoring.Metrics, log *zap.Logger, checkOrigin func(*http.Request) bool) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	if checkOrigin == nil {
		checkOrigin = func(*http.Request) bool { return true }
	}
	return &Handler{
		terminals: terminals,
		metrics:   metrics,
		log:       log.Named("ws"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 32 * 1024,
			CheckOrigin:     checkOrigin,
		},
	}
}

// Attach upgrades the request and streams the terminal until either side
// goes away.
func (h *Handler) Attach(c *gin.Context) {
	terminalID := id.TerminalID(c.Param("id"))
	handle, ok := h.terminals.Acquire(terminalID)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "terminal not found"})
		return
	}
	defer handle.Release()

	t := handle.Terminal()
	display, ok := t.Display().(*terminal.Broadcaster)
	if !ok {
		c.JSON(http.StatusConflict, gin.H{"error": "terminal does not support attaching"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn("WebSocket upgrade failed", zap.Error(err))
		return
	}

	s := &session{
		connID:  uuid.NewString(),
		conn:    conn,
		term:    t,
		metrics: h.metrics,
		log:     h.log.With(zap.String("terminal_id", t.ID().String())),
		done:    make(chan struct{}),
	}
	s.log = s.log.With(zap.String("conn_id", s.connID))

	h.metrics.IncWSConnections()
	defer h.metrics.DecWSConnections()
	s.log.Info("WebSocket attached")

	output, unsubscribe := display.Subscribe()
	defer unsubscribe()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.writeLoop(output)
		// Unblocks readLoop when output ends first.
		conn.Close()
	}()

	s.readLoop()
	s.stop()
	wg.Wait()
	s.log.Info("WebSocket detached")
}

// session is one attached connection. Writes are serialized by writeMu.
type session struct {
	connID  string
	conn    *websocket.Conn
	term    *terminal.Terminal
	metrics *monitoring.Metrics
	log     *zap.Logger

	writeMu  sync.Mutex
	stopOnce sync.Once
	done     chan struct{}
}

func (s *session) stop() {
	s.stopOnce.Do(func() { close(s.done) })
}

func (s *session) readLoop() {
	s.conn.SetReadLimit(maxMessageSize)
	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg ClientMessage
		if err := s.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.log.Debug("WebSocket read error", zap.Error(err))
			}
			return
		}
		s.conn.SetReadDeadline(time.Now().Add(pongWait))
		switch msg.Type {
		case "input", "resize", "ping":
			s.metrics.RecordWSMessage("in", msg.Type)
		default:
			s.metrics.RecordWSMessage("in", "unknown")
		}

		switch msg.Type {
		case "input":
			if msg.Data == "" {
				continue
			}
			if err := s.term.InputBytes([]byte(msg.Data)); err != nil {
				s.sendError(err.Error())
			}
		case "resize":
			if err := s.term.Resize(msg.Cols, msg.Rows); err != nil {
				s.sendError(err.Error())
			}
		case "ping":
			s.send(gin.H{"type": "pong"})
		default:
			s.sendError("unknown message type")
		}
	}
}

func (s *session) writeLoop(output <-chan []byte) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case data, ok := <-output:
			if !ok {
				s.finish()
				return
			}
			if !s.writeOutput(data) {
				return
			}
		case <-s.term.Done():
			s.drain(output)
			s.finish()
			return
		case <-ticker.C:
			s.writeMu.Lock()
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			err := s.conn.WriteMessage(websocket.PingMessage, nil)
			s.writeMu.Unlock()
			if err != nil {
				s.stop()
				return
			}
		case <-s.done:
			return
		}
	}
}

// drain flushes output buffered before the pty reached end of stream.
func (s *session) drain(output <-chan []byte) {
	for {
		select {
		case data, ok := <-output:
			if !ok || !s.writeOutput(data) {
				return
			}
		default:
			return
		}
	}
}

// finish reports the exit status and closes the connection, which ends
// readLoop.
func (s *session) finish() {
	select {
	case <-s.term.Exited():
	case <-time.After(exitWait):
	case <-s.done:
		return
	}

	msg := gin.H{"type": "exit"}
	if exit := s.term.ExitStatus(); exit != nil {
		msg["exit_code"] = exit.Code
	}
	s.send(msg)

	s.writeMu.Lock()
	s.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "terminal exited"),
		time.Now().Add(writeWait))
	s.writeMu.Unlock()
}

func (s *session) writeOutput(data []byte) bool {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := s.conn.WriteMessage(websocket.BinaryMessage, data); err != nil {
		s.log.Debug("WebSocket write failed", zap.Error(err))
		s.stop()
		return false
	}
	s.metrics.RecordWSMessage("out", "output")
	return true
}

func (s *session) send(msg gin.H) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := s.conn.WriteJSON(msg); err != nil {
		return err
	}
	if typ, ok := msg["type"].(string); ok {
		s.metrics.RecordWSMessage("out", typ)
	}
	return nil
}

func (s *session) sendError(message string) error {
	return s.send(gin.H{
		"type":      "error",
		"message":   message,
		"timestamp": time.Now().Unix(),
	})
}
