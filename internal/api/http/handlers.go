package http

import (
	"encoding/base64"
	"errors"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/AgentOS/terminals/internal/domain/project"
	"github.com/GriffinCanCode/AgentOS/terminals/internal/domain/task"
	"github.com/GriffinCanCode/AgentOS/terminals/internal/domain/terminal"
	"github.com/GriffinCanCode/AgentOS/terminals/internal/infrastructure/tracing"
	"github.com/GriffinCanCode/AgentOS/terminals/internal/shared/id"
)

// Handlers contains the terminal HTTP handlers
type Handlers struct {
	project *project.Project
	log     *zap.Logger

	mu      sync.Mutex
	handles map[id.TerminalID]*terminal.Handle
}

// NewHandlers creates a new handler set
func NewHandlers(p *project.Project, log *zap.Logger) *Handlers {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handlers{
		project: p,
		log:     log.Named("api"),
		handles: make(map[id.TerminalID]*terminal.Handle),
	}
}

// CreateTerminalRequest is the body of POST /terminals.
type CreateTerminalRequest struct {
	WorkingDirectory string                 `json:"working_directory"`
	Task             *task.SpawnInTerminal `json:"task"`
}

// InputRequest is the body of POST /terminals/:id/input.
type InputRequest struct {
	Input       string `json:"input"`
	InputBase64 string `json:"input_base64"`
}

// ResizeRequest is the body of POST /terminals/:id/resize.
type ResizeRequest struct {
	Cols uint16 `json:"cols" binding:"required,min=1"`
	Rows uint16 `json:"rows" binding:"required,min=1"`
}

func errorJSON(c *gin.Context, code int, msg string) {
	c.JSON(code, gin.H{"error": msg})
}

// Health handles health check
func (h *Handlers) Health(c *gin.Context) {
	h.mu.Lock()
	held := len(h.handles)
	h.mu.Unlock()

	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"remote":    h.project.IsRemote(),
		"project":   h.project.ID(),
		"terminals": len(h.project.Terminals()),
		"held":      held,
	})
}

// CreateTerminal starts a shell or task terminal
func (h *Handlers) CreateTerminal(c *gin.Context) {
	var req CreateTerminalRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			errorJSON(c, http.StatusBadRequest, err.Error())
			return
		}
	}
	if req.Task != nil && req.Task.Command == "" {
		errorJSON(c, http.StatusBadRequest, "task command is required")
		return
	}

	display := terminal.NewBroadcaster()
	handle, err := h.project.CreateTerminal(c.Request.Context(), project.CreateRequest{
		WorkingDirectory: req.WorkingDirectory,
		Task:             req.Task,
		Display:          display,
	})
	if err != nil {
		display.Close()
		h.log.Error("Failed to create terminal", zap.Error(err), tracing.Field(c.Request.Context()))
		code := http.StatusInternalServerError
		if errors.Is(err, project.ErrClosed) {
			code = http.StatusServiceUnavailable
		}
		errorJSON(c, code, err.Error())
		return
	}
	handle.OnRelease(func(*terminal.Terminal) { display.Close() })

	t := handle.Terminal()
	h.mu.Lock()
	h.handles[t.ID()] = handle
	h.mu.Unlock()

	c.JSON(http.StatusCreated, t.Info())
}

// ListTerminals lists every live terminal of the project
func (h *Handlers) ListTerminals(c *gin.Context) {
	terms := h.project.Terminals()
	infos := make([]terminal.Info, 0, len(terms))
	for _, t := range terms {
		infos = append(infos, t.Info())
	}
	c.JSON(http.StatusOK, gin.H{
		"terminals": infos,
		"count":     len(infos),
	})
}

// GetTerminal returns one terminal
func (h *Handlers) GetTerminal(c *gin.Context) {
	t, ok := h.find(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, t.Info())
}

// Input writes keystrokes to a terminal
func (h *Handlers) Input(c *gin.Context) {
	t, ok := h.find(c)
	if !ok {
		return
	}

	var req InputRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorJSON(c, http.StatusBadRequest, err.Error())
		return
	}
	data := []byte(req.Input)
	if req.InputBase64 != "" {
		decoded, err := base64.StdEncoding.DecodeString(req.InputBase64)
		if err != nil {
			errorJSON(c, http.StatusBadRequest, "invalid input_base64")
			return
		}
		data = decoded
	}
	if len(data) == 0 {
		errorJSON(c, http.StatusBadRequest, "input is required")
		return
	}

	if err := t.InputBytes(data); err != nil {
		if errors.Is(err, terminal.ErrClosed) {
			errorJSON(c, http.StatusConflict, err.Error())
			return
		}
		errorJSON(c, http.StatusInternalServerError, err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "bytes": len(data)})
}

// Resize changes the terminal window size
func (h *Handlers) Resize(c *gin.Context) {
	t, ok := h.find(c)
	if !ok {
		return
	}

	var req ResizeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorJSON(c, http.StatusBadRequest, err.Error())
		return
	}
	if err := t.Resize(req.Cols, req.Rows); err != nil {
		errorJSON(c, http.StatusConflict, err.Error())
		return
	}
	cols, rows := t.Size()
	c.JSON(http.StatusOK, gin.H{"cols": cols, "rows": rows})
}

// History returns the scrollback lines
func (h *Handlers) History(c *gin.Context) {
	t, ok := h.find(c)
	if !ok {
		return
	}
	lines := t.History().Lines()
	c.JSON(http.StatusOK, gin.H{
		"lines":     lines,
		"count":     len(lines),
		"max_lines": t.History().Cap(),
	})
}

// DeleteTerminal releases the API's handle to a terminal
func (h *Handlers) DeleteTerminal(c *gin.Context) {
	terminalID := id.TerminalID(c.Param("id"))

	h.mu.Lock()
	handle, ok := h.handles[terminalID]
	delete(h.handles, terminalID)
	h.mu.Unlock()

	if !ok {
		errorJSON(c, http.StatusNotFound, "terminal not held by the api")
		return
	}
	handle.Release()
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// Acquire clones the API's handle to a terminal. The caller releases the
// clone when done with it.
func (h *Handlers) Acquire(terminalID id.TerminalID) (*terminal.Handle, bool) {
	h.mu.Lock()
	handle, ok := h.handles[terminalID]
	h.mu.Unlock()
	if !ok {
		return nil, false
	}
	clone := handle.Clone()
	return clone, clone != nil
}

// Close releases every handle held by the API.
func (h *Handlers) Close() {
	h.mu.Lock()
	handles := h.handles
	h.handles = make(map[id.TerminalID]*terminal.Handle)
	h.mu.Unlock()

	for _, handle := range handles {
		handle.Release()
	}
}

func (h *Handlers) find(c *gin.Context) (*terminal.Terminal, bool) {
	terminalID := id.TerminalID(c.Param("id"))
	if !id.IsTerminalID(terminalID.String()) {
		errorJSON(c, http.StatusBadRequest, "invalid terminal id")
		return nil, false
	}

	h.mu.Lock()
	handle, ok := h.handles[terminalID]
	h.mu.Unlock()
	if ok {
		return handle.Terminal(), true
	}

	for _, t := range h.project.Terminals() {
		if t.ID() == terminalID {
			return t, true
		}
	}
	errorJSON(c, http.StatusNotFound, "terminal not found")
	return nil, false
}
