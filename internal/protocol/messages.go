// Package protocol defines the messages exchanged between a guest project
// and the host running its terminals.
//
// A guest opens a terminal first and receives the host-assigned terminal id;
// every later message is addressed by (project_id, terminal_id).
package protocol

import (
	"errors"

	"github.com/GriffinCanCode/AgentOS/terminals/internal/domain/task"
)

// Service and method names of the remote terminal service.
const (
	ServiceName = "agentos.terminals.v1.RemoteTerminals"

	MethodOpenTerminal   = "OpenTerminal"
	MethodInputTerminal  = "InputTerminal"
	MethodOutputTerminal = "OutputTerminal"
	MethodCloseTerminal  = "CloseTerminal"
)

// FullMethod returns the gRPC path of a method.
func FullMethod(method string) string {
	return "/" + ServiceName + "/" + method
}

// ErrInvalid is returned for messages missing required fields.
var ErrInvalid = errors.New("invalid message")

type OpenTerminalRequest struct {
	ProjectID        uint64                `json:"project_id"`
	WorkingDirectory string                `json:"working_directory,omitempty"`
	Task             *task.SpawnInTerminal `json:"task,omitempty"`
}

type OpenTerminalResponse struct {
	TerminalID uint64 `json:"terminal_id"`
}

type InputTerminalRequest struct {
	ProjectID  uint64 `json:"project_id"`
	TerminalID uint64 `json:"terminal_id"`
	Data       []byte `json:"data"`
}

type OutputTerminalRequest struct {
	ProjectID  uint64 `json:"project_id"`
	TerminalID uint64 `json:"terminal_id"`
}

// OutputChunk carries terminal output. The last chunk of a stream has
// Exited set; ExitCode is only meaningful when HasExitCode is set too.
type OutputChunk struct {
	Data        []byte `json:"data,omitempty"`
	Exited      bool   `json:"exited,omitempty"`
	HasExitCode bool   `json:"has_exit_code,omitempty"`
	ExitCode    int    `json:"exit_code,omitempty"`
}

// ExitStatus converts a final chunk into an exit status. It returns nil when
// the host did not learn how the process ended.
func (c OutputChunk) ExitStatus() *task.ExitStatus {
	if !c.Exited || !c.HasExitCode {
		return nil
	}
	return &task.ExitStatus{Code: c.ExitCode}
}

type CloseTerminalRequest struct {
	ProjectID  uint64 `json:"project_id"`
	TerminalID uint64 `json:"terminal_id"`
}

// Ack acknowledges a request with no payload.
type Ack struct{}

// Validate checks the addressing fields.
func (r *InputTerminalRequest) Validate() error {
	return validateAddress(r.ProjectID, r.TerminalID)
}

// Validate checks the addressing fields.
func (r *OutputTerminalRequest) Validate() error {
	return validateAddress(r.ProjectID, r.TerminalID)
}

// Validate checks the addressing fields.
func (r *CloseTerminalRequest) Validate() error {
	return validateAddress(r.ProjectID, r.TerminalID)
}

// Validate checks the project id.
func (r *OpenTerminalRequest) Validate() error {
	if r.ProjectID == 0 {
		return errors.Join(ErrInvalid, errors.New("project_id is required"))
	}
	return nil
}

func validateAddress(projectID, terminalID uint64) error {
	switch {
	case projectID == 0:
		return errors.Join(ErrInvalid, errors.New("project_id is required"))
	case terminalID == 0:
		return errors.Join(ErrInvalid, errors.New("terminal_id is required"))
	}
	return nil
}
