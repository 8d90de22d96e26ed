// Package project creates and tracks the terminals of a project.
//
// A local project spawns terminals on a pty, with settings resolved from the
// worktree the terminal runs in. A remote project proxies every terminal to
// the host that owns the project.
package project

import (
	"context"
	"errors"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/AgentOS/terminals/internal/domain/registry"
	"github.com/GriffinCanCode/AgentOS/terminals/internal/domain/settings"
	"github.com/GriffinCanCode/AgentOS/terminals/internal/domain/task"
	"github.com/GriffinCanCode/AgentOS/terminals/internal/domain/terminal"
	"github.com/GriffinCanCode/AgentOS/terminals/internal/domain/worktree"
	"github.com/GriffinCanCode/AgentOS/terminals/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/AgentOS/terminals/internal/protocol"
)

var (
	// ErrMissingRemoteID is returned when a remote project has no id to
	// address the host with.
	ErrMissingRemoteID = errors.New("remote project without a remote id")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("project closed")
)

// DefaultCallTimeout bounds each request to the remote host.
const DefaultCallTimeout = 10 * time.Second

// RemoteClient talks to the host of a remote project.
type RemoteClient interface {
	OpenTerminal(ctx context.Context, req *protocol.OpenTerminalRequest) (*protocol.OpenTerminalResponse, error)
	InputTerminal(ctx context.Context, req *protocol.InputTerminalRequest) error
	CloseTerminal(ctx context.Context, req *protocol.CloseTerminalRequest) error
	SubscribeOutput(ctx context.Context, req *protocol.OutputTerminalRequest) (<-chan protocol.OutputChunk, <-chan error)
}

// Options configure a Project.
type Options struct {
	// ID addresses the project on the wire: hosts are looked up by it and
	// guests send it with every request.
	ID        uint64
	Worktrees *worktree.Set
	Settings  *settings.Store
	// Remote makes this a guest project of a remote host.
	Remote      RemoteClient
	CallTimeout time.Duration
	Cols, Rows  uint16
	Logger      *zap.Logger
	Metrics     *monitoring.Metrics
	// PathEnv returns the PATH tasks inherit. Defaults to our own.
	PathEnv func() string
}

// CreateRequest asks for a new terminal.
type CreateRequest struct {
	// WorkingDirectory is where the process starts; empty inherits ours.
	WorkingDirectory string
	// Task runs a command instead of an interactive shell.
	Task    *task.SpawnInTerminal
	Display terminal.Display
}

// Project owns the terminals of one project.
type Project struct {
	id          uint64
	worktrees   *worktree.Set
	settings    *settings.Store
	terminals   *registry.Terminals
	remote      RemoteClient
	callTimeout time.Duration
	cols, rows  uint16
	log         *zap.Logger
	metrics     *monitoring.Metrics
	pathEnv     func() string

	mu      sync.Mutex
	remotes map[uint64]*terminal.Terminal
	closed  bool
}

// New creates a project.
func New(opts Options) *Project {
	if opts.Worktrees == nil {
		opts.Worktrees = worktree.NewSet()
	}
	if opts.Settings == nil {
		opts.Settings = settings.NewStore()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = DefaultCallTimeout
	}
	if opts.PathEnv == nil {
		opts.PathEnv = func() string { return os.Getenv("PATH") }
	}

	return &Project{
		id:          opts.ID,
		worktrees:   opts.Worktrees,
		settings:    opts.Settings,
		terminals:   registry.New(),
		remote:      opts.Remote,
		callTimeout: opts.CallTimeout,
		cols:        opts.Cols,
		rows:        opts.Rows,
		log:         opts.Logger,
		metrics:     opts.Metrics,
		pathEnv:     opts.PathEnv,
		remotes:     make(map[uint64]*terminal.Terminal),
	}
}

// ID is the wire id of the project.
func (p *Project) ID() uint64 { return p.id }

// IsRemote reports whether terminals are proxied to a host.
func (p *Project) IsRemote() bool { return p.remote != nil }

// Worktrees is the set of worktrees of the project.
func (p *Project) Worktrees() *worktree.Set { return p.worktrees }

// Settings is the settings store of the project.
func (p *Project) Settings() *settings.Store { return p.settings }

// Registry exposes the terminal registry.
func (p *Project) Registry() *registry.Terminals { return p.terminals }

// CreateTerminal starts a terminal and returns the caller's handle to it.
// The terminal lives until every clone of the handle is released.
func (p *Project) CreateTerminal(ctx context.Context, req CreateRequest) (*terminal.Handle, error) {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return nil, ErrClosed
	}

	if req.Display == nil {
		req.Display = terminal.NopDisplay()
	}
	if p.IsRemote() {
		return p.createRemoteTerminal(ctx, req)
	}
	return p.createLocalTerminal(req)
}

// Terminals returns the live terminals, local ones first.
func (p *Project) Terminals() []*terminal.Terminal {
	out := p.terminals.Local()

	p.mu.Lock()
	defer p.mu.Unlock()
	for _, remoteID := range p.terminals.RemoteIDs() {
		if t, ok := p.remotes[remoteID]; ok {
			out = append(out, t)
		}
	}
	return out
}

// Close closes every terminal and tears the registry down. Handles stay
// valid but their terminals no longer accept input.
func (p *Project) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	remotes := make([]*terminal.Terminal, 0, len(p.remotes))
	for _, t := range p.remotes {
		remotes = append(remotes, t)
	}
	p.mu.Unlock()

	for _, t := range p.terminals.Local() {
		t.Close()
	}
	for _, t := range remotes {
		t.Close()
	}
	p.terminals.Close()
	p.log.Info("Project closed", zap.Int("remote_terminals", len(remotes)))
}

func (p *Project) options(location string) terminal.Options {
	return terminal.Options{
		Cols:     p.cols,
		Rows:     p.rows,
		Location: location,
		Logger:   p.log,
	}
}
