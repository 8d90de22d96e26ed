package remote

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/status"

	"github.com/GriffinCanCode/AgentOS/terminals/internal/domain/project"
	"github.com/GriffinCanCode/AgentOS/terminals/internal/domain/terminal"
	"github.com/GriffinCanCode/AgentOS/terminals/internal/infrastructure/logging"
	"github.com/GriffinCanCode/AgentOS/terminals/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/AgentOS/terminals/internal/protocol"
	"github.com/GriffinCanCode/AgentOS/terminals/internal/shared/id"
)

// exitWait bounds how long a finished output stream waits for the exit
// status before reporting an unknown one.
const exitWait = 2 * time.Second

type hostKey struct {
	project  uint64
	terminal uint64
}

// hosted is a terminal the host runs for a guest. The host holds one
// handle and subscribes to the output at open time so nothing is lost
// before the guest starts streaming.
type hosted struct {
	handle      *terminal.Handle
	output      <-chan []byte
	unsubscribe func()
	streaming   atomic.Bool
}

// Host serves local projects to remote guests.
type Host struct {
	log     *zap.Logger
	metrics *monitoring.Metrics
	ids     id.Sequence

	mu        sync.RWMutex
	projects  map[uint64]*project.Project
	terminals map[hostKey]*hosted
}

// NewHost creates a host with no projects.
func NewHost(log *zap.Logger, metrics *monitoring.Metrics) *Host {
	if log == nil {
		log = zap.NewNop()
	}
	return &Host{
		log:       log,
		metrics:   metrics,
		projects:  make(map[uint64]*project.Project),
		terminals: make(map[hostKey]*hosted),
	}
}

// AddProject makes p reachable by its id.
func (h *Host) AddProject(p *project.Project) error {
	if p.ID() == 0 {
		return errors.New("hosted project needs a non-zero id")
	}
	if p.IsRemote() {
		return errors.New("cannot host a remote project")
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.projects[p.ID()]; ok {
		return fmt.Errorf("project %d already hosted", p.ID())
	}
	h.projects[p.ID()] = p
	return nil
}

func (h *Host) lookupProject(projectID uint64) (*project.Project, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	p, ok := h.projects[projectID]
	if !ok {
		return nil, status.Errorf(codes.NotFound, "project %d not found", projectID)
	}
	return p, nil
}

func (h *Host) lookup(projectID, terminalID uint64) (*hosted, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	t, ok := h.terminals[hostKey{projectID, terminalID}]
	if !ok {
		return nil, status.Errorf(codes.NotFound, "terminal %d not found in project %d", terminalID, projectID)
	}
	return t, nil
}

func (h *Host) hostedCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.terminals)
}

// OpenTerminal creates a local terminal for a guest.
func (h *Host) OpenTerminal(ctx context.Context, req *protocol.OpenTerminalRequest) (*protocol.OpenTerminalResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	p, err := h.lookupProject(req.ProjectID)
	if err != nil {
		return nil, err
	}

	display := terminal.NewBroadcaster()
	output, unsubscribe := display.Subscribe()

	handle, err := p.CreateTerminal(ctx, project.CreateRequest{
		WorkingDirectory: req.WorkingDirectory,
		Task:             req.Task,
		Display:          display,
	})
	if err != nil {
		unsubscribe()
		if errors.Is(err, project.ErrClosed) {
			return nil, status.Error(codes.FailedPrecondition, err.Error())
		}
		return nil, status.Errorf(codes.Internal, "create terminal: %v", err)
	}
	handle.OnRelease(func(*terminal.Terminal) { display.Close() })

	terminalID := h.ids.Next()
	h.mu.Lock()
	h.terminals[hostKey{req.ProjectID, terminalID}] = &hosted{
		handle:      handle,
		output:      output,
		unsubscribe: unsubscribe,
	}
	h.mu.Unlock()
	h.metrics.SetRemoteHosted(h.hostedCount())

	h.log.Info("Opened terminal for guest",
		logging.ProjectID(req.ProjectID),
		logging.RemoteTerminalID(terminalID),
		logging.TerminalID(handle.Terminal().ID().String()))
	return &protocol.OpenTerminalResponse{TerminalID: terminalID}, nil
}

// InputTerminal writes guest input to a terminal.
func (h *Host) InputTerminal(ctx context.Context, req *protocol.InputTerminalRequest) (*protocol.Ack, error) {
	if err := req.Validate(); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	t, err := h.lookup(req.ProjectID, req.TerminalID)
	if err != nil {
		return nil, err
	}
	if err := t.handle.Terminal().InputBytes(req.Data); err != nil {
		if errors.Is(err, terminal.ErrClosed) {
			return nil, status.Error(codes.FailedPrecondition, err.Error())
		}
		return nil, status.Errorf(codes.Internal, "write input: %v", err)
	}
	return &protocol.Ack{}, nil
}

// OutputTerminal streams a terminal's output. Only one stream per terminal
// is allowed. The stream ends with a chunk marking the exit.
func (h *Host) OutputTerminal(req *protocol.OutputTerminalRequest, stream OutputStream) error {
	if err := req.Validate(); err != nil {
		return status.Error(codes.InvalidArgument, err.Error())
	}
	t, err := h.lookup(req.ProjectID, req.TerminalID)
	if err != nil {
		return err
	}
	if !t.streaming.CompareAndSwap(false, true) {
		return status.Errorf(codes.AlreadyExists, "terminal %d is already streaming", req.TerminalID)
	}
	// A stream that ends before the exit chunk frees the terminal for the
	// next subscriber.
	finished := false
	defer func() {
		if !finished {
			t.streaming.Store(false)
		}
	}()

	ctx := stream.Context()
	term := t.handle.Terminal()

	for done := false; !done; {
		select {
		case data, ok := <-t.output:
			if !ok {
				done = true
				break
			}
			if err := stream.Send(&protocol.OutputChunk{Data: data}); err != nil {
				return err
			}
		case <-term.Done():
			if err := drain(t.output, stream); err != nil {
				return err
			}
			done = true
		case <-ctx.Done():
			return status.FromContextError(ctx.Err()).Err()
		}
	}

	final := &protocol.OutputChunk{Exited: true}
	select {
	case <-term.Exited():
	case <-time.After(exitWait):
	case <-ctx.Done():
		return status.FromContextError(ctx.Err()).Err()
	}
	if exit := term.ExitStatus(); exit != nil {
		final.HasExitCode = true
		final.ExitCode = exit.Code
	}
	if err := stream.Send(final); err != nil {
		return err
	}
	finished = true
	return nil
}

// drain sends output that was queued before the pty finished.
func drain(output <-chan []byte, stream OutputStream) error {
	for {
		select {
		case data, ok := <-output:
			if !ok {
				return nil
			}
			if err := stream.Send(&protocol.OutputChunk{Data: data}); err != nil {
				return err
			}
		default:
			return nil
		}
	}
}

// CloseTerminal releases the host's handle to a terminal.
func (h *Host) CloseTerminal(ctx context.Context, req *protocol.CloseTerminalRequest) (*protocol.Ack, error) {
	if err := req.Validate(); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	key := hostKey{req.ProjectID, req.TerminalID}
	h.mu.Lock()
	t, ok := h.terminals[key]
	delete(h.terminals, key)
	h.mu.Unlock()
	if !ok {
		return nil, status.Errorf(codes.NotFound, "terminal %d not found in project %d", req.TerminalID, req.ProjectID)
	}

	t.unsubscribe()
	t.handle.Release()
	h.metrics.SetRemoteHosted(h.hostedCount())

	h.log.Info("Closed terminal for guest",
		logging.ProjectID(req.ProjectID),
		logging.RemoteTerminalID(req.TerminalID))
	return &protocol.Ack{}, nil
}

// Close releases every hosted terminal.
func (h *Host) Close() {
	h.mu.Lock()
	terminals := h.terminals
	h.terminals = make(map[hostKey]*hosted)
	h.mu.Unlock()

	for _, t := range terminals {
		t.unsubscribe()
		t.handle.Release()
	}
	h.metrics.SetRemoteHosted(0)
}

// NewServer creates a gRPC server serving host.
func NewServer(host *Host, opts ...grpc.ServerOption) *grpc.Server {
	defaults := []grpc.ServerOption{
		grpc.MaxRecvMsgSize(MaxMessageSize),
		grpc.MaxSendMsgSize(MaxMessageSize),
		grpc.KeepaliveEnforcementPolicy(keepalive.EnforcementPolicy{
			MinTime:             30 * time.Second,
			PermitWithoutStream: false,
		}),
	}
	srv := grpc.NewServer(append(defaults, opts...)...)
	RegisterTerminalsServer(srv, host)
	return srv
}

// Serve listens on addr and serves host until ctx ends.
func Serve(ctx context.Context, addr string, host *Host, log *zap.Logger, opts ...grpc.ServerOption) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	srv := NewServer(host, opts...)

	go func() {
		<-ctx.Done()
		srv.GracefulStop()
	}()

	log.Info("Remote terminal host listening", zap.String("addr", lis.Addr().String()))
	if err := srv.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return err
	}
	return nil
}
