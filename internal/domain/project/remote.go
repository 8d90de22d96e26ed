package project

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/AgentOS/terminals/internal/domain/task"
	"github.com/GriffinCanCode/AgentOS/terminals/internal/domain/terminal"
	"github.com/GriffinCanCode/AgentOS/terminals/internal/infrastructure/logging"
	"github.com/GriffinCanCode/AgentOS/terminals/internal/protocol"
)

func (p *Project) createRemoteTerminal(ctx context.Context, req CreateRequest) (*terminal.Handle, error) {
	if p.id == 0 {
		return nil, ErrMissingRemoteID
	}

	openCtx, cancel := context.WithTimeout(ctx, p.callTimeout)
	defer cancel()
	opened, err := p.remote.OpenTerminal(openCtx, &protocol.OpenTerminalRequest{
		ProjectID:        p.id,
		WorkingDirectory: req.WorkingDirectory,
		Task:             req.Task.Clone(),
	})
	if err != nil {
		p.metrics.IncSpawnFailures()
		return nil, fmt.Errorf("open remote terminal: %w", err)
	}
	remoteID := opened.TerminalID
	log := p.log.With(logging.ProjectID(p.id), logging.RemoteTerminalID(remoteID))

	inbound, err := p.terminals.InsertRemote(remoteID)
	if err != nil {
		p.metrics.IncSpawnFailures()
		p.closeRemote(remoteID, log)
		return nil, fmt.Errorf("register remote terminal: %w", err)
	}

	forward := func(ctx context.Context, data []byte) terminal.ControlFlow {
		callCtx, cancel := context.WithTimeout(ctx, p.callTimeout)
		defer cancel()
		err := p.remote.InputTerminal(callCtx, &protocol.InputTerminalRequest{
			ProjectID:  p.id,
			TerminalID: remoteID,
			Data:       data,
		})
		if err != nil {
			log.Warn("Forwarding terminal input failed", zap.Error(err))
			p.metrics.IncForwardFailures()
			return terminal.Break
		}
		p.metrics.AddRemoteInputBytes(len(data))
		return terminal.Continue
	}
	rp := terminal.NewRemotePty(forward, inbound)

	// The host resolves settings and activates environments itself; the
	// guest keeps only what describes the terminal.
	s := p.settings.Get(nil)
	s.DetectVenv.On = false
	tx, rx := task.NewCompletion()
	spec := terminal.BuildSpec(terminal.BuildInput{
		Task:             req.Task.Clone(),
		Settings:         s,
		WorkingDirectory: req.WorkingDirectory,
		Completion:       rx,
		Display:          req.Display,
	})
	term := terminal.New(spec, rp, p.options(terminal.LocationRemote))

	pumpCtx, stopPump := context.WithCancel(context.Background())
	go p.pumpRemoteOutput(pumpCtx, remoteID, tx, log)

	p.mu.Lock()
	p.remotes[remoteID] = term
	p.mu.Unlock()

	// The host hears about the close once, whether forwarding broke or the
	// last handle went away.
	var closeOnce sync.Once
	teardown := func() {
		stopPump()
		p.terminals.RemoveRemote(remoteID)
		p.mu.Lock()
		delete(p.remotes, remoteID)
		p.mu.Unlock()
		closeOnce.Do(func() { go p.closeRemote(remoteID, log) })
	}
	rp.OnBreak(func() {
		term.Close()
		teardown()
	})

	h := terminal.NewHandle(term)
	h.OnRelease(func(*terminal.Terminal) {
		teardown()
		p.metrics.DecTerminalsActive()
	})
	p.metrics.IncTerminalsActive()
	p.metrics.RecordTerminalCreated(spec.Kind.String(), terminal.LocationRemote)

	log.Info("Created remote terminal", zap.String("kind", spec.Kind.String()))
	return h, nil
}

// pumpRemoteOutput moves output from the host into the registry, which
// delivers it to the terminal. The final chunk completes the terminal.
func (p *Project) pumpRemoteOutput(ctx context.Context, remoteID uint64, completion *task.Sender, log *zap.Logger) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer p.terminals.RemoveRemote(remoteID)

	chunks, errs := p.remote.SubscribeOutput(ctx, &protocol.OutputTerminalRequest{
		ProjectID:  p.id,
		TerminalID: remoteID,
	})

	for chunk := range chunks {
		if len(chunk.Data) > 0 {
			if err := p.terminals.DeliverRemote(ctx, remoteID, chunk.Data); err != nil {
				log.Debug("Dropping remote output", zap.Error(err))
				break
			}
		}
		if chunk.Exited {
			completion.Send(chunk.ExitStatus())
			return
		}
	}

	select {
	case err, ok := <-errs:
		if ok && err != nil && ctx.Err() == nil {
			log.Warn("Remote output stream failed", zap.Error(err))
		}
	default:
	}
	completion.Drop()
}

// closeRemote tells the host to release its terminal. Failures are only
// logged.
func (p *Project) closeRemote(remoteID uint64, log *zap.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), p.callTimeout)
	defer cancel()
	err := p.remote.CloseTerminal(ctx, &protocol.CloseTerminalRequest{
		ProjectID:  p.id,
		TerminalID: remoteID,
	})
	if err != nil {
		log.Debug("Closing remote terminal failed", zap.Error(err))
	}
}
