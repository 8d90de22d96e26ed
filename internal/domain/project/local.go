package project

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/AgentOS/terminals/internal/domain/task"
	"github.com/GriffinCanCode/AgentOS/terminals/internal/domain/terminal"
	"github.com/GriffinCanCode/AgentOS/terminals/internal/domain/venv"
	"github.com/GriffinCanCode/AgentOS/terminals/internal/infrastructure/logging"
)

func (p *Project) createLocalTerminal(req CreateRequest) (*terminal.Handle, error) {
	var taskCwd string
	if req.Task != nil {
		taskCwd = req.Task.Cwd
	}
	loc := p.resolveLocation(req.WorkingDirectory, taskCwd)
	s := p.settings.Get(loc)

	tx, rx := task.NewCompletion()
	spec := terminal.BuildSpec(terminal.BuildInput{
		Task:             req.Task.Clone(),
		Settings:         s,
		WorkingDirectory: req.WorkingDirectory,
		VenvBase:         req.WorkingDirectory,
		InheritedPath:    p.pathEnv(),
		Completion:       rx,
		Display:          req.Display,
	})

	term, err := terminal.SpawnLocal(spec, tx, p.options(terminal.LocationLocal))
	if err != nil {
		p.metrics.IncSpawnFailures()
		return nil, fmt.Errorf("create local terminal: %w", err)
	}

	h := terminal.NewHandle(term)
	key := p.terminals.InsertLocal(term)
	h.OnRelease(func(*terminal.Terminal) {
		p.terminals.RemoveLocal(key)
		p.metrics.DecTerminalsActive()
	})
	p.metrics.IncTerminalsActive()
	p.metrics.RecordTerminalCreated(spec.Kind.String(), terminal.LocationLocal)

	log := p.log.With(logging.TerminalID(term.ID().String()))
	if spec.VenvRoot != "" {
		p.metrics.RecordVenvActivation("env")
		log.Debug("Injected virtual environment into task", zap.String("venv", spec.VenvRoot))
	}
	if spec.Kind == terminal.KindShell && spec.DetectVenv.On {
		p.activateVenv(term, spec, log)
	}

	log.Info("Created terminal",
		zap.String("kind", spec.Kind.String()),
		zap.String("working_directory", spec.WorkingDirectory),
		zap.Bool("worktree_settings", loc != nil))
	return h, nil
}

// activateVenv types the activation command into a fresh shell.
func (p *Project) activateVenv(term *terminal.Terminal, spec terminal.Spec, log *zap.Logger) {
	script, ok := venv.FindActivateScript(spec.DetectVenv, spec.VenvBase)
	if !ok {
		return
	}
	cmd := venv.ActivationCommand(spec.DetectVenv.ActivateScript, script)
	if err := term.InputBytes(cmd); err != nil {
		log.Warn("Failed to activate virtual environment", zap.String("script", script), zap.Error(err))
		return
	}
	p.metrics.RecordVenvActivation("script")
	log.Debug("Activated virtual environment", zap.String("script", script))
}
