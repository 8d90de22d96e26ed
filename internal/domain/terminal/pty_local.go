package terminal

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"slices"
	"sync"

	"github.com/creack/pty"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/AgentOS/terminals/internal/domain/settings"
	"github.com/GriffinCanCode/AgentOS/terminals/internal/domain/task"
)

// FallbackShell is used when neither the settings nor $SHELL name one.
const FallbackShell = "/bin/sh"

// Environment variables every local terminal gets.
var baseTerminalEnv = []string{
	"TERM=xterm-256color",
	"COLORTERM=truecolor",
}

// localPty is a child process attached to a pseudo-terminal.
type localPty struct {
	cmd  *exec.Cmd
	ptmx *os.File

	mu     sync.Mutex
	closed bool
}

func (p *localPty) Read(b []byte) (int, error) { return p.ptmx.Read(b) }

func (p *localPty) Write(b []byte) (int, error) {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return 0, ErrClosed
	}
	return p.ptmx.Write(b)
}

func (p *localPty) Resize(cols, rows uint16) error {
	return pty.Setsize(p.ptmx, &pty.Winsize{Rows: rows, Cols: cols})
}

func (p *localPty) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true

	if p.cmd.Process != nil {
		_ = p.cmd.Process.Kill()
	}
	return p.ptmx.Close()
}

// resolveShell picks the program and arguments for a shell setting.
func resolveShell(s settings.Shell) (string, []string) {
	switch s.Kind {
	case settings.ShellProgram:
		return s.Program, nil
	case settings.ShellWithArguments:
		return s.Program, slices.Clone(s.Args)
	}
	if shell := os.Getenv("SHELL"); shell != "" {
		return shell, nil
	}
	return FallbackShell, nil
}

// commandEnv is the process environment followed by the terminal defaults
// and the spec env, so spec entries win.
func commandEnv(env map[string]string) []string {
	out := append(os.Environ(), baseTerminalEnv...)
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		out = append(out, fmt.Sprintf("%s=%s", k, env[k]))
	}
	return out
}

// SpawnLocal starts the spec's command on a new pty. The exit status is sent
// to completion exactly once when the process ends. On error no process is
// left running and completion is dropped.
func SpawnLocal(spec Spec, completion *task.Sender, opts Options) (*Terminal, error) {
	opts = opts.withDefaults()
	opts.Location = LocationLocal

	program, args := resolveShell(spec.Command)
	cmd := exec.Command(program, args...)
	cmd.Dir = spec.WorkingDirectory
	cmd.Env = commandEnv(spec.Env)

	ptmx, err := pty.StartWithSize(cmd, &pty.Winsize{Rows: opts.Rows, Cols: opts.Cols})
	if err != nil {
		if completion != nil {
			completion.Drop()
		}
		return nil, fmt.Errorf("failed to start PTY for %s: %w", program, err)
	}

	p := &localPty{cmd: cmd, ptmx: ptmx}
	t := New(spec, p, opts)

	t.log.Debug("Spawned local terminal",
		zap.String("program", program),
		zap.Int("pid", cmd.Process.Pid),
		zap.String("kind", spec.Kind.String()))

	go monitorProcess(cmd, completion)
	return t, nil
}

// monitorProcess waits for the child and reports how it ended.
func monitorProcess(cmd *exec.Cmd, completion *task.Sender) {
	err := cmd.Wait()
	if completion == nil {
		return
	}

	var exitErr *exec.ExitError
	switch {
	case err == nil:
		completion.Send(&task.ExitStatus{Code: 0})
	case errors.As(err, &exitErr):
		completion.Send(&task.ExitStatus{Code: exitErr.ExitCode()})
	default:
		completion.Send(nil)
	}
}
