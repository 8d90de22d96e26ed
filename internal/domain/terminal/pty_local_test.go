package terminal

import (
	"os"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/AgentOS/terminals/internal/domain/settings"
	"github.com/GriffinCanCode/AgentOS/terminals/internal/domain/task"
)

func requirePosixShell(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("pty tests need a POSIX shell")
	}
	if _, err := os.Stat(FallbackShell); err != nil {
		t.Skip("no /bin/sh available")
	}
}

func history(term *Terminal) string {
	return strings.Join(term.History().Lines(), "\n")
}

func TestSpawnLocalTaskReportsExitCode(t *testing.T) {
	requirePosixShell(t)

	tx, rx := task.NewCompletion()
	in := BuildInput{
		Task: &task.SpawnInTerminal{
			ID:      "exit",
			Label:   "exit",
			Command: FallbackShell,
			Args:    []string{"-c", "echo \"$GREETING\"; exit 3"},
			Env:     map[string]string{"GREETING": "hello from task"},
		},
		Settings:         settings.Default(),
		WorkingDirectory: t.TempDir(),
		Completion:       rx,
	}
	in.Settings.DetectVenv.On = false

	term, err := SpawnLocal(BuildSpec(in), tx, Options{})
	require.NoError(t, err)
	defer term.Close()

	select {
	case <-term.Exited():
	case <-time.After(5 * time.Second):
		t.Fatal("task did not exit")
	}

	exit := term.ExitStatus()
	require.NotNil(t, exit)
	assert.Equal(t, 3, exit.Code)

	status, success := term.Task().Status()
	assert.Equal(t, task.Completed, status)
	assert.False(t, success)

	assert.Eventually(t, func() bool {
		return strings.Contains(history(term), "hello from task")
	}, 5*time.Second, 20*time.Millisecond)
}

func TestSpawnLocalShellInput(t *testing.T) {
	requirePosixShell(t)

	s := settings.Default()
	s.Shell = settings.Shell{Kind: settings.ShellProgram, Program: FallbackShell}

	tx, rx := task.NewCompletion()
	spec := BuildSpec(BuildInput{Settings: s, Completion: rx})
	term, err := SpawnLocal(spec, tx, Options{Cols: 100, Rows: 30})
	require.NoError(t, err)
	defer term.Close()

	require.NoError(t, term.InputBytes([]byte("echo \"term=$TERM color=$COLORTERM\"\n")))
	assert.Eventually(t, func() bool {
		return strings.Contains(history(term), "term=xterm-256color color=truecolor")
	}, 5*time.Second, 20*time.Millisecond)

	require.NoError(t, term.Resize(120, 40))
	require.NoError(t, term.InputBytes([]byte("exit 0\n")))

	select {
	case <-term.Exited():
	case <-time.After(5 * time.Second):
		t.Fatal("shell did not exit")
	}
	require.NotNil(t, term.ExitStatus())
	assert.Equal(t, 0, term.ExitStatus().Code)
}

func TestSpawnLocalCloseKillsProcess(t *testing.T) {
	requirePosixShell(t)

	tx, rx := task.NewCompletion()
	in := BuildInput{
		Task:       &task.SpawnInTerminal{ID: "sleep", Command: FallbackShell, Args: []string{"-c", "sleep 30"}},
		Settings:   settings.Default(),
		Completion: rx,
	}
	term, err := SpawnLocal(BuildSpec(in), tx, Options{})
	require.NoError(t, err)

	require.NoError(t, term.Close())
	select {
	case <-term.Exited():
	case <-time.After(5 * time.Second):
		t.Fatal("killed process was not reaped")
	}
	_, success := term.Task().Status()
	assert.False(t, success)
}

func TestSpawnLocalMissingProgram(t *testing.T) {
	requirePosixShell(t)

	tx, rx := task.NewCompletion()
	in := BuildInput{
		Task:       &task.SpawnInTerminal{ID: "missing", Command: "/definitely/not/a/program"},
		Settings:   settings.Default(),
		Completion: rx,
	}
	term, err := SpawnLocal(BuildSpec(in), tx, Options{})

	assert.Error(t, err)
	assert.Nil(t, term)
	_, ok := rx.Recv()
	assert.False(t, ok, "completion is dropped when nothing was spawned")
}

func TestResolveShell(t *testing.T) {
	t.Setenv("SHELL", "/usr/bin/fish")
	program, args := resolveShell(settings.SystemShell())
	assert.Equal(t, "/usr/bin/fish", program)
	assert.Empty(t, args)

	t.Setenv("SHELL", "")
	program, _ = resolveShell(settings.SystemShell())
	assert.Equal(t, FallbackShell, program)

	program, args = resolveShell(settings.Command("bash", []string{"-l"}))
	assert.Equal(t, "bash", program)
	assert.Equal(t, []string{"-l"}, args)
}

func TestCommandEnvSpecWins(t *testing.T) {
	env := commandEnv(map[string]string{"TERM": "dumb", "B": "2", "A": "1"})

	n := len(env)
	require.GreaterOrEqual(t, n, 5)
	assert.Equal(t, []string{"A=1", "B=2", "TERM=dumb"}, env[n-3:])
	assert.Contains(t, env, "COLORTERM=truecolor")
}
