package terminal

import (
	"maps"

	"github.com/GriffinCanCode/AgentOS/terminals/internal/domain/settings"
	"github.com/GriffinCanCode/AgentOS/terminals/internal/domain/task"
	"github.com/GriffinCanCode/AgentOS/terminals/internal/domain/venv"
	"github.com/GriffinCanCode/AgentOS/terminals/internal/shared/id"
)

// Kind distinguishes interactive shells from task runs.
type Kind int

const (
	KindShell Kind = iota
	KindTask
)

func (k Kind) String() string {
	if k == KindTask {
		return "task"
	}
	return "shell"
}

// BuildInput is everything the builder derives a Spec from.
type BuildInput struct {
	// Task is nil for an interactive shell.
	Task     *task.SpawnInTerminal
	Settings settings.TerminalSettings
	// WorkingDirectory is passed to the process as is; empty inherits ours.
	WorkingDirectory string
	// VenvBase is where virtual environments are searched.
	VenvBase string
	// InheritedPath is the PATH of our own process. A PATH in the settings
	// or task env takes precedence.
	InheritedPath string
	Completion    *task.Receiver
	Display       Display
}

// Spec fully describes a terminal before it is started.
type Spec struct {
	ID                    id.TerminalID
	Kind                  Kind
	WorkingDirectory      string
	Command               settings.Shell
	Env                   map[string]string
	Blinking              settings.Blinking
	AlternateScroll       bool
	MaxScrollHistoryLines int
	Task                  *task.State
	Completion            *task.Receiver
	Display               Display

	// DetectVenv and VenvBase are kept so shells can be activated after
	// they start. Tasks already carry the venv in Env.
	DetectVenv settings.VenvSettings
	VenvBase   string
	// VenvRoot is set when a task had a venv injected.
	VenvRoot string
}

// BuildSpec derives the spec of a new terminal. The settings and task are
// not modified.
func BuildSpec(in BuildInput) Spec {
	s := in.Settings.Clone()

	env := maps.Clone(s.Env)
	if env == nil {
		env = make(map[string]string)
	}

	display := in.Display
	if display == nil {
		display = NopDisplay()
	}

	spec := Spec{
		ID:                    id.NewTerminalID(),
		Kind:                  KindShell,
		WorkingDirectory:      in.WorkingDirectory,
		Command:               s.Shell,
		Blinking:              s.Blinking,
		AlternateScroll:       s.AlternateScroll,
		MaxScrollHistoryLines: s.MaxScrollHistoryLines,
		Completion:            in.Completion,
		Display:               display,
		DetectVenv:            s.DetectVenv,
		VenvBase:              in.VenvBase,
	}

	if t := in.Task; t != nil {
		maps.Copy(env, t.Env)
		if s.DetectVenv.On {
			inherited := in.InheritedPath
			if p, ok := env[venv.EnvPath]; ok {
				inherited = p
			}
			if root, ok := venv.InjectTaskEnv(s.DetectVenv, in.VenvBase, env, inherited); ok {
				spec.VenvRoot = root
			}
		}
		spec.Kind = KindTask
		spec.Command = settings.Command(t.Command, t.Args)
		spec.Task = task.NewState(t, in.Completion)
	}

	spec.Env = env
	return spec
}
