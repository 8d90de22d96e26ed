// Package settings resolves terminal settings for a location in a project.
//
// Settings come in layers. Defaults are overridden by a global file, then by
// settings files inside a worktree (nested files apply to their subtree,
// deeper files win), then by path-scoped override blocks whose globs match the
// location. Lookups are read-only and never touch the filesystem; files are
// read when a store is loaded.
package settings

import (
	"fmt"
	"maps"
	"slices"
	"strings"
)

// Limits for MaxScrollHistoryLines.
const (
	DefaultMaxScrollHistoryLines = 10_000
	MaxScrollHistoryLinesCeiling = 100_000
)

// DefaultVenvDirectories are probed, in order, when detection is enabled.
var DefaultVenvDirectories = []string{".env", "env", ".venv", "venv"}

// ShellKind selects how the terminal command is chosen.
type ShellKind int

const (
	// ShellSystem uses the user's login shell.
	ShellSystem ShellKind = iota
	// ShellProgram runs a program with no arguments.
	ShellProgram
	// ShellWithArguments runs a program with arguments.
	ShellWithArguments
)

// Shell is the command a terminal runs.
type Shell struct {
	Kind    ShellKind
	Program string
	Args    []string
}

// SystemShell is the default shell configuration.
func SystemShell() Shell {
	return Shell{Kind: ShellSystem}
}

// Command returns a shell that runs program with args.
func Command(program string, args []string) Shell {
	return Shell{Kind: ShellWithArguments, Program: program, Args: slices.Clone(args)}
}

func (s Shell) String() string {
	switch s.Kind {
	case ShellSystem:
		return "system"
	case ShellProgram:
		return s.Program
	default:
		return strings.TrimSpace(s.Program + " " + strings.Join(s.Args, " "))
	}
}

// ActivateScript is the shell dialect of a virtual environment's activation
// script.
type ActivateScript int

const (
	ActivateDefault ActivateScript = iota
	ActivateCsh
	ActivateFish
	ActivateNushell
)

// ParseActivateScript parses "default", "csh", "fish" or "nushell".
func ParseActivateScript(s string) (ActivateScript, error) {
	switch strings.ToLower(s) {
	case "", "default":
		return ActivateDefault, nil
	case "csh":
		return ActivateCsh, nil
	case "fish":
		return ActivateFish, nil
	case "nushell":
		return ActivateNushell, nil
	default:
		return ActivateDefault, fmt.Errorf("unknown activate_script %q", s)
	}
}

func (a ActivateScript) String() string {
	switch a {
	case ActivateCsh:
		return "csh"
	case ActivateFish:
		return "fish"
	case ActivateNushell:
		return "nushell"
	default:
		return "default"
	}
}

// ScriptName is the file name of the activation script for this dialect.
func (a ActivateScript) ScriptName() string {
	switch a {
	case ActivateCsh:
		return "activate.csh"
	case ActivateFish:
		return "activate.fish"
	case ActivateNushell:
		return "activate.nu"
	default:
		return "activate"
	}
}

// VenvSettings controls virtual environment detection.
type VenvSettings struct {
	On             bool
	Directories    []string
	ActivateScript ActivateScript
}

// Blinking controls cursor blinking.
type Blinking int

const (
	BlinkingTerminalControlled Blinking = iota
	BlinkingOff
	BlinkingOn
)

// ParseBlinking parses "off", "on" or "terminal_controlled".
func ParseBlinking(s string) (Blinking, error) {
	switch strings.ToLower(s) {
	case "", "terminal_controlled":
		return BlinkingTerminalControlled, nil
	case "off":
		return BlinkingOff, nil
	case "on":
		return BlinkingOn, nil
	default:
		return BlinkingTerminalControlled, fmt.Errorf("unknown blinking %q", s)
	}
}

func (b Blinking) String() string {
	switch b {
	case BlinkingOff:
		return "off"
	case BlinkingOn:
		return "on"
	default:
		return "terminal_controlled"
	}
}

// TerminalSettings is the resolved configuration for one terminal.
type TerminalSettings struct {
	Shell                 Shell
	Env                   map[string]string
	DetectVenv            VenvSettings
	Blinking              Blinking
	AlternateScroll       bool
	MaxScrollHistoryLines int
}

// Default returns built-in settings.
func Default() TerminalSettings {
	return TerminalSettings{
		Shell: SystemShell(),
		Env:   map[string]string{},
		DetectVenv: VenvSettings{
			On:             true,
			Directories:    slices.Clone(DefaultVenvDirectories),
			ActivateScript: ActivateDefault,
		},
		Blinking:              BlinkingTerminalControlled,
		AlternateScroll:       true,
		MaxScrollHistoryLines: DefaultMaxScrollHistoryLines,
	}
}

// Clone returns a deep copy, so callers can mutate maps and slices.
func (s TerminalSettings) Clone() TerminalSettings {
	out := s
	out.Env = maps.Clone(s.Env)
	if out.Env == nil {
		out.Env = map[string]string{}
	}
	out.Shell.Args = slices.Clone(s.Shell.Args)
	out.DetectVenv.Directories = slices.Clone(s.DetectVenv.Directories)
	return out
}

// Location scopes a lookup to a path inside a worktree. Path is slash
// separated and relative to the worktree root.
type Location struct {
	WorktreeID int
	Path       string
}
