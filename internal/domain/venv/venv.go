// Package venv finds language virtual environments next to a terminal's
// working directory and produces what is needed to activate them: either a
// command line to type into an interactive shell, or environment variables
// for a task that has no shell to source a script into.
package venv

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/GriffinCanCode/AgentOS/terminals/internal/domain/settings"
)

// Environment variable names set for task terminals.
const (
	EnvVirtualEnv = "VIRTUAL_ENV"
	EnvPath       = "PATH"
)

// statFunc is replaced in tests to count filesystem probes.
var statFunc = os.Stat

func exists(path string) bool {
	_, err := statFunc(path)
	return err == nil
}

// FindActivateScript returns the absolute path of base/<dir>/bin/<script> for
// the first configured directory where that script exists. Directories are
// probed in order with a single existence check each. An empty base means the
// process working directory.
func FindActivateScript(s settings.VenvSettings, base string) (string, bool) {
	script := s.ActivateScript.ScriptName()
	for _, dir := range s.Directories {
		path := filepath.Join(base, dir, "bin", script)
		if exists(path) {
			return absolute(path), true
		}
	}
	return "", false
}

// FindRoot returns the absolute path of the first configured directory that
// exists under base.
func FindRoot(s settings.VenvSettings, base string) (string, bool) {
	for _, dir := range s.Directories {
		path := filepath.Join(base, dir)
		if exists(path) {
			return absolute(path), true
		}
	}
	return "", false
}

func absolute(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return path
}

// InjectTaskEnv sets VIRTUAL_ENV and prepends the environment's bin directory
// to PATH in env. inheritedPath is the PATH the task would otherwise see.
// Nothing changes when no environment is found.
func InjectTaskEnv(s settings.VenvSettings, base string, env map[string]string, inheritedPath string) (string, bool) {
	root, ok := FindRoot(s, base)
	if !ok {
		return "", false
	}
	env[EnvVirtualEnv] = root
	env[EnvPath] = PrependPath(filepath.Join(root, "bin"), inheritedPath)
	return root, true
}

// PrependPath puts dir in front of a PATH list, keeping the order of the
// existing entries.
func PrependPath(dir, path string) string {
	if path == "" {
		return dir
	}
	entries := filepath.SplitList(path)
	out := make([]string, 0, len(entries)+1)
	out = append(out, dir)
	out = append(out, entries...)
	return strings.Join(out, string(os.PathListSeparator))
}

// Verb is the shell builtin that loads an activation script.
func Verb(dialect settings.ActivateScript) string {
	if dialect == settings.ActivateNushell {
		return "overlay use"
	}
	return "source"
}

// ActivationCommand builds `<verb> "<script>"\n`. The command is assembled
// from raw bytes so paths that are not valid UTF-8 pass through unchanged.
func ActivationCommand(dialect settings.ActivateScript, script string) []byte {
	verb := Verb(dialect)
	cmd := make([]byte, 0, len(verb)+len(script)+4)
	cmd = append(cmd, verb...)
	cmd = append(cmd, ' ')
	cmd = append(cmd, '"')
	cmd = append(cmd, script...)
	cmd = append(cmd, '"')
	cmd = append(cmd, '\n')
	return cmd
}
