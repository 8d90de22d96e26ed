package settings

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/goccy/go-yaml"
	"github.com/pelletier/go-toml/v2"
)

// Content is the on-disk shape of a settings file:
//
//	[terminal]
//	shell = { program = "zsh", args = ["-l"] }
//	env = { EDITOR = "vim" }
//	blinking = "off"
//	max_scroll_history_lines = 5000
//
//	[terminal.detect_venv]
//	enabled = true
//	directories = ["venv", ".venv"]
//	activate_script = "fish"
//
//	[[terminal.overrides]]
//	paths = ["services/**"]
//	env = { SERVICE = "1" }
type Content struct {
	Terminal TerminalContent `toml:"terminal" yaml:"terminal"`
}

// TerminalContent is the terminal section of a settings file.
type TerminalContent struct {
	LayerContent `yaml:",inline"`
	Overrides    []OverrideContent `toml:"overrides" yaml:"overrides"`
}

// LayerContent holds optional fields; unset fields inherit from lower layers.
type LayerContent struct {
	// Shell is "system", a program name, or a table with program and args.
	Shell                 any               `toml:"shell" yaml:"shell"`
	Env                   map[string]string `toml:"env" yaml:"env"`
	DetectVenv            *VenvContent      `toml:"detect_venv" yaml:"detect_venv"`
	Blinking              *string           `toml:"blinking" yaml:"blinking"`
	AlternateScroll       *bool             `toml:"alternate_scroll" yaml:"alternate_scroll"`
	MaxScrollHistoryLines *int              `toml:"max_scroll_history_lines" yaml:"max_scroll_history_lines"`
}

// VenvContent is the detect_venv table.
type VenvContent struct {
	Enabled        *bool    `toml:"enabled" yaml:"enabled"`
	Directories    []string `toml:"directories" yaml:"directories"`
	ActivateScript *string  `toml:"activate_script" yaml:"activate_script"`
}

// OverrideContent applies a layer to paths matching any of its globs.
type OverrideContent struct {
	Paths        []string `toml:"paths" yaml:"paths"`
	LayerContent `yaml:",inline"`
}

// Parse decodes settings content; the format is chosen by file extension
// (".toml", ".yaml" or ".yml").
func Parse(data []byte, filename string) (Content, error) {
	var c Content
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".toml":
		if err := toml.Unmarshal(data, &c); err != nil {
			return Content{}, fmt.Errorf("failed to parse %s: %w", filename, err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &c); err != nil {
			return Content{}, fmt.Errorf("failed to parse %s: %w", filename, err)
		}
	default:
		return Content{}, fmt.Errorf("unsupported settings format: %s", filename)
	}
	return c, nil
}

// layer is validated LayerContent.
type layer struct {
	shell                 *Shell
	env                   map[string]string
	venvEnabled           *bool
	venvDirectories       []string
	activateScript        *ActivateScript
	blinking              *Blinking
	alternateScroll       *bool
	maxScrollHistoryLines *int
}

type override struct {
	patterns []string
	layer    layer
}

// compiled is a validated settings file.
type compiled struct {
	base      layer
	overrides []override
}

func compile(c Content) (compiled, error) {
	base, err := compileLayer(c.Terminal.LayerContent)
	if err != nil {
		return compiled{}, err
	}
	out := compiled{base: base}
	for i, o := range c.Terminal.Overrides {
		if len(o.Paths) == 0 {
			return compiled{}, fmt.Errorf("overrides[%d]: paths must not be empty", i)
		}
		for _, p := range o.Paths {
			if !validPattern(p) {
				return compiled{}, fmt.Errorf("overrides[%d]: invalid glob %q", i, p)
			}
		}
		l, err := compileLayer(o.LayerContent)
		if err != nil {
			return compiled{}, fmt.Errorf("overrides[%d]: %w", i, err)
		}
		out.overrides = append(out.overrides, override{patterns: o.Paths, layer: l})
	}
	return out, nil
}

func compileLayer(c LayerContent) (layer, error) {
	var l layer

	if c.Shell != nil {
		shell, err := parseShell(c.Shell)
		if err != nil {
			return layer{}, err
		}
		l.shell = &shell
	}

	l.env = c.Env

	if v := c.DetectVenv; v != nil {
		l.venvEnabled = v.Enabled
		l.venvDirectories = v.Directories
		if v.ActivateScript != nil {
			a, err := ParseActivateScript(*v.ActivateScript)
			if err != nil {
				return layer{}, err
			}
			l.activateScript = &a
		}
	}

	if c.Blinking != nil {
		b, err := ParseBlinking(*c.Blinking)
		if err != nil {
			return layer{}, err
		}
		l.blinking = &b
	}

	l.alternateScroll = c.AlternateScroll

	if c.MaxScrollHistoryLines != nil {
		n := *c.MaxScrollHistoryLines
		if n < 0 {
			return layer{}, fmt.Errorf("max_scroll_history_lines must not be negative")
		}
		n = min(n, MaxScrollHistoryLinesCeiling)
		l.maxScrollHistoryLines = &n
	}

	return l, nil
}

// parseShell accepts "system", a bare program name, or a table
// {program, args}.
func parseShell(v any) (Shell, error) {
	switch s := v.(type) {
	case string:
		if s == "" {
			return Shell{}, fmt.Errorf("shell must not be empty")
		}
		if s == "system" {
			return SystemShell(), nil
		}
		return Shell{Kind: ShellProgram, Program: s}, nil
	case map[string]any:
		program, _ := s["program"].(string)
		if program == "" {
			return Shell{}, fmt.Errorf("shell.program is required")
		}
		raw, ok := s["args"]
		if !ok {
			return Shell{Kind: ShellProgram, Program: program}, nil
		}
		list, ok := raw.([]any)
		if !ok {
			return Shell{}, fmt.Errorf("shell.args must be a list of strings")
		}
		args := make([]string, 0, len(list))
		for _, a := range list {
			str, ok := a.(string)
			if !ok {
				return Shell{}, fmt.Errorf("shell.args must be a list of strings")
			}
			args = append(args, str)
		}
		return Shell{Kind: ShellWithArguments, Program: program, Args: args}, nil
	default:
		return Shell{}, fmt.Errorf("shell must be a string or a table, got %T", v)
	}
}

func (l layer) applyTo(s *TerminalSettings) {
	if l.shell != nil {
		s.Shell = *l.shell
		s.Shell.Args = append([]string(nil), l.shell.Args...)
	}
	for k, v := range l.env {
		s.Env[k] = v
	}
	if l.venvEnabled != nil {
		s.DetectVenv.On = *l.venvEnabled
	}
	if l.venvDirectories != nil {
		s.DetectVenv.Directories = append([]string(nil), l.venvDirectories...)
	}
	if l.activateScript != nil {
		s.DetectVenv.ActivateScript = *l.activateScript
	}
	if l.blinking != nil {
		s.Blinking = *l.blinking
	}
	if l.alternateScroll != nil {
		s.AlternateScroll = *l.alternateScroll
	}
	if l.maxScrollHistoryLines != nil {
		s.MaxScrollHistoryLines = *l.maxScrollHistoryLines
	}
}
