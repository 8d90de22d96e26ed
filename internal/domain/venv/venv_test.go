package venv

import (
	"bytes"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/AgentOS/terminals/internal/domain/settings"
)

func makeScript(t *testing.T, base, dir, script string) string {
	t.Helper()
	bin := filepath.Join(base, dir, "bin")
	require.NoError(t, os.MkdirAll(bin, 0o755))
	path := filepath.Join(bin, script)
	require.NoError(t, os.WriteFile(path, []byte("# activate\n"), 0o644))
	return path
}

func countStats(t *testing.T) *[]string {
	t.Helper()
	var probed []string
	statFunc = func(name string) (fs.FileInfo, error) {
		probed = append(probed, name)
		return os.Stat(name)
	}
	t.Cleanup(func() { statFunc = os.Stat })
	return &probed
}

func TestFindActivateScriptUsesDeclaredOrder(t *testing.T) {
	base := t.TempDir()
	want := makeScript(t, base, "env", "activate")

	s := settings.VenvSettings{On: true, Directories: []string{"venv", "env"}}
	got, ok := FindActivateScript(s, base)

	require.True(t, ok)
	assert.Equal(t, want, got)
}

func TestFindActivateScriptPrefersEarlierDirectory(t *testing.T) {
	base := t.TempDir()
	first := makeScript(t, base, "venv", "activate")
	makeScript(t, base, "env", "activate")

	probed := countStats(t)
	s := settings.VenvSettings{On: true, Directories: []string{"venv", "env"}}
	got, ok := FindActivateScript(s, base)

	require.True(t, ok)
	assert.Equal(t, first, got)
	assert.Len(t, *probed, 1, "search must stop at the first hit")
}

func TestFindActivateScriptOneProbePerCandidate(t *testing.T) {
	base := t.TempDir()
	probed := countStats(t)

	s := settings.VenvSettings{On: true, Directories: []string{"a", "b", "c"}}
	_, ok := FindActivateScript(s, base)

	assert.False(t, ok)
	assert.Equal(t, []string{
		filepath.Join(base, "a", "bin", "activate"),
		filepath.Join(base, "b", "bin", "activate"),
		filepath.Join(base, "c", "bin", "activate"),
	}, *probed)
}

func TestFindActivateScriptDialect(t *testing.T) {
	base := t.TempDir()
	makeScript(t, base, ".venv", "activate")
	fish := makeScript(t, base, ".venv", "activate.fish")

	s := settings.VenvSettings{On: true, Directories: []string{".venv"}, ActivateScript: settings.ActivateFish}
	got, ok := FindActivateScript(s, base)
	require.True(t, ok)
	assert.Equal(t, fish, got)

	s.ActivateScript = settings.ActivateNushell
	_, ok = FindActivateScript(s, base)
	assert.False(t, ok)
}

func TestFindActivateScriptWithoutBaseIsAbsolute(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	want := makeScript(t, dir, "venv", "activate")

	s := settings.VenvSettings{On: true, Directories: []string{"venv"}}
	got, ok := FindActivateScript(s, "")

	require.True(t, ok)
	assert.True(t, filepath.IsAbs(got), "got %q", got)
	assert.Equal(t, want, got)
}

func TestFindRoot(t *testing.T) {
	base := t.TempDir()
	makeScript(t, base, "env", "activate")

	s := settings.VenvSettings{On: true, Directories: []string{"venv", "env"}}
	root, ok := FindRoot(s, base)

	require.True(t, ok)
	assert.Equal(t, filepath.Join(base, "env"), root)
	assert.True(t, filepath.IsAbs(root))
}

func TestPrependPath(t *testing.T) {
	sep := string(os.PathListSeparator)

	assert.Equal(t,
		"/p/env/bin"+sep+"/usr/bin"+sep+"/bin",
		PrependPath("/p/env/bin", "/usr/bin"+sep+"/bin"))
	assert.Equal(t, "/p/env/bin", PrependPath("/p/env/bin", ""))
}

func TestInjectTaskEnv(t *testing.T) {
	base := t.TempDir()
	makeScript(t, base, "env", "activate")
	sep := string(os.PathListSeparator)

	env := map[string]string{"A": "1"}
	s := settings.VenvSettings{On: true, Directories: []string{"env"}}
	root, ok := InjectTaskEnv(s, base, env, "/usr/bin"+sep+"/bin")

	require.True(t, ok)
	assert.Equal(t, root, env[EnvVirtualEnv])
	assert.Equal(t, filepath.Join(root, "bin")+sep+"/usr/bin"+sep+"/bin", env[EnvPath])
	assert.Equal(t, "1", env["A"])
}

func TestInjectTaskEnvWithoutVenvIsNoop(t *testing.T) {
	env := map[string]string{"PATH": "/usr/bin"}
	s := settings.VenvSettings{On: true, Directories: []string{"venv"}}

	_, ok := InjectTaskEnv(s, t.TempDir(), env, "/usr/bin")

	assert.False(t, ok)
	assert.Equal(t, map[string]string{"PATH": "/usr/bin"}, env)
}

func TestActivationCommand(t *testing.T) {
	tests := []struct {
		name    string
		dialect settings.ActivateScript
		script  string
		want    string
	}{
		{"default", settings.ActivateDefault, "/p/env/bin/activate", "source \"/p/env/bin/activate\"\n"},
		{"csh", settings.ActivateCsh, "/p/env/bin/activate.csh", "source \"/p/env/bin/activate.csh\"\n"},
		{"fish", settings.ActivateFish, "/p/env/bin/activate.fish", "source \"/p/env/bin/activate.fish\"\n"},
		{"nushell", settings.ActivateNushell, "/p/env/bin/activate.nu", "overlay use \"/p/env/bin/activate.nu\"\n"},
		{"spaces", settings.ActivateDefault, "/my project/env/bin/activate", "source \"/my project/env/bin/activate\"\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ActivationCommand(tt.dialect, tt.script)
			assert.Equal(t, []byte(tt.want), got)
			assert.Equal(t, 2, bytes.Count(got, []byte{'"'}))
			assert.True(t, bytes.HasSuffix(got, []byte("\"\n")))
			assert.Equal(t, 1, bytes.Count(got, []byte{'\n'}))
		})
	}
}

func TestActivationCommandPreservesRawBytes(t *testing.T) {
	script := "/p/\xff\xfe/bin/activate"
	got := ActivationCommand(settings.ActivateDefault, script)

	want := append([]byte("source \""), []byte(script)...)
	want = append(want, '"', '\n')
	assert.Equal(t, want, got)
}
