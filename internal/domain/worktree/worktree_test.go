package worktree

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddRejectsRelativeRoot(t *testing.T) {
	s := NewSet()
	_, err := s.Add("relative/dir")
	assert.ErrorIs(t, err, ErrNotAbsolute)
}

func TestAddIsIdempotent(t *testing.T) {
	s := NewSet()
	a, err := s.Add("/src/app")
	require.NoError(t, err)
	b, err := s.Add("/src/app/")
	require.NoError(t, err)
	assert.Equal(t, a.ID, b.ID)
	assert.Len(t, s.List(), 1)
}

func TestFind(t *testing.T) {
	s := NewSet()
	app, _ := s.Add("/src/app")
	nested, _ := s.Add("/src/app/vendor/lib")
	_, _ = s.Add("/src/other")

	tests := []struct {
		name    string
		path    string
		wantID  int
		wantRel string
		wantOK  bool
	}{
		{"root itself", "/src/app", app.ID, "", true},
		{"inside", "/src/app/cmd/server", app.ID, "cmd/server", true},
		{"nested wins", "/src/app/vendor/lib/pkg", nested.ID, "pkg", true},
		{"sibling prefix is not inside", "/src/application", 0, "", false},
		{"outside", "/tmp", 0, "", false},
		{"relative", "src/app", 0, "", false},
		{"empty", "", 0, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wt, rel, ok := s.Find(tt.path)
			assert.Equal(t, tt.wantOK, ok)
			if !tt.wantOK {
				return
			}
			assert.Equal(t, tt.wantID, wt.ID)
			assert.Equal(t, tt.wantRel, rel)
		})
	}
}

func TestRemove(t *testing.T) {
	s := NewSet()
	wt, _ := s.Add("/src/app")

	assert.True(t, s.Remove(wt.ID))
	assert.False(t, s.Remove(wt.ID))

	_, _, ok := s.Find("/src/app/x")
	assert.False(t, ok)
}
