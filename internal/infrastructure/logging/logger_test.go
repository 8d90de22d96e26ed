package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRejectsUnknownLevel(t *testing.T) {
	_, err := New(Config{Level: "loud"})
	assert.Error(t, err)
}

func TestNewOrNopFallsBack(t *testing.T) {
	logger := NewOrNop(Config{Level: "loud"})
	require.NotNil(t, logger)
	assert.NotNil(t, logger.Component("project"))
}

func TestComponentOnNilLogger(t *testing.T) {
	var logger *Logger
	assert.NotNil(t, logger.Component("remote"))
}

func TestFieldKeys(t *testing.T) {
	assert.Equal(t, "terminal_id", TerminalID("term_x").Key)
	assert.Equal(t, "remote_terminal_id", RemoteTerminalID(3).Key)
	assert.Equal(t, "project_id", ProjectID(7).Key)
}
