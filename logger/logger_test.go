package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitializeConsole(t *testing.T) {
	require.NoError(t, Initialize(false))
	assert.False(t, JSONOutput)
	assert.NotNil(t, Logger)

	// Helpers must not panic after initialization
	Infow("console logger ready", "mode", "console")
	Cleanup()
}

func TestInitializeJSON(t *testing.T) {
	require.NoError(t, Initialize(true))
	assert.True(t, JSONOutput)
	assert.NotNil(t, Logger)
	Cleanup()
}

func TestHelpersSafeBeforeInitialize(t *testing.T) {
	// The package-level no-op logger must absorb calls made before Initialize
	Infof("uninitialized %s", "call")
	Errorw("uninitialized", "key", "value")
	Warnw("uninitialized")
	Debugw("uninitialized")
}
