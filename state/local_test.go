package state

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalState(t *testing.T) {
	oldWd, err := os.Getwd()
	require.NoError(t, err)
	defer os.Chdir(oldWd)
	require.NoError(t, os.Chdir(t.TempDir()))

	local, err := LoadLocal()
	require.NoError(t, err)
	assert.Empty(t, local)

	local.SetStrings("mdi_history", []string{"G0 X1", "G28"})
	require.NoError(t, SaveLocal(local))

	reloaded, err := LoadLocal()
	require.NoError(t, err)
	assert.Equal(t, []string{"G0 X1", "G28"}, reloaded.Strings("mdi_history"))

	require.NoError(t, SetLocal("units", "METRIC"))
	units, err := GetLocalString("units")
	require.NoError(t, err)
	assert.Equal(t, "METRIC", units)

	missing, err := GetLocalString("nope")
	require.NoError(t, err)
	assert.Equal(t, "", missing)
}
