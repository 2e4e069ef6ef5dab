package pathutil

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpand(t *testing.T) {
	t.Setenv("HOME", "/home/op")
	t.Setenv("JOBS", "/srv/jobs")

	got, err := Expand("~/parts/bracket.nc")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/home/op", "parts", "bracket.nc"), got)

	got, err = Expand("$JOBS/bracket.nc")
	require.NoError(t, err)
	assert.Equal(t, "/srv/jobs/bracket.nc", got)

	got, err = Expand("relative.nc")
	require.NoError(t, err)
	assert.True(t, filepath.IsAbs(got))
}
