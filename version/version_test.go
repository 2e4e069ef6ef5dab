package version

import (
	"runtime"
	"runtime/debug"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFillFromBuildInfo(t *testing.T) {
	bi := &debug.BuildInfo{
		Main: debug.Module{Path: "github.com/grovetools/cncctl", Version: "v0.4.1"},
		Settings: []debug.BuildSetting{
			{Key: "vcs.revision", Value: "0123456789abcdef0123"},
			{Key: "vcs.time", Value: "2026-10-01T12:00:00Z"},
		},
	}

	info := Info{Version: "dev", Commit: "none", BuildDate: "unknown"}
	fillFromBuildInfo(&info, bi)
	assert.Equal(t, "v0.4.1", info.Version)
	assert.Equal(t, "0123456789ab", info.Commit)
	assert.Equal(t, "2026-10-01T12:00:00Z", info.BuildDate)
}

func TestLinkerValuesWin(t *testing.T) {
	bi := &debug.BuildInfo{
		Main:     debug.Module{Version: "(devel)"},
		Settings: []debug.BuildSetting{{Key: "vcs.revision", Value: "ffff"}},
	}

	info := Info{Version: "v1.0.0", Commit: "abc123", BuildDate: "unknown"}
	fillFromBuildInfo(&info, bi)
	assert.Equal(t, "v1.0.0", info.Version)
	assert.Equal(t, "abc123", info.Commit)

	dev := Info{Version: "dev", Commit: "none"}
	fillFromBuildInfo(&dev, bi)
	assert.Equal(t, "dev", dev.Version)
}

func TestGetInfo(t *testing.T) {
	info := GetInfo()
	assert.Equal(t, runtime.Version(), info.GoVersion)
	assert.Equal(t, runtime.GOOS+"/"+runtime.GOARCH, info.Platform)
	assert.Contains(t, info.String(), info.Version)
	assert.Equal(t, "cncctl/"+info.Version, UserAgent())
}
