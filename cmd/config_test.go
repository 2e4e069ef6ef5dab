package cmd

import (
	"testing"

	"github.com/grovetools/cncctl/pkg/tree"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeDeviceConfigJSONC(t *testing.T) {
	data := []byte(`{
  // units used by the UI
  "units": "METRIC",
  "motors": [{"max-velocity": 10,}],
}`)
	m, err := decodeDeviceConfig(data, ".json")
	require.NoError(t, err)

	units, _ := tree.String(m, "units")
	assert.Equal(t, "METRIC", units)
	v, ok := tree.Float(m, "motors.0.max-velocity")
	require.True(t, ok)
	assert.Equal(t, 10.0, v)
}

func TestDecodeDeviceConfigYAML(t *testing.T) {
	m, err := decodeDeviceConfig([]byte("admin:\n  auto-check-upgrade: false\n"), ".yaml")
	require.NoError(t, err)

	check, ok := tree.Bool(m, "admin.auto-check-upgrade")
	require.True(t, ok)
	assert.False(t, check)
}

func TestDecodeDeviceConfigRejectsNonObject(t *testing.T) {
	_, err := decodeDeviceConfig([]byte(`[1, 2]`), ".json")
	assert.Error(t, err)
}

func TestEncodeDeviceConfig(t *testing.T) {
	m := tree.Map{"units": tree.S("METRIC")}

	data, err := encodeDeviceConfig(m, "yaml")
	require.NoError(t, err)
	assert.Equal(t, "units: METRIC\n", string(data))

	_, err = encodeDeviceConfig(m, "xml")
	assert.Error(t, err)
}

func TestParseValue(t *testing.T) {
	assert.Equal(t, 10.0, parseValue("10"))
	assert.Equal(t, false, parseValue("false"))
	assert.Equal(t, "METRIC", parseValue("METRIC"))
	assert.Equal(t, "quoted", parseValue(`"quoted"`))
}
