package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrintLastLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cncctl-2026-01-01.log")
	require.NoError(t, os.WriteFile(path, []byte("one\ntwo\nthree\npartial"), 0644))

	var buf bytes.Buffer
	offset, err := printLastLines(&buf, path, 2, false)
	require.NoError(t, err)
	assert.Equal(t, "two\nthree\n", buf.String())
	assert.Equal(t, int64(len("one\ntwo\nthree\n")), offset, "an unterminated line is left for the follower")
}

func TestPrintLogLineJSON(t *testing.T) {
	var buf bytes.Buffer
	printLogLine(&buf, "plain text", true)
	assert.JSONEq(t, `{"raw_line":"plain text"}`, buf.String())

	buf.Reset()
	printLogLine(&buf, `{"level":"info","msg":"Connected","component":"conn","host":"bbctrl.local"}`, false)
	assert.Contains(t, buf.String(), "Connected")
	assert.Contains(t, buf.String(), "host=bbctrl.local")
}
