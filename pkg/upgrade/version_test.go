package upgrade

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/grovetools/cncctl/errors"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompareVersions(t *testing.T) {
	tests := []struct {
		a, b string
		sign int
	}{
		{"1.2.0", "1.2", 0},
		{"1.3.0", "1.2.9", 1},
		{"1.2", "1.2.1", -1},
		{"0.4.10", "0.4.9", 1},
		{"1.0.0", "1", 0},
		{"1.2.1b1", "1.2.1", 0},
		{"1.2.0b1", "1.2.0", 1},
		{"1.x.3", "1.y.2", 1},
		{"2.0", "10.0", -1},
	}

	for _, tt := range tests {
		got := CompareVersions(tt.a, tt.b)
		switch {
		case tt.sign == 0:
			assert.Equal(t, 0, got, "%s vs %s", tt.a, tt.b)
		case tt.sign > 0:
			assert.Greater(t, got, 0, "%s vs %s", tt.a, tt.b)
		default:
			assert.Less(t, got, 0, "%s vs %s", tt.a, tt.b)
		}
	}
}

func TestAvailable(t *testing.T) {
	assert.True(t, Available("1.0.3", "1.0.4"))
	assert.False(t, Available("1.0.4", "1.0.4"))
	assert.False(t, Available("1.0.4", ""))
	assert.False(t, Available("1.1", "1.0.9"))
}

func TestCheckerLatest(t *testing.T) {
	var gotHID string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHID = r.URL.Query().Get("hid")
		w.Write([]byte("1.0.4\n"))
	}))
	defer srv.Close()

	c := NewChecker(srv.URL+"/latest.txt", time.Second, logrus.NewEntry(logrus.New()))
	latest, err := c.Latest(context.Background(), "ABC123")
	require.NoError(t, err)
	assert.Equal(t, "1.0.4", latest)
	assert.Equal(t, "ABC123", gotHID)
}

func TestCheckerStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusGone)
	}))
	defer srv.Close()

	c := NewChecker(srv.URL, time.Second, logrus.NewEntry(logrus.New()))
	_, err := c.Latest(context.Background(), "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeCommandFailed))
}
