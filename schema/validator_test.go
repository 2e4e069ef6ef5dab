package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidator(t *testing.T) {
	v, err := NewValidator()
	require.NoError(t, err)

	tests := []struct {
		name     string
		config   map[string]interface{}
		wantErr  bool
		errorMsg string
	}{
		{
			name: "valid controller section",
			config: map[string]interface{}{
				"controller": map[string]interface{}{
					"host":               "bbctrl.local",
					"port":               8080,
					"reconnect_interval": "2s",
				},
			},
		},
		{
			name: "unknown controller key",
			config: map[string]interface{}{
				"controller": map[string]interface{}{
					"hostname": "bbctrl.local",
				},
			},
			wantErr:  true,
			errorMsg: "additionalProperties",
		},
		{
			name: "port out of range",
			config: map[string]interface{}{
				"controller": map[string]interface{}{"port": 70000},
			},
			wantErr:  true,
			errorMsg: "/controller/port",
		},
		{
			name: "bad logging preset",
			config: map[string]interface{}{
				"logging": map[string]interface{}{
					"format": map[string]interface{}{"preset": "fancy"},
				},
			},
			wantErr:  true,
			errorMsg: "/logging/format/preset",
		},
		{
			name: "unknown extension allowed",
			config: map[string]interface{}{
				"dashboard": map[string]interface{}{"refresh": "1s"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Validate(tt.config)
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errorMsg)
		})
	}
}
