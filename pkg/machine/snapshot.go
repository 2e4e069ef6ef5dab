package machine

import (
	"strings"

	"github.com/grovetools/cncctl/pkg/tree"
	"github.com/mitchellh/mapstructure"
)

// Axes are the controller's axis letters in display order.
const Axes = "xyzabc"

// Homing modes reported per axis.
const (
	HomingManual    = "manual"
	HomingSwitchMin = "switch-min"
	HomingSwitchMax = "switch-max"
	HomingDisabled  = "disabled"
)

// Pause reasons that count as a deliberate pause rather than a fault hold.
const (
	ReasonUserPause    = "User pause"
	ReasonProgramPause = "Program pause"
)

// Snapshot is a typed view of the fields of a state snapshot the control
// logic reads. Unknown keys are ignored.
type Snapshot struct {
	Status      string  `mapstructure:"xx"`
	Cycle       string  `mapstructure:"cycle"`
	PauseReason string  `mapstructure:"pr"`
	ErrorReason string  `mapstructure:"er"`
	PlanTime    float64 `mapstructure:"plan_time"`
	Imperial    bool    `mapstructure:"imperial"`
	Selected    string  `mapstructure:"selected"`
	Line        float64 `mapstructure:"line"`
	HID         string  `mapstructure:"hid"`

	raw tree.Map
}

// FromState decodes a state snapshot. Fields of an unexpected type are left
// at their zero value.
func FromState(m tree.Map) Snapshot {
	snap := Snapshot{raw: m}
	if m == nil {
		return snap
	}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &snap,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return snap
	}
	// Decode field by field so one malformed value doesn't hide the rest.
	raw := m.ToAny()
	for _, key := range []string{"xx", "cycle", "pr", "er", "plan_time", "imperial", "selected", "line", "hid"} {
		v, ok := raw[key]
		if !ok || v == nil {
			continue
		}
		_ = decoder.Decode(map[string]interface{}{key: v})
	}
	return snap
}

// HomingMode returns the homing mode of an axis, "" if unknown.
func (s Snapshot) HomingMode(axis string) string {
	v, _ := tree.String(s.raw, strings.ToLower(axis)+"_homing_mode")
	return v
}

// AxisEnabled reports whether an axis is mapped to a motor.
func (s Snapshot) AxisEnabled(axis string) bool {
	v, _ := tree.Bool(s.raw, strings.ToLower(axis)+"_enabled")
	return v
}

// EnabledAxes returns the enabled axes in display order.
func (s Snapshot) EnabledAxes() []string {
	var axes []string
	for _, a := range Axes {
		if s.AxisEnabled(string(a)) {
			axes = append(axes, string(a))
		}
	}
	return axes
}

// PowerLimit returns the raw `<axis>pl` value.
func (s Snapshot) PowerLimit(axis string) (float64, bool) {
	return tree.Float(s.raw, strings.ToLower(axis)+"pl")
}

// PathBounds returns the published toolpath bounds of an axis.
func (s Snapshot) PathBounds(axis string) (min, max float64, ok bool) {
	axis = strings.ToLower(axis)
	min, okMin := tree.Float(s.raw, "path_min_"+axis)
	max, okMax := tree.Float(s.raw, "path_max_"+axis)
	return min, max, okMin && okMax
}

// ValidAxis reports whether axis names one of the controller's axes.
func ValidAxis(axis string) bool {
	return len(axis) == 1 && strings.Contains(Axes, strings.ToLower(axis))
}

// Position returns the reported position of an axis (`<axis>p`).
func (s Snapshot) Position(axis string) (float64, bool) {
	return tree.Float(s.raw, strings.ToLower(axis)+"p")
}
