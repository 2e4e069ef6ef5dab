package machine

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/grovetools/cncctl/errors"
	"github.com/grovetools/cncctl/pkg/tree"
	"github.com/sirupsen/logrus"
)

// Commander issues command API requests.
type Commander interface {
	Put(ctx context.Context, verb string, body interface{}) error
}

// Sender writes a raw message on the delta channel. It returns false when
// the channel is not connected.
type Sender interface {
	Send(msg string) bool
}

// Source supplies the current state snapshot.
type Source interface {
	Snapshot() tree.Map
}

// Action is what the start/pause control does in the current mode.
type Action string

const (
	ActionPause   Action = "pause"
	ActionUnpause Action = "unpause"
	ActionStart   Action = "start"
)

// ToggleAction returns the start/pause control's action for a mode. The
// fallback is ActionStart for the main control; the MDI control submits the
// pending command instead.
func ToggleAction(mode Mode) Action {
	switch mode {
	case ModeRunning:
		return ActionPause
	case ModeStopping, ModeHolding:
		return ActionUnpause
	}
	return ActionStart
}

// Controller turns user intents into command API calls and channel messages.
type Controller struct {
	api    Commander
	ch     Sender
	src    Source
	logger *logrus.Entry

	mu      sync.Mutex
	mdi     string
	history []string
}

// NewController creates a Controller.
func NewController(api Commander, ch Sender, src Source, logger *logrus.Entry) *Controller {
	return &Controller{api: api, ch: ch, src: src, logger: logger}
}

func (c *Controller) snapshot() Snapshot {
	return FromState(c.src.Snapshot())
}

func (c *Controller) put(ctx context.Context, verb string, body interface{}) error {
	c.logger.WithField("command", verb).Debug("Issuing command")
	return c.api.Put(ctx, verb, body)
}

// Estop toggles the emergency stop: clears it when estopped, else triggers it.
func (c *Controller) Estop(ctx context.Context) error {
	if Mode(c.snapshot().Status) == ModeEstopped {
		return c.put(ctx, "clear", nil)
	}
	return c.put(ctx, "estop", nil)
}

// StartPause pauses a running job, resumes a held one, or starts the
// selected file.
func (c *Controller) StartPause(ctx context.Context) error {
	return c.toggle(ctx, func() error { return c.put(ctx, "start", nil) })
}

// MDIStartPause is StartPause for the MDI control: the fallback submits the
// pending MDI command.
func (c *Controller) MDIStartPause(ctx context.Context) error {
	return c.toggle(ctx, c.SubmitMDI)
}

func (c *Controller) toggle(ctx context.Context, fallback func() error) error {
	switch ToggleAction(DeriveMode(c.snapshot())) {
	case ActionPause:
		return c.put(ctx, "pause", nil)
	case ActionUnpause:
		return c.put(ctx, "unpause", nil)
	}
	return fallback()
}

// Stop stops the running job.
func (c *Controller) Stop(ctx context.Context) error { return c.put(ctx, "stop", nil) }

// Step executes one block of the selected program.
func (c *Controller) Step(ctx context.Context) error { return c.put(ctx, "step", nil) }

// Pause pauses the job; optional pauses only at an optional-stop point.
func (c *Controller) Pause(ctx context.Context, optional bool) error {
	if optional {
		return c.put(ctx, "pause/optional", nil)
	}
	return c.put(ctx, "pause", nil)
}

// Unpause resumes a held job.
func (c *Controller) Unpause(ctx context.Context) error { return c.put(ctx, "unpause", nil) }

// Home homes every axis when axis is empty. A single axis in manual homing
// mode cannot be homed by the controller; SetHome must be used instead.
func (c *Controller) Home(ctx context.Context, axis string) error {
	if axis == "" {
		return c.put(ctx, "home", nil)
	}
	axis, err := normalizeAxis(axis)
	if err != nil {
		return err
	}
	if c.snapshot().HomingMode(axis) == HomingManual {
		return errors.New(errors.ErrCodeInvalidInput,
			fmt.Sprintf("axis %s uses manual homing; set its home position instead", strings.ToUpper(axis))).
			WithDetail("axis", axis)
	}
	return c.put(ctx, "home/"+axis, nil)
}

// SetHome marks an axis homed at position.
func (c *Controller) SetHome(ctx context.Context, axis string, position float64) error {
	axis, err := normalizeAxis(axis)
	if err != nil {
		return err
	}
	return c.put(ctx, "home/"+axis+"/set", map[string]interface{}{"position": position})
}

// Unhome clears an axis' homed flag.
func (c *Controller) Unhome(ctx context.Context, axis string) error {
	axis, err := normalizeAxis(axis)
	if err != nil {
		return err
	}
	return c.put(ctx, "home/"+axis+"/clear", nil)
}

// SetPosition sets an axis' current position. Only allowed while idle.
func (c *Controller) SetPosition(ctx context.Context, axis string, position float64) error {
	axis, err := normalizeAxis(axis)
	if err != nil {
		return err
	}
	if c.snapshot().Cycle != CycleIdle {
		return errors.New(errors.ErrCodeInvalidInput, "axis positions can only be set while idle").
			WithDetail("axis", axis)
	}
	return c.put(ctx, "position/"+axis, map[string]interface{}{"position": position})
}

// Zero sets an axis' position to 0, or every enabled axis when axis is empty.
func (c *Controller) Zero(ctx context.Context, axis string) error {
	if axis != "" {
		return c.SetPosition(ctx, axis, 0)
	}
	for _, a := range c.snapshot().EnabledAxes() {
		if err := c.SetPosition(ctx, a, 0); err != nil {
			return err
		}
	}
	return nil
}

// OverrideFeed sets the feed override ratio.
func (c *Controller) OverrideFeed(ctx context.Context, ratio float64) error {
	return c.put(ctx, "override/feed/"+formatFloat(ratio), nil)
}

// OverrideSpeed sets the spindle speed override ratio.
func (c *Controller) OverrideSpeed(ctx context.Context, ratio float64) error {
	return c.put(ctx, "override/speed/"+formatFloat(ratio), nil)
}

// Jog moves an axis at a signed power fraction.
func (c *Controller) Jog(ctx context.Context, axis string, power float64) error {
	axis, err := normalizeAxis(axis)
	if err != nil {
		return err
	}
	return c.put(ctx, "jog", map[string]interface{}{axis: power})
}

// SetUnits switches the machine to metric or imperial by sending G21/G20
// when it differs from the reported units. It reports whether a command was
// sent.
func (c *Controller) SetUnits(metric bool) (bool, error) {
	if metric != c.snapshot().Imperial {
		return false, nil
	}
	code := "G20"
	if metric {
		code = "G21"
	}
	if !c.ch.Send(code) {
		return false, errors.NotConnected("units")
	}
	return true, nil
}

// SetCurrent sets an axis' motor current limit. value is on the 0..32 scale
// of the configuration UI and is sent as value/32. Nothing is sent when the
// controller already reports that limit.
func (c *Controller) SetCurrent(axis string, value float64) (bool, error) {
	axis, err := normalizeAxis(axis)
	if err != nil {
		return false, err
	}
	x := value / 32
	if current, ok := c.snapshot().PowerLimit(axis); ok && current == x {
		return false, nil
	}

	msg, err := json.Marshal(map[string]float64{axis + "pl": x})
	if err != nil {
		return false, err
	}
	if !c.ch.Send(string(msg)) {
		return false, errors.NotConnected("current")
	}
	return true, nil
}

// SetMDI stages the pending MDI command text.
func (c *Controller) SetMDI(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mdi = text
}

// MDI returns the pending MDI command text.
func (c *Controller) MDI() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mdi
}

// SubmitMDI sends the pending MDI command, records it in the history unless
// it repeats the most recent entry, and clears the pending text.
func (c *Controller) SubmitMDI() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.ch.Send(c.mdi) {
		return errors.NotConnected("mdi")
	}
	if len(c.history) == 0 || c.history[0] != c.mdi {
		c.history = append([]string{c.mdi}, c.history...)
	}
	c.mdi = ""
	return nil
}

// History returns submitted MDI commands, newest first.
func (c *Controller) History() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.history...)
}

// SetHistory restores a previously saved history, newest first.
func (c *Controller) SetHistory(history []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.history = append([]string(nil), history...)
}

// LoadHistory copies a history entry into the pending MDI text.
func (c *Controller) LoadHistory(index int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if index < 0 || index >= len(c.history) {
		return false
	}
	c.mdi = c.history[index]
	return true
}

// Status derives the current status; toolpathTime is the loaded plan's total
// time in seconds.
func (c *Controller) Status(toolpathTime float64) Status {
	return Derive(c.snapshot(), toolpathTime, time.Now())
}

func normalizeAxis(axis string) (string, error) {
	if !ValidAxis(axis) {
		return "", errors.InvalidAxis(axis)
	}
	return strings.ToLower(axis), nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
