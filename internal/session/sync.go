package session

import (
	"context"

	"github.com/grovetools/cncctl/pkg/machine"
	"github.com/grovetools/cncctl/pkg/tree"
	"github.com/grovetools/cncctl/state"
)

// handleMessage applies an inbound delta.
func (s *Session) handleMessage(delta tree.Map) {
	if err := s.store.Apply(delta); err != nil {
		s.fail("apply delta", err)
	}
}

// update fetches the configuration template and the device configuration,
// replacing the local copy, then runs the one-time upgrade check.
func (s *Session) update() {
	ctx := s.loopContext()
	s.logger.Debug("Loading device configuration")

	go func() {
		tmpl, err := s.api.ConfigTemplate(ctx)
		if err != nil {
			s.post(func() { s.fail("config template", err) })
			return
		}
		s.post(func() {
			s.mu.Lock()
			s.template = tmpl
			s.mu.Unlock()
		})

		device, err := s.api.LoadConfig(ctx)
		s.post(func() {
			if err != nil {
				s.fail("config load", err)
				return
			}
			if err := s.store.LoadConfig(device); err != nil {
				s.fail("config load", err)
				return
			}
			s.markReady()
			s.autoCheckUpgrade()
		})
	}()
}

// reload discards the mirrored state after a reconnect and loads everything
// again.
func (s *Session) reload() {
	s.logger.Info("Resynchronizing after reconnect")
	s.store.Reset(nil)
	s.fetcher.Invalidate()
	s.emit(Event{Type: EventReload})
	s.update()
}

func (s *Session) hostChanged(host string) {
	s.api.SetHost(host)
	s.logger.WithField("host", host).Info("Following controller to new hostname")
}

func (s *Session) handleLog(e state.LogEntry) {
	entry := e
	logger := s.logger.WithField("source", e.Source)

	if e.Level != "error" {
		logger.WithField("level", e.Level).Debug(e.Msg)
		s.emit(Event{Type: EventLog, Log: &entry})
		return
	}

	if !s.gate.Allow(e) {
		logger.Debug("Suppressed controller error")
		return
	}
	logger.Warn(e.Msg)
	s.emit(Event{Type: EventAlert, Log: &entry})
}

// stateChanged runs after every state change, on the event loop.
func (s *Session) stateChanged() {
	snap := s.store.Snapshot()
	if len(snap) > 0 {
		s.stateOnce.Do(func() { close(s.stateSeen) })
	}

	selected, _ := tree.String(snap, "selected")
	if s.selected == nil || *s.selected != selected {
		s.selected = &selected
		s.fetcher.Load(s.loopContext(), selected)
		if selected != "" {
			s.emit(Event{Type: EventLoad, File: selected})
		}
	}

	if line, ok := tree.Float(snap, "line"); ok && (s.line == nil || *s.line != line) {
		s.line = &line
		if machine.DeriveMode(machine.FromState(snap)) != machine.ModeHoming {
			s.emit(Event{Type: EventLine, Line: int(line)})
		}
	}

	if imperial, ok := tree.Bool(snap, "imperial"); ok && (s.imperial == nil || *s.imperial != imperial) {
		s.imperial = &imperial
		s.emit(Event{Type: EventUnits, Imperial: imperial})
	}

	s.emit(Event{Type: EventState})
}

func (s *Session) autoCheckUpgrade() {
	s.mu.Lock()
	checked := s.upgradeChecked
	s.upgradeChecked = true
	s.mu.Unlock()

	if checked || !s.cfg.Upgrade.AutoCheck {
		return
	}
	if check, ok := tree.Bool(s.store.ConfigSnapshot(), "admin.auto-check-upgrade"); ok && !check {
		s.logger.Debug("Automatic upgrade check disabled on the device")
		return
	}

	ctx := s.loopContext()
	go func() {
		if _, err := s.CheckUpgrade(ctx); err != nil {
			s.logger.WithError(err).Warn("Upgrade check failed")
		}
	}()
}

// CheckUpgrade fetches the latest firmware version and emits EventUpgrade
// when it is newer than the device's.
func (s *Session) CheckUpgrade(ctx context.Context) (string, error) {
	s.mu.Lock()
	s.latest = ""
	s.mu.Unlock()

	latest, err := s.checker.Latest(ctx, s.store.GetString("hid"))
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	s.latest = latest
	s.mu.Unlock()

	if s.UpgradeAvailable() {
		s.logger.WithField("latest", latest).Info("Firmware upgrade available")
		s.emit(Event{Type: EventUpgrade, Version: latest})
	}
	return latest, nil
}
