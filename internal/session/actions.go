package session

import (
	"context"
	"io"
)

// Command runs a user command and reports its failure as an EventError.
// Commands are never retried.
func (s *Session) Command(ctx context.Context, op string, fn func(context.Context) error) error {
	if err := fn(ctx); err != nil {
		s.fail(op, err)
		return err
	}
	return nil
}

// SetConfig edits a device configuration value locally. Save writes it to
// the controller.
func (s *Session) SetConfig(ctx context.Context, path string, value interface{}) error {
	return s.Do(ctx, func() error {
		return s.store.SetConfig(path, value)
	})
}

// Save writes the local device configuration to the controller and clears
// the modified flag.
func (s *Session) Save(ctx context.Context) error {
	return s.Command(ctx, "config save", func(ctx context.Context) error {
		if err := s.api.SaveConfig(ctx, s.store.ConfigSnapshot()); err != nil {
			return err
		}
		s.store.MarkSaved()
		s.logger.Info("Saved device configuration")
		return nil
	})
}

// Upgrade asks the controller to download and install the latest firmware.
func (s *Session) Upgrade(ctx context.Context, password string) error {
	return s.Command(ctx, "upgrade", func(ctx context.Context) error {
		return s.api.Upgrade(ctx, password)
	})
}

// UploadFirmware installs a firmware package.
func (s *Session) UploadFirmware(ctx context.Context, name string, r io.Reader, password string) error {
	return s.Command(ctx, "firmware upload", func(ctx context.Context) error {
		return s.api.UploadFirmware(ctx, name, r, password)
	})
}

// UploadFile uploads a G-code file. The toolpath of a re-uploaded file is
// requested again.
func (s *Session) UploadFile(ctx context.Context, name string, r io.Reader) error {
	err := s.Command(ctx, "file upload", func(ctx context.Context) error {
		return s.api.UploadFile(ctx, name, r)
	})
	if err != nil {
		return err
	}

	s.post(func() {
		s.fetcher.Invalidate()
		if s.store.GetString("selected") == name {
			s.fetcher.Load(s.loopContext(), name)
		}
		s.emit(Event{Type: EventReload, File: name})
	})
	return nil
}

// DeleteFile removes an uploaded file.
func (s *Session) DeleteFile(ctx context.Context, name string) error {
	return s.Command(ctx, "file delete", func(ctx context.Context) error {
		return s.api.DeleteFile(ctx, name)
	})
}

// DeleteAllFiles removes every uploaded file.
func (s *Session) DeleteAllFiles(ctx context.Context) error {
	return s.Command(ctx, "file delete", func(ctx context.Context) error {
		return s.api.DeleteAllFiles(ctx)
	})
}

// CloseMessages dismisses the operator messages, optionally stopping or
// resuming the program.
func (s *Session) CloseMessages(ctx context.Context, action string) error {
	return s.Command(ctx, "messages", func(ctx context.Context) error {
		return s.messages.Close(ctx, action)
	})
}

// BlockErrors suppresses the class of the last shown error for the
// configured timeout.
func (s *Session) BlockErrors() bool {
	return s.gate.BlockLast()
}
