package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/grovetools/cncctl/errors"
	"github.com/grovetools/cncctl/tui/theme"
)

// ErrorHandler prints errors with a hint for the operator.
type ErrorHandler struct {
	Verbose bool
	Out     io.Writer
}

// NewErrorHandler creates an ErrorHandler writing to stderr.
func NewErrorHandler(verbose bool) *ErrorHandler {
	return &ErrorHandler{Verbose: verbose, Out: os.Stderr}
}

// Hint returns the advice shown for an error, "" if none.
func Hint(err error) string {
	var details map[string]interface{}
	if ctlErr, ok := errors.As(err); ok {
		details = ctlErr.Details
	}

	switch errors.GetCode(err) {
	case errors.ErrCodeConfigNotFound:
		return "Create cncctl.yml or pass --config."
	case errors.ErrCodeConfigInvalid, errors.ErrCodeConfigValidation:
		return "Check cncctl.yml against 'cncctl config schema'."
	case errors.ErrCodePermissionDenied:
		return "The controller rejected the request. Check the admin password."
	case errors.ErrCodeNotConnected, errors.ErrCodeTransport:
		return "Is the controller powered on and reachable? Set the host with --host or controller.host."
	case errors.ErrCodeTimeout:
		if host, ok := details["host"]; ok {
			return fmt.Sprintf("No answer from %v. Check the network or raise controller.request_timeout.", host)
		}
		return "Raise controller.request_timeout if the controller is slow to answer."
	case errors.ErrCodeInvalidInput:
		return "Run the command with --help for valid arguments."
	case errors.ErrCodeProtocolViolation:
		return "The controller sent data this client does not understand. Check the firmware version."
	}
	return ""
}

// Handle prints err and returns it.
func (h *ErrorHandler) Handle(err error) error {
	if err == nil {
		return nil
	}
	t := theme.DefaultTheme

	fmt.Fprintf(h.Out, "%s %v\n", t.Error.Render(theme.IconError+" Error:"), err)
	if hint := Hint(err); hint != "" {
		fmt.Fprintln(h.Out, t.Muted.Render(hint))
	}

	if h.Verbose {
		if ctlErr, ok := errors.As(err); ok {
			fmt.Fprintf(h.Out, "\nError details:\n%s\n", ctlErr.ToJSON())
		}
	}
	return err
}
