package theme

import "os"

// Nerd Font Icons (Private Constants)
const (
	nerdIconSuccess = "󰄬" // md-check (U+F012C)
	nerdIconError   = "" // cod-error (U+EA87)
	nerdIconWarning = "" // fa-warning (U+F071)
	nerdIconInfo    = "󰋼" // md-information (U+F02FC)
	nerdIconRunning = "" // fa-refresh (U+F021)
)

// ASCII fallbacks
const (
	asciiIconSuccess = "[ok]"
	asciiIconError   = "[x]"
	asciiIconWarning = "[!]"
	asciiIconInfo    = "[i]"
	asciiIconRunning = "[~]"
)

// Exported icons, resolved once from CNCCTL_ICONS ("nerd" or "ascii").
var (
	IconSuccess = pick(nerdIconSuccess, asciiIconSuccess)
	IconError   = pick(nerdIconError, asciiIconError)
	IconWarning = pick(nerdIconWarning, asciiIconWarning)
	IconInfo    = pick(nerdIconInfo, asciiIconInfo)
	IconRunning = pick(nerdIconRunning, asciiIconRunning)
)

func pick(nerd, ascii string) string {
	if os.Getenv("CNCCTL_ICONS") == "nerd" {
		return nerd
	}
	return ascii
}
