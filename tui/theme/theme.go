package theme

import (
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

const defaultThemeName = "kanagawa"

// --- Kanagawa Dragon (dark) palette ---
const (
	kanagawaDarkGreen     = "#98BB6C"
	kanagawaDarkYellow    = "#FF9E3B"
	kanagawaDarkRed       = "#FF5D62"
	kanagawaDarkOrange    = "#FFA066"
	kanagawaDarkCyan      = "#7E9CD8"
	kanagawaDarkBlue      = "#7FB4CA"
	kanagawaDarkViolet    = "#957FB8"
	kanagawaDarkLightText = "#DCD7BA"
	kanagawaDarkMutedText = "#727169"
	kanagawaDarkBorder    = "#363646"
)

// --- Kanagawa Wave (light-inspired) palette ---
const (
	kanagawaLightGreen     = "#4E7C5A"
	kanagawaLightYellow    = "#A68A64"
	kanagawaLightRed       = "#C34043"
	kanagawaLightOrange    = "#CC6B4E"
	kanagawaLightCyan      = "#5B8BBE"
	kanagawaLightBlue      = "#4F7CAC"
	kanagawaLightViolet    = "#674D7A"
	kanagawaLightLightText = "#2B2F42"
	kanagawaLightMutedText = "#6C7086"
	kanagawaLightBorder    = "#B5BDC5"
)

// --- Terminal (ANSI-friendly) palette ---
const (
	terminalGreen     = "2"
	terminalYellow    = "3"
	terminalRed       = "1"
	terminalOrange    = "208"
	terminalCyan      = "6"
	terminalBlue      = "4"
	terminalViolet    = "5"
	terminalLightText = "7"
	terminalMutedText = "8"
	terminalBorder    = "8"
)

// Colors encapsulates the palette used by a theme. lipgloss.TerminalColor
// allows a mix of adaptive and static colors.
type Colors struct {
	Green     lipgloss.TerminalColor
	Yellow    lipgloss.TerminalColor
	Red       lipgloss.TerminalColor
	Orange    lipgloss.TerminalColor
	Cyan      lipgloss.TerminalColor
	Blue      lipgloss.TerminalColor
	Violet    lipgloss.TerminalColor
	LightText lipgloss.TerminalColor
	MutedText lipgloss.TerminalColor
	Border    lipgloss.TerminalColor
}

// Theme holds the styles shared by the CLI, the log formatter and the dashboard.
type Theme struct {
	Colors Colors

	Header lipgloss.Style
	Title  lipgloss.Style

	Success lipgloss.Style
	Error   lipgloss.Style
	Warning lipgloss.Style
	Info    lipgloss.Style

	Bold   lipgloss.Style
	Normal lipgloss.Style
	Muted  lipgloss.Style
	Italic lipgloss.Style
	Accent lipgloss.Style

	Box lipgloss.Style
}

// DefaultTheme is the theme selected by CNCCTL_THEME (or the default palette).
var DefaultTheme = initDefaultTheme()

// NewThemeWithName constructs a theme from a specific palette name.
func NewThemeWithName(name string) *Theme {
	return newThemeFromColors(resolveThemeColors(name))
}

// RenderStatus renders text with the appropriate status style.
func RenderStatus(status, text string) string {
	switch status {
	case "success":
		return DefaultTheme.Success.Render(text)
	case "error":
		return DefaultTheme.Error.Render(text)
	case "warning":
		return DefaultTheme.Warning.Render(text)
	case "info":
		return DefaultTheme.Info.Render(text)
	default:
		return text
	}
}

// ModeStyle returns the style used to render a machine control mode.
func (t *Theme) ModeStyle(mode string) lipgloss.Style {
	base := lipgloss.NewStyle().Bold(true)
	switch mode {
	case "ESTOPPED":
		return base.Foreground(t.Colors.Red)
	case "RUNNING", "HOMING", "JOGGING":
		return base.Foreground(t.Colors.Green)
	case "HOLDING", "STOPPING":
		return base.Foreground(t.Colors.Yellow)
	case "READY":
		return base.Foreground(t.Colors.Cyan)
	default:
		return base.Foreground(t.Colors.MutedText)
	}
}

func initDefaultTheme() *Theme {
	if os.Getenv("NO_COLOR") != "" {
		lipgloss.SetColorProfile(termenv.Ascii)
	}
	return NewThemeWithName(getThemeName())
}

func getThemeName() string {
	if name := strings.TrimSpace(os.Getenv("CNCCTL_THEME")); name != "" {
		return name
	}
	return defaultThemeName
}

func resolveThemeColors(name string) Colors {
	switch strings.ToLower(name) {
	case "terminal", "ansi":
		return Colors{
			Green:     lipgloss.Color(terminalGreen),
			Yellow:    lipgloss.Color(terminalYellow),
			Red:       lipgloss.Color(terminalRed),
			Orange:    lipgloss.Color(terminalOrange),
			Cyan:      lipgloss.Color(terminalCyan),
			Blue:      lipgloss.Color(terminalBlue),
			Violet:    lipgloss.Color(terminalViolet),
			LightText: lipgloss.Color(terminalLightText),
			MutedText: lipgloss.Color(terminalMutedText),
			Border:    lipgloss.Color(terminalBorder),
		}
	default:
		return Colors{
			Green:     lipgloss.AdaptiveColor{Light: kanagawaLightGreen, Dark: kanagawaDarkGreen},
			Yellow:    lipgloss.AdaptiveColor{Light: kanagawaLightYellow, Dark: kanagawaDarkYellow},
			Red:       lipgloss.AdaptiveColor{Light: kanagawaLightRed, Dark: kanagawaDarkRed},
			Orange:    lipgloss.AdaptiveColor{Light: kanagawaLightOrange, Dark: kanagawaDarkOrange},
			Cyan:      lipgloss.AdaptiveColor{Light: kanagawaLightCyan, Dark: kanagawaDarkCyan},
			Blue:      lipgloss.AdaptiveColor{Light: kanagawaLightBlue, Dark: kanagawaDarkBlue},
			Violet:    lipgloss.AdaptiveColor{Light: kanagawaLightViolet, Dark: kanagawaDarkViolet},
			LightText: lipgloss.AdaptiveColor{Light: kanagawaLightLightText, Dark: kanagawaDarkLightText},
			MutedText: lipgloss.AdaptiveColor{Light: kanagawaLightMutedText, Dark: kanagawaDarkMutedText},
			Border:    lipgloss.AdaptiveColor{Light: kanagawaLightBorder, Dark: kanagawaDarkBorder},
		}
	}
}

func newThemeFromColors(colors Colors) *Theme {
	return &Theme{
		Colors: colors,

		Header: lipgloss.NewStyle().
			Bold(true).
			MarginTop(1).
			MarginBottom(1),

		Title: lipgloss.NewStyle().
			Bold(true).
			Underline(true).
			MarginBottom(1),

		Success: lipgloss.NewStyle().
			Foreground(colors.Green).
			Bold(true),

		Error: lipgloss.NewStyle().
			Foreground(colors.Red).
			Bold(true),

		Warning: lipgloss.NewStyle().
			Foreground(colors.Yellow).
			Bold(true),

		Info: lipgloss.NewStyle().
			Foreground(colors.Cyan).
			Bold(true),

		// Text hierarchy: Bold → Normal → Muted
		Bold:   lipgloss.NewStyle().Bold(true),
		Normal: lipgloss.NewStyle(),
		Muted:  lipgloss.NewStyle().Faint(true),
		Italic: lipgloss.NewStyle().Italic(true),
		Accent: lipgloss.NewStyle().Foreground(colors.Violet),

		Box: lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(colors.Border).
			Padding(0, 1),
	}
}
