package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/grovetools/cncctl/tui/theme"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"golang.org/x/term"
)

const (
	maxWidth = 72
	minWidth = 40
)

func terminalWidth() int {
	width, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || width < minWidth {
		return maxWidth
	}
	if width > maxWidth {
		return maxWidth
	}
	return width
}

// wrapText wraps each paragraph of text to width columns.
func wrapText(text string, width int) []string {
	var lines []string
	for _, paragraph := range strings.Split(text, "\n") {
		if len(paragraph) <= width {
			lines = append(lines, paragraph)
			continue
		}
		var line string
		for _, word := range strings.Fields(paragraph) {
			switch {
			case line == "":
				line = word
			case len(line)+1+len(word) <= width:
				line += " " + word
			default:
				lines = append(lines, line)
				line = word
			}
		}
		if line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

// SetStyledHelp replaces a command's help with the themed layout.
func SetStyledHelp(cmd *cobra.Command) {
	cmd.SetHelpFunc(styledHelp)
}

// ApplyStyledHelpRecursive applies the themed help to a command tree. Call
// it after all subcommands are added.
func ApplyStyledHelpRecursive(cmd *cobra.Command) {
	cmd.SetHelpFunc(styledHelp)
	cmd.SetUsageFunc(func(*cobra.Command) error { return nil })
	for _, sub := range cmd.Commands() {
		ApplyStyledHelpRecursive(sub)
	}
}

// PrintError prints a styled error with a pointer to --help.
func PrintError(cmd *cobra.Command, err error) {
	t := theme.DefaultTheme
	fmt.Fprintf(cmd.ErrOrStderr(), "%s %s\n", t.Error.Render("Error:"), err)
	fmt.Fprintln(cmd.ErrOrStderr(), t.Muted.Render(fmt.Sprintf("Run '%s --help' for usage.", cmd.CommandPath())))
}

// splitExamples separates an "Examples:" section from a long description.
func splitExamples(long string) (description, examples string) {
	for _, marker := range []string{"\nExamples:\n", "\nExample:\n"} {
		if idx := strings.Index(long, marker); idx != -1 {
			return strings.TrimSpace(long[:idx]), strings.TrimSpace(long[idx+len(marker):])
		}
	}
	return long, ""
}

func styledHelp(cmd *cobra.Command, _ []string) {
	writeHelp(cmd.OutOrStdout(), cmd, terminalWidth()-2)
}

func writeHelp(w io.Writer, cmd *cobra.Command, width int) {
	t := theme.DefaultTheme
	title := lipgloss.NewStyle().Bold(true).Foreground(t.Colors.Orange)
	section := lipgloss.NewStyle().Italic(true).Foreground(t.Colors.Orange)
	name := lipgloss.NewStyle().Bold(true).Foreground(t.Colors.Blue)
	flagStyle := lipgloss.NewStyle().Foreground(t.Colors.Violet)

	fmt.Fprintln(w, " "+title.Render(strings.ToUpper(cmd.CommandPath())))
	for _, line := range wrapText(cmd.Short, width) {
		fmt.Fprintln(w, " "+t.Italic.Render(line))
	}

	description, examples := splitExamples(cmd.Long)
	if cmd.Example != "" {
		examples = cmd.Example
	}
	if description != "" && description != cmd.Short {
		fmt.Fprintln(w)
		for _, line := range wrapText(description, width) {
			fmt.Fprintln(w, " "+line)
		}
	}

	fmt.Fprintln(w, "\n "+section.Render("USAGE"))
	if cmd.Runnable() {
		fmt.Fprintf(w, " %s\n", cmd.UseLine())
	}
	if cmd.HasAvailableSubCommands() {
		fmt.Fprintf(w, " %s [command]\n", cmd.CommandPath())

		width := 0
		for _, sub := range cmd.Commands() {
			if sub.IsAvailableCommand() && len(sub.Name()) > width {
				width = len(sub.Name())
			}
		}
		fmt.Fprintln(w, "\n "+section.Render("COMMANDS"))
		for _, sub := range cmd.Commands() {
			if !sub.IsAvailableCommand() {
				continue
			}
			pad := strings.Repeat(" ", width-len(sub.Name()))
			fmt.Fprintf(w, " %s%s  %s\n", name.Render(sub.Name()), pad, sub.Short)
		}
	}

	var flags []*pflag.Flag
	cmd.LocalFlags().VisitAll(func(f *pflag.Flag) {
		if !f.Hidden {
			flags = append(flags, f)
		}
	})
	if len(flags) > 0 {
		fmt.Fprintln(w, "\n "+section.Render("FLAGS"))
		width := 0
		for _, f := range flags {
			if n := len(flagName(f)); n > width {
				width = n
			}
		}
		for _, f := range flags {
			label := flagName(f)
			usage := f.Usage
			if f.DefValue != "" && f.DefValue != "false" && f.DefValue != "[]" && f.DefValue != "0" {
				usage += t.Muted.Render(fmt.Sprintf(" (default: %s)", f.DefValue))
			}
			fmt.Fprintf(w, " %s%s  %s\n", flagStyle.Render(label), strings.Repeat(" ", width-len(label)), usage)
		}
	}

	if examples != "" {
		fmt.Fprintln(w, "\n "+section.Render("EXAMPLES"))
		for _, line := range strings.Split(examples, "\n") {
			trimmed := strings.TrimSpace(line)
			switch {
			case trimmed == "":
				fmt.Fprintln(w)
			case strings.HasPrefix(trimmed, "#"):
				fmt.Fprintln(w, "  "+t.Muted.Render(trimmed))
			default:
				fmt.Fprintln(w, "  "+trimmed)
			}
		}
	}

	if cmd.HasAvailableSubCommands() {
		fmt.Fprintf(w, "\n Use \"%s [command] --help\" for more information.\n", cmd.CommandPath())
	}
}

func flagName(f *pflag.Flag) string {
	if f.Shorthand != "" {
		return fmt.Sprintf("-%s, --%s", f.Shorthand, f.Name)
	}
	return "    --" + f.Name
}
