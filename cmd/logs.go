package cmd

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	stdlog "log"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/grovetools/cncctl/cli"
	"github.com/grovetools/cncctl/config"
	"github.com/grovetools/cncctl/errors"
	"github.com/grovetools/cncctl/logging"
	"github.com/grovetools/cncctl/pkg/logging/logutil"
	"github.com/grovetools/cncctl/tui/theme"
	"github.com/hpcloud/tail"
	"github.com/spf13/cobra"
)

func newLogsCmd() *cobra.Command {
	var (
		follow    bool
		lines     int
		component string
	)

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show cncctl's own log file",
		Long: `Prints the most recent log file of a component (cncctl by default)
from .cncctl/logs, optionally following it as it grows.

Examples:
  # Follow the log
  cncctl logs -f

  # Last 50 lines as JSON Lines
  cncctl logs --tail 50 --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var logCfg logging.Config
			if cfg, err := config.LoadDefault(); err == nil {
				_ = cfg.UnmarshalExtension("logging", &logCfg)
			}

			path, dir, err := logutil.FindLogFile(component, logCfg)
			if err != nil {
				return errors.Wrap(err, errors.ErrCodeConfigNotFound, "no log file found").WithDetail("dir", dir)
			}
			jsonOut := cli.GetOptions(cmd).JSONOutput
			out := cmd.OutOrStdout()

			offset, err := printLastLines(out, path, lines, jsonOut)
			if err != nil {
				return err
			}
			if !follow {
				return nil
			}

			t, err := tail.TailFile(path, tail.Config{
				Follow:   true,
				ReOpen:   true,
				Location: &tail.SeekInfo{Offset: offset, Whence: io.SeekStart},
				Logger:   stdlog.New(io.Discard, "", 0),
			})
			if err != nil {
				return err
			}
			defer t.Stop()

			ctx := commandContext(cmd)
			for {
				select {
				case <-ctx.Done():
					return nil
				case line, ok := <-t.Lines:
					if !ok {
						return t.Err()
					}
					if line.Err != nil {
						continue
					}
					printLogLine(out, line.Text, jsonOut)
				}
			}
		},
	}

	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Follow log output")
	cmd.Flags().IntVar(&lines, "tail", -1, "Number of lines to show from the end (default: all)")
	cmd.Flags().StringVar(&component, "component", "cncctl", "Component whose log to show")
	return cmd
}

// printLastLines prints the last n lines of path (all when n < 0) and
// returns the offset where reading stopped.
func printLastLines(w io.Writer, path string, n int, jsonOut bool) (int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	var (
		all    []string
		offset int64
	)
	reader := bufio.NewReader(f)
	for {
		line, err := reader.ReadString('\n')
		if strings.HasSuffix(line, "\n") {
			offset += int64(len(line))
			all = append(all, strings.TrimRight(line, "\r\n"))
		}
		if err != nil {
			break
		}
	}

	start := 0
	if n >= 0 && len(all) > n {
		start = len(all) - n
	}
	for _, line := range all[start:] {
		printLogLine(w, line, jsonOut)
	}
	return offset, nil
}

func printLogLine(w io.Writer, line string, jsonOut bool) {
	if strings.TrimSpace(line) == "" {
		return
	}

	var entry map[string]interface{}
	isJSON := json.Unmarshal([]byte(line), &entry) == nil

	if jsonOut {
		if !isJSON {
			entry = map[string]interface{}{"raw_line": line}
		}
		data, _ := json.Marshal(entry)
		fmt.Fprintln(w, string(data))
		return
	}
	if !isJSON {
		fmt.Fprintln(w, line)
		return
	}

	t := theme.DefaultTheme
	ts, _ := entry["time"].(string)
	level, _ := entry["level"].(string)
	msg, _ := entry["msg"].(string)
	component, _ := entry["component"].(string)

	timeStr := ts
	if parsed, err := time.Parse(time.RFC3339Nano, ts); err == nil {
		timeStr = parsed.Format("15:04:05")
	}

	levelStyle := t.Muted
	switch strings.ToLower(level) {
	case "error", "fatal", "panic":
		levelStyle = t.Error
	case "warning":
		levelStyle = t.Warning
	case "info":
		levelStyle = t.Info
	}

	var fields []string
	for k, v := range entry {
		switch k {
		case "time", "level", "msg", "component":
			continue
		}
		fields = append(fields, fmt.Sprintf("%s=%v", k, v))
	}
	sort.Strings(fields)

	fmt.Fprintf(w, "%s %s %s %s", t.Muted.Render(timeStr), levelStyle.Render(fmt.Sprintf("%-5s", strings.ToUpper(level))),
		t.Accent.Render("["+component+"]"), msg)
	if len(fields) > 0 {
		fmt.Fprint(w, " "+t.Muted.Render(strings.Join(fields, " ")))
	}
	fmt.Fprintln(w)
}
