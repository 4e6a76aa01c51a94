package cmd

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Iron-Ham/vulntune/internal/logging"
)

type logsOptions struct {
	run   string
	phase string
	level string
	grep  string
	tail  int
}

func newLogsCmd() *cobra.Command {
	opts := &logsOptions{}
	cmd := &cobra.Command{
		Use:   "logs",
		Short: "View the pipeline log",
		Long: `View and filter <workspace>/logs/pipeline.log.

Examples:
  # Last 50 entries
  vulntune logs

  # Everything one run logged for training
  vulntune logs --run 7d1c... --phase training -n 0

  # Warnings and errors only
  vulntune logs --level warn`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runLogs(cmd, opts)
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&opts.run, "run", "", "Only entries from this run id")
	flags.StringVar(&opts.phase, "phase", "", "Only entries from this phase")
	flags.StringVar(&opts.level, "level", "", "Minimum level (debug/info/warn/error)")
	flags.StringVar(&opts.grep, "grep", "", "Only entries whose message contains this text")
	flags.IntVarP(&opts.tail, "tail", "n", 50, "Number of entries to show (0 for all)")
	return cmd
}

func runLogs(cmd *cobra.Command, opts *logsOptions) error {
	resolved, _, err := loadConfig(cmd, nil)
	if err != nil {
		return err
	}
	settings := resolved.Settings()
	path := filepath.Join(settings.LogDir(), logging.LogFileName)

	entries, err := logging.ReadEntries(path)
	if err != nil {
		return err
	}
	entries = logging.FilterLogs(entries, logging.LogFilter{
		Level:           opts.level,
		RunID:           opts.run,
		Phase:           opts.phase,
		MessageContains: opts.grep,
	})
	if opts.tail > 0 && len(entries) > opts.tail {
		entries = entries[len(entries)-opts.tail:]
	}

	p := newPrinter(cmd.OutOrStdout())
	if len(entries) == 0 {
		p.printf("No matching log entries found.\n")
		return nil
	}
	for _, e := range entries {
		p.printf("%s\n", p.formatEntry(e))
	}
	return nil
}

func (p *printer) levelStyle(level string) func(...string) string {
	switch strings.ToUpper(level) {
	case logging.LevelDebug:
		return p.muted.Render
	case logging.LevelWarn:
		return p.warn.Render
	case logging.LevelError:
		return p.fail.Render
	default:
		return p.accent.Render
	}
}

// formatEntry renders one log entry on a single line with attributes in
// key order.
func (p *printer) formatEntry(e logging.LogEntry) string {
	var sb strings.Builder
	sb.WriteString(p.muted.Render("[" + e.Timestamp.Format("15:04:05.000") + "]"))
	sb.WriteString(" ")
	sb.WriteString(p.levelStyle(e.Level)("[" + strings.ToUpper(e.Level) + "]"))
	sb.WriteString(" ")
	sb.WriteString(e.Message)
	if e.Phase != "" {
		sb.WriteString(" ")
		sb.WriteString(p.accent.Render("phase=" + e.Phase))
	}

	keys := make([]string, 0, len(e.Attrs))
	for k := range e.Attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&sb, " %s=%v", p.muted.Render(k), e.Attrs[k])
	}
	return sb.String()
}
