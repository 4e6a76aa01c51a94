package cmd

import (
	"context"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/Iron-Ham/vulntune/internal/config"
	"github.com/Iron-Ham/vulntune/internal/logging"
	"github.com/Iron-Ham/vulntune/internal/phases"
	"github.com/Iron-Ham/vulntune/internal/upload"
)

// Process hooks, replaced in tests.
var (
	processSources  = config.ProcessSources
	snapshotProcess = upload.SnapshotProcess
	phaseDeps       = phases.Deps{}
)

// NewRootCommand builds the vulntune command tree.
func NewRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "vulntune",
		Short: "Security findings to fine-tuned adapter pipeline",
		Long: `vulntune turns security-scanner findings into a fine-tuned model adapter
and publishes it to a model registry.

The pipeline runs eight phases in order, each reading the previous phase's
timestamped artifact. Any phase can also run on its own against explicit or
discovered inputs.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringP("config", "c", "", "config file (default is $XDG_CONFIG_HOME/vulntune/config.yaml)")
	addOptionFlags(root.PersistentFlags())

	root.AddCommand(
		newRunCmd(),
		newConfigCmd(),
		newPhasesCmd(),
		newArtifactsCmd(),
		newLogsCmd(),
	)
	return root
}

// Execute runs the CLI with the process arguments.
func Execute(ctx context.Context) error {
	return NewRootCommand().ExecuteContext(ctx)
}

// commandContext returns the command's context, or Background when the
// command was executed without one.
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

// loadConfig resolves configuration for cmd. Option flags the user set become
// the CLI layer. Without --config the default config file is read if present.
func loadConfig(cmd *cobra.Command, logger *logging.Logger) (*config.Resolved, config.Sources, error) {
	flags := cmd.Flags()
	path, _ := flags.GetString("config")
	explicit := flags.Changed("config")
	if !explicit {
		path = config.ConfigFile()
	}

	src, err := processSources(path, explicit, collectOverrides(flags))
	if err != nil {
		return nil, config.Sources{}, err
	}
	resolved, err := config.Resolve(src, logger)
	if err != nil {
		return nil, src, err
	}
	return resolved, src, nil
}

// collectOverrides maps every option flag the user set to its option key.
// Values stay strings; the resolver coerces them.
func collectOverrides(flags *pflag.FlagSet) map[string]any {
	overrides := make(map[string]any)
	flags.Visit(func(f *pflag.Flag) {
		if opt, ok := config.LookupFlag(f.Name); ok {
			overrides[opt.Key] = f.Value.String()
		}
	})
	return overrides
}
