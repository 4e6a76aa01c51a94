package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/Iron-Ham/vulntune/internal/config"
	"github.com/Iron-Ham/vulntune/internal/errors"
)

func newConfigCmd() *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "View or create vulntune configuration",
		Long: `View or create vulntune configuration.

Without arguments, displays the resolved configuration.
Use 'config init' to write a config file holding every default.`,
		Args: cobra.NoArgs,
		RunE: runConfigShow,
	}

	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Show resolved configuration and where each value came from",
		Args:  cobra.NoArgs,
		RunE:  runConfigShow,
	}

	var format string
	var force bool
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Create a default config file",
		Long: `Create a config file holding every option's default at the --config path
or the default location.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runConfigInit(cmd, format, force)
		},
	}
	initCmd.Flags().StringVar(&format, "format", config.FormatYAML, "File format: yaml or toml")
	initCmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing config file")

	pathCmd := &cobra.Command{
		Use:   "path",
		Short: "Show the config file path",
		Args:  cobra.NoArgs,
		RunE:  runConfigPath,
	}

	configCmd.AddCommand(showCmd, initCmd, pathCmd)
	return configCmd
}

func runConfigShow(cmd *cobra.Command, _ []string) error {
	resolved, _, err := loadConfig(cmd, nil)
	if err != nil {
		return err
	}
	p := newPrinter(cmd.OutOrStdout())

	file := resolved.ConfigFile()
	if file == "" {
		file = "(none)"
	}
	p.printf("%s %s\n\n", p.muted.Render("config file:"), file)

	var rows [][]string
	for _, e := range resolved.Entries() {
		rows = append(rows, []string{e.Key, e.Value, string(e.Provenance)})
	}
	p.table([]string{"KEY", "VALUE", "SOURCE"}, rows)

	for _, key := range resolved.UnknownKeys() {
		p.printf("%s unrecognized key %s ignored\n", p.warn.Render("warning:"), key)
	}
	return nil
}

func runConfigInit(cmd *cobra.Command, format string, force bool) error {
	path := configPath(cmd)
	if format == config.FormatTOML && !cmd.Flags().Changed("config") {
		path = filepath.Join(filepath.Dir(path), "config.toml")
	}

	data, err := config.RenderDefaults(format)
	if err != nil {
		return errors.NewConfigError(err.Error(), errors.ErrOptionInvalid).WithOption("format")
	}

	if _, err := os.Stat(path); err == nil && !force {
		return errors.NewAlreadyExistsError("config file", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	p := newPrinter(cmd.OutOrStdout())
	p.printf("%s %s\n", p.ok.Render("Created config file:"), path)
	return nil
}

func runConfigPath(cmd *cobra.Command, _ []string) error {
	path := configPath(cmd)
	p := newPrinter(cmd.OutOrStdout())
	p.printf("%s\n", path)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		p.printf("%s\n", p.muted.Render("(file does not exist)"))
	}
	return nil
}

// configPath is --config when set, else the default config file location.
func configPath(cmd *cobra.Command) string {
	if cmd.Flags().Changed("config") {
		path, _ := cmd.Flags().GetString("config")
		return path
	}
	return config.ConfigFile()
}
