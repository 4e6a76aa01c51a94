package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Iron-Ham/vulntune/internal/artifact"
	"github.com/Iron-Ham/vulntune/internal/errors"
	"github.com/Iron-Ham/vulntune/internal/phases"
)

func newPhasesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "phases",
		Short: "List the pipeline phases in order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p := newPrinter(cmd.OutOrStdout())
			var rows [][]string
			for i, ph := range phases.Default(phases.Deps{}) {
				inputs := make([]string, len(ph.Inputs))
				for j, k := range ph.Inputs {
					inputs[j] = string(k)
				}
				rows = append(rows, []string{fmt.Sprint(i + 1), ph.ID, strings.Join(inputs, ", "), string(ph.Output)})
			}
			p.table([]string{"#", "PHASE", "INPUTS", "OUTPUT"}, rows)
			return nil
		},
	}
}

func newArtifactsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "artifacts [kind]",
		Short: "List artifact candidates per kind",
		Long: `List the timestamped artifacts of each kind, newest first. The artifact a
phase would pick up by default is marked with *.`,
		Args: cobra.MaximumNArgs(1),
		RunE: runArtifacts,
	}
}

func runArtifacts(cmd *cobra.Command, args []string) error {
	kinds := artifact.Kinds()
	if len(args) == 1 {
		k, err := artifact.ParseKind(args[0])
		if err != nil {
			return errors.NewValidationError(err.Error()).WithField("kind")
		}
		kinds = []artifact.Kind{k}
	}

	resolved, src, err := loadConfig(cmd, nil)
	if err != nil {
		return err
	}
	store := artifact.NewStore(src.Fs, src.WorkDir, artifact.DefaultLayout(resolved.Settings()))

	p := newPrinter(cmd.OutOrStdout())
	for _, kind := range kinds {
		loc, err := store.Location(kind)
		if err != nil {
			return err
		}
		candidates, err := store.List(kind)
		if err != nil {
			return err
		}
		p.printf("%s %s\n", p.title.Render(string(kind)), p.muted.Render(loc.Dir))
		if len(candidates) == 0 {
			p.printf("  %s\n", p.muted.Render("(none)"))
			continue
		}
		for i, c := range candidates {
			mark := " "
			if i == 0 {
				mark = p.accent.Render("*")
			}
			p.printf("%s %s\n", mark, c.Name())
		}
	}
	return nil
}
