package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"

	"github.com/Iron-Ham/vulntune/internal/artifact"
	"github.com/Iron-Ham/vulntune/internal/config"
	"github.com/Iron-Ham/vulntune/internal/errors"
)

// addOptionFlags registers one flag per configuration option. Flag defaults
// are zero values so an unset flag never shadows the file or environment;
// the option's real default is shown in the usage text.
func addOptionFlags(flags *pflag.FlagSet) {
	for _, opt := range config.Options() {
		usage := opt.Description
		if opt.HasDefault() {
			usage = fmt.Sprintf("%s (default %v)", usage, opt.Default)
		}
		usage = fmt.Sprintf("%s [%s]", usage, opt.Env)

		switch opt.Type {
		case config.TypeBool:
			flags.Bool(opt.Flag, false, usage)
		case config.TypeInt:
			flags.Int(opt.Flag, 0, usage)
		case config.TypeFloat:
			flags.Float64(opt.Flag, 0, usage)
		default:
			flags.String(opt.Flag, "", usage)
		}
	}
}

// parseInputFlag splits a --input value of the form kind=path.
func parseInputFlag(value string) (artifact.Kind, string, error) {
	name, path, ok := strings.Cut(value, "=")
	if !ok || strings.TrimSpace(path) == "" {
		return "", "", errors.NewValidationError("--input must be kind=path").
			WithField("input").
			WithValue(value)
	}
	kind, err := artifact.ParseKind(name)
	if err != nil {
		return "", "", errors.NewValidationError(err.Error()).
			WithField("input").
			WithValue(value)
	}
	return kind, strings.TrimSpace(path), nil
}

// addExplicit records path for kind, rejecting two different paths for one
// kind.
func addExplicit(explicit map[artifact.Kind]string, kind artifact.Kind, path, flag string) error {
	if prev, ok := explicit[kind]; ok && prev != path {
		return errors.NewValidationError(fmt.Sprintf("%s input given twice: %s and %s", kind, prev, path)).
			WithField(flag)
	}
	explicit[kind] = path
	return nil
}
