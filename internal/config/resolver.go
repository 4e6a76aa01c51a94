package config

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/afero"
	"github.com/spf13/cast"
	"github.com/spf13/viper"
	"github.com/subosito/gotenv"

	"github.com/Iron-Ham/vulntune/internal/errors"
	"github.com/Iron-Ham/vulntune/internal/logging"
)

// Provenance records which layer supplied an option's value.
type Provenance string

const (
	ProvenanceDefault Provenance = "default"
	ProvenanceFile    Provenance = "file"
	ProvenanceEnv     Provenance = "env"
	ProvenanceCLI     Provenance = "cli"
)

// Value is one resolved option. Raw is already coerced to the option's type
// and is nil only for an option with no default that no layer set.
type Value struct {
	Raw        any
	Provenance Provenance
}

// IsSet reports whether the value is present and not an empty string.
func (v Value) IsSet() bool {
	if v.Raw == nil {
		return false
	}
	if s, ok := v.Raw.(string); ok {
		return s != ""
	}
	return true
}

// Sources are the inputs to Resolve. Resolve itself never reads process
// state; ProcessSources captures it once for the CLI.
type Sources struct {
	// Fs reads the config and dotenv files. Defaults to the OS filesystem.
	Fs afero.Fs
	// ConfigFile is the config file path. Empty means no file layer.
	ConfigFile string
	// ConfigFileExplicit makes a missing ConfigFile an error rather than
	// an empty layer.
	ConfigFileExplicit bool
	// DotEnvFile is an optional KEY=VALUE file whose entries rank below
	// the real environment.
	DotEnvFile string
	// Env is an environment snapshot in KEY=VALUE form.
	Env []string
	// Overrides maps option keys to values set on the command line.
	Overrides map[string]any
	// Home and WorkDir anchor ~ and relative paths.
	Home    string
	WorkDir string
}

// ProcessSources snapshots the environment, home directory, and working
// directory of the current process.
func ProcessSources(configFile string, explicit bool, overrides map[string]any) (Sources, error) {
	wd, err := os.Getwd()
	if err != nil {
		return Sources{}, errors.NewConfigError("cannot determine working directory", err)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		home = wd
	}
	return Sources{
		Fs:                 afero.NewOsFs(),
		ConfigFile:         configFile,
		ConfigFileExplicit: explicit,
		DotEnvFile:         filepath.Join(wd, ".env"),
		Env:                os.Environ(),
		Overrides:          overrides,
		Home:               home,
		WorkDir:            wd,
	}, nil
}

// Resolved is the immutable, merged configuration for one process.
type Resolved struct {
	values      map[string]Value
	configFile  string
	unknownKeys []string
	settings    Settings
}

// Resolve merges the default, file, env and CLI layers. Precedence is CLI over
// env over file over default, decided per option. Unknown keys in the file
// are logged at WARN and otherwise ignored. On success a single INFO entry
// "configuration resolved" lists every option with its provenance.
func Resolve(src Sources, logger *logging.Logger) (*Resolved, error) {
	if logger == nil {
		logger = logging.NopLogger()
	}
	fs := src.Fs
	if fs == nil {
		fs = afero.NewOsFs()
	}

	env, err := envLayer(fs, src.Env, src.DotEnvFile)
	if err != nil {
		return nil, err
	}
	file, usedFile, err := fileLayer(fs, src.ConfigFile, src.ConfigFileExplicit)
	if err != nil {
		return nil, err
	}

	r := &Resolved{
		values:     make(map[string]Value, len(options)),
		configFile: usedFile,
	}
	if file != nil {
		for _, key := range file.AllKeys() {
			if _, ok := Lookup(key); !ok {
				r.unknownKeys = append(r.unknownKeys, key)
			}
		}
		slices.Sort(r.unknownKeys)
	}

	var errs ValidationErrors
	for _, opt := range options {
		raw, prov := pick(opt, src.Overrides, env, file)
		if raw == nil {
			r.values[opt.Key] = Value{Provenance: prov}
			continue
		}
		coerced, err := coerce(opt, raw, src.Home, src.WorkDir)
		if err != nil {
			errs = append(errs, ValidationError{
				Field:   opt.Key,
				Value:   raw,
				Message: fmt.Sprintf("invalid %s from %s: %v", opt.Type, prov, err),
			})
			continue
		}
		r.values[opt.Key] = Value{Raw: coerced, Provenance: prov}
	}

	if err := r.Decode(&r.settings); err != nil {
		return nil, errors.NewConfigError("failed to decode configuration", err)
	}
	// Options that failed coercion decode as zero values; report them once.
	failed := errs.Fields()
	for _, v := range r.settings.Validate() {
		if !slices.Contains(failed, v.Field) {
			errs = append(errs, v)
		}
	}
	if len(errs) > 0 {
		return nil, errors.NewConfigError("invalid configuration", errs).
			WithOption(strings.Join(errs.Fields(), ","))
	}

	for _, key := range r.unknownKeys {
		logger.Warn("unrecognized configuration key ignored", "key", key, "file", r.configFile)
	}
	logger.Info("configuration resolved", "config_file", r.configFile, "options", r.Entries())
	return r, nil
}

// pick returns the highest-precedence raw value for opt.
func pick(opt Option, overrides map[string]any, env map[string]string, file *viper.Viper) (any, Provenance) {
	if v, ok := overrides[opt.Key]; ok {
		return v, ProvenanceCLI
	}
	if v, ok := env[opt.Env]; ok && v != "" {
		return v, ProvenanceEnv
	}
	if file != nil && file.InConfig(opt.Key) {
		if v := file.Get(opt.Key); v != nil {
			return v, ProvenanceFile
		}
	}
	return opt.Default, ProvenanceDefault
}

func coerce(opt Option, raw any, home, workDir string) (any, error) {
	switch opt.Type {
	case TypeInt:
		return cast.ToIntE(raw)
	case TypeFloat:
		return cast.ToFloat64E(raw)
	case TypeBool:
		return cast.ToBoolE(raw)
	case TypePath:
		s, err := cast.ToStringE(raw)
		if err != nil {
			return nil, err
		}
		return ExpandPath(strings.TrimSpace(s), home, workDir), nil
	default:
		return cast.ToStringE(raw)
	}
}

// envLayer merges the dotenv file under the environment snapshot.
func envLayer(fs afero.Fs, snapshot []string, dotenv string) (map[string]string, error) {
	env := make(map[string]string, len(snapshot))
	if dotenv != "" {
		f, err := fs.Open(dotenv)
		switch {
		case err == nil:
			parsed, perr := gotenv.StrictParse(f)
			_ = f.Close()
			if perr != nil {
				return nil, errors.NewConfigError(fmt.Sprintf("failed to parse %s", dotenv), perr)
			}
			for k, v := range parsed {
				env[k] = v
			}
		case !os.IsNotExist(err):
			return nil, errors.NewConfigError(fmt.Sprintf("failed to open %s", dotenv), err)
		}
	}
	for _, kv := range snapshot {
		k, v, ok := strings.Cut(kv, "=")
		if ok {
			env[k] = v
		}
	}
	return env, nil
}

// fileLayer loads the config file into a private viper instance. It returns
// nil when there is no file to read.
func fileLayer(fs afero.Fs, path string, explicit bool) (*viper.Viper, string, error) {
	if path == "" {
		return nil, "", nil
	}
	exists, err := afero.Exists(fs, path)
	if err != nil {
		return nil, "", errors.NewConfigError("cannot stat config file", err).WithOption("config")
	}
	if !exists {
		if explicit {
			return nil, "", errors.NewConfigError(fmt.Sprintf("config file %s does not exist", path), nil).WithOption("config")
		}
		return nil, "", nil
	}

	v := viper.New()
	v.SetFs(fs)
	v.SetConfigFile(path)
	if filepath.Ext(path) == "" {
		v.SetConfigType("yaml")
	}
	if err := v.ReadInConfig(); err != nil {
		return nil, "", errors.NewConfigError(fmt.Sprintf("failed to read config file %s", path), err).WithOption("config")
	}
	return v, path, nil
}

// Get returns the resolved value for key.
func (r *Resolved) Get(key string) (Value, bool) {
	v, ok := r.values[key]
	return v, ok
}

// String returns the value of key as a string, or "" when unset.
func (r *Resolved) String(key string) string {
	return cast.ToString(r.values[key].Raw)
}

// Int returns the value of key as an int.
func (r *Resolved) Int(key string) int {
	return cast.ToInt(r.values[key].Raw)
}

// Float returns the value of key as a float64.
func (r *Resolved) Float(key string) float64 {
	return cast.ToFloat64(r.values[key].Raw)
}

// Bool returns the value of key as a bool.
func (r *Resolved) Bool(key string) bool {
	return cast.ToBool(r.values[key].Raw)
}

// Provenance returns which layer supplied key.
func (r *Resolved) Provenance(key string) Provenance {
	return r.values[key].Provenance
}

// Require returns a ConfigError when key has no value. Operations call it
// right before they need an option that has no default.
func (r *Resolved) Require(key string) error {
	opt, ok := Lookup(key)
	if !ok {
		return errors.NewConfigError(fmt.Sprintf("cannot require %q", key), errors.ErrUnknownOption).WithOption(key)
	}
	if r.values[key].IsSet() {
		return nil
	}
	return errors.NewConfigError(
		fmt.Sprintf("set --%s, %s, or %s in the config file", opt.Flag, opt.Env, opt.Key),
		errors.ErrOptionRequired,
	).WithOption(key)
}

// Settings returns a copy of the typed configuration.
func (r *Resolved) Settings() Settings {
	return r.settings
}

// ConfigFile returns the config file that was read, or "" if none was.
func (r *Resolved) ConfigFile() string {
	return r.configFile
}

// UnknownKeys returns file keys that match no option, sorted.
func (r *Resolved) UnknownKeys() []string {
	return slices.Clone(r.unknownKeys)
}

// Decode decodes the resolved values into out using mapstructure tags.
func (r *Resolved) Decode(out any) error {
	tree := make(map[string]any)
	for key, v := range r.values {
		if v.Raw == nil {
			continue
		}
		parts := strings.Split(key, ".")
		node := tree
		for _, p := range parts[:len(parts)-1] {
			child, ok := node[p].(map[string]any)
			if !ok {
				child = make(map[string]any)
				node[p] = child
			}
			node = child
		}
		node[parts[len(parts)-1]] = v.Raw
	}

	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		TagName:          "mapstructure",
		WeaklyTypedInput: true,
	})
	if err != nil {
		return err
	}
	return dec.Decode(tree)
}

// Entry is a display row for one option.
type Entry struct {
	Key        string     `json:"key"`
	Value      string     `json:"value"`
	Provenance Provenance `json:"provenance"`
}

// Entries lists every option in display order with secrets masked.
func (r *Resolved) Entries() []Entry {
	entries := make([]Entry, 0, len(options))
	for _, opt := range options {
		v := r.values[opt.Key]
		entries = append(entries, Entry{
			Key:        opt.Key,
			Value:      Display(opt, v),
			Provenance: v.Provenance,
		})
	}
	return entries
}

// Display formats a value for logs and `config show`. Secrets that are set
// render as "****".
func Display(opt Option, v Value) string {
	if !v.IsSet() {
		return "<unset>"
	}
	if opt.Secret {
		return "****"
	}
	return cast.ToString(v.Raw)
}
