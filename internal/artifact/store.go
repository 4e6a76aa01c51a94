package artifact

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"time"

	"github.com/spf13/afero"

	"github.com/Iron-Ham/vulntune/internal/errors"
)

// Artifact is a reference to one produced or supplied artifact. Phases hand
// artifacts to each other by path only.
type Artifact struct {
	Kind Kind
	Path string
	// Timestamp is parsed from the name; zero when the name does not follow
	// the naming scheme (possible only for explicit paths).
	Timestamp time.Time
	// Explicit is set when the caller supplied the path instead of discovery.
	Explicit bool
}

// Name returns the base name of the artifact path.
func (a Artifact) Name() string {
	return filepath.Base(a.Path)
}

// Store locates, names, validates and publishes artifacts. Discovery never
// mutates the filesystem.
type Store struct {
	fs     afero.Fs
	root   string
	layout Layout
}

// NewStore builds a store over fs. root anchors relative explicit paths.
func NewStore(fs afero.Fs, root string, layout Layout) *Store {
	return &Store{fs: fs, root: root, layout: layout}
}

// Fs returns the filesystem the store reads and writes.
func (s *Store) Fs() afero.Fs {
	return s.fs
}

// Location returns where artifacts of kind live.
func (s *Store) Location(kind Kind) (Location, error) {
	loc, ok := s.layout[kind]
	if !ok {
		return Location{}, fmt.Errorf("artifact: no location configured for kind %q", kind)
	}
	return loc, nil
}

func (l Location) pattern() *regexp.Regexp {
	return regexp.MustCompile(`^` + regexp.QuoteMeta(l.Prefix) + `_(\d{8}_\d{6})` + regexp.QuoteMeta(l.Ext) + `$`)
}

// List returns every candidate for kind, newest first. A missing directory
// yields no candidates. Entries whose type does not match the kind's shape
// are not candidates.
func (s *Store) List(kind Kind) ([]Artifact, error) {
	loc, err := s.Location(kind)
	if err != nil {
		return nil, err
	}

	entries, err := afero.ReadDir(s.fs, loc.Dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("artifact: read %s: %w", loc.Dir, err)
	}

	re := loc.pattern()
	var out []Artifact
	for _, entry := range entries {
		m := re.FindStringSubmatch(entry.Name())
		if m == nil || entry.IsDir() != loc.Shape.IsDir() {
			continue
		}
		out = append(out, Artifact{
			Kind:      kind,
			Path:      filepath.Join(loc.Dir, entry.Name()),
			Timestamp: parseTimestamp(m[1]),
		})
	}

	// Names share prefix and extension, so name order is timestamp order
	// and identical timestamps fall back to the full name.
	sort.Slice(out, func(i, j int) bool { return out[i].Name() > out[j].Name() })
	return out, nil
}

// Current returns the lexicographically greatest candidate for kind.
func (s *Store) Current(kind Kind) (Artifact, error) {
	candidates, err := s.List(kind)
	if err != nil {
		return Artifact{}, err
	}
	if len(candidates) == 0 {
		loc, _ := s.Location(kind)
		return Artifact{}, errors.NewArtifactNotFoundError(string(kind), loc.Dir)
	}
	return candidates[0], nil
}

// NewPath returns the path a new artifact of kind produced at ts will have.
// Two artifacts of one kind in the same second collide; the second caller
// gets an AlreadyExistsError.
func (s *Store) NewPath(kind Kind, ts time.Time) (string, error) {
	loc, err := s.Location(kind)
	if err != nil {
		return "", err
	}
	path := filepath.Join(loc.Dir, loc.Name(ts))
	exists, err := afero.Exists(s.fs, path)
	if err != nil {
		return "", fmt.Errorf("artifact: stat %s: %w", path, err)
	}
	if exists {
		return "", errors.NewAlreadyExistsError("artifact", path)
	}
	return path, nil
}

// Explicit wraps a caller-supplied path without discovery. The path is made
// absolute against the store root; it is not checked until Validate.
func (s *Store) Explicit(kind Kind, path string) (Artifact, error) {
	loc, err := s.Location(kind)
	if err != nil {
		return Artifact{}, err
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(s.root, path)
	}
	a := Artifact{Kind: kind, Path: filepath.Clean(path), Explicit: true}
	if m := loc.pattern().FindStringSubmatch(a.Name()); m != nil {
		a.Timestamp = parseTimestamp(m[1])
	}
	return a, nil
}

// Stage returns a hidden staging path next to final, named
// .<name>.partial-<runID>. Directory kinds get the staging directory
// created; file kinds get only their parent directory.
func (s *Store) Stage(kind Kind, final, runID string) (string, error) {
	loc, err := s.Location(kind)
	if err != nil {
		return "", err
	}
	dir := filepath.Dir(final)
	if err := s.fs.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("artifact: create %s: %w", dir, err)
	}
	staging := filepath.Join(dir, "."+filepath.Base(final)+".partial-"+runID)
	if err := s.fs.RemoveAll(staging); err != nil {
		return "", fmt.Errorf("artifact: clear stale staging %s: %w", staging, err)
	}
	if loc.Shape.IsDir() {
		if err := s.fs.MkdirAll(staging, 0755); err != nil {
			return "", fmt.Errorf("artifact: create staging %s: %w", staging, err)
		}
	}
	return staging, nil
}

// Publish renames a staged output into place. The final path must not
// exist yet.
func (s *Store) Publish(staging, final string) error {
	exists, err := afero.Exists(s.fs, final)
	if err != nil {
		return fmt.Errorf("artifact: stat %s: %w", final, err)
	}
	if exists {
		return errors.NewAlreadyExistsError("artifact", final)
	}
	if err := s.fs.Rename(staging, final); err != nil {
		return fmt.Errorf("artifact: publish %s: %w", final, err)
	}
	return nil
}

// Discard removes a staging path. A missing path is not an error.
func (s *Store) Discard(staging string) error {
	if err := s.fs.RemoveAll(staging); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("artifact: discard %s: %w", staging, err)
	}
	return nil
}

func parseTimestamp(s string) time.Time {
	ts, err := time.ParseInLocation(TimestampFormat, s, time.UTC)
	if err != nil {
		return time.Time{}
	}
	return ts
}
