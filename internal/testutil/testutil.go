// Package testutil provides testing utilities for vulntune tests.
package testutil

import (
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/spf13/afero"

	"github.com/Iron-Ham/vulntune/internal/artifact"
	"github.com/Iron-Ham/vulntune/internal/config"
)

// Dirs is a complete set of pipeline directories under one temp root.
type Dirs struct {
	Root          string
	Workspace     string
	ScanResults   string
	FineTuned     string
	BaseModel     string
	KnowledgeBase string
}

// NewDirs lays out pipeline directories under a fresh temp dir. Nothing is
// created on disk except the root.
func NewDirs(t *testing.T) Dirs {
	t.Helper()

	root := t.TempDir()
	return Dirs{
		Root:          root,
		Workspace:     filepath.Join(root, "workspace"),
		ScanResults:   filepath.Join(root, "scan-results"),
		FineTuned:     filepath.Join(root, "models", "fine-tuned"),
		BaseModel:     filepath.Join(root, "models", "base"),
		KnowledgeBase: filepath.Join(root, "knowledge-base"),
	}
}

// Env returns an environment snapshot pointing every directory option at d,
// followed by extra KEY=VALUE entries.
func (d Dirs) Env(extra ...string) []string {
	env := []string{
		"VULNTUNE_WORKSPACE_DIR=" + d.Workspace,
		"VULNTUNE_SCAN_RESULTS_DIR=" + d.ScanResults,
		"VULNTUNE_FINE_TUNED_MODEL_DIR=" + d.FineTuned,
		"VULNTUNE_BASE_MODEL_DIR=" + d.BaseModel,
		"VULNTUNE_KNOWLEDGE_BASE_DIR=" + d.KnowledgeBase,
	}
	return append(env, extra...)
}

// Sources returns resolver inputs on the OS filesystem with no config file,
// anchored at d.Root.
func (d Dirs) Sources(extraEnv ...string) config.Sources {
	return config.Sources{
		Fs:      afero.NewOsFs(),
		Env:     d.Env(extraEnv...),
		Home:    d.Root,
		WorkDir: d.Root,
	}
}

// Resolve resolves configuration for d and fails the test on error.
func (d Dirs) Resolve(t *testing.T, extraEnv ...string) *config.Resolved {
	t.Helper()

	resolved, err := config.Resolve(d.Sources(extraEnv...), nil)
	if err != nil {
		t.Fatalf("failed to resolve configuration: %v", err)
	}
	return resolved
}

// Store returns an artifact store over the OS filesystem using the default
// layout for resolved.
func (d Dirs) Store(resolved *config.Resolved) *artifact.Store {
	return artifact.NewStore(afero.NewOsFs(), d.Root, artifact.DefaultLayout(resolved.Settings()))
}

// WriteFile writes content to path, creating parent directories.
func WriteFile(t *testing.T, path, content string) {
	t.Helper()

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("failed to create directory for %s: %v", path, err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write %s: %v", path, err)
	}
}

// Mkdir creates dir and its parents.
func Mkdir(t *testing.T, dir string) {
	t.Helper()

	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatalf("failed to create %s: %v", dir, err)
	}
}

// CopyDir copies the tree at src to dst.
func CopyDir(t *testing.T, src, dst string) {
	t.Helper()

	err := filepath.Walk(src, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if info.IsDir() {
			return os.MkdirAll(target, 0755)
		}
		return copyFile(path, target)
	})
	if err != nil {
		t.Fatalf("failed to copy %s to %s: %v", src, dst, err)
	}
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}

// SeedAdapter creates a trained-adapter directory named name under dir with
// one weights file and returns its path.
func SeedAdapter(t *testing.T, dir, name string) string {
	t.Helper()

	path := filepath.Join(dir, name)
	WriteFile(t, filepath.Join(path, "adapter_model.safetensors"), name)
	return path
}

// SkipIfNoShell skips the test if /bin/sh is not available.
func SkipIfNoShell(t *testing.T) {
	t.Helper()

	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not found in PATH, skipping test")
	}
}
