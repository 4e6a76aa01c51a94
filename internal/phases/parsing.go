package phases

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/afero"
	"github.com/spf13/cast"

	"github.com/Iron-Ham/vulntune/internal/artifact"
	"github.com/Iron-Ham/vulntune/internal/pipeline"
)

// resultKeys are the object fields that may hold a scanner's result list.
var resultKeys = []string{"results", "findings", "vulnerabilities", "issues"}

// Field aliases across common scanner formats, in lookup order.
var (
	ruleKeys     = []string{"rule_id", "check_id", "test_id", "ruleId", "rule", "id"}
	severityKeys = []string{"severity", "issue_severity", "level"}
	messageKeys  = []string{"message", "issue_text", "description", "title"}
	fileKeys     = []string{"path", "file", "filename", "location"}
	lineKeys     = []string{"line", "line_number", "start_line"}
)

// Parse turns a directory of scanner JSON files into a sorted,
// de-duplicated list of findings.
type Parse struct{}

// Process reads every *.json file of the scan directory in name order.
func (Parse) Process(_ context.Context, rc *pipeline.RunContext, in pipeline.Inputs, out string) error {
	fs := rc.Store.Fs()
	dir := in.Path(artifact.KindScanResults)

	entries, err := afero.ReadDir(fs, dir)
	if err != nil {
		return fmt.Errorf("read scan results: %w", err)
	}
	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.EqualFold(filepath.Ext(e.Name()), ".json") {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)

	seen := make(map[string]bool)
	findings := []Finding{}
	for _, name := range files {
		data, err := afero.ReadFile(fs, filepath.Join(dir, name))
		if err != nil {
			return err
		}
		tool := strings.TrimSuffix(name, filepath.Ext(name))
		parsed, err := parseScanFile(tool, data)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		for _, f := range parsed {
			if seen[f.ID] {
				continue
			}
			seen[f.ID] = true
			findings = append(findings, f)
		}
		rc.Logger.WithPhase(IDParsing).Debug("parsed scan file", "file", name, "findings", len(parsed))
	}

	sort.Slice(findings, func(i, j int) bool { return findings[i].ID < findings[j].ID })
	return writeJSON(fs, out, findings)
}

// parseScanFile accepts a top-level array of records or an object holding
// one under a known key.
func parseScanFile(tool string, data []byte) ([]Finding, error) {
	var top any
	if err := json.Unmarshal(data, &top); err != nil {
		return nil, fmt.Errorf("not valid JSON: %w", err)
	}

	var records []any
	switch v := top.(type) {
	case []any:
		records = v
	case map[string]any:
		for _, key := range resultKeys {
			if list, ok := v[key].([]any); ok {
				records = list
				break
			}
		}
		if records == nil {
			return nil, fmt.Errorf("no %s array", strings.Join(resultKeys, "/"))
		}
	default:
		return nil, fmt.Errorf("expected an array or object, got %T", top)
	}

	findings := make([]Finding, 0, len(records))
	for i, r := range records {
		rec, ok := r.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("record %d is not an object", i)
		}
		findings = append(findings, newFinding(tool, rec))
	}
	return findings, nil
}

func newFinding(tool string, rec map[string]any) Finding {
	f := Finding{
		Tool:     tool,
		RuleID:   lookupString(rec, ruleKeys),
		Severity: lookupString(rec, severityKeys),
		Message:  lookupString(rec, messageKeys),
		File:     lookupString(rec, fileKeys),
		Line:     lookupLine(rec),
	}
	f.ID = findingID(f)
	return f
}

// lookupString returns the first scalar value among keys, checking the
// record itself and then its "extra" object.
func lookupString(rec map[string]any, keys []string) string {
	for _, m := range []map[string]any{rec, nested(rec, "extra")} {
		for _, k := range keys {
			if v, ok := m[k]; ok {
				if s, err := cast.ToStringE(v); err == nil && s != "" {
					return strings.TrimSpace(s)
				}
			}
		}
	}
	return ""
}

func lookupLine(rec map[string]any) int {
	for _, m := range []map[string]any{rec, nested(rec, "start"), nested(rec, "extra")} {
		for _, k := range lineKeys {
			if v, ok := m[k]; ok {
				if n, err := cast.ToIntE(v); err == nil {
					return n
				}
			}
		}
	}
	return 0
}

func nested(rec map[string]any, key string) map[string]any {
	m, _ := rec[key].(map[string]any)
	return m
}

// findingID is stable across runs: a SHA-256 prefix over the identifying
// fields.
func findingID(f Finding) string {
	h := sha256.New()
	for _, part := range []string{f.Tool, f.RuleID, f.File, strconv.Itoa(f.Line), f.Message} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))[:16]
}
