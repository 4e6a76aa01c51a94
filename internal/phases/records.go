package phases

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/spf13/afero"
)

// Finding is one normalized scanner result.
type Finding struct {
	ID       string `json:"id"`
	Tool     string `json:"tool"`
	RuleID   string `json:"rule_id"`
	Severity string `json:"severity"`
	Message  string `json:"message"`
	File     string `json:"file"`
	Line     int    `json:"line"`
}

// Analysis is a finding with a normalized severity, a category and a
// priority score.
type Analysis struct {
	Finding
	NormalizedSeverity string `json:"normalized_severity"`
	Category           string `json:"category"`
	Priority           int    `json:"priority"`
}

// Snippet is a knowledge-base excerpt attached to a finding.
type Snippet struct {
	Source  string `json:"source"`
	Heading string `json:"heading,omitempty"`
	Excerpt string `json:"excerpt"`
}

// Enhanced is an analysis with its knowledge-base context.
type Enhanced struct {
	Analysis
	Knowledge []Snippet `json:"knowledge"`
}

// TopFinding is a summary row for one high-priority finding.
type TopFinding struct {
	ID       string `json:"id"`
	RuleID   string `json:"rule_id"`
	Category string `json:"category"`
	Severity string `json:"severity"`
	Priority int    `json:"priority"`
}

// Summary aggregates the enhanced analysis.
type Summary struct {
	TotalFindings int            `json:"total_findings"`
	BySeverity    map[string]int `json:"by_severity"`
	ByCategory    map[string]int `json:"by_category"`
	ByTool        map[string]int `json:"by_tool"`
	WithKnowledge int            `json:"with_knowledge"`
	TopFindings   []TopFinding   `json:"top_findings"`
}

// Narrative is the explanatory text generated for one finding.
type Narrative struct {
	FindingID string `json:"finding_id"`
	Title     string `json:"title"`
	Severity  string `json:"severity"`
	Category  string `json:"category"`
	Text      string `json:"text"`
}

// Message is one turn of a chat-style training record.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// DatasetRecord is one line of the training dataset.
type DatasetRecord struct {
	Messages []Message      `json:"messages"`
	Metadata RecordMetadata `json:"metadata"`
}

// RecordMetadata ties a dataset record back to its finding.
type RecordMetadata struct {
	FindingID string `json:"finding_id"`
	Tool      string `json:"tool"`
	RuleID    string `json:"rule_id"`
	Severity  string `json:"severity"`
	Category  string `json:"category"`
}

// Receipt records the outcome of the upload phase.
type Receipt struct {
	RunID     string   `json:"run_id"`
	Mode      string   `json:"mode"`
	Reason    string   `json:"reason"`
	RepoID    string   `json:"repo_id"`
	URL       string   `json:"url"`
	Source    string   `json:"source"`
	Files     []string `json:"files"`
	Timestamp string   `json:"timestamp"`
}

func readJSON(fs afero.Fs, path string, v any) error {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

// writeJSON writes v indented with a trailing newline.
func writeJSON(fs afero.Fs, path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	return afero.WriteFile(fs, path, append(data, '\n'), 0644)
}

// writeJSONL writes one compact JSON value per line.
func writeJSONL[T any](fs afero.Fs, path string, records []T) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for i, r := range records {
		if err := enc.Encode(r); err != nil {
			return fmt.Errorf("encode record %d: %w", i, err)
		}
	}
	return afero.WriteFile(fs, path, buf.Bytes(), 0644)
}
