package phases

import (
	"context"
	"fmt"
	"strings"

	"github.com/Iron-Ham/vulntune/internal/artifact"
	"github.com/Iron-Ham/vulntune/internal/pipeline"
)

// SystemPrompt opens every training conversation.
const SystemPrompt = "You are a security engineer. Explain scanner findings, their impact, and how to fix them."

// BuildDataset joins each narrative to its parsed finding and writes one
// chat-style record per narrative.
type BuildDataset struct{}

// Process reads narratives (primary) and parsed findings (secondary).
func (BuildDataset) Process(_ context.Context, rc *pipeline.RunContext, in pipeline.Inputs, out string) error {
	fs := rc.Store.Fs()
	var narratives []Narrative
	if err := readJSON(fs, in.Path(artifact.KindNarratives), &narratives); err != nil {
		return err
	}
	var findings []Finding
	if err := readJSON(fs, in.Path(artifact.KindParsedFindings), &findings); err != nil {
		return err
	}
	if len(narratives) == 0 {
		return fmt.Errorf("no narratives to build a dataset from")
	}

	byID := make(map[string]Finding, len(findings))
	for _, f := range findings {
		byID[f.ID] = f
	}

	records := make([]DatasetRecord, 0, len(narratives))
	for _, n := range narratives {
		f, ok := byID[n.FindingID]
		if !ok {
			return fmt.Errorf("narrative references unknown finding %q", n.FindingID)
		}
		records = append(records, DatasetRecord{
			Messages: []Message{
				{Role: "system", Content: SystemPrompt},
				{Role: "user", Content: prompt(f)},
				{Role: "assistant", Content: n.Text},
			},
			Metadata: RecordMetadata{
				FindingID: f.ID,
				Tool:      f.Tool,
				RuleID:    f.RuleID,
				Severity:  n.Severity,
				Category:  n.Category,
			},
		})
	}
	return writeJSONL(fs, out, records)
}

func prompt(f Finding) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s reported %s", f.Tool, orDefault(f.RuleID, "a finding"))
	if f.File != "" {
		fmt.Fprintf(&b, " in %s", f.File)
		if f.Line > 0 {
			fmt.Fprintf(&b, ":%d", f.Line)
		}
	}
	if f.Severity != "" {
		fmt.Fprintf(&b, " with severity %s", f.Severity)
	}
	b.WriteString(".")
	if f.Message != "" {
		fmt.Fprintf(&b, " %s", f.Message)
	}
	b.WriteString(" Explain the issue and how to remediate it.")
	return b.String()
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
