package phases

import (
	"context"

	"github.com/Iron-Ham/vulntune/internal/artifact"
	"github.com/Iron-Ham/vulntune/internal/pipeline"
)

// topFindingLimit is the number of findings listed in the summary.
const topFindingLimit = 10

// Summarize counts the enhanced analysis by severity, category and tool.
type Summarize struct{}

// Process writes a Summary object.
func (Summarize) Process(_ context.Context, rc *pipeline.RunContext, in pipeline.Inputs, out string) error {
	fs := rc.Store.Fs()
	var enhanced []Enhanced
	if err := readJSON(fs, in.Path(artifact.KindRAGEnhancedAnalysis), &enhanced); err != nil {
		return err
	}
	return writeJSON(fs, out, BuildSummary(enhanced))
}

// BuildSummary aggregates enhanced findings.
func BuildSummary(enhanced []Enhanced) Summary {
	s := Summary{
		TotalFindings: len(enhanced),
		BySeverity:    map[string]int{},
		ByCategory:    map[string]int{},
		ByTool:        map[string]int{},
		TopFindings:   []TopFinding{},
	}
	sorted := make([]Enhanced, len(enhanced))
	copy(sorted, enhanced)
	sortByPriority(sorted, func(e Enhanced) Analysis { return e.Analysis })

	for _, e := range sorted {
		s.BySeverity[e.NormalizedSeverity]++
		s.ByCategory[e.Category]++
		s.ByTool[e.Tool]++
		if len(e.Knowledge) > 0 {
			s.WithKnowledge++
		}
		if len(s.TopFindings) < topFindingLimit {
			s.TopFindings = append(s.TopFindings, TopFinding{
				ID:       e.ID,
				RuleID:   e.RuleID,
				Category: e.Category,
				Severity: e.NormalizedSeverity,
				Priority: e.Priority,
			})
		}
	}
	return s
}
