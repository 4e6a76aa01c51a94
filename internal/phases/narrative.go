package phases

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"text/template"

	"github.com/Iron-Ham/vulntune/internal/artifact"
	"github.com/Iron-Ham/vulntune/internal/pipeline"
)

// NarrativeInput is what a Narrator sees for one finding.
type NarrativeInput struct {
	Finding Enhanced
	Summary Summary
}

// Narrator writes the explanatory text for one finding. Implementations
// must be deterministic for identical input.
type Narrator interface {
	Narrate(ctx context.Context, in NarrativeInput) (string, error)
}

// DefaultNarrativeTemplate renders a short security explanation.
const DefaultNarrativeTemplate = `{{.Finding.Tool}} reported a {{.Finding.NormalizedSeverity}} severity {{.Finding.Category}} issue{{with .Finding.RuleID}} ({{.}}){{end}}{{with .Finding.File}} in {{.}}{{if $.Finding.Line}} at line {{$.Finding.Line}}{{end}}{{end}}.
{{with .Finding.Message}}
Finding: {{.}}
{{end}}
It ranks with priority {{.Finding.Priority}} among {{.Summary.TotalFindings}} findings in this scan{{with index .Summary.ByCategory .Finding.Category}}, {{.}} of which are {{$.Finding.Category}} issues{{end}}.
{{range .Finding.Knowledge}}
Guidance from {{.Source}}{{with .Heading}} ({{.}}){{end}}:
{{.Excerpt}}
{{end}}`

// TemplateNarrator renders narratives with text/template.
type TemplateNarrator struct {
	tmpl *template.Template
}

// NewTemplateNarrator parses text. An empty text uses
// DefaultNarrativeTemplate.
func NewTemplateNarrator(text string) (*TemplateNarrator, error) {
	if text == "" {
		text = DefaultNarrativeTemplate
	}
	tmpl, err := template.New("narrative").Option("missingkey=zero").Parse(text)
	if err != nil {
		return nil, fmt.Errorf("parse narrative template: %w", err)
	}
	return &TemplateNarrator{tmpl: tmpl}, nil
}

// Narrate executes the template.
func (n *TemplateNarrator) Narrate(_ context.Context, in NarrativeInput) (string, error) {
	var buf bytes.Buffer
	if err := n.tmpl.Execute(&buf, in); err != nil {
		return "", fmt.Errorf("execute narrative template: %w", err)
	}
	return strings.TrimSpace(buf.String()), nil
}

// Narrate produces one narrative per enhanced finding. Its primary input is
// the analysis summary; the enhanced analysis is a secondary input.
type Narrate struct {
	Narrator Narrator
}

// Process writes a JSON array of narratives in the enhanced analysis order.
func (p Narrate) Process(ctx context.Context, rc *pipeline.RunContext, in pipeline.Inputs, out string) error {
	narrator := p.Narrator
	if narrator == nil {
		n, err := NewTemplateNarrator("")
		if err != nil {
			return err
		}
		narrator = n
	}

	fs := rc.Store.Fs()
	var summary Summary
	if err := readJSON(fs, in.Path(artifact.KindAnalysisSummary), &summary); err != nil {
		return err
	}
	var enhanced []Enhanced
	if err := readJSON(fs, in.Path(artifact.KindRAGEnhancedAnalysis), &enhanced); err != nil {
		return err
	}

	narratives := make([]Narrative, 0, len(enhanced))
	for _, e := range enhanced {
		if err := ctx.Err(); err != nil {
			return err
		}
		text, err := narrator.Narrate(ctx, NarrativeInput{Finding: e, Summary: summary})
		if err != nil {
			return fmt.Errorf("narrate finding %s: %w", e.ID, err)
		}
		narratives = append(narratives, Narrative{
			FindingID: e.ID,
			Title:     title(e.Finding),
			Severity:  e.NormalizedSeverity,
			Category:  e.Category,
			Text:      text,
		})
	}
	return writeJSON(fs, out, narratives)
}

func title(f Finding) string {
	rule := f.RuleID
	if rule == "" {
		rule = f.Tool + " finding"
	}
	if f.File == "" {
		return rule
	}
	return rule + " in " + f.File
}
