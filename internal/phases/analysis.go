package phases

import (
	"context"
	"sort"
	"strings"

	"github.com/Iron-Ham/vulntune/internal/artifact"
	"github.com/Iron-Ham/vulntune/internal/pipeline"
)

// Normalized severities, most severe first.
const (
	SeverityCritical = "critical"
	SeverityHigh     = "high"
	SeverityMedium   = "medium"
	SeverityLow      = "low"
	SeverityInfo     = "info"
)

var severityAliases = map[string]string{
	"critical": SeverityCritical,
	"blocker":  SeverityCritical,
	"high":     SeverityHigh,
	"error":    SeverityHigh,
	"major":    SeverityHigh,
	"medium":   SeverityMedium,
	"moderate": SeverityMedium,
	"warning":  SeverityMedium,
	"warn":     SeverityMedium,
	"low":      SeverityLow,
	"minor":    SeverityLow,
	"note":     SeverityInfo,
	"info":     SeverityInfo,
}

var severityWeight = map[string]int{
	SeverityCritical: 10,
	SeverityHigh:     7,
	SeverityMedium:   4,
	SeverityLow:      2,
	SeverityInfo:     1,
}

// NormalizeSeverity maps scanner severities onto the five levels. Unknown
// values are low.
func NormalizeSeverity(s string) string {
	if n, ok := severityAliases[strings.ToLower(strings.TrimSpace(s))]; ok {
		return n
	}
	return SeverityLow
}

// CategoryGeneral is assigned when no keyword matches.
const CategoryGeneral = "general"

type category struct {
	name     string
	keywords []string
	bonus    int
}

// categories are matched in order against the lower-cased rule id and message.
var categories = []category{
	{"authentication", []string{"webauthn", "fido", "authenticat", "credential", "password", "session", "jwt", "token"}, 3},
	{"injection", []string{"injection", "sqli", "sql", "xss", "command", "exec", "template"}, 2},
	{"cryptography", []string{"crypto", "cipher", "md5", "sha1", "random", "tls", "certificate"}, 2},
	{"secrets", []string{"secret", "hardcoded", "private key", "api key", "apikey"}, 2},
	{"dependency", []string{"cve-", "dependency", "vulnerable package", "outdated"}, 1},
	{"configuration", []string{"config", "debug", "cors", "header", "permission"}, 0},
}

// Classify returns the category of a finding.
func Classify(f Finding) string {
	text := strings.ToLower(f.RuleID + " " + f.Message)
	for _, c := range categories {
		for _, kw := range c.keywords {
			if strings.Contains(text, kw) {
				return c.name
			}
		}
	}
	return CategoryGeneral
}

func categoryBonus(name string) int {
	for _, c := range categories {
		if c.name == name {
			return c.bonus
		}
	}
	return 0
}

// Analyze assigns severity, category and priority to every finding. The
// output is ordered by descending priority, then id.
type Analyze struct{}

// Process reads parsed findings and writes analyses.
func (Analyze) Process(_ context.Context, rc *pipeline.RunContext, in pipeline.Inputs, out string) error {
	fs := rc.Store.Fs()
	var findings []Finding
	if err := readJSON(fs, in.Path(artifact.KindParsedFindings), &findings); err != nil {
		return err
	}

	analyses := make([]Analysis, 0, len(findings))
	for _, f := range findings {
		sev := NormalizeSeverity(f.Severity)
		cat := Classify(f)
		analyses = append(analyses, Analysis{
			Finding:            f,
			NormalizedSeverity: sev,
			Category:           cat,
			Priority:           severityWeight[sev] + categoryBonus(cat),
		})
	}
	sortByPriority(analyses, func(a Analysis) Analysis { return a })
	return writeJSON(fs, out, analyses)
}

func sortByPriority[T any](items []T, get func(T) Analysis) {
	sort.SliceStable(items, func(i, j int) bool {
		a, b := get(items[i]), get(items[j])
		if a.Priority != b.Priority {
			return a.Priority > b.Priority
		}
		return a.ID < b.ID
	})
}
