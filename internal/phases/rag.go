package phases

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/spf13/afero"

	"github.com/Iron-Ham/vulntune/internal/artifact"
	"github.com/Iron-Ham/vulntune/internal/pipeline"
)

// excerptLimit caps the bytes of a knowledge-base note attached per match.
// The cut lands on a rune boundary, so an excerpt may be a few bytes shorter.
const excerptLimit = 400

// Document is one knowledge-base note.
type Document struct {
	Name    string // file name without extension, lower-cased
	Source  string // file name
	Heading string
	Body    string
}

// LoadKnowledgeBase reads every *.md file directly under dir, in name
// order. A missing directory is an empty knowledge base.
func LoadKnowledgeBase(fs afero.Fs, dir string) ([]Document, error) {
	entries, err := afero.ReadDir(fs, dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	var docs []Document
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".md") {
			continue
		}
		data, err := afero.ReadFile(fs, filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, err
		}
		docs = append(docs, parseDocument(e.Name(), string(data)))
	}
	return docs, nil
}

func parseDocument(source, text string) Document {
	doc := Document{
		Name:   strings.ToLower(strings.TrimSuffix(source, filepath.Ext(source))),
		Source: source,
	}
	var body []string
	for _, line := range strings.Split(text, "\n") {
		if doc.Heading == "" && strings.HasPrefix(line, "# ") {
			doc.Heading = strings.TrimSpace(strings.TrimPrefix(line, "# "))
			continue
		}
		body = append(body, line)
	}
	doc.Body = strings.TrimSpace(strings.Join(body, "\n"))
	return doc
}

// Matches reports whether the note is about the analysis's category or rule.
func (d Document) Matches(a Analysis) bool {
	heading := strings.ToLower(d.Heading)
	for _, term := range []string{a.Category, strings.ToLower(a.RuleID)} {
		if term == "" || term == CategoryGeneral {
			continue
		}
		if strings.Contains(d.Name, term) || strings.Contains(heading, term) {
			return true
		}
	}
	return false
}

func (d Document) snippet() Snippet {
	excerpt := d.Body
	if len(excerpt) > excerptLimit {
		cut := excerptLimit
		for cut > 0 && !utf8.RuneStart(excerpt[cut]) {
			cut--
		}
		excerpt = strings.TrimSpace(excerpt[:cut]) + "..."
	}
	return Snippet{Source: d.Source, Heading: d.Heading, Excerpt: excerpt}
}

// Enhance attaches matching knowledge-base notes to every analysis.
type Enhance struct{}

// Process reads the analysis and the knowledge base directory.
func (Enhance) Process(_ context.Context, rc *pipeline.RunContext, in pipeline.Inputs, out string) error {
	fs := rc.Store.Fs()
	var analyses []Analysis
	if err := readJSON(fs, in.Path(artifact.KindVulnerabilityAnalysis), &analyses); err != nil {
		return err
	}
	docs, err := LoadKnowledgeBase(fs, rc.Settings.Paths.KnowledgeBaseDir)
	if err != nil {
		return err
	}
	rc.Logger.WithPhase(IDRAGEnhancement).Debug("knowledge base loaded",
		"dir", rc.Settings.Paths.KnowledgeBaseDir, "documents", len(docs))

	enhanced := make([]Enhanced, 0, len(analyses))
	for _, a := range analyses {
		e := Enhanced{Analysis: a, Knowledge: []Snippet{}}
		for _, d := range docs {
			if d.Matches(a) {
				e.Knowledge = append(e.Knowledge, d.snippet())
			}
		}
		enhanced = append(enhanced, e)
	}
	return writeJSON(fs, out, enhanced)
}
