package artifact

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/Iron-Ham/vulntune/internal/config"
)

// Kind names a category of artifact. Every artifact of a kind shares a
// directory, a name prefix, an extension, and a shape.
type Kind string

const (
	KindScanResults           Kind = "scan-results"
	KindParsedFindings        Kind = "parsed-findings"
	KindVulnerabilityAnalysis Kind = "vulnerability-analysis"
	KindRAGEnhancedAnalysis   Kind = "rag-enhanced-analysis"
	KindAnalysisSummary       Kind = "analysis-summary"
	KindNarratives            Kind = "narratives"
	KindTrainingDataset       Kind = "training-dataset"
	KindTrainedAdapter        Kind = "trained-adapter"
	KindUploadReceipt         Kind = "upload-receipt"
)

// Shape is the on-disk form of an artifact, checked by Store.Validate.
type Shape int

const (
	ShapeDirectory Shape = iota
	ShapeJSONArray
	ShapeJSONObject
	ShapeJSONL
)

func (s Shape) String() string {
	switch s {
	case ShapeDirectory:
		return "directory"
	case ShapeJSONArray:
		return "json-array"
	case ShapeJSONObject:
		return "json-object"
	case ShapeJSONL:
		return "jsonl"
	default:
		return "unknown"
	}
}

// IsDir reports whether artifacts of this shape are directories.
func (s Shape) IsDir() bool {
	return s == ShapeDirectory
}

// TimestampFormat is the timestamp embedded in artifact names.
const TimestampFormat = "20060102_150405"

// Location says where artifacts of one kind live and how they are named:
// <Dir>/<Prefix>_<YYYYMMDD_HHMMSS><Ext>.
type Location struct {
	Dir    string
	Prefix string
	Ext    string
	Shape  Shape
}

// Name returns the artifact name for ts, which is rendered in UTC.
func (l Location) Name(ts time.Time) string {
	return l.Prefix + "_" + ts.UTC().Format(TimestampFormat) + l.Ext
}

// Layout maps each kind to its location.
type Layout map[Kind]Location

type kindInfo struct {
	kind  Kind
	shape Shape
	ext   string
	dir   func(config.Settings) string
}

func workspace(s config.Settings) string { return s.Paths.WorkspaceDir }

var kinds = []kindInfo{
	{KindScanResults, ShapeDirectory, "", func(s config.Settings) string { return s.Paths.ScanResultsDir }},
	{KindParsedFindings, ShapeJSONArray, ".json", workspace},
	{KindVulnerabilityAnalysis, ShapeJSONArray, ".json", workspace},
	{KindRAGEnhancedAnalysis, ShapeJSONArray, ".json", workspace},
	{KindAnalysisSummary, ShapeJSONObject, ".json", workspace},
	{KindNarratives, ShapeJSONArray, ".json", workspace},
	{KindTrainingDataset, ShapeJSONL, ".jsonl", workspace},
	{KindTrainedAdapter, ShapeDirectory, "", func(s config.Settings) string { return s.Paths.FineTunedModelDir }},
	{KindUploadReceipt, ShapeJSONObject, ".json", workspace},
}

// Kinds returns every artifact kind in pipeline order.
func Kinds() []Kind {
	out := make([]Kind, len(kinds))
	for i, k := range kinds {
		out[i] = k.kind
	}
	return out
}

// ParseKind validates a kind name given on the command line.
func ParseKind(s string) (Kind, error) {
	for _, k := range kinds {
		if string(k.kind) == strings.TrimSpace(s) {
			return k.kind, nil
		}
	}
	names := make([]string, len(kinds))
	for i, k := range kinds {
		names[i] = string(k.kind)
	}
	return "", fmt.Errorf("unknown artifact kind %q (valid: %s)", s, strings.Join(names, ", "))
}

// DefaultLayout derives every kind's location from resolved settings. The
// trained adapter uses the model name as its prefix; every other kind uses
// its own name.
func DefaultLayout(s config.Settings) Layout {
	layout := make(Layout, len(kinds))
	for _, k := range kinds {
		prefix := string(k.kind)
		if k.kind == KindTrainedAdapter {
			prefix = s.Model.Name
		}
		layout[k.kind] = Location{
			Dir:    filepath.Clean(k.dir(s)),
			Prefix: prefix,
			Ext:    k.ext,
			Shape:  k.shape,
		}
	}
	return layout
}
