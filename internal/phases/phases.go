package phases

import (
	"github.com/Iron-Ham/vulntune/internal/artifact"
	"github.com/Iron-Ham/vulntune/internal/errors"
	"github.com/Iron-Ham/vulntune/internal/pipeline"
)

// Phase identifiers, in pipeline order.
const (
	IDParsing               = "parsing"
	IDVulnerabilityAnalysis = "vulnerability-analysis"
	IDRAGEnhancement        = "rag-enhancement"
	IDAnalysisSummary       = "analysis-summary"
	IDNarrativization       = "narrativization"
	IDDatasetBuild          = "dataset-build"
	IDTraining              = "training"
	IDUpload                = "upload"
)

// Deps are the external collaborators of the default phases. Nil fields
// select the built-in implementation.
type Deps struct {
	Narrator    Narrator
	Trainer     Trainer
	NewRegistry RegistryFactory
}

// Default returns the eight vulntune phases in order.
func Default(deps Deps) []pipeline.Phase {
	return []pipeline.Phase{
		{
			ID:        IDParsing,
			Inputs:    []artifact.Kind{artifact.KindScanResults},
			Output:    artifact.KindParsedFindings,
			Processor: Parse{},
		},
		{
			ID:        IDVulnerabilityAnalysis,
			Inputs:    []artifact.Kind{artifact.KindParsedFindings},
			Output:    artifact.KindVulnerabilityAnalysis,
			Processor: Analyze{},
		},
		{
			ID:        IDRAGEnhancement,
			Inputs:    []artifact.Kind{artifact.KindVulnerabilityAnalysis},
			Output:    artifact.KindRAGEnhancedAnalysis,
			Processor: Enhance{},
		},
		{
			ID:        IDAnalysisSummary,
			Inputs:    []artifact.Kind{artifact.KindRAGEnhancedAnalysis},
			Output:    artifact.KindAnalysisSummary,
			Processor: Summarize{},
		},
		{
			ID:        IDNarrativization,
			Inputs:    []artifact.Kind{artifact.KindAnalysisSummary, artifact.KindRAGEnhancedAnalysis},
			Output:    artifact.KindNarratives,
			Processor: Narrate{Narrator: deps.Narrator},
		},
		{
			ID:        IDDatasetBuild,
			Inputs:    []artifact.Kind{artifact.KindNarratives, artifact.KindParsedFindings},
			Output:    artifact.KindTrainingDataset,
			Processor: BuildDataset{},
		},
		{
			ID:        IDTraining,
			Inputs:    []artifact.Kind{artifact.KindTrainingDataset},
			Output:    artifact.KindTrainedAdapter,
			Processor: Train{Trainer: deps.Trainer},
		},
		{
			ID:        IDUpload,
			Inputs:    []artifact.Kind{artifact.KindTrainedAdapter},
			Output:    artifact.KindUploadReceipt,
			Processor: Upload{NewRegistry: deps.NewRegistry},
		},
	}
}

// IDs returns the phase identifiers in order.
func IDs() []string {
	phases := Default(Deps{})
	ids := make([]string, len(phases))
	for i, p := range phases {
		ids[i] = p.ID
	}
	return ids
}

// require fails with a ConfigError when key has no value.
func require(rc *pipeline.RunContext, key string) error {
	if rc.Config == nil {
		return errors.NewConfigError("no configuration loaded", errors.ErrOptionRequired).WithOption(key)
	}
	return rc.Config.Require(key)
}
