package phases

import (
	"context"
	"time"

	"github.com/Iron-Ham/vulntune/internal/artifact"
	"github.com/Iron-Ham/vulntune/internal/config"
	"github.com/Iron-Ham/vulntune/internal/event"
	"github.com/Iron-Ham/vulntune/internal/pipeline"
	"github.com/Iron-Ham/vulntune/internal/upload"
)

// RegistryFactory builds the real registry client for a run.
type RegistryFactory func(rc *pipeline.RunContext) (upload.Registry, error)

// MinioRegistry is the default RegistryFactory: an S3-compatible registry
// configured from the registry.* options.
func MinioRegistry(rc *pipeline.RunContext) (upload.Registry, error) {
	r := rc.Settings.Registry
	cfg := upload.MinioConfig{
		Endpoint:    r.Endpoint,
		AccessKey:   r.AccessKey,
		SecretKey:   r.SecretKey,
		Bucket:      r.Bucket,
		UseSSL:      r.UseSSL,
		Concurrency: rc.Settings.Upload.Concurrency,
	}
	client, err := upload.NewMinioClient(cfg)
	if err != nil {
		return nil, err
	}
	return upload.NewMinioRegistry(client, rc.Store.Fs(), cfg), nil
}

// Upload publishes the trained adapter and writes a receipt. It builds the
// same request whether the upload is real or blocked; only the registry
// behind it differs.
type Upload struct {
	NewRegistry RegistryFactory
}

// Process reads the upload decision from the run context.
func (p Upload) Process(ctx context.Context, rc *pipeline.RunContext, in pipeline.Inputs, out string) error {
	adapter := in[artifact.KindTrainedAdapter]
	decision := rc.Upload
	logger := rc.Logger.WithPhase(IDUpload)
	logger.Info("selected adapter directory",
		"source", adapter.Path,
		"explicit", adapter.Explicit,
		"mode", string(decision.Mode),
		"reason", decision.Reason,
	)
	rc.Bus.Publish(event.NewUploadDecidedEvent(rc.RunID, string(decision.Mode), decision.Reason, adapter.Path))

	repoID := rc.Settings.Registry.RepoID
	if decision.Blocked() {
		if repoID == "" {
			repoID = "local/" + rc.Settings.Model.Name
		}
	} else {
		for _, key := range []string{config.KeyRegistryRepoID, config.KeyRegistryEndpoint} {
			if err := require(rc, key); err != nil {
				return err
			}
		}
	}

	guard := rc.Guard
	if guard == nil {
		guard = upload.NewGuard(upload.Signals{})
	}
	newRegistry := p.NewRegistry
	if newRegistry == nil {
		newRegistry = MinioRegistry
	}
	registry, err := guard.Registry(decision, func() (upload.Registry, error) { return newRegistry(rc) })
	if err != nil {
		return err
	}

	res, err := registry.Upload(ctx, upload.Request{
		RepoID: repoID,
		Source: adapter.Path,
		RunID:  rc.RunID,
	})
	if err != nil {
		return err
	}

	files := res.Files
	if files == nil {
		files = []string{}
	}
	logger.Info("upload finished", "repo_id", repoID, "url", res.URL, "files", len(files))
	return writeJSON(rc.Store.Fs(), out, Receipt{
		RunID:     rc.RunID,
		Mode:      string(decision.Mode),
		Reason:    decision.Reason,
		RepoID:    repoID,
		URL:       res.URL,
		Source:    adapter.Path,
		Files:     files,
		Timestamp: rc.Timestamp.Format(time.RFC3339),
	})
}
