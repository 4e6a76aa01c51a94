package upload

import (
	"context"
	"fmt"
)

// Request describes one adapter upload. The upload phase builds the same
// Request whether the registry is real or inert.
type Request struct {
	RepoID string
	// Source is the adapter directory being published.
	Source string
	RunID  string
}

// Result is what the registry reports back.
type Result struct {
	URL   string
	Files []string // object keys written, sorted
}

// Registry publishes an adapter directory.
type Registry interface {
	Upload(ctx context.Context, req Request) (Result, error)
}

// Factory builds the real registry client. It is only called for a REAL
// decision, so a BLOCKED run never constructs a network client.
type Factory func() (Registry, error)

// Registry returns the registry to use for decision: the inert stand-in when
// blocked, otherwise the client built by real.
func (g *Guard) Registry(decision Decision, real Factory) (Registry, error) {
	if decision.Blocked() {
		return InertRegistry{}, nil
	}
	if real == nil {
		return nil, fmt.Errorf("upload: no registry client configured")
	}
	return real()
}

// InertRegistry stands in for the registry when uploads are blocked. It
// performs no I/O.
type InertRegistry struct{}

// BlockedURL is the placeholder location reported for a blocked upload.
func BlockedURL(repoID string) string {
	return "blocked://registry/" + repoID
}

// Upload returns the placeholder URL for req.RepoID.
func (InertRegistry) Upload(_ context.Context, req Request) (Result, error) {
	return Result{URL: BlockedURL(req.RepoID)}, nil
}
