package upload

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"sort"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/sourcegraph/conc/pool"
	"github.com/spf13/afero"

	"github.com/Iron-Ham/vulntune/internal/errors"
)

// ObjectClient is the subset of *minio.Client the registry uses.
type ObjectClient interface {
	PutObject(ctx context.Context, bucket, object string, reader io.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	StatObject(ctx context.Context, bucket, object string, opts minio.StatObjectOptions) (minio.ObjectInfo, error)
}

// MinioConfig configures the S3-compatible registry.
type MinioConfig struct {
	Endpoint    string
	AccessKey   string
	SecretKey   string
	Bucket      string
	UseSSL      bool
	Concurrency int
}

// NewMinioClient dials nothing; the first request opens the connection.
func NewMinioClient(cfg MinioConfig) (*minio.Client, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("upload: registry endpoint is required")
	}
	return minio.New(cfg.Endpoint, &minio.Options{
		Creds:     credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure:    cfg.UseSSL,
		Transport: newTransport(),
	})
}

func newTransport() *http.Transport {
	dialer := &net.Dialer{
		Timeout:   5 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	return &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
}

// MinioRegistry uploads every file of an adapter directory under
// <bucket>/<repo_id>/ and then confirms each object is present with the
// local size.
type MinioRegistry struct {
	client      ObjectClient
	fs          afero.Fs
	bucket      string
	endpoint    string
	secure      bool
	concurrency int
}

// NewMinioRegistry wraps client. fs is where adapter directories are read.
func NewMinioRegistry(client ObjectClient, fs afero.Fs, cfg MinioConfig) *MinioRegistry {
	concurrency := cfg.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}
	return &MinioRegistry{
		client:      client,
		fs:          fs,
		bucket:      cfg.Bucket,
		endpoint:    cfg.Endpoint,
		secure:      cfg.UseSSL,
		concurrency: concurrency,
	}
}

type localFile struct {
	path string
	key  string
	size int64
}

// Upload puts every file with bounded concurrency, waits for all of them,
// then stats each object. Any failure is an UploadError; there is no
// partial success.
func (r *MinioRegistry) Upload(ctx context.Context, req Request) (Result, error) {
	fail := func(msg string, cause error) (Result, error) {
		return Result{}, errors.NewUploadError(msg, cause).WithRepoID(req.RepoID)
	}

	files, err := r.collect(req)
	if err != nil {
		return fail("cannot read adapter directory", err)
	}
	if len(files) == 0 {
		return fail(fmt.Sprintf("adapter directory %s has no files", req.Source), errors.ErrUploadIncomplete)
	}

	p := pool.New().WithContext(ctx).WithMaxGoroutines(r.concurrency).WithCancelOnError().WithFirstError()
	for _, f := range files {
		p.Go(func(ctx context.Context) error {
			return r.put(ctx, f, req.RunID)
		})
	}
	if err := p.Wait(); err != nil {
		return fail("put object failed", err)
	}

	keys := make([]string, 0, len(files))
	for _, f := range files {
		info, err := r.client.StatObject(ctx, r.bucket, f.key, minio.StatObjectOptions{})
		if err != nil {
			return fail(fmt.Sprintf("cannot confirm %s", f.key), err)
		}
		if info.Size != f.size {
			return fail(fmt.Sprintf("%s has %d bytes in the registry, %d locally", f.key, info.Size, f.size), errors.ErrUploadIncomplete)
		}
		keys = append(keys, f.key)
	}

	return Result{URL: r.url(req.RepoID), Files: keys}, nil
}

func (r *MinioRegistry) collect(req Request) ([]localFile, error) {
	var files []localFile
	err := afero.Walk(r.fs, req.Source, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.Mode().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(req.Source, p)
		if err != nil {
			return err
		}
		files = append(files, localFile{
			path: p,
			key:  path.Join(req.RepoID, filepath.ToSlash(rel)),
			size: info.Size(),
		})
		return nil
	})
	sort.Slice(files, func(i, j int) bool { return files[i].key < files[j].key })
	return files, err
}

func (r *MinioRegistry) put(ctx context.Context, f localFile, runID string) error {
	fh, err := r.fs.Open(f.path)
	if err != nil {
		return err
	}
	defer func() { _ = fh.Close() }()

	_, err = r.client.PutObject(ctx, r.bucket, f.key, fh, f.size, minio.PutObjectOptions{
		ContentType:  "application/octet-stream",
		UserMetadata: map[string]string{"run-id": runID},
	})
	if err != nil {
		return fmt.Errorf("put %s: %w", f.key, err)
	}
	return nil
}

func (r *MinioRegistry) url(repoID string) string {
	scheme := "http"
	if r.secure {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s/%s/%s", scheme, r.endpoint, r.bucket, repoID)
}
