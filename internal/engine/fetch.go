// Segmentfold - Audience Query & Segmentation Engine
// Copyright 2026 Segmentfold Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/segmentfold/segmentfold

package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/segmentfold/segmentfold/internal/config"
	"github.com/segmentfold/segmentfold/internal/errs"
	"github.com/segmentfold/segmentfold/internal/logging"
	"github.com/segmentfold/segmentfold/internal/metrics"
)

// Fetcher downloads audience source files to the local staging directory.
//
// Supported URL schemes: s3://, https://, http://, file://, and bare local
// paths (used in tests and for pre-staged files). Each fetch runs under the
// configured timeout with bounded retries; a circuit breaker makes a dead
// upstream fail fast instead of burning the retry budget on every request.
type Fetcher struct {
	cfg        config.SourcesConfig
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker[string]
	limiter    *rate.Limiter

	s3Once   sync.Once
	s3Client *s3.Client
	s3Err    error
}

// NewFetcher creates a source fetcher from configuration.
func NewFetcher(cfg config.SourcesConfig) *Fetcher {
	f := &Fetcher{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: cfg.FetchTimeout,
		},
	}

	f.breaker = gobreaker.NewCircuitBreaker[string](gobreaker.Settings{
		Name:    "source-fetch",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})

	if cfg.FetchesPerSecond > 0 {
		f.limiter = rate.NewLimiter(rate.Limit(cfg.FetchesPerSecond), 1)
	}

	return f
}

// Fetch downloads the source file and returns a local path to it.
// The returned path is inside the cache directory except for local sources,
// which are used in place.
func (f *Fetcher) Fetch(ctx context.Context, src Source) (string, error) {
	if f.limiter != nil {
		if err := f.limiter.Wait(ctx); err != nil {
			return "", errs.Upstream(err, "fetch canceled while rate limited")
		}
	}

	path, err := f.breaker.Execute(func() (string, error) {
		return f.fetchWithRetry(ctx, src)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			metrics.SourceFetchErrors.WithLabelValues("breaker_open").Inc()
			return "", errs.Upstream(err, "source fetch unavailable")
		}
		return "", err
	}
	return path, nil
}

// fetchWithRetry attempts the fetch up to the configured number of times.
// Context cancellation and deadline expiry are not retried.
func (f *Fetcher) fetchWithRetry(ctx context.Context, src Source) (string, error) {
	var lastErr error
	for attempt := 0; attempt < f.cfg.RetryAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(f.cfg.RetryDelay):
			case <-ctx.Done():
				return "", errs.Upstream(ctx.Err(), "source fetch canceled")
			}
			logging.Warn().
				Str("url", src.URL).
				Int("attempt", attempt+1).
				Err(lastErr).
				Msg("Retrying source fetch")
		}

		path, err := f.fetchOnce(ctx, src)
		if err == nil {
			return path, nil
		}
		// Malformed descriptors are the caller's to fix; retrying cannot help.
		if errs.IsKind(err, errs.KindValidation) {
			return "", err
		}
		lastErr = err

		if ctx.Err() != nil {
			break
		}
	}

	metrics.SourceFetchErrors.WithLabelValues("exhausted").Inc()
	return "", errs.Upstream(lastErr, fmt.Sprintf("fetch %s after %d attempts", src.URL, f.cfg.RetryAttempts))
}

// fetchOnce performs a single fetch attempt under the configured timeout.
func (f *Fetcher) fetchOnce(ctx context.Context, src Source) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, f.cfg.FetchTimeout)
	defer cancel()

	u, err := url.Parse(strings.TrimSpace(src.URL))
	if err != nil {
		return "", errs.Validationf("invalid source url %q", src.URL)
	}

	switch u.Scheme {
	case "s3":
		return f.fetchS3(ctx, u)
	case "http", "https":
		return f.fetchHTTP(ctx, src.URL)
	case "file":
		return f.localPath(u.Path)
	case "":
		return f.localPath(src.URL)
	default:
		return "", errs.Validationf("unsupported source url scheme %q", u.Scheme)
	}
}

// fetchS3 streams an s3://bucket/key object into the cache directory.
func (f *Fetcher) fetchS3(ctx context.Context, u *url.URL) (string, error) {
	client, err := f.s3ClientLazy(ctx)
	if err != nil {
		return "", err
	}

	bucket := u.Host
	key := strings.TrimPrefix(u.Path, "/")
	if bucket == "" || key == "" {
		return "", errs.Validationf("s3 url must be s3://bucket/key, got %q", u.String())
	}

	resp, err := client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return "", fmt.Errorf("s3 get object %s/%s: %w", bucket, key, err)
	}
	defer closeQuietly(resp.Body)

	return f.stageStream(resp.Body)
}

// fetchHTTP downloads an http(s) source into the cache directory.
func (f *Fetcher) fetchHTTP(ctx context.Context, rawURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("http get %s: %w", rawURL, err)
	}
	defer closeQuietly(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("http get %s: unexpected status %d", rawURL, resp.StatusCode)
	}

	return f.stageStream(resp.Body)
}

// localPath validates a local source path and uses the file in place.
func (f *Fetcher) localPath(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("local source %s: %w", path, err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("local source %s is a directory", path)
	}
	return path, nil
}

// stageStream copies a remote stream into a temp file in the cache directory.
func (f *Fetcher) stageStream(r io.Reader) (string, error) {
	if err := os.MkdirAll(f.cfg.CacheDir, 0o750); err != nil {
		return "", fmt.Errorf("create cache dir: %w", err)
	}

	tmp, err := os.CreateTemp(f.cfg.CacheDir, "source-*")
	if err != nil {
		return "", fmt.Errorf("create staging file: %w", err)
	}

	n, err := io.Copy(tmp, r)
	if closeErr := tmp.Close(); closeErr != nil && err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(tmp.Name())
		return "", fmt.Errorf("stage source stream: %w", err)
	}

	metrics.SourceBytesFetched.Add(float64(n))
	return tmp.Name(), nil
}

// s3ClientLazy builds the S3 client on first use.
func (f *Fetcher) s3ClientLazy(ctx context.Context) (*s3.Client, error) {
	f.s3Once.Do(func() {
		opts := []func(*awsconfig.LoadOptions) error{
			awsconfig.WithRegion(f.cfg.S3.Region),
		}
		if f.cfg.S3.AccessKeyID != "" {
			opts = append(opts, awsconfig.WithCredentialsProvider(
				credentials.NewStaticCredentialsProvider(
					f.cfg.S3.AccessKeyID, f.cfg.S3.SecretAccessKey, "")))
		}

		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
		if err != nil {
			f.s3Err = fmt.Errorf("load aws config: %w", err)
			return
		}

		f.s3Client = s3.NewFromConfig(awsCfg, func(o *s3.Options) {
			if f.cfg.S3.Endpoint != "" {
				o.BaseEndpoint = aws.String(f.cfg.S3.Endpoint)
			}
			o.UsePathStyle = f.cfg.S3.UsePathStyle
		})
	})
	return f.s3Client, f.s3Err
}
