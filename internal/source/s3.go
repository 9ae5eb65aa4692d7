package source

import (
	"context"
	"fmt"
	"io"
	"path"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/sourcegraph/conc/pool"
	"github.com/spf13/afero"

	"github.com/franz/playlake/internal/util"
)

const s3Scheme = "s3://"

// IsS3URI reports whether root names an S3 location
func IsS3URI(root string) bool {
	return strings.HasPrefix(root, s3Scheme) || strings.HasPrefix(root, "s3a://")
}

// ParseS3URI splits s3://bucket/prefix into bucket and prefix. The prefix
// never has a leading slash and, when non-empty, ends with one.
func ParseS3URI(uri string) (bucket, prefix string, err error) {
	rest, ok := strings.CutPrefix(uri, s3Scheme)
	if !ok {
		rest, ok = strings.CutPrefix(uri, "s3a://")
	}
	if !ok {
		return "", "", fmt.Errorf("not an s3 uri: %q: %w", uri, util.ErrInvalidConfig)
	}

	bucket, prefix, _ = strings.Cut(rest, "/")
	if bucket == "" {
		return "", "", fmt.Errorf("s3 uri without bucket: %q: %w", uri, util.ErrInvalidConfig)
	}
	prefix = strings.Trim(prefix, "/")
	if prefix != "" {
		prefix += "/"
	}
	return bucket, prefix, nil
}

// ObjectAPI is the subset of the S3 client the stager uses
type ObjectAPI interface {
	s3.ListObjectsV2APIClient
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Options configures the S3 client
type S3Options struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	Endpoint        string // optional, for S3-compatible stores
}

// NewS3Client builds an S3 client. Static keys win over the default
// credential chain when both are set.
func NewS3Client(ctx context.Context, opts S3Options) (*s3.Client, error) {
	var loadOpts []func(*awsconfig.LoadOptions) error
	if opts.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(opts.Region))
	}
	if opts.AccessKeyID != "" && opts.SecretAccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKeyID, opts.SecretAccessKey, "")))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}

	return s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true
		}
	}), nil
}

// S3Stager copies matching objects from S3 into a local staging directory
// so the loader can read them like any other input root.
type S3Stager struct {
	client      ObjectAPI
	fs          afero.Fs
	stagingDir  string
	concurrency int
	retry       *util.RetryConfig
}

// StagerConfig holds stager configuration
type StagerConfig struct {
	Client      ObjectAPI
	Fs          afero.Fs
	StagingDir  string
	Concurrency int
	Retry       *util.RetryConfig
}

// NewS3Stager creates a new S3Stager
func NewS3Stager(cfg *StagerConfig) *S3Stager {
	if cfg.Fs == nil {
		cfg.Fs = afero.NewOsFs()
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if cfg.Retry == nil {
		cfg.Retry = util.ObjectStoreRetryConfig()
	}

	return &S3Stager{
		client:      cfg.Client,
		fs:          cfg.Fs,
		stagingDir:  cfg.StagingDir,
		concurrency: cfg.Concurrency,
		retry:       cfg.Retry,
	}
}

// Stage downloads every object under uri whose key, relative to the uri
// prefix, matches one of patterns. It returns the local root that mirrors
// the remote layout and the number of objects copied.
func (s *S3Stager) Stage(ctx context.Context, uri string, patterns ...string) (string, int, error) {
	bucket, prefix, err := ParseS3URI(uri)
	if err != nil {
		return "", 0, err
	}

	keys, err := s.list(ctx, bucket, prefix, patterns)
	if err != nil {
		return "", 0, err
	}
	if len(keys) == 0 {
		return "", 0, fmt.Errorf("no objects under %s match %v: %w", uri, patterns, util.ErrNoInput)
	}

	util.InfoLog("Staging %d objects from %s to %s", len(keys), uri, s.stagingDir)

	p := pool.New().
		WithContext(ctx).
		WithCancelOnError().
		WithMaxGoroutines(s.concurrency)

	for _, key := range keys {
		p.Go(func(ctx context.Context) error {
			return s.download(ctx, bucket, key, filepath.Join(s.stagingDir, filepath.FromSlash(strings.TrimPrefix(key, prefix))))
		})
	}

	if err := p.Wait(); err != nil {
		return "", 0, err
	}

	return s.stagingDir, len(keys), nil
}

func (s *S3Stager) list(ctx context.Context, bucket, prefix string, patterns []string) ([]string, error) {
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(bucket),
		Prefix: aws.String(prefix),
	})

	var keys []string
	for paginator.HasMorePages() {
		page, err := util.RetryWithBackoff(ctx, s.retry, func(ctx context.Context) (*s3.ListObjectsV2Output, error) {
			return paginator.NextPage(ctx)
		}, "list s3://"+bucket+"/"+prefix)
		if err != nil {
			return nil, fmt.Errorf("failed to list s3://%s/%s: %w", bucket, prefix, err)
		}

		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			if strings.HasSuffix(key, "/") {
				continue
			}
			rel := strings.TrimPrefix(key, prefix)
			if !matchAny(patterns, rel) {
				continue
			}
			if !filepath.IsLocal(filepath.FromSlash(rel)) {
				util.WarnLog("Skipping s3://%s/%s: key leaves the staging directory", bucket, key)
				continue
			}
			keys = append(keys, key)
		}
	}

	return keys, nil
}

func (s *S3Stager) download(ctx context.Context, bucket, key, dest string) error {
	if err := s.fs.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return fmt.Errorf("failed to create staging directory: %w", err)
	}

	return util.Retry(ctx, s.retry, func(ctx context.Context) error {
		out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(bucket),
			Key:    aws.String(key),
		})
		if err != nil {
			return err
		}
		defer out.Body.Close()

		f, err := s.fs.Create(dest)
		if err != nil {
			return fmt.Errorf("failed to create %s: %w", dest, err)
		}
		if _, err := io.Copy(f, out.Body); err != nil {
			f.Close()
			return fmt.Errorf("failed to download s3://%s/%s: %w", bucket, key, err)
		}
		return f.Close()
	}, "get s3://"+bucket+"/"+key)
}

// matchAny matches a slash-separated key against glob patterns
func matchAny(patterns []string, key string) bool {
	if len(patterns) == 0 {
		return true
	}
	for _, pattern := range patterns {
		if ok, _ := path.Match(filepath.ToSlash(pattern), key); ok {
			return true
		}
	}
	return false
}
