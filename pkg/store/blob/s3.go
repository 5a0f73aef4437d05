package blob

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/mediavault/mediavault/internal/logger"
)

// maxDeleteBatch is the S3 DeleteObjects limit per request.
const maxDeleteBatch = 1000

// s3API is the subset of the S3 client used by S3Store. Declared as an
// interface so tests can substitute a fake without a live endpoint.
type s3API interface {
	s3.ListObjectsV2APIClient
	HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	DeleteObjects(ctx context.Context, params *s3.DeleteObjectsInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error)
}

// S3Store implements Store using Amazon S3 or S3-compatible storage.
//
// Path-Based Keys:
//   - Object paths are bucket-relative, matching the path columns stored in
//     the reference tables (e.g. "content/incoming/x.jpg").
//   - An optional key prefix is prepended on the wire and stripped on the
//     way back, so the engine only ever sees catalog-comparable paths.
//
// Thread Safety:
// Safe for concurrent use by multiple goroutines.
type S3Store struct {
	client    s3API
	bucket    string
	keyPrefix string
}

// S3Config contains configuration for the S3 blob store.
type S3Config struct {
	// Client is the configured S3 client.
	Client *s3.Client

	// Bucket is the S3 bucket name.
	Bucket string

	// KeyPrefix is an optional prefix for all object keys.
	KeyPrefix string
}

// NewS3ClientFromConfig creates an S3 client from configuration parameters.
// This is a helper for creating S3 clients from YAML configuration.
func NewS3ClientFromConfig(
	ctx context.Context,
	endpoint,
	region,
	accessKeyID,
	secretAccessKey string,
	forcePathStyle bool,
) (*s3.Client, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			accessKeyID,
			secretAccessKey,
			"", // session token (empty for static credentials)
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = &endpoint
		}
		o.UsePathStyle = forcePathStyle
	})

	return client, nil
}

// NewS3Store creates a new S3-backed blob store and verifies bucket access.
// The bucket must already exist.
func NewS3Store(ctx context.Context, cfg S3Config) (*S3Store, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if cfg.Client == nil {
		return nil, fmt.Errorf("S3 client is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}

	_, err := cfg.Client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(cfg.Bucket),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to access bucket %q: %w", cfg.Bucket, err)
	}

	return &S3Store{
		client:    cfg.Client,
		bucket:    cfg.Bucket,
		keyPrefix: cfg.KeyPrefix,
	}, nil
}

// newS3StoreWithClient builds a store around an s3API without the bucket
// probe. Used by tests.
func newS3StoreWithClient(client s3API, bucket, keyPrefix string) *S3Store {
	return &S3Store{client: client, bucket: bucket, keyPrefix: keyPrefix}
}

// Healthcheck verifies the bucket is still reachable with the configured
// credentials.
func (s *S3Store) Healthcheck(ctx context.Context) error {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(s.bucket),
	})
	if err != nil {
		return fmt.Errorf("bucket %q unreachable: %w", s.bucket, err)
	}
	return nil
}

// objectKey returns the full S3 key for a bucket-relative path.
func (s *S3Store) objectKey(path string) string {
	if s.keyPrefix != "" {
		return s.keyPrefix + path
	}
	return path
}

// relativePath strips the key prefix from a full S3 key.
func (s *S3Store) relativePath(key string) string {
	if s.keyPrefix != "" {
		return strings.TrimPrefix(key, s.keyPrefix)
	}
	return key
}

// ListFolder lists objects and sub-folders directly under prefix using a
// delimited listing. The listing is paginated internally; one call returns
// the complete folder level.
func (s *S3Store) ListFolder(ctx context.Context, prefix string) (*Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	page := &Page{}

	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket:    aws.String(s.bucket),
		Prefix:    aws.String(s.objectKey(prefix)),
		Delimiter: aws.String("/"),
	})

	for paginator.HasMorePages() {
		out, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list %q: %w", prefix, err)
		}

		for _, obj := range out.Contents {
			if obj.Key == nil {
				continue
			}
			rel := s.relativePath(*obj.Key)
			// Folder placeholder objects list themselves under their own
			// prefix; skip them.
			if rel == prefix || strings.HasSuffix(rel, "/") {
				continue
			}
			o := Object{Path: rel}
			if obj.Size != nil {
				o.SizeBytes = *obj.Size
			}
			if obj.LastModified != nil {
				o.LastModified = *obj.LastModified
			}
			page.Objects = append(page.Objects, o)
		}

		for _, cp := range out.CommonPrefixes {
			if cp.Prefix == nil {
				continue
			}
			page.Folders = append(page.Folders, s.relativePath(*cp.Prefix))
		}
	}

	return page, nil
}

// Exists probes for an object with a HEAD request.
func (s *S3Store) Exists(ctx context.Context, path string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(path)),
	})
	if err != nil {
		if IsNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to probe %q: %w", path, err)
	}

	return true, nil
}

// DeleteBatch removes the given paths using the DeleteObjects API, chunking
// at the store-side limit of 1000 keys per request.
//
// Idempotent: paths that don't exist count as deleted. Per-key failures are
// returned in BatchResult.Failed as classifiable API errors.
func (s *S3Store) DeleteBatch(ctx context.Context, paths []string) (*BatchResult, error) {
	result := &BatchResult{Failed: make(map[string]error)}

	for i := 0; i < len(paths); i += maxDeleteBatch {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		end := i + maxDeleteBatch
		if end > len(paths) {
			end = len(paths)
		}
		batch := paths[i:end]

		objects := make([]types.ObjectIdentifier, len(batch))
		for j, p := range batch {
			objects[j] = types.ObjectIdentifier{Key: aws.String(s.objectKey(p))}
		}

		start := time.Now()
		out, err := s.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(s.bucket),
			Delete: &types.Delete{
				Objects: objects,
				Quiet:   aws.Bool(false),
			},
		})
		if err != nil {
			return result, fmt.Errorf("batch delete of %d objects failed: %w", len(batch), err)
		}

		logger.Debug("blob batch delete",
			"count", len(batch),
			"duration_ms", logger.Duration(start))

		failed := make(map[string]bool, len(out.Errors))
		for _, derr := range out.Errors {
			if derr.Key == nil {
				continue
			}
			path := s.relativePath(*derr.Key)

			code := "InternalError"
			msg := "unknown error"
			if derr.Code != nil {
				code = *derr.Code
			}
			if derr.Message != nil {
				msg = *derr.Message
			}

			// NoSuchKey on delete is success (already gone).
			keyErr := &smithy.GenericAPIError{Code: code, Message: msg}
			if IsNotFound(keyErr) {
				continue
			}

			failed[path] = true
			result.Failed[path] = keyErr
		}

		for _, p := range batch {
			if !failed[p] {
				result.Deleted = append(result.Deleted, p)
			}
		}
	}

	return result, nil
}
