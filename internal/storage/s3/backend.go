// Package s3 stores uploaded video files in an S3-compatible bucket.
package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/rs/zerolog"

	"github.com/prn-tf/pixtube/internal/config"
	"github.com/prn-tf/pixtube/internal/domain"
	"github.com/prn-tf/pixtube/internal/pkg/crypto"
	"github.com/prn-tf/pixtube/internal/storage"
)

// API is the subset of the S3 client used by Backend.
type API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// Backend implements storage.Backend on an S3 bucket.
type Backend struct {
	client API
	bucket string
	paths  storage.PathConfig
	logger zerolog.Logger
}

// NewClient builds an S3 client from configuration. Static credentials are
// used when set; otherwise the default AWS credential chain applies.
func NewClient(ctx context.Context, cfg config.S3StorageConfig) (*s3.Client, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	}), nil
}

// NewBackend creates a Backend storing objects under prefix in bucket.
func NewBackend(client API, bucket, prefix string, logger zerolog.Logger) *Backend {
	return &Backend{
		client: client,
		bucket: bucket,
		paths:  storage.DefaultPathConfig(prefix),
		logger: logger.With().Str("component", "storage").Str("backend", "s3").Logger(),
	}
}

// Store spools the upload to a temp file while hashing it, then puts it with a known length.
func (b *Backend) Store(ctx context.Context, reader io.Reader, originalName string) (*storage.StoredContent, error) {
	handle := storage.NewHandle(originalName)

	tmp, err := os.CreateTemp("", "pixtube-upload-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp file: %w", err)
	}
	defer func() {
		tmp.Close()
		os.Remove(tmp.Name())
	}()

	hr := crypto.NewHashReader(reader)
	if _, err := io.Copy(tmp, hr); err != nil {
		return nil, fmt.Errorf("failed to spool upload: %w", err)
	}
	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("failed to rewind upload: %w", err)
	}

	_, err = b.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(b.bucket),
		Key:           aws.String(b.key(handle)),
		Body:          tmp,
		ContentLength: aws.Int64(hr.Size()),
		Metadata:      map[string]string{"sha256": hr.SHA256()},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to put object: %w", err)
	}

	b.logger.Debug().Str("handle", handle).Int64("size", hr.Size()).Msg("stored content")

	return &storage.StoredContent{
		Handle: handle,
		Size:   hr.Size(),
		SHA256: hr.SHA256(),
	}, nil
}

// Open streams the object body.
func (b *Backend) Open(ctx context.Context, handle string) (io.ReadCloser, error) {
	if err := storage.ValidateHandle(handle); err != nil {
		return nil, err
	}

	out, err := b.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(b.key(handle)),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, domain.NewDomainError(domain.ErrContentNotFound, "open", handle)
		}
		return nil, fmt.Errorf("failed to get object: %w", err)
	}
	return out.Body, nil
}

// Delete removes the object. S3 deletes are already idempotent.
func (b *Backend) Delete(ctx context.Context, handle string) error {
	if err := storage.ValidateHandle(handle); err != nil {
		return err
	}

	_, err := b.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(b.key(handle)),
	})
	if err != nil && !isNotFound(err) {
		return fmt.Errorf("failed to delete object: %w", err)
	}
	return nil
}

// Exists checks if the object exists.
func (b *Backend) Exists(ctx context.Context, handle string) (bool, error) {
	if err := storage.ValidateHandle(handle); err != nil {
		return false, err
	}

	_, err := b.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(b.key(handle)),
	})
	if err == nil {
		return true, nil
	}
	if isNotFound(err) {
		return false, nil
	}
	return false, fmt.Errorf("failed to head object: %w", err)
}

// Walk lists every object under the prefix.
func (b *Backend) Walk(ctx context.Context, fn func(storage.ContentInfo) error) error {
	input := &s3.ListObjectsV2Input{Bucket: aws.String(b.bucket)}
	if b.paths.BasePath != "" {
		input.Prefix = aws.String(strings.Trim(b.paths.BasePath, "/") + "/")
	}

	paginator := s3.NewListObjectsV2Paginator(b.client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return fmt.Errorf("failed to list objects: %w", err)
		}

		for _, obj := range page.Contents {
			handle := path.Base(aws.ToString(obj.Key))
			if storage.ValidateHandle(handle) != nil {
				continue
			}

			info := storage.ContentInfo{
				Handle: handle,
				Size:   aws.ToInt64(obj.Size),
			}
			if obj.LastModified != nil {
				info.ModTime = *obj.LastModified
			}
			if err := fn(info); err != nil {
				return err
			}
		}
	}
	return nil
}

func (b *Backend) key(handle string) string {
	return storage.ComputeKey(b.paths, handle)
}

func isNotFound(err error) bool {
	var noSuchKey *types.NoSuchKey
	var notFound *types.NotFound
	return errors.As(err, &noSuchKey) || errors.As(err, &notFound)
}

// Ensure Backend implements storage.Backend.
var _ storage.Backend = (*Backend)(nil)
