// Package s3store is a content-addressed artifact backend on S3-compatible
// object storage. Objects are keyed by the SHA-256 of their bytes, so the
// returned locator is derived from the content itself.
package s3store

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"

	"github.com/zarlcorp/zpass/internal/artifact"
	"github.com/zarlcorp/zpass/internal/passport"
)

const (
	defaultRegion = "us-east-1"
	keyPrefix     = "sha256/"
	metadataType  = "application/json"
)

// Config holds bucket location and static credentials.
type Config struct {
	Bucket          string
	Region          string
	Endpoint        string // optional, for MinIO and other S3-compatible services
	AccessKeyID     string
	SecretAccessKey string
}

// Configured reports whether enough is set to attempt an upload.
func (c Config) Configured() bool {
	return c.Bucket != "" && c.AccessKeyID != "" && c.SecretAccessKey != ""
}

// objectPutter is the subset of *s3.Client used by Store.
type objectPutter interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Store uploads artifacts to a bucket.
type Store struct {
	bucket string
	api    objectPutter
}

// New builds a Store with an S3 client for cfg.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3store: %w: bucket is required", passport.ErrStorageUnavailable)
	}
	if cfg.AccessKeyID == "" || cfg.SecretAccessKey == "" {
		return nil, fmt.Errorf("s3store: %w: access key not configured", passport.ErrStorageAuth)
	}

	region := cfg.Region
	if region == "" {
		region = defaultRegion
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(region),
		awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("s3store: %w: load config: %v", passport.ErrStorageUnavailable, err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return &Store{bucket: cfg.Bucket, api: client}, nil
}

// Upload writes the image and a metadata document pointing at it, and
// returns the metadata locator.
func (s *Store) Upload(ctx context.Context, a artifact.Artifact) (passport.Locator, error) {
	imageKey := contentKey(a.Image)
	if err := s.put(ctx, imageKey, a.Image, a.ContentType); err != nil {
		return "", fmt.Errorf("upload image: %w", err)
	}

	meta, err := json.Marshal(metadata{
		Name:        a.Name,
		Description: a.Description,
		Image:       s.locator(imageKey),
	})
	if err != nil {
		return "", fmt.Errorf("upload: %w: marshal metadata: %v", passport.ErrStorageUnavailable, err)
	}

	metaKey := contentKey(meta)
	if err := s.put(ctx, metaKey, meta, metadataType); err != nil {
		return "", fmt.Errorf("upload metadata: %w", err)
	}

	return passport.Locator(s.locator(metaKey)), nil
}

func (s *Store) put(ctx context.Context, key string, data []byte, contentType string) error {
	_, err := s.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return classify(err)
	}
	return nil
}

func (s *Store) locator(key string) string {
	return "s3://" + s.bucket + "/" + key
}

// contentKey derives the object key from the content hash.
func contentKey(data []byte) string {
	sum := sha256.Sum256(data)
	return keyPrefix + hex.EncodeToString(sum[:])
}

// authCodes are S3 error codes caused by bad or missing credentials.
var authCodes = map[string]bool{
	"AccessDenied":          true,
	"InvalidAccessKeyId":    true,
	"SignatureDoesNotMatch": true,
	"ExpiredToken":          true,
	"InvalidToken":          true,
}

func classify(err error) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) && authCodes[apiErr.ErrorCode()] {
		return fmt.Errorf("%w: %s", passport.ErrStorageAuth, apiErr.ErrorMessage())
	}
	return fmt.Errorf("%w: %v", passport.ErrStorageUnavailable, err)
}

type metadata struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Image       string `json:"image"`
}
