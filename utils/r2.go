// utils/r2.go
package utils

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// R2Config holds the Cloudflare R2 credentials for the attachment bucket.
type R2Config struct {
	AccountID       string
	AccessKeyID     string
	AccessKeySecret string
	Bucket          string
	Endpoint        string // optional override, mainly for S3-compatible test servers
}

// R2FileStore keeps attachments in an R2 bucket under applications/<id>/.
type R2FileStore struct {
	client *s3.Client
	bucket string
}

func NewR2FileStore(ctx context.Context, cfg R2Config) (*R2FileStore, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("R2 bucket name is required")
	}
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = fmt.Sprintf("https://%s.r2.cloudflarestorage.com", cfg.AccountID)
	}

	awsCfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion("auto"),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID, cfg.AccessKeySecret, "",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load R2 config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(endpoint)
		o.UsePathStyle = true
	})
	return &R2FileStore{client: client, bucket: cfg.Bucket}, nil
}

func r2Prefix(applicationID string) string {
	return "applications/" + path.Base(applicationID) + "/"
}

// Save uploads body to R2 and returns the stored file name.
func (s *R2FileStore) Save(ctx context.Context, applicationID, filename, contentType string, body io.Reader) (string, error) {
	buf := new(bytes.Buffer)
	if _, err := io.Copy(buf, body); err != nil {
		return "", fmt.Errorf("failed to read file: %w", err)
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	name := StoredName(filename)
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(r2Prefix(applicationID) + name),
		Body:        bytes.NewReader(buf.Bytes()),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload to R2: %w", err)
	}
	return name, nil
}

func (s *R2FileStore) keys(ctx context.Context, applicationID string) ([]string, error) {
	var keys []string
	p := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(r2Prefix(applicationID)),
	})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list R2 objects: %w", err)
		}
		for _, obj := range page.Contents {
			keys = append(keys, aws.ToString(obj.Key))
		}
	}
	return keys, nil
}

func (s *R2FileStore) List(ctx context.Context, applicationID string) ([]string, error) {
	keys, err := s.keys(ctx, applicationID)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(keys))
	for _, k := range keys {
		names = append(names, strings.TrimPrefix(k, r2Prefix(applicationID)))
	}
	sort.Strings(names)
	return names, nil
}

func (s *R2FileStore) DeleteAll(ctx context.Context, applicationID string) error {
	keys, err := s.keys(ctx, applicationID)
	if err != nil {
		return err
	}
	// DeleteObjects takes at most 1000 keys per call.
	for start := 0; start < len(keys); start += 1000 {
		end := min(start+1000, len(keys))
		ids := make([]types.ObjectIdentifier, 0, end-start)
		for _, k := range keys[start:end] {
			ids = append(ids, types.ObjectIdentifier{Key: aws.String(k)})
		}
		_, err := s.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(s.bucket),
			Delete: &types.Delete{Objects: ids, Quiet: aws.Bool(true)},
		})
		if err != nil {
			return fmt.Errorf("failed to delete R2 objects: %w", err)
		}
	}
	return nil
}
