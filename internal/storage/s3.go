package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// S3Config configures an S3 or Cloudflare R2 backend.
type S3Config struct {
	Endpoint     string // e.g. https://<account>.r2.cloudflarestorage.com; empty for AWS
	Region       string
	AccessKey    string
	SecretKey    string
	BucketPrefix string // prepended to resumes/transcripts/projects
	URLExpiry    time.Duration
}

// S3Store stores objects in S3-compatible buckets and hands out presigned
// download URLs.
type S3Store struct {
	client  *s3.Client
	presign *s3.PresignClient
	prefix  string
	expiry  time.Duration
}

// NewS3Store builds the client from static credentials.
func NewS3Store(ctx context.Context, cfg S3Config) (*S3Store, error) {
	region := cfg.Region
	if region == "" {
		region = "auto"
	}
	awsCfg, err := config.LoadDefaultConfig(ctx,
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")),
		config.WithRegion(region),
	)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	expiry := cfg.URLExpiry
	if expiry <= 0 {
		expiry = 15 * time.Minute
	}
	return &S3Store{
		client:  client,
		presign: s3.NewPresignClient(client),
		prefix:  cfg.BucketPrefix,
		expiry:  expiry,
	}, nil
}

func (s *S3Store) bucket(name string) *string {
	return aws.String(s.prefix + name)
}

// Put uploads the object. The body is buffered so the SDK can sign its length.
func (s *S3Store) Put(ctx context.Context, bucket, key, contentType string, body io.Reader) error {
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        s.bucket(bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentType:   aws.String(contentType),
		ContentLength: aws.Int64(int64(len(data))),
	})
	if err != nil {
		return fmt.Errorf("put object %s/%s: %w", bucket, key, err)
	}
	return nil
}

// Get downloads the whole object.
func (s *S3Store) Get(ctx context.Context, bucket, key string) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: s.bucket(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get object %s/%s: %w", bucket, key, err)
	}
	defer out.Body.Close()

	buf := new(bytes.Buffer)
	if _, err := io.Copy(buf, out.Body); err != nil {
		return nil, fmt.Errorf("read object body: %w", err)
	}
	return buf.Bytes(), nil
}

// URL returns a presigned GET URL.
func (s *S3Store) URL(ctx context.Context, bucket, key string) (string, error) {
	req, err := s.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: s.bucket(bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(s.expiry))
	if err != nil {
		return "", fmt.Errorf("presign %s/%s: %w", bucket, key, err)
	}
	return req.URL, nil
}
