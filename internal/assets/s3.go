package assets

import (
	"bytes"
	"context"
	stderrors "errors"
	"io"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/hpungsan/layerdeck/internal/errors"
)

// S3API is the subset of the S3 client the store uses.
type S3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3 stores assets as <prefix>/sha256/<hex>.png in a bucket.
type S3 struct {
	client S3API
	bucket string
	prefix string
}

// NewS3 wraps an existing client.
func NewS3(client S3API, bucket, prefix string) *S3 {
	return &S3{client: client, bucket: bucket, prefix: prefix}
}

// DialS3 builds a client from the default AWS credential chain.
func DialS3(ctx context.Context, bucket, prefix string) (*S3, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, errors.NewAssetUnavailable("s3://"+bucket, err)
	}
	return NewS3(s3.NewFromConfig(cfg), bucket, prefix), nil
}

func (s *S3) key(locator string) (string, error) {
	hex, err := ParseLocator(locator)
	if err != nil {
		return "", err
	}
	return path.Join(s.prefix, "sha256", hex+".png"), nil
}

func (s *S3) Put(ctx context.Context, locator, contentType string, data []byte) error {
	key, err := s.key(locator)
	if err != nil {
		return err
	}
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return errors.NewAssetUnavailable(locator, err)
	}
	return nil
}

func (s *S3) Resolve(ctx context.Context, locator string) (io.ReadCloser, error) {
	key, err := s.key(locator)
	if err != nil {
		return nil, err
	}
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var nsk *s3types.NoSuchKey
		if stderrors.As(err, &nsk) {
			return nil, errors.NewNotFound("asset", locator)
		}
		return nil, errors.NewAssetUnavailable(locator, err)
	}
	return out.Body, nil
}
