package artifacts

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
)

// S3Config configures an S3 compatible mirror.
type S3Config struct {
	Enabled   bool
	HostBase  string
	AccessKey string
	SecretKey string
	Space     string
	Bucket    string
	// Region is required by the SDK even for providers that ignore it.
	Region string
}

// S3Source reads objects from Space under the Bucket prefix.
type S3Source struct {
	client *s3.Client
	config S3Config
}

// NewS3Source creates a path-style S3 client for cfg. Empty credentials
// fall back to the default provider chain.
func NewS3Source(ctx context.Context, cfg S3Config) (*S3Source, error) {
	if !cfg.Enabled {
		return nil, fmt.Errorf("s3 source not enabled")
	}
	if cfg.HostBase == "" || cfg.Space == "" {
		return nil, fmt.Errorf("s3 host and space are required")
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if cfg.AccessKey != "" || cfg.SecretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")))
	}
	sdkConfig, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS SDK config: %w", err)
	}
	endpoint := cfg.HostBase
	if !strings.Contains(endpoint, "://") {
		endpoint = "https://" + endpoint
	}
	client := s3.NewFromConfig(sdkConfig, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(endpoint)
		o.UsePathStyle = true
	})
	return &S3Source{client: client, config: cfg}, nil
}

func (s *S3Source) Name() string {
	return fmt.Sprintf("s3://%s/%s", s.config.Space, s.config.Bucket)
}

func (s *S3Source) key(object string) string {
	if s.config.Bucket == "" {
		return object
	}
	return path.Join(s.config.Bucket, object)
}

// Open gets the object, from offset when positive.
func (s *S3Source) Open(ctx context.Context, object string, offset int64) (io.ReadCloser, int64, bool, error) {
	input := &s3.GetObjectInput{
		Bucket: aws.String(s.config.Space),
		Key:    aws.String(s.key(object)),
	}
	if offset > 0 {
		input.Range = aws.String(fmt.Sprintf("bytes=%d-", offset))
	}
	out, err := s.client.GetObject(ctx, input)
	if err != nil {
		if offset > 0 && isInvalidRange(err) {
			return s.Open(ctx, object, 0)
		}
		return nil, 0, false, fmt.Errorf("get object %s: %w", s.key(object), err)
	}
	size := int64(-1)
	if out.ContentLength != nil {
		size = *out.ContentLength
	}
	resumed := offset > 0 && out.ContentRange != nil
	if resumed {
		size = contentRangeSize(*out.ContentRange, offset+size)
	}
	return out.Body, size, resumed, nil
}

// isInvalidRange reports a 416 answer to a ranged GET.
func isInvalidRange(err error) bool {
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode == 416
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) && apiErr.ErrorCode() == "InvalidRange" {
		return true
	}
	var re interface{ HTTPStatusCode() int }
	return errors.As(err, &re) && re.HTTPStatusCode() == 416
}
