package fetcher

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"

	"github.com/Skryldev/image-loader/config"
	"github.com/Skryldev/image-loader/core"
	apperrors "github.com/Skryldev/image-loader/errors"
)

// S3Client defines the minimal S3 interface used by the fetcher.
// This allows injection of real aws-sdk-go clients or test doubles.
type S3Client interface {
	GetObject(ctx context.Context, bucket, key string) (body io.ReadCloser, contentType string, err error)
}

// S3 serves s3://bucket/key URIs.
type S3 struct {
	client   S3Client
	maxBytes int64
}

// NewS3 creates an S3 fetcher factory. client must not be nil.
func NewS3(client S3Client, maxBytes int64) (*S3, error) {
	if client == nil {
		return nil, fmt.Errorf("s3 fetcher: client must not be nil")
	}
	return &S3{client: client, maxBytes: maxBytes}, nil
}

func (*S3) Key() string { return "S3" }

func (s *S3) Create(_ *core.Loader, req *core.ImageRequest) core.Fetcher {
	bucket, key, ok := splitBucketPath(req.URI(), "s3")
	if !ok {
		return nil
	}
	return &s3Fetcher{factory: s, req: req, bucket: bucket, key: key}
}

type s3Fetcher struct {
	factory     *S3
	req         *core.ImageRequest
	bucket, key string
}

func (f *s3Fetcher) Fetch(ctx context.Context) (*core.FetchResult, error) {
	if err := checkNetworkDepth(f.req); err != nil {
		return nil, err
	}
	body, contentType, err := f.factory.client.GetObject(ctx, f.bucket, f.key)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, classifyS3Error(err)
	}
	defer body.Close()
	data, err := readAll(ctx, "s3.read", body, f.factory.maxBytes)
	if err != nil {
		return nil, err
	}
	ds := core.NewBytesDataSource(data, core.DataFromNetwork)
	return &core.FetchResult{DataSource: ds, MimeType: detectMime(ds, contentType)}, nil
}

func classifyS3Error(err error) error {
	if rf, ok := err.(awserr.RequestFailure); ok {
		if rf.StatusCode() >= http.StatusInternalServerError {
			return apperrors.Transient("s3.get", err)
		}
		return apperrors.New(apperrors.CategoryFetch, "s3.get", err)
	}
	if ae, ok := err.(awserr.Error); ok && ae.Code() == s3.ErrCodeNoSuchKey {
		return apperrors.New(apperrors.CategoryFetch, "s3.get", err)
	}
	return apperrors.Transient("s3.get", err)
}

// ── aws-sdk-go client ─────────────────────────────────────────────────────────

// AWSClient adapts the aws-sdk-go S3 service to S3Client.
type AWSClient struct {
	svc *s3.S3
}

// NewAWSClient builds an S3 client from cfg. Static credentials are used when
// both keys are set, otherwise the default credential chain applies.
func NewAWSClient(cfg config.S3Config) (*AWSClient, error) {
	awsCfg := aws.NewConfig()
	if cfg.Region != "" {
		awsCfg = awsCfg.WithRegion(cfg.Region)
	}
	if cfg.Endpoint != "" {
		awsCfg = awsCfg.WithEndpoint(cfg.Endpoint)
	}
	if cfg.UsePathStyle {
		awsCfg = awsCfg.WithS3ForcePathStyle(true)
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		awsCfg = awsCfg.WithCredentials(credentials.NewStaticCredentials(cfg.AccessKeyID, cfg.SecretAccessKey, ""))
	}
	sess, err := session.NewSession(awsCfg)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryConfig, "s3.session", err)
	}
	return &AWSClient{svc: s3.New(sess)}, nil
}

func (c *AWSClient) GetObject(ctx context.Context, bucket, key string) (io.ReadCloser, string, error) {
	out, err := c.svc.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, "", err
	}
	return out.Body, aws.StringValue(out.ContentType), nil
}

var (
	_ core.FetcherFactory = (*S3)(nil)
	_ S3Client            = (*AWSClient)(nil)
)
