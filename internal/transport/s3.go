package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"

	"github.com/sanchez-kim/obj-viewer/internal/address"
	"github.com/sanchez-kim/obj-viewer/internal/types"
)

// S3Config names the bucket. Credentials come from the standard AWS chain
// (AWS_ACCESS_KEY_ID / AWS_SECRET_ACCESS_KEY, shared config, instance role).
type S3Config struct {
	Bucket   string `mapstructure:"bucket"`
	Region   string `mapstructure:"region"`
	Endpoint string `mapstructure:"endpoint"`
}

// S3API is the part of the S3 client the transport uses.
type S3API interface {
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// S3Fetcher reads frames through the S3 API.
type S3Fetcher struct {
	client S3API
	bucket string
	prefix string
	layout *address.Layout
}

// NewS3 loads the default AWS configuration and creates an S3 transport.
// root is prepended to every key.
func NewS3(ctx context.Context, cfg S3Config, root string, layout *address.Layout) (*S3Fetcher, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("s3 transport: bucket is required")
	}
	region := cfg.Region
	if region == "" {
		region = "ap-northeast-2"
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	return NewS3WithClient(client, cfg.Bucket, root, layout), nil
}

// NewS3WithClient wraps an existing client.
func NewS3WithClient(client S3API, bucket, root string, layout *address.Layout) *S3Fetcher {
	return &S3Fetcher{client: client, bucket: bucket, prefix: strings.Trim(root, "/"), layout: layout}
}

func (f *S3Fetcher) Name() string { return "s3://" + path.Join(f.bucket, f.prefix) }

func (f *S3Fetcher) Close() error { return nil }

func (f *S3Fetcher) Fetch(ctx context.Context, fr address.Frame) (types.FramePair, error) {
	return fetchPair(ctx, f.layout, fr, f.get)
}

// List pages through ListObjectsV2 under the sentence's prefixes.
func (f *S3Fetcher) List(ctx context.Context, s address.Sentence) (Listing, error) {
	return listSentence(ctx, f.layout, s, f.list)
}

func (f *S3Fetcher) key(rel string) string {
	if f.prefix == "" {
		return rel
	}
	return f.prefix + "/" + rel
}

func (f *S3Fetcher) get(ctx context.Context, rel string) ([]byte, error) {
	out, err := f.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(f.bucket),
		Key:    aws.String(f.key(rel)),
	})
	if err != nil {
		if isS3NotFound(err) {
			return nil, fmt.Errorf("%w: %v", ErrNotFound, err)
		}
		return nil, err
	}
	defer out.Body.Close()
	return io.ReadAll(out.Body)
}

func (f *S3Fetcher) list(ctx context.Context, prefix string) ([]string, error) {
	p := s3.NewListObjectsV2Paginator(f.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(f.bucket),
		Prefix: aws.String(f.key(prefix)),
	})

	var names []string
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, obj := range page.Contents {
			names = append(names, path.Base(aws.ToString(obj.Key)))
		}
	}
	return names, nil
}

func isS3NotFound(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound", "NoSuchBucket":
			return true
		}
	}
	return false
}
