package artifacts

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/geodds/geodds/pkg/config"
)

// URIBuilder turns a finished artifact into the address clients download it
// from.
type URIBuilder interface {
	DownloadURI(ctx context.Context, requestID int64, path string) (string, error)
}

// LocalURIs points downloads at the gateway's own /download route.
type LocalURIs struct {
	BaseURL string
}

// DownloadURI implements URIBuilder.
func (l LocalURIs) DownloadURI(_ context.Context, requestID int64, _ string) (string, error) {
	return fmt.Sprintf("%s/download/%d", l.BaseURL, requestID), nil
}

// S3Uploader copies artifacts to an S3 bucket and returns object URIs.
type S3Uploader struct {
	client *s3.Client
	bucket string
}

// NewS3Uploader builds an uploader from the results configuration. The
// endpoint override supports S3-compatible stores.
func NewS3Uploader(ctx context.Context, cfg config.ResultsConfig) (*S3Uploader, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.S3Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load aws configuration: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.S3Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.S3Endpoint)
			o.UsePathStyle = true
		}
	})
	return &S3Uploader{client: client, bucket: cfg.S3Bucket}, nil
}

// DownloadURI uploads the artifact under <request_id>/<filename> and returns
// its s3:// URI.
func (u *S3Uploader) DownloadURI(ctx context.Context, requestID int64, path string) (string, error) {
	f, err := Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	key := strconv.FormatInt(requestID, 10) + "/" + filepath.Base(path)
	_, err = u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(u.bucket),
		Key:    aws.String(key),
		Body:   f,
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload artifact %s: %w", path, err)
	}
	return fmt.Sprintf("s3://%s/%s", u.bucket, key), nil
}
