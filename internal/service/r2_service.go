package service

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	cfg "github.com/maheshrc27/autopost/configs"
)

const (
	// ChunkThreshold is the size above which uploads go out in parts.
	ChunkThreshold = 10 * 1024 * 1024
	chunkPartSize  = 6 * 1024 * 1024
)

// R2API is the subset of the S3 client used for Cloudflare R2.
type R2API interface {
	manager.UploadAPIClient
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

type R2Service struct {
	client        R2API
	bucket        string
	publicBaseURL string
}

func NewR2Service(client R2API, r2 cfg.R2) *R2Service {
	return &R2Service{
		client:        client,
		bucket:        r2.BucketName,
		publicBaseURL: strings.TrimRight(r2.PublicBaseURL, "/"),
	}
}

func NewR2Client(ctx context.Context, r2 cfg.R2) (*s3.Client, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx,
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(r2.AccessKey, r2.SecretKey, "")),
		config.WithRegion("auto"),
	)
	if err != nil {
		return nil, fmt.Errorf("load r2 config: %w", err)
	}

	endpoint := r2.Endpoint
	if endpoint == "" {
		endpoint = fmt.Sprintf("https://%s.r2.cloudflarestorage.com", r2.AccountID)
	}

	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(endpoint)
	}), nil
}

func (r *R2Service) Name() string { return "r2" }

func objectKey(hash, ext string) string {
	return fmt.Sprintf("media/%s.%s", hash, ext)
}

func (r *R2Service) publicURL(key string) string {
	return r.publicBaseURL + "/" + key
}

func (r *R2Service) Lookup(ctx context.Context, hash string) (string, bool, error) {
	out, err := r.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket:  aws.String(r.bucket),
		Prefix:  aws.String("media/" + hash + "."),
		MaxKeys: aws.Int32(1),
	})
	if err != nil {
		return "", false, fmt.Errorf("r2 lookup: %w", err)
	}
	if len(out.Contents) == 0 || out.Contents[0].Key == nil {
		return "", false, nil
	}
	return r.publicURL(aws.ToString(out.Contents[0].Key)), true, nil
}

// Upload streams small objects in a single request and splits larger ones
// into multipart chunks.
func (r *R2Service) Upload(ctx context.Context, req UploadRequest) (string, error) {
	key := objectKey(req.Hash, req.Ext)
	input := &s3.PutObjectInput{
		Bucket:      aws.String(r.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(req.Body),
		ContentType: aws.String(req.MimeType),
	}

	if len(req.Body) > ChunkThreshold {
		uploader := manager.NewUploader(r.client, func(u *manager.Uploader) {
			u.PartSize = chunkPartSize
		})
		if _, err := uploader.Upload(ctx, input); err != nil {
			return "", fmt.Errorf("r2 chunked upload: %w", err)
		}
		return r.publicURL(key), nil
	}

	if _, err := r.client.PutObject(ctx, input); err != nil {
		return "", fmt.Errorf("r2 upload: %w", err)
	}
	return r.publicURL(key), nil
}
