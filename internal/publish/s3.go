package publish

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/teemow/depobot/internal/apperrors"
	"github.com/teemow/depobot/internal/instrumentation"
	"github.com/teemow/depobot/internal/logging"
)

const serviceName = instrumentation.ServiceS3

// PresignExpiry is how long an upload URL stays valid.
const PresignExpiry = time.Hour

// ContentType is sent for every uploaded transcript.
const ContentType = "text/plain"

// Presigner signs PutObject requests. *s3.PresignClient implements it.
type Presigner interface {
	PresignPutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// Config identifies the bucket and the static credentials used to sign.
type Config struct {
	Bucket          string
	Region          string
	AccessKeyID     string
	SecretAccessKey string

	// Endpoint overrides the S3 endpoint for S3 compatible stores. It
	// switches the client to path-style addressing.
	Endpoint string
}

// S3Publisher uploads files below a local root to the bucket, keeping
// their path relative to the root's parent as the object key.
type S3Publisher struct {
	bucket    string
	rootDir   string
	presigner Presigner
	http      *http.Client
	logger    *slog.Logger
}

// NewS3Publisher builds a publisher signing with cfg's static credentials.
// rootDir is the local transcripts directory; its base name becomes the
// first key segment.
func NewS3Publisher(cfg Config, rootDir string, httpClient *http.Client, logger *slog.Logger) (*S3Publisher, error) {
	if cfg.Bucket == "" || cfg.Region == "" {
		return nil, fmt.Errorf("s3 bucket and region are required")
	}

	awsCfg := aws.Config{
		Region:      cfg.Region,
		Credentials: credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return NewWithPresigner(cfg.Bucket, rootDir, s3.NewPresignClient(client), httpClient, logger), nil
}

// NewWithPresigner builds a publisher around an existing presigner.
func NewWithPresigner(bucket, rootDir string, presigner Presigner, httpClient *http.Client, logger *slog.Logger) *S3Publisher {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &S3Publisher{
		bucket:    bucket,
		rootDir:   rootDir,
		presigner: presigner,
		http:      httpClient,
		logger:    logging.WithService(logging.OrDefault(logger), serviceName),
	}
}

// RemoteKey maps a file below rootDir to its object key, e.g.
// meeting_transcripts/123/2024-03-05_14-00-00-000Z_formatted.txt.
func RemoteKey(rootDir, localPath string) (string, error) {
	rel, err := filepath.Rel(rootDir, localPath)
	if err != nil {
		return "", apperrors.InvalidArgument("%s is not below %s", localPath, rootDir)
	}
	rel = filepath.ToSlash(rel)
	if rel == "." || rel == ".." || strings.HasPrefix(rel, "../") {
		return "", apperrors.InvalidArgument("%s is not below %s", localPath, rootDir)
	}
	return path.Join(filepath.Base(rootDir), rel), nil
}

// Publish uploads localPath and returns its object key.
func (p *S3Publisher) Publish(ctx context.Context, localPath string) (string, error) {
	key, err := RemoteKey(p.rootDir, localPath)
	if err != nil {
		return "", err
	}

	data, err := os.ReadFile(localPath)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", localPath, err)
	}

	presigned, err := p.presigner.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(p.bucket),
		Key:         aws.String(key),
		ContentType: aws.String(ContentType),
	}, s3.WithPresignExpires(PresignExpiry))
	if err != nil {
		return "", fmt.Errorf("failed to presign upload for %s: %w", key, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, presigned.URL, bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("failed to build upload request: %w", err)
	}
	for name, values := range presigned.SignedHeader {
		if strings.EqualFold(name, "Host") {
			continue
		}
		for _, v := range values {
			req.Header.Add(name, v)
		}
	}
	req.Header.Set("Content-Type", ContentType)
	req.ContentLength = int64(len(data))

	resp, err := p.http.Do(req)
	if err != nil {
		return "", apperrors.Transport(serviceName, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return "", apperrors.Upstream(serviceName, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	p.logger.Info("transcript uploaded", slog.String("key", key), slog.Int("bytes", len(data)))
	return key, nil
}
