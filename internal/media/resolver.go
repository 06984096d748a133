package media

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/rentdesk/rentdesk-platform/internal/whatsapp"
	"github.com/rentdesk/rentdesk-platform/pkg/logging"
)

// Fetcher retrieves media from the provider; satisfied by whatsapp.Client.
type Fetcher interface {
	GetMediaInfo(ctx context.Context, mediaID string) (*whatsapp.MediaInfo, error)
	DownloadMedia(ctx context.Context, mediaURL string) ([]byte, error)
}

// S3API is the subset of the S3 client used by Resolver.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Resolved is the durable location of a piece of media.
type Resolved struct {
	URL      string
	MimeType string
	FileSize int64
}

// Resolver copies provider media to object storage. Provider media URLs
// expire after minutes, so resolution happens inline while the webhook is
// being processed; any failure degrades to storing the message without media.
type Resolver struct {
	fetcher Fetcher
	s3      S3API
	bucket  string
	cdnBase string
	logger  *logging.Logger
	now     func() time.Time
}

// NewResolver creates a Resolver. If bucket is empty or the S3 client is nil,
// resolution is disabled and Resolve always returns nil.
func NewResolver(fetcher Fetcher, s3Client S3API, bucket, cdnBaseURL string, logger *logging.Logger) *Resolver {
	if logger == nil {
		logger = logging.Default()
	}
	return &Resolver{
		fetcher: fetcher,
		s3:      s3Client,
		bucket:  bucket,
		cdnBase: strings.TrimRight(cdnBaseURL, "/"),
		logger:  logger,
		now:     time.Now,
	}
}

// Enabled reports whether media resolution is configured.
func (r *Resolver) Enabled() bool {
	return r != nil && r.fetcher != nil && r.s3 != nil && r.bucket != ""
}

// Resolve downloads the media and re-uploads it under a stable key. It never
// returns an error: a nil result means the message should be stored without
// a media URL, which the dashboard renders as "media unavailable".
func (r *Resolver) Resolve(ctx context.Context, mediaID string) *Resolved {
	if !r.Enabled() || mediaID == "" {
		return nil
	}

	info, err := r.fetcher.GetMediaInfo(ctx, mediaID)
	if err != nil {
		r.logger.Error("media info lookup failed", "error", err, "media_id", mediaID)
		return nil
	}

	data, err := r.fetcher.DownloadMedia(ctx, info.URL)
	if err != nil {
		r.logger.Error("media download failed", "error", err, "media_id", mediaID)
		return nil
	}

	key := fmt.Sprintf("whatsapp/%d-%s.%s", r.now().UnixMilli(), mediaID, extensionFor(info.MimeType))
	_, err = r.s3.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(r.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(info.MimeType),
	})
	if err != nil {
		r.logger.Error("media upload failed", "error", err, "media_id", mediaID, "key", key)
		return nil
	}

	r.logger.Info("resolved media", "media_id", mediaID, "key", key, "size", len(data))
	return &Resolved{
		URL:      r.cdnBase + "/" + key,
		MimeType: info.MimeType,
		FileSize: int64(len(data)),
	}
}

// extensionFor derives a file extension from the MIME subtype. Parameters
// ("audio/ogg; codecs=opus") are stripped.
func extensionFor(mimeType string) string {
	if i := strings.IndexByte(mimeType, ';'); i >= 0 {
		mimeType = mimeType[:i]
	}
	_, subtype, ok := strings.Cut(strings.TrimSpace(mimeType), "/")
	if !ok || subtype == "" {
		return "bin"
	}
	return subtype
}
