package export

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"

	"github.com/aliyun/alibabacloud-oss-go-sdk-v2/oss"
	"github.com/aliyun/alibabacloud-oss-go-sdk-v2/oss/credentials"
	"github.com/xiaoyuanzhu-com/screenshot-taker/gallery"
	"github.com/xiaoyuanzhu-com/screenshot-taker/log"
)

// ErrOSSDisabled is returned by a sink created without credentials
var ErrOSSDisabled = errors.New("OSS export not configured")

// OSSConfig holds bucket credentials
type OSSConfig struct {
	Region          string
	Bucket          string
	AccessKeyID     string
	AccessKeySecret string
	// Prefix is prepended to every object key
	Prefix string
}

type objectPutter interface {
	PutObject(ctx context.Context, request *oss.PutObjectRequest, optFns ...func(*oss.Options)) (*oss.PutObjectResult, error)
}

// OSSSink uploads entries to an Aliyun OSS bucket
type OSSSink struct {
	src    Source
	client objectPutter
	bucket string
	prefix string
}

// NewOSSSink creates a sink. Without a bucket and credentials every upload
// fails with ErrOSSDisabled.
func NewOSSSink(src Source, cfg OSSConfig) *OSSSink {
	s := &OSSSink{src: src, bucket: cfg.Bucket, prefix: cfg.Prefix}
	if cfg.Bucket == "" || cfg.AccessKeyID == "" || cfg.AccessKeySecret == "" {
		log.Warn().Msg("OSS credentials not configured, cloud export disabled")
		return s
	}

	region := cfg.Region
	if region == "" {
		region = "oss-cn-beijing"
	}
	credProvider := credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.AccessKeySecret)
	ossCfg := oss.LoadDefaultConfig().
		WithCredentialsProvider(credProvider).
		WithRegion(region)
	s.client = oss.NewClient(ossCfg)

	log.Info().Str("region", region).Str("bucket", cfg.Bucket).Msg("OSS export initialized")
	return s
}

// Enabled reports whether the sink has a client
func (s *OSSSink) Enabled() bool {
	return s.client != nil
}

// key returns the object key for an entry holding data
func (s *OSSSink) key(e gallery.Entry, data []byte) string {
	return path.Join(s.prefix, fileName(e.Filename, data))
}

// Upload puts each entry under Prefix/filename. Written holds object keys.
func (s *OSSSink) Upload(ctx context.Context, entries []gallery.Entry) (Report, error) {
	report := Report{Attempted: len(entries), Written: []string{}}
	if s.client == nil {
		return report, ErrOSSDisabled
	}

	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			report.fail(e.ID, err)
			continue
		}
		data, ok := s.src.EnsureLoaded(ctx, e.ID)
		if !ok {
			report.fail(e.ID, gallery.ErrUnavailable)
			continue
		}

		key := s.key(e, data)
		_, err := s.client.PutObject(ctx, &oss.PutObjectRequest{
			Bucket: oss.Ptr(s.bucket),
			Key:    oss.Ptr(key),
			Body:   bytes.NewReader(data),
		})
		if err != nil {
			report.fail(e.ID, fmt.Errorf("upload to OSS: %w", err))
			continue
		}
		report.Written = append(report.Written, key)
		log.Debug().Int64("id", e.ID).Str("ossKey", key).Msg("uploaded screenshot to OSS")
	}

	log.Info().
		Str("bucket", s.bucket).
		Int("uploaded", len(report.Written)).
		Int("failed", len(report.Failed)).
		Msg("exported screenshots to OSS")
	return report, nil
}
