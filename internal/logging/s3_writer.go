package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rotisserie/eris"

	"trailblazer_ai/internal/utils"
)

// ObjectPutter is the slice of the S3 API the writer needs.
type ObjectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// BatchWriter persists a batch of audit records and returns where they went.
type BatchWriter interface {
	WriteBatch(ctx context.Context, records []*AuditRecord) (string, error)
}

// S3Writer handles writing batches of audit records to S3
type S3Writer struct {
	client  ObjectPutter
	bucket  string
	prefix  string
	podName string
	logger  *utils.Logger
	now     func() time.Time
}

// NewS3Writer creates a writer using the default AWS credential chain.
// endpoint is optional and switches to path-style addressing for S3-compatible stores.
func NewS3Writer(ctx context.Context, bucket, region, prefix, podName, endpoint string) (*S3Writer, error) {
	if bucket == "" {
		return nil, eris.New("audit bucket is not configured")
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, eris.Wrap(err, "failed to load AWS config")
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	})
	return NewS3WriterWithClient(client, bucket, prefix, podName), nil
}

// NewS3WriterWithClient wraps an existing client.
func NewS3WriterWithClient(client ObjectPutter, bucket, prefix, podName string) *S3Writer {
	return &S3Writer{
		client:  client,
		bucket:  bucket,
		prefix:  prefix,
		podName: podName,
		logger:  utils.NewLogger("s3-writer"),
		now:     time.Now,
	}
}

// objectKey formats audit/2025/11/30/trailblazer-0-20251130-143022-123456789.jsonl
func (w *S3Writer) objectKey(now time.Time) string {
	now = now.UTC()
	return fmt.Sprintf("%s%04d/%02d/%02d/%s-%s-%09d.jsonl",
		w.prefix,
		now.Year(),
		now.Month(),
		now.Day(),
		w.podName,
		now.Format("20060102-150405"),
		now.Nanosecond(),
	)
}

// WriteBatch writes records as one JSON Lines object and returns its key.
func (w *S3Writer) WriteBatch(ctx context.Context, records []*AuditRecord) (string, error) {
	if len(records) == 0 {
		return "", nil
	}

	var buf bytes.Buffer
	encoder := json.NewEncoder(&buf)
	written := 0
	for _, record := range records {
		if record == nil {
			continue
		}
		if err := encoder.Encode(record); err != nil {
			w.logger.Error("Failed to encode audit record", "request_id", record.RequestID, "error", err)
			continue
		}
		written++
	}
	if written == 0 {
		return "", nil
	}

	key := w.objectKey(w.now())
	_, err := w.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(w.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(buf.Bytes()),
		ContentType: aws.String("application/x-ndjson"),
	})
	if err != nil {
		return "", eris.Wrapf(err, "failed to upload %s to S3", key)
	}

	w.logger.Info("Wrote audit batch to S3", "key", key, "count", written, "bytes", buf.Len())
	return key, nil
}
