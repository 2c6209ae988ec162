package logging

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Runs against an S3-compatible store such as MinIO when MINIO_ENDPOINT is set:
//
//	docker run -d -p 9000:9000 minio/minio server /data
//	MINIO_ENDPOINT=http://localhost:9000 go test ./internal/logging -run TestS3Integration

const integrationBucket = "test-trailblazer-audit"

func minioEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// minioClient skips the test unless a store is reachable, and returns a client
// with a fresh bucket.
func minioClient(t *testing.T) (*s3.Client, string) {
	t.Helper()
	endpoint := os.Getenv("MINIO_ENDPOINT")
	if endpoint == "" {
		t.Skip("MINIO_ENDPOINT not set")
	}
	accessKey := minioEnv("MINIO_ACCESS_KEY", "minioadmin")
	secretKey := minioEnv("MINIO_SECRET_KEY", "minioadmin")

	ctx := context.Background()
	cfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion("us-east-1"),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(accessKey, secretKey, "")),
	)
	require.NoError(t, err)
	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(endpoint)
		o.UsePathStyle = true
	})

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if _, err := client.ListBuckets(pingCtx, &s3.ListBucketsInput{}); err != nil {
		t.Skipf("store not reachable: %v", err)
	}
	if _, err := client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(integrationBucket)}); err != nil {
		_, err = client.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String(integrationBucket)})
		require.NoError(t, err)
	}

	prefix := fmt.Sprintf("it-%d/", time.Now().UnixNano())
	t.Cleanup(func() {
		listed, err := client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket: aws.String(integrationBucket),
			Prefix: aws.String(prefix),
		})
		if err != nil {
			return
		}
		for _, obj := range listed.Contents {
			_, _ = client.DeleteObject(ctx, &s3.DeleteObjectInput{Bucket: aws.String(integrationBucket), Key: obj.Key})
		}
	})
	return client, prefix
}

func TestS3Integration_WriteBatch(t *testing.T) {
	client, prefix := minioClient(t)
	ctx := context.Background()

	// goes through the credential chain the service uses
	t.Setenv("AWS_ACCESS_KEY_ID", minioEnv("MINIO_ACCESS_KEY", "minioadmin"))
	t.Setenv("AWS_SECRET_ACCESS_KEY", minioEnv("MINIO_SECRET_KEY", "minioadmin"))
	writer, err := NewS3Writer(ctx, integrationBucket, "us-east-1", prefix, "test-pod", os.Getenv("MINIO_ENDPOINT"))
	require.NoError(t, err)

	records := []*AuditRecord{testRecord("req-1"), testRecord("req-2"), testRecord("req-3")}
	key, err := writer.WriteBatch(ctx, records)
	require.NoError(t, err)
	assert.Regexp(t, `^`+prefix+`\d{4}/\d{2}/\d{2}/test-pod-`, key)

	out, err := client.GetObject(ctx, &s3.GetObjectInput{Bucket: aws.String(integrationBucket), Key: aws.String(key)})
	require.NoError(t, err)
	defer out.Body.Close()

	var ids []string
	scanner := bufio.NewScanner(out.Body)
	for scanner.Scan() {
		var rec AuditRecord
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &rec))
		ids = append(ids, rec.RequestID)
	}
	require.NoError(t, scanner.Err())
	assert.Equal(t, []string{"req-1", "req-2", "req-3"}, ids)
}

func TestS3Integration_ShutdownFlushesBuffer(t *testing.T) {
	client, prefix := minioClient(t)

	writer := NewS3WriterWithClient(client, integrationBucket, prefix, "test-pod")
	sink := NewSinkWithWriter(S3SinkConfig{FlushSize: 1000, FlushInterval: time.Hour}, nil, writer)
	for i := 0; i < 25; i++ {
		require.NoError(t, sink.Enqueue(testRecord(fmt.Sprintf("req-%d", i))))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, sink.Shutdown(ctx))

	listed, err := client.ListObjectsV2(context.Background(), &s3.ListObjectsV2Input{
		Bucket: aws.String(integrationBucket),
		Prefix: aws.String(prefix),
	})
	require.NoError(t, err)
	assert.Len(t, listed.Contents, 1)
}
