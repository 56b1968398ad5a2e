// Package storage uploads finished audio to S3-compatible object storage and
// hands back presigned URLs for playback.
package storage

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"

	"github.com/anqingli/tingshu/internal/infra/config"
)

const audioContentType = "audio/mpeg"

type AudioStore struct {
	client  *s3.S3
	bucket  string
	presign time.Duration
}

// New builds an AudioStore from the S3 configuration. A custom endpoint with
// path-style addressing is used when one is set, which is how MinIO and other
// self-hosted gateways are addressed.
func New(cfg config.S3Config) (*AudioStore, error) {
	awsCfg := aws.NewConfig().WithRegion(cfg.Region)

	if cfg.Endpoint != "" {
		awsCfg = awsCfg.
			WithEndpoint(cfg.Endpoint).
			WithS3ForcePathStyle(true)
	}
	if cfg.AccessKey != "" {
		awsCfg = awsCfg.WithCredentials(
			credentials.NewStaticCredentials(cfg.AccessKey, cfg.SecretKey, ""))
	}

	sess, err := session.NewSession(awsCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create s3 session: %w", err)
	}

	return &AudioStore{
		client:  s3.New(sess),
		bucket:  cfg.Bucket,
		presign: time.Duration(cfg.PresignExpiration) * time.Second,
	}, nil
}

// AudioKey returns the object key for a chapter's audio. The leading two hex
// characters of the book ID hash spread objects across prefixes so no single
// prefix becomes a hot spot on large libraries.
func AudioKey(bookID int64, chapterIndex int) string {
	sum := md5.Sum([]byte(strconv.FormatInt(bookID, 10)))
	prefix := hex.EncodeToString(sum[:])[:2]
	return fmt.Sprintf("audio/%s/%d/%d.mp3", prefix, bookID, chapterIndex)
}

// Upload stores the audio bytes for a chapter and returns the object key.
func (a *AudioStore) Upload(ctx context.Context, bookID int64, chapterIndex int, audio []byte) (string, error) {
	key := AudioKey(bookID, chapterIndex)

	_, err := a.client.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(a.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(audio),
		ContentType:   aws.String(audioContentType),
		ContentLength: aws.Int64(int64(len(audio))),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload %s: %w", key, err)
	}

	return key, nil
}

// PresignedURL returns a time-limited GET URL for the given object key.
func (a *AudioStore) PresignedURL(key string) (string, error) {
	req, _ := a.client.GetObjectRequest(&s3.GetObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(key),
	})

	url, err := req.Presign(a.presign)
	if err != nil {
		return "", fmt.Errorf("failed to presign %s: %w", key, err)
	}

	return url, nil
}
