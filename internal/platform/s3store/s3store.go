// Package s3store keeps raw uploaded documents in an S3 bucket and hands
// out presigned URLs for download.
package s3store

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/google/uuid"
)

type Store struct {
	s3Client s3iface.S3API
	bucket   string
}

func New(s3Client s3iface.S3API, bucket string) *Store {
	return &Store{s3Client: s3Client, bucket: bucket}
}

// Put uploads the document bytes under key and returns the key as the
// storage locator.
func (s *Store) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	_, err := s.s3Client.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("put object failed: %w", err)
	}
	return key, nil
}

// PresignedURL returns a time-limited GET URL for the stored object.
func (s *Store) PresignedURL(key string, ttl time.Duration) (string, error) {
	req, _ := s.s3Client.GetObjectRequest(&s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	url, err := req.Presign(ttl)
	if err != nil {
		return "", fmt.Errorf("presign url failed: %w", err)
	}
	return url, nil
}

// UploadKey mints the storage key for a user's upload. The random element
// keeps re-uploads of the same filename from colliding.
func UploadKey(userID uint, filename string) string {
	return fmt.Sprintf("uploads/%d/%s-%s", userID, uuid.NewString(), filename)
}

// ContentType guesses the MIME type from the filename extension.
func ContentType(filename string) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".pdf":
		return "application/pdf"
	case ".docx":
		return "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	case ".txt":
		return "text/plain"
	case ".md":
		return "text/markdown"
	default:
		return "application/octet-stream"
	}
}
