package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"path/filepath"
	"strings"
	"time"

	"schoolcore/utils"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/google/uuid"
)

type Options struct {
	Region            string
	Bucket            string
	AccessKeyID       string
	SecretAccessKey   string
	MaxFileSize       int64
	AllowedExtensions []string
}

// StorageService keeps uploaded documents such as expenditure receipts in S3.
type StorageService struct {
	s3Client s3iface.S3API
	opts     Options
	now      func() time.Time
}

// NewStorageService creates a new storage service. Empty credentials fall
// back to the default AWS credential chain.
func NewStorageService(opts Options) (*StorageService, error) {
	if opts.Bucket == "" {
		return nil, fmt.Errorf("S3 bucket is required")
	}
	cfg := &aws.Config{Region: aws.String(opts.Region)}
	if opts.AccessKeyID != "" {
		cfg.Credentials = credentials.NewStaticCredentials(opts.AccessKeyID, opts.SecretAccessKey, "")
	}
	sess, err := session.NewSession(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS session: %w", err)
	}
	return NewWithClient(s3.New(sess), opts), nil
}

func NewWithClient(client s3iface.S3API, opts Options) *StorageService {
	return &StorageService{s3Client: client, opts: opts, now: time.Now}
}

type UploadError struct {
	Reason string
}

func (e *UploadError) Error() string { return e.Reason }

// UploadReceipt stores a receipt for an expenditure and returns its URL.
func (s *StorageService) UploadReceipt(ctx context.Context, file *multipart.FileHeader, expenditureID uint) (string, error) {
	if !utils.IsValidFileExtension(file.Filename, s.opts.AllowedExtensions) {
		return "", &UploadError{Reason: fmt.Sprintf("file type of %q is not allowed", file.Filename)}
	}
	if s.opts.MaxFileSize > 0 && file.Size > s.opts.MaxFileSize {
		return "", &UploadError{Reason: fmt.Sprintf("file exceeds %d bytes", s.opts.MaxFileSize)}
	}

	src, err := file.Open()
	if err != nil {
		return "", fmt.Errorf("failed to open file: %w", err)
	}
	defer src.Close()
	body, err := io.ReadAll(src)
	if err != nil {
		return "", fmt.Errorf("failed to read file: %w", err)
	}

	now := s.now()
	ext := getFileExtension(file.Filename)
	key := fmt.Sprintf("receipts/expenditures/%d/%d/%02d/%s.%s", expenditureID, now.Year(), now.Month(), uuid.NewString(), ext)
	if err := s.put(ctx, key, body, getContentType(ext)); err != nil {
		return "", err
	}
	return s.URLFor(key), nil
}

func (s *StorageService) put(ctx context.Context, key string, body []byte, contentType string) error {
	_, err := s.s3Client.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.opts.Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("failed to upload to S3: %w", err)
	}
	return nil
}

// URLFor returns the object URL of key.
func (s *StorageService) URLFor(key string) string {
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", s.opts.Bucket, s.opts.Region, key)
}

// DeleteFile deletes a file from S3
func (s *StorageService) DeleteFile(ctx context.Context, fileURL string) error {
	key := extractKeyFromURL(fileURL)
	if key == "" {
		return fmt.Errorf("invalid file URL")
	}
	_, err := s.s3Client.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.opts.Bucket),
		Key:    aws.String(key),
	})
	return err
}

func getFileExtension(filename string) string {
	ext := filepath.Ext(filename)
	if len(ext) > 1 {
		return strings.ToLower(ext[1:])
	}
	return ""
}

func getContentType(extension string) string {
	switch strings.ToLower(extension) {
	case "jpg", "jpeg":
		return "image/jpeg"
	case "png":
		return "image/png"
	case "pdf":
		return "application/pdf"
	case "csv":
		return "text/csv"
	case "xlsx":
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	default:
		return "application/octet-stream"
	}
}

// extractKeyFromURL extracts the S3 key from a full URL
func extractKeyFromURL(url string) string {
	// https://bucket.s3.region.amazonaws.com/path/to/file.ext
	parts := strings.Split(url, ".amazonaws.com/")
	if len(parts) != 2 {
		return ""
	}
	return parts[1]
}
