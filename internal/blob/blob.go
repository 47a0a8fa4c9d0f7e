// Package blob writes wallpaper images to an S3-compatible object store
// (AWS S3, Cloudflare R2 or MinIO through a custom endpoint).
//
// Writes are create-only: a key that already exists is reported as
// ErrExists and the stored object is left untouched.
package blob

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"github.com/rs/zerolog/log"
)

// ErrExists is returned by Put when the key is already present.
var ErrExists = errors.New("blob: object already exists")

// ContentTypeJPEG is the content type of every stored wallpaper variant.
const ContentTypeJPEG = "image/jpeg"

// Object describes the non-body attributes of a write.
type Object struct {
	ContentType string
	Metadata    map[string]string
}

// Store is the object-store surface the pipeline depends on.
type Store interface {
	Put(ctx context.Context, key string, data []byte, obj Object) error
}

// FullKey is the storage key of the full-resolution variant.
func FullKey(filename string) string { return filename + ".jpg" }

// DownscaledKey is the storage key of the downscaled preview variant.
func DownscaledKey(filename string) string { return filename + "_downscaled.jpg" }

// CategoryMetadata is the metadata attached to both variants of a wallpaper.
func CategoryMetadata(category string) map[string]string {
	return map[string]string{"category": category}
}

// s3API is the subset of the S3 client used by S3Store.
type s3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Store implements Store on an S3 bucket.
type S3Store struct {
	client        s3API
	bucket        string
	publicBaseURL string
}

// Compile-time interface check.
var _ Store = (*S3Store)(nil)

// NewS3Store creates an S3Store. publicBaseURL is the prefix under which the
// bucket is served publicly; it may be empty when no public URL is needed.
func NewS3Store(client *s3.Client, bucket, publicBaseURL string) *S3Store {
	return &S3Store{
		client:        client,
		bucket:        bucket,
		publicBaseURL: strings.TrimRight(publicBaseURL, "/"),
	}
}

// Put uploads data under key with If-None-Match: * so that an existing object
// is never replaced.
func (s *S3Store) Put(ctx context.Context, key string, data []byte, obj Object) error {
	log.Debug().
		Str("bucket", s.bucket).
		Str("key", key).
		Int("size", len(data)).
		Msg("Uploading object")

	contentType := obj.ContentType
	if contentType == "" {
		contentType = ContentTypeJPEG
	}
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        &s.bucket,
		Key:           &key,
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   &contentType,
		Metadata:      obj.Metadata,
		IfNoneMatch:   aws.String("*"),
	})
	if err != nil {
		if isPreconditionFailed(err) {
			return fmt.Errorf("put %s: %w", key, ErrExists)
		}
		return fmt.Errorf("failed to upload %s to S3: %w", key, err)
	}

	log.Info().Str("key", key).Int("size", len(data)).Msg("Object uploaded")
	return nil
}

// URL returns the public URL of key, or the bare key when no public base URL
// is configured.
func (s *S3Store) URL(key string) string {
	if s.publicBaseURL == "" {
		return key
	}
	return s.publicBaseURL + "/" + key
}

func isPreconditionFailed(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "PreconditionFailed", "ConditionalRequestConflict":
			return true
		}
	}
	var respErr interface{ HTTPStatusCode() int }
	if errors.As(err, &respErr) {
		return respErr.HTTPStatusCode() == http.StatusPreconditionFailed
	}
	return false
}
