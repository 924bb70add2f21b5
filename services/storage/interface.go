package storage

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"gigchat/config"

	"cloud.google.com/go/storage"
	"github.com/google/uuid"
)

// Media kinds a chat can upload.
const (
	KindVoice = "voice"
	KindPhoto = "photo"
)

var ErrUnsupportedMedia = errors.New("unsupported media type")

// contentTypes lists the accepted content types per kind and their object extension.
var contentTypes = map[string]map[string]string{
	KindVoice: {
		"audio/mp4":  ".m4a",
		"audio/mpeg": ".mp3",
		"audio/aac":  ".aac",
		"audio/ogg":  ".ogg",
		"audio/webm": ".webm",
	},
	KindPhoto: {
		"image/jpeg": ".jpg",
		"image/png":  ".png",
		"image/webp": ".webp",
		"image/heic": ".heic",
	},
}

// UploadTicket lets a client PUT one object directly to the bucket. ObjectURL is
// what the client puts in the message metadata once the upload succeeds.
type UploadTicket struct {
	UploadURL   string    `json:"upload_url"`
	Method      string    `json:"method"`
	ContentType string    `json:"content_type"`
	Object      string    `json:"object"`
	ObjectURL   string    `json:"object_url"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// StorageService issues upload URLs for chat media.
type StorageService interface {
	UploadURL(ctx context.Context, chatID, kind, contentType string) (*UploadTicket, error)
}

// SignerFunc matches storage.SignedURL.
type SignerFunc func(bucket, object string, opts *storage.SignedURLOptions) (string, error)

// FirebaseStorageService signs V4 upload URLs for the Firebase Storage bucket.
type FirebaseStorageService struct {
	bucketName     string
	serviceAccount *config.ServiceAccount
	ttl            time.Duration
	sign           SignerFunc
	now            func() time.Time
}

// NewFirebaseStorageService creates a new FirebaseStorageService.
func NewFirebaseStorageService(serviceAccountJSONPath, bucketName string, ttl time.Duration) (*FirebaseStorageService, error) {
	sa, err := config.LoadServiceAccount(serviceAccountJSONPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load service account for signing URLs: %w", err)
	}
	return newSignedURLService(sa, bucketName, ttl, storage.SignedURL, time.Now)
}

func newSignedURLService(sa *config.ServiceAccount, bucketName string, ttl time.Duration, sign SignerFunc, now func() time.Time) (*FirebaseStorageService, error) {
	if bucketName == "" {
		return nil, errors.New("storage bucket is not configured")
	}
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &FirebaseStorageService{
		bucketName:     bucketName,
		serviceAccount: sa,
		ttl:            ttl,
		sign:           sign,
		now:            now,
	}, nil
}

// UploadURL returns a signed PUT URL for a new object under chats/<chatID>/<kind>/.
func (s *FirebaseStorageService) UploadURL(ctx context.Context, chatID, kind, contentType string) (*UploadTicket, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ext, ok := contentTypes[kind][strings.ToLower(contentType)]
	if !ok {
		return nil, fmt.Errorf("%w: %s %q", ErrUnsupportedMedia, kind, contentType)
	}
	object := fmt.Sprintf("chats/%s/%s/%s%s", chatID, kind, uuid.New().String(), ext)
	expiresAt := s.now().Add(s.ttl)

	signed, err := s.sign(s.bucketName, object, &storage.SignedURLOptions{
		GoogleAccessID: s.serviceAccount.ClientEmail,
		PrivateKey:     []byte(strings.ReplaceAll(s.serviceAccount.PrivateKey, `\n`, "\n")),
		Method:         "PUT",
		ContentType:    contentType,
		Expires:        expiresAt,
		Scheme:         storage.SigningSchemeV4,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to generate signed URL: %w", err)
	}
	return &UploadTicket{
		UploadURL:   signed,
		Method:      "PUT",
		ContentType: contentType,
		Object:      object,
		ObjectURL:   objectURL(s.bucketName, object),
		ExpiresAt:   expiresAt,
	}, nil
}

// objectURL is the Firebase download URL of an object.
func objectURL(bucket, object string) string {
	return fmt.Sprintf("https://firebasestorage.googleapis.com/v0/b/%s/o/%s?alt=media", bucket, url.QueryEscape(object))
}
