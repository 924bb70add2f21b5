package storage

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"strings"
	"testing"
	"time"

	"gigchat/config"

	"cloud.google.com/go/storage"
)

func testAccount(t *testing.T) *config.ServiceAccount {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatal(err)
	}
	block := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})
	return &config.ServiceAccount{ClientEmail: "uploader@gigchat.iam.gserviceaccount.com", PrivateKey: string(block)}
}

func TestUploadURLSignsPut(t *testing.T) {
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	var got *storage.SignedURLOptions
	var gotObject string
	sign := func(bucket, object string, opts *storage.SignedURLOptions) (string, error) {
		got, gotObject = opts, object
		return "https://signed.example.com/" + bucket + "/" + object, nil
	}
	svc, err := newSignedURLService(&config.ServiceAccount{ClientEmail: "a@b", PrivateKey: "k"}, "media-bucket", 10*time.Minute, sign, func() time.Time { return now })
	if err != nil {
		t.Fatal(err)
	}

	ticket, err := svc.UploadURL(context.Background(), "chat-1", KindVoice, "audio/mp4")
	if err != nil {
		t.Fatalf("UploadURL: %v", err)
	}
	if !strings.HasPrefix(ticket.Object, "chats/chat-1/voice/") || !strings.HasSuffix(ticket.Object, ".m4a") {
		t.Fatalf("object = %q", ticket.Object)
	}
	if gotObject != ticket.Object || got.Method != "PUT" || got.ContentType != "audio/mp4" || got.Scheme != storage.SigningSchemeV4 {
		t.Fatalf("sign options = %+v for %q", got, gotObject)
	}
	if !ticket.ExpiresAt.Equal(now.Add(10 * time.Minute)) {
		t.Fatalf("expires at %s", ticket.ExpiresAt)
	}
	if !strings.Contains(ticket.ObjectURL, "media-bucket") || strings.Contains(ticket.ObjectURL, "chats/chat-1") {
		t.Fatalf("object url should escape the path: %s", ticket.ObjectURL)
	}
}

func TestUploadURLRejectsUnknownTypes(t *testing.T) {
	svc, err := newSignedURLService(testAccount(t), "media-bucket", 0, storage.SignedURL, time.Now)
	if err != nil {
		t.Fatal(err)
	}
	cases := []struct{ kind, contentType string }{
		{KindVoice, "image/png"},
		{KindPhoto, "application/pdf"},
		{"video", "video/mp4"},
	}
	for _, tc := range cases {
		if _, err := svc.UploadURL(context.Background(), "chat-1", tc.kind, tc.contentType); !errors.Is(err, ErrUnsupportedMedia) {
			t.Errorf("UploadURL(%s, %s) err = %v, want ErrUnsupportedMedia", tc.kind, tc.contentType, err)
		}
	}
}

func TestUploadURLWithRealSigner(t *testing.T) {
	svc, err := newSignedURLService(testAccount(t), "media-bucket", 5*time.Minute, storage.SignedURL, time.Now)
	if err != nil {
		t.Fatal(err)
	}
	ticket, err := svc.UploadURL(context.Background(), "chat-9", KindPhoto, "image/JPEG")
	if err != nil {
		t.Fatalf("UploadURL: %v", err)
	}
	if !strings.Contains(ticket.UploadURL, "media-bucket") || !strings.Contains(ticket.UploadURL, "X-Goog-Signature=") {
		t.Fatalf("upload url = %s", ticket.UploadURL)
	}
	if !strings.HasSuffix(ticket.Object, ".jpg") {
		t.Fatalf("object = %q", ticket.Object)
	}
}

func TestNewServiceNeedsBucket(t *testing.T) {
	if _, err := newSignedURLService(testAccount(t), "", time.Minute, storage.SignedURL, time.Now); err == nil {
		t.Fatal("expected an error without a bucket")
	}
}
