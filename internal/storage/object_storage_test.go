package storage

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestNewObjectStorageClientDisabledWithoutBucket(t *testing.T) {
	client := newObjectStorageClient(ObjectStorageConfig{})
	if client.Enabled() {
		t.Fatal("expected client disabled without bucket and endpoint")
	}
	if _, err := client.Upload(context.Background(), "key", "text/plain", []byte("x")); err != nil {
		t.Fatalf("noop Upload returned error: %v", err)
	}
	if err := client.Delete(context.Background(), "key"); err != nil {
		t.Fatalf("noop Delete returned error: %v", err)
	}
}

func TestObjectStorageUploadSignsAndTargetsBucket(t *testing.T) {
	var captured *http.Request
	var body []byte
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured = r.Clone(context.Background())
		body, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := newObjectStorageClient(ObjectStorageConfig{
		Endpoint:       server.URL,
		Bucket:         "media",
		Prefix:         "avatars",
		AccessKey:      "AKID",
		SecretKey:      "secret",
		Region:         "us-east-1",
		PublicEndpoint: "https://cdn.example.com",
	})
	if !client.Enabled() {
		t.Fatal("expected client enabled")
	}

	ref, err := client.Upload(context.Background(), "casey.png", "image/png", []byte("pixels"))
	if err != nil {
		t.Fatalf("Upload error: %v", err)
	}
	if ref.Key != "avatars/casey.png" {
		t.Fatalf("expected prefixed key, got %q", ref.Key)
	}
	if ref.URL != "https://cdn.example.com/avatars/casey.png" {
		t.Fatalf("unexpected public URL %q", ref.URL)
	}
	if captured == nil {
		t.Fatal("expected upload request to reach server")
	}
	if captured.URL.Path != "/media/avatars/casey.png" {
		t.Fatalf("unexpected request path %q", captured.URL.Path)
	}
	if string(body) != "pixels" {
		t.Fatalf("unexpected body %q", string(body))
	}
	authorization := captured.Header.Get("Authorization")
	if !strings.HasPrefix(authorization, "AWS4-HMAC-SHA256 Credential=AKID/") {
		t.Fatalf("unexpected authorization header %q", authorization)
	}
	if captured.Header.Get("x-amz-content-sha256") == "" {
		t.Fatal("expected payload hash header")
	}
}

func TestObjectStorageDeletePropagatesFailures(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	client := newObjectStorageClient(ObjectStorageConfig{
		Endpoint: server.URL,
		Bucket:   "media",
	})
	if err := client.Delete(context.Background(), "missing.png"); err == nil {
		t.Fatal("expected delete failure to surface")
	}
}
