package s3store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"

	"github.com/zarlcorp/zpass/internal/artifact"
	"github.com/zarlcorp/zpass/internal/passport"
)

// fakes

type putCall struct {
	bucket      string
	key         string
	contentType string
	body        []byte
}

type fakePutter struct {
	calls []putCall
	err   error
}

func (f *fakePutter) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	body, _ := io.ReadAll(in.Body)
	f.calls = append(f.calls, putCall{
		bucket:      aws.ToString(in.Bucket),
		key:         aws.ToString(in.Key),
		contentType: aws.ToString(in.ContentType),
		body:        body,
	})
	if f.err != nil {
		return nil, f.err
	}
	return &s3.PutObjectOutput{}, nil
}

func testArtifact() artifact.Artifact {
	return artifact.Artifact{
		Name:        "Ada Lovelace",
		Description: "Ada Lovelace's Passport",
		ContentType: "image/png",
		FileName:    "passport.png",
		Image:       []byte("png bytes"),
	}
}

func hashKey(data []byte) string {
	sum := sha256.Sum256(data)
	return "sha256/" + hex.EncodeToString(sum[:])
}

// tests

func TestUploadContentAddressed(t *testing.T) {
	api := &fakePutter{}
	s := &Store{bucket: "passports", api: api}

	loc, err := s.Upload(context.Background(), testArtifact())
	if err != nil {
		t.Fatalf("upload: %v", err)
	}

	if len(api.calls) != 2 {
		t.Fatalf("puts: got %d, want 2", len(api.calls))
	}

	img := api.calls[0]
	if img.bucket != "passports" {
		t.Errorf("bucket: got %q", img.bucket)
	}
	if img.key != hashKey([]byte("png bytes")) {
		t.Errorf("image key: got %q", img.key)
	}
	if img.contentType != "image/png" {
		t.Errorf("image content type: got %q", img.contentType)
	}

	meta := api.calls[1]
	if meta.contentType != "application/json" {
		t.Errorf("metadata content type: got %q", meta.contentType)
	}
	if meta.key != hashKey(meta.body) {
		t.Errorf("metadata key should be its content hash: %q", meta.key)
	}

	var doc metadata
	if err := json.Unmarshal(meta.body, &doc); err != nil {
		t.Fatalf("metadata json: %v", err)
	}
	if doc.Name != "Ada Lovelace" || doc.Description != "Ada Lovelace's Passport" {
		t.Errorf("metadata: %+v", doc)
	}
	if doc.Image != "s3://passports/"+img.key {
		t.Errorf("metadata image: got %q", doc.Image)
	}

	if want := passport.Locator("s3://passports/" + meta.key); loc != want {
		t.Errorf("locator: got %q, want %q", loc, want)
	}
}

func TestUploadStableLocator(t *testing.T) {
	s := &Store{bucket: "b", api: &fakePutter{}}

	a, err := s.Upload(context.Background(), testArtifact())
	if err != nil {
		t.Fatal(err)
	}
	b, err := s.Upload(context.Background(), testArtifact())
	if err != nil {
		t.Fatal(err)
	}
	if a != b {
		t.Errorf("same content should give the same locator: %q vs %q", a, b)
	}
}

func TestUploadAuthError(t *testing.T) {
	api := &fakePutter{err: &smithy.GenericAPIError{Code: "InvalidAccessKeyId", Message: "bad key"}}
	s := &Store{bucket: "b", api: api}

	_, err := s.Upload(context.Background(), testArtifact())
	if !errors.Is(err, passport.ErrStorageAuth) {
		t.Fatalf("got %v, want ErrStorageAuth", err)
	}
	if len(api.calls) != 1 {
		t.Errorf("should stop after the failed image put, got %d calls", len(api.calls))
	}
}

func TestUploadUnavailable(t *testing.T) {
	tests := []error{
		&smithy.GenericAPIError{Code: "InternalError", Message: "try later"},
		errors.New("dial tcp: connection refused"),
	}

	for _, apiErr := range tests {
		s := &Store{bucket: "b", api: &fakePutter{err: apiErr}}
		_, err := s.Upload(context.Background(), testArtifact())
		if !errors.Is(err, passport.ErrStorageUnavailable) {
			t.Errorf("%v: got %v, want ErrStorageUnavailable", apiErr, err)
		}
	}
}

func TestNewRequiresCredentials(t *testing.T) {
	_, err := New(context.Background(), Config{Bucket: "b"})
	if !errors.Is(err, passport.ErrStorageAuth) {
		t.Fatalf("got %v, want ErrStorageAuth", err)
	}

	_, err = New(context.Background(), Config{AccessKeyID: "k", SecretAccessKey: "s"})
	if err == nil || !strings.Contains(err.Error(), "bucket") {
		t.Fatalf("missing bucket should fail, got %v", err)
	}
	if passport.KindOf(err) != passport.KindStorage {
		t.Errorf("kind: got %s, want storage", passport.KindOf(err))
	}
}

func TestConfigConfigured(t *testing.T) {
	if (Config{}).Configured() {
		t.Error("empty config should not be configured")
	}
	if !(Config{Bucket: "b", AccessKeyID: "k", SecretAccessKey: "s"}).Configured() {
		t.Error("complete config should be configured")
	}
}
