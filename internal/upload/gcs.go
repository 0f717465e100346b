package upload

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"github.com/Lllllllleong/casedocflow/internal/gcp"
)

// GCSStore keeps artifacts in a Cloud Storage bucket.
type GCSStore struct {
	bucket      *storage.BucketHandle
	bucketName  string
	signerEmail string
}

func NewGCSStore(client *storage.Client, bucket, signerEmail string) *GCSStore {
	return &GCSStore{
		bucket:      client.Bucket(bucket),
		bucketName:  bucket,
		signerEmail: signerEmail,
	}
}

func (g *GCSStore) Put(ctx context.Context, objectPath string, data []byte, contentType string) (string, error) {
	if err := gcp.WriteObjectAtomically(ctx, g.bucket, objectPath, data, contentType); err != nil {
		return "", err
	}
	return fmt.Sprintf("gs://%s/%s", g.bucketName, objectPath), nil
}

// TeamLink is the authenticated browser URL. Access is governed by the
// bucket's IAM policy, so only principals of the owning team can open it.
func (g *GCSStore) TeamLink(_ context.Context, objectPath string) (string, error) {
	return authenticatedURL(g.bucketName, objectPath), nil
}

func authenticatedURL(bucket, objectPath string) string {
	segments := strings.Split(objectPath, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return "https://storage.cloud.google.com/" + bucket + "/" + strings.Join(segments, "/")
}

// PublicLink is a V4 signed URL.
func (g *GCSStore) PublicLink(_ context.Context, objectPath string, expiry time.Duration) (string, error) {
	opts := &storage.SignedURLOptions{
		Scheme:  storage.SigningSchemeV4,
		Method:  http.MethodGet,
		Expires: time.Now().Add(expiry),
	}
	if g.signerEmail != "" {
		opts.GoogleAccessID = g.signerEmail
	}
	link, err := g.bucket.SignedURL(objectPath, opts)
	if err != nil {
		return "", fmt.Errorf("failed to sign URL for %s: %w", objectPath, err)
	}
	return link, nil
}
