package gcs

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"cloud.google.com/go/storage"
)

// Client is a thin wrapper over the GCS SDK scoped to a single bucket.
// The recording store uses it as its remote backend.
type Client struct {
	client     *storage.Client
	bucketName string
}

func NewClient(ctx context.Context, bucketName string) (*Client, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create gcs client: %v", err)
	}

	return &Client{
		client:     client,
		bucketName: bucketName,
	}, nil
}

// Upload streams content to objectPath in the bucket and returns the
// object's gs:// URI. Buckets are private; hand the URI to
// GetPresignedURL to mint a shareable link.
func (g *Client) Upload(ctx context.Context, objectPath string, content io.Reader) (string, error) {
	obj := g.client.Bucket(g.bucketName).Object(objectPath)

	writer := obj.NewWriter(ctx)
	if _, err := io.Copy(writer, content); err != nil {
		return "", fmt.Errorf("failed to copy content: %v", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("failed to close writer: %v", err)
	}

	return fmt.Sprintf("gs://%s/%s", g.bucketName, objectPath), nil
}

// GetPresignedURL returns a V4 signed GET URL for a gs:// URI.
func (g *Client) GetPresignedURL(ctx context.Context, gcsURI string, expiresAt time.Time) (string, error) {
	opts := &storage.SignedURLOptions{
		Scheme:  storage.SigningSchemeV4,
		Method:  "GET",
		Expires: expiresAt,
	}

	bucketName := strings.TrimPrefix(gcsURI, "gs://")
	bucketName = strings.Split(bucketName, "/")[0]
	objectPath := strings.TrimPrefix(gcsURI, "gs://"+bucketName+"/")

	url, err := g.client.Bucket(bucketName).SignedURL(objectPath, opts)
	if err != nil {
		return "", fmt.Errorf("failed to get presigned url: %v", err)
	}
	return url, nil
}

func (g *Client) Close() error {
	return g.client.Close()
}
