// Package objectstore is the client for the backend's object-storage
// service: upload bytes under a bucket path, resolve the public URL, remove
// paths. The REST surface mirrors the hosted storage API the app delegates
// media to.
package objectstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/mahaj/convosync/pkg/errs"
)

// Store is the object-storage surface the media pipeline depends on.
type Store interface {
	Upload(ctx context.Context, bucket, path string, data []byte, contentType string) error
	PublicURL(bucket, path string) string
	Remove(ctx context.Context, bucket string, paths []string) error
}

// Client talks to the storage service over HTTP with a bearer service key.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	log     zerolog.Logger
}

func NewClient(baseURL, apiKey string, log zerolog.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    &http.Client{Timeout: 60 * time.Second},
		log:     log.With().Str("component", "objectstore").Logger(),
	}
}

func (c *Client) Upload(ctx context.Context, bucket, path string, data []byte, contentType string) error {
	url := fmt.Sprintf("%s/storage/v1/object/%s/%s", c.baseURL, bucket, path)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", contentType)
	// Reuploading the same path replaces the object.
	req.Header.Set("x-upsert", "true")

	resp, err := c.http.Do(req)
	if err != nil {
		return errs.Wrap(errs.Network, err, "storage upload")
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return errs.New(errs.Network, fmt.Sprintf("storage upload: HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(body))))
	}
	return nil
}

func (c *Client) PublicURL(bucket, path string) string {
	return fmt.Sprintf("%s/storage/v1/object/public/%s/%s", c.baseURL, bucket, path)
}

func (c *Client) Remove(ctx context.Context, bucket string, paths []string) error {
	url := fmt.Sprintf("%s/storage/v1/object/%s", c.baseURL, bucket)
	payload, err := json.Marshal(map[string][]string{"prefixes": paths})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return errs.Wrap(errs.Network, err, "storage remove")
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return errs.New(errs.Network, fmt.Sprintf("storage remove: HTTP %d", resp.StatusCode))
	}
	return nil
}
