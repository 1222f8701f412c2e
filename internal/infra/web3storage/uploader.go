// Package web3storage archives snapshots to a web3.storage compatible endpoint.
package web3storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/vietddude/snapshotter/internal/indexing/recovery"
)

// Uploader posts raw snapshot bytes with a bearer token.
type Uploader struct {
	endpoint string
	token    string
	http     *http.Client
	policy   recovery.Policy
}

// NewUploader builds the upload endpoint from url and suffix.
func NewUploader(url, suffix, token string, timeout time.Duration) *Uploader {
	return &Uploader{
		endpoint: strings.TrimRight(url, "/") + suffix,
		token:    token,
		http:     &http.Client{Timeout: timeout},
		policy:   recovery.UploadPolicy(),
	}
}

// Upload sends data, retrying per the upload policy.
func (u *Uploader) Upload(ctx context.Context, data []byte) error {
	return recovery.Do(ctx, u.policy, "web3storage_upload", func(ctx context.Context) error {
		return u.post(ctx, data)
	})
}

func (u *Uploader) post(ctx context.Context, data []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.endpoint, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+u.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := u.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("upload returned %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
