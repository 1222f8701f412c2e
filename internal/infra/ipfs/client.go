package ipfs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/ipfs/go-cid"

	"github.com/vietddude/snapshotter/internal/indexing/recovery"
)

// Client adds snapshots to an IPFS node through its HTTP API.
type Client struct {
	url    string
	http   *http.Client
	policy recovery.Policy
}

// NewClient creates a client for the node at url (e.g. http://ipfs:5001).
func NewClient(url string, timeout time.Duration) *Client {
	return &Client{
		url:    strings.TrimRight(url, "/"),
		http:   &http.Client{Timeout: timeout},
		policy: recovery.UploadPolicy(),
	}
}

type addResponse struct {
	Name string `json:"Name"`
	Hash string `json:"Hash"`
	Size string `json:"Size"`
}

// Put uploads data and returns its CID, retrying per the upload policy.
func (c *Client) Put(ctx context.Context, data []byte) (string, error) {
	var out string
	err := recovery.Do(ctx, c.policy, "ipfs_add", func(ctx context.Context) error {
		hash, err := c.add(ctx, data)
		if err != nil {
			return err
		}
		out = hash
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("failed to add snapshot to ipfs: %w", err)
	}
	return out, nil
}

func (c *Client) add(ctx context.Context, data []byte) (string, error) {
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	part, err := w.CreateFormFile("file", "snapshot.json")
	if err != nil {
		return "", err
	}
	if _, err := part.Write(data); err != nil {
		return "", err
	}
	if err := w.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.url+"/api/v0/add?cid-version=1&pin=true", &body)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("ipfs add returned %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var res addResponse
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return "", fmt.Errorf("failed to decode ipfs response: %w", err)
	}
	parsed, err := cid.Decode(res.Hash)
	if err != nil {
		return "", fmt.Errorf("ipfs returned invalid cid %q: %w", res.Hash, err)
	}
	return parsed.String(), nil
}
