// Package nftstorage uploads passport artifacts to an NFT.Storage compatible
// pinning service and returns the content-addressed metadata URI.
package nftstorage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/zarlcorp/zpass/internal/artifact"
	"github.com/zarlcorp/zpass/internal/passport"
)

const defaultBaseURL = "https://api.nft.storage"

// Config holds the pinning service endpoint and bearer token.
type Config struct {
	BaseURL string // optional, defaults to api.nft.storage
	Token   string
}

// Client talks to the pinning service. It never retries: a failed upload is
// reported to the caller, which decides whether to start a new attempt.
type Client struct {
	token   string
	baseURL string
	http    *http.Client
}

// NewClient creates a client with the given configuration.
func NewClient(cfg Config) *Client {
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = defaultBaseURL
	}
	return &Client{
		token:   cfg.Token,
		baseURL: base,
		http:    &http.Client{Timeout: 60 * time.Second},
	}
}

// Upload stores the artifact image and its metadata and returns the
// metadata URI, e.g. "ipfs://bafy.../metadata.json".
func (c *Client) Upload(ctx context.Context, a artifact.Artifact) (passport.Locator, error) {
	if c.token == "" {
		return "", fmt.Errorf("upload: %w: no token configured", passport.ErrStorageAuth)
	}

	body, contentType, err := encodeStore(a)
	if err != nil {
		return "", fmt.Errorf("upload: %w: encode: %v", passport.ErrStorageUnavailable, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/store", body)
	if err != nil {
		return "", fmt.Errorf("upload: %w: create request: %v", passport.ErrStorageUnavailable, err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("upload: %w: %v", passport.ErrStorageUnavailable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("upload: %w: read response: %v", passport.ErrStorageUnavailable, err)
	}

	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("upload: %w", newError(resp.StatusCode, raw))
	}

	var sr storeResponse
	if err := json.Unmarshal(raw, &sr); err != nil {
		return "", fmt.Errorf("upload: %w: parse response: %v", passport.ErrStorageUnavailable, err)
	}

	if !sr.OK {
		return "", fmt.Errorf("upload: %w", &Error{
			StatusCode: resp.StatusCode,
			Name:       sr.Error.Name,
			Message:    sr.Error.Message,
		})
	}

	if sr.Value.URL == "" {
		return "", fmt.Errorf("upload: %w: empty url in response", passport.ErrStorageUnavailable)
	}

	return passport.Locator(sr.Value.URL), nil
}

// encodeStore builds the multipart body of a /store request: a "meta" JSON
// part where file fields are null, followed by the files keyed by the same
// field names.
func encodeStore(a artifact.Artifact) (io.Reader, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	meta, err := json.Marshal(storeMeta{
		Name:        a.Name,
		Description: a.Description,
		Image:       nil,
	})
	if err != nil {
		return nil, "", fmt.Errorf("marshal meta: %w", err)
	}
	if err := w.WriteField("meta", string(meta)); err != nil {
		return nil, "", fmt.Errorf("write meta: %w", err)
	}

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="image"; filename=%q`, a.FileName))
	h.Set("Content-Type", a.ContentType)
	part, err := w.CreatePart(h)
	if err != nil {
		return nil, "", fmt.Errorf("create image part: %w", err)
	}
	if _, err := part.Write(a.Image); err != nil {
		return nil, "", fmt.Errorf("write image: %w", err)
	}

	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("close multipart: %w", err)
	}

	return &buf, w.FormDataContentType(), nil
}

// Error is an API failure reported by the pinning service.
type Error struct {
	StatusCode int
	Name       string
	Message    string
}

func (e *Error) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("nftstorage: %s: %s (status %d)", e.Name, e.Message, e.StatusCode)
	}
	return fmt.Sprintf("nftstorage: %s (status %d)", e.Message, e.StatusCode)
}

// Unwrap maps the failure onto the storage error taxonomy.
func (e *Error) Unwrap() error {
	if e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden {
		return passport.ErrStorageAuth
	}
	return passport.ErrStorageUnavailable
}

func newError(status int, body []byte) *Error {
	var er storeResponse
	if err := json.Unmarshal(body, &er); err == nil && er.Error.Message != "" {
		return &Error{StatusCode: status, Name: er.Error.Name, Message: er.Error.Message}
	}
	return &Error{StatusCode: status, Message: http.StatusText(status)}
}

// json wire types

type storeMeta struct {
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Image       *string `json:"image"`
}

type storeResponse struct {
	OK    bool `json:"ok"`
	Value struct {
		IPNFT string `json:"ipnft"`
		URL   string `json:"url"`
	} `json:"value"`
	Error struct {
		Name    string `json:"name"`
		Message string `json:"message"`
	} `json:"error"`
}
