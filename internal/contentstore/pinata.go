package contentstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/ipfs/go-cid"
)

const (
	pinataBackend   = "pinata"
	maxResponseBody = 1 << 16
)

// HTTPDoer is the minimal interface needed from an HTTP client.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// PinataConfig configures the Pinata pinning adapter. JWT takes precedence
// over the legacy key/secret header pair.
type PinataConfig struct {
	APIURL     string
	GatewayURL string
	APIKey     string
	APISecret  string
	JWT        string
	Timeout    time.Duration
	HTTPClient HTTPDoer
}

// PinataStore pins files through Pinata's pinFileToIPFS endpoint.
type PinataStore struct {
	cfg    PinataConfig
	client HTTPDoer
}

type pinResponse struct {
	IpfsHash  string `json:"IpfsHash"`
	PinSize   int64  `json:"PinSize"`
	Timestamp string `json:"Timestamp"`
}

func NewPinataStore(cfg PinataConfig) *PinataStore {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if !strings.HasSuffix(cfg.GatewayURL, "/") {
		cfg.GatewayURL += "/"
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	return &PinataStore{cfg: cfg, client: client}
}

// Put uploads data as a multipart file and returns the pinned CID.
func (s *PinataStore) Put(ctx context.Context, data []byte, filename string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	body, contentType, err := encodeMultipart(data, filename)
	if err != nil {
		return "", newError(KindRejected, pinataBackend, "encode multipart body", 0, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.APIURL, body)
	if err != nil {
		return "", newError(KindRejected, pinataBackend, "build request", 0, err)
	}
	req.Header.Set("Content-Type", contentType)
	s.authorize(req)

	resp, err := s.client.Do(req)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", newError(KindUnavailable, pinataBackend, "request timeout", 0, err)
		}
		return "", newError(KindUnavailable, pinataBackend, "request failed", 0, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return "", newError(KindUnavailable, pinataBackend, "read response", resp.StatusCode, err)
	}

	if kind, failed := classifyStatus(resp.StatusCode); failed {
		return "", newError(kind, pinataBackend, strings.TrimSpace(string(raw)), resp.StatusCode, nil)
	}

	var pinned pinResponse
	if err := json.Unmarshal(raw, &pinned); err != nil {
		return "", newError(KindRejected, pinataBackend, "decode response", resp.StatusCode, err)
	}
	if _, err := cid.Decode(pinned.IpfsHash); err != nil {
		return "", newError(KindRejected, pinataBackend, fmt.Sprintf("invalid IpfsHash %q", pinned.IpfsHash), resp.StatusCode, err)
	}
	return pinned.IpfsHash, nil
}

// Resolve templates the gateway URL. No network call is made.
func (s *PinataStore) Resolve(contentID string) (string, error) {
	if contentID == "" {
		return "", ErrEmptyID
	}
	return s.cfg.GatewayURL + contentID, nil
}

func (s *PinataStore) authorize(req *http.Request) {
	if s.cfg.JWT != "" {
		req.Header.Set("Authorization", "Bearer "+s.cfg.JWT)
		return
	}
	req.Header.Set("pinata_api_key", s.cfg.APIKey)
	req.Header.Set("pinata_secret_api_key", s.cfg.APISecret)
}

func classifyStatus(status int) (Kind, bool) {
	switch {
	case status >= 200 && status < 300:
		return "", false
	case status == http.StatusTooManyRequests, status == http.StatusRequestTimeout, status >= 500:
		return KindUnavailable, true
	default:
		return KindRejected, true
	}
}

func encodeMultipart(data []byte, filename string) (*bytes.Buffer, string, error) {
	buf := &bytes.Buffer{}
	w := multipart.NewWriter(buf)

	part, err := w.CreateFormFile("file", filename)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(data); err != nil {
		return nil, "", err
	}

	meta, err := json.Marshal(map[string]string{"name": filename})
	if err != nil {
		return nil, "", err
	}
	if err := w.WriteField("pinataMetadata", string(meta)); err != nil {
		return nil, "", err
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return buf, w.FormDataContentType(), nil
}
