// Package pinning uploads finished invoice records to IPFS through Pinata.
package pinning

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"
)

const (
	DefaultUploadURL  = "https://uploads.pinata.cloud/v3/files"
	DefaultGatewayURL = "https://gateway.pinata.cloud/ipfs/"
	DefaultNetwork    = "public"
)

// ErrNoCID is returned when the upload succeeded but no content id came back.
var ErrNoCID = errors.New("pinata: no CID returned")

// Config holds the Pinata credentials and endpoints.
type Config struct {
	JWT        string
	UploadURL  string
	GatewayURL string
	Network    string
}

// Client pins files through the Pinata v3 upload API.
type Client struct {
	cfg    Config
	client *http.Client
	logger *zap.Logger
}

func New(cfg Config, client *http.Client, logger *zap.Logger) (*Client, error) {
	if cfg.JWT == "" {
		return nil, errors.New("pinata jwt is required; set pinata.jwt or PINATA_JWT")
	}
	if cfg.UploadURL == "" {
		cfg.UploadURL = DefaultUploadURL
	}
	if cfg.GatewayURL == "" {
		cfg.GatewayURL = DefaultGatewayURL
	}
	if !strings.HasSuffix(cfg.GatewayURL, "/") {
		cfg.GatewayURL += "/"
	}
	if cfg.Network == "" {
		cfg.Network = DefaultNetwork
	}
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{cfg: cfg, client: client, logger: logger}, nil
}

// GatewayURL builds the retrieval URL for a content id.
func (c *Client) GatewayURL(cid string) string {
	return c.cfg.GatewayURL + cid
}

// PinJSON uploads data as a JSON file and returns its CID.
func (c *Client) PinJSON(ctx context.Context, name string, data []byte) (string, error) {
	return c.pin(ctx, name, "application/json", bytes.NewReader(data))
}

// PinFile uploads a local file, such as the image attached to records.
func (c *Client) PinFile(ctx context.Context, path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer file.Close()
	return c.pin(ctx, filepath.Base(path), "application/octet-stream", file)
}

func (c *Client) pin(ctx context.Context, name, contentType string, content io.Reader) (string, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, name))
	header.Set("Content-Type", contentType)
	part, err := writer.CreatePart(header)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(part, content); err != nil {
		return "", err
	}
	if err := writer.WriteField("network", c.cfg.Network); err != nil {
		return "", err
	}
	if err := writer.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.UploadURL, &body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+c.cfg.JWT)

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("pinata upload: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("pinata upload: status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	cid := ParseCID(raw)
	if cid == "" {
		return "", ErrNoCID
	}
	c.logger.Info("pinned file",
		zap.String("name", name),
		zap.String("cid", cid),
		zap.Duration("took", time.Since(start)),
	)
	return cid, nil
}

// ParseCID reads the content id from either the v3 response shape
// ({"data":{"cid":...}}) or the legacy pinning API ({"IpfsHash":...}).
func ParseCID(body []byte) string {
	for _, path := range []string{"data.cid", "IpfsHash", "cid"} {
		if v := gjson.GetBytes(body, path); v.Type == gjson.String && v.Str != "" {
			return v.Str
		}
	}
	return ""
}
