package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"log/slog"
)

const (
	defaultBaseURL   = "https://graph.facebook.com/v19.0"
	defaultUserAgent = "rentdesk-webhook/0.1"
)

// Config controls how the Graph API client behaves.
type Config struct {
	BaseURL     string
	AccessToken string
	Timeout     time.Duration
	HTTPClient  *http.Client
	Logger      *slog.Logger
	UserAgent   string
}

// Client wraps the WhatsApp Business (Meta Graph) endpoints the pipeline needs.
type Client struct {
	accessToken string
	baseURL     string
	httpClient  *http.Client
	logger      *slog.Logger
	userAgent   string
}

// New creates a configured Client with sane defaults.
func New(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.AccessToken) == "" {
		return nil, errors.New("whatsapp: access token is required")
	}
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	baseURL = strings.TrimRight(baseURL, "/")
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 15 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	userAgent := strings.TrimSpace(cfg.UserAgent)
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	return &Client{
		accessToken: cfg.AccessToken,
		baseURL:     baseURL,
		httpClient:  httpClient,
		logger:      logger,
		userAgent:   userAgent,
	}, nil
}

// MediaInfo is the transient download metadata for a provider media handle.
type MediaInfo struct {
	URL      string `json:"url"`
	MimeType string `json:"mime_type"`
	SHA256   string `json:"sha256,omitempty"`
	FileSize int64  `json:"file_size,omitempty"`
}

// GetMediaInfo resolves the transient download URL and authoritative mime type.
func (c *Client) GetMediaInfo(ctx context.Context, mediaID string) (*MediaInfo, error) {
	if strings.TrimSpace(mediaID) == "" {
		return nil, errors.New("whatsapp: media id required")
	}
	data, err := c.invoke(ctx, http.MethodGet, "/"+mediaID, nil)
	if err != nil {
		return nil, err
	}
	var info MediaInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, fmt.Errorf("whatsapp: decode media info: %w", err)
	}
	if info.URL == "" {
		return nil, errors.New("whatsapp: media info missing download url")
	}
	return &info, nil
}

// DownloadMedia fetches the binary behind a transient media URL.
// The same bearer credential authenticates the download.
func (c *Client) DownloadMedia(ctx context.Context, mediaURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, mediaURL, nil)
	if err != nil {
		return nil, fmt.Errorf("whatsapp: build media request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.accessToken)
	req.Header.Set("User-Agent", c.userAgent)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("whatsapp: media download: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("whatsapp: media download status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("whatsapp: read media body: %w", err)
	}
	return data, nil
}

// TemplateComponent is one component of a template send payload.
type TemplateComponent struct {
	Type       string              `json:"type"`
	Parameters []TemplateParameter `json:"parameters,omitempty"`
}

type TemplateParameter struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// TemplateRequest describes an outbound template message.
type TemplateRequest struct {
	To           string
	TemplateName string
	LanguageCode string
	Components   []TemplateComponent
}

func (r TemplateRequest) validate() error {
	if strings.TrimSpace(r.To) == "" {
		return errors.New("whatsapp: template recipient required")
	}
	if strings.TrimSpace(r.TemplateName) == "" {
		return errors.New("whatsapp: template name required")
	}
	return nil
}

// SendTemplate posts a template message through the given business phone line
// and returns the provider message id.
func (c *Client) SendTemplate(ctx context.Context, phoneNumberID string, req TemplateRequest) (string, error) {
	if strings.TrimSpace(phoneNumberID) == "" {
		return "", errors.New("whatsapp: phone number id required")
	}
	if err := req.validate(); err != nil {
		return "", err
	}
	language := req.LanguageCode
	if language == "" {
		language = "en"
	}
	body, err := json.Marshal(map[string]any{
		"messaging_product": "whatsapp",
		"recipient_type":    "individual",
		"to":                req.To,
		"type":              "template",
		"template": map[string]any{
			"name":       req.TemplateName,
			"language":   map[string]string{"code": language},
			"components": req.Components,
		},
	})
	if err != nil {
		return "", fmt.Errorf("whatsapp: marshal template payload: %w", err)
	}
	data, err := c.invoke(ctx, http.MethodPost, "/"+phoneNumberID+"/messages", body)
	if err != nil {
		return "", err
	}
	var parsed struct {
		Messages []struct {
			ID string `json:"id"`
		} `json:"messages"`
	}
	if err := json.Unmarshal(data, &parsed); err != nil {
		return "", fmt.Errorf("whatsapp: decode send response: %w", err)
	}
	if len(parsed.Messages) == 0 || parsed.Messages[0].ID == "" {
		return "", errors.New("whatsapp: send response missing message id")
	}
	return parsed.Messages[0].ID, nil
}

func (c *Client) invoke(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	var bodyReader io.Reader
	if body != nil {
		bodyReader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+"/"+strings.TrimLeft(path, "/"), bodyReader)
	if err != nil {
		return nil, fmt.Errorf("whatsapp: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.accessToken)
	req.Header.Set("User-Agent", c.userAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("whatsapp: http error: %w", err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("whatsapp: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, decodeAPIError(resp.StatusCode, data)
	}
	return data, nil
}

type apiError struct {
	StatusCode int `json:"-"`
	Err        struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    int    `json:"code"`
	} `json:"error"`
}

func (e *apiError) Error() string {
	if e.Err.Message != "" {
		return fmt.Sprintf("whatsapp: %s (code=%d status=%d)", e.Err.Message, e.Err.Code, e.StatusCode)
	}
	return fmt.Sprintf("whatsapp: http status %d", e.StatusCode)
}

func decodeAPIError(status int, body []byte) error {
	parsed := &apiError{StatusCode: status}
	if err := json.Unmarshal(body, parsed); err != nil {
		parsed.Err.Message = strings.TrimSpace(string(body))
	}
	return parsed
}
