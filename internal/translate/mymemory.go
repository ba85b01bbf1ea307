package translate

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultMyMemoryURL is the public MyMemory endpoint.
const DefaultMyMemoryURL = "https://api.mymemory.translated.net"

// MyMemoryClient calls the MyMemory translation API.
// Implements the Provider interface.
type MyMemoryClient struct {
	baseURL string
	email   string // optional "de" parameter, raises the anonymous quota
	client  *http.Client
}

type myMemoryResponse struct {
	ResponseData *struct {
		TranslatedText *string `json:"translatedText"`
	} `json:"responseData"`
	// Numeric on success, sometimes a quoted number on quota errors.
	ResponseStatus  json.Number `json:"responseStatus"`
	ResponseDetails string      `json:"responseDetails"`
}

// NewMyMemoryClient creates a client for baseURL. A zero timeout leaves the
// transport default in place (no deadline).
func NewMyMemoryClient(baseURL, email string, timeout time.Duration) *MyMemoryClient {
	if baseURL == "" {
		baseURL = DefaultMyMemoryURL
	}
	return &MyMemoryClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		email:   email,
		client:  &http.Client{Timeout: timeout},
	}
}

// Name returns the provider name.
func (m *MyMemoryClient) Name() string { return "mymemory" }

// Translate issues GET {base}/get?q=<text>&langpair=<source>|<target>.
func (m *MyMemoryClient) Translate(ctx context.Context, text, source, target string) (string, error) {
	q := url.Values{}
	q.Set("q", text)
	q.Set("langpair", source+"|"+target)
	if m.email != "" {
		q.Set("de", m.email)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.baseURL+"/get?"+q.Encode(), nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := m.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("mymemory request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("mymemory API error (status %d): %s", resp.StatusCode, truncate(string(body), 200))
	}

	var result myMemoryResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if s := result.ResponseStatus.String(); s != "" && s != "200" {
		return "", fmt.Errorf("mymemory API error (status %s): %s", s, result.ResponseDetails)
	}
	if result.ResponseData == nil || result.ResponseData.TranslatedText == nil {
		return "", fmt.Errorf("mymemory response missing responseData.translatedText")
	}
	return *result.ResponseData.TranslatedText, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
