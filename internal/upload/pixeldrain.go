package upload

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/iconidentify/tubefetch/internal/config"
	"github.com/iconidentify/tubefetch/internal/domain"
)

// Pixeldrain hosts files permanently. It needs an API key; without one it
// reports a zero ceiling and is skipped by the chain.
type Pixeldrain struct {
	apiKey     string
	baseURL    string
	ceiling    int64
	httpClient *http.Client
}

// NewPixeldrain creates a pixeldrain backend.
func NewPixeldrain(cfg config.PixeldrainConfig) *Pixeldrain {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://pixeldrain.com/api"
	}
	return &Pixeldrain{
		apiKey:  cfg.APIKey,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		ceiling: cfg.Ceiling.Bytes(),
		// no client timeout; the chain bounds each attempt by file size
		httpClient: &http.Client{},
	}
}

func (p *Pixeldrain) Name() string { return "pixeldrain" }

func (p *Pixeldrain) Ceiling() int64 {
	if p.apiKey == "" {
		return 0
	}
	return p.ceiling
}

func (p *Pixeldrain) Expiry() domain.Expiry { return domain.Permanent }

// TryUpload PUTs the raw file to /file/{name}.
func (p *Pixeldrain) TryUpload(ctx context.Context, path string) (string, error) {
	if p.apiKey == "" {
		return "", fmt.Errorf("pixeldrain: no API key configured")
	}

	file, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open file: %w", err)
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		return "", fmt.Errorf("stat file: %w", err)
	}

	endpoint := p.baseURL + "/file/" + url.PathEscape(filepath.Base(path))
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, endpoint, file)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.ContentLength = stat.Size()
	req.SetBasicAuth("", p.apiKey)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("pixeldrain: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var result struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return "", fmt.Errorf("unmarshal response: %w", err)
	}
	if result.ID == "" {
		return "", fmt.Errorf("pixeldrain: response has no file id")
	}

	return strings.TrimSuffix(p.baseURL, "/api") + "/u/" + result.ID, nil
}
