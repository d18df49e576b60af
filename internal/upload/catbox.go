package upload

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/iconidentify/tubefetch/internal/config"
	"github.com/iconidentify/tubefetch/internal/domain"
)

// litterboxDurations are the retention periods litterbox accepts, in hours.
var litterboxDurations = []int{72, 24, 12, 1}

// Litterbox hosts files anonymously for a limited time.
type Litterbox struct {
	baseURL    string
	ceiling    int64
	hours      int
	httpClient *http.Client
}

// NewLitterbox creates a litterbox backend. The configured expiry is rounded
// down to the nearest duration litterbox supports.
func NewLitterbox(cfg config.LitterboxConfig) *Litterbox {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://litterbox.catbox.moe/resources/internals/api.php"
	}
	hours := litterboxDurations[len(litterboxDurations)-1]
	for _, h := range litterboxDurations {
		if time.Duration(h)*time.Hour <= cfg.Expiry {
			hours = h
			break
		}
	}
	return &Litterbox{
		baseURL:    cfg.BaseURL,
		ceiling:    cfg.Ceiling.Bytes(),
		hours:      hours,
		httpClient: &http.Client{},
	}
}

func (l *Litterbox) Name() string { return "litterbox" }

func (l *Litterbox) Ceiling() int64 { return l.ceiling }

func (l *Litterbox) Expiry() domain.Expiry {
	return domain.ExpiresAfter(time.Duration(l.hours) * time.Hour)
}

func (l *Litterbox) TryUpload(ctx context.Context, path string) (string, error) {
	return postFileForm(ctx, l.httpClient, l.baseURL, path, []formField{
		{"reqtype", "fileupload"},
		{"time", fmt.Sprintf("%dh", l.hours)},
	})
}

// Catbox hosts small files permanently. A userhash ties uploads to an
// account but is not required.
type Catbox struct {
	userHash   string
	baseURL    string
	ceiling    int64
	httpClient *http.Client
}

// NewCatbox creates a catbox backend.
func NewCatbox(cfg config.CatboxConfig) *Catbox {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://catbox.moe/user/api.php"
	}
	return &Catbox{
		userHash:   cfg.UserHash,
		baseURL:    cfg.BaseURL,
		ceiling:    cfg.Ceiling.Bytes(),
		httpClient: &http.Client{},
	}
}

func (c *Catbox) Name() string { return "catbox" }

func (c *Catbox) Ceiling() int64 { return c.ceiling }

func (c *Catbox) Expiry() domain.Expiry { return domain.Permanent }

func (c *Catbox) TryUpload(ctx context.Context, path string) (string, error) {
	fields := []formField{{"reqtype", "fileupload"}}
	if c.userHash != "" {
		fields = append(fields, formField{"userhash", c.userHash})
	}
	return postFileForm(ctx, c.httpClient, c.baseURL, path, fields)
}

// postFileForm uploads path as "fileToUpload" and expects a plain-text link back.
func postFileForm(ctx context.Context, client *http.Client, endpoint, path string, fields []formField) (string, error) {
	body, contentType := multipartFileBody(path, "fileToUpload", fields)
	defer body.Close()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	return readTextLink(resp)
}
