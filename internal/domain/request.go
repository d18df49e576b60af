package domain

import (
	"strings"
)

// RequestID is a unique identifier for one fetch request.
type RequestID string

// String returns the string representation of the RequestID.
func (id RequestID) String() string {
	return string(id)
}

// DownloadRequest is one user invocation of the fetch command.
type DownloadRequest struct {
	ID               RequestID
	URL              string
	RequestedQuality string
	WantSubtitles    bool
	SubtitleLang     string
	ResolvedQuality  string
}

// Validate checks the request can be handed to the resolver.
func (r DownloadRequest) Validate() error {
	u := strings.TrimSpace(r.URL)
	if u == "" {
		return ErrInvalidURL
	}
	if !strings.HasPrefix(u, "http://") && !strings.HasPrefix(u, "https://") {
		return ErrInvalidURL
	}
	return nil
}

// Resolve returns a copy of the request with the resolved quality set.
// The receiver is left untouched.
func (r DownloadRequest) Resolve(label string) DownloadRequest {
	r.ResolvedQuality = label
	return r
}

// IsResolved reports whether a quality has been chosen.
func (r DownloadRequest) IsResolved() bool {
	return r.ResolvedQuality != ""
}

// DownloadResult is a finished download on local disk.
type DownloadResult struct {
	VideoPath    string
	SubtitlePath string
	SizeBytes    int64
}

// Paths returns every local path owned by the result.
func (r DownloadResult) Paths() []string {
	paths := make([]string, 0, 2)
	if r.VideoPath != "" {
		paths = append(paths, r.VideoPath)
	}
	if r.SubtitlePath != "" {
		paths = append(paths, r.SubtitlePath)
	}
	return paths
}

// Attachment is a local file handed to the chat platform.
type Attachment struct {
	Name string
	Path string
}

// Message is the terminal message handed to the chat platform.
type Message struct {
	Text  string
	Files []Attachment
	Link  string
}
