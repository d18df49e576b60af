// Package upload hosts files that are too large to attach in chat on external
// file hosts, trying backends in priority order.
package upload

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/iconidentify/tubefetch/internal/domain"
)

// Backend is one external file host.
type Backend interface {
	// Name is the label shown to users next to the link.
	Name() string
	// Ceiling is the largest file the backend accepts; zero means unusable,
	// e.g. because a required credential is missing.
	Ceiling() int64
	// Expiry reports how long the host keeps files.
	Expiry() domain.Expiry
	// TryUpload uploads the file and returns its public link.
	TryUpload(ctx context.Context, path string) (string, error)
}

// TimeoutPolicy scales upload timeouts with file size.
type TimeoutPolicy struct {
	Base time.Duration
	// MinThroughput is the slowest upload rate in bytes/s tolerated before an
	// attempt is abandoned.
	MinThroughput int64
}

// For returns the timeout for uploading size bytes.
func (p TimeoutPolicy) For(size int64) time.Duration {
	if p.MinThroughput <= 0 {
		return p.Base
	}
	transfer := time.Duration(float64(size) / float64(p.MinThroughput) * float64(time.Second))
	return p.Base + transfer
}

// Result describes what the chain did with a file.
type Result struct {
	Link     string
	Backend  string
	Expiry   domain.Expiry
	Attempts []domain.UploadAttempt
}

// Summary lists each attempt's backend and how it ended, for logs.
func (r *Result) Summary() string {
	if len(r.Attempts) == 0 {
		return "no attempts"
	}
	parts := make([]string, len(r.Attempts))
	for i, a := range r.Attempts {
		switch {
		case a.Skipped:
			parts[i] = a.Backend + ": skipped"
		case a.Succeeded():
			parts[i] = a.Backend + ": ok"
		default:
			parts[i] = a.Backend + ": failed"
		}
	}
	return strings.Join(parts, ", ")
}

// NoBackend labels results that produced no link.
const NoBackend = "none"

// Chain tries backends in order until one returns a link.
type Chain struct {
	backends []Backend
	timeouts TimeoutPolicy
	logger   *slog.Logger
}

// NewChain creates a chain over backends in priority order.
func NewChain(backends []Backend, timeouts TimeoutPolicy, logger *slog.Logger) *Chain {
	return &Chain{
		backends: backends,
		timeouts: timeouts,
		logger:   logger,
	}
}

// MaxCeiling returns the largest size any usable backend accepts.
func (c *Chain) MaxCeiling() int64 {
	var ceiling int64
	for _, b := range c.backends {
		if b.Ceiling() > ceiling {
			ceiling = b.Ceiling()
		}
	}
	return ceiling
}

// Upload hosts the file at path. It fails with a SizeLimitError when size is
// above every ceiling, and with ErrUploadExhausted when no backend produced a
// link. The returned Result is never nil.
func (c *Chain) Upload(ctx context.Context, path string, size int64) (*Result, error) {
	result := &Result{Backend: NoBackend}

	if ceiling := c.MaxCeiling(); size > ceiling {
		return result, &domain.SizeLimitError{Size: size, Limit: ceiling}
	}

	var lastErr error
	for _, b := range c.backends {
		attempt := domain.UploadAttempt{
			Backend: b.Name(),
			Ceiling: b.Ceiling(),
			Expiry:  b.Expiry(),
		}

		if b.Ceiling() < size {
			attempt.Skipped = true
			result.Attempts = append(result.Attempts, attempt)
			continue
		}

		if err := ctx.Err(); err != nil {
			return result, err
		}

		link, err := c.try(ctx, b, path, size)
		attempt.Link = link
		attempt.Err = err
		result.Attempts = append(result.Attempts, attempt)

		if err != nil {
			lastErr = err
			c.logger.Warn("upload backend failed",
				"backend", b.Name(),
				"size", humanize.IBytes(uint64(size)),
				"error", err,
			)
			continue
		}

		result.Link = link
		result.Backend = b.Name()
		result.Expiry = b.Expiry()
		c.logger.Info("file hosted",
			"backend", b.Name(),
			"size", humanize.IBytes(uint64(size)),
			"expiry", b.Expiry().String(),
		)
		return result, nil
	}

	if err := ctx.Err(); err != nil {
		return result, err
	}
	c.logger.Warn("upload chain exhausted",
		"size", humanize.IBytes(uint64(size)),
		"attempts", result.Summary(),
	)
	if lastErr != nil {
		return result, fmt.Errorf("%w: last error: %v", domain.ErrUploadExhausted, lastErr)
	}
	return result, domain.ErrUploadExhausted
}

func (c *Chain) try(ctx context.Context, b Backend, path string, size int64) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeouts.For(size))
	defer cancel()

	link, err := b.TryUpload(ctx, path)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return "", fmt.Errorf("%s: timed out after %s", b.Name(), c.timeouts.For(size).Round(time.Second))
		}
		return "", err
	}
	if link == "" {
		return "", fmt.Errorf("%s: empty link", b.Name())
	}
	return link, nil
}
