package upload

import (
	"fmt"
	"log/slog"

	"github.com/iconidentify/tubefetch/internal/config"
)

// NewChainFromConfig builds the chain in cfg.Order.
func NewChainFromConfig(cfg config.UploadConfig, logger *slog.Logger) (*Chain, error) {
	backends := make([]Backend, 0, len(cfg.Order))
	for _, name := range cfg.Order {
		switch name {
		case "pixeldrain":
			backends = append(backends, NewPixeldrain(cfg.Pixeldrain))
		case "litterbox":
			backends = append(backends, NewLitterbox(cfg.Litterbox))
		case "catbox":
			backends = append(backends, NewCatbox(cfg.Catbox))
		default:
			return nil, fmt.Errorf("unknown upload backend %q", name)
		}
	}

	for _, b := range backends {
		if b.Ceiling() == 0 {
			logger.Warn("upload backend disabled", "backend", b.Name())
		}
	}

	return NewChain(backends, TimeoutPolicy{
		Base:          cfg.BaseTimeout,
		MinThroughput: cfg.MinThroughput.Bytes(),
	}, logger), nil
}
