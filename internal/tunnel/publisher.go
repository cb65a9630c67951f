package tunnel

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

var (
	ErrInvalidPublicURL = errors.New("tunnel: invalid public url")
	ErrNotPublished     = errors.New("tunnel: public url not published")

	errMissingConfigPath = errors.New("config path is required")
)

// Discovery is the document clients read to find the server's public URL.
type Discovery struct {
	PublicURL string    `json:"publicUrl"`
	Timestamp time.Time `json:"timestamp"`
}

type PublisherConfig struct {
	ConfigPath string
	Clock      func() time.Time
	Logger     *zap.Logger
}

// Publisher records an externally established public URL and writes it to the
// discovery file.
type Publisher struct {
	configPath string
	clock      func() time.Time
	logger     *zap.Logger

	mu      sync.RWMutex
	current *Discovery
}

func NewPublisher(cfg PublisherConfig) (*Publisher, error) {
	configPath := strings.TrimSpace(cfg.ConfigPath)
	if configPath == "" {
		return nil, errMissingConfigPath
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{configPath: configPath, clock: clock, logger: logger}, nil
}

// Publish validates the URL and atomically replaces the discovery file.
func (p *Publisher) Publish(publicURL string) (Discovery, error) {
	normalized, err := validatePublicURL(publicURL)
	if err != nil {
		return Discovery{}, err
	}
	discovery := Discovery{PublicURL: normalized, Timestamp: p.clock().UTC()}

	encoded, err := json.Marshal(discovery)
	if err != nil {
		return Discovery{}, err
	}
	if err := writeFileAtomic(p.configPath, encoded); err != nil {
		p.logger.Error("public url publication failed", zap.String("path", p.configPath), zap.Error(err))
		return Discovery{}, err
	}

	p.mu.Lock()
	p.current = &discovery
	p.mu.Unlock()

	p.logger.Info("public url published",
		zap.String("public_url", normalized),
		zap.String("path", p.configPath))
	return discovery, nil
}

// Current returns the last published discovery document.
func (p *Publisher) Current() (Discovery, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.current == nil {
		return Discovery{}, ErrNotPublished
	}
	return *p.current, nil
}

func validatePublicURL(raw string) (string, error) {
	trimmed := strings.TrimRight(strings.TrimSpace(raw), "/")
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidPublicURL)
	}
	parsed, err := url.Parse(trimmed)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidPublicURL, err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return "", fmt.Errorf("%w: scheme must be http or https", ErrInvalidPublicURL)
	}
	if parsed.Host == "" {
		return "", fmt.Errorf("%w: missing host", ErrInvalidPublicURL)
	}
	return trimmed, nil
}

func writeFileAtomic(path string, contents []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	temp, err := os.CreateTemp(dir, ".config-*.json")
	if err != nil {
		return err
	}
	tempName := temp.Name()
	if _, err := temp.Write(contents); err != nil {
		temp.Close()
		os.Remove(tempName)
		return err
	}
	if err := temp.Close(); err != nil {
		os.Remove(tempName)
		return err
	}
	if err := os.Chmod(tempName, 0o644); err != nil {
		os.Remove(tempName)
		return err
	}
	return os.Rename(tempName, path)
}
