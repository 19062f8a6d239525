// Package profile loads the portfolio owner's profile document and keeps it fresh.
package profile

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kirillkom/portfolio-chatbot/internal/core/domain"
	"github.com/kirillkom/portfolio-chatbot/internal/core/ports"
	"github.com/kirillkom/portfolio-chatbot/internal/infrastructure/extractor"
)

type LoaderOptions struct {
	Path           string
	ResumePath     string
	ResumeMaxChars int
	Extractor      ports.TextExtractor
	Logger         *slog.Logger
}

type Loader struct {
	path           string
	resumePath     string
	resumeMaxChars int
	extractor      ports.TextExtractor
	logger         *slog.Logger
}

func NewLoader(opts LoaderOptions) *Loader {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{
		path:           strings.TrimSpace(opts.Path),
		resumePath:     strings.TrimSpace(opts.ResumePath),
		resumeMaxChars: opts.ResumeMaxChars,
		extractor:      opts.Extractor,
		logger:         logger,
	}
}

func (l *Loader) Path() string       { return l.path }
func (l *Loader) ResumePath() string { return l.resumePath }

// Load reads the profile document and the optional résumé.
// A résumé that cannot be read is logged and skipped.
func (l *Loader) Load(ctx context.Context) (domain.Profile, error) {
	raw, err := os.ReadFile(l.path)
	if err != nil {
		return domain.Profile{}, domain.WrapError(domain.ErrProfileUnavailable, "load profile", err)
	}
	data, err := Decode(l.path, raw)
	if err != nil {
		return domain.Profile{}, domain.WrapError(domain.ErrProfileUnavailable, "load profile", err)
	}

	profile := domain.Profile{
		Name:     firstString(data, "name", "full_name"),
		Headline: firstString(data, "headline", "title", "role"),
		Data:     data,
		Source:   l.path,
		LoadedAt: time.Now().UTC(),
	}

	if l.resumePath != "" && l.extractor != nil {
		text, err := l.extractor.Extract(ctx, l.resumePath)
		if err != nil {
			l.logger.Warn("resume_extract_failed", "path", l.resumePath, "error", err)
		} else {
			profile.ResumeText = extractor.Truncate(text, l.resumeMaxChars)
		}
	}
	return profile, nil
}

// Decode parses JSON or YAML by extension; unknown extensions are read as JSON.
// The top level must be an object.
func Decode(path string, raw []byte) (map[string]any, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, errors.New("profile document is empty")
	}

	var data map[string]any
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(raw, &data); err != nil {
			return nil, fmt.Errorf("decode yaml profile: %w", err)
		}
	default:
		if err := json.Unmarshal(raw, &data); err != nil {
			return nil, fmt.Errorf("decode json profile: %w", err)
		}
	}
	if data == nil {
		return nil, errors.New("profile document must be an object")
	}
	return data, nil
}

func firstString(data map[string]any, keys ...string) string {
	for _, key := range keys {
		if v, ok := data[key].(string); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
