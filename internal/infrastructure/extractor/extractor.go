// Package extractor turns résumé files into plain text for the system instruction.
package extractor

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/kirillkom/portfolio-chatbot/internal/core/domain"
)

// Extractor picks a reader by file extension.
type Extractor struct{}

func New() *Extractor {
	return &Extractor{}
}

func (e *Extractor) Extract(ctx context.Context, path string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		return extractPDF(path)
	case ".txt", ".md", ".markdown", "":
		return extractPlaintext(path)
	default:
		return "", domain.WrapError(domain.ErrInvalidInput, "extract resume", fmt.Errorf("unsupported resume format: %s", filepath.Base(path)))
	}
}

// Truncate limits text to maxChars runes; maxChars <= 0 disables the limit.
func Truncate(text string, maxChars int) string {
	if maxChars <= 0 {
		return text
	}
	runes := []rune(text)
	if len(runes) <= maxChars {
		return text
	}
	return strings.TrimSpace(string(runes[:maxChars]))
}
