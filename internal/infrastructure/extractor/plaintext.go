package extractor

import (
	"fmt"
	"os"
	"strings"
	"unicode/utf8"
)

func extractPlaintext(path string) (string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read resume: %w", err)
	}
	if !utf8.Valid(raw) {
		return "", fmt.Errorf("unsupported binary resume: %s", path)
	}
	return strings.TrimSpace(string(raw)), nil
}
