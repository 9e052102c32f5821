package recognition

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
)

// FileSource acquires the image from a file on disk. Acquire re-reads
// the file every time, so a full latex retry picks up the current
// contents.
type FileSource struct {
	Path string
}

// Acquire implements ImageSource.
func (s FileSource) Acquire(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return "", fmt.Errorf("failed to read image %s: %w", s.Path, err)
	}
	if len(data) == 0 {
		return "", fmt.Errorf("image %s is empty", s.Path)
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// BytesSource acquires a fixed in-memory image. Used for clipboard
// payloads and in tests.
type BytesSource []byte

// Acquire implements ImageSource.
func (s BytesSource) Acquire(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if len(s) == 0 {
		return "", fmt.Errorf("image payload is empty")
	}
	return base64.StdEncoding.EncodeToString(s), nil
}
