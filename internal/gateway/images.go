package gateway

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"time"

	ws "github.com/Andy963/ads-sub001/pkg/websocket"
)

const maxImageBytes = 25 * 1024 * 1024 // 25 MiB per §4.8

var allowedImageMime = map[string]bool{
	"image/jpeg":     true,
	"image/png":      true,
	"image/gif":      true,
	"image/webp":     true,
	"image/bmp":      true,
	"image/svg+xml":  true,
}

// savedAttachment is one image persisted to the workspace-scoped temp
// directory, ready to be appended as an adapter.Part.
type savedAttachment struct {
	OriginalName string
	MimeType     string
	SizeBytes    int64
	StoredPath   string
}

// persistImages validates and decodes every attachment on a prompt payload,
// writing each to tempDir (spec.md §4.8: MIME allow-list, 25 MiB cap). The
// first invalid one aborts the whole batch so the client gets one clear
// error: no attachments are returned and any files the batch already wrote
// are removed.
func persistImages(tempDir string, images []ws.ImageAttachment) (saved []savedAttachment, err error) {
	if len(images) == 0 {
		return nil, nil
	}
	if err := os.MkdirAll(tempDir, 0o755); err != nil {
		return nil, fmt.Errorf("gateway: create image temp dir: %w", err)
	}

	out := make([]savedAttachment, 0, len(images))
	defer func() {
		if err != nil {
			cleanupImages(out)
		}
	}()
	for _, img := range images {
		if !allowedImageMime[img.Mime] {
			return nil, &validationError{Field: "images", Message: fmt.Sprintf("unsupported image type %q", img.Mime)}
		}
		if img.Size > maxImageBytes {
			return nil, &validationError{Field: "images", Message: fmt.Sprintf("image %q exceeds 25 MiB limit", img.Name)}
		}
		raw, err := base64.StdEncoding.DecodeString(img.Data)
		if err != nil {
			return nil, &validationError{Field: "images", Message: fmt.Sprintf("image %q is not valid base64", img.Name)}
		}
		if int64(len(raw)) > maxImageBytes {
			return nil, &validationError{Field: "images", Message: fmt.Sprintf("image %q exceeds 25 MiB limit", img.Name)}
		}

		name, err := randomFileName(img.Name)
		if err != nil {
			return nil, fmt.Errorf("gateway: generate attachment name: %w", err)
		}
		path := filepath.Join(tempDir, name)
		if err := os.WriteFile(path, raw, 0o644); err != nil {
			return nil, fmt.Errorf("gateway: write attachment: %w", err)
		}

		out = append(out, savedAttachment{
			OriginalName: img.Name,
			MimeType:     img.Mime,
			SizeBytes:    int64(len(raw)),
			StoredPath:   path,
		})
	}
	return out, nil
}

// cleanupImages removes every temp file the attachments were written to;
// always called once the turn completes, success or failure (spec.md §4.8
// "always cleans up temp attachments").
func cleanupImages(attachments []savedAttachment) {
	for _, a := range attachments {
		_ = os.Remove(a.StoredPath)
	}
}

func randomFileName(original string) (string, error) {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	ts := time.Now().UTC().Format("20060102T150405")
	return fmt.Sprintf("%s-%s%s", ts, hex.EncodeToString(buf), filepath.Ext(original)), nil
}

// validationError mirrors store.ValidationError's shape without importing
// the store package for one small struct; the gateway formats it the same
// way regardless of which package produced it.
type validationError struct {
	Field   string
	Message string
}

func (e *validationError) Error() string { return e.Field + ": " + e.Message }
