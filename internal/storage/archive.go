// Package storage archives fetched pages through a crawler.BlobStore. Concrete
// stores live in the gcs, local and memory subpackages.
package storage

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/JakeFAU/job-crawler/internal/crawler"
)

// Archive writes raw pages under raw/<run>/<source>/<digest>.<ext>.
type Archive struct {
	blobs crawler.BlobStore
}

// NewArchive wraps blobs.
func NewArchive(blobs crawler.BlobStore) (*Archive, error) {
	if blobs == nil {
		return nil, errors.New("blob store is required")
	}
	return &Archive{blobs: blobs}, nil
}

// Save stores page and returns the blob URI. digest identifies the content.
func (a *Archive) Save(ctx context.Context, runID, source string, page crawler.Page, digest uint64) (string, error) {
	path := ObjectPath(runID, source, page.Format, digest)
	uri, err := a.blobs.PutObject(ctx, path, contentType(page.Format), strings.NewReader(page.Content))
	if err != nil {
		return "", fmt.Errorf("archive %s: %w", page.URL, err)
	}
	return uri, nil
}

// ObjectPath builds the archive path for one page.
func ObjectPath(runID, source string, format crawler.PageFormat, digest uint64) string {
	ext := "html"
	if format == crawler.FormatMarkdown {
		ext = "md"
	}
	return fmt.Sprintf("raw/%s/%s/%s.%s", runID, sourceKey(source), strconv.FormatUint(digest, 16), ext)
}

func contentType(format crawler.PageFormat) string {
	if format == crawler.FormatMarkdown {
		return "text/markdown; charset=utf-8"
	}
	return "text/html; charset=utf-8"
}

func sourceKey(source string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(source) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	key := strings.TrimSuffix(b.String(), "-")
	if key == "" {
		return "unknown"
	}
	return key
}
