package assets

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"wxarchiver/pkg/errors"
	"wxarchiver/pkg/logger"
	"wxarchiver/pkg/storage"
)

// Mapping maps an original image URL to its local filename
type Mapping map[string]string

// Downloader fetches a single remote resource, returning its body and content type
type Downloader interface {
	Download(ctx context.Context, url string) ([]byte, string, error)
}

// Reconciler saves an article's images into its asset directory
type Reconciler struct {
	downloader Downloader
	logger     logger.Logger
}

// NewReconciler creates a reconciler that falls back to downloader for unobserved images
func NewReconciler(downloader Downloader, log logger.Logger) *Reconciler {
	if log == nil {
		log = logger.GetLogger()
	}
	return &Reconciler{downloader: downloader, logger: log}
}

// Reconcile saves every image in urls to dir, preferring cached network
// captures and downloading the rest. A failed download only drops that image;
// the returned error is reserved for the asset directory itself.
func (r *Reconciler) Reconcile(ctx context.Context, urls []string, cache *Cache, dir string) (Mapping, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create asset directory: %w", err)
	}

	mapping := make(Mapping, len(urls))
	for _, u := range urls {
		capture, ok := cache.Match(u)
		if !ok {
			continue
		}
		name, err := SaveIntercepted(dir, u, capture)
		if err != nil {
			return nil, err
		}
		mapping[u] = name
	}

	intercepted := len(mapping)
	r.downloadMissing(ctx, urls, mapping, dir)

	r.logger.DebugWithFields("Images reconciled", map[string]interface{}{
		"referenced":  len(urls),
		"intercepted": intercepted,
		"downloaded":  len(mapping) - intercepted,
	})
	return mapping, nil
}

// SaveIntercepted writes a captured body under the name derived from imageURL,
// leaving an existing file untouched.
func SaveIntercepted(dir, imageURL string, capture Capture) (string, error) {
	name := Filename(imageURL, capture.ContentType)
	dest := filepath.Join(dir, name)
	if fileExists(dest) {
		return name, nil
	}
	if err := storage.WriteBytesAtomic(dest, capture.Body); err != nil {
		return "", fmt.Errorf("failed to save image: %w", err)
	}
	return name, nil
}

func (r *Reconciler) downloadMissing(ctx context.Context, urls []string, mapping Mapping, dir string) {
	for _, u := range urls {
		if _, done := mapping[u]; done {
			continue
		}

		name := Filename(u, "")
		dest := filepath.Join(dir, name)
		if fileExists(dest) {
			mapping[u] = name
			continue
		}
		if r.downloader == nil {
			continue
		}

		body, _, err := r.downloader.Download(ctx, u)
		if err == nil {
			err = storage.WriteBytesAtomic(dest, body)
		}
		if err != nil {
			r.logger.WithError(errors.Wrap(errors.ErrorTypeImageFetch, err, "image download failed").WithURL(u)).
				WarnWithFields("Skipping image", map[string]interface{}{"url": u})
			continue
		}
		mapping[u] = name
	}
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
