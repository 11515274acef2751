package core

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/disintegration/imaging"
	"github.com/labstack/echo/v4"

	"github.com/joshbuysell/pt-bb-beds/internal/backend/annotate"
	"github.com/joshbuysell/pt-bb-beds/internal/backend/archive"
	"github.com/joshbuysell/pt-bb-beds/internal/backend/gallery"
	"github.com/joshbuysell/pt-bb-beds/internal/backend/pricebook"
	"github.com/joshbuysell/pt-bb-beds/internal/backend/rendercache"
	"github.com/joshbuysell/pt-bb-beds/internal/backend/session"
)

// ArchiveName is the filename offered for the bundled ZIP download.
const ArchiveName = "processed_images.zip"

// RenderedName returns the download filename for one rendered image.
func RenderedName(name string) string {
	return "processed_" + name
}

// CoreService ties the gallery, the annotator, the render cache and the
// session store together behind the operations both frontends share.
type CoreService struct {
	config    *ServiceConfig
	gallery   *gallery.Gallery
	annotator *annotate.Annotator
	cache     rendercache.Cache
	sessions  *session.Store
}

func NewCoreService(config *ServiceConfig) *CoreService {
	if _, err := os.Stat(config.ImagesDir); err != nil {
		slog.Warn("image folder is not accessible", "path", config.ImagesDir, "error", err)
	}
	return &CoreService{
		config:    config,
		gallery:   gallery.New(config.ImagesDir),
		annotator: annotate.New(config.FontPath),
		cache:     newCache(config),
		sessions:  session.NewStore(),
	}
}

// newCache connects the configured Redis or falls back to the noop cache.
// A broken cache never keeps the service from starting.
func newCache(config *ServiceConfig) rendercache.Cache {
	if config.Redis.Addr == "" {
		slog.Info("render cache disabled, no redis address configured")
		return rendercache.Noop{}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	cache, err := rendercache.NewRedis(ctx, config.Redis.Addr, config.Redis.Password, config.Redis.DB, time.Duration(config.CacheTTL))
	if err != nil {
		slog.Warn("render cache unavailable, rendering without memoization", "addr", config.Redis.Addr, "error", err)
		return rendercache.Noop{}
	}
	slog.Info("render cache connected", "addr", config.Redis.Addr, "ttl", time.Duration(config.CacheTTL))
	return cache
}

// Config returns the loaded service configuration.
func (service *CoreService) Config() *ServiceConfig {
	return service.config
}

// ListImages returns the gallery entries in folder order.
func (service *CoreService) ListImages() ([]gallery.Entry, error) {
	return service.gallery.List()
}

// AttachSession resolves the browser session for a request. A session
// created on first contact is seeded from the default price workbook.
func (service *CoreService) AttachSession(c echo.Context) *session.Session {
	sess, created := service.sessions.Attach(c)
	if created {
		if err := service.SeedDefaultBook(sess); err != nil {
			slog.Warn("default price workbook not loaded", "path", service.config.DefaultPriceBook, "error", err)
		}
		slog.Debug("session created", "session_id", sess.ID, "rows", sess.BookSize())
	}
	return sess
}

// SeedDefaultBook replaces the session's book with the configured default
// workbook. Load problems leave the session book untouched.
func (service *CoreService) SeedDefaultBook(sess *session.Session) error {
	if service.config.DefaultPriceBook == "" {
		return nil
	}
	book, err := pricebook.Load(service.config.DefaultPriceBook)
	if err != nil {
		return err
	}
	sess.ReplaceBook(book)
	return nil
}

// RenderImage produces the final PNG for one gallery image: priced images
// get the white band with the three centered price lines, unpriced ones
// pass through with their pixels unchanged. Either way the result is
// PNG-encoded and memoized on the image name and the exact field values.
func (service *CoreService) RenderImage(ctx context.Context, name string, row pricebook.Row, priced bool) ([]byte, error) {
	key := rendercache.Key(name, row, priced)
	if data, ok := service.cache.Get(ctx, key); ok {
		return data, nil
	}

	start := time.Now()
	img, err := service.gallery.Load(name)
	if err != nil {
		return nil, err
	}

	var rendered image.Image = img
	if priced {
		rendered = service.annotator.Annotate(img, row)
	}

	data, err := annotate.EncodePNG(rendered)
	if err != nil {
		return nil, err
	}

	service.cache.Set(ctx, key, data)
	slog.Debug("image rendered", "image", name, "priced", priced, "size_bytes", len(data), "duration", time.Since(start))
	return data, nil
}

// RenderPreview renders the image and downscales it to the configured
// preview width for the gallery grid. Narrower images are served as-is.
func (service *CoreService) RenderPreview(ctx context.Context, name string, row pricebook.Row, priced bool) ([]byte, error) {
	data, err := service.RenderImage(ctx, name, row, priced)
	if err != nil {
		return nil, err
	}

	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode rendered image %s: %w", name, err)
	}
	if img.Bounds().Dx() <= service.config.PreviewWidth {
		return data, nil
	}

	preview := imaging.Resize(img, service.config.PreviewWidth, 0, imaging.Lanczos)
	return annotate.EncodePNG(preview)
}

// RenderArchive renders every gallery image against book and writes them
// into a single ZIP on w, one member per image in gallery order. Renders
// run concurrently; only the ZIP stream itself is sequential. It returns
// the number of archived images.
func (service *CoreService) RenderArchive(ctx context.Context, book pricebook.Book, w io.Writer) (int, error) {
	entries, err := service.gallery.List()
	if err != nil {
		return 0, err
	}

	rendered := make([][]byte, len(entries))
	errs := make([]error, len(entries))
	parallelForStop(len(entries), func(i int) bool {
		row, priced := book.Lookup(entries[i].Key)
		data, err := service.RenderImage(ctx, entries[i].Name, row, priced)
		if err != nil {
			errs[i] = err
			return true
		}
		rendered[i] = data
		return false
	})
	for i, err := range errs {
		if err != nil {
			return 0, fmt.Errorf("failed to render %s for the archive: %w", entries[i].Name, err)
		}
	}

	// Members keep the original filenames; only the per-image download
	// carries the processed_ prefix.
	archived := make([]archive.Entry, len(entries))
	for i, entry := range entries {
		archived[i] = archive.Entry{Name: entry.Name, Data: rendered[i]}
	}

	if err := archive.Write(w, archived); err != nil {
		return 0, err
	}
	slog.Info("archive rendered", "images", len(archived))
	return len(archived), nil
}

// Close releases the render cache connection.
func (service *CoreService) Close() {
	if err := service.cache.Close(); err != nil {
		slog.Warn("failed to close render cache", "error", err)
	}
}
