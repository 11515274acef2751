// Package gallery lists and decodes the product images the app serves.
package gallery

import (
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"strings"

	"github.com/joshbuysell/pt-bb-beds/internal/backend/pricebook"
)

// ErrNotListed marks requests for names the gallery would never list,
// such as paths or foreign extensions.
var ErrNotListed = errors.New("not a gallery image")

// Entry is one listed product image.
type Entry struct {
	Name string // filename as stored on disk
	Key  string // lower-cased stem, joins the price book
}

// Key derives the price-book join key from a filename: the extension is
// dropped and the stem is case-folded, nothing else.
func Key(filename string) string {
	stem := strings.TrimSuffix(filename, filepath.Ext(filename))
	return pricebook.Normalize(stem)
}

// Gallery reads product images from a single flat folder.
type Gallery struct {
	dir string
}

func New(dir string) *Gallery {
	return &Gallery{dir: dir}
}

// Dir returns the configured image folder.
func (g *Gallery) Dir() string {
	return g.dir
}

// List returns the .png and .jpg files of the image folder in directory
// order (lexicographic by name). Subdirectories and files with any other
// extension are ignored.
func (g *Gallery) List() ([]Entry, error) {
	dirEntries, err := os.ReadDir(g.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list image folder %s: %w", g.dir, err)
	}

	entries := make([]Entry, 0, len(dirEntries))
	for _, e := range dirEntries {
		if e.IsDir() || !listedExtension(e.Name()) {
			continue
		}
		entries = append(entries, Entry{Name: e.Name(), Key: Key(e.Name())})
	}
	return entries, nil
}

// listedExtension matches exactly the two supported suffixes. Matching is
// case-sensitive, so an upper-cased extension keeps a file out of the
// gallery.
func listedExtension(name string) bool {
	return strings.HasSuffix(name, ".png") || strings.HasSuffix(name, ".jpg")
}

// Load decodes one gallery image by its listed name. Names are confined
// to the image folder; anything carrying a path separator or a foreign
// extension is rejected.
func (g *Gallery) Load(name string) (image.Image, error) {
	if filepath.Base(name) != name || !listedExtension(name) {
		return nil, fmt.Errorf("%w: %q", ErrNotListed, name)
	}

	f, err := os.Open(filepath.Join(g.dir, name))
	if err != nil {
		return nil, fmt.Errorf("failed to open image %s: %w", name, err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image %s: %w", name, err)
	}
	return img, nil
}
