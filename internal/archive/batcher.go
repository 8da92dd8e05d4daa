// Package archive reads chapter pages out of zip/cbz archives in a fixed order.
package archive

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"path"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"go-mangadex-upload/internal/helpers"

	"github.com/gabriel-vasile/mimetype"
	"github.com/maruel/natural"
	log "github.com/sirupsen/logrus"
)

var (
	ErrNoImages       = errors.New("archive contains no images")
	ErrInvalidWindow  = errors.New("invalid page window")
	ErrInvalidPageKey = errors.New("invalid page key")
	ErrPageTooLarge   = errors.New("page exceeds the size limit")
)

// maxImageSize guards against decompression bombs.
var maxImageSize int64 = 64 << 20

const asciiPunctuation = "!\"#$%&'()*+,-./:;<=>?@[\\]^_`{|}~"

var imageExtensions = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".gif":  true,
}

// Page is one image read from the archive. Key is the frozen index as a
// decimal string and FileName is what is sent to the platform.
type Page struct {
	Index       int
	Key         string
	Name        string
	FileName    string
	ContentType string
	Data        []byte
}

// Window is the half-open index range [Start, Stop) of one batch.
type Window struct {
	Start int
	Stop  int
}

func (w Window) String() string {
	return fmt.Sprintf("%d-%d", w.Start+1, w.Stop)
}

// Batcher serves fixed-size windows of the archive's pages. Page indices are
// assigned once in OpenBatcher and never change.
type Batcher struct {
	path       string
	reader     *zip.ReadCloser
	pages      []*zip.File
	windowSize int
}

// OpenBatcher opens the archive and freezes its page order.
func OpenBatcher(archivePath string, windowSize int) (*Batcher, error) {
	if windowSize < 1 {
		return nil, fmt.Errorf("%w: window size %d", ErrInvalidWindow, windowSize)
	}
	reader, err := zip.OpenReader(archivePath)
	if err != nil {
		return nil, fmt.Errorf("error opening archive %s: %w", archivePath, err)
	}

	pages := imageEntries(reader.File)
	if len(pages) == 0 {
		reader.Close()
		return nil, fmt.Errorf("%w: %s", ErrNoImages, archivePath)
	}
	log.WithField("archive", filepath.Base(archivePath)).Debugf("Indexed %d pages", len(pages))

	return &Batcher{
		path:       archivePath,
		reader:     reader,
		pages:      pages,
		windowSize: windowSize,
	}, nil
}

func imageEntries(files []*zip.File) []*zip.File {
	var pages []*zip.File
	for _, f := range files {
		if f.FileInfo().IsDir() || strings.HasSuffix(f.Name, "/") {
			continue
		}
		if !imageExtensions[strings.ToLower(path.Ext(f.Name))] {
			continue
		}
		pages = append(pages, f)
	}
	sort.SliceStable(pages, func(i, j int) bool {
		return lessPageName(pages[i].Name, pages[j].Name)
	})
	return pages
}

// lessPageName orders names whose base starts with punctuation first, then
// naturally. Falls back to byte order so equal-looking names stay total.
func lessPageName(a, b string) bool {
	pa, pb := startsWithPunctuation(a), startsWithPunctuation(b)
	if pa != pb {
		return pa
	}
	if natural.Less(a, b) {
		return true
	}
	if natural.Less(b, a) {
		return false
	}
	return a < b
}

func startsWithPunctuation(name string) bool {
	base := path.Base(name)
	return base != "" && strings.ContainsRune(asciiPunctuation, rune(base[0]))
}

// Len is the number of pages in the archive.
func (b *Batcher) Len() int {
	return len(b.pages)
}

// Names returns the in-archive names in index order.
func (b *Batcher) Names() []string {
	names := make([]string, len(b.pages))
	for i, p := range b.pages {
		names[i] = p.Name
	}
	return names
}

// First returns the first window.
func (b *Batcher) First() Window {
	return b.clip(0)
}

func (b *Batcher) clip(start int) Window {
	stop := start + b.windowSize
	if stop > len(b.pages) {
		stop = len(b.pages)
	}
	return Window{Start: start, Stop: stop}
}

// Read loads the pages of w and returns the window after it, or nil once
// w reached the end of the archive.
func (b *Batcher) Read(w Window) ([]Page, *Window, error) {
	if w.Start < 0 || w.Start >= w.Stop || w.Stop > len(b.pages) {
		return nil, nil, fmt.Errorf("%w: %d-%d of %d pages", ErrInvalidWindow, w.Start, w.Stop, len(b.pages))
	}

	pages := make([]Page, 0, w.Stop-w.Start)
	for i := w.Start; i < w.Stop; i++ {
		page, err := b.readPage(i)
		if err != nil {
			return nil, nil, err
		}
		pages = append(pages, page)
	}

	if w.Stop >= len(b.pages) {
		return pages, nil, nil
	}
	next := b.clip(w.Stop)
	return pages, &next, nil
}

func (b *Batcher) readPage(index int) (Page, error) {
	entry := b.pages[index]
	r, err := entry.Open()
	if err != nil {
		return Page{}, fmt.Errorf("error opening %s in %s: %w", entry.Name, b.path, err)
	}
	defer r.Close()

	data, err := io.ReadAll(io.LimitReader(r, maxImageSize+1))
	if err != nil {
		return Page{}, fmt.Errorf("error reading %s in %s: %w", entry.Name, b.path, err)
	}
	if int64(len(data)) > maxImageSize {
		return Page{}, fmt.Errorf("%w: %s in %s is over %s", ErrPageTooLarge, entry.Name, b.path,
			helpers.BytesToSize(uint64(maxImageSize)))
	}

	ext := strings.ToLower(path.Ext(entry.Name))
	key := PageKey(index)
	return Page{
		Index:       index,
		Key:         key,
		Name:        path.Base(entry.Name),
		FileName:    key + ext,
		ContentType: contentType(data, ext),
		Data:        data,
	}, nil
}

func contentType(data []byte, ext string) string {
	if mt := mimetype.Detect(data); strings.HasPrefix(mt.String(), "image/") {
		return mt.String()
	}
	switch ext {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	default:
		return "application/octet-stream"
	}
}

// Close releases the archive.
func (b *Batcher) Close() error {
	return b.reader.Close()
}

// PageKey is the reconciliation key sent for the page at index.
func PageKey(index int) string {
	return strconv.Itoa(index)
}

// ParsePageKey recovers the index from the originalFileName the platform
// echoes back. Directory parts, the extension and whitespace are ignored.
func ParsePageKey(name string) (int, error) {
	base := strings.TrimSpace(path.Base(strings.ReplaceAll(name, "\\", "/")))
	base = strings.TrimSuffix(base, path.Ext(base))
	index, err := strconv.Atoi(strings.TrimSpace(base))
	if err != nil || index < 0 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidPageKey, name)
	}
	return index, nil
}
