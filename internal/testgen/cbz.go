// Package testgen builds chapter archives for tests.
package testgen

import (
	"archive/zip"
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/gif"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// WriteArchive creates a zip at dir/filename holding entries in the given
// order. Names ending in "/" become directories, image suffixes get a real
// encoded image and anything else gets a short text body.
func WriteArchive(t *testing.T, dir, filename string, entries ...string) string {
	t.Helper()

	path := filepath.Join(dir, filename)
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("failed to create archive: %v", err)
	}
	defer f.Close()

	zw := zip.NewWriter(f)
	for _, name := range entries {
		if strings.HasSuffix(name, "/") {
			if _, err := zw.Create(name); err != nil {
				t.Fatalf("failed to create dir %s: %v", name, err)
			}
			continue
		}
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("failed to create entry %s: %v", name, err)
		}
		if _, err := w.Write(ImageFor(t, name)); err != nil {
			t.Fatalf("failed to write entry %s: %v", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("failed to finish archive: %v", err)
	}
	return path
}

// Pages returns n page names 001.png, 002.png, ...
func Pages(n int) []string {
	names := make([]string, n)
	for i := range names {
		names[i] = fmt.Sprintf("%03d.png", i+1)
	}
	return names
}

// ImageFor encodes a tiny image matching the name's extension.
func ImageFor(t *testing.T, name string) []byte {
	t.Helper()

	img := image.NewPaletted(image.Rect(0, 0, 4, 4), color.Palette{color.Black, color.White})
	var buf bytes.Buffer
	var err error
	switch strings.ToLower(filepath.Ext(name)) {
	case ".png":
		err = png.Encode(&buf, img)
	case ".jpg", ".jpeg":
		err = jpeg.Encode(&buf, img, &jpeg.Options{Quality: 80})
	case ".gif":
		err = gif.Encode(&buf, img, nil)
	default:
		buf.WriteString("not an image: " + name)
	}
	if err != nil {
		t.Fatalf("failed to encode %s: %v", name, err)
	}
	return buf.Bytes()
}
