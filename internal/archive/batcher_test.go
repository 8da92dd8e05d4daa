package archive

import (
	"os"
	"path/filepath"
	"testing"

	"go-mangadex-upload/internal/testgen"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPageOrder(t *testing.T) {
	dir := t.TempDir()
	path := testgen.WriteArchive(t, dir, "chapter.cbz",
		"page10.png",
		"page2.JPG",
		"scans/",
		"credits.txt",
		"page1.png",
		"_cover.jpeg",
		"extra/!note.gif",
		"page.webp",
	)

	b, err := OpenBatcher(path, 10)
	require.NoError(t, err)
	defer b.Close()

	assert.Equal(t, []string{"_cover.jpeg", "extra/!note.gif", "page1.png", "page2.JPG", "page10.png"}, b.Names())
}

func TestPageOrderIsDeterministic(t *testing.T) {
	dir := t.TempDir()
	entries := []string{"b10.png", "a.png", "b2.png", "#x.png", "b1.png", "A.png", "c.jpg"}
	first := testgen.WriteArchive(t, dir, "one.cbz", entries...)

	reversed := make([]string, len(entries))
	for i, e := range entries {
		reversed[len(entries)-1-i] = e
	}
	second := testgen.WriteArchive(t, dir, "two.cbz", reversed...)

	b1, err := OpenBatcher(first, 3)
	require.NoError(t, err)
	defer b1.Close()
	b2, err := OpenBatcher(second, 3)
	require.NoError(t, err)
	defer b2.Close()

	assert.Equal(t, b1.Names(), b2.Names())
	assert.Equal(t, len(entries), b1.Len())
	assert.Equal(t, "#x.png", b1.Names()[0])
}

func TestWindowsCoverEveryIndexOnce(t *testing.T) {
	tests := []struct {
		name   string
		pages  int
		window int
		want   []Window
	}{
		{"exact multiple", 6, 3, []Window{{0, 3}, {3, 6}}},
		{"clipped last window", 7, 3, []Window{{0, 3}, {3, 6}, {6, 7}}},
		{"single window", 2, 10, []Window{{0, 2}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := testgen.WriteArchive(t, t.TempDir(), "c.cbz", testgen.Pages(tt.pages)...)
			b, err := OpenBatcher(path, tt.window)
			require.NoError(t, err)
			defer b.Close()

			var windows []Window
			seen := map[int]bool{}
			w := b.First()
			for {
				windows = append(windows, w)
				pages, next, err := b.Read(w)
				require.NoError(t, err)
				for _, p := range pages {
					assert.False(t, seen[p.Index], "index %d served twice", p.Index)
					seen[p.Index] = true
					assert.Equal(t, PageKey(p.Index), p.Key)
					assert.Equal(t, p.Key+".png", p.FileName)
					assert.Equal(t, "image/png", p.ContentType)
					assert.NotEmpty(t, p.Data)
				}
				if next == nil {
					break
				}
				w = *next
			}
			assert.Equal(t, tt.want, windows)
			assert.Len(t, seen, tt.pages)
			for i := 0; i < tt.pages; i++ {
				assert.True(t, seen[i], "index %d missing", i)
			}
		})
	}
}

func TestReadInvalidWindow(t *testing.T) {
	path := testgen.WriteArchive(t, t.TempDir(), "c.cbz", testgen.Pages(2)...)
	b, err := OpenBatcher(path, 2)
	require.NoError(t, err)
	defer b.Close()

	for _, w := range []Window{{-1, 1}, {1, 1}, {0, 3}} {
		_, _, err := b.Read(w)
		assert.ErrorIs(t, err, ErrInvalidWindow)
	}
}

func TestReadRejectsOversizedPage(t *testing.T) {
	path := testgen.WriteArchive(t, t.TempDir(), "c.cbz", testgen.Pages(2)...)
	b, err := OpenBatcher(path, 2)
	require.NoError(t, err)
	defer b.Close()

	saved := maxImageSize
	defer func() { maxImageSize = saved }()

	// A page of exactly the limit is kept whole
	maxImageSize = int64(len(testgen.ImageFor(t, "001.png")))
	pages, _, err := b.Read(b.First())
	require.NoError(t, err)
	assert.Len(t, pages[0].Data, int(maxImageSize))

	maxImageSize--
	_, _, err = b.Read(b.First())
	assert.ErrorIs(t, err, ErrPageTooLarge)
}

func TestOpenBatcherErrors(t *testing.T) {
	dir := t.TempDir()
	empty := testgen.WriteArchive(t, dir, "empty.cbz", "readme.txt", "folder/")
	_, err := OpenBatcher(empty, 10)
	assert.ErrorIs(t, err, ErrNoImages)

	_, err = OpenBatcher(filepath.Join(dir, "missing.cbz"), 10)
	assert.Error(t, err)

	bad := filepath.Join(dir, "bad.cbz")
	require.NoError(t, os.WriteFile(bad, []byte("not a zip"), 0600))
	_, err = OpenBatcher(bad, 10)
	assert.Error(t, err)

	_, err = OpenBatcher(empty, 0)
	assert.ErrorIs(t, err, ErrInvalidWindow)
}

func TestParsePageKey(t *testing.T) {
	tests := []struct {
		in      string
		want    int
		wantErr bool
	}{
		{"0", 0, false},
		{"12.png", 12, false},
		{" 7.jpg ", 7, false},
		{"dir/3.jpeg", 3, false},
		{"page.png", 0, true},
		{"-1.png", 0, true},
		{"", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParsePageKey(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidPageKey)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
	for i := 0; i < 50; i++ {
		got, err := ParsePageKey(PageKey(i) + ".png")
		require.NoError(t, err)
		assert.Equal(t, i, got)
	}
}
