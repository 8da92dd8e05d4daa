package index

import (
	"path/filepath"
	"testing"
	"time"

	"go-mangadex-upload/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIndexAndSearchChapters(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chapters.bleve")
	idx, err := OpenOrCreateIndex(path)
	require.NoError(t, err)

	records := []models.UploadRecord{
		{ChapterID: "ch-1", ArchiveName: "Title - c1.cbz", SeriesID: "series-a", Language: "en", Chapter: "1", Pages: 20, Status: models.StatusCommitted, Timestamp: time.Now()},
		{ChapterID: "ch-2", ArchiveName: "Other [ja] - c7.cbz", SeriesID: "series-b", Language: "ja", Chapter: "7", Title: "Homecoming", Pages: 18, Status: models.StatusCommitted, Timestamp: time.Now()},
	}
	for _, rec := range records {
		require.NoError(t, IndexChapter(idx, ChapterFromRecord(rec)))
	}
	assert.Error(t, IndexChapter(idx, Chapter{}))

	res, err := SearchIndex(idx, "+language:ja", 10)
	require.NoError(t, err)
	require.Equal(t, uint64(1), res.Total)
	assert.Equal(t, "ch-2", res.Hits[0].ID)

	res, err = SearchIndex(idx, "homecoming", 10)
	require.NoError(t, err)
	require.Equal(t, uint64(1), res.Total)
	assert.Equal(t, "Homecoming", res.Hits[0].Fields["title"])

	require.NoError(t, idx.Close())

	// Reopen keeps the documents
	idx, err = OpenOrCreateIndex(path)
	require.NoError(t, err)
	count, err := idx.DocCount()
	require.NoError(t, err)
	assert.Equal(t, uint64(2), count)
	require.NoError(t, idx.Close())

	require.NoError(t, DeleteIndex(path))
	assert.NoDirExists(t, path)
}
