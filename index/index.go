package index

import (
	"errors"
	"fmt"
	"os"
	"time"

	"go-mangadex-upload/internal/models"

	"github.com/blevesearch/bleve/v2"
	log "github.com/sirupsen/logrus"
)

const defaultIndexPath = ".mdupload.bleve"

// Chapter is a committed chapter as stored in the search index.
// Fields are searchable by their JSON tag names, e.g. '+language:en' or
// '+groupIds:<id>'.
type Chapter struct {
	ID          string    `json:"id"`          // platform chapter id
	ArchiveName string    `json:"archiveName"` // name of the uploaded archive
	SeriesID    string    `json:"seriesId"`
	Language    string    `json:"language"`
	Volume      string    `json:"volume,omitempty"`
	Chapter     string    `json:"chapter,omitempty"`
	Title       string    `json:"title,omitempty"`
	GroupIDs    []string  `json:"groupIds,omitempty"`
	Pages       int       `json:"pages"`
	FilePath    string    `json:"filePath,omitempty"` // where the archive was moved
	Fingerprint string    `json:"fingerprint"`
	CommittedAt time.Time `json:"committedAt"`
}

// ChapterFromRecord builds the index document for a committed upload.
func ChapterFromRecord(rec models.UploadRecord) Chapter {
	return Chapter{
		ID:          rec.ChapterID,
		ArchiveName: rec.ArchiveName,
		SeriesID:    rec.SeriesID,
		Language:    rec.Language,
		Volume:      rec.Volume,
		Chapter:     rec.Chapter,
		Title:       rec.Title,
		GroupIDs:    rec.GroupIDs,
		Pages:       rec.Pages,
		FilePath:    rec.MovedTo,
		Fingerprint: rec.Fingerprint,
		CommittedAt: rec.Timestamp,
	}
}

// OpenOrCreateIndex opens an existing Bleve index or creates a new one if it doesn't exist.
func OpenOrCreateIndex(indexPath string) (bleve.Index, error) {
	if indexPath == "" {
		indexPath = defaultIndexPath
	}

	idx, err := bleve.Open(indexPath)
	if errors.Is(err, bleve.ErrorIndexPathDoesNotExist) {
		log.Infof("Creating new index at: %s", indexPath)
		idx, err = bleve.New(indexPath, bleve.NewIndexMapping())
		if err != nil {
			return nil, fmt.Errorf("error creating index at %s: %w", indexPath, err)
		}
		return idx, nil
	}
	if err != nil {
		return nil, fmt.Errorf("error opening index at %s: %w", indexPath, err)
	}
	log.Debugf("Opened existing index at: %s", indexPath)
	return idx, nil
}

// IndexChapter adds or updates a chapter in the index.
func IndexChapter(idx bleve.Index, ch Chapter) error {
	if ch.ID == "" {
		return errors.New("cannot index chapter without an id")
	}
	return idx.Index(ch.ID, ch)
}

// SearchIndex performs a query string search against the index.
func SearchIndex(idx bleve.Index, query string, size int) (*bleve.SearchResult, error) {
	searchRequest := bleve.NewSearchRequest(bleve.NewQueryStringQuery(query))
	searchRequest.Fields = []string{"*"}
	if size > 0 {
		searchRequest.Size = size
	}
	return idx.Search(searchRequest)
}

// DeleteIndex removes the index directory.
func DeleteIndex(indexPath string) error {
	if indexPath == "" {
		indexPath = defaultIndexPath
	}
	log.Warnf("Deleting index at: %s", indexPath)
	return os.RemoveAll(indexPath)
}
