package models

import (
	"strings"
	"time"
)

type (
	Config struct {
		// Connection/Auth
		ApiUrl   string `toml:"ApiUrl"`
		Username string `toml:"Username"`
		Password string `toml:"Password"`

		// Paths
		UploadsFolder  string `toml:"UploadsFolder"`
		UploadedFolder string `toml:"UploadedFolder"`
		NameIDMapFile  string `toml:"NameIDMapFile"`
		DatabasePath   string `toml:"DatabasePath"`
		BleveIndexPath string `toml:"BleveIndexPath"`

		// Uploader Behavior
		GroupFallbackID  string `toml:"GroupFallbackID"`
		ImagesPerBatch   int    `toml:"ImagesPerBatch"`
		UploadRetry      int    `toml:"UploadRetry"`
		RatelimitSeconds int    `toml:"RatelimitSeconds"`
		SkipDuplicates   bool   `toml:"SkipDuplicates"`

		// API Behavior
		RequestsPerSecond   float64 `toml:"RequestsPerSecond"`
		ApiDelayMs          int     `toml:"ApiDelayMs"`
		ApiClientTimeoutSec int     `toml:"ApiClientTimeoutSec"`

		// Other
		LogApiRequests bool `toml:"LogApiRequests"`
	}

	// Credential is the persisted bearer session.
	Credential struct {
		Session string `json:"session"`
		Refresh string `json:"refresh"`
	}

	// ChapterMetadata is what the file name tells us about a chapter.
	// Chapter is nil for one-shots; Volume and Title are nil when absent.
	ChapterMetadata struct {
		ArchiveName string
		SeriesID    string
		Language    string
		Volume      *string
		Chapter     *string
		Title       *string
		GroupIDs    []string
		Version     string
	}

	// --- Platform API Structures ---

	ApiErrorDetail struct {
		ID     string `json:"id,omitempty"`
		Status int    `json:"status"`
		Title  string `json:"title,omitempty"`
		Detail string `json:"detail"`
	}

	ApiErrorBody struct {
		Result string           `json:"result"`
		Errors []ApiErrorDetail `json:"errors"`
	}

	LoginRequest struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}

	RefreshRequest struct {
		Token string `json:"token"`
	}

	TokenResponse struct {
		Result string     `json:"result"`
		Token  Credential `json:"token"`
	}

	AuthCheckResponse struct {
		Result          string   `json:"result"`
		IsAuthenticated bool     `json:"isAuthenticated"`
		Roles           []string `json:"roles"`
	}

	UploadSession struct {
		ID         string `json:"id"`
		Type       string `json:"type"`
		Attributes struct {
			IsCommitted bool   `json:"isCommitted"`
			IsProcessed bool   `json:"isProcessed"`
			IsDeleted   bool   `json:"isDeleted"`
			Version     int    `json:"version"`
			CreatedAt   string `json:"createdAt"`
			UpdatedAt   string `json:"updatedAt"`
		} `json:"attributes"`
	}

	UploadSessionResponse struct {
		Result string        `json:"result"`
		Data   UploadSession `json:"data"`
	}

	BeginUploadRequest struct {
		Manga  string   `json:"manga"`
		Groups []string `json:"groups"`
	}

	UploadedImage struct {
		ID         string `json:"id"`
		Type       string `json:"type"`
		Attributes struct {
			OriginalFileName string `json:"originalFileName"`
			FileHash         string `json:"fileHash"`
			FileSize         int64  `json:"fileSize"`
			MimeType         string `json:"mimeType"`
		} `json:"attributes"`
	}

	ImageUploadResponse struct {
		Result string           `json:"result"`
		Errors []ApiErrorDetail `json:"errors"`
		Data   []UploadedImage  `json:"data"`
	}

	ChapterDraft struct {
		Volume             *string `json:"volume"`
		Chapter            *string `json:"chapter"`
		Title              *string `json:"title"`
		TranslatedLanguage string  `json:"translatedLanguage"`
	}

	CommitRequest struct {
		ChapterDraft ChapterDraft `json:"chapterDraft"`
		PageOrder    []string     `json:"pageOrder"`
	}

	CommitResponse struct {
		Result string `json:"result"`
		Data   struct {
			ID   string `json:"id"`
			Type string `json:"type"`
		} `json:"data"`
	}

	// Internal history entry for each processed archive
	UploadRecord struct {
		ArchiveName  string    `json:"archiveName"`
		Fingerprint  string    `json:"fingerprint"`
		SeriesID     string    `json:"seriesId"`
		ChapterID    string    `json:"chapterId,omitempty"`
		Language     string    `json:"language"`
		Volume       string    `json:"volume,omitempty"`
		Chapter      string    `json:"chapter,omitempty"`
		Title        string    `json:"title,omitempty"`
		GroupIDs     []string  `json:"groupIds,omitempty"`
		Pages        int       `json:"pages"`
		MovedTo      string    `json:"movedTo,omitempty"`
		Status       string    `json:"status"`
		ErrorDetails string    `json:"errorDetails,omitempty"`
		Timestamp    time.Time `json:"timestamp"`
	}
)

// Upload history status constants
const (
	StatusCommitted = "Committed"
	StatusFailed    = "Failed"
)

// Draft converts the parsed metadata into the commit payload.
func (m ChapterMetadata) Draft() ChapterDraft {
	return ChapterDraft{
		Volume:             m.Volume,
		Chapter:            m.Chapter,
		Title:              m.Title,
		TranslatedLanguage: m.Language,
	}
}

// IsOneshot reports whether the archive had no chapter prefix token.
func (m ChapterMetadata) IsOneshot() bool {
	return m.Chapter == nil
}

// String renders the metadata for log lines and console output.
func (m ChapterMetadata) String() string {
	var b strings.Builder
	b.WriteString("Manga id: " + m.SeriesID)
	b.WriteString(", chapter: " + deref(m.Chapter, "oneshot"))
	b.WriteString(", volume: " + deref(m.Volume, "none"))
	b.WriteString(", title: " + deref(m.Title, "none"))
	b.WriteString(", language: " + m.Language)
	b.WriteString(", groups: [" + strings.Join(m.GroupIDs, ", ") + "]")
	return b.String()
}

func deref(s *string, fallback string) string {
	if s == nil {
		return fallback
	}
	return *s
}
