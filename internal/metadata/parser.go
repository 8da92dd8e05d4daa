// Package metadata turns archive file names into chapter metadata.
package metadata

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"go-mangadex-upload/internal/models"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

var (
	ErrParse              = errors.New("archive name could not be parsed")
	ErrUnknownSeries      = fmt.Errorf("%w: series id unknown", ErrParse)
	ErrUnresolvedLanguage = fmt.Errorf("%w: language could not be resolved", ErrParse)
	ErrAmbiguousLanguage  = fmt.Errorf("%w: language is ambiguous", ErrParse)
	ErrNullLanguage       = fmt.Errorf("%w: language has no platform code", ErrParse)
)

// The separator, chapter prefix and number form one optional group so that
// one-shots without " - " still match.
var archiveNamePattern = regexp.MustCompile(`(?i)^` +
	`(?:\[(?P<artist>.+?)?\])?\s?` +
	`(?P<title>.+?)` +
	`(?:\s?\[(?P<language>[a-zA-Z\-]{2,5}|[a-zA-Z]{3}|[a-zA-Z]+)?\])?` +
	`(?:\s?-\s?(?P<prefix>(?:[c](?:h(?:a?p?(?:ter)?)?)?\.?\s?))?(?P<chapter>\d+(?:[.\-]\d+)?)?)?` +
	`(?:\s?\((?:[v](?:ol(?:ume)?(?:s)?)?\.?\s?)?(?P<volume>\d+(?:\.\d)?)?\))?` +
	`\s?(?:\((?P<chapter_title>.+)\))?` +
	`\s?(?:\[(?:(?P<group>.+))?\])?` +
	`\s?(?:\{v?(?P<version>\d)?\})?` +
	`(?:\.(?P<extension>zip|cbz))?$`)

// questionMarkPlaceholder stands in for "?" which file systems reject.
const questionMarkPlaceholder = "<question_mark>"

// Parser resolves archive names against a name/id lookup.
type Parser struct {
	names           NameIDMap
	fallbackGroupID string
	disambiguator   Disambiguator
}

// NewParser returns a Parser. A nil Disambiguator fails closed.
func NewParser(names NameIDMap, fallbackGroupID string, d Disambiguator) *Parser {
	if d == nil {
		d = FailClosed
	}
	return &Parser{
		names:           names.normalized(),
		fallbackGroupID: strings.TrimSpace(fallbackGroupID),
		disambiguator:   d,
	}
}

// Parse produces the chapter metadata for one archive name. Any returned
// error wraps ErrParse.
func (p *Parser) Parse(archiveName string) (models.ChapterMetadata, error) {
	fields, ok := matchArchiveName(archiveName)
	if !ok {
		return models.ChapterMetadata{}, fmt.Errorf("%w: %q does not follow the naming convention", ErrParse, archiveName)
	}
	logger := log.WithField("archive", archiveName)

	seriesID, err := p.resolveSeries(fields["title"])
	if err != nil {
		return models.ChapterMetadata{}, err
	}

	language, err := ResolveLanguage(fields["language"], p.disambiguator)
	if err != nil {
		return models.ChapterMetadata{}, err
	}
	if language == NullLanguage {
		return models.ChapterMetadata{}, fmt.Errorf("%w: %q", ErrNullLanguage, fields["language"])
	}

	meta := models.ChapterMetadata{
		ArchiveName: archiveName,
		SeriesID:    seriesID,
		Language:    language,
		Version:     fields["version"],
	}

	if fields["prefix"] == "" {
		if fields["chapter"] != "" {
			logger.Infof("No chapter prefix before %q, uploading as oneshot", fields["chapter"])
		}
	} else if fields["chapter"] != "" {
		chapter := NormalizeChapter(fields["chapter"])
		meta.Chapter = &chapter
	}

	if fields["volume"] != "" {
		volume := NormalizeVolume(fields["volume"])
		meta.Volume = &volume
	}

	if title := fields["chapter_title"]; title != "" {
		title = strings.ReplaceAll(title, questionMarkPlaceholder, "?")
		meta.Title = &title
	}

	meta.GroupIDs = p.resolveGroups(fields["group"], logger)
	return meta, nil
}

func matchArchiveName(name string) (map[string]string, bool) {
	match := archiveNamePattern.FindStringSubmatch(name)
	if match == nil {
		return nil, false
	}
	fields := make(map[string]string, len(match))
	for i, key := range archiveNamePattern.SubexpNames() {
		if key != "" {
			fields[key] = match[i]
		}
	}
	return fields, true
}

func (p *Parser) resolveSeries(title string) (string, error) {
	title = strings.TrimSpace(title)
	if IsPlatformID(title) {
		return strings.ToLower(title), nil
	}
	if id, ok := p.names.Manga[title]; ok && id != "" {
		return id, nil
	}
	return "", fmt.Errorf("%w: no id for series %q", ErrUnknownSeries, title)
}

func (p *Parser) resolveGroups(raw string, logger *log.Entry) []string {
	groups := []string{}
	if raw != "" {
		for _, g := range strings.Split(raw, "+") {
			g = strings.TrimSpace(g)
			if g == "" {
				continue
			}
			if IsPlatformID(g) {
				groups = append(groups, strings.ToLower(g))
				continue
			}
			if id, ok := p.names.Group[g]; ok && id != "" {
				groups = append(groups, id)
				continue
			}
			logger.Warnf("No group id found for %s, not tagging the upload with this group", g)
		}
	}

	if len(groups) == 0 {
		if p.fallbackGroupID != "" {
			logger.Warn("No groups found, using group fallback")
			return []string{p.fallbackGroupID}
		}
		logger.Warn("Group fallback not set, uploading without a group")
	}
	return groups
}

// IsPlatformID reports whether s is a canonical hyphenated UUID.
func IsPlatformID(s string) bool {
	if len(s) != 36 {
		return false
	}
	_, err := uuid.Parse(s)
	return err == nil
}

// NormalizeChapter strips leading zeros from the integer part and joins the
// parts with ".". "0007" becomes "7" and "000" becomes "0".
func NormalizeChapter(raw string) string {
	parts := strings.FieldsFunc(raw, func(r rune) bool { return r == '.' || r == '-' })
	if len(parts) == 0 {
		return "0"
	}
	parts[0] = strings.TrimLeft(parts[0], "0")
	if parts[0] == "" {
		parts[0] = "0"
	}
	return strings.Join(parts, ".")
}

// NormalizeVolume strips leading zeros, keeping "0" for volume zero.
func NormalizeVolume(raw string) string {
	v := strings.TrimLeft(raw, "0")
	if v == "" || strings.HasPrefix(v, ".") {
		v = "0" + v
	}
	return v
}
