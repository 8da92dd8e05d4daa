package metadata

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	seriesID = "5c4b2a0e-6f1a-4a3b-9d8e-0a1b2c3d4e5f"
	groupAID = "11111111-2222-3333-4444-555555555555"
	groupBID = "66666666-7777-8888-9999-000000000000"
	fallback = "aaaaaaaa-bbbb-cccc-dddd-eeeeeeeeeeee"
)

func testNames() NameIDMap {
	return NameIDMap{
		Manga: map[string]string{"Title": seriesID, "Mr. Bean": seriesID},
		Group: map[string]string{"GroupA": groupAID, "GroupB": groupBID},
	}
}

func strPtr(s string) *string { return &s }

func TestParseScenarios(t *testing.T) {
	tests := []struct {
		name     string
		archive  string
		fallback string
		chapter  *string
		volume   *string
		title    *string
		language string
		groups   []string
	}{
		{
			name:     "full name",
			archive:  "[Artist] Title - c012 (v02) [GroupA+GroupB].cbz",
			chapter:  strPtr("12"),
			volume:   strPtr("2"),
			language: "en",
			groups:   []string{groupAID, groupBID},
		},
		{
			name:     "oneshot with volume",
			archive:  "Title (v02) [GroupA].cbz",
			volume:   strPtr("2"),
			language: "en",
			groups:   []string{groupAID},
		},
		{
			name:     "bare numeral is still a oneshot",
			archive:  "Title - 012 [GroupA].zip",
			language: "en",
			groups:   []string{groupAID},
		},
		{
			name:     "language tag and chapter title",
			archive:  "Title [jpn] - ch.0007.5 (vol. 000) (Why<question_mark>) [GroupB].cbz",
			chapter:  strPtr("7.5"),
			volume:   strPtr("0"),
			title:    strPtr("Why?"),
			language: "ja",
			groups:   []string{groupBID},
		},
		{
			name:     "series and group given as ids",
			archive:  seriesID + " [es-la] - c1 [" + groupAID + " + Unknown].cbz",
			chapter:  strPtr("1"),
			language: "es-la",
			groups:   []string{groupAID},
		},
		{
			name:     "unresolved groups use fallback",
			archive:  "Title - chapter 000 [Nobody].cbz",
			fallback: fallback,
			chapter:  strPtr("0"),
			language: "en",
			groups:   []string{fallback},
		},
		{
			name:     "no groups and no fallback",
			archive:  "Mr. Bean - c3 {v2}.zip",
			chapter:  strPtr("3"),
			language: "en",
			groups:   []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewParser(testNames(), tt.fallback, nil)
			meta, err := p.Parse(tt.archive)
			require.NoError(t, err)
			assert.Equal(t, seriesID, meta.SeriesID)
			assert.Equal(t, tt.chapter, meta.Chapter)
			assert.Equal(t, tt.volume, meta.Volume)
			assert.Equal(t, tt.title, meta.Title)
			assert.Equal(t, tt.language, meta.Language)
			assert.Equal(t, tt.groups, meta.GroupIDs)
			assert.Equal(t, tt.chapter == nil, meta.IsOneshot())

			again, err := p.Parse(tt.archive)
			require.NoError(t, err)
			assert.Equal(t, meta, again, "parsing must be idempotent")
		})
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name    string
		archive string
		want    error
	}{
		{"unknown series", "Unknown Series - c1.cbz", ErrUnknownSeries},
		{"null language", "Title [xyz] - c1.cbz", ErrNullLanguage},
		{"unresolved language", "Title [Klingon] - c1.cbz", ErrUnresolvedLanguage},
		{"ambiguous language fails closed", "Title [Korean] - c1.cbz", ErrAmbiguousLanguage},
		{"wrong extension", "Title - c1.rar", ErrUnknownSeries},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewParser(testNames(), "", nil).Parse(tt.archive)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
			assert.ErrorIs(t, err, ErrParse)
		})
	}
}

func TestNormalizeChapter(t *testing.T) {
	tests := map[string]string{
		"0007":  "7",
		"000":   "0",
		"12":    "12",
		"012.5": "12.5",
		"10-5":  "10.5",
		"0.5":   "0.5",
	}
	for in, want := range tests {
		if got := NormalizeChapter(in); got != want {
			t.Errorf("NormalizeChapter(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestNormalizeVolume(t *testing.T) {
	tests := map[string]string{
		"02":  "2",
		"000": "0",
		"10":  "10",
		"0.5": "0.5",
	}
	for in, want := range tests {
		if got := NormalizeVolume(in); got != want {
			t.Errorf("NormalizeVolume(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestResolveLanguage(t *testing.T) {
	tests := []struct {
		input string
		want  string
		err   error
	}{
		{"", "en", nil},
		{"eng", "en", nil},
		{"EN", "en", nil},
		{"ES-LA", "es-la", nil},
		{"pt-br", "pt-br", nil},
		{"jpn", "ja", nil},
		{"ger", "de", nil},
		{"xyz", NullLanguage, nil},
		{"Greek", "el", nil},
		{"vietnam", "vi", nil},
		{"Spanish", "", ErrAmbiguousLanguage},
		{"Klingon", "", ErrUnresolvedLanguage},
		{"x", "", ErrUnresolvedLanguage},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ResolveLanguage(tt.input, FailClosed)
			if tt.err != nil {
				assert.ErrorIs(t, err, tt.err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolveLanguageLegacyCodesNeverFabricated(t *testing.T) {
	known := map[string]bool{NullLanguage: true}
	for _, l := range Languages() {
		known[l.Code] = true
	}
	for _, code := range []string{"abc", "qqq", "zzz", "jpn", "spa", "chi"} {
		got, err := ResolveLanguage(code, FailClosed)
		require.NoError(t, err)
		assert.True(t, known[got], "resolved %q to unknown code %q", code, got)
	}
}

func TestResolveLanguageDisambiguation(t *testing.T) {
	var offered []Language
	pickSecond := DisambiguatorFunc(func(input string, candidates []Language) (Language, error) {
		offered = candidates
		return candidates[1], nil
	})
	got, err := ResolveLanguage("korean", pickSecond)
	require.NoError(t, err)
	assert.Equal(t, "ko-ro", got)
	require.Len(t, offered, 2)
	assert.Equal(t, "Korean", offered[0].English)

	abort := errors.New("user aborted")
	_, err = ResolveLanguage("korean", DisambiguatorFunc(func(string, []Language) (Language, error) {
		return Language{}, abort
	}))
	assert.ErrorIs(t, err, abort)

	_, err = ResolveLanguage("korean", DisambiguatorFunc(func(string, []Language) (Language, error) {
		return Language{English: "Martian", Code: "mr"}, nil
	}))
	assert.ErrorIs(t, err, ErrUnresolvedLanguage)
}

func TestIsPlatformID(t *testing.T) {
	assert.True(t, IsPlatformID(seriesID))
	assert.True(t, IsPlatformID("5C4B2A0E-6F1A-4A3B-9D8E-0A1B2C3D4E5F"))
	assert.False(t, IsPlatformID("5c4b2a0e6f1a4a3b9d8e0a1b2c3d4e5f"))
	assert.False(t, IsPlatformID("{5c4b2a0e-6f1a-4a3b-9d8e-0a1b2c3d4e5f}"))
	assert.False(t, IsPlatformID("Title"))
}

func TestLoadNameIDMap(t *testing.T) {
	dir := t.TempDir()

	missing := LoadNameIDMap(filepath.Join(dir, "missing.json"))
	assert.NotNil(t, missing.Manga)
	assert.NotNil(t, missing.Group)

	corrupt := filepath.Join(dir, "corrupt.json")
	require.NoError(t, os.WriteFile(corrupt, []byte("{not json"), 0600))
	assert.Empty(t, LoadNameIDMap(corrupt).Manga)

	good := filepath.Join(dir, "map.json")
	require.NoError(t, os.WriteFile(good, []byte(`{"manga":{"Title":"`+seriesID+`"}}`), 0600))
	m := LoadNameIDMap(good)
	assert.Equal(t, seriesID, m.Manga["Title"])
	assert.NotNil(t, m.Group)
}
