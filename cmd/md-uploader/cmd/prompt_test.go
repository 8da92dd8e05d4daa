package cmd

import (
	"bytes"
	"strings"
	"testing"

	"go-mangadex-upload/internal/metadata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var portuguese = []metadata.Language{
	{English: "Portuguese (Br)", Code: "pt-br", ISO: "por"},
	{English: "Portuguese (Pt)", Code: "pt", ISO: "por"},
}

func TestConsoleDisambiguatorChoosesByNumber(t *testing.T) {
	var out bytes.Buffer
	d := newConsoleDisambiguator(strings.NewReader("9\nabc\n2\n"), &out)

	lang, err := d.Choose("portuguese", portuguese)
	require.NoError(t, err)
	assert.Equal(t, "pt", lang.Code)
	assert.Contains(t, out.String(), "1) Portuguese (Br) (pt-br)")
	assert.Equal(t, 2, strings.Count(out.String(), "Invalid choice."))
}

func TestConsoleDisambiguatorAcceptsLastLineWithoutNewline(t *testing.T) {
	d := newConsoleDisambiguator(strings.NewReader("1"), &bytes.Buffer{})
	lang, err := d.Choose("portuguese", portuguese)
	require.NoError(t, err)
	assert.Equal(t, "pt-br", lang.Code)
}

func TestConsoleDisambiguatorEndOfInput(t *testing.T) {
	d := newConsoleDisambiguator(strings.NewReader(""), &bytes.Buffer{})
	_, err := d.Choose("portuguese", portuguese)
	assert.ErrorIs(t, err, metadata.ErrAmbiguousLanguage)
	assert.ErrorIs(t, err, metadata.ErrParse)
}

func TestConfirm(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"y\n", true},
		{"YES\n", true},
		{"n\n", false},
		{"\n", false},
		{"", false},
	}
	for _, tt := range tests {
		var out bytes.Buffer
		assert.Equal(t, tt.want, confirm(strings.NewReader(tt.input), &out, "Delete?"), "input %q", tt.input)
		assert.Equal(t, "Delete? (y/N): ", out.String())
	}
}
