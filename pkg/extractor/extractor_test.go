package extractor

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errs "pinscraper/pkg/errors"
)

func TestParsePinCount(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
	}{
		{"thousands", "1,234 Pins", "1,234"},
		{"plain", "12 Pins", "12"},
		{"label with space", "Travel, 1,234 Pins", "1,234"},
		{"label without space", "Art,12 Pins", "12"},
		{"name glued to count", "Mountains1,234 Pins", "1,234"},
		{"newlines", "Peaks\n\n305\nPins", "305"},
		{"singular", "1 Pin", "1"},
		{"millions", "Decor, 2,345,678 Pins", "2,345,678"},
		{"no digits", "no count", "no count"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParsePinCount(tt.text))
		})
	}
}

func TestCoerceCount(t *testing.T) {
	n, err := CoerceCount("1,234")
	require.NoError(t, err)
	assert.Equal(t, 1234, n)

	n, err = CoerceCount(ParsePinCount("12 Pins"))
	require.NoError(t, err)
	assert.Equal(t, 12, n)

	n, err = CoerceCount(" 7 ")
	require.NoError(t, err)
	assert.Equal(t, 7, n)

	_, err = CoerceCount(ParsePinCount("no count"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnparsedCount))
	assert.Equal(t, errs.KindTransientExtraction, errs.KindOf(err))
}

func TestParseSections(t *testing.T) {
	assert.Equal(t, 3, parseSections("3 sections"))
	assert.Equal(t, 1, parseSections("1 section · 40 Pins"))
	assert.Equal(t, 0, parseSections("40 Pins"))
}

const boardListHTML = `
<div role="listitem">
  <a href="/alice/mountain-peaks/">
    <div title="Mountain Peaks"><div>Mountain Peaks</div></div>
    <div style="-webkit-line-clamp: 1;">Alice, 1,234 Pins</div>
    <div style="-webkit-line-clamp: 1;">3 sections</div>
  </a>
</div>
<div role="listitem">
  <a href="/bob/hiking/">
    <div title="">ignored</div>
    <div title="Hiking">Hiking</div>
    <div style="-webkit-line-clamp: 1;">98 Pins</div>
  </a>
</div>
<div role="listitem">
  <a>no href</a>
  <a href="https://www.pinterest.com/carol/alps/">
    <div style="-webkit-line-clamp: 2;">999 Pins</div>
  </a>
</div>
`

func TestBoardExtractor(t *testing.T) {
	boards, err := NewBoardExtractor("https://www.pinterest.com").Extract(boardListHTML)
	require.NoError(t, err)
	require.Len(t, boards, 3)

	assert.Equal(t, RawBoard{
		URL:          "https://www.pinterest.com/alice/mountain-peaks/",
		PinCountText: "1,234",
		Sections:     3,
		Name:         "Mountain Peaks",
	}, boards[0])

	assert.Equal(t, "https://www.pinterest.com/bob/hiking/", boards[1].URL)
	assert.Equal(t, "98", boards[1].PinCountText)
	assert.Equal(t, 0, boards[1].Sections)
	assert.Equal(t, "Hiking", boards[1].Name)

	// No line-clamp caption leaves an empty, unparsable count
	assert.Equal(t, "https://www.pinterest.com/carol/alps/", boards[2].URL)
	assert.Equal(t, "", boards[2].PinCountText)
	assert.Equal(t, boards[2].URL, boards[2].RecordKey())
}

func TestBoardExtractorPartialSnapshot(t *testing.T) {
	boards, err := NewBoardExtractor("").Extract(`<a href="/x/y/"><div style="-webkit-line-clamp: 1;">5 Pins</div><div title="Trunc`)
	require.NoError(t, err)
	require.Len(t, boards, 1)
	assert.Equal(t, "/x/y/", boards[0].URL)
	assert.Equal(t, "5", boards[0].PinCountText)

	boards, err = NewBoardExtractor("").Extract("")
	require.NoError(t, err)
	assert.Empty(t, boards)
}

const pinListHTML = `
<div role="list">
  <div><a href="/pin/1001/"><img src="https://i.pinimg.com/236x/aa/bb/cc/aabbcc.jpg" alt="Sunrise over ridge"></a></div>
  <div><a href="/pin/1002/" aria-label="Lake view">
    <img src="https://i.pinimg.com/236x/dd.jpg" srcset="https://i.pinimg.com/236x/dd.jpg 1x, https://i.pinimg.com/474x/dd.jpg 2x">
  </a></div>
  <div><a href="/alice/">profile link</a></div>
  <div><a href="https://www.pinterest.com/pin/1003/">no image</a></div>
</div>
`

func TestPinExtractor(t *testing.T) {
	pins, err := NewPinExtractor("https://www.pinterest.com").Extract(pinListHTML)
	require.NoError(t, err)
	require.Len(t, pins, 3)

	assert.Equal(t, RawPin{
		URL:      "https://www.pinterest.com/pin/1001/",
		ImageURL: "https://i.pinimg.com/originals/aa/bb/cc/aabbcc.jpg",
		Title:    "Sunrise over ridge",
	}, pins[0])

	assert.Equal(t, "https://i.pinimg.com/originals/dd.jpg", pins[1].ImageURL)
	assert.Equal(t, "Lake view", pins[1].Title)

	assert.Equal(t, "https://www.pinterest.com/pin/1003/", pins[2].URL)
	assert.Empty(t, pins[2].ImageURL)
}

func TestExtractorsSatisfyInterface(t *testing.T) {
	var _ Extractor[RawBoard] = &BoardExtractor{}
	var _ Extractor[RawPin] = &PinExtractor{}
}
