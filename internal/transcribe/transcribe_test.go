package transcribe

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTightenTextRemovesSpaceBeforePunctuation(t *testing.T) {
	words := []Word{{Text: "Hello"}, {Text: ","}, {Text: "world"}, {Text: "."}}
	assert.Equal(t, "Hello, world.", TightenText(words))
}

func TestTightenTextClosingBracketAndQuote(t *testing.T) {
	words := []Word{{Text: "said"}, {Text: "("}, {Text: "quietly"}, {Text: ")"}}
	assert.Equal(t, "said (quietly)", TightenText(words))
}

func TestTightenTextOpeningBracket(t *testing.T) {
	words := []Word{{Text: "["}, {Text: "note"}, {Text: "]"}}
	assert.Equal(t, "[note]", TightenText(words))
}

func TestTightenTextEmptyInput(t *testing.T) {
	assert.Equal(t, "", TightenText(nil))
}

func TestNormalizeWordsDropsEmptyAndInvertedSpans(t *testing.T) {
	words := []Word{
		{StartMS: 0, EndMS: 100, Text: "ok"},
		{StartMS: 50, EndMS: 10, Text: "bad-order"},
		{StartMS: 0, EndMS: 100, Text: "   "},
		{StartMS: -1, EndMS: 100, Text: "negative-start"},
	}
	out := normalizeWords(words)
	assert.Len(t, out, 1)
	assert.Equal(t, "ok", out[0].Text)
}

func TestNormalizeSegmentsDropsEmptyAndInvertedSpans(t *testing.T) {
	segs := []Segment{
		{StartMS: 0, EndMS: 600, Text: "Assalamu alaikum"},
		{StartMS: 600, EndMS: 100, Text: "broken"},
		{StartMS: 0, EndMS: 0, Text: ""},
	}
	out := normalizeSegments(segs)
	assert.Len(t, out, 1)
	assert.Equal(t, "Assalamu alaikum", out[0].Text)
}

func TestParseWhisperXJSONAcceptsModernShape(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.json")
	doc := `{"language":"ar","segments":[{"start":0,"end":0.6,"text":"Assalamu alaikum","words":[{"start":0,"end":0.3,"word":"Assalamu"},{"start":0.3,"end":0.6,"word":"alaikum"}]}]}`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	out, err := parseWhisperXJSON(path)
	require.NoError(t, err)
	assert.Equal(t, "ar", out.Language)
	require.Len(t, out.Segments, 1)
	assert.Equal(t, int64(0), out.Segments[0].StartMS)
	assert.Equal(t, int64(600), out.Segments[0].EndMS)
	require.Len(t, out.Words, 2)
	assert.Equal(t, int64(300), out.Words[1].StartMS)
}

func TestParseWhisperXJSONAcceptsLegacyTranscriptionWithOffsets(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.json")
	doc := `{"language":"en","transcription":[{"offsets":{"from":100,"to":900},"text":"hello there"}]}`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	out, err := parseWhisperXJSON(path)
	require.NoError(t, err)
	require.Len(t, out.Segments, 1)
	assert.Equal(t, int64(100), out.Segments[0].StartMS)
	assert.Equal(t, int64(900), out.Segments[0].EndMS)
}

func TestParseWhisperXJSONDropsSegmentWithoutBounds(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.json")
	doc := `{"language":"en","segments":[{"text":"no bounds at all"},{"start":1,"end":2,"text":"kept"}]}`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	out, err := parseWhisperXJSON(path)
	require.NoError(t, err)
	require.Len(t, out.Segments, 1)
	assert.Equal(t, "kept", out.Segments[0].Text)
}
