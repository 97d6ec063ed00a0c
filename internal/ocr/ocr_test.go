package ocr

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lahirugmg/business-cost-tracker/constants"
	"github.com/lahirugmg/business-cost-tracker/internal/common"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// stubRunner fakes the tesseract binary. The tsv argument distinguishes the
// confidence pass from the plain text pass.
type stubRunner struct {
	text    string
	textErr error
	tsv     string
	tsvErr  error
	calls   [][]string
}

func (s *stubRunner) Run(_ context.Context, name string, args ...string) ([]byte, []byte, error) {
	s.calls = append(s.calls, append([]string{name}, args...))
	if len(args) > 0 && args[len(args)-1] == "tsv" {
		if s.tsvErr != nil {
			return nil, []byte("tsv boom"), s.tsvErr
		}
		return []byte(s.tsv), nil, nil
	}
	if s.textErr != nil {
		return nil, []byte("ocr boom"), s.textErr
	}
	return []byte(s.text), nil, nil
}

const sampleTSV = "level\tpage_num\tblock_num\tpar_num\tline_num\tword_num\tleft\ttop\twidth\theight\tconf\ttext\n" +
	"1\t1\t0\t0\t0\t0\t0\t0\t300\t400\t-1\t\n" +
	"5\t1\t1\t1\t1\t1\t10\t10\t50\t20\t90\tTOTAL\n" +
	"5\t1\t1\t1\t1\t2\t70\t10\t50\t20\t80\t12.50\n"

func TestExtractImageBlendsConfidence(t *testing.T) {
	runner := &stubRunner{
		text: "RECEIPT 2024-01-15\nTOTAL $12.50",
		tsv:  sampleTSV,
	}
	e := NewExtractor(Config{}, testLogger())
	e.runner = runner

	res, err := e.Extract(context.Background(), []byte("fake-image-bytes"), ".png")
	require.NoError(t, err)

	assert.Equal(t, constants.SourceImage, res.SourceType)
	assert.Equal(t, "image-ocr", res.Method)
	assert.Equal(t, 1, res.Pages)
	assert.Equal(t, "eng", res.Language)
	assert.Contains(t, res.Text, "TOTAL $12.50")

	// TSV mean is 85 -> 0.85; heuristic hits date+currency+amount -> 0.7.
	assert.InDelta(t, 0.7*0.85+0.3*0.7, float64(res.Confidence), 1e-3)
	require.Len(t, runner.calls, 2)
}

func TestExtractImageFallsBackToHeuristicConfidence(t *testing.T) {
	runner := &stubRunner{
		text:   "RECEIPT 2024-01-15\nTOTAL $12.50",
		tsvErr: errors.New("exit status 1"),
	}
	e := NewExtractor(Config{}, testLogger())
	e.runner = runner

	res, err := e.Extract(context.Background(), []byte("fake"), "jpg")
	require.NoError(t, err)

	assert.InDelta(t, 0.7, float64(res.Confidence), 1e-3)
	assert.NotEmpty(t, res.Warnings)
}

func TestExtractImageOCRFailure(t *testing.T) {
	runner := &stubRunner{textErr: errors.New("exit status 127")}
	e := NewExtractor(Config{}, testLogger())
	e.runner = runner

	_, err := e.Extract(context.Background(), []byte("fake"), ".jpeg")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tesseract")
}

func TestExtractUnsupportedExtension(t *testing.T) {
	e := NewExtractor(Config{}, testLogger())

	for _, ext := range []string{".heic", ".txt", "docx", ""} {
		t.Run(fmt.Sprintf("ext=%q", ext), func(t *testing.T) {
			_, err := e.Extract(context.Background(), []byte("x"), ext)
			require.Error(t, err)
			assert.ErrorIs(t, err, common.ErrInvalidInput)

			var app *common.AppError
			require.ErrorAs(t, err, &app)
			assert.Equal(t, common.CodeUnsupportedFormat, app.Code)
		})
	}
}

func TestExtractCorruptPDF(t *testing.T) {
	e := NewExtractor(Config{}, testLogger())

	_, err := e.Extract(context.Background(), []byte("definitely not a pdf"), ".pdf")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "opening pdf")
}

func TestTSVConfidenceParsing(t *testing.T) {
	tests := []struct {
		name string
		tsv  string
		want float64
	}{
		{"mean of word rows", sampleTSV, 0.85},
		{"structural rows only", "header\n1\t1\t0\t0\t0\t0\t0\t0\t1\t1\t-1\t\n", 0},
		{"empty output", "", 0},
		{"short rows skipped", "header\nbad\trow\n", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := NewExtractor(Config{}, testLogger())
			e.runner = &stubRunner{tsv: tt.tsv}

			conf, _, err := e.tesseractTSVConfidence(context.Background(), "whatever.png")
			require.NoError(t, err)
			assert.InDelta(t, tt.want, float64(conf), 1e-6)
		})
	}
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "", ""},
		{"crlf to lf", "a\r\nb\rc", "a\nb\nc"},
		{"tabs and runs of spaces collapse", "a\t\tb   c", "a b c"},
		{"blank lines capped at one", "a\n\n\n\n\nb", "a\n\nb"},
		{"trailing spaces trimmed", "line one   \nline two  ", "line one\nline two"},
		{"surrounding whitespace trimmed", "\n\n  hello \n", "hello"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.in))
		})
	}
}

func TestHeuristicConfidence(t *testing.T) {
	tests := []struct {
		name string
		text string
		want float64
	}{
		{"empty text gets the base score", "", 0.2},
		{"date currency and amount all hit", "Dinner 2024-01-15 total $45.00", 0.7},
		{"amount only", "subtotal 12.99", 0.35},
		{"long text bonus", strings.Repeat("lorem ipsum ", 12), 0.3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, float64(heuristicConfidence(tt.text)), 1e-6)
		})
	}
}
