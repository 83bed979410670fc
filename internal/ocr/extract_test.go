package ocr

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/Dan9191/lostcard-service/internal/models"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func box(x1, y1, x2, y2 float64) []Vertex {
	return []Vertex{{x1, y1}, {x2, y1}, {x2, y2}, {x1, y2}}
}

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

type stubDetector struct {
	detection *Detection
	err       error
	calls     int
}

func (s *stubDetector) DetectText(_ context.Context, _ []byte) (*Detection, error) {
	s.calls++
	return s.detection, s.err
}

func TestParseDetection_Positional(t *testing.T) {
	d := &Detection{
		FullText: "SAN DIEGO STATE\n111111111\nJane Doe\n222222222\n333333333",
		Bounds:   box(0, 0, 1000, 600),
		Fragments: []Fragment{
			// top-left, outside both regions
			{Text: "111111111", Vertices: box(10, 10, 200, 40)},
			// bottom-left name
			{Text: "Jane Doe", Vertices: box(20, 500, 250, 540)},
			// bottom-right, farther from the corner
			{Text: "222222222", Vertices: box(720, 450, 850, 480)},
			// bottom-right, closest to the corner
			{Text: "333333333", Vertices: box(840, 550, 990, 590)},
		},
	}

	info := ParseDetection(d)
	require.NotNil(t, info.RedID)
	assert.Equal(t, "333333333", *info.RedID)
	require.NotNil(t, info.FullName)
	assert.Equal(t, "Jane Doe", *info.FullName)
}

func TestParseDetection_ExtentFromFragments(t *testing.T) {
	d := &Detection{
		FullText: "987654321",
		Fragments: []Fragment{
			{Text: "ID", Vertices: box(0, 0, 50, 20)},
			{Text: "987654321", Vertices: box(800, 500, 1000, 600)},
		},
	}
	info := ParseDetection(d)
	require.NotNil(t, info.RedID)
	assert.Equal(t, "987654321", *info.RedID)
}

func TestParseDetection_NameRules(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
	}{
		{"two words", "Jane Doe", "Jane Doe"},
		{"four words", "Mary Ann Van Dyke", "Mary Ann Van Dyke"},
		{"single word rejected", "Jane", ""},
		{"five words rejected", "A Bb Cc Dd Ee", ""},
		{"uppercase rejected", "JANE DOE", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := &Detection{
				FullText: "123",
				Bounds:   box(0, 0, 1000, 600),
				Fragments: []Fragment{
					{Text: tt.text, Vertices: box(10, 500, 200, 540)},
				},
			}
			info := ParseDetection(d)
			assert.Equal(t, tt.want, models.Deref(info.FullName))
		})
	}
}

func TestParseDetection_Fallbacks(t *testing.T) {
	t.Run("identifier anywhere in full text", func(t *testing.T) {
		d := &Detection{
			FullText: "STUDENT\nID 123456789\n",
			Bounds:   box(0, 0, 1000, 600),
			Fragments: []Fragment{
				{Text: "123456789", Vertices: box(10, 10, 200, 40)},
			},
		}
		info := ParseDetection(d)
		assert.Equal(t, "123456789", models.Deref(info.RedID))
	})

	t.Run("labeled name", func(t *testing.T) {
		d := &Detection{FullText: "STUDENT CARD\nName: John Smith\n"}
		info := ParseDetection(d)
		assert.Equal(t, "John Smith", models.Deref(info.FullName))
	})

	t.Run("labeled name in capitals", func(t *testing.T) {
		d := &Detection{FullText: "SAN DIEGO STATE\nNAME: JOHN DOE\nSDSU"}
		info := ParseDetection(d)
		assert.Equal(t, "JOHN DOE", models.Deref(info.FullName))
	})

	t.Run("lowercase label", func(t *testing.T) {
		d := &Detection{FullText: "student name: ana ruiz"}
		info := ParseDetection(d)
		assert.Equal(t, "ana ruiz", models.Deref(info.FullName))
	})

	t.Run("standalone capitalized line", func(t *testing.T) {
		d := &Detection{FullText: "SDSU\nMaria Lopez\n"}
		info := ParseDetection(d)
		assert.Equal(t, "Maria Lopez", models.Deref(info.FullName))
	})

	t.Run("ten digits are not an identifier", func(t *testing.T) {
		d := &Detection{FullText: "1234567890"}
		info := ParseDetection(d)
		assert.Nil(t, info.RedID)
		assert.Nil(t, info.FullName)
	})
}

func TestExtractor_Extract(t *testing.T) {
	ctx := context.Background()

	t.Run("detector error yields empty info", func(t *testing.T) {
		e := NewExtractor(&stubDetector{err: errors.New("quota exceeded")}, 0, quietLogger())
		info := e.Extract(ctx, []byte("img"))
		assert.False(t, info.Found())
	})

	t.Run("no text yields empty info", func(t *testing.T) {
		e := NewExtractor(&stubDetector{detection: &Detection{}}, 0, quietLogger())
		info := e.Extract(ctx, []byte("img"))
		assert.False(t, info.Found())
	})

	t.Run("unconfigured detector", func(t *testing.T) {
		e := NewExtractor(nil, 0, quietLogger())
		info := e.Extract(ctx, []byte("img"))
		assert.False(t, info.Found())
	})

	t.Run("empty image skips detection", func(t *testing.T) {
		det := &stubDetector{}
		e := NewExtractor(det, 0, quietLogger())
		e.Extract(ctx, nil)
		assert.Equal(t, 0, det.calls)
	})

	t.Run("detection parsed", func(t *testing.T) {
		det := &stubDetector{detection: &Detection{FullText: "Name: Ana Ruiz\n555666777"}}
		e := NewExtractor(det, 0, quietLogger())
		info := e.Extract(ctx, []byte("img"))
		assert.Equal(t, "555666777", models.Deref(info.RedID))
		assert.Equal(t, "Ana Ruiz", models.Deref(info.FullName))
	})
}
