// Package ocr turns raw text detections from a card photo into the owner's
// identifier and name.
//
// Cards put the red identifier in the bottom-right corner and the printed name
// in the bottom-left corner; both regions are 30% of the image in each
// dimension. Positional matches win over plain pattern matches on the full
// text.
package ocr

import (
	"context"
	"math"
	"regexp"
	"strings"
	"time"

	"github.com/Dan9191/lostcard-service/internal/models"
	"github.com/sirupsen/logrus"
)

const regionFraction = 0.3

var (
	redIDPattern    = regexp.MustCompile(`\b\d{9}\b`)
	nameWordPattern = regexp.MustCompile(`^[A-Z][a-z]+$`)
	namePatterns    = []*regexp.Regexp{
		// labeled names may be printed in any case; words stay on one line
		regexp.MustCompile(`(?i)(?:student name|name)[:\s]+([a-z]+(?:[ \t]+[a-z]+)+)`),
		regexp.MustCompile(`(?m)^([A-Z][a-z]+(?:\s+[A-Z][a-z]+)+)`),
	}
)

// Vertex is one corner of a bounding polygon
type Vertex struct {
	X float64
	Y float64
}

// Fragment is a single detected word or phrase with its bounding polygon
type Fragment struct {
	Text     string
	Vertices []Vertex
}

// Detection is the raw output of a text-detection call
type Detection struct {
	FullText string
	// Bounds is the polygon around all detected text, when the service reports one
	Bounds    []Vertex
	Fragments []Fragment
}

// Detector runs text detection on an image
type Detector interface {
	DetectText(ctx context.Context, image []byte) (*Detection, error)
}

// Extractor reads identifying fields from card photos
type Extractor struct {
	detector Detector
	timeout  time.Duration
	log      *logrus.Logger
}

// NewExtractor initializes an extractor; a nil detector disables extraction
func NewExtractor(detector Detector, timeout time.Duration, log *logrus.Logger) *Extractor {
	return &Extractor{detector: detector, timeout: timeout, log: log}
}

// Extract never fails: detection errors and empty results yield empty info
func (e *Extractor) Extract(ctx context.Context, image []byte) models.ExtractedInfo {
	if e.detector == nil {
		e.log.Warn("Text detection is not configured, skipping extraction")
		return models.ExtractedInfo{}
	}
	if len(image) == 0 {
		e.log.Warn("Empty image, skipping extraction")
		return models.ExtractedInfo{}
	}

	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	detection, err := e.detector.DetectText(ctx, image)
	if err != nil {
		e.log.WithError(err).Warn("Text detection failed")
		return models.ExtractedInfo{}
	}
	if detection == nil || (detection.FullText == "" && len(detection.Fragments) == 0) {
		e.log.Info("No text detected in image")
		return models.ExtractedInfo{}
	}

	info := ParseDetection(detection)
	e.log.WithFields(logrus.Fields{
		"red_id":    models.Deref(info.RedID),
		"full_name": models.Deref(info.FullName),
	}).Info("Extracted card fields")
	return info
}

type redIDCandidate struct {
	redID    string
	distance float64
}

// ParseDetection applies the positional heuristics, then the full-text fallbacks
func ParseDetection(d *Detection) models.ExtractedInfo {
	width, height := imageExtent(d)
	idMinX, idMinY := width*(1-regionFraction), height*(1-regionFraction)
	nameMaxX, nameMinY := width*regionFraction, height*(1-regionFraction)

	var (
		candidates []redIDCandidate
		fullName   string
	)
	for _, f := range d.Fragments {
		if len(f.Vertices) == 0 {
			continue
		}
		cx, cy, right, bottom := fragmentGeometry(f.Vertices)

		if cx >= idMinX && cy >= idMinY {
			if m := redIDPattern.FindString(f.Text); m != "" {
				candidates = append(candidates, redIDCandidate{
					redID:    m,
					distance: math.Hypot(width-right, height-bottom),
				})
			}
		}

		if fullName == "" && cx <= nameMaxX && cy >= nameMinY {
			if name, ok := matchName(f.Text); ok {
				fullName = name
			}
		}
	}

	var redID string
	if len(candidates) > 0 {
		best := candidates[0]
		for _, c := range candidates[1:] {
			if c.distance < best.distance {
				best = c
			}
		}
		redID = best.redID
	}

	if redID == "" {
		redID = redIDPattern.FindString(d.FullText)
	}
	if fullName == "" {
		for _, p := range namePatterns {
			if m := p.FindStringSubmatch(d.FullText); m != nil {
				fullName = m[1]
				break
			}
		}
	}

	return models.ExtractedInfo{
		RedID:    models.StringOrNil(redID),
		FullName: models.StringOrNil(fullName),
	}
}

// imageExtent prefers the overall text bounds and falls back to the fragments
func imageExtent(d *Detection) (float64, float64) {
	width, height := maxXY(d.Bounds)
	if width == 0 || height == 0 {
		for _, f := range d.Fragments {
			w, h := maxXY(f.Vertices)
			width = math.Max(width, w)
			height = math.Max(height, h)
		}
	}
	return width, height
}

func maxXY(vertices []Vertex) (float64, float64) {
	var x, y float64
	for _, v := range vertices {
		x = math.Max(x, v.X)
		y = math.Max(y, v.Y)
	}
	return x, y
}

func fragmentGeometry(vertices []Vertex) (cx, cy, right, bottom float64) {
	for _, v := range vertices {
		cx += v.X
		cy += v.Y
		right = math.Max(right, v.X)
		bottom = math.Max(bottom, v.Y)
	}
	n := float64(len(vertices))
	return cx / n, cy / n, right, bottom
}

func matchName(text string) (string, bool) {
	words := strings.Fields(text)
	if len(words) < 2 || len(words) > 4 {
		return "", false
	}
	for _, w := range words {
		if !nameWordPattern.MatchString(w) {
			return "", false
		}
	}
	return strings.Join(words, " "), true
}
