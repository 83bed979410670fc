package vision

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/Dan9191/lostcard-service/internal/config"
	"github.com/Dan9191/lostcard-service/internal/ocr"
	"github.com/sirupsen/logrus"
)

// Client handles text detection through the Cloud Vision REST API
type Client struct {
	url    string
	apiKey string
	client *http.Client
	log    *logrus.Logger
}

// NewClient initializes a new Vision client
func NewClient(cfg *config.Config, log *logrus.Logger) *Client {
	return &Client{
		url:    cfg.VisionURL,
		apiKey: cfg.VisionAPIKey,
		client: &http.Client{
			Timeout: cfg.OCRTimeout,
		},
		log: log,
	}
}

type annotateRequest struct {
	Requests []imageRequest `json:"requests"`
}

type imageRequest struct {
	Image    imageContent `json:"image"`
	Features []feature    `json:"features"`
}

type imageContent struct {
	Content string `json:"content"`
}

type feature struct {
	Type string `json:"type"`
}

type annotateResponse struct {
	Responses []struct {
		TextAnnotations []textAnnotation `json:"textAnnotations"`
		Error           *apiError        `json:"error"`
	} `json:"responses"`
}

type textAnnotation struct {
	Description  string `json:"description"`
	BoundingPoly struct {
		Vertices []struct {
			X float64 `json:"x"`
			Y float64 `json:"y"`
		} `json:"vertices"`
	} `json:"boundingPoly"`
}

type apiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// buildRequest creates a TEXT_DETECTION request body
func (c *Client) buildRequest(image []byte) ([]byte, error) {
	body, err := json.Marshal(annotateRequest{
		Requests: []imageRequest{{
			Image:    imageContent{Content: base64.StdEncoding.EncodeToString(image)},
			Features: []feature{{Type: "TEXT_DETECTION"}},
		}},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}
	return body, nil
}

// sendRequest posts the annotate request
func (c *Client) sendRequest(ctx context.Context, body []byte) ([]byte, error) {
	endpoint, err := url.Parse(c.url)
	if err != nil {
		return nil, fmt.Errorf("invalid vision url: %w", err)
	}
	if c.apiKey != "" {
		q := endpoint.Query()
		q.Set("key", c.apiKey)
		endpoint.RawQuery = q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint.String(), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	c.log.Debugf("Vision response: %d bytes", len(raw))
	return raw, nil
}

// parseResponse maps the first annotation to the full text and the rest to fragments
func (c *Client) parseResponse(raw []byte) (*ocr.Detection, error) {
	var resp annotateResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	if len(resp.Responses) == 0 {
		return &ocr.Detection{}, nil
	}
	first := resp.Responses[0]
	if first.Error != nil {
		return nil, fmt.Errorf("vision error %d: %s", first.Error.Code, first.Error.Message)
	}
	if len(first.TextAnnotations) == 0 {
		return &ocr.Detection{}, nil
	}

	detection := &ocr.Detection{
		FullText: first.TextAnnotations[0].Description,
		Bounds:   vertices(first.TextAnnotations[0]),
	}
	for _, a := range first.TextAnnotations[1:] {
		detection.Fragments = append(detection.Fragments, ocr.Fragment{
			Text:     a.Description,
			Vertices: vertices(a),
		})
	}
	return detection, nil
}

// DetectText runs text detection on image
func (c *Client) DetectText(ctx context.Context, image []byte) (*ocr.Detection, error) {
	start := time.Now()
	body, err := c.buildRequest(image)
	if err != nil {
		return nil, err
	}
	raw, err := c.sendRequest(ctx, body)
	if err != nil {
		return nil, err
	}
	detection, err := c.parseResponse(raw)
	if err != nil {
		return nil, err
	}

	c.log.WithFields(logrus.Fields{
		"fragments": len(detection.Fragments),
		"duration":  time.Since(start).String(),
	}).Info("Text detection completed")
	return detection, nil
}

func vertices(a textAnnotation) []ocr.Vertex {
	out := make([]ocr.Vertex, 0, len(a.BoundingPoly.Vertices))
	for _, v := range a.BoundingPoly.Vertices {
		out = append(out, ocr.Vertex{X: v.X, Y: v.Y})
	}
	return out
}

var _ ocr.Detector = (*Client)(nil)
