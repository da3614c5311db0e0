// Package vision reads receipt text with Google Cloud Vision document text
// detection.
package vision

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	vision "cloud.google.com/go/vision/v2/apiv1"
	visionpb "cloud.google.com/go/vision/v2/apiv1/visionpb"
	"google.golang.org/api/option"

	"finlight/internal/ocr"
)

// annotator is the slice of the Vision client used here.
type annotator interface {
	BatchAnnotateImages(ctx context.Context, req *visionpb.BatchAnnotateImagesRequest) (*visionpb.BatchAnnotateImagesResponse, error)
}

// clientAnnotator drops the client's call options from the method set.
type clientAnnotator struct {
	c *vision.ImageAnnotatorClient
}

func (a clientAnnotator) BatchAnnotateImages(ctx context.Context, req *visionpb.BatchAnnotateImagesRequest) (*visionpb.BatchAnnotateImagesResponse, error) {
	return a.c.BatchAnnotateImages(ctx, req)
}

type Extractor struct {
	client  annotator
	closer  func() error
	timeout time.Duration
	logger  *slog.Logger
}

var _ ocr.TextExtractor = (*Extractor)(nil)

// ClientOptions builds credentials options from a key file path or an inline
// JSON key. Empty input falls back to application default credentials.
func ClientOptions(credentials string) []option.ClientOption {
	credentials = strings.TrimSpace(credentials)
	if credentials == "" {
		return nil
	}
	if strings.HasPrefix(credentials, "{") {
		return []option.ClientOption{option.WithCredentialsJSON([]byte(credentials))}
	}
	return []option.ClientOption{option.WithCredentialsFile(credentials)}
}

// New dials the Vision API.
func New(ctx context.Context, logger *slog.Logger, timeout time.Duration, opts ...option.ClientOption) (*Extractor, error) {
	c, err := vision.NewImageAnnotatorClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("vision client: %w", err)
	}
	e := newExtractor(clientAnnotator{c}, logger, timeout)
	e.closer = c.Close
	return e, nil
}

func newExtractor(c annotator, logger *slog.Logger, timeout time.Duration) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Extractor{client: c, timeout: timeout, logger: logger.With("component", "vision")}
}

func (e *Extractor) Close() error {
	if e == nil || e.closer == nil {
		return nil
	}
	return e.closer()
}

// ExtractText runs DOCUMENT_TEXT_DETECTION on one image. The confidence is
// the mean block confidence across pages.
func (e *Extractor) ExtractText(ctx context.Context, image []byte) (ocr.ExtractedText, error) {
	if len(image) == 0 {
		return ocr.ExtractedText{}, errors.New("empty image")
	}
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	req := &visionpb.BatchAnnotateImagesRequest{Requests: []*visionpb.AnnotateImageRequest{{
		Image:    &visionpb.Image{Content: image},
		Features: []*visionpb.Feature{{Type: visionpb.Feature_DOCUMENT_TEXT_DETECTION}},
	}}}
	start := time.Now()
	resp, err := e.client.BatchAnnotateImages(ctx, req)
	if err != nil {
		return ocr.ExtractedText{}, fmt.Errorf("vision BatchAnnotateImages: %w", err)
	}
	if resp == nil || len(resp.Responses) == 0 || resp.Responses[0] == nil {
		return ocr.ExtractedText{}, nil
	}
	r0 := resp.Responses[0]
	if r0.Error != nil && r0.Error.Message != "" {
		return ocr.ExtractedText{}, fmt.Errorf("vision annotate error: %s", r0.Error.Message)
	}
	fta := r0.FullTextAnnotation
	if fta == nil {
		return ocr.ExtractedText{}, nil
	}

	out := ocr.ExtractedText{Text: fta.Text, Confidence: meanBlockConfidence(fta.Pages)}
	e.logger.DebugContext(ctx, "Vision text extracted",
		"bytes", len(image),
		"chars", len(out.Text),
		"pages", len(fta.Pages),
		"duration_ms", time.Since(start).Milliseconds())
	return out, nil
}

func meanBlockConfidence(pages []*visionpb.Page) float64 {
	var sum float64
	n := 0
	for _, p := range pages {
		if p == nil {
			continue
		}
		for _, b := range p.Blocks {
			if b == nil {
				continue
			}
			sum += float64(b.Confidence)
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}
