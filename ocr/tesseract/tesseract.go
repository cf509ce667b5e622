// Package tesseract provides the gosseract-backed OCR engine.
package tesseract

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"math"
	"strings"
	"sync"

	"github.com/otiai10/gosseract/v2"

	"doctrans/ocr"
)

// Engine implements ocr.Engine and ocr.BatchEngine using the gosseract
// client. The zero value is not usable; call New.
type Engine struct {
	clientFactory func() *gosseract.Client

	probeOnce sync.Once
	probed    bool
}

// New constructs a Tesseract-backed OCR engine.
func New() *Engine {
	return &Engine{clientFactory: gosseract.NewClient}
}

func (e *Engine) Name() string { return "tesseract" }

// Available probes the installation once. Creating a client and listing the
// trained languages exercises both the native library and the tessdata
// directory, which are the two ways the engine is usually broken.
func (e *Engine) Available() bool {
	e.probeOnce.Do(func() {
		defer func() {
			if r := recover(); r != nil {
				e.probed = false
			}
		}()
		c := e.clientFactory()
		if c == nil {
			return
		}
		c.Close()
		langs, err := gosseract.GetAvailableLanguages()
		e.probed = err == nil && len(langs) > 0
	})
	return e.probed
}

// Recognize performs OCR on a single image input.
func (e *Engine) Recognize(ctx context.Context, in ocr.Input) (ocr.Result, error) {
	c := e.clientFactory()
	defer c.Close()
	return e.recognizeWithClient(ctx, c, in)
}

// RecognizeBatch processes multiple inputs sequentially, one client per
// input. Tesseract client state does not reset cleanly between images with
// differing variables, so the setup cost is paid per input.
func (e *Engine) RecognizeBatch(ctx context.Context, inputs []ocr.Input) ([]ocr.Result, error) {
	results := make([]ocr.Result, 0, len(inputs))
	for _, in := range inputs {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		c := e.clientFactory()
		res, err := e.recognizeWithClient(ctx, c, in)
		if err != nil {
			c.Close()
			return nil, fmt.Errorf("recognize %s: %w", in.ID, err)
		}
		c.Close()
		results = append(results, res)
	}
	return results, nil
}

func (e *Engine) recognizeWithClient(ctx context.Context, c *gosseract.Client, in ocr.Input) (ocr.Result, error) {
	imgData, err := cropImage(in.Image, in.Region)
	if err != nil {
		return ocr.Result{}, err
	}
	if err := c.SetImageFromBytes(imgData); err != nil {
		return ocr.Result{}, fmt.Errorf("set image: %w", err)
	}
	if len(in.Languages) > 0 {
		if err := c.SetLanguage(in.Languages...); err != nil {
			return ocr.Result{}, fmt.Errorf("set languages: %w", err)
		}
	}
	if in.DPI > 0 {
		if err := c.SetVariable(gosseract.SettableVariable("user_defined_dpi"), fmt.Sprint(in.DPI)); err != nil {
			return ocr.Result{}, fmt.Errorf("set dpi: %w", err)
		}
	}
	for k, v := range in.Metadata {
		if err := c.SetVariable(gosseract.SettableVariable(k), v); err != nil {
			return ocr.Result{}, fmt.Errorf("set variable %s: %w", k, err)
		}
	}
	text, err := c.Text()
	if err != nil {
		return ocr.Result{}, fmt.Errorf("recognize text: %w", err)
	}
	plain := strings.TrimSpace(text)

	// One editable block per recognized line. Collapsing everything into a
	// single block would leave nothing to reposition individually.
	blocks := assembleBlocks(detections(c, gosseract.RIL_TEXTLINE), detections(c, gosseract.RIL_WORD))
	if len(blocks) == 0 && plain != "" {
		// Line segmentation unavailable; fall back to one block spanning
		// all recognized words.
		words, avgConf := extractWords(c)
		bounds := mergeBounds(words)
		blocks = []ocr.TextBlock{{
			Text:       plain,
			Bounds:     bounds,
			Lines:      []ocr.TextLine{{Text: plain, Bounds: bounds, Words: words, Confidence: avgConf}},
			Confidence: avgConf,
		}}
	}

	return ocr.Result{
		InputID:   in.ID,
		Page:      in.Page,
		PlainText: plain,
		Blocks:    blocks,
		Language:  firstLanguage(in.Languages),
	}, nil
}

// detection is one bounding box from the tesseract page iterator.
type detection struct {
	text   string
	bounds ocr.Region
	conf   float64
}

func detections(c *gosseract.Client, level gosseract.PageIteratorLevel) []detection {
	boxes, err := c.GetBoundingBoxes(level)
	if err != nil {
		return nil
	}
	out := make([]detection, 0, len(boxes))
	for _, b := range boxes {
		txt := strings.TrimSpace(b.Word)
		if txt == "" {
			continue
		}
		out = append(out, detection{
			text:   txt,
			bounds: ocr.Region{X: float64(b.Box.Min.X), Y: float64(b.Box.Min.Y), Width: float64(b.Box.Dx()), Height: float64(b.Box.Dy())},
			conf:   b.Confidence / 100.0,
		})
	}
	return out
}

// assembleBlocks emits one block per line detection, attaching the words
// whose centers fall inside the line box.
func assembleBlocks(lines, words []detection) []ocr.TextBlock {
	blocks := make([]ocr.TextBlock, 0, len(lines))
	for _, ln := range lines {
		var ws []ocr.TextWord
		for _, w := range words {
			cx := w.bounds.X + w.bounds.Width/2
			cy := w.bounds.Y + w.bounds.Height/2
			if cx >= ln.bounds.X && cx < ln.bounds.X+ln.bounds.Width &&
				cy >= ln.bounds.Y && cy < ln.bounds.Y+ln.bounds.Height {
				ws = append(ws, ocr.TextWord{Text: w.text, Bounds: w.bounds, Confidence: w.conf})
			}
		}
		blocks = append(blocks, ocr.TextBlock{
			Text:       ln.text,
			Bounds:     ln.bounds,
			Lines:      []ocr.TextLine{{Text: ln.text, Bounds: ln.bounds, Words: ws, Confidence: ln.conf}},
			Confidence: ln.conf,
		})
	}
	return blocks
}

func extractWords(c *gosseract.Client) ([]ocr.TextWord, float64) {
	boxes, err := c.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil || len(boxes) == 0 {
		return nil, 0
	}
	words := make([]ocr.TextWord, 0, len(boxes))
	var sum float64
	for _, b := range boxes {
		conf := b.Confidence / 100.0
		sum += conf
		words = append(words, ocr.TextWord{
			Text:       b.Word,
			Bounds:     ocr.Region{X: float64(b.Box.Min.X), Y: float64(b.Box.Min.Y), Width: float64(b.Box.Dx()), Height: float64(b.Box.Dy())},
			Confidence: conf,
		})
	}
	return words, sum / float64(len(words))
}

func mergeBounds(words []ocr.TextWord) ocr.Region {
	if len(words) == 0 {
		return ocr.Region{}
	}
	minX, minY := math.MaxFloat64, math.MaxFloat64
	var maxX, maxY float64
	for _, w := range words {
		minX = math.Min(minX, w.Bounds.X)
		minY = math.Min(minY, w.Bounds.Y)
		maxX = math.Max(maxX, w.Bounds.X+w.Bounds.Width)
		maxY = math.Max(maxY, w.Bounds.Y+w.Bounds.Height)
	}
	return ocr.Region{X: minX, Y: minY, Width: maxX - minX, Height: maxY - minY}
}

func firstLanguage(langs []string) string {
	if len(langs) == 0 {
		return ""
	}
	return langs[0]
}

func cropImage(data []byte, region *ocr.Region) ([]byte, error) {
	if region == nil || region.IsEmpty() {
		return data, nil
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode for region: %w", err)
	}
	rect := image.Rect(
		int(math.Round(region.X)),
		int(math.Round(region.Y)),
		int(math.Round(region.X+region.Width)),
		int(math.Round(region.Y+region.Height)),
	).Intersect(img.Bounds())
	if rect.Empty() {
		return nil, fmt.Errorf("region outside image bounds")
	}
	subImg, ok := img.(interface {
		SubImage(r image.Rectangle) image.Image
	})
	if !ok {
		return nil, fmt.Errorf("image does not support sub-image")
	}
	cropped := subImg.SubImage(rect)
	var buf bytes.Buffer
	if err := png.Encode(&buf, cropped); err != nil {
		return nil, fmt.Errorf("encode cropped image: %w", err)
	}
	return buf.Bytes(), nil
}
