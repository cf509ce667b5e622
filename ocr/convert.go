package ocr

import (
	"fmt"
	"strings"

	"doctrans/annotation"
)

// ToBoxSet converts a recognition result into an editable box set in pixel
// space. Each text block with positive bounds and non-empty text becomes one
// box; box IDs are sequential within the set so that saving an edited set
// replaces the previous recognition wholesale.
func ToBoxSet(res Result, scope string) annotation.BoxSet {
	set := annotation.NewBoxSet(scope)
	n := 0
	for _, blk := range res.Blocks {
		text := strings.TrimSpace(blk.Text)
		if text == "" || blk.Bounds.IsEmpty() {
			continue
		}
		box, err := annotation.NewBox(fmt.Sprintf("box-%d", n),
			annotation.SpacePixel, blk.Bounds.X, blk.Bounds.Y,
			blk.Bounds.Width, blk.Bounds.Height, text)
		if err != nil {
			continue
		}
		box.Type = annotation.TypeParagraph
		box.Confidence = blk.Confidence
		if set.Add(box) == nil {
			n++
		}
	}
	return set
}

// MergeResults converts a batch of results into box sets keyed by input ID,
// dropping inputs that recognized nothing.
func MergeResults(results []Result) map[string]annotation.BoxSet {
	sets := make(map[string]annotation.BoxSet, len(results))
	for _, res := range results {
		set := ToBoxSet(res, res.InputID)
		if set.Len() == 0 {
			continue
		}
		sets[res.InputID] = set
	}
	return sets
}
