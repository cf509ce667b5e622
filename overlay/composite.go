package overlay

import (
	"fmt"
	"image"

	xdraw "golang.org/x/image/draw"

	"doctrans/annotation"
)

// Composite burns the boxes the policy admits into a copy of the base image
// at full resolution, and reports every decision. The base image is not
// modified. Boxes partially outside the canvas are clipped by the drawing
// primitives; the decision itself depends only on the stored geometry.
// fontRatio caps the burned-in text size at that fraction of each box height.
func Composite(base image.Image, set annotation.BoxSet, policy Policy, imageName string, fontRatio float64) (*image.NRGBA, Report, error) {
	if base == nil {
		return nil, Report{}, fmt.Errorf("composite: nil base image")
	}
	b := base.Bounds()
	imgW, imgH := float64(b.Dx()), float64(b.Dy())
	if imgW <= 0 || imgH <= 0 {
		return nil, Report{}, fmt.Errorf("composite: empty base image")
	}

	dst := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	xdraw.Draw(dst, dst.Bounds(), base, b.Min, xdraw.Src)

	report := Report{
		Image: imageName,
		Scope: policy.Scope,
		Total: set.Len(),
	}
	for _, box := range set.Ordered() {
		ok, reason := policy.Decide(box, imgW, imgH)
		report.Decisions = append(report.Decisions, Decision{
			BoxID:    box.ID,
			Replaced: ok,
			Reason:   reason,
		})
		if !ok {
			continue
		}
		burnBox(dst, box, 1.0, fontRatio)
		report.Replaced++
	}
	return dst, report, nil
}
