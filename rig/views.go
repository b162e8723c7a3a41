package rig

import (
	"errors"

	"github.com/xsongx/scanner/types"
)

var ErrNoViewsSelected = errors.New("rig: no camera satisfies the view selection angle bounds")

// SelectViews picks the cameras that observe the reference view from a
// useful angle. A representative scene point is placed on the ray through
// the center of the reference image, halfway through the depth range; a
// camera qualifies if the angle between its ray to that point and the
// reference ray lies strictly within (minAngle, maxAngle) degrees.
//
// The selected camera indices are stored in r.ViewSelectionSubset. An
// error is returned if no camera qualifies.
func (r *Rig) SelectViews(cols, rows int, minAngle, maxAngle, depthMin, depthMax float32) ([]int, error) {
	r.ViewSelectionSubset = r.ViewSelectionSubset[:0]
	if len(r.Cameras) == 0 {
		return nil, ErrNoViewsSelected
	}

	ref := &r.Cameras[ReferenceCamera]
	depth := float64(depthMin+depthMax) / 2.0
	pt := types.FromFloat64(ref.Backproject(float64(cols)/2.0, float64(rows)/2.0, depth))
	refRay := pt.Sub(types.FromFloat64(ref.Center()))

	minRad := types.Radians(minAngle)
	maxRad := types.Radians(maxAngle)
	for camIdx := range r.Cameras {
		if camIdx == ReferenceCamera {
			continue
		}

		ray := pt.Sub(types.FromFloat64(r.Cameras[camIdx].Center()))
		angle := refRay.Angle(ray)
		if angle > minRad && angle < maxRad {
			r.ViewSelectionSubset = append(r.ViewSelectionSubset, camIdx)
		}
	}

	if len(r.ViewSelectionSubset) == 0 {
		return nil, ErrNoViewsSelected
	}
	return r.ViewSelectionSubset, nil
}
