package rig

import "math"

// Convert a depth value to a disparity (in pixels) for a camera pair with
// the given focal length and baseline. Disparity is inversely proportional
// to depth.
func DisparityFromDepth(f, baseline, depth float64) float64 {
	return f * baseline / depth
}

// Convert a disparity value back to depth.
func DepthFromDisparity(f, baseline, disparity float64) float64 {
	return f * baseline / disparity
}

// SetDepthBounds propagates the depth range to every camera and derives the
// per-camera disparity bounds: the far bound yields the minimum disparity
// and the near bound the maximum disparity.
func (r *Rig) SetDepthBounds(depthMin, depthMax float64) {
	for camIdx := range r.Cameras {
		cam := &r.Cameras[camIdx]
		cam.DepthMin = depthMin
		cam.DepthMax = depthMax
		cam.MinDisparity = DisparityFromDepth(r.F, cam.Baseline, depthMax)
		cam.MaxDisparity = DisparityFromDepth(r.F, cam.Baseline, depthMin)
	}
}

// DisparityBounds returns the rig-wide disparity envelope: the smallest
// minimum and the largest maximum disparity over all non-reference cameras.
// SetDepthBounds must be called first. Both values are 0 for rigs without
// auxiliary cameras.
func (r *Rig) DisparityBounds() (minDisparity, maxDisparity float64) {
	minDisparity = math.Inf(1)
	maxDisparity = math.Inf(-1)
	for camIdx := range r.Cameras {
		if camIdx == ReferenceCamera {
			continue
		}
		cam := &r.Cameras[camIdx]
		minDisparity = math.Min(minDisparity, cam.MinDisparity)
		maxDisparity = math.Max(maxDisparity, cam.MaxDisparity)
	}

	if math.IsInf(minDisparity, 1) {
		return 0, 0
	}
	return minDisparity, maxDisparity
}
