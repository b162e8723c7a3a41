package kernel

import "github.com/xsongx/scanner/solver"

// The planner derives the resolution dependent solver parameters. It only
// does work when the frame geometry changes.
type planner struct {
	state *solver.State

	width, height int
}

func newPlanner(state *solver.State) *planner {
	return &planner{state: state}
}

// Planned reports whether the planner holds a plan for the given geometry.
func (p *planner) Planned(width, height int) bool {
	return p.width == width && p.height == height && width > 0 && height > 0
}

// Plan the solver state for frames of the given size. Repeated calls with
// the same size are no-ops. The returned flag reports whether a new plan
// was computed.
func (p *planner) Plan(width, height int) (bool, error) {
	if width <= 0 || height <= 0 {
		return false, ErrInvalidFrameSize
	}
	if p.Planned(width, height) {
		return false, nil
	}

	cameras := p.state.Cameras
	params := p.state.Params

	if _, err := cameras.SelectViews(width, height, params.MinAngle, params.MaxAngle, params.DepthMin, params.DepthMax); err != nil {
		return false, err
	}

	cameras.SetDepthBounds(float64(params.DepthMin), float64(params.DepthMax))
	minDisparity, maxDisparity := cameras.DisparityBounds()
	params.MinDisparity = float32(minDisparity)
	params.MaxDisparity = float32(maxDisparity)

	lines := p.state.Lines
	lines.Resize(width * height)
	lines.S = width
	lines.L = width

	params.Cols, params.Rows = width, height
	cameras.Cols, cameras.Rows = width, height

	p.width, p.height = width, height
	return true, nil
}

// Cameras that contribute to the reconstruction under the current plan.
func (p *planner) Views() []int {
	return append([]int(nil), p.state.Cameras.ViewSelectionSubset...)
}
