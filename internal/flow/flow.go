// Package flow tracks position in the multi-step interactive selection
// so Ctrl+C can navigate backwards instead of exiting outright.
package flow

type step int

const (
	stepService step = iota
	stepProject
	stepParams
)

// Route is the destination a back navigation resolves to.
type Route int

const (
	// RouteExit means there is no earlier step to return to.
	RouteExit Route = iota
	// RouteService returns to service selection.
	RouteService
	// RouteProject returns to project selection.
	RouteProject
)

// StepTracker records which interactive steps this run actually passed
// through. Steps disabled for the run (single service, direct job URL) are
// never pushed, so back navigation skips them.
type StepTracker struct {
	allowService bool
	allowProject bool
	stack        []step
}

// NewStepTracker builds a tracker containing only the steps available in
// this run.
func NewStepTracker(serviceStep, projectStep bool) *StepTracker {
	t := &StepTracker{allowService: serviceStep, allowProject: projectStep}
	if serviceStep {
		t.stack = append(t.stack, stepService)
	}
	return t
}

// EnterProject records entry into project selection, if that step exists.
func (t *StepTracker) EnterProject() {
	if !t.allowProject {
		return
	}
	t.push(stepProject)
}

// EnterParams records entry into the parameter step.
func (t *StepTracker) EnterParams() {
	t.push(stepParams)
}

// Back pops the current step and reports where to resume.
func (t *StepTracker) Back() Route {
	if len(t.stack) == 0 {
		return RouteExit
	}
	t.stack = t.stack[:len(t.stack)-1]
	if len(t.stack) == 0 {
		return RouteExit
	}
	switch t.stack[len(t.stack)-1] {
	case stepService:
		return RouteService
	case stepProject:
		return RouteProject
	}
	return RouteExit
}

func (t *StepTracker) push(s step) {
	if len(t.stack) > 0 && t.stack[len(t.stack)-1] == s {
		return
	}
	if s == stepService && !t.allowService {
		return
	}
	t.stack = append(t.stack, s)
}
