package workflow

import "github.com/agentcore/platform/pkg/agenterrors"

// dag indexes a Workflow's steps for scheduling.
type dag struct {
	steps    map[string]WorkflowStep
	order    []string // declaration order, stable for deterministic iteration
	children map[string][]string
}

func buildDAG(wf Workflow) (*dag, error) {
	d := &dag{
		steps:    make(map[string]WorkflowStep, len(wf.Steps)),
		children: make(map[string][]string, len(wf.Steps)),
	}
	for _, s := range wf.Steps {
		if _, dup := d.steps[s.ID]; dup {
			return nil, agenterrors.New(agenterrors.KindDependencyMissing, "duplicate step id", map[string]any{"step": s.ID})
		}
		d.steps[s.ID] = s
		d.order = append(d.order, s.ID)
	}
	for _, s := range wf.Steps {
		for _, dep := range s.DependsOn {
			if _, ok := d.steps[dep]; !ok {
				return nil, agenterrors.New(agenterrors.KindDependencyMissing, "step depends on an unknown step", map[string]any{
					"step": s.ID, "depends_on": dep,
				})
			}
			d.children[dep] = append(d.children[dep], s.ID)
		}
	}
	if cyc := d.findCycle(); cyc != "" {
		return nil, agenterrors.New(agenterrors.KindDependencyCycle, "workflow dependency graph contains a cycle", map[string]any{"step": cyc})
	}
	return d, nil
}

// findCycle runs a 3-color DFS over DependsOn edges; returns the id where a
// cycle was detected, or "" if the graph is acyclic.
func (d *dag) findCycle() string {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(d.steps))
	var visit func(id string) string
	visit = func(id string) string {
		color[id] = gray
		for _, dep := range d.steps[id].DependsOn {
			switch color[dep] {
			case gray:
				return dep
			case white:
				if found := visit(dep); found != "" {
					return found
				}
			}
		}
		color[id] = black
		return ""
	}
	for _, id := range d.order {
		if color[id] == white {
			if found := visit(id); found != "" {
				return found
			}
		}
	}
	return ""
}
