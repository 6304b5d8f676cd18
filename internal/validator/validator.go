// Package validator lints compiled workflows for structural problems that
// graph validation does not reject: stages the agent can never reach, and
// prerequisite fields no inbound edge can deliver.
package validator

import (
	"fmt"

	"github.com/concierge-sh/concierge/pkg/domain"
)

// Issue describes one problem found in a workflow. Issues are advisory; a
// workflow with issues still runs.
type Issue struct {
	Stage   string
	Message string
}

func (i Issue) String() string {
	return fmt.Sprintf("stage %q: %s", i.Stage, i.Message)
}

// Lint inspects a validated workflow and reports structural issues, in stage
// registration order.
func Lint(wf *domain.Workflow) []Issue {
	names := wf.StageNames()

	incoming := make(map[string][]string, len(names))
	for _, name := range names {
		incoming[name] = nil
	}
	for _, name := range names {
		stage, err := wf.Stage(name)
		if err != nil {
			continue
		}
		for _, target := range stage.Transitions {
			incoming[target] = append(incoming[target], name)
		}
	}

	var issues []Issue
	reachable := reachableFrom(wf, entryStage(wf, names, incoming))

	for _, name := range names {
		stage, err := wf.Stage(name)
		if err != nil {
			continue
		}

		if !reachable[name] {
			issues = append(issues, Issue{
				Stage:   name,
				Message: "unreachable from the entry stage",
			})
		}

		issues = append(issues, lintPrerequisites(wf, stage, incoming[name])...)
	}
	return issues
}

// entryStage mirrors the workflow's initialization rule: the unique stage
// with zero incoming edges, falling back to the declared initial stage.
func entryStage(wf *domain.Workflow, names []string, incoming map[string][]string) string {
	var roots []string
	for _, name := range names {
		if len(incoming[name]) == 0 {
			roots = append(roots, name)
		}
	}
	if len(roots) == 1 {
		return roots[0]
	}
	if initial := wf.InitialStage(); initial != "" {
		return initial
	}
	if len(names) > 0 {
		return names[0]
	}
	return ""
}

func reachableFrom(wf *domain.Workflow, entry string) map[string]bool {
	visited := make(map[string]bool)
	queue := []string{entry}
	for len(queue) > 0 {
		name := queue[0]
		queue = queue[1:]
		if visited[name] {
			continue
		}
		visited[name] = true

		stage, err := wf.Stage(name)
		if err != nil {
			continue
		}
		for _, target := range stage.Transitions {
			if !visited[target] {
				queue = append(queue, target)
			}
		}
	}
	return visited
}

// lintPrerequisites flags prerequisite fields that no inbound edge's
// propagation policy can carry. Such fields are only satisfiable through
// global data or a data_supply action, which is usually an authoring mistake.
func lintPrerequisites(wf *domain.Workflow, stage *domain.Stage, sources []string) []Issue {
	var issues []Issue
	seen := make(map[string]bool)

	for _, set := range stage.Prerequisites {
		for _, field := range set {
			if seen[field] {
				continue
			}
			seen[field] = true

			deliverable := false
			for _, from := range sources {
				if policyCanCarry(wf.PropagationFor(from, stage.Name), field) {
					deliverable = true
					break
				}
			}
			if !deliverable {
				issues = append(issues, Issue{
					Stage: stage.Name,
					Message: fmt.Sprintf(
						"prerequisite field %q is not propagated by any inbound transition; only global data or data_supply can satisfy it",
						field),
				})
			}
		}
	}
	return issues
}

func policyCanCarry(p domain.Propagation, field string) bool {
	switch p.Mode {
	case domain.PropagationAll:
		return true
	case domain.PropagationFields:
		for _, f := range p.Fields {
			if f == field {
				return true
			}
		}
	}
	return false
}
