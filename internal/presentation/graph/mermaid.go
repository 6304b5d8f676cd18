// Package graph renders workflow definitions as Mermaid flowcharts for
// documentation and the CLI graph command.
package graph

import (
	"fmt"
	"strings"

	"github.com/concierge-sh/concierge/pkg/domain"
)

// Overlay contains dynamic session state to visualize on the graph.
type Overlay struct {
	VisitedStages []string
	CurrentStage  string
}

// GenerateMermaid produces a Mermaid flowchart from a workflow definition.
// The initial stage is drawn as a circle, stages with operations as
// subroutines, and plain stages as rectangles. Edge labels show the
// propagation policy when it is not the full-copy default.
func GenerateMermaid(wf *domain.Workflow, overlay *Overlay) string {
	var sb strings.Builder
	sb.WriteString("graph TD\n")

	for _, name := range wf.StageNames() {
		stage, err := wf.Stage(name)
		if err != nil {
			continue
		}
		safeID := sanitizeMermaidID(name)

		opener, closer := "[", "]"
		switch {
		case name == wf.InitialStage():
			opener, closer = "((", "))" // Circle
		case len(stage.OperationNames()) > 0:
			opener, closer = "[[", "]]" // Subroutine
		}

		label := name
		if len(stage.Prerequisites) > 0 {
			label = fmt.Sprintf("%s <br/> 🔒 %s", name, strings.Join(flatten(stage.Prerequisites), ", "))
		}
		sb.WriteString(fmt.Sprintf("    %s%s\"%s\"%s\n", safeID, opener, label, closer))

		for _, target := range stage.Transitions {
			safeTo := sanitizeMermaidID(target)
			arrow := "-->"
			switch p := wf.PropagationFor(name, target); p.Mode {
			case domain.PropagationNone:
				arrow = "-. none .->"
			case domain.PropagationFields:
				arrow = fmt.Sprintf("-- \"%s\" -->", strings.Join(p.Fields, ", "))
			}
			sb.WriteString(fmt.Sprintf("    %s %s %s\n", safeID, arrow, safeTo))
		}
	}

	if overlay != nil {
		sb.WriteString("\n    %% Overlay Styles\n")
		// Force black text for high contrast regardless of theme.
		sb.WriteString("    classDef visited fill:#e1f5fe,stroke:#01579b,stroke-width:2px,color:#000;\n")
		sb.WriteString("    classDef current fill:#ffeb3b,stroke:#fbc02d,stroke-width:4px,color:#000;\n")

		visitedSet := make(map[string]bool)
		for _, name := range overlay.VisitedStages {
			safeID := sanitizeMermaidID(name)
			if !visitedSet[safeID] && safeID != "" {
				visitedSet[safeID] = true
				sb.WriteString(fmt.Sprintf("    class %s visited;\n", safeID))
			}
		}
		if overlay.CurrentStage != "" {
			sb.WriteString(fmt.Sprintf("    class %s current;\n", sanitizeMermaidID(overlay.CurrentStage)))
		}
	}

	return sb.String()
}

func flatten(sets [][]string) []string {
	var fields []string
	seen := make(map[string]bool)
	for _, set := range sets {
		for _, f := range set {
			if !seen[f] {
				seen[f] = true
				fields = append(fields, f)
			}
		}
	}
	return fields
}

func sanitizeMermaidID(id string) string {
	s := strings.ReplaceAll(id, ".", "_")
	s = strings.ReplaceAll(s, "-", "_")
	s = strings.ReplaceAll(s, "/", "_")
	s = strings.ReplaceAll(s, "\\", "_")
	s = strings.ReplaceAll(s, " ", "_")
	return s
}
