package graph_test

import (
	"context"
	"strings"
	"testing"

	"github.com/concierge-sh/concierge/internal/presentation/graph"
	"github.com/concierge-sh/concierge/pkg/domain"
	"github.com/stretchr/testify/require"
)

func buildWorkflow(t *testing.T) *domain.Workflow {
	t.Helper()

	browse := domain.NewStage("browse", "")
	browse.Transitions = []string{"transact", "my-portfolio"}
	browse.AddOperation(&domain.Operation{
		Name: "search",
		Handler: func(ctx context.Context, state *domain.State, args map[string]any) (any, error) {
			return nil, nil
		},
	})

	transact := domain.NewStage("transact", "")
	transact.Prerequisites = [][]string{{"symbol", "quantity"}}

	portfolio := domain.NewStage("my-portfolio", "")

	wf := domain.NewWorkflow("stock_exchange", "")
	require.NoError(t, wf.AddStage(browse, false))
	require.NoError(t, wf.AddStage(transact, false))
	require.NoError(t, wf.AddStage(portfolio, false))
	wf.SetPropagation("browse", "transact", domain.PropagateFields("symbol", "quantity"))
	wf.SetPropagation("browse", "my-portfolio", domain.PropagateNone())
	return wf
}

func TestGenerateMermaid(t *testing.T) {
	wf := buildWorkflow(t)
	out := graph.GenerateMermaid(wf, nil)

	for _, want := range []string{
		"graph TD",
		`browse(("browse"))`,
		`transact["transact <br/> 🔒 symbol, quantity"]`,
		`my_portfolio["my-portfolio"]`,
		`browse -- "symbol, quantity" --> transact`,
		"browse -. none .-> my_portfolio",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q in:\n%s", want, out)
		}
	}
}

func TestGenerateMermaid_Overlay(t *testing.T) {
	wf := buildWorkflow(t)
	out := graph.GenerateMermaid(wf, &graph.Overlay{
		VisitedStages: []string{"browse", "browse"},
		CurrentStage:  "transact",
	})

	if strings.Count(out, "class browse visited;") != 1 {
		t.Errorf("expected exactly one visited class for browse:\n%s", out)
	}
	if !strings.Contains(out, "class transact current;") {
		t.Errorf("missing current class:\n%s", out)
	}
}
