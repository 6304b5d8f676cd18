/*
Package concierge drives conversational agents without native tool-calling
through multi-step tasks. The agent issues small JSON actions, the engine
advances a per-session stage graph, and every response is a rendered text
block telling the agent exactly what it may legally do next.

# Concept

An application flow is modeled as a workflow: a directed graph of named
stages, each owning its operations and local data. Transitions between
stages are explicit edges carrying a data-propagation policy, and a stage
may declare prerequisite fields that must be satisfied before it can be
entered. When required data is missing, the transition is deferred instead
of failed: the agent is told which fields to supply and re-issues the same
transition afterwards.

# Usage

Define a workflow, create an engine, and feed it action envelopes:

	wf := domain.NewWorkflow("stock_exchange", "Simple stock trading workflow.")
	// ... add stages, operations, transitions, propagation policies ...

	eng, err := concierge.New(wf)
	if err != nil {
		log.Fatal(err)
	}

	sessionID, greeting, err := eng.CreateSession(ctx)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println(greeting)

	reply, err := eng.Handle(ctx, sessionID, []byte(`{"action": "operation_call", "tool": "search", "args": {"symbol": "AAPL"}}`))
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println(reply)

Sessions are serialized per ID and fully independent of each other. Durable
execution is available by configuring a state store (memory, Redis, or
Postgres) via WithStore; sessions then survive process restarts and are
rehydrated on first use.
*/
package concierge
