// Package runner executes single nodes of the build graph.
//
// A Runner is built per node with New and driven by the batch engine:
//
//	hooks := runner.HooksFor(kind, cfg, graph)
//	hooks.BeforeBatch(ctx)
//	for each node:
//		r := runner.New(cfg, kind, node, index, total)
//		r.BeforeExecute()
//		res := r.SafeRun(ctx, graph, existing)
//		if res.Fatal() { abort }
//		r.AfterExecute(res.Outcome)
//	hooks.AfterBatch(ctx, outcomes, elapsed)
//
// SafeRun never panics and always releases the node's connection. Faults are
// classified into three tiers, see Fault.
package runner
