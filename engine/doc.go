// Package engine runs an agent against a list of inputs.
//
// # Run lifecycle
//
// A run executes at most one before_all hook, then one task per input, then at
// most one after_all hook:
//
//	before_all ──► normalize inputs ──► task 0..N (≤ concurrency) ──► sort ──► after_all
//
// The before_all hook may return a directive built with agentpack.skip() (the
// run ends with an empty Response) or agentpack.beforeAllResponse({...}) which
// replaces the inputs, sets the shared value and overrides options. Any other
// return value becomes the shared value. Options are frozen once before_all
// returns.
//
// # Tasks
//
// Every task runs the stage pipeline for one input:
//
//  1. Data: the data script computes template data from {input, shared, CTX}.
//  2. Instruction: each prompt part is rendered against {data, input, shared};
//     blank parts are dropped.
//  3. AI call: the remaining parts are sent to the model as chat messages.
//  4. Output: the output script maps {input, data, shared, ai_result, CTX} to
//     the task value. Without an output script the AI content is the value.
//
// Data and output scripts may only return the skip directive; a skipped input
// keeps its slot in the outputs as nil. DryModeRequestOnly stops every task
// after the instruction stage and DryModeResponseOnly after the AI call.
//
// # Concurrency and failures
//
// Tasks are admitted in input order through an errgroup bounded by the
// input_concurrency option. They may finish in any order; outputs are
// re-sorted by input index before they are returned or handed to after_all.
//
// The first failing task cancels the run context. Inputs not yet admitted are
// never started, running scripts are interrupted and model calls aborted, and
// Run waits for them before returning the error. Partial outputs are never
// returned. Errors are typed (core.ScriptError, core.ProtocolError,
// core.ChatError, core.TaskError) and match the core sentinels with errors.Is.
//
// # Observability
//
// Progress is published as event.Event values through the configured
// Publisher, which must not block. Spans are created with the configured
// OpenTelemetry tracer for the run, both hooks, every task and every AI call.
package engine
