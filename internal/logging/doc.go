// Package logging implements the structured emitter and its persistence
// layer: one leveled emitter per (category, component) pair, cached in a
// registry, feeding a bounded queue drained by a dedicated worker that
// appends newline-delimited JSON to <trace_dir>/<category>/<component>.jsonl
// with size-based rotation and retention pruning.
//
// Emit calls never block and never fail the caller: records below the
// category's effective level are dropped before serialization, and a full
// queue drops the new record rather than stalling the workflow being
// observed. Every internal fault is swallowed after being counted and
// noted on the diagnostics logger.
package logging
