// Package runner executes watches. It keeps at most one task per watch id:
// a trigger for a watch that is already running cancels the running task,
// kills its process group and starts a fresh one.
//
// Each run spawns [shell, "-l", "-c", command] in the watch's resolved
// directory, waits for it, and matches the combined output against the
// watch's pattern. Every match with a path and an integer line becomes a
// Failure. Failures of one run are published together with its Completion,
// and no other run's events interleave with them.
//
// A cancelled run publishes no failures and one Completion with Cancelled
// set. Spawn errors surface as a single Failure with Line 0.
package runner
