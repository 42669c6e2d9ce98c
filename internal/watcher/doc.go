// Package watcher turns filesystem events into debounced watch triggers.
//
// Configure keeps the valid watches and subscribes a Source to their
// directory roots. Each event is matched against every watch whose resolved
// directory contains it and whose glob matches the full event path. Matches
// are debounced per watch id; after the quiet window the watch's current
// definition is handed to the Scheduler, provided it still matches the last
// pending path. A reload inside the window therefore runs the new definition
// or nothing.
package watcher
