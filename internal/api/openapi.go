package api

import (
	"github.com/mattjoyce/watchit/internal/app"
)

// buildOpenAPIDoc returns an OpenAPI 3.1 document for the API. The watch id
// parameter is constrained to the currently configured watches.
func buildOpenAPIDoc(watches []app.WatchStatus) map[string]any {
	ids := make([]string, 0, len(watches))
	for _, st := range watches {
		ids = append(ids, st.Definition.ID)
	}

	watchParam := map[string]any{
		"name":     "watchID",
		"in":       "path",
		"required": true,
		"schema":   map[string]any{"type": "string", "enum": ids},
	}
	runParam := map[string]any{
		"name":     "runID",
		"in":       "path",
		"required": true,
		"schema":   map[string]any{"type": "string"},
	}

	return map[string]any{
		"openapi": "3.1.0",
		"info": map[string]any{
			"title":   "watchit",
			"version": "1.0",
		},
		"paths": map[string]any{
			"/healthz": map[string]any{
				"get": operation("healthz", "Service health", "200"),
			},
			"/watches": map[string]any{
				"get": operation("listWatches", "Configured watches with validity and run state", "200"),
			},
			"/watches/{watchID}/run": map[string]any{
				"parameters": []any{watchParam},
				"post":       operation("runWatch", "Run a watch now", "202", "404"),
			},
			"/watches/{watchID}/stop": map[string]any{
				"parameters": []any{watchParam},
				"post":       operation("stopWatch", "Cancel a watch's in-flight run", "200", "404"),
			},
			"/runs": map[string]any{
				"get": map[string]any{
					"operationId": "listRuns",
					"summary":     "Recorded runs, newest first",
					"parameters": []any{
						map[string]any{"name": "watch", "in": "query", "schema": map[string]any{"type": "string"}},
						map[string]any{"name": "limit", "in": "query", "schema": map[string]any{"type": "integer", "minimum": 1}},
					},
					"responses": responses("200", "400", "503"),
				},
			},
			"/runs/{runID}/failures": map[string]any{
				"parameters": []any{runParam},
				"get":        operation("runFailures", "Failures extracted from a run", "200", "503"),
			},
			"/events": map[string]any{
				"get": operation("events", "Server-sent event stream; honours Last-Event-ID", "200"),
			},
		},
	}
}

func operation(id, summary string, codes ...string) map[string]any {
	return map[string]any{
		"operationId": id,
		"summary":     summary,
		"responses":   responses(codes...),
	}
}

var statusDescriptions = map[string]string{
	"200": "OK",
	"202": "Run started",
	"400": "Bad request",
	"404": "Not found",
	"503": "Unavailable",
}

func responses(codes ...string) map[string]any {
	out := make(map[string]any, len(codes))
	for _, c := range codes {
		out[c] = map[string]any{"description": statusDescriptions[c]}
	}
	return out
}
