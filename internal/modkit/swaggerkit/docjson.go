package swaggerkit

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync/atomic"

	"hma/internal/core/version"

	"github.com/swaggo/swag/v2"
)

const (
	openAPI = "3.0.3"

	// instance is the name swag codegen registers the api document under
	instance = "api"
)

var source atomic.Pointer[func() string]

// SetSource overrides where the document is read from. Without it the
// document registered with swag is served, or a skeleton holding only the
// info block when nothing was generated
func SetSource(read func() string) {
	if read != nil {
		source.Store(&read)
	}
}

func readDoc() string {
	if p := source.Load(); p != nil {
		return (*p)()
	}
	if doc := swag.GetSwagger(instance); doc != nil {
		return doc.ReadDoc()
	}
	b := version.Info("hma")
	return `{"openapi":"` + openAPI + `","info":{"title":"HMA API","version":"` + b.Version + `"},"paths":{}}`
}

func serveDocJSON(w http.ResponseWriter, _ *http.Request) {
	var spec map[string]any
	if err := json.Unmarshal([]byte(readDoc()), &spec); err != nil {
		http.Error(w, "spec parse error", http.StatusInternalServerError)
		return
	}
	normalize(spec)

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	_ = json.NewEncoder(w).Encode(spec)
}

// normalize lifts swagger 2 and 3.1 documents to 3.0.3, which the UI renders,
// and gives every operation a 400 and a 500 in the error envelope shape
func normalize(spec map[string]any) {
	delete(spec, "swagger")
	if v, _ := spec["openapi"].(string); v == "" || strings.HasPrefix(v, "3.1") {
		spec["openapi"] = openAPI
	}
	if _, ok := spec["servers"]; !ok {
		spec["servers"] = []any{map[string]any{"url": "/"}}
	}

	schemas := child(child(spec, "components"), "schemas")
	if _, ok := schemas["ErrorResponse"]; !ok {
		schemas["ErrorResponse"] = map[string]any{
			"type": "object",
			"properties": map[string]any{
				"message":    map[string]any{"type": "string"},
				"code":       map[string]any{"type": "integer", "format": "int32"},
				"field":      map[string]any{"type": "string"},
				"request_id": map[string]any{"type": "string"},
			},
			"required": []any{"message"},
		}
	}

	defaults := map[string]any{
		"400": errorResponse("Bad Request", map[string]any{
			"message": `invalid name "my bank": use uppercase letters, digits and underscores, not starting with a digit`,
			"code":    7,
			"field":   "name",
		}),
		"500": errorResponse("Internal Server Error", map[string]any{
			"message": "panic recovered",
			"code":    1,
		}),
	}
	paths, _ := spec["paths"].(map[string]any)
	for _, p := range paths {
		item, ok := p.(map[string]any)
		if !ok {
			continue
		}
		for _, o := range item {
			op, ok := o.(map[string]any)
			if !ok {
				continue
			}
			resps := child(op, "responses")
			for status, resp := range defaults {
				if _, ok := resps[status]; !ok {
					resps[status] = resp
				}
			}
		}
	}
}

func errorResponse(desc string, example map[string]any) map[string]any {
	return map[string]any{
		"description": desc,
		"content": map[string]any{
			"application/json": map[string]any{
				"schema":  map[string]any{"$ref": "#/components/schemas/ErrorResponse"},
				"example": example,
			},
		},
	}
}

// child returns m[key] as an object, creating it when absent
func child(m map[string]any, key string) map[string]any {
	c, ok := m[key].(map[string]any)
	if !ok {
		c = map[string]any{}
		m[key] = c
	}
	return c
}
