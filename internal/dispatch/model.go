// Package dispatch implements the Dispatcher (C11): the HTTP ingress that
// extracts the requested model and source dialect from an inbound request,
// resolves it to a provider via ModelMapper + Router, and routes into the
// streaming RetryDriver loop.
package dispatch

import (
	"encoding/json"
	"regexp"
	"strings"
)

var modelsPathPattern = regexp.MustCompile(`models/([^:/]+)(?::([a-zA-Z]+))?`)

// ExtractModel finds the requested model name from either the URL path
// (Gemini's `models/<name>(:action)` convention) or a JSON `model` field in
// the body.
func ExtractModel(path string, body map[string]interface{}) (model, action string) {
	if m := modelsPathPattern.FindStringSubmatch(path); m != nil {
		return m[1], m[2]
	}
	if v, ok := body["model"].(string); ok {
		return v, ""
	}
	return "", ""
}

// RewriteModel sets body["model"] in place, returning the (possibly
// unmodified) raw bytes re-encoded. Used after ModelMapper resolves an
// alias so downstream RequestTransform sees the canonical model name.
func RewriteModel(raw []byte, newModel string) ([]byte, error) {
	var body map[string]interface{}
	if err := json.Unmarshal(raw, &body); err != nil {
		return raw, err
	}
	body["model"] = newModel
	return json.Marshal(body)
}

// DetectStreamFlag reports the body's `stream` field, defaulting to false.
func DetectStreamFlag(body map[string]interface{}) bool {
	v, ok := body["stream"].(bool)
	return ok && v
}

// normalizeModelPath strips a single leading slash from path; a version
// prefix such as "v1beta/" is left in place.
func normalizeModelPath(path string) string {
	return strings.TrimPrefix(path, "/")
}
