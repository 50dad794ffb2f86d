package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

const noneValue = "None"

// RouteDescriptor describes one endpoint of the generated server.
type RouteDescriptor struct {
	Path        string          `json:"route"`
	IsDynamic   bool            `json:"is_route_dynamic"`
	Method      Method          `json:"method"`
	RequestBody json.RawMessage `json:"request_body,omitempty"`
	Response    json.RawMessage `json:"response,omitempty"`
}

// Probeable reports whether the route is a static GET route.
func (r RouteDescriptor) Probeable() bool {
	return r.Method == MethodGet && !r.IsDynamic
}

// wireRoute is the stringly-typed shape produced by schema extraction.
type wireRoute struct {
	Route          string          `json:"route"`
	IsRouteDynamic string          `json:"is_route_dynamic"`
	Method         string          `json:"method"`
	RequestBody    json.RawMessage `json:"request_body,omitempty"`
	Response       json.RawMessage `json:"response,omitempty"`
}

const routesSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "array",
  "items": {
    "type": "object",
    "properties": {
      "route": { "type": "string", "minLength": 1 },
      "is_route_dynamic": { "type": "string", "enum": ["true", "false"] },
      "method": { "type": "string", "minLength": 1 },
      "request_body": {},
      "response": {}
    },
    "required": ["route", "is_route_dynamic", "method"]
  }
}`

// DecodeError reports structured oracle output that could not be accepted.
type DecodeError struct {
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("decode endpoint schema: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("decode endpoint schema: %s", e.Reason)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// DecodeRoutes parses the endpoint schema JSON. Nothing is accepted unless the whole document
// is valid.
func DecodeRoutes(data []byte) ([]RouteDescriptor, error) {
	data = bytes.TrimSpace(data)
	if !json.Valid(data) {
		recovered, ok := extractJSONArray(data)
		if !ok {
			return nil, &DecodeError{Reason: "output is not valid JSON"}
		}
		data = recovered
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(routesSchema),
		gojsonschema.NewBytesLoader(data),
	)
	if err != nil {
		return nil, &DecodeError{Reason: "validate", Err: err}
	}
	if !result.Valid() {
		errs := make([]string, 0, len(result.Errors()))
		for _, schemaErr := range result.Errors() {
			errs = append(errs, schemaErr.String())
		}
		sort.Strings(errs)
		return nil, &DecodeError{Reason: strings.Join(errs, "; ")}
	}

	var wire []wireRoute
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, &DecodeError{Reason: "unmarshal", Err: err}
	}

	routes := make([]RouteDescriptor, 0, len(wire))
	for _, w := range wire {
		routes = append(routes, RouteDescriptor{
			Path:        w.Route,
			IsDynamic:   w.IsRouteDynamic == "true",
			Method:      ParseMethod(w.Method),
			RequestBody: optionalSchema(w.RequestBody),
			Response:    optionalSchema(w.Response),
		})
	}
	return routes, nil
}

// EncodeRoutes renders routes back into the extraction wire format.
func EncodeRoutes(routes []RouteDescriptor) ([]byte, error) {
	wire := make([]wireRoute, 0, len(routes))
	for _, r := range routes {
		w := wireRoute{
			Route:          r.Path,
			IsRouteDynamic: fmt.Sprintf("%t", r.IsDynamic),
			Method:         string(r.Method),
			RequestBody:    r.RequestBody,
			Response:       r.Response,
		}
		if w.RequestBody == nil {
			w.RequestBody = json.RawMessage(`"None"`)
		}
		if w.Response == nil {
			w.Response = json.RawMessage(`"None"`)
		}
		wire = append(wire, w)
	}
	return json.MarshalIndent(wire, "", "  ")
}

// FilterProbeable returns the static GET routes in declaration order.
func FilterProbeable(routes []RouteDescriptor) []RouteDescriptor {
	out := make([]RouteDescriptor, 0, len(routes))
	for _, r := range routes {
		if r.Probeable() {
			out = append(out, r)
		}
	}
	return out
}

func optionalSchema(raw json.RawMessage) json.RawMessage {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || string(trimmed) == "null" {
		return nil
	}
	var s string
	if err := json.Unmarshal(trimmed, &s); err == nil && (s == noneValue || s == "") {
		return nil
	}
	return trimmed
}

func extractJSONArray(data []byte) ([]byte, bool) {
	start := bytes.IndexByte(data, '[')
	end := bytes.LastIndexByte(data, ']')
	if start == -1 || end == -1 || start >= end {
		return nil, false
	}
	candidate := data[start : end+1]
	if !json.Valid(candidate) {
		return nil, false
	}
	return candidate, true
}
