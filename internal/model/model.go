// Package model defines the project, route and bug records shared by the build-validate loop.
package model

import (
	"fmt"
	"strings"
)

// ScopeFlags describes which capabilities the generated server must provide.
type ScopeFlags struct {
	CRUD         bool `json:"is_crud_required"`
	Auth         bool `json:"is_user_login_and_logout"`
	ExternalURLs bool `json:"is_external_urls_required"`
}

// ProjectRecord is the state the loop reads and writes while generating a server.
type ProjectRecord struct {
	Description    string            `json:"project_description"`
	Scope          ScopeFlags        `json:"project_scope"`
	ExternalURLs   []string          `json:"external_urls,omitempty"`
	CurrentSource  *string           `json:"backend_code"`
	EndpointSchema []RouteDescriptor `json:"api_endpoint_schema"`
}

// SetSource replaces the current source as a whole.
func (p *ProjectRecord) SetSource(src string) {
	p.CurrentSource = &src
}

// Source returns the current source or an empty string when none was generated yet.
func (p ProjectRecord) Source() string {
	if p.CurrentSource == nil {
		return ""
	}
	return *p.CurrentSource
}

// BugRecord tracks consecutive build failures.
type BugRecord struct {
	Count     int
	LastError *string
}

// Fail records a build failure with its diagnostic output.
func (b *BugRecord) Fail(stderr string) {
	b.Count++
	b.LastError = &stderr
}

// Reset clears the record after a clean build.
func (b *BugRecord) Reset() {
	b.Count = 0
	b.LastError = nil
}

// Exceeded reports whether the failure count went past limit.
func (b BugRecord) Exceeded(limit int) bool {
	return b.Count > limit
}

// AgentState is a state of the build-validate loop.
type AgentState int

const (
	Discovering AgentState = iota
	Refining
	Validating
	Finished
)

func (s AgentState) String() string {
	switch s {
	case Discovering:
		return "discovering"
	case Refining:
		return "refining"
	case Validating:
		return "validating"
	case Finished:
		return "finished"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Method is an HTTP method as reported by the schema extraction, lower-cased.
type Method string

const (
	MethodGet    Method = "get"
	MethodPost   Method = "post"
	MethodPut    Method = "put"
	MethodDelete Method = "delete"
	MethodPatch  Method = "patch"
)

// ParseMethod normalizes a method name.
func ParseMethod(s string) Method {
	return Method(strings.ToLower(strings.TrimSpace(s)))
}

// Upper returns the method in canonical HTTP form.
func (m Method) Upper() string {
	return strings.ToUpper(string(m))
}
