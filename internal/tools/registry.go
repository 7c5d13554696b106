// Package tools implements the Tool Dispatcher (C7): a static typed registry mapping tool name
// to implementation, argument schema validation, and the composite fan-out tool.
package tools

import (
	"context"
	"fmt"

	"toolplane/internal/authz/domain"
)

// Kind is the tool's auth tier, per spec.md §9's redesign note replacing a single boolean
// "requires_auth" flag with a three-way sum type.
type Kind string

const (
	KindPublic        Kind = "public"
	KindAuthenticated Kind = "authenticated"
	KindAdmin         Kind = "admin"
)

// FieldType is the JSON-Schema-like primitive type an argument field accepts.
type FieldType string

const (
	FieldString FieldType = "string"
	FieldNumber FieldType = "number"
	FieldBool   FieldType = "bool"
	FieldObject FieldType = "object"
	FieldArray  FieldType = "array"
)

// Field describes one argument the Validation middleware stage checks for before dispatch.
type Field struct {
	Name     string
	Type     FieldType
	Required bool
}

// Schema is a tool's argument shape.
type Schema struct {
	Fields []Field
}

// Validate checks arguments against s, returning the first violation found.
func (s Schema) Validate(arguments map[string]interface{}) error {
	for _, f := range s.Fields {
		v, present := arguments[f.Name]
		if !present {
			if f.Required {
				return fmt.Errorf("missing required argument %q", f.Name)
			}
			continue
		}
		if !typeMatches(f.Type, v) {
			return fmt.Errorf("argument %q must be of type %s", f.Name, f.Type)
		}
	}
	return nil
}

func typeMatches(t FieldType, v interface{}) bool {
	switch t {
	case FieldString:
		_, ok := v.(string)
		return ok
	case FieldNumber:
		switch v.(type) {
		case float64, int, int64:
			return true
		}
		return false
	case FieldBool:
		_, ok := v.(bool)
		return ok
	case FieldObject:
		_, ok := v.(map[string]interface{})
		return ok
	case FieldArray:
		_, ok := v.([]interface{})
		return ok
	default:
		return true
	}
}

// Result is a tool invocation's outcome, result or partial status for composite fan-out branches.
type Result struct {
	Source  string      `json:"source"`
	Content interface{} `json:"content,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// Implementation is the async function a tool binds to.
type Implementation func(ctx context.Context, arguments map[string]interface{}) (interface{}, error)

// Tool is one dispatchable tool: its static binding, auth tier, argument schema, and
// implementation, plus whether its results are eligible for the Result Cache (C8) and whether
// results vary per-principal.
type Tool struct {
	Name               string
	Kind               Kind
	Binding            domain.ToolBinding
	Schema             Schema
	Implementation     Implementation
	Cacheable          bool
	PrincipalVarying   bool
}

// Registry is the static set of dispatchable tools, built once at startup.
type Registry struct {
	tools map[string]*Tool
}

// NewRegistry returns a Registry containing the given tools, keyed by Name.
func NewRegistry(tools ...*Tool) *Registry {
	r := &Registry{tools: make(map[string]*Tool, len(tools))}
	for _, t := range tools {
		r.tools[t.Name] = t
	}
	return r
}

// Get returns the tool named name, or (nil, false) if no such tool is registered.
func (r *Registry) Get(name string) (*Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// Bindings returns the static tool-name→binding map the Authorization Engine consults.
func (r *Registry) Bindings() map[string]domain.ToolBinding {
	out := make(map[string]domain.ToolBinding, len(r.tools))
	for name, t := range r.tools {
		out[name] = t.Binding
	}
	return out
}

// List returns every tool visible to a principal with the given roles: public tools always,
// admin tools only for admins, authenticated tools for any non-anonymous principal (anonymous is
// represented by a nil roles slice and an empty userID by the caller — tools/list's own
// auth-bypass decision is the Middleware Pipeline's, not this registry's, concern).
func (r *Registry) List(roles []string) []*Tool {
	isAdmin := false
	for _, role := range roles {
		if role == domain.RoleAdmin {
			isAdmin = true
			break
		}
	}
	anonymous := len(roles) == 0

	var out []*Tool
	for _, t := range r.tools {
		switch t.Kind {
		case KindPublic:
			out = append(out, t)
		case KindAdmin:
			if isAdmin {
				out = append(out, t)
			}
		case KindAuthenticated:
			if !anonymous {
				out = append(out, t)
			}
		}
	}
	return out
}
