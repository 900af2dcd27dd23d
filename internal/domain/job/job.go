// Package job describes build-server jobs and their parameters.
package job

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrUnknownJob is returned when a job name is not in the registry.
var ErrUnknownJob = errors.New("unknown job")

// ParameterType is the closed set of parameter kinds.
type ParameterType string

const (
	TypeText      ParameterType = "text"
	TypeChoice    ParameterType = "choice"
	TypeBoolean   ParameterType = "boolean"
	TypeSeparator ParameterType = "separator"
)

// ParseType maps a build-server parameter class name such as
// ChoiceParameterDefinition onto a ParameterType.
func ParseType(class string) ParameterType {
	switch {
	case strings.Contains(class, "Separator"):
		return TypeSeparator
	case strings.Contains(class, "Choice"):
		return TypeChoice
	case strings.Contains(class, "Boolean"):
		return TypeBoolean
	default:
		return TypeText
	}
}

// Parameter describes one job parameter.
type Parameter struct {
	Name        string        `json:"name" yaml:"name"`
	Type        ParameterType `json:"type" yaml:"type"`
	Default     string        `json:"default,omitempty" yaml:"default,omitempty"`
	Description string        `json:"description,omitempty" yaml:"description,omitempty"`
	Choices     []string      `json:"choices,omitempty" yaml:"choices,omitempty"`
	Required    bool          `json:"required,omitempty" yaml:"required,omitempty"`
}

// IsRequired reports whether a description marks its parameter as required.
func IsRequired(description string) bool {
	return strings.Contains(description, "Required")
}

// HasChoice reports whether v is one of the parameter's choices.
func (p Parameter) HasChoice(v string) bool {
	for _, c := range p.Choices {
		if c == v {
			return true
		}
	}
	return false
}

// Description is a job and its parameter list.
type Description struct {
	Name       string      `json:"name"`
	URL        string      `json:"url,omitempty"`
	Color      string      `json:"color,omitempty"`
	Parameters []Parameter `json:"parameters,omitempty"`
}

// Disabled reports whether the build server shows the job as disabled.
func (d Description) Disabled() bool {
	return d.Color == "disabled"
}

// Registry is a read-only, name-ordered set of job descriptions.
type Registry struct {
	names []string
	jobs  map[string]Description
}

// NewRegistry builds a registry. Job names must be non-empty and unique.
func NewRegistry(jobs []Description) (*Registry, error) {
	r := &Registry{jobs: make(map[string]Description, len(jobs))}
	for _, j := range jobs {
		if j.Name == "" {
			return nil, errors.New("job name cannot be empty")
		}
		if _, dup := r.jobs[j.Name]; dup {
			return nil, fmt.Errorf("duplicate job %q", j.Name)
		}
		r.jobs[j.Name] = j
		r.names = append(r.names, j.Name)
	}
	sort.Strings(r.names)
	return r, nil
}

// Names returns job names in ascending order.
func (r *Registry) Names() []string {
	return append([]string(nil), r.names...)
}

// Len returns the number of jobs.
func (r *Registry) Len() int {
	return len(r.names)
}

// Get returns the description of a job.
func (r *Registry) Get(name string) (Description, error) {
	j, ok := r.jobs[name]
	if !ok {
		return Description{}, fmt.Errorf("%w: %s", ErrUnknownJob, name)
	}
	return j, nil
}

// All returns every description in name order.
func (r *Registry) All() []Description {
	out := make([]Description, 0, len(r.names))
	for _, n := range r.names {
		out = append(out, r.jobs[n])
	}
	return out
}

// Filter returns the names of jobs matching keep, in name order.
func (r *Registry) Filter(keep func(Description) bool) []string {
	var out []string
	for _, n := range r.names {
		if keep(r.jobs[n]) {
			out = append(out, n)
		}
	}
	return out
}
