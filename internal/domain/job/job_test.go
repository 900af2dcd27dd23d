package job

import (
	"errors"
	"testing"
)

func TestParseType(t *testing.T) {
	tests := []struct {
		class string
		want  ParameterType
	}{
		{"ChoiceParameterDefinition", TypeChoice},
		{"jenkins.plugins.parameterseparator.ParameterSeparatorDefinition", TypeSeparator},
		{"BooleanParameterDefinition", TypeBoolean},
		{"StringParameterDefinition", TypeText},
		{"", TypeText},
	}
	for _, tt := range tests {
		if got := ParseType(tt.class); got != tt.want {
			t.Errorf("ParseType(%q) = %s, expected %s", tt.class, got, tt.want)
		}
	}
}

func TestIsRequired(t *testing.T) {
	if !IsRequired("Required: target stage") {
		t.Error("expected Required description to be required")
	}
	if IsRequired("optional stage") {
		t.Error("expected plain description to be optional")
	}
}

func TestRegistry(t *testing.T) {
	reg, err := NewRegistry([]Description{
		{Name: "deploy", Parameters: []Parameter{{Name: "a", Type: TypeText}}},
		{Name: "backup", Color: "disabled"},
		{Name: "cleanup", Color: "blue"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	names := reg.Names()
	if len(names) != 3 || names[0] != "backup" || names[2] != "deploy" {
		t.Errorf("expected sorted names, got %v", names)
	}
	names[0] = "mutated"
	if reg.Names()[0] != "backup" {
		t.Error("Names must return a copy")
	}

	if _, err := reg.Get("missing"); !errors.Is(err, ErrUnknownJob) {
		t.Errorf("expected ErrUnknownJob, got %v", err)
	}

	disabled := reg.Filter(Description.Disabled)
	if len(disabled) != 1 || disabled[0] != "backup" {
		t.Errorf("expected [backup], got %v", disabled)
	}

	noParams := reg.Filter(func(d Description) bool { return len(d.Parameters) == 0 })
	if len(noParams) != 2 {
		t.Errorf("expected 2 jobs without parameters, got %v", noParams)
	}
}

func TestNewRegistry_Invalid(t *testing.T) {
	if _, err := NewRegistry([]Description{{Name: ""}}); err == nil {
		t.Error("expected error for empty name")
	}
	if _, err := NewRegistry([]Description{{Name: "a"}, {Name: "a"}}); err == nil {
		t.Error("expected error for duplicate name")
	}
}

func TestParameter_HasChoice(t *testing.T) {
	p := Parameter{Name: "b", Type: TypeChoice, Choices: []string{"x", "y"}}
	if !p.HasChoice("x") || p.HasChoice("z") {
		t.Errorf("unexpected choice membership for %v", p.Choices)
	}
}
