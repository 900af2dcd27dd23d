// Package command defines the contract between opsdeck and the external
// cloud tooling it drives: a request naming a service, an operation, a region
// and a credential profile, and an executor that turns it into a parsed
// JSON document.
package command

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Service is a cloud CLI command category.
type Service string

const (
	ServiceCloudFormation Service = "cloudformation"
	ServiceEC2            Service = "ec2"
	ServiceAutoScaling    Service = "autoscaling"
	ServiceS3             Service = "s3api"
	ServiceRDS            Service = "rds"
	ServiceElastiCache    Service = "elasticache"
	ServiceSTS            Service = "sts"
)

// NativeDryRun reports whether the service accepts a --dry-run flag on its
// mutating operations.
func (s Service) NativeDryRun() bool {
	return s == ServiceEC2
}

// Option is a single command option. Names may use underscores; they are
// translated to hyphens when the command line is built.
type Option struct {
	Name  string `validate:"required"`
	Value string
}

// Opt is shorthand for building an Option.
func Opt(name, value string) Option {
	return Option{Name: name, Value: value}
}

// Options is an ordered option set.
type Options []Option

// Get returns the value of the first option with the given name.
func (o Options) Get(name string) (string, bool) {
	want := FlagName(name)
	for _, opt := range o {
		if FlagName(opt.Name) == want {
			return opt.Value, true
		}
	}
	return "", false
}

// Without returns a copy of the options with every occurrence of name removed.
func (o Options) Without(name string) Options {
	want := FlagName(name)
	out := make(Options, 0, len(o))
	for _, opt := range o {
		if FlagName(opt.Name) != want {
			out = append(out, opt)
		}
	}
	return out
}

// FlagName converts an option name to its command-line spelling.
func FlagName(name string) string {
	return strings.ReplaceAll(name, "_", "-")
}

// Request describes one invocation of an external cloud operation.
type Request struct {
	Service   Service `validate:"required"`
	Operation string  `validate:"required"`
	Region    string  `validate:"required"`
	// Profile is the credential profile; empty means ambient credentials.
	Profile string
	Options Options `validate:"dive"`
	DryRun  bool
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks required fields and rejects operations or option names
// outside the allow-list.
func (r Request) Validate() error {
	if err := validate.Struct(r); err != nil {
		return fmt.Errorf("invalid request %s %s: %w", r.Service, r.Operation, err)
	}
	spec, err := Lookup(r.Service, r.Operation)
	if err != nil {
		return err
	}
	for _, opt := range r.Options {
		if !spec.Allows(opt.Name) {
			return fmt.Errorf("%w: --%s for %s %s", ErrUnknownOption, FlagName(opt.Name), r.Service, r.Operation)
		}
	}
	return nil
}

// Spec returns the allow-list entry for the request's operation.
func (r Request) Spec() (OperationSpec, error) {
	return Lookup(r.Service, r.Operation)
}

// Args builds the argument vector for the request, without the binary name.
// Options with an empty value are emitted as bare flags.
func (r Request) Args() []string {
	var args []string
	if r.Profile != "" {
		args = append(args, "--profile", r.Profile)
	}
	args = append(args, "--region", r.Region, string(r.Service), r.Operation)
	for _, opt := range r.Options {
		args = append(args, "--"+FlagName(opt.Name))
		if opt.Value != "" {
			args = append(args, opt.Value)
		}
	}
	return args
}

// CommandLine renders the request as the shell command it corresponds to.
func (r Request) CommandLine(binary string) string {
	return strings.Join(append([]string{binary}, r.Args()...), " ")
}

// Document is a parsed JSON value: map[string]any, []any, a scalar, or nil
// when the command produced no output.
type Document = any

// Executor runs a request against an external CLI or SDK.
type Executor interface {
	Execute(ctx context.Context, req Request) (Document, error)
}

// ExecutorFunc adapts a function to the Executor interface.
type ExecutorFunc func(ctx context.Context, req Request) (Document, error)

// Execute calls f.
func (f ExecutorFunc) Execute(ctx context.Context, req Request) (Document, error) {
	return f(ctx, req)
}
