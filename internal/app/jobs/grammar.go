package jobs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/opsdeck/opsdeck/internal/domain/job"
	"github.com/opsdeck/opsdeck/internal/pkg/logger"
)

// DryRunFlag is the grammar-wide flag guarding every mutating action.
const DryRunFlag = "dry-run"

// reservedFlags cannot be used as parameter flags.
var reservedFlags = map[string]bool{
	DryRunFlag: true,
	"help":     true,
}

// utilityCommands are the fixed sub-commands; jobs with these names are
// not exposed.
var utilityCommands = map[string]bool{
	"copy-job":                     true,
	"delete-job":                   true,
	"enable-job":                   true,
	"disable-job":                  true,
	"get-job-config":               true,
	"list-all-jobs":                true,
	"list-jobs-without-parameters": true,
	"list-disable-jobs":            true,
	"help":                         true,
}

// UsageError is a malformed invocation of the grammar.
type UsageError struct {
	// Command is the path of the command that rejected the invocation.
	Command string
	Usage   string
	Err     error
}

// Error implements the error interface.
func (e *UsageError) Error() string {
	return e.Err.Error()
}

// Unwrap implements error unwrapping.
func (e *UsageError) Unwrap() error {
	return e.Err
}

func usageError(cmd *cobra.Command, err error) error {
	var ue *UsageError
	if err == nil || errors.As(err, &ue) {
		return err
	}
	return &UsageError{Command: cmd.CommandPath(), Usage: cmd.UsageString(), Err: err}
}

// usageArgs wraps a positional argument validator so its failures are
// usage errors.
func usageArgs(validate cobra.PositionalArgs) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		return usageError(cmd, validate(cmd, args))
	}
}

// choiceValue is a flag restricted to a fixed set of values.
type choiceValue struct {
	value string
	param job.Parameter
}

func (c *choiceValue) String() string { return c.value }

func (c *choiceValue) Set(v string) error {
	if !c.param.HasChoice(v) {
		return fmt.Errorf("must be one of %s", strings.Join(c.param.Choices, ", "))
	}
	c.value = v
	return nil
}

func (c *choiceValue) Type() string { return "choice" }

var _ pflag.Value = (*choiceValue)(nil)

// NewGrammar builds the command tree for registry: one sub-command per job
// with one flag per non-separator parameter, plus the fixed utility
// commands. Actions receive the job name from the closure and never read
// shared state. Output of listing commands goes to out.
func NewGrammar(registry *job.Registry, actions Actions, out io.Writer) *cobra.Command {
	root := &cobra.Command{
		Use:           "jenkins",
		Short:         "Trigger and manage build jobs",
		Args:          usageArgs(cobra.NoArgs),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}
	root.CompletionOptions.DisableDefaultCmd = true
	root.SetOut(out)
	root.SetFlagErrorFunc(usageError)
	root.PersistentFlags().Bool(DryRunFlag, true, "Print what would be done without calling the build server")

	for _, d := range registry.All() {
		if utilityCommands[d.Name] || strings.IndexFunc(d.Name, unicode.IsSpace) >= 0 {
			logger.Warn("job cannot be exposed as a command", "job", d.Name)
			continue
		}
		root.AddCommand(newJobCommand(d, actions))
	}

	root.AddCommand(
		newCopyCommand(registry, actions),
		newToggleCommand("delete-job", "Delete a job", registry, actions.Delete),
		newToggleCommand("enable-job", "Enable a job", registry, actions.Enable),
		newToggleCommand("disable-job", "Disable a job", registry, actions.Disable),
		newConfigCommand(registry, actions),
		newListCommand("list-all-jobs", "List every job", registry, func(job.Description) bool { return true }),
		newListCommand("list-jobs-without-parameters", "List jobs that take no parameters", registry,
			func(d job.Description) bool { return len(flagParameters(d)) == 0 }),
		newListCommand("list-disable-jobs", "List disabled jobs", registry, job.Description.Disabled),
	)
	return root
}

// flagParameters returns the parameters of d that become flags, in order.
// Separators, reserved names and repeated names are dropped.
func flagParameters(d job.Description) []job.Parameter {
	seen := make(map[string]bool, len(d.Parameters))
	var out []job.Parameter
	for _, p := range d.Parameters {
		switch {
		case p.Type == job.TypeSeparator:
			continue
		case p.Name == "" || reservedFlags[p.Name] || seen[p.Name]:
			logger.Warn("skipping job parameter", "job", d.Name, "parameter", p.Name)
			continue
		}
		seen[p.Name] = true
		out = append(out, p)
	}
	return out
}

func newJobCommand(d job.Description, actions Actions) *cobra.Command {
	params := flagParameters(d)
	name := d.Name

	cmd := &cobra.Command{
		Use:   name,
		Short: fmt.Sprintf("Trigger %s", name),
		Args:  usageArgs(cobra.NoArgs),
		// Required flags are checked here so a missing one is a usage error.
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			return usageError(cmd, cmd.ValidateRequiredFlags())
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			dryRun, err := cmd.Flags().GetBool(DryRunFlag)
			if err != nil {
				return err
			}
			args := make([]Argument, 0, len(params))
			for _, p := range params {
				args = append(args, Argument{Name: p.Name, Value: cmd.Flags().Lookup(p.Name).Value.String()})
			}
			return actions.Build(cmd.Context(), name, args, dryRun)
		},
	}

	fs := cmd.Flags()
	for _, p := range params {
		switch {
		case p.Type == job.TypeChoice && len(p.Choices) > 0:
			v := &choiceValue{param: p}
			if !p.Required {
				v.value = p.Default
			}
			fs.Var(v, p.Name, describe(p))
			if p.Required {
				_ = cmd.MarkFlagRequired(p.Name)
			}
		case p.Type == job.TypeBoolean:
			fs.Bool(p.Name, p.Default == "true", describe(p))
		default:
			fs.String(p.Name, p.Default, describe(p))
		}
	}
	return cmd
}

func describe(p job.Parameter) string {
	desc := strings.TrimSpace(p.Description)
	if len(p.Choices) > 0 {
		choices := "one of " + strings.Join(p.Choices, ", ")
		if desc == "" {
			return choices
		}
		return desc + " (" + choices + ")"
	}
	return desc
}

// knownJob rejects names missing from the registry.
func knownJob(registry *job.Registry, name string) error {
	_, err := registry.Get(name)
	return err
}

func newCopyCommand(registry *job.Registry, actions Actions) *cobra.Command {
	return &cobra.Command{
		Use:   "copy-job <job> <new_name>",
		Short: "Copy a job under a new name",
		Args:  usageArgs(cobra.ExactArgs(2)),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := knownJob(registry, args[0]); err != nil {
				return err
			}
			dryRun, err := cmd.Flags().GetBool(DryRunFlag)
			if err != nil {
				return err
			}
			return actions.Copy(cmd.Context(), args[0], args[1], dryRun)
		},
	}
}

type jobAction func(ctx context.Context, job string, dryRun bool) error

func newToggleCommand(use, short string, registry *job.Registry, action jobAction) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <job>",
		Short: short,
		Args:  usageArgs(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := knownJob(registry, args[0]); err != nil {
				return err
			}
			dryRun, err := cmd.Flags().GetBool(DryRunFlag)
			if err != nil {
				return err
			}
			return action(cmd.Context(), args[0], dryRun)
		},
	}
}

func newConfigCommand(registry *job.Registry, actions Actions) *cobra.Command {
	return &cobra.Command{
		Use:   "get-job-config <job>",
		Short: "Save a job's config.xml to the workspace",
		Args:  usageArgs(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := knownJob(registry, args[0]); err != nil {
				return err
			}
			_, err := actions.SaveConfig(cmd.Context(), args[0])
			return err
		},
	}
}

func newListCommand(use, short string, registry *job.Registry, keep func(job.Description) bool) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, _ []string) error {
			for _, name := range registry.Filter(keep) {
				if _, err := fmt.Fprintln(cmd.OutOrStdout(), name); err != nil {
					return err
				}
			}
			return nil
		},
	}
}
