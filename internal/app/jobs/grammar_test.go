package jobs

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsdeck/opsdeck/internal/domain/job"
)

type recordedBuild struct {
	job    string
	args   []Argument
	dryRun bool
}

// fakeActions records every bound action it receives.
type fakeActions struct {
	builds  []recordedBuild
	calls   []string
	buildFn func() error
}

func (f *fakeActions) Build(_ context.Context, name string, args []Argument, dryRun bool) error {
	f.builds = append(f.builds, recordedBuild{job: name, args: args, dryRun: dryRun})
	if f.buildFn != nil {
		return f.buildFn()
	}
	return nil
}

func (f *fakeActions) Copy(_ context.Context, name, newName string, dryRun bool) error {
	f.calls = append(f.calls, call("copy", name+">"+newName, dryRun))
	return nil
}

func (f *fakeActions) Delete(_ context.Context, name string, dryRun bool) error {
	f.calls = append(f.calls, call("delete", name, dryRun))
	return nil
}

func (f *fakeActions) Enable(_ context.Context, name string, dryRun bool) error {
	f.calls = append(f.calls, call("enable", name, dryRun))
	return nil
}

func (f *fakeActions) Disable(_ context.Context, name string, dryRun bool) error {
	f.calls = append(f.calls, call("disable", name, dryRun))
	return nil
}

func (f *fakeActions) SaveConfig(_ context.Context, name string) (string, error) {
	f.calls = append(f.calls, "config "+name)
	return "/tmp/" + name + ".config.xml", nil
}

func call(action, target string, dryRun bool) string {
	if dryRun {
		return action + " " + target + " (dry run)"
	}
	return action + " " + target
}

func testRegistry(t *testing.T) *job.Registry {
	t.Helper()
	reg, err := job.NewRegistry([]job.Description{
		{
			Name: "deploy",
			Parameters: []job.Parameter{
				{Name: "a", Type: job.TypeText, Default: "hello"},
				{Name: "sep", Type: job.TypeSeparator},
				{Name: "b", Type: job.TypeChoice, Choices: []string{"x", "y"}, Default: "x"},
			},
		},
		{
			Name: "release",
			Parameters: []job.Parameter{
				{Name: "env", Type: job.TypeChoice, Choices: []string{"stage1", "stage2"},
					Description: "Required target", Required: true},
				{Name: "clean", Type: job.TypeBoolean, Default: "false"},
				{Name: "dry-run", Type: job.TypeText},
			},
		},
		{Name: "cleanup", Color: "disabled"},
		{Name: "list-all-jobs"},
	})
	require.NoError(t, err)
	return reg
}

func run(t *testing.T, actions Actions, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := NewGrammar(testRegistry(t), actions, &out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestNewGrammar_SkipsSeparators(t *testing.T) {
	cmd := NewGrammar(testRegistry(t), &fakeActions{}, &bytes.Buffer{})

	deploy, _, err := cmd.Find([]string{"deploy"})
	require.NoError(t, err)
	require.Equal(t, "deploy", deploy.Name())

	var names []string
	deploy.LocalNonPersistentFlags().VisitAll(func(f *pflag.Flag) { names = append(names, f.Name) })
	assert.ElementsMatch(t, []string{"a", "b"}, names)
	assert.Nil(t, deploy.Flags().Lookup("sep"))

	assert.Equal(t, "string", deploy.Flags().Lookup("a").Value.Type())
	assert.Equal(t, "choice", deploy.Flags().Lookup("b").Value.Type())
}

func TestNewGrammar_ChoiceRestricted(t *testing.T) {
	actions := &fakeActions{}

	_, err := run(t, actions, "deploy", "--b", "z")
	var ue *UsageError
	require.True(t, errors.As(err, &ue), "expected UsageError, got %v", err)
	assert.Contains(t, ue.Error(), "must be one of x, y")
	assert.NotEmpty(t, ue.Usage)
	assert.Empty(t, actions.builds)

	_, err = run(t, actions, "deploy", "--b", "y", "--a", "world")
	require.NoError(t, err)
	require.Len(t, actions.builds, 1)
	assert.Equal(t, []Argument{{Name: "a", Value: "world"}, {Name: "b", Value: "y"}}, actions.builds[0].args)
}

func TestNewGrammar_Defaults(t *testing.T) {
	actions := &fakeActions{}

	_, err := run(t, actions, "deploy")
	require.NoError(t, err)
	require.Len(t, actions.builds, 1)
	assert.Equal(t, "deploy", actions.builds[0].job)
	assert.True(t, actions.builds[0].dryRun, "dry run should default to true")
	assert.Equal(t, []Argument{{Name: "a", Value: "hello"}, {Name: "b", Value: "x"}}, actions.builds[0].args)
}

func TestNewGrammar_RequiredChoice(t *testing.T) {
	actions := &fakeActions{}

	_, err := run(t, actions, "release")
	var ue *UsageError
	require.True(t, errors.As(err, &ue), "expected UsageError, got %v", err)
	assert.Contains(t, ue.Error(), `required flag(s) "env" not set`)
	assert.Equal(t, "jenkins release", ue.Command)
	assert.Empty(t, actions.builds)

	_, err = run(t, actions, "release", "--env", "stage2", "--clean", "--dry-run=false")
	require.NoError(t, err)
	require.Len(t, actions.builds, 1)
	assert.False(t, actions.builds[0].dryRun)
	assert.Equal(t, []Argument{{Name: "env", Value: "stage2"}, {Name: "clean", Value: "true"}}, actions.builds[0].args)
}

func TestNewGrammar_UnknownCommand(t *testing.T) {
	_, err := run(t, &fakeActions{}, "nope")
	var ue *UsageError
	require.True(t, errors.As(err, &ue), "expected UsageError, got %v", err)
	assert.Contains(t, ue.Error(), `unknown command "nope"`)
}

func TestNewGrammar_UnknownFlag(t *testing.T) {
	_, err := run(t, &fakeActions{}, "deploy", "--c", "1")
	var ue *UsageError
	assert.True(t, errors.As(err, &ue), "expected UsageError, got %v", err)
}

func TestNewGrammar_ActionErrorIsNotUsage(t *testing.T) {
	boom := errors.New("boom")
	_, err := run(t, &fakeActions{buildFn: func() error { return boom }}, "deploy")
	require.ErrorIs(t, err, boom)
	var ue *UsageError
	assert.False(t, errors.As(err, &ue))
}

func TestNewGrammar_Utilities(t *testing.T) {
	actions := &fakeActions{}

	for _, args := range [][]string{
		{"copy-job", "deploy", "deploy2"},
		{"delete-job", "deploy", "--dry-run=false"},
		{"enable-job", "cleanup"},
		{"disable-job", "deploy"},
		{"get-job-config", "deploy"},
	} {
		_, err := run(t, actions, args...)
		require.NoError(t, err, "args %v", args)
	}

	assert.Equal(t, []string{
		"copy deploy>deploy2 (dry run)",
		"delete deploy",
		"enable cleanup (dry run)",
		"disable deploy (dry run)",
		"config deploy",
	}, actions.calls)
}

func TestNewGrammar_UtilityArgs(t *testing.T) {
	_, err := run(t, &fakeActions{}, "copy-job", "deploy")
	var ue *UsageError
	assert.True(t, errors.As(err, &ue), "expected UsageError, got %v", err)

	_, err = run(t, &fakeActions{}, "delete-job", "missing")
	assert.ErrorIs(t, err, job.ErrUnknownJob)
}

func TestNewGrammar_Listings(t *testing.T) {
	out, err := run(t, &fakeActions{}, "list-all-jobs")
	require.NoError(t, err)
	assert.Equal(t, "cleanup\ndeploy\nlist-all-jobs\nrelease\n", out)

	out, err = run(t, &fakeActions{}, "list-jobs-without-parameters")
	require.NoError(t, err)
	assert.Equal(t, "cleanup\nlist-all-jobs\n", out)

	out, err = run(t, &fakeActions{}, "list-disable-jobs")
	require.NoError(t, err)
	assert.Equal(t, "cleanup\n", out)
}

func TestNewGrammar_ReservedParameterSkipped(t *testing.T) {
	cmd := NewGrammar(testRegistry(t), &fakeActions{}, &bytes.Buffer{})

	release, _, err := cmd.Find([]string{"release"})
	require.NoError(t, err)
	// dry-run stays the grammar's boolean flag.
	f := release.InheritedFlags().Lookup(DryRunFlag)
	require.NotNil(t, f)
	assert.Equal(t, "bool", f.Value.Type())
	assert.Nil(t, release.LocalNonPersistentFlags().Lookup(DryRunFlag))
}

func TestNewGrammar_ChoiceWithoutChoicesIsFreeText(t *testing.T) {
	reg, err := job.NewRegistry([]job.Description{{
		Name: "deploy",
		Parameters: []job.Parameter{
			{Name: "env", Type: job.TypeChoice, Default: "stage1"},
		},
	}})
	require.NoError(t, err)

	actions := &fakeActions{}
	cmd := NewGrammar(reg, actions, &bytes.Buffer{})
	assert.Equal(t, "string", mustFind(t, cmd, "deploy").Flags().Lookup("env").Value.Type())

	cmd.SetArgs([]string{"deploy"})
	require.NoError(t, cmd.ExecuteContext(context.Background()))
	cmd.SetArgs([]string{"deploy", "--env", "prod"})
	require.NoError(t, cmd.ExecuteContext(context.Background()))

	require.Len(t, actions.builds, 2)
	assert.Equal(t, []Argument{{Name: "env", Value: "stage1"}}, actions.builds[0].args)
	assert.Equal(t, []Argument{{Name: "env", Value: "prod"}}, actions.builds[1].args)
}

func mustFind(t *testing.T, root *cobra.Command, name string) *cobra.Command {
	t.Helper()
	cmd, _, err := root.Find([]string{name})
	require.NoError(t, err)
	return cmd
}
