package cli

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsdeck/opsdeck/internal/cli/ui"
	"github.com/opsdeck/opsdeck/internal/config"
	"github.com/opsdeck/opsdeck/internal/domain/command"
	"github.com/opsdeck/opsdeck/internal/domain/slot"
)

// resetFlags restores every flag of cmd and its children to its default, so
// one test's flags do not leak into the next Execute.
func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			_ = sv.Replace(nil)
		} else {
			_ = f.Value.Set(f.DefValue)
		}
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}

// runCLI executes the root command with exec standing in for the aws
// backends and returns stdout and the status stream.
func runCLI(t *testing.T, exec command.Executor, args ...string) (string, string, error) {
	t.Helper()

	t.Setenv("HOME", t.TempDir())
	t.Setenv("WORKSPACE", t.TempDir())

	prev := newExecutor
	newExecutor = func(*config.Config) command.Executor { return exec }

	var status bytes.Buffer
	prevStatus := ui.Status
	ui.Status = &status

	t.Cleanup(func() {
		newExecutor = prev
		ui.Status = prevStatus
		resetFlags(rootCmd)
		rootCmd.SetArgs(nil)
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
	})
	resetFlags(rootCmd)

	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetIn(strings.NewReader(""))
	rootCmd.SetArgs(args)

	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), status.String(), err
}

// fakeAWS answers describe-stacks with names and turns mutating dry runs
// into the error the real backends return.
func fakeAWS(t *testing.T, names ...string) (command.Executor, *[]command.Request) {
	t.Helper()
	var calls []command.Request
	exec := command.ExecutorFunc(func(_ context.Context, req command.Request) (command.Document, error) {
		calls = append(calls, req)
		spec, err := req.Spec()
		if err != nil {
			return nil, err
		}
		if req.DryRun && spec.Mutating {
			return nil, &command.DryRunError{Command: req.CommandLine("aws")}
		}
		switch req.Operation {
		case "describe-stacks":
			out := make([]any, len(names))
			for i, n := range names {
				out[i] = n
			}
			return out, nil
		case "describe-db-instances":
			return map[string]any{
				"DBInstances": []any{
					map[string]any{"DBInstanceIdentifier": "stage2-db", "MultiAZ": false},
				},
			}, nil
		}
		return nil, nil
	})
	return exec, &calls
}

func TestSlotAllocate(t *testing.T) {
	exec, calls := fakeAWS(t, "stage1", "prod-shared", "stage3")

	out, status, err := runCLI(t, exec, "slot", "allocate", "--regions", "us-east-1,us-west-2")
	require.NoError(t, err)

	assert.Contains(t, status, "region slot -> us-east-1:stage2")
	assert.Contains(t, out, "stage2")

	require.Len(t, *calls, 1)
	assert.Equal(t, "us-east-1", (*calls)[0].Region)

	data, err := os.ReadFile(filepath.Join(os.Getenv("WORKSPACE"), "build.properties"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "stage2")
	assert.Contains(t, string(data), "us-east-1")
}

func TestSlotAllocate_JSON(t *testing.T) {
	exec, _ := fakeAWS(t, "stage1", "stage3")

	out, _, err := runCLI(t, exec, "slot", "allocate", "-o", "json")
	require.NoError(t, err)
	assert.JSONEq(t, `{"us-east-1": "stage2"}`, out)
}

func TestSlotAllocate_NoFreeSlot(t *testing.T) {
	exec, _ := fakeAWS(t, "stage1", "stage2")

	_, _, err := runCLI(t, exec, "slot", "allocate")
	require.ErrorIs(t, err, slot.ErrNoFreeSlot)
	_, statErr := os.Stat(filepath.Join(os.Getenv("WORKSPACE"), "build.properties"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestSlotAllocate_InvalidConfig(t *testing.T) {
	exec, calls := fakeAWS(t)

	_, _, err := runCLI(t, exec, "slot", "allocate", "--executor", "soap")
	require.Error(t, err)
	assert.Empty(t, *calls)
}

func TestAWSExec_SnakeKeys(t *testing.T) {
	exec, calls := fakeAWS(t)

	out, _, err := runCLI(t, exec, "aws", "exec", "rds", "describe-db-instances",
		"db-instance-identifier=stage2-db", "--snake-keys", "--region", "eu-west-1")
	require.NoError(t, err)

	assert.Contains(t, out, `"db_instance_identifier": "stage2-db"`)
	assert.Contains(t, out, `"multi_az": false`)

	require.Len(t, *calls, 1)
	req := (*calls)[0]
	assert.Equal(t, "eu-west-1", req.Region)
	v, ok := req.Options.Get("db-instance-identifier")
	assert.True(t, ok)
	assert.Equal(t, "stage2-db", v)
}

func TestAWSCreateStack_DryRun(t *testing.T) {
	exec, calls := fakeAWS(t)

	out, _, err := runCLI(t, exec, "aws", "create-stack", "stage4-app",
		"--template-url", "https://example.com/app.json")
	require.NoError(t, err)

	assert.Equal(t,
		"would execute: aws --region us-east-1 cloudformation create-stack --stack-name stage4-app --template-url https://example.com/app.json\n",
		out)
	require.Len(t, *calls, 1)
	assert.True(t, (*calls)[0].DryRun)
}

func TestVersion(t *testing.T) {
	exec, _ := fakeAWS(t)

	out, _, err := runCLI(t, exec, "version")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "opsdeck\n"))
}

func TestExtractFlags(t *testing.T) {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	verbose := fs.BoolP("verbose", "v", false, "")
	profile := fs.String("profile", "", "")
	regions := fs.StringSlice("regions", nil, "")

	rest, err := extractFlags(fs, []string{
		"-v", "--profile", "ops", "--regions=eu-west-1", "--branch=main",
		"deploy", "--profile", "prod", "-v",
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"--branch=main", "deploy", "--profile", "prod", "-v"}, rest)
	assert.True(t, *verbose)
	assert.Equal(t, "ops", *profile)
	assert.Equal(t, []string{"eu-west-1"}, *regions)
}

func TestExtractFlags_StopsAtSeparator(t *testing.T) {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	profile := fs.String("profile", "", "")

	rest, err := extractFlags(fs, []string{"--", "--profile", "other"})
	require.NoError(t, err)
	assert.Equal(t, []string{"--", "--profile", "other"}, rest)
	assert.Empty(t, *profile)
}

func TestExtractFlags_MissingValue(t *testing.T) {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.String("profile", "", "")

	_, err := extractFlags(fs, []string{"--profile"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--profile")
}

// jenkinsServer serves a job list and the descriptions in jobs, keyed by
// job name.
func jenkinsServer(t *testing.T, jobs map[string]string) {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Path == "/api/json" {
			var list []string
			for name := range jobs {
				list = append(list, `{"name":"`+name+`","color":"blue"}`)
			}
			_, _ = io.WriteString(w, `{"jobs":[`+strings.Join(list, ",")+`]}`)
			return
		}
		name := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/job/"), "/api/json")
		body, ok := jobs[name]
		if !ok {
			http.NotFound(w, r)
			return
		}
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)

	t.Setenv("OPSDECK_JENKINS_URL", srv.URL)
	t.Setenv("OPSDECK_JENKINS_CACHE_BACKEND", "none")
}

func TestJenkins_ParametersShadowRootFlags(t *testing.T) {
	jenkinsServer(t, map[string]string{
		"deploy": `{"name":"deploy","color":"blue","property":[{"parameterDefinitions":[
			{"name":"profile","type":"StringParameterDefinition","defaultParameterValue":{"value":"dev"}},
			{"name":"timeout","type":"StringParameterDefinition","defaultParameterValue":{"value":"10"}}]}]}`,
	})

	exec, _ := fakeAWS(t)
	out, _, err := runCLI(t, exec, "jenkins", "--profile", "ops", "deploy", "--profile", "prod", "--timeout", "30")
	require.NoError(t, err)

	assert.Contains(t, out, "profile: prod\n")
	assert.Contains(t, out, "30")
	assert.NotContains(t, out, "profile: dev")
	assert.NotContains(t, out, "\"10\"")
}

func TestJenkins_ListAllJobs(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/api/json":
			_, _ = io.WriteString(w, `{"jobs":[
				{"name":"deploy","url":"http://ci/job/deploy/","color":"blue"},
				{"name":"cleanup","url":"http://ci/job/cleanup/","color":"disabled"}]}`)
		case "/job/deploy/api/json":
			_, _ = io.WriteString(w, `{"name":"deploy","color":"blue","property":[{"parameterDefinitions":[
				{"name":"BRANCH","type":"StringParameterDefinition","description":"required",
				 "defaultParameterValue":{"value":"master"}}]}]}`)
		case "/job/cleanup/api/json":
			_, _ = io.WriteString(w, `{"name":"cleanup","color":"disabled","property":[]}`)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)

	t.Setenv("OPSDECK_JENKINS_URL", srv.URL)
	t.Setenv("OPSDECK_JENKINS_CACHE_BACKEND", "none")

	exec, _ := fakeAWS(t)
	out, _, err := runCLI(t, exec, "jenkins", "-v", "list-all-jobs")
	require.NoError(t, err)
	assert.Equal(t, "cleanup\ndeploy\n", out)
}
