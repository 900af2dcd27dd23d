package awssdk

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsdeck/opsdeck/internal/domain/command"
)

const callerIdentityXML = `<GetCallerIdentityResponse xmlns="https://sts.amazonaws.com/doc/2011-06-15/">
  <GetCallerIdentityResult>
    <Arn>arn:aws:iam::123456789012:user/deployer</Arn>
    <UserId>AIDAEXAMPLE</UserId>
    <Account>123456789012</Account>
  </GetCallerIdentityResult>
  <ResponseMetadata>
    <RequestId>01234567-89ab-cdef-0123-456789abcdef</RequestId>
  </ResponseMetadata>
</GetCallerIdentityResponse>`

const accessDeniedXML = `<ErrorResponse xmlns="https://sts.amazonaws.com/doc/2011-06-15/">
  <Error>
    <Type>Sender</Type>
    <Code>AccessDenied</Code>
    <Message>not authorized</Message>
  </Error>
  <RequestId>01234567-89ab-cdef-0123-456789abcdef</RequestId>
</ErrorResponse>`

// newTestExecutor points every client at an httptest server answering with
// status and body.
func newTestExecutor(t *testing.T, status int, body string) (*Executor, *int32) {
	t.Helper()
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.Header().Set("Content-Type", "text/xml")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)

	exec := NewExecutor(Credentials{}).WithConfig(aws.Config{
		Region:       "us-east-1",
		Credentials:  credentials.NewStaticCredentialsProvider("AKID", "SECRET", ""),
		BaseEndpoint: aws.String(srv.URL),
	})
	return exec, &hits
}

func whoami(opts ...command.Option) command.Request {
	return command.Request{
		Service:   command.ServiceSTS,
		Operation: "get-caller-identity",
		Region:    "eu-west-1",
		Options:   opts,
	}
}

func TestExecute_CallerIdentity(t *testing.T) {
	exec, hits := newTestExecutor(t, http.StatusOK, callerIdentityXML)

	doc, err := exec.Execute(context.Background(), whoami())
	require.NoError(t, err)

	m, ok := doc.(map[string]any)
	require.True(t, ok, "expected an object, got %T", doc)
	assert.Equal(t, "123456789012", m["Account"])
	assert.Equal(t, "arn:aws:iam::123456789012:user/deployer", m["Arn"])
	assert.NotContains(t, m, "ResultMetadata")
	assert.Equal(t, int32(1), atomic.LoadInt32(hits))
}

func TestExecute_Query(t *testing.T) {
	exec, _ := newTestExecutor(t, http.StatusOK, callerIdentityXML)

	doc, err := exec.Execute(context.Background(), whoami(command.Opt("query", "Account")))
	require.NoError(t, err)
	assert.Equal(t, "123456789012", doc)
}

func TestExecute_InvalidQuery(t *testing.T) {
	exec, _ := newTestExecutor(t, http.StatusOK, callerIdentityXML)

	_, err := exec.Execute(context.Background(), whoami(command.Opt("query", "[?")))
	require.Error(t, err)
	assert.True(t, errors.Is(err, command.ErrParseFailure))
}

func TestExecute_APIError(t *testing.T) {
	exec, _ := newTestExecutor(t, http.StatusForbidden, accessDeniedXML)

	_, err := exec.Execute(context.Background(), whoami())
	require.Error(t, err)
	assert.True(t, errors.Is(err, command.ErrDependencyFailure))

	var de *command.DependencyError
	require.True(t, errors.As(err, &de))
	assert.Equal(t, http.StatusForbidden, de.Status)
	assert.Equal(t, "AccessDenied: not authorized", de.Stderr)
	assert.False(t, de.Timeout)
	assert.Equal(t, "aws --region eu-west-1 sts get-caller-identity", de.Command)
}

func TestExecute_DryRunWithoutNativeSupport(t *testing.T) {
	exec, hits := newTestExecutor(t, http.StatusOK, "")

	_, err := exec.Execute(context.Background(), command.Request{
		Service:   command.ServiceCloudFormation,
		Operation: "delete-stack",
		Region:    "us-east-1",
		Options:   command.Options{command.Opt("stack_name", "stage4-app")},
		DryRun:    true,
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, command.ErrDryRunNotSupported))

	line, ok := command.WouldExecute(err)
	require.True(t, ok)
	assert.Equal(t, "aws --region us-east-1 cloudformation delete-stack --stack-name stage4-app", line)
	assert.Zero(t, atomic.LoadInt32(hits))
}

func TestExecute_UnsupportedOperation(t *testing.T) {
	exec, hits := newTestExecutor(t, http.StatusOK, "")

	_, err := exec.Execute(context.Background(), command.Request{
		Service:   command.ServiceRDS,
		Operation: "describe-db-security-groups",
		Region:    "us-east-1",
	})
	assert.ErrorIs(t, err, ErrUnsupportedOperation)
	assert.Zero(t, atomic.LoadInt32(hits))
}

func TestExecute_RejectsInvalidRequests(t *testing.T) {
	exec, hits := newTestExecutor(t, http.StatusOK, "")

	tests := []struct {
		name string
		req  command.Request
		want error
	}{
		{
			name: "unknown operation",
			req:  command.Request{Service: command.ServiceEC2, Operation: "terminate-instances", Region: "us-east-1"},
			want: command.ErrUnknownOperation,
		},
		{
			name: "unknown option",
			req:  whoami(command.Opt("output", "text")),
			want: command.ErrUnknownOption,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := exec.Execute(context.Background(), tt.req)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	t.Run("missing region", func(t *testing.T) {
		_, err := exec.Execute(context.Background(), command.Request{
			Service:   command.ServiceSTS,
			Operation: "get-caller-identity",
		})
		assert.Error(t, err)
	})

	assert.Zero(t, atomic.LoadInt32(hits))
}

func TestHandlersCoverAllowList(t *testing.T) {
	unsupported := map[string]bool{
		"rds describe-db-security-groups":            true,
		"elasticache describe-cache-security-groups": true,
	}
	for _, spec := range command.Operations() {
		key := string(spec.Service) + " " + spec.Name
		_, ok := handlers[key]
		assert.Equal(t, !unsupported[key], ok, key)
	}
}
