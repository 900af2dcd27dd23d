package awssdk

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/smithy-go"
	"github.com/jmespath/go-jmespath"

	"github.com/opsdeck/opsdeck/internal/domain/command"
	"github.com/opsdeck/opsdeck/internal/pkg/logger"
)

// DefaultTimeout bounds a single SDK call including pagination.
const DefaultTimeout = 2 * time.Minute

// ErrUnsupportedOperation is returned for allow-listed operations that have
// no SDK binding; the aws CLI backend serves them.
var ErrUnsupportedOperation = errors.New("operation not supported by the sdk executor")

// call is the input of one operation handler.
type call struct {
	cfg    aws.Config
	args   args
	dryRun bool
}

type handler func(ctx context.Context, c call) (any, error)

// handlers maps "service operation" to its SDK binding.
var handlers = map[string]handler{}

func register(service command.Service, operation string, h handler) {
	handlers[string(service)+" "+operation] = h
}

// Executor implements command.Executor with aws-sdk-go-v2 clients.
type Executor struct {
	creds   Credentials
	timeout time.Duration
	log     *slog.Logger

	mu      sync.Mutex
	configs map[string]aws.Config
	static  *aws.Config
}

// NewExecutor creates an executor. The zero Credentials use the default
// chain.
func NewExecutor(creds Credentials) *Executor {
	return &Executor{
		creds:   creds,
		timeout: DefaultTimeout,
		configs: make(map[string]aws.Config),
	}
}

// WithTimeout sets the per-call timeout.
func (e *Executor) WithTimeout(d time.Duration) *Executor {
	if d > 0 {
		e.timeout = d
	}
	return e
}

// WithLogger sets the logger used for call tracing.
func (e *Executor) WithLogger(l *slog.Logger) *Executor {
	e.log = l
	return e
}

// WithConfig makes every call use cfg instead of loading credentials.
func (e *Executor) WithConfig(cfg aws.Config) *Executor {
	e.static = &cfg
	return e
}

func (e *Executor) logger() *slog.Logger {
	if e.log == nil {
		return logger.Default()
	}
	return e.log
}

// config returns the SDK configuration for a profile and region. Loaded
// configurations are reused per profile.
func (e *Executor) config(ctx context.Context, profile, region string) (aws.Config, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	var base aws.Config
	switch {
	case e.static != nil:
		base = *e.static
	default:
		cached, ok := e.configs[profile]
		if !ok {
			cfg, err := e.creds.ForProfile(profile).Load(ctx)
			if err != nil {
				return aws.Config{}, err
			}
			e.configs[profile] = cfg
			cached = cfg
		}
		base = cached
	}

	cfg := base.Copy()
	cfg.Region = region
	return cfg, nil
}

// Execute runs the request through its SDK binding and returns the output
// as a JSON document shaped like the aws CLI output.
func (e *Executor) Execute(ctx context.Context, req command.Request) (command.Document, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	spec, err := req.Spec()
	if err != nil {
		return nil, err
	}

	line := req.CommandLine("aws")
	if req.DryRun && spec.Mutating && !req.Service.NativeDryRun() {
		return nil, &command.DryRunError{Command: line}
	}

	h, ok := handlers[string(req.Service)+" "+req.Operation]
	if !ok {
		return nil, fmt.Errorf("%w: %s %s", ErrUnsupportedOperation, req.Service, req.Operation)
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	cfg, err := e.config(ctx, req.Profile, req.Region)
	if err != nil {
		return nil, &command.DependencyError{Command: line, Err: err}
	}

	e.logger().Debug("calling aws api", "command", line)

	out, err := h(ctx, call{
		cfg:    cfg,
		args:   args{opts: req.Options.Without("query")},
		dryRun: req.DryRun && spec.Mutating,
	})
	if err != nil {
		if req.DryRun && isDryRunSuccess(err) {
			e.logger().Debug("dry run succeeded", "command", line)
			return nil, nil
		}
		return nil, dependencyError(ctx, line, err)
	}

	doc, err := toDocument(line, out)
	if err != nil {
		return nil, err
	}

	if query, ok := req.Options.Get("query"); ok {
		result, err := jmespath.Search(query, doc)
		if err != nil {
			return nil, &command.ParseError{Call: line, Key: "query", Err: err}
		}
		return result, nil
	}
	return doc, nil
}

// isDryRunSuccess reports whether err is EC2's answer to a dry run that
// would have succeeded.
func isDryRunSuccess(err error) bool {
	var ae smithy.APIError
	return errors.As(err, &ae) && ae.ErrorCode() == "DryRunOperation"
}

func dependencyError(ctx context.Context, line string, err error) error {
	de := &command.DependencyError{Command: line, Err: err}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		de.Timeout = true
		return de
	}

	var re *awshttp.ResponseError
	if errors.As(err, &re) {
		de.Status = re.HTTPStatusCode()
	}
	var ae smithy.APIError
	if errors.As(err, &ae) {
		de.Stderr = fmt.Sprintf("%s: %s", ae.ErrorCode(), ae.ErrorMessage())
	}
	return de
}

// toDocument converts typed SDK output into the generic document form.
func toDocument(line string, out any) (command.Document, error) {
	if out == nil {
		return nil, nil
	}
	data, err := json.Marshal(out)
	if err != nil {
		return nil, &command.ParseError{Call: line, Key: "output", Err: err}
	}

	var doc command.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, &command.ParseError{Call: line, Key: "output", Err: err}
	}
	if m, ok := doc.(map[string]any); ok {
		delete(m, "ResultMetadata")
	}
	return doc, nil
}
