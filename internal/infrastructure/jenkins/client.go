package jenkins

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/opsdeck/opsdeck/internal/domain/command"
	"github.com/opsdeck/opsdeck/internal/domain/job"
	"github.com/opsdeck/opsdeck/internal/pkg/logger"
)

// DefaultTimeout bounds every request made by a Client.
const DefaultTimeout = 30 * time.Second

// maxErrorBody caps how much of a failed response body is kept in errors.
const maxErrorBody = 512

// Client is a Jenkins JSON API client.
type Client struct {
	// base is the server root URL.
	base *url.URL

	creds Credentials

	// client is the HTTP client.
	client *http.Client

	log *slog.Logger

	// limiter spaces requests out; nil means unlimited.
	limiter *rate.Limiter

	crumbOnce sync.Once
	crumb     *crumb
	crumbErr  error
}

type crumb struct {
	Field string `json:"crumbRequestField"`
	Value string `json:"crumb"`
}

// NewClient creates a client for the server named in creds.
func NewClient(creds Credentials) (*Client, error) {
	if err := creds.Validate(); err != nil {
		return nil, err
	}
	base, err := url.Parse(strings.TrimSuffix(creds.URL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid jenkins url %q: %w", creds.URL, err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid jenkins url %q: scheme and host are required", creds.URL)
	}

	return &Client{
		base:  base,
		creds: creds,
		client: &http.Client{
			Timeout: DefaultTimeout,
		},
		log: logger.With("component", "jenkins"),
	}, nil
}

// WithTimeout sets the per-request timeout.
func (c *Client) WithTimeout(d time.Duration) *Client {
	if d > 0 {
		c.client.Timeout = d
	}
	return c
}

// WithRateLimit caps the request rate. A non-positive rps removes the cap.
func (c *Client) WithRateLimit(rps float64, burst int) *Client {
	if rps <= 0 {
		c.limiter = nil
		return c
	}
	if burst < 1 {
		burst = 1
	}
	c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	return c
}

// Server returns the server root URL.
func (c *Client) Server() string {
	return c.base.String()
}

// jobSummary is one entry of the server's job list.
type jobSummary struct {
	Name  string `json:"name"`
	URL   string `json:"url"`
	Color string `json:"color"`
}

// jobInfo is the subset of /job/<name>/api/json that opsdeck reads.
type jobInfo struct {
	Name            string `json:"name"`
	URL             string `json:"url"`
	Color           string `json:"color"`
	NextBuildNumber int    `json:"nextBuildNumber"`
	Property        []struct {
		ParameterDefinitions []parameterDefinition `json:"parameterDefinitions"`
	} `json:"property"`
}

type parameterDefinition struct {
	Name                  string   `json:"name"`
	Type                  string   `json:"type"`
	Description           string   `json:"description"`
	Choices               []string `json:"choices"`
	DefaultParameterValue *struct {
		Value any `json:"value"`
	} `json:"defaultParameterValue"`
}

// parameter maps a server-side definition onto a job parameter.
func (d parameterDefinition) parameter() job.Parameter {
	p := job.Parameter{
		Name:        d.Name,
		Type:        job.ParseType(d.Type),
		Description: d.Description,
		Required:    job.IsRequired(d.Description),
	}
	if p.Type == job.TypeChoice {
		p.Choices = append([]string(nil), d.Choices...)
	}
	if d.DefaultParameterValue != nil {
		p.Default = scalar(d.DefaultParameterValue.Value)
	}
	return p
}

func scalar(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return fmt.Sprint(t)
	}
}

// Jobs lists every job on the server without parameter details.
func (c *Client) Jobs(ctx context.Context) ([]job.Description, error) {
	var resp struct {
		Jobs []jobSummary `json:"jobs"`
	}
	q := url.Values{"tree": {"jobs[name,url,color]"}}
	if err := c.getJSON(ctx, "/api/json", q, &resp); err != nil {
		return nil, err
	}

	out := make([]job.Description, 0, len(resp.Jobs))
	for _, j := range resp.Jobs {
		out = append(out, job.Description{Name: j.Name, URL: j.URL, Color: j.Color})
	}
	return out, nil
}

func (c *Client) info(ctx context.Context, name string) (*jobInfo, error) {
	var info jobInfo
	if err := c.getJSON(ctx, jobPath(name, "api/json"), nil, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// Describe fetches a job and its parameter definitions.
func (c *Client) Describe(ctx context.Context, name string) (job.Description, error) {
	info, err := c.info(ctx, name)
	if err != nil {
		return job.Description{}, err
	}

	d := job.Description{Name: info.Name, URL: info.URL, Color: info.Color}
	if d.Name == "" {
		d.Name = name
	}
	for _, prop := range info.Property {
		for _, def := range prop.ParameterDefinitions {
			d.Parameters = append(d.Parameters, def.parameter())
		}
	}
	return d, nil
}

// DescribeAll fetches every job with its parameters. It fails on the first
// job that cannot be described.
func (c *Client) DescribeAll(ctx context.Context) ([]job.Description, error) {
	jobs, err := c.Jobs(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]job.Description, 0, len(jobs))
	for _, j := range jobs {
		d, err := c.Describe(ctx, j.Name)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	c.log.Debug("described jobs", "count", len(out))
	return out, nil
}

// NextBuildNumber returns the number the next build of a job will get.
func (c *Client) NextBuildNumber(ctx context.Context, name string) (int, error) {
	info, err := c.info(ctx, name)
	if err != nil {
		return 0, err
	}
	return info.NextBuildNumber, nil
}

// Build triggers a job. Parameterless jobs use the plain build endpoint.
func (c *Client) Build(ctx context.Context, name string, params map[string]string) error {
	if len(params) == 0 {
		return c.post(ctx, jobPath(name, "build"), nil)
	}
	form := url.Values{}
	for k, v := range params {
		form.Set(k, v)
	}
	return c.post(ctx, jobPath(name, "buildWithParameters"), form)
}

// Enable enables a job.
func (c *Client) Enable(ctx context.Context, name string) error {
	return c.post(ctx, jobPath(name, "enable"), nil)
}

// Disable disables a job.
func (c *Client) Disable(ctx context.Context, name string) error {
	return c.post(ctx, jobPath(name, "disable"), nil)
}

// Delete deletes a job.
func (c *Client) Delete(ctx context.Context, name string) error {
	return c.post(ctx, jobPath(name, "doDelete"), nil)
}

// Copy creates newName as a copy of name.
func (c *Client) Copy(ctx context.Context, name, newName string) error {
	q := url.Values{"name": {newName}, "mode": {"copy"}, "from": {name}}
	return c.post(ctx, "/createItem?"+q.Encode(), nil)
}

// Config returns the job's config.xml.
func (c *Client) Config(ctx context.Context, name string) ([]byte, error) {
	resp, err := c.do(ctx, http.MethodGet, jobPath(name, "config.xml"), nil, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read config of %s: %w", name, err)
	}
	return body, nil
}

func jobPath(name, suffix string) string {
	return "/job/" + url.PathEscape(name) + "/" + suffix
}

func (c *Client) getJSON(ctx context.Context, path string, q url.Values, out any) error {
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	resp, err := c.do(ctx, http.MethodGet, path, nil, nil)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &command.ParseError{Call: "GET " + path, Key: "body", Err: err}
	}
	return nil
}

func (c *Client) post(ctx context.Context, path string, form url.Values) error {
	cr, err := c.loadCrumb(ctx)
	if err != nil {
		return err
	}

	header := http.Header{}
	var body io.Reader
	if form != nil {
		header.Set("Content-Type", "application/x-www-form-urlencoded")
		body = strings.NewReader(form.Encode())
	}
	if cr != nil {
		header.Set(cr.Field, cr.Value)
	}

	resp, err := c.do(ctx, http.MethodPost, path, body, header)
	if err != nil {
		return err
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.Body.Close()
}

// loadCrumb fetches the CSRF crumb once. Servers without CSRF protection
// answer 404, which leaves the crumb nil.
func (c *Client) loadCrumb(ctx context.Context) (*crumb, error) {
	c.crumbOnce.Do(func() {
		var cr crumb
		err := c.getJSON(ctx, "/crumbIssuer/api/json", nil, &cr)
		var dep *command.DependencyError
		switch {
		case errors.As(err, &dep) && dep.Status == http.StatusNotFound:
			c.log.Debug("crumb issuer not available")
		case err != nil:
			c.crumbErr = err
		default:
			c.crumb = &cr
		}
	})
	return c.crumb, c.crumbErr
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, header http.Header) (*http.Response, error) {
	target := c.base.String() + path
	line := method + " " + target

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	for k, v := range header {
		req.Header[k] = v
	}
	c.setHeaders(req)

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, &command.DependencyError{Command: line, Timeout: isTimeout(ctx, err), Err: err}
		}
	}

	c.log.Debug("jenkins request", "request", line)
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &command.DependencyError{Command: line, Timeout: isTimeout(ctx, err), Err: err}
	}

	if resp.StatusCode >= http.StatusMultipleChoices {
		defer func() { _ = resp.Body.Close() }()
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &command.DependencyError{
			Command: line,
			Status:  resp.StatusCode,
			Stderr:  strings.TrimSpace(string(snippet)),
		}
	}
	return resp, nil
}

func (c *Client) setHeaders(req *http.Request) {
	if c.creds.User != "" {
		req.SetBasicAuth(c.creds.User, c.creds.Password)
	}
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "application/json")
	}
}

func isTimeout(ctx context.Context, err error) bool {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
