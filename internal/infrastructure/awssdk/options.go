package awssdk

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"

	"github.com/opsdeck/opsdeck/internal/domain/command"
)

// args reads request options spelled the way the aws CLI accepts them.
type args struct {
	opts command.Options
}

func (a args) has(name string) bool {
	_, ok := a.opts.Get(name)
	return ok
}

// str returns a pointer to the option value, or nil when absent.
func (a args) str(name string) *string {
	v, ok := a.opts.Get(name)
	if !ok {
		return nil
	}
	return aws.String(v)
}

// list splits a whitespace-separated option value.
func (a args) list(name string) []string {
	v, _ := a.opts.Get(name)
	return strings.Fields(v)
}

// boolean treats a bare flag as true.
func (a args) boolean(name string) (*bool, error) {
	v, ok := a.opts.Get(name)
	if !ok {
		return nil, nil
	}
	if v == "" {
		return aws.Bool(true), nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return nil, fmt.Errorf("--%s: %w", command.FlagName(name), err)
	}
	return aws.Bool(b), nil
}

func (a args) int32(name string) (*int32, error) {
	v, ok := a.opts.Get(name)
	if !ok {
		return nil, nil
	}
	n, err := strconv.ParseInt(v, 10, 32)
	if err != nil {
		return nil, fmt.Errorf("--%s: %w", command.FlagName(name), err)
	}
	return aws.Int32(int32(n)), nil
}

// structured decodes a JSON option value into out, or, for the CLI
// shorthand form, each whitespace-separated "K=v,K2=v2" item into one
// element of out.
func (a args) structured(name string, out any) error {
	v, ok := a.opts.Get(name)
	if !ok {
		return nil
	}
	v = strings.TrimSpace(v)

	var data []byte
	if strings.HasPrefix(v, "[") || strings.HasPrefix(v, "{") {
		data = []byte(v)
	} else {
		items := make([]map[string]any, 0)
		for _, item := range shorthand(v) {
			m := make(map[string]any, len(item))
			for k, vals := range item {
				if len(vals) == 1 {
					m[k] = vals[0]
				} else {
					m[k] = vals
				}
			}
			items = append(items, m)
		}
		var err error
		if data, err = json.Marshal(items); err != nil {
			return err
		}
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("--%s: %w", command.FlagName(name), err)
	}
	return nil
}

// shorthand parses "Name=a,Values=x,y Name=b,Values=z" into one map per
// whitespace-separated item. A comma-separated token without "=" extends
// the previous key's values.
func shorthand(v string) []map[string][]string {
	var out []map[string][]string
	for _, item := range strings.Fields(v) {
		m := make(map[string][]string)
		last := ""
		for _, tok := range strings.Split(item, ",") {
			if k, val, ok := strings.Cut(tok, "="); ok {
				last = k
				m[k] = append(m[k], val)
				continue
			}
			if last != "" {
				m[last] = append(m[last], tok)
			}
		}
		out = append(out, m)
	}
	return out
}

// filter is one Name/Values pair in shorthand form.
type filter struct {
	Name   string
	Values []string
}

// filters parses a filters option in JSON or shorthand form.
func (a args) filters(name string) ([]filter, error) {
	v, ok := a.opts.Get(name)
	if !ok {
		return nil, nil
	}
	v = strings.TrimSpace(v)
	if strings.HasPrefix(v, "[") {
		var out []filter
		if err := json.Unmarshal([]byte(v), &out); err != nil {
			return nil, fmt.Errorf("--%s: %w", command.FlagName(name), err)
		}
		return out, nil
	}

	var out []filter
	for _, item := range shorthand(v) {
		names := item["Name"]
		if len(names) != 1 {
			return nil, fmt.Errorf("--%s: each filter needs exactly one Name", command.FlagName(name))
		}
		out = append(out, filter{Name: names[0], Values: item["Values"]})
	}
	return out, nil
}
