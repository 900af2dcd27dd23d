// Package chefenv compares and merges chef environment documents.
package chefenv

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strings"
)

const (
	SectionDefaultAttributes = "default_attributes"
	SectionCookbookVersions  = "cookbook_versions"
)

// DefaultPromoteKeys are the version attributes copied on promotion.
var DefaultPromoteKeys = []string{
	"account.version",
	"api.subversion",
	"dreamboxcom.subversion",
	"edex.version",
	"galactus.version",
	"galactus2.version",
	"lessons.key",
	"magneto.version",
	"product.build_key",
}

// KnownEnvironments are the environment files targeted by "all".
var KnownEnvironments = []string{
	"stage1.json", "stage2.json", "stage3.json",
	"stage4.json", "stage5.json", "stage6.json",
	"stage7.json", "stage8.json", "stage9.json",
	"production.json",
}

// Environment is a parsed chef environment document.
type Environment map[string]any

// Parse decodes a chef environment document.
func Parse(data []byte) (Environment, error) {
	var env Environment
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("failed to parse chef environment: %w", err)
	}
	return env, nil
}

// Marshal encodes an environment with sorted keys and two-space indentation.
func Marshal(env Environment) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(env); err != nil {
		return nil, fmt.Errorf("failed to encode chef environment: %w", err)
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// Section returns a top-level object of the document.
func (e Environment) Section(name string) (map[string]any, error) {
	v, ok := e[name]
	if !ok {
		return nil, fmt.Errorf("chef environment has no %q section", name)
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("chef environment section %q is not an object", name)
	}
	return m, nil
}

// Delta lists how a target section differs from a source section.
type Delta struct {
	// Missing are source keys absent from the target.
	Missing []string
	// Changed are keys present in both whose values differ.
	Changed []string
}

// Empty reports whether the sections match.
func (d Delta) Empty() bool {
	return len(d.Missing) == 0 && len(d.Changed) == 0
}

// Diff compares two sections key by key.
func Diff(source, target map[string]any) Delta {
	var d Delta
	for k, sv := range source {
		tv, ok := target[k]
		if !ok {
			d.Missing = append(d.Missing, k)
			continue
		}
		if !reflect.DeepEqual(sv, tv) {
			d.Changed = append(d.Changed, k)
		}
	}
	sort.Strings(d.Missing)
	sort.Strings(d.Changed)
	return d
}

// Lookup resolves a dotted key such as product.build_key.
func Lookup(attrs map[string]any, dotted string) (any, bool) {
	var cur any = attrs
	for _, part := range strings.Split(dotted, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// assign sets a dotted key whose parent objects already exist. It reports
// whether the stored value changed.
func assign(attrs map[string]any, dotted string, value any) bool {
	parts := strings.Split(dotted, ".")
	cur := attrs
	for _, part := range parts[:len(parts)-1] {
		next, ok := cur[part].(map[string]any)
		if !ok {
			return false
		}
		cur = next
	}
	leaf := parts[len(parts)-1]
	if old, ok := cur[leaf]; ok && reflect.DeepEqual(old, value) {
		return false
	}
	cur[leaf] = value
	return true
}

// Promote copies the given default_attributes keys from source into target.
// Keys absent from the source, or whose parent object is absent from the
// target, are left alone. It returns the keys that changed.
func Promote(source, target Environment, keys []string) ([]string, error) {
	from, err := source.Section(SectionDefaultAttributes)
	if err != nil {
		return nil, err
	}
	to, err := target.Section(SectionDefaultAttributes)
	if err != nil {
		return nil, err
	}

	var changed []string
	for _, key := range keys {
		v, ok := Lookup(from, key)
		if !ok {
			continue
		}
		if assign(to, key, v) {
			changed = append(changed, key)
		}
	}
	return changed, nil
}

// Targets expands a target list into environment file names. "all" selects
// every known environment; the source file is always excluded.
func Targets(from string, to []string) []string {
	if len(to) == 1 && strings.EqualFold(to[0], "all") {
		to = KnownEnvironments
	}
	from = FileName(from)
	var out []string
	for _, t := range to {
		t = FileName(strings.TrimSpace(t))
		if t == ".json" || strings.EqualFold(t, from) {
			continue
		}
		out = append(out, t)
	}
	return out
}

// FileName appends the .json extension when missing.
func FileName(env string) string {
	if strings.HasSuffix(env, ".json") {
		return env
	}
	return env + ".json"
}
