// Package jenkins talks to a Jenkins build server over its JSON API and keeps
// a local snapshot of job metadata.
package jenkins

import (
	"errors"
	"fmt"

	"gopkg.in/ini.v1"
)

// DefaultSection is the ini section read when none is configured.
const DefaultSection = "stage-devops-jenkins"

// Credentials locate and authenticate against a Jenkins server.
type Credentials struct {
	URL      string `ini:"url"`
	User     string `ini:"user"`
	Password string `ini:"password"`
}

// Merge returns c with every non-empty field of override applied.
func (c Credentials) Merge(override Credentials) Credentials {
	if override.URL != "" {
		c.URL = override.URL
	}
	if override.User != "" {
		c.User = override.User
	}
	if override.Password != "" {
		c.Password = override.Password
	}
	return c
}

// Validate checks that a server URL is present.
func (c Credentials) Validate() error {
	if c.URL == "" {
		return errors.New("jenkins url is required")
	}
	return nil
}

// LoadINI reads user, password and url from the given section of an ini
// file.
func LoadINI(path, section string) (Credentials, error) {
	if section == "" {
		section = DefaultSection
	}

	f, err := ini.Load(path)
	if err != nil {
		return Credentials{}, fmt.Errorf("failed to load %s: %w", path, err)
	}
	if !f.HasSection(section) {
		return Credentials{}, fmt.Errorf("section %q not found in %s", section, path)
	}

	var creds Credentials
	if err := f.Section(section).MapTo(&creds); err != nil {
		return Credentials{}, fmt.Errorf("failed to read section %q: %w", section, err)
	}
	return creds, nil
}
