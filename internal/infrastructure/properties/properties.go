// Package properties reads and writes the build.properties handoff file
// consumed by downstream pipeline steps.
package properties

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/magiconair/properties"
)

// FileName is the handoff file name.
const FileName = "build.properties"

// Handoff is the content of the handoff file.
type Handoff struct {
	Region          string
	ChefEnvironment string
}

// Encode renders the file body. There is no trailing newline.
func (h Handoff) Encode() []byte {
	return []byte(fmt.Sprintf("region=%s\nchef_environment=%s", h.Region, h.ChefEnvironment))
}

// Dir resolves the directory the file is written to: the given workspace,
// else $WORKSPACE, else the current directory.
func Dir(workspace string) string {
	if workspace != "" {
		return workspace
	}
	if ws := os.Getenv("WORKSPACE"); ws != "" {
		return ws
	}
	return "."
}

// Write stores the handoff file in dir and returns its path. The content is
// written to a temporary file in the same directory and renamed into place.
func Write(dir string, h Handoff) (path string, err error) {
	path = filepath.Join(dir, FileName)

	tmp, err := os.CreateTemp(dir, "."+FileName+"-*")
	if err != nil {
		return "", fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	if _, err = tmp.Write(h.Encode()); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err = tmp.Chmod(0o644); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err = tmp.Close(); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", path, err)
	}
	return path, nil
}

// Read loads a handoff file.
func Read(path string) (Handoff, error) {
	p, err := properties.LoadFile(path, properties.UTF8)
	if err != nil {
		return Handoff{}, fmt.Errorf("failed to read %s: %w", path, err)
	}
	region, ok := p.Get("region")
	if !ok {
		return Handoff{}, errors.New(path + ": missing region")
	}
	env, ok := p.Get("chef_environment")
	if !ok {
		return Handoff{}, errors.New(path + ": missing chef_environment")
	}
	return Handoff{Region: region, ChefEnvironment: env}, nil
}
