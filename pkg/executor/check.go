package executor

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// BuildCheck is the smoke check detected for one directory.
type BuildCheck struct {
	Name    string
	Command string
	Dir     string
}

type packageJSON struct {
	Scripts map[string]string `json:"scripts"`
}

// DetectCheck picks the build command for dir. A package.json decides on its
// own: with a build script it runs npm, without one nothing runs. Otherwise
// tsconfig.json and then go.mod are tried. Returns nil when nothing applies.
func DetectCheck(dir string) (*BuildCheck, error) {
	data, err := os.ReadFile(filepath.Join(dir, "package.json"))
	switch {
	case err == nil:
		var pkg packageJSON
		if err := json.Unmarshal(data, &pkg); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", filepath.Join(dir, "package.json"), err)
		}
		if pkg.Scripts["build"] == "" {
			return nil, nil
		}
		return &BuildCheck{Name: "npm build", Command: "npm run build", Dir: dir}, nil
	case !errors.Is(err, os.ErrNotExist):
		return nil, fmt.Errorf("failed to read package.json: %w", err)
	}

	if fileExists(filepath.Join(dir, "tsconfig.json")) {
		return &BuildCheck{Name: "typescript", Command: "tsc -p tsconfig.json", Dir: dir}, nil
	}
	if fileExists(filepath.Join(dir, "go.mod")) {
		return &BuildCheck{Name: "go build", Command: "go build ./...", Dir: dir}, nil
	}
	return nil, nil
}

func fileExists(p string) bool {
	info, err := os.Stat(p)
	return err == nil && !info.IsDir()
}
