package platform

import (
	"fmt"
	"os"
	"path/filepath"
)

// ConfigName is the base name of the CLI configuration file.
const ConfigName = "concord"

// FindRoot looks upwards from startDir for a session root: a directory holding
// a .concord directory or a concord.yaml file. It returns the absolute path of
// the first one found.
func FindRoot(startDir string) (string, error) {
	abs, err := filepath.Abs(startDir)
	if err != nil {
		return "", err
	}

	dir := abs
	for {
		if hasFile(dir, "."+ConfigName) || hasFile(dir, ConfigName+".yaml") {
			return dir, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return "", fmt.Errorf("root not found")
}

func hasFile(dir, name string) bool {
	path := filepath.Join(dir, name)
	_, err := os.Stat(path)
	return err == nil
}
