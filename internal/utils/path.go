package utils

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
)

// HomeEnv overrides the default data directory.
const HomeEnv = "PWMODEL_HOME"

// GetExecutableDir returns the directory containing the running binary,
// with symlinks resolved.
func GetExecutableDir() (string, error) {
	execPath, err := os.Executable()
	if err != nil {
		return "", err
	}
	execPath, err = filepath.EvalSymlinks(execPath)
	if err != nil {
		return "", err
	}
	return filepath.Dir(execPath), nil
}

// DataDir returns where corpus and model artifacts live by default:
// $PWMODEL_HOME, else ~/.pwmodel, else the executable's directory.
func DataDir() (string, error) {
	if dir := os.Getenv(HomeEnv); dir != "" {
		return ExpandHome(dir), nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		log.Warnf("Could not determine home directory: %v", err)
		return GetExecutableDir()
	}
	return filepath.Join(homeDir, ".pwmodel"), nil
}

// ResolveArtifact joins a relative artifact name onto the data dir. Absolute
// paths and paths starting with ./ are returned unchanged.
func ResolveArtifact(name string) string {
	name = ExpandHome(name)
	if filepath.IsAbs(name) || strings.HasPrefix(name, "."+string(filepath.Separator)) {
		return name
	}
	dir, err := DataDir()
	if err != nil {
		return name
	}
	return filepath.Join(dir, name)
}

// ExpandHome replaces a leading ~ with the user's home directory.
func ExpandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(homeDir, strings.TrimPrefix(path, "~"))
}
