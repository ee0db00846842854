package pathutil

import (
	"os"
	"path/filepath"
	"strings"
)

// ExpandPath expands the path using the user's home directory.
// If the path starts with "~", it is replaced with the user's home directory.
func ExpandPath(path string) (string, error) {
	if strings.HasPrefix(path, "~") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}

		path = filepath.Join(homeDir, path[1:])
	}

	return path, nil
}

// ResolvePath expands path and, when it is relative, anchors it at base.
func ResolvePath(base, path string) (string, error) {
	if path == "" {
		return "", nil
	}

	path, err := ExpandPath(path)
	if err != nil {
		return "", err
	}

	if !filepath.IsAbs(path) && base != "" {
		path = filepath.Join(base, path)
	}

	return path, nil
}

func PathExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
