package utils

import (
	"os"
)

// EnsureDir creates the directory (and parents) if it doesn't exist
func EnsureDir(dir string) error {
	return os.MkdirAll(dir, os.ModePerm)
}
