package gsqlite_test

import (
	"os"
)

func mkTempDir(cleanup func(func())) (string, error) {
	dir, err := os.MkdirTemp("", "gsqlite-*")
	if err != nil {
		return "", err
	}
	cleanup(func() {
		_ = os.RemoveAll(dir)
	})
	return dir, nil
}
