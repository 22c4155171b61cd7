package portal

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// FindArtifact scans dir for a completed, non-empty PDF. A directory that
// still contains in-progress download markers is treated as not ready.
func FindArtifact(dir string) (string, bool) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", false
	}

	for _, e := range entries {
		name := strings.ToLower(e.Name())
		if strings.HasSuffix(name, ".crdownload") || strings.HasSuffix(name, ".tmp") {
			return "", false
		}
	}

	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(strings.ToLower(e.Name()), ".pdf") {
			continue
		}
		path := filepath.Join(dir, e.Name())
		info, err := os.Stat(path)
		if err != nil || info.Size() == 0 {
			continue
		}
		return path, true
	}
	return "", false
}

// WaitForArtifact polls dir until a completed PDF materialises or the
// budget runs out.
func WaitForArtifact(ctx context.Context, dir string, budget, interval time.Duration) (string, error) {
	deadline := time.Now().Add(budget)
	for {
		if path, ok := FindArtifact(dir); ok {
			return path, nil
		}
		if time.Now().After(deadline) {
			return "", fmt.Errorf("no completed PDF in %s after %v", dir, budget)
		}
		select {
		case <-time.After(interval):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
}
