package session

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// FindLatestRestore locates the most recently modified worker checkpoint in
// the sessions directory and returns its session identifier. Used when a
// restore request arrives without an explicit id.
func FindLatestRestore(sessionsDir string) (string, error) {
	entries, err := os.ReadDir(sessionsDir)
	if err != nil {
		return "", fmt.Errorf("failed to read sessions directory: %w", err)
	}

	var newest string
	var newestTime time.Time
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".restore") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if newest == "" || info.ModTime().After(newestTime) {
			newest = entry.Name()
			newestTime = info.ModTime()
		}
	}

	if newest == "" {
		return "", fmt.Errorf("no restore checkpoint found in %s", sessionsDir)
	}
	return strings.TrimSuffix(newest, ".restore"), nil
}
