// Package statepaths resolves where bridge state lives on disk. Everything
// hangs off file_state_dir: per-session queue files under queues/, the shared
// session registry, and lock files under .locks/.
package statepaths

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

const (
	defaultStateDir  = "~/.morphbridge"
	registryFilename = "registry.json"
	queuesDirname    = "queues"
	locksDirname     = ".locks"
)

func StateDir() string {
	dir := strings.TrimSpace(viper.GetString("file_state_dir"))
	if dir == "" {
		dir = defaultStateDir
	}
	return filepath.Clean(ExpandHomePath(dir))
}

func RegistryPath() string {
	return filepath.Join(StateDir(), registryFilename)
}

func RegistryLockPath() string {
	return filepath.Join(StateDir(), locksDirname, "registry.lck")
}

func QueuesDir() string {
	return filepath.Join(StateDir(), queuesDirname)
}

// QueuePath maps a session ID to its mailbox file. IDs are sanitized to a
// filename-safe alphabet so a hostile registry entry cannot escape the
// queues directory.
func QueuePath(sessionID string) string {
	return filepath.Join(QueuesDir(), sanitizeSessionID(sessionID)+".json")
}

func sanitizeSessionID(sessionID string) string {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return "default"
	}
	var b strings.Builder
	b.Grow(len(sessionID))
	for _, r := range sessionID {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '.' || r == '_' || r == '-' {
			b.WriteRune(r)
		} else {
			b.WriteByte('-')
		}
	}
	out := strings.Trim(b.String(), ".")
	if out == "" {
		return "default"
	}
	return out
}

// ExpandHomePath replaces a leading ~ with the current user's home directory.
func ExpandHomePath(path string) string {
	path = strings.TrimSpace(path)
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil || home == "" {
			return path
		}
		if path == "~" {
			return home
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
