package account

import (
	"os"
	"path/filepath"
)

// BaseDir returns $FAMCALL_HOME, or ~/.famcall when unset.
func BaseDir() string {
	if dir := os.Getenv("FAMCALL_HOME"); dir != "" {
		return dir
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".famcall")
}

// Dir returns the account-specific directory.
func Dir(name string) string {
	return filepath.Join(BaseDir(), "accounts", name)
}

// SocketPath returns the UDS socket path for an account.
func SocketPath(name string) string {
	return filepath.Join(Dir(name), "daemon.sock")
}

// LockPath returns the lock file path for an account.
func LockPath(name string) string {
	return filepath.Join(Dir(name), "LOCK")
}

// DBPath returns the chat store path.
func DBPath(name string) string {
	return filepath.Join(Dir(name), "famcall.db")
}

// PendingLinkPath returns the file holding a deep link for the next start.
func PendingLinkPath(name string) string {
	return filepath.Join(Dir(name), "pending_link")
}

// LogDir returns the log directory for an account.
func LogDir(name string) string {
	return filepath.Join(Dir(name), "logs")
}

// LogPath returns the daemon log file path.
func LogPath(name string) string {
	return filepath.Join(LogDir(name), "famcalld.log")
}

// HubLogPath returns the push hub log file path.
func HubLogPath() string {
	return filepath.Join(BaseDir(), "logs", "famcall-push.log")
}

// ConfigPath returns the global config file path.
func ConfigPath() string {
	return filepath.Join(BaseDir(), "config.toml")
}

// EnsureDir creates the account directory tree with proper permissions.
func EnsureDir(name string) error {
	dirs := []string{
		Dir(name),
		LogDir(name),
	}
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0700); err != nil {
			return err
		}
	}
	return nil
}
