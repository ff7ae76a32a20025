// Package lock keeps a single famcalld per account. The lock file names the
// daemon that owns the account so other tools can report on it.
package lock

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"
)

const fileName = "LOCK"

// Owner describes the daemon holding an account.
type Owner struct {
	PID    int
	UserID string
	Socket string
	Since  time.Time
}

// HeldError is returned when another famcalld already serves the account.
type HeldError struct {
	Owner Owner
	Path  string
}

func (e *HeldError) Error() string {
	if e.Owner.UserID == "" {
		return fmt.Sprintf("account already served by famcalld PID %d (%s)", e.Owner.PID, e.Path)
	}
	return fmt.Sprintf("account already served by famcalld PID %d as %s (%s)", e.Owner.PID, e.Owner.UserID, e.Path)
}

// Lock is a held account lock.
type Lock struct {
	file *os.File
	path string
}

// Acquire takes the account lock in dir and records owner in it. PID and
// Since are filled in when zero.
func Acquire(dir string, owner Owner) (*Lock, error) {
	path := filepath.Join(dir, fileName)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("create account dir: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		return nil, fmt.Errorf("open lock file: %w", err)
	}
	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		data, _ := os.ReadFile(path)
		_ = f.Close()
		return nil, &HeldError{Owner: parseOwner(string(data)), Path: path}
	}

	if owner.PID == 0 {
		owner.PID = os.Getpid()
	}
	if owner.Since.IsZero() {
		owner.Since = time.Now()
	}
	if err := rewrite(f, formatOwner(owner)); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("write lock file: %w", err)
	}
	return &Lock{file: f, path: path}, nil
}

// Inspect reports the daemon recorded in dir's lock and whether it still
// holds the lock. A lock file left by a crashed daemon is reported as not
// held.
func Inspect(dir string) (Owner, bool, error) {
	path := filepath.Join(dir, fileName)
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return Owner{}, false, nil
	}
	if err != nil {
		return Owner{}, false, fmt.Errorf("open lock file: %w", err)
	}
	defer func() { _ = f.Close() }()

	data, err := os.ReadFile(path)
	if err != nil {
		return Owner{}, false, fmt.Errorf("read lock file: %w", err)
	}
	owner := parseOwner(string(data))

	err = syscall.Flock(int(f.Fd()), syscall.LOCK_SH|syscall.LOCK_NB)
	if errors.Is(err, syscall.EWOULDBLOCK) {
		return owner, true, nil
	}
	if err != nil {
		return owner, false, fmt.Errorf("check lock: %w", err)
	}
	_ = syscall.Flock(int(f.Fd()), syscall.LOCK_UN)
	return owner, false, nil
}

// Release removes the lock file and unlocks it. Safe on a nil or released
// lock.
func (l *Lock) Release() error {
	if l == nil || l.file == nil {
		return nil
	}
	// Removed while still locked so a waiting daemon never reads our owner.
	_ = os.Remove(l.path)
	err := l.file.Close()
	l.file = nil
	return err
}

func rewrite(f *os.File, content string) error {
	if err := f.Truncate(0); err != nil {
		return err
	}
	if _, err := f.Seek(0, 0); err != nil {
		return err
	}
	_, err := f.WriteString(content)
	return err
}

func formatOwner(o Owner) string {
	var b strings.Builder
	fmt.Fprintf(&b, "pid=%d\n", o.PID)
	if o.UserID != "" {
		fmt.Fprintf(&b, "user=%s\n", o.UserID)
	}
	if o.Socket != "" {
		fmt.Fprintf(&b, "socket=%s\n", o.Socket)
	}
	fmt.Fprintf(&b, "since=%s\n", o.Since.UTC().Format(time.RFC3339))
	return b.String()
}

func parseOwner(content string) Owner {
	var o Owner
	for _, line := range strings.Split(content, "\n") {
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		switch key {
		case "pid":
			o.PID, _ = strconv.Atoi(value)
		case "user":
			o.UserID = value
		case "socket":
			o.Socket = value
		case "since", "time":
			o.Since, _ = time.Parse(time.RFC3339, value)
		}
	}
	return o
}
