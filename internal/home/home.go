package home

import (
	"fmt"
	"os"
	"path/filepath"
)

const (
	// DefaultDirName is the default name for the studio home directory.
	DefaultDirName = ".studio"

	// ScratchDirName holds per-session working files.
	ScratchDirName = "scratch"

	// LocksDirName holds per-session lock files.
	LocksDirName = "locks"

	// InboxDirName is watched for new transcripts.
	InboxDirName = "inbox"

	// ConfigFileName is the default config file name.
	ConfigFileName = "config.yaml"

	// LedgerFileName is the session ledger database.
	LedgerFileName = "sessions.db"
)

// Dir represents the studio home directory structure.
type Dir struct {
	path string
}

// New creates a new Dir with the given path.
// If path is empty, uses the default (~/.studio).
func New(path string) (*Dir, error) {
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get user home directory: %w", err)
		}
		path = filepath.Join(home, DefaultDirName)
	}

	return &Dir{path: path}, nil
}

// Path returns the root path of the home directory.
func (d *Dir) Path() string {
	return d.path
}

// ConfigPath returns the path to the default config file.
func (d *Dir) ConfigPath() string {
	return filepath.Join(d.path, ConfigFileName)
}

// LedgerPath returns the path to the session ledger database.
func (d *Dir) LedgerPath() string {
	return filepath.Join(d.path, LedgerFileName)
}

// InboxDir returns the directory watched for incoming transcripts.
func (d *Dir) InboxDir() string {
	return filepath.Join(d.path, InboxDirName)
}

// ScratchDir returns the root of all session scratch directories.
func (d *Dir) ScratchDir() string {
	return filepath.Join(d.path, ScratchDirName)
}

// SessionScratchDir returns the scratch directory for one session.
func (d *Dir) SessionScratchDir(sessionID string) string {
	return filepath.Join(d.ScratchDir(), sessionID)
}

// ScratchPath returns a scratch file path named by session id and suffix,
// e.g. "TT-1_stage3.mp3".
func (d *Dir) ScratchPath(sessionID, suffix string) string {
	return filepath.Join(d.SessionScratchDir(sessionID), sessionID+"_"+suffix)
}

// EnsureSessionScratchDir creates the scratch directory for a session.
func (d *Dir) EnsureSessionScratchDir(sessionID string) (string, error) {
	dir := d.SessionScratchDir(sessionID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create scratch directory: %w", err)
	}
	return dir, nil
}

// LocksDir returns the directory holding per-session lock files.
func (d *Dir) LocksDir() string {
	return filepath.Join(d.path, LocksDirName)
}

// LockPath returns the advisory lock file for a session.
func (d *Dir) LockPath(sessionID string) string {
	return filepath.Join(d.LocksDir(), sessionID+".lock")
}

// EnsureExists creates the home directory and subdirectories if they don't exist.
func (d *Dir) EnsureExists() error {
	for _, dir := range []string{d.ScratchDir(), d.InboxDir(), d.LocksDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}
	return nil
}

// Exists returns true if the home directory exists.
func (d *Dir) Exists() bool {
	_, err := os.Stat(d.path)
	return err == nil
}

// ConfigExists returns true if the config file exists in the home directory.
func (d *Dir) ConfigExists() bool {
	_, err := os.Stat(d.ConfigPath())
	return err == nil
}
