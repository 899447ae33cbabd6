package history

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/google/uuid"
)

const (
	fileExt        = ".json"
	corruptSuffix  = ".corrupt-"
	dirPermissions = 0o755
)

// keeps one JSON file per session under a single directory.
// callers serialize access per session; the store itself holds no locks.
type FileStore struct {
	dir string
	now func() time.Time
}

// creates the data directory if needed and checks that it is writable
func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("history dir is empty")
	}

	if err := os.MkdirAll(dir, dirPermissions); err != nil {
		return nil, fmt.Errorf("create history dir: %w", err)
	}

	check, err := os.CreateTemp(dir, ".writable-*")
	if err != nil {
		return nil, fmt.Errorf("history dir not writable: %w", err)
	}

	check.Close()           //nolint:errcheck,gosec // write check only
	os.Remove(check.Name()) //nolint:errcheck,gosec // write check only

	return &FileStore{dir: dir, now: time.Now}, nil
}

// returns the directory holding the history files
func (s *FileStore) Dir() string {
	return s.dir
}

// reads a session's history. a missing file yields an empty history and no
// error. an unreadable or undecodable file is moved aside and an empty
// history is returned together with an error wrapping ErrCorruptHistory.
func (s *FileStore) Load(sessionID string) (*History, error) {
	empty := New(sessionID, s.now())

	if !validID(sessionID) {
		return empty, fmt.Errorf("%w: %q", ErrInvalidSessionID, sessionID)
	}

	path := s.path(sessionID)

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return empty, nil
		}

		return empty, s.corrupt(sessionID, fmt.Errorf("read history: %w", err))
	}

	var h History
	if err := json.Unmarshal(data, &h); err != nil {
		return empty, s.corrupt(sessionID, fmt.Errorf("decode history: %w", err))
	}

	// files copied between sessions keep the id they are stored under
	h.SessionID = sessionID

	if h.Messages == nil {
		h.Messages = []Message{}
	}

	if h.CreatedAt == 0 {
		h.CreatedAt = empty.CreatedAt
	}

	return &h, nil
}

// atomically replaces the session's file with the given history.
// the caller must hold the session's lease.
func (s *FileStore) Commit(sessionID string, h *History) error {
	if !validID(sessionID) {
		return fmt.Errorf("%w: %q", ErrInvalidSessionID, sessionID)
	}

	if h == nil {
		return fmt.Errorf("commit %s: nil history", sessionID)
	}

	snapshot := *h
	snapshot.SessionID = sessionID
	snapshot.UpdatedAt = s.now().Unix()

	if snapshot.Messages == nil {
		snapshot.Messages = []Message{}
	}

	if snapshot.CreatedAt == 0 {
		snapshot.CreatedAt = snapshot.UpdatedAt
	}

	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal history: %w", err)
	}

	if err := s.writeAtomic(s.path(sessionID), data); err != nil {
		return fmt.Errorf("commit %s: %w", sessionID, err)
	}

	return nil
}

// reports whether a history file exists for the session
func (s *FileStore) Exists(sessionID string) bool {
	if !validID(sessionID) {
		return false
	}

	info, err := os.Stat(s.path(sessionID))

	return err == nil && info.Mode().IsRegular()
}

func (s *FileStore) path(sessionID string) string {
	return filepath.Join(s.dir, sessionID+fileExt)
}

// moves a bad file aside so the next commit cannot overwrite it
func (s *FileStore) corrupt(sessionID string, cause error) error {
	path := s.path(sessionID)
	target := path + corruptSuffix + strconv.FormatInt(s.now().UnixNano(), 10)

	if err := os.Rename(path, target); err != nil {
		return fmt.Errorf("%w: %w (quarantine failed: %v)", ErrCorruptHistory, cause, err)
	}

	return fmt.Errorf("%w: %w (moved to %s)", ErrCorruptHistory, cause, filepath.Base(target))
}

func (s *FileStore) writeAtomic(path string, data []byte) error {
	tmpFile, err := os.CreateTemp(s.dir, filepath.Base(path)+".tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}

	tmpName := tmpFile.Name()
	if err := os.Chmod(tmpName, 0o600); err != nil && !errors.Is(err, os.ErrPermission) {
		tmpFile.Close() //nolint:errcheck,gosec // cleanup
		_ = os.Remove(tmpName)
		return fmt.Errorf("chmod temp file: %w", err)
	}

	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close() //nolint:errcheck,gosec // cleanup
		_ = os.Remove(tmpName)
		return fmt.Errorf("write temp file: %w", err)
	}

	if err := tmpFile.Sync(); err != nil {
		tmpFile.Close() //nolint:errcheck,gosec // cleanup
		_ = os.Remove(tmpName)
		return fmt.Errorf("sync temp file: %w", err)
	}

	if err := tmpFile.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close temp file: %w", err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("rename temp file: %w", err)
	}

	syncDir(s.dir)

	return nil
}

// flushes the rename to disk. not every platform supports fsync on a
// directory, so failures are ignored.
func syncDir(dir string) {
	d, err := os.Open(dir)
	if err != nil {
		return
	}

	d.Sync()  //nolint:errcheck,gosec // best effort
	d.Close() //nolint:errcheck,gosec // best effort
}

// session ids double as file names, so only canonical lowercase UUIDs pass
func validID(id string) bool {
	parsed, err := uuid.Parse(id)

	return err == nil && parsed.String() == id
}
