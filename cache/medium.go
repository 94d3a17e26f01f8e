package cache

import (
	"encoding/json"
	stderrors "errors"
	"io/fs"
	"maps"
	"net/url"
	"os"
	"path/filepath"
	"sync"

	apperrors "github.com/rentcopilot/connection-hub/internal/errors"
)

// Medium is the local persistence behind a Cache.
type Medium interface {
	// Load returns an empty map when nothing was saved yet
	Load() (map[string]Entry, error)
	Save(entries map[string]Entry) error
	// Clear removes everything. Clearing an empty medium is not an error
	Clear() error
}

// MemoryMedium keeps entries in memory.
type MemoryMedium struct {
	entries map[string]Entry
	lock    sync.Mutex
}

var _ Medium = (*MemoryMedium)(nil)

func NewMemoryMedium() *MemoryMedium {
	return &MemoryMedium{entries: map[string]Entry{}}
}

func (m *MemoryMedium) Load() (map[string]Entry, error) {
	m.lock.Lock()
	defer m.lock.Unlock()
	return maps.Clone(m.entries), nil
}

func (m *MemoryMedium) Save(entries map[string]Entry) error {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.entries = maps.Clone(entries)
	return nil
}

func (m *MemoryMedium) Clear() error {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.entries = map[string]Entry{}
	return nil
}

// FileMedium stores entries as a JSON document. Writes go through a temporary file and a
// rename so a crash never leaves a truncated cache behind.
type FileMedium struct {
	path string
}

var _ Medium = (*FileMedium)(nil)

func NewFileMedium(path string) *FileMedium {
	return &FileMedium{path: path}
}

// FileMediumFactory returns one FileMedium per session, stored under dir.
func FileMediumFactory(dir string) func(sessionID string) Medium {
	return func(sessionID string) Medium {
		return NewFileMedium(filepath.Join(dir, url.PathEscape(sessionID)+".json"))
	}
}

func (f *FileMedium) Load() (map[string]Entry, error) {
	data, err := os.ReadFile(f.path)
	if stderrors.Is(err, fs.ErrNotExist) {
		return map[string]Entry{}, nil
	}
	if err != nil {
		return nil, apperrors.Persistence(err, "[FileMedium.Load] %s", f.path)
	}
	entries := map[string]Entry{}
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, apperrors.Persistence(err, "[FileMedium.Load] %s is corrupt", f.path)
	}
	return entries, nil
}

func (f *FileMedium) Save(entries map[string]Entry) error {
	data, err := json.Marshal(entries)
	if err != nil {
		return apperrors.Persistence(err, "[FileMedium.Save] marshal")
	}
	if err := os.MkdirAll(filepath.Dir(f.path), 0o700); err != nil {
		return apperrors.Persistence(err, "[FileMedium.Save] create %s", filepath.Dir(f.path))
	}
	tmp, err := os.CreateTemp(filepath.Dir(f.path), filepath.Base(f.path)+".*.tmp")
	if err != nil {
		return apperrors.Persistence(err, "[FileMedium.Save] create temp file")
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return apperrors.Persistence(err, "[FileMedium.Save] write")
	}
	if err := tmp.Close(); err != nil {
		return apperrors.Persistence(err, "[FileMedium.Save] close")
	}
	if err := os.Rename(tmp.Name(), f.path); err != nil {
		return apperrors.Persistence(err, "[FileMedium.Save] rename")
	}
	return nil
}

func (f *FileMedium) Clear() error {
	if err := os.Remove(f.path); err != nil && !stderrors.Is(err, fs.ErrNotExist) {
		return apperrors.Persistence(err, "[FileMedium.Clear] %s", f.path)
	}
	return nil
}
