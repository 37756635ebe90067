package vdoc

import (
	"context"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"github.com/zeebo/blake3"
)

// DefaultTempDirName is the directory under os.TempDir used when no root is
// configured.
const DefaultTempDirName = "qmdls-vdoc"

// TempFileStore writes virtual documents to real files for embedded tools
// that only read from disk.
//
// Files live at <root>/<parent hash>/<lang>.<ext>. Writes to the same
// (parent, language) pair are serialized, and each write lands through a
// rename so readers see either the old bytes or the new bytes.
type TempFileStore struct {
	root string

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewTempFileStore returns a store rooted at root, or at the default
// directory when root is empty. The directory is created lazily.
func NewTempFileStore(root string) *TempFileStore {
	if root == "" {
		root = filepath.Join(os.TempDir(), DefaultTempDirName)
	}
	return &TempFileStore{root: root, locks: make(map[string]*sync.Mutex)}
}

// Root returns the store's root directory.
func (s *TempFileStore) Root() string {
	return s.root
}

// Path returns the file a (parent, language) pair materializes to.
func (s *TempFileStore) Path(parent, lang, ext string) string {
	return filepath.Join(s.parentDir(parent), lang+"."+ext)
}

func (s *TempFileStore) parentDir(parent string) string {
	sum := blake3.Sum256([]byte(parent))
	return filepath.Join(s.root, hex.EncodeToString(sum[:])[:16])
}

func (s *TempFileStore) lock(key string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.locks[key]
	if !ok {
		l = &sync.Mutex{}
		s.locks[key] = l
	}
	return l
}

// Materialize writes content for the (parent, language) pair and returns the
// file path. It always rewrites the file.
func (s *TempFileStore) Materialize(ctx context.Context, parent, lang, ext, content string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	target := s.Path(parent, lang, ext)
	l := s.lock(target)
	l.Lock()
	defer l.Unlock()

	dir := filepath.Dir(target)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create virtual document directory: %w", err)
	}

	staging := filepath.Join(dir, "."+uuid.NewString()+".tmp")
	if err := os.WriteFile(staging, []byte(content), 0o644); err != nil {
		_ = os.Remove(staging)
		return "", fmt.Errorf("failed to write virtual document: %w", err)
	}
	if err := os.Rename(staging, target); err != nil {
		_ = os.Remove(staging)
		return "", fmt.Errorf("failed to move virtual document into place: %w", err)
	}
	return target, nil
}

// Remove deletes every file materialized for parent.
func (s *TempFileStore) Remove(parent string) error {
	dir := s.parentDir(parent)

	s.mu.Lock()
	for key := range s.locks {
		if filepath.Dir(key) == dir {
			delete(s.locks, key)
		}
	}
	s.mu.Unlock()

	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("failed to remove virtual documents for %s: %w", parent, err)
	}
	return nil
}

// Close deletes the store's root directory.
func (s *TempFileStore) Close() error {
	s.mu.Lock()
	s.locks = make(map[string]*sync.Mutex)
	s.mu.Unlock()

	if err := os.RemoveAll(s.root); err != nil {
		return fmt.Errorf("failed to remove virtual document root: %w", err)
	}
	return nil
}
