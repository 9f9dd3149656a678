// Waveframe - Audio Poster Customization and Preview Service
// Copyright 2026 Waveframe Studio
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/waveframe-studio/waveframe

package assets

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"
)

// FSStore implements Store on the local filesystem under a root directory.
// Suitable for single-node deployments; the Store interface keeps the rest
// of the system agnostic so an object-storage backend can replace it.
type FSStore struct {
	root   string
	signer *Signer
}

// NewFSStore creates a filesystem store rooted at root. The signer issues
// the store's signed URLs; it may be nil if signed access is not needed
// (tests, workers).
func NewFSStore(root string, signer *Signer) (*FSStore, error) {
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("create asset root %s: %w", root, err)
	}
	return &FSStore{root: root, signer: signer}, nil
}

// resolve maps a key to a filesystem path, rejecting traversal outside root.
func (s *FSStore) resolve(key string) (string, error) {
	clean := path.Clean("/" + key)
	if clean == "/" || strings.Contains(clean, "..") {
		return "", fmt.Errorf("invalid asset key %q", key)
	}
	return filepath.Join(s.root, filepath.FromSlash(clean)), nil
}

// Put stores data under key.
func (s *FSStore) Put(ctx context.Context, key string, data []byte) error {
	p, err := s.resolve(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o750); err != nil {
		return fmt.Errorf("create asset directory: %w", err)
	}
	if err := os.WriteFile(p, data, 0o640); err != nil {
		return fmt.Errorf("write asset %s: %w", key, err)
	}
	return nil
}

// Get returns the bytes stored under key, or ErrNotFound.
func (s *FSStore) Get(ctx context.Context, key string) ([]byte, error) {
	p, err := s.resolve(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if os.IsNotExist(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read asset %s: %w", key, err)
	}
	return data, nil
}

// Delete removes the object under key. Missing keys are not an error.
func (s *FSStore) Delete(ctx context.Context, key string) error {
	p, err := s.resolve(key)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete asset %s: %w", key, err)
	}
	return nil
}

// SignedURL returns a time-limited URL granting read access to key.
func (s *FSStore) SignedURL(key string, ttl time.Duration) (string, error) {
	if s.signer == nil {
		return "", fmt.Errorf("store has no signer configured")
	}
	return s.signer.SignedURL(key, ttl)
}

// ListPrefix returns all keys under the given prefix. Used by the janitor
// to find temporary assets belonging to expired sessions.
func (s *FSStore) ListPrefix(ctx context.Context, prefix string) ([]string, error) {
	base, err := s.resolve(prefix)
	if err != nil {
		return nil, err
	}

	var keys []string
	err = filepath.WalkDir(base, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return filepath.SkipAll
			}
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(s.root, p)
		if err != nil {
			return err
		}
		keys = append(keys, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list assets under %s: %w", prefix, err)
	}

	return keys, nil
}

// DeletePrefix removes every object under the given prefix.
func (s *FSStore) DeletePrefix(ctx context.Context, prefix string) error {
	base, err := s.resolve(prefix)
	if err != nil {
		return err
	}
	if err := os.RemoveAll(base); err != nil {
		return fmt.Errorf("delete assets under %s: %w", prefix, err)
	}
	return nil
}
