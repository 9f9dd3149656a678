// Waveframe - Audio Poster Customization and Preview Service
// Copyright 2026 Waveframe Studio
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/waveframe-studio/waveframe

// Package assets provides object storage for session assets: uploaded
// photos and audio, derived waveforms, and rendered previews and documents.
//
// The core never assumes a specific backend beyond the Store interface.
// Keys are namespaced by lifetime: tmp/{token}/... for pre-payment assets
// and perm/{order}/... for permanent copies made at finalization. Bytes are
// write-once per key; replacing an upload mints a new key and clears the
// old reference rather than mutating stored bytes.
//
// Time-limited access is granted through HS256-signed URL tokens issued by
// Signer. A signed URL must be dereferenced exactly as issued; clients must
// never add or mutate query parameters on it.
package assets

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound indicates no object exists under the requested key.
var ErrNotFound = errors.New("asset not found")

// Store is the asset storage boundary.
type Store interface {
	// Put stores data under key, creating any namespace hierarchy.
	Put(ctx context.Context, key string, data []byte) error

	// Get returns the bytes stored under key, or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Delete removes the object under key. Missing keys are not an error.
	Delete(ctx context.Context, key string) error

	// SignedURL returns a time-limited URL granting read access to key.
	SignedURL(key string, ttl time.Duration) (string, error)
}

// Copy duplicates the object at src to dst through the Store interface.
// Used at finalization to turn temporary refs into permanent ones.
func Copy(ctx context.Context, s Store, src, dst string) error {
	data, err := s.Get(ctx, src)
	if err != nil {
		return err
	}
	return s.Put(ctx, dst, data)
}
