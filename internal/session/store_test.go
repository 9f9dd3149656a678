// Waveframe - Audio Poster Customization and Preview Service
// Copyright 2026 Waveframe Studio
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/waveframe-studio/waveframe

package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/waveframe-studio/waveframe/internal/models"
)

// newTestDB opens a throwaway Badger instance for one test.
func newTestDB(t *testing.T) *badger.DB {
	t.Helper()

	opts := badger.DefaultOptions(t.TempDir())
	opts.Logger = nil
	db, err := badger.Open(opts)
	if err != nil {
		t.Fatalf("Failed to open BadgerDB: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func testSession(token string) *models.Session {
	now := time.Now()
	return &models.Session{
		Token:         token,
		Customization: models.DefaultCustomization(),
		CreatedAt:     now,
		UpdatedAt:     now,
		ExpiresAt:     now.Add(time.Hour),
	}
}

func TestStorePutGet(t *testing.T) {
	store := NewStore(newTestDB(t))
	ctx := context.Background()

	sess := testSession("tok-1")
	sess.Customization.CustomText = "Our song"
	if err := store.Put(ctx, sess); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	got, err := store.Get(ctx, "tok-1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Customization.CustomText != "Our song" {
		t.Errorf("CustomText = %q, want %q", got.Customization.CustomText, "Our song")
	}
	if got.Customization.TemplateID != models.TemplateForSize(got.Customization.PDFSize) {
		t.Error("Persisted template does not match derived template")
	}
}

func TestStoreGetUnknownToken(t *testing.T) {
	store := NewStore(newTestDB(t))

	if _, err := store.Get(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestStoreExpiredSessionIsNotFound(t *testing.T) {
	store := NewStore(newTestDB(t))
	ctx := context.Background()

	sess := testSession("tok-exp")
	sess.ExpiresAt = time.Now().Add(50 * time.Millisecond)
	if err := store.Put(ctx, sess); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	if _, err := store.Get(ctx, "tok-exp"); err != nil {
		t.Fatalf("Session should still be live: %v", err)
	}

	time.Sleep(60 * time.Millisecond)

	if _, err := store.Get(ctx, "tok-exp"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound after expiry, got %v", err)
	}
}

func TestStoreFinalizedSessionSurvivesTTL(t *testing.T) {
	store := NewStore(newTestDB(t))
	ctx := context.Background()

	sess := testSession("tok-fin")
	sess.ExpiresAt = time.Now().Add(-time.Minute)
	sess.Finalized = true
	if err := store.Put(ctx, sess); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	got, err := store.Get(ctx, "tok-fin")
	if err != nil {
		t.Fatalf("Finalized session should outlive its TTL: %v", err)
	}
	if !got.Finalized {
		t.Error("Expected Finalized flag set")
	}
}

func TestStoreDelete(t *testing.T) {
	store := NewStore(newTestDB(t))
	ctx := context.Background()

	if err := store.Put(ctx, testSession("tok-del")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := store.Delete(ctx, "tok-del"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := store.Get(ctx, "tok-del"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound after delete, got %v", err)
	}
	if err := store.Delete(ctx, "tok-del"); err != nil {
		t.Errorf("Deleting a missing session should be a no-op: %v", err)
	}
}

func TestStoreOrderImmutable(t *testing.T) {
	store := NewStore(newTestDB(t))
	ctx := context.Background()

	order := &models.Order{
		ID:                   "order-1",
		SessionToken:         "tok-1",
		PermanentPhotoRef:    "perm/order-1/photo.jpg",
		PermanentAudioRef:    "perm/order-1/audio.mp3",
		PermanentWaveformRef: "perm/order-1/waveform.png",
		FinalizedAt:          time.Now(),
	}
	if err := store.PutOrder(ctx, order); err != nil {
		t.Fatalf("PutOrder failed: %v", err)
	}

	got, err := store.GetOrder(ctx, "order-1")
	if err != nil {
		t.Fatalf("GetOrder failed: %v", err)
	}
	if got.PermanentPhotoRef != order.PermanentPhotoRef {
		t.Errorf("PermanentPhotoRef = %q, want %q", got.PermanentPhotoRef, order.PermanentPhotoRef)
	}

	// Permanent refs are immutable: rewriting the order is rejected.
	if err := store.PutOrder(ctx, order); err == nil {
		t.Error("Expected rewrite of existing order to fail")
	}
}

func TestStoreActiveTokens(t *testing.T) {
	store := NewStore(newTestDB(t))
	ctx := context.Background()

	for _, token := range []string{"tok-a", "tok-b"} {
		if err := store.Put(ctx, testSession(token)); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
	}

	tokens, err := store.ActiveTokens(ctx)
	if err != nil {
		t.Fatalf("ActiveTokens failed: %v", err)
	}
	if len(tokens) != 2 {
		t.Errorf("Expected 2 tokens, got %v", tokens)
	}
}
