package keystore

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pqfed/transfer/pkg/pqc/hybrid"
	"github.com/pqfed/transfer/pkg/pqc/kem"
	"github.com/pqfed/transfer/pkg/pqc/pqcerr"
)

func newTestEntry(t *testing.T, id string) StoredKey {
	t.Helper()
	pub, sec, err := hybrid.GenerateKeypair(kem.K512)
	if err != nil {
		t.Fatalf("generate keypair: %v", err)
	}
	return StoredKey{
		KeyID:       id,
		Algorithm:   uint8(pub.Alg),
		ClassicalPK: pub.ClassicalPK,
		PQCPK:       pub.PQCPK,
		ClassicalSK: sec.ClassicalSK,
		PQCSK:       sec.PQCSK,
		CreatedAt:   time.Now(),
	}
}

func TestOpenInitializesAndReopens(t *testing.T) {
	dir := t.TempDir()

	s1, err := Open(dir, "correct horse battery staple")
	if err != nil {
		t.Fatalf("open (init): %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, masterBlobName)); err != nil {
		t.Fatalf("master blob not written: %v", err)
	}
	s1.Close()

	s2, err := Open(dir, "correct horse battery staple")
	if err != nil {
		t.Fatalf("open (reopen): %v", err)
	}
	defer s2.Close()
}

func TestOpenWrongPasswordFails(t *testing.T) {
	dir := t.TempDir()
	s1, err := Open(dir, "right password")
	if err != nil {
		t.Fatalf("open (init): %v", err)
	}
	s1.Close()

	_, err = Open(dir, "wrong password")
	if !pqcerr.Is(err, pqcerr.BadPassword) {
		t.Fatalf("expected BadPassword, got %v", err)
	}
}

func TestStoreLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, "pw")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()

	entry := newTestEntry(t, "k1")
	if err := s.Store(entry); err != nil {
		t.Fatalf("store: %v", err)
	}
	got, err := s.Load("k1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.KeyID != entry.KeyID || string(got.ClassicalPK) != string(entry.ClassicalPK) {
		t.Fatalf("round trip mismatch: got %+v", got)
	}
}

func TestStoreIsIdempotentOverwrite(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, "pw")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()

	first := newTestEntry(t, "k1")
	if err := s.Store(first); err != nil {
		t.Fatalf("store first: %v", err)
	}
	second := newTestEntry(t, "k1")
	if err := s.Store(second); err != nil {
		t.Fatalf("store second: %v", err)
	}

	got, err := s.Load("k1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if string(got.PQCPK) != string(second.PQCPK) {
		t.Fatalf("expected second entry to win, load returned stale data")
	}
}

func TestRejectsPathTraversalIDs(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, "pw")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()

	badIDs := []string{
		"../../../etc/passwd",
		"../escape",
		"a/b",
		"/etc/passwd",
		"",
		string(make([]byte, MaxKeyIDLength+1)),
	}
	for _, id := range badIDs {
		if err := s.Store(newTestEntry(t, id)); !pqcerr.Is(err, pqcerr.BadInput) {
			t.Fatalf("Store(%q): expected BadInput, got %v", id, err)
		}
		if _, err := s.Load(id); !pqcerr.Is(err, pqcerr.BadInput) {
			t.Fatalf("Load(%q): expected BadInput, got %v", id, err)
		}
		if err := s.Delete(id); !pqcerr.Is(err, pqcerr.BadInput) {
			t.Fatalf("Delete(%q): expected BadInput, got %v", id, err)
		}
	}

	// A malicious id must never actually reach the filesystem outside
	// the store directory.
	if _, err := os.Stat(filepath.Join(dir, "..", "..", "..", "etc", "passwd.key")); !os.IsNotExist(err) {
		t.Fatalf("path traversal id touched the filesystem: %v", err)
	}
}

func TestLoadMissingEntryFails(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, "pw")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()

	if _, err := s.Load("nonexistent"); err == nil {
		t.Fatalf("expected error loading missing entry")
	}
}

func TestCorruptedEntryReportsStoreCorrupt(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, "pw")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()

	entry := newTestEntry(t, "k1")
	if err := s.Store(entry); err != nil {
		t.Fatalf("store: %v", err)
	}

	blobPath, err := s.blobPath("k1")
	if err != nil {
		t.Fatalf("blobPath: %v", err)
	}
	blob, err := os.ReadFile(blobPath)
	if err != nil {
		t.Fatalf("read blob: %v", err)
	}
	blob[len(blob)-1] ^= 0xFF
	if err := os.WriteFile(blobPath, blob, 0o600); err != nil {
		t.Fatalf("write corrupted blob: %v", err)
	}

	_, err = s.Load("k1")
	if !pqcerr.Is(err, pqcerr.StoreCorrupt) {
		t.Fatalf("expected StoreCorrupt, got %v", err)
	}

	// Not auto-repaired: the entry is still there, still corrupt, on a
	// second load.
	_, err = s.Load("k1")
	if !pqcerr.Is(err, pqcerr.StoreCorrupt) {
		t.Fatalf("expected StoreCorrupt on second load, got %v", err)
	}
}

func TestDeleteRemovesEntry(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, "pw")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()

	entry := newTestEntry(t, "k1")
	if err := s.Store(entry); err != nil {
		t.Fatalf("store: %v", err)
	}
	if err := s.Delete("k1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := s.Load("k1"); err == nil {
		t.Fatalf("expected load to fail after delete")
	}
	// Deleting again is not an error.
	if err := s.Delete("k1"); err != nil {
		t.Fatalf("delete of already-deleted entry: %v", err)
	}
}

func TestListReturnsAllEntries(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, "pw")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()

	for _, id := range []string{"a", "b", "c"} {
		if err := s.Store(newTestEntry(t, id)); err != nil {
			t.Fatalf("store %s: %v", id, err)
		}
	}

	list, err := s.List()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(list))
	}
}

func TestRotateProducesNewKeyPreservesOld(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, "pw")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()

	original := newTestEntry(t, "k1")
	if err := s.Store(original); err != nil {
		t.Fatalf("store: %v", err)
	}

	newID, err := s.Rotate("k1")
	if err != nil {
		t.Fatalf("rotate: %v", err)
	}
	if newID == "k1" {
		t.Fatalf("rotate returned same id")
	}

	rotated, err := s.Load(newID)
	if err != nil {
		t.Fatalf("load rotated: %v", err)
	}
	if string(rotated.PQCPK) == string(original.PQCPK) {
		t.Fatalf("rotated entry has same public key as original")
	}
	if rotated.Metadata["rotated_from"] != "k1" {
		t.Fatalf("rotated entry missing rotated_from metadata")
	}

	// Old entry survives untouched.
	if _, err := s.Load("k1"); err != nil {
		t.Fatalf("load original after rotate: %v", err)
	}
}

func TestFingerprintAndExportPublicKey(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, "pw")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()

	entry := newTestEntry(t, "k1")
	if err := s.Store(entry); err != nil {
		t.Fatalf("store: %v", err)
	}

	fp1, err := s.Fingerprint("k1")
	if err != nil {
		t.Fatalf("fingerprint: %v", err)
	}
	fp2, err := s.Fingerprint("k1")
	if err != nil {
		t.Fatalf("fingerprint (again): %v", err)
	}
	if fp1 != fp2 {
		t.Fatalf("fingerprint not deterministic: %q vs %q", fp1, fp2)
	}

	wire, err := s.ExportPublicKey("k1")
	if err != nil {
		t.Fatalf("export public key: %v", err)
	}
	pub, err := hybrid.UnmarshalPublicKey(wire)
	if err != nil {
		t.Fatalf("unmarshal exported public key: %v", err)
	}
	if string(pub.ClassicalPK) != string(entry.ClassicalPK) {
		t.Fatalf("exported public key does not match stored entry")
	}
}

func TestPruneDeletesOlderThanMaxAge(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, "pw")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()

	old := newTestEntry(t, "old")
	old.CreatedAt = time.Now().Add(-48 * time.Hour)
	if err := s.Store(old); err != nil {
		t.Fatalf("store old: %v", err)
	}
	fresh := newTestEntry(t, "fresh")
	if err := s.Store(fresh); err != nil {
		t.Fatalf("store fresh: %v", err)
	}

	n, err := s.Prune(24 * time.Hour)
	if err != nil {
		t.Fatalf("prune: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 pruned entry, got %d", n)
	}
	if _, err := s.Load("old"); err == nil {
		t.Fatalf("expected old entry to be pruned")
	}
	if _, err := s.Load("fresh"); err != nil {
		t.Fatalf("fresh entry should survive prune: %v", err)
	}
}
