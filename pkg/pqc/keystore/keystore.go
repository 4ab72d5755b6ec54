package keystore

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pqfed/transfer/pkg/pqc/hybrid"
	"github.com/pqfed/transfer/pkg/pqc/kem"
	"github.com/pqfed/transfer/pkg/pqc/pqcerr"
	"github.com/pqfed/transfer/pkg/pqc/pqczero"
)

// Store is an open keystore directory: one master blob plus one blob
// per key id, all AEAD-sealed. The master key lives in memory only for
// the Store's lifetime; Close zeroizes it.
type Store struct {
	dir       string
	masterKey []byte
}

// Open opens (or initializes, if dir has no master blob yet) a keystore
// directory under password. A wrong password on an existing store
// fails with BadPassword.
func Open(dir string, password string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, pqcerr.Wrap(pqcerr.BadInput, "keystore: create store directory", err)
	}
	lock, err := lockDir(dir, true)
	if err != nil {
		return nil, err
	}
	defer lock.unlock()

	masterPath := filepath.Join(dir, masterBlobName)
	blob, err := os.ReadFile(masterPath)
	if os.IsNotExist(err) {
		return initMaster(dir, masterPath, password)
	}
	if err != nil {
		return nil, pqcerr.Wrap(pqcerr.BadInput, "keystore: read master blob", err)
	}
	if len(blob) < SaltSize {
		return nil, pqcerr.New(pqcerr.StoreCorrupt, "keystore: master blob shorter than salt")
	}
	salt, sealed := blob[:SaltSize], blob[SaltSize:]

	wrapKey, err := deriveWrapKey(password, salt, DefaultIterations)
	if err != nil {
		return nil, err
	}
	defer pqczero.Bytes(wrapKey)

	masterKey, err := open(wrapKey, sealed)
	if err != nil {
		return nil, pqcerr.Wrap(pqcerr.BadPassword, "keystore: wrong password or corrupt master blob", err)
	}
	return &Store{dir: dir, masterKey: masterKey}, nil
}

func initMaster(dir, masterPath, password string) (*Store, error) {
	salt := make([]byte, SaltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, pqcerr.Wrap(pqcerr.KeyGen, "keystore: generate salt", err)
	}
	masterKey := make([]byte, MasterKeySize)
	if _, err := rand.Read(masterKey); err != nil {
		return nil, pqcerr.Wrap(pqcerr.KeyGen, "keystore: generate master key", err)
	}

	wrapKey, err := deriveWrapKey(password, salt, DefaultIterations)
	if err != nil {
		return nil, err
	}
	defer pqczero.Bytes(wrapKey)

	sealed, err := seal(wrapKey, masterKey)
	if err != nil {
		return nil, err
	}
	blob := append(append([]byte(nil), salt...), sealed...)
	if err := os.WriteFile(masterPath, blob, 0o600); err != nil {
		return nil, pqcerr.Wrap(pqcerr.BadInput, "keystore: write master blob", err)
	}
	return &Store{dir: dir, masterKey: masterKey}, nil
}

// Close zeroizes the in-memory master key. Safe to call once.
func (s *Store) Close() error {
	pqczero.Bytes(s.masterKey)
	return nil
}

// blobPath joins id into the store directory after validating it
// against spec.md's key id charset. Without that check a caller-
// supplied id like "../../etc/passwd" would escape the store
// directory entirely.
func (s *Store) blobPath(id string) (string, error) {
	if err := validateID(id); err != nil {
		return "", err
	}
	return filepath.Join(s.dir, id+blobExt), nil
}

// Store seals and writes one entry, overwriting any existing entry with
// the same KeyID.
func (s *Store) Store(sk StoredKey) error {
	lock, err := lockDir(s.dir, true)
	if err != nil {
		return err
	}
	defer lock.unlock()
	return s.storeLocked(sk)
}

func (s *Store) storeLocked(sk StoredKey) error {
	path, err := s.blobPath(sk.KeyID)
	if err != nil {
		return err
	}
	data, err := json.Marshal(sk)
	if err != nil {
		return pqcerr.Wrap(pqcerr.BadInput, "keystore: marshal entry", err)
	}
	sealed, err := seal(s.masterKey, data)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, sealed, 0o600); err != nil {
		return pqcerr.Wrap(pqcerr.BadInput, "keystore: write entry blob", err)
	}
	return nil
}

// Load decrypts and returns one entry. A decryption failure (corrupt or
// tampered blob) is reported as StoreCorrupt; the store is never
// auto-repaired.
func (s *Store) Load(id string) (StoredKey, error) {
	lock, err := lockDir(s.dir, false)
	if err != nil {
		return StoredKey{}, err
	}
	defer lock.unlock()
	return s.loadLocked(id)
}

func (s *Store) loadLocked(id string) (StoredKey, error) {
	path, err := s.blobPath(id)
	if err != nil {
		return StoredKey{}, err
	}
	blob, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return StoredKey{}, pqcerr.New(pqcerr.BadInput, "keystore: no such key id")
	}
	if err != nil {
		return StoredKey{}, pqcerr.Wrap(pqcerr.BadInput, "keystore: read entry blob", err)
	}
	plaintext, err := open(s.masterKey, blob)
	if err != nil {
		return StoredKey{}, pqcerr.Wrap(pqcerr.StoreCorrupt, "keystore: entry failed to decrypt", err)
	}
	var sk StoredKey
	if err := json.Unmarshal(plaintext, &sk); err != nil {
		return StoredKey{}, pqcerr.Wrap(pqcerr.StoreCorrupt, "keystore: entry failed to parse", err)
	}
	return sk, nil
}

// Delete removes one entry. Deleting a nonexistent id is not an error.
func (s *Store) Delete(id string) error {
	lock, err := lockDir(s.dir, true)
	if err != nil {
		return err
	}
	defer lock.unlock()
	path, err := s.blobPath(id)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return pqcerr.Wrap(pqcerr.BadInput, "keystore: delete entry blob", err)
	}
	return nil
}

// List returns metadata for every stored entry. Entries that fail to
// decrypt are skipped rather than failing the whole listing; a host
// that needs to know about corrupt entries should Load each id itself.
func (s *Store) List() ([]Metadata, error) {
	lock, err := lockDir(s.dir, false)
	if err != nil {
		return nil, err
	}
	defer lock.unlock()

	ids, err := s.entryIDsLocked()
	if err != nil {
		return nil, err
	}
	out := make([]Metadata, 0, len(ids))
	for _, id := range ids {
		sk, err := s.loadLocked(id)
		if err != nil {
			continue
		}
		out = append(out, Metadata{KeyID: sk.KeyID, Algorithm: sk.Algorithm, CreatedAt: sk.CreatedAt, Metadata: sk.Metadata})
	}
	return out, nil
}

func (s *Store) entryIDsLocked() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, pqcerr.Wrap(pqcerr.BadInput, "keystore: read store directory", err)
	}
	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || name == masterBlobName || name == lockFileName || !strings.HasSuffix(name, blobExt) {
			continue
		}
		ids = append(ids, strings.TrimSuffix(name, blobExt))
	}
	return ids, nil
}

// Rotate generates a fresh keypair of the same algorithm as id's
// current entry, stores it alongside the old one, and returns the new
// id. The old entry is left untouched.
func (s *Store) Rotate(id string) (string, error) {
	lock, err := lockDir(s.dir, true)
	if err != nil {
		return "", err
	}
	defer lock.unlock()

	existing, err := s.loadLocked(id)
	if err != nil {
		return "", err
	}
	alg, err := kem.ParseAlg(existing.Algorithm)
	if err != nil {
		return "", err
	}

	pub, sec, err := hybrid.GenerateKeypair(alg)
	if err != nil {
		return "", err
	}
	defer sec.Zeroize()

	newID := id + "_rotated_" + strconv.FormatInt(time.Now().UnixNano(), 10)
	newEntry := StoredKey{
		KeyID:       newID,
		Algorithm:   existing.Algorithm,
		ClassicalPK: pub.ClassicalPK,
		PQCPK:       pub.PQCPK,
		ClassicalSK: sec.ClassicalSK,
		PQCSK:       sec.PQCSK,
		CreatedAt:   time.Now(),
		Metadata:    map[string]string{"rotated_from": id},
	}
	if err := s.storeLocked(newEntry); err != nil {
		return "", err
	}
	return newID, nil
}

// Fingerprint returns the hex SHA-256 digest of id's public key
// material, for out-of-band comparison between peers.
func (s *Store) Fingerprint(id string) (string, error) {
	lock, err := lockDir(s.dir, false)
	if err != nil {
		return "", err
	}
	defer lock.unlock()

	sk, err := s.loadLocked(id)
	if err != nil {
		return "", err
	}
	h := sha256.New()
	h.Write(sk.ClassicalPK)
	h.Write(sk.PQCPK)
	return hex.EncodeToString(h.Sum(nil)), nil
}

// ExportPublicKey returns id's public key in the same self-describing
// wire shape used to hand a HybridPublicKey to a peer, for out-of-band
// exchange (peer authentication itself stays out of scope).
func (s *Store) ExportPublicKey(id string) ([]byte, error) {
	lock, err := lockDir(s.dir, false)
	if err != nil {
		return nil, err
	}
	defer lock.unlock()

	sk, err := s.loadLocked(id)
	if err != nil {
		return nil, err
	}
	pub, err := sk.PublicKey()
	if err != nil {
		return nil, err
	}
	return pub.MarshalBinary()
}

// Prune deletes every entry older than maxAge and reports how many it
// removed.
func (s *Store) Prune(maxAge time.Duration) (int, error) {
	lock, err := lockDir(s.dir, true)
	if err != nil {
		return 0, err
	}
	defer lock.unlock()

	ids, err := s.entryIDsLocked()
	if err != nil {
		return 0, err
	}
	now := time.Now()
	deleted := 0
	for _, id := range ids {
		sk, err := s.loadLocked(id)
		if err != nil {
			continue
		}
		if now.Sub(sk.CreatedAt) > maxAge {
			path, err := s.blobPath(id)
			if err != nil {
				return deleted, err
			}
			if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
				return deleted, pqcerr.Wrap(pqcerr.BadInput, fmt.Sprintf("keystore: prune %s", id), err)
			}
			deleted++
		}
	}
	return deleted, nil
}
