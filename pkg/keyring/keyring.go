// Package keyring stores the public GPG keys used to verify repository
// metadata. Trusted and general keys live in separate directories, one
// armored file per key.
package keyring

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/crypto/openpgp"
	"golang.org/x/crypto/openpgp/armor"
	pgperrors "golang.org/x/crypto/openpgp/errors"
	"golang.org/x/crypto/openpgp/packet"

	"pkgbind/internal/log"
)

var (
	ErrKeyNotFound = errors.New("key not found")
	// ErrUnknownKey is returned by Verify when no trusted key issued the
	// signature.
	ErrUnknownKey = errors.New("signed by an unknown key")
)

type PublicKey struct {
	ID          string
	Name        string
	Fingerprint string
	Created     time.Time
	Expires     time.Time // zero when the key never expires
	Path        string
	Trusted     bool

	entity *openpgp.Entity
}

func (k PublicKey) Expired(now time.Time) bool {
	return !k.Expires.IsZero() && now.After(k.Expires)
}

type Keyring struct {
	trustedDir string
	generalDir string
}

func New(dir string) (*Keyring, error) {
	k := &Keyring{
		trustedDir: filepath.Join(dir, "trusted"),
		generalDir: filepath.Join(dir, "general"),
	}
	for _, d := range []string{k.trustedDir, k.generalDir} {
		if err := os.MkdirAll(d, 0755); err != nil {
			return nil, errors.Wrap(err, "create keyring")
		}
	}
	return k, nil
}

func (k *Keyring) dir(trusted bool) string {
	if trusted {
		return k.trustedDir
	}
	return k.generalDir
}

// ReadKeyFile parses an armored or binary public key file.
func ReadKeyFile(path string) ([]PublicKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read key file %s", path)
	}
	keys, err := ParseKeys(data)
	if err != nil {
		return nil, errors.Wrapf(err, "parse key file %s", path)
	}
	for i := range keys {
		keys[i].Path = path
	}
	return keys, nil
}

// ParseKeys parses armored or binary public keys held in memory.
func ParseKeys(data []byte) ([]PublicKey, error) {
	entities, err := readEntities(data)
	if err != nil {
		return nil, err
	}
	keys := make([]PublicKey, 0, len(entities))
	for _, e := range entities {
		keys = append(keys, fromEntity(e))
	}
	return keys, nil
}

func readEntities(data []byte) (openpgp.EntityList, error) {
	entities, err := openpgp.ReadArmoredKeyRing(bytes.NewReader(data))
	if err == nil {
		return entities, nil
	}
	return openpgp.ReadKeyRing(bytes.NewReader(data))
}

func fromEntity(e *openpgp.Entity) PublicKey {
	key := PublicKey{
		ID:          fmt.Sprintf("%016X", e.PrimaryKey.KeyId),
		Fingerprint: fmt.Sprintf("%X", e.PrimaryKey.Fingerprint[:]),
		Created:     e.PrimaryKey.CreationTime,
		entity:      e,
	}

	names := make([]string, 0, len(e.Identities))
	for name := range e.Identities {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		id := e.Identities[name]
		if key.Name == "" || (id.SelfSignature != nil && id.SelfSignature.IsPrimaryId != nil && *id.SelfSignature.IsPrimaryId) {
			key.Name = name
			if id.SelfSignature != nil && id.SelfSignature.KeyLifetimeSecs != nil && *id.SelfSignature.KeyLifetimeSecs > 0 {
				key.Expires = key.Created.Add(time.Duration(*id.SelfSignature.KeyLifetimeSecs) * time.Second)
			}
		}
	}
	return key
}

// Import adds every key of path to the trusted or general keyring.
func (k *Keyring) Import(path string, trusted bool) ([]PublicKey, error) {
	keys, err := ReadKeyFile(path)
	if err != nil {
		return nil, err
	}
	if len(keys) == 0 {
		return nil, errors.Errorf("no public key in %s", path)
	}
	for i := range keys {
		if keys[i], err = k.ImportKey(keys[i], trusted); err != nil {
			return nil, err
		}
	}
	return keys, nil
}

// ImportKey adds the single key to the trusted or general keyring. Other
// keys read from the same file are not touched.
func (k *Keyring) ImportKey(key PublicKey, trusted bool) (PublicKey, error) {
	if key.entity == nil {
		return key, errors.Wrap(ErrKeyNotFound, key.ID)
	}
	dest := filepath.Join(k.dir(trusted), key.ID+".asc")
	if err := writeArmored(dest, key.entity); err != nil {
		return key, err
	}
	key.Path = dest
	key.Trusted = trusted
	log.Logger.Infof("Imported key %s (%s) trusted=%v", key.ID, key.Name, trusted)
	return key, nil
}

func writeArmored(dest string, e *openpgp.Entity) error {
	f, err := os.Create(dest)
	if err != nil {
		return errors.Wrap(err, "store key")
	}
	defer f.Close()

	w, err := armor.Encode(f, openpgp.PublicKeyType, nil)
	if err != nil {
		return errors.Wrap(err, "store key")
	}
	if err := e.Serialize(w); err != nil {
		w.Close()
		return errors.Wrap(err, "serialize key")
	}
	return errors.Wrap(w.Close(), "store key")
}

// Keys lists the trusted or general keys sorted by id.
func (k *Keyring) Keys(trusted bool) ([]PublicKey, error) {
	files, err := filepath.Glob(filepath.Join(k.dir(trusted), "*.asc"))
	if err != nil {
		return nil, err
	}
	sort.Strings(files)

	var keys []PublicKey
	for _, f := range files {
		fileKeys, err := ReadKeyFile(f)
		if err != nil {
			log.Logger.Warnf("Skipping unreadable key %s: %v", f, err)
			continue
		}
		for _, key := range fileKeys {
			key.Trusted = trusted
			keys = append(keys, key)
		}
	}
	return keys, nil
}

// Delete removes the key with id (short or long form).
func (k *Keyring) Delete(id string, trusted bool) error {
	keys, err := k.Keys(trusted)
	if err != nil {
		return err
	}
	for _, key := range keys {
		if matchID(key, id) {
			if err := os.Remove(key.Path); err != nil {
				return errors.Wrapf(err, "delete key %s", id)
			}
			log.Logger.Infof("Deleted key %s trusted=%v", key.ID, trusted)
			return nil
		}
	}
	return errors.Wrap(ErrKeyNotFound, id)
}

// Lookup finds a key by id in either keyring, trusted first.
func (k *Keyring) Lookup(id string) (PublicKey, bool) {
	for _, trusted := range []bool{true, false} {
		keys, _ := k.Keys(trusted)
		for _, key := range keys {
			if matchID(key, id) {
				return key, true
			}
		}
	}
	return PublicKey{}, false
}

func matchID(key PublicKey, id string) bool {
	id = strings.ToUpper(id)
	return id != "" && (key.ID == id || strings.HasSuffix(key.ID, id) || key.Fingerprint == id)
}

// Verify checks a detached signature (armored or binary) of signed
// against the trusted keys and returns the signer. A signature issued by
// a key outside the trusted keyring fails with ErrUnknownKey and the
// returned key carries only the issuer id.
func (k *Keyring) Verify(signed io.ReadSeeker, signature []byte) (PublicKey, error) {
	keys, err := k.Keys(true)
	if err != nil {
		return PublicKey{}, err
	}
	var ring openpgp.EntityList
	for _, key := range keys {
		ring = append(ring, key.entity)
	}

	signer, err := openpgp.CheckArmoredDetachedSignature(ring, signed, bytes.NewReader(signature))
	if err != nil && err != pgperrors.ErrUnknownIssuer {
		if _, seekErr := signed.Seek(0, io.SeekStart); seekErr != nil {
			return PublicKey{}, errors.Wrap(seekErr, "rewind signed data")
		}
		signer, err = openpgp.CheckDetachedSignature(ring, signed, bytes.NewReader(signature))
	}
	if err == pgperrors.ErrUnknownIssuer {
		id := signatureIssuer(signature)
		return PublicKey{ID: id}, errors.Wrap(ErrUnknownKey, id)
	}
	if err != nil {
		return PublicKey{}, errors.Wrap(err, "signature verification failed")
	}
	for _, key := range keys {
		if key.entity == signer {
			return key, nil
		}
	}
	return fromEntity(signer), nil
}

// signatureIssuer returns the key id named by the first signature packet
// or an empty string.
func signatureIssuer(signature []byte) string {
	var r io.Reader = bytes.NewReader(signature)
	if block, err := armor.Decode(bytes.NewReader(signature)); err == nil {
		r = block.Body
	}
	p, err := packet.Read(r)
	if err != nil {
		return ""
	}
	switch sig := p.(type) {
	case *packet.Signature:
		if sig.IssuerKeyId != nil {
			return fmt.Sprintf("%016X", *sig.IssuerKeyId)
		}
	case *packet.SignatureV3:
		return fmt.Sprintf("%016X", sig.IssuerKeyId)
	}
	return ""
}
