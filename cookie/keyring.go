package cookie

import (
	"crypto/cipher"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"github.com/gorilla/securecookie"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

// MinMasterSecretSize is the smallest master secret accepted by [NewKeyring].
const MinMasterSecretSize = 32

const (
	subKeySize   = 32
	hkdfInfo     = "gosession cookie keyring"
	legacyLabel  = "legacy"
	currentLabel = "current"
)

// currentGenerationSuffix is appended to the master secret before deriving the current
// generation, so both generations are reproducible from the master secret alone.
var currentGenerationSuffix = []byte{1, 0, 0, 0}

// ErrMasterSecretTooShort is returned by [NewKeyring] for secrets under [MinMasterSecretSize].
var ErrMasterSecretTooShort = errors.New("cookie: master secret must be at least 32 bytes")

// Keyring holds the legacy and current key generations derived from one master secret.
//
// A Keyring is immutable after construction and safe for concurrent use.
type Keyring struct {
	legacy  *securecookie.SecureCookie
	current cipher.AEAD
}

// NewKeyring derives both key generations from master. The master slice is not retained.
func NewKeyring(master []byte) (*Keyring, error) {
	if len(master) < MinMasterSecretSize {
		return nil, ErrMasterSecretTooShort
	}

	legacyHash, legacyBlock, err := deriveLegacy(master)
	if err != nil {
		return nil, err
	}
	sc := securecookie.New(legacyHash, legacyBlock)
	sc.SetSerializer(securecookie.NopEncoder{})
	// Expiry is the session policy's job; the embedded securecookie timestamp is not checked.
	sc.MaxAge(0)

	currentMaterial := make([]byte, 0, len(master)+len(currentGenerationSuffix))
	currentMaterial = append(currentMaterial, master...)
	currentMaterial = append(currentMaterial, currentGenerationSuffix...)
	aeadKey, err := readSubKey(hkdf.New(sha256.New, currentMaterial, nil, []byte(hkdfInfo+" "+currentLabel)))
	if err != nil {
		return nil, err
	}
	aead, err := chacha20poly1305.NewX(aeadKey)
	if err != nil {
		return nil, fmt.Errorf("cookie: init aead: %w", err)
	}

	return &Keyring{legacy: sc, current: aead}, nil
}

func deriveLegacy(master []byte) (hashKey, blockKey []byte, err error) {
	r := hkdf.New(sha256.New, master, nil, []byte(hkdfInfo+" "+legacyLabel))
	if hashKey, err = readSubKey(r); err != nil {
		return nil, nil, err
	}
	if blockKey, err = readSubKey(r); err != nil {
		return nil, nil, err
	}
	return hashKey, blockKey, nil
}

func readSubKey(r io.Reader) ([]byte, error) {
	b := make([]byte, subKeySize)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, fmt.Errorf("cookie: read from hkdf: %w", err)
	}
	return b, nil
}

// String never reveals key material.
func (k *Keyring) String() string {
	return "cookie.Keyring{redacted}"
}

// GoString keeps %#v from dumping key material.
func (k *Keyring) GoString() string {
	return k.String()
}
