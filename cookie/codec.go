package cookie

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/crypto/chacha20poly1305"
)

// Format selects how a payload is framed and which key generation seals it.
type Format uint8

const (
	// FormatLegacy is the bare-identity encoding sealed with the legacy key generation.
	FormatLegacy Format = iota
	// FormatStructured is the versioned JSON record sealed with the current key generation.
	FormatStructured
)

func (f Format) String() string {
	switch f {
	case FormatLegacy:
		return "legacy"
	case FormatStructured:
		return "structured"
	default:
		return fmt.Sprintf("Format(%d)", uint8(f))
	}
}

// structuredVersion is the first byte of every structured value and part of its associated data.
const structuredVersion byte = 2

var (
	// ErrMissing is returned by [Open] for an empty cookie value.
	ErrMissing = errors.New("cookie: no value")
	// ErrMalformed is returned when a value cannot be framed or parsed.
	ErrMalformed = errors.New("cookie: malformed value")
	// ErrInvalid is returned when a value fails authentication under every tried key.
	ErrInvalid = errors.New("cookie: authentication failed")
	// ErrEmptyIdentity is returned by [Seal] for a payload without an identity.
	ErrEmptyIdentity = errors.New("cookie: empty identity")
	// ErrUnknownFormat is returned for a Format outside the declared constants.
	ErrUnknownFormat = errors.New("cookie: unknown format")
)

// Payload is the data sealed into an identity cookie.
//
// Identity is the durable username, never a numeric id. The timestamps are only present when
// the owning policy configures the matching deadline, and only survive [FormatStructured].
type Payload struct {
	Identity       string
	LoginTimestamp *time.Time
	VisitTimestamp *time.Time
}

type record struct {
	Identity       string     `json:"identity"`
	LoginTimestamp *time.Time `json:"login_timestamp,omitempty"`
	VisitTimestamp *time.Time `json:"visit_timestamp,omitempty"`
}

// Attributes are the cookie attributes applied by [Seal] and [Clear]. HttpOnly is always set.
type Attributes struct {
	Name     string
	Path     string
	Domain   string
	Secure   bool
	SameSite http.SameSite
	// MaxAge is rounded down to whole seconds; zero leaves Max-Age unset (browser session).
	MaxAge time.Duration
}

func (a Attributes) cookie(value string) *http.Cookie {
	c := &http.Cookie{
		Name:     a.Name,
		Value:    value,
		Path:     a.Path,
		Domain:   a.Domain,
		Secure:   a.Secure,
		HttpOnly: true,
		SameSite: a.SameSite,
	}
	if a.MaxAge > 0 {
		c.MaxAge = int(a.MaxAge / time.Second)
		if c.MaxAge == 0 {
			c.MaxAge = 1
		}
	}
	return c
}

// Seal encodes p in format f, seals it with the matching key generation and returns the cookie
// to attach to a response. A nil payload produces the clearing cookie returned by [Clear].
func Seal(p *Payload, kr *Keyring, f Format, attrs Attributes) (*http.Cookie, error) {
	if p == nil {
		return Clear(attrs), nil
	}
	if kr == nil {
		return nil, errors.New("cookie: nil keyring")
	}
	if p.Identity == "" {
		return nil, ErrEmptyIdentity
	}

	var (
		value string
		err   error
	)
	switch f {
	case FormatLegacy:
		value, err = kr.legacy.Encode(attrs.Name, []byte(p.Identity))
	case FormatStructured:
		value, err = sealStructured(kr, attrs.Name, p)
	default:
		return nil, ErrUnknownFormat
	}
	if err != nil {
		return nil, fmt.Errorf("cookie: seal %s: %w", f, err)
	}

	return attrs.cookie(value), nil
}

// Clear returns a cookie that instructs the client to drop the named cookie immediately.
func Clear(attrs Attributes) *http.Cookie {
	c := attrs.cookie("")
	c.MaxAge = -1
	c.Expires = time.Unix(0, 0).UTC()
	return c
}

// Open authenticates and decodes value for the cookie called name.
//
// With legacyFirst the legacy generation is tried before the structured one; otherwise only
// the structured generation is accepted. The returned Format reports which generation matched.
// Errors are for diagnostics; callers must treat every failure as "no identity".
func Open(value string, kr *Keyring, name string, legacyFirst bool) (Payload, Format, error) {
	if value == "" {
		return Payload{}, FormatStructured, ErrMissing
	}
	if kr == nil {
		return Payload{}, FormatStructured, errors.New("cookie: nil keyring")
	}

	if legacyFirst {
		if p, err := openLegacy(kr, name, value); err == nil {
			return p, FormatLegacy, nil
		}
	}

	p, err := openStructured(kr, name, value)
	if err != nil {
		return Payload{}, FormatStructured, err
	}
	return p, FormatStructured, nil
}

func openLegacy(kr *Keyring, name, value string) (Payload, error) {
	// securecookie decodes leniently; reject non-canonical base64 so no two wire values map to
	// the same sealed bytes.
	if _, err := base64.URLEncoding.Strict().DecodeString(value); err != nil {
		return Payload{}, ErrMalformed
	}

	var identity []byte
	if err := kr.legacy.Decode(name, value, &identity); err != nil {
		return Payload{}, ErrInvalid
	}
	if len(identity) == 0 {
		return Payload{}, ErrMalformed
	}

	return Payload{Identity: string(identity)}, nil
}

func sealStructured(kr *Keyring, name string, p *Payload) (string, error) {
	plaintext, err := json.Marshal(record{
		Identity:       p.Identity,
		LoginTimestamp: p.LoginTimestamp,
		VisitTimestamp: p.VisitTimestamp,
	})
	if err != nil {
		return "", err
	}

	nonce := make([]byte, chacha20poly1305.NonceSizeX)
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}

	buf := make([]byte, 0, 1+len(nonce)+len(plaintext)+kr.current.Overhead())
	buf = append(buf, structuredVersion)
	buf = append(buf, nonce...)
	buf = kr.current.Seal(buf, nonce, plaintext, associatedData(structuredVersion, name))

	return base64.RawURLEncoding.EncodeToString(buf), nil
}

func openStructured(kr *Keyring, name, value string) (Payload, error) {
	raw, err := base64.RawURLEncoding.Strict().DecodeString(value)
	if err != nil {
		return Payload{}, ErrMalformed
	}
	if len(raw) < 1+chacha20poly1305.NonceSizeX+kr.current.Overhead() {
		return Payload{}, ErrMalformed
	}
	if raw[0] != structuredVersion {
		return Payload{}, ErrInvalid
	}

	nonce := raw[1 : 1+chacha20poly1305.NonceSizeX]
	ciphertext := raw[1+chacha20poly1305.NonceSizeX:]
	plaintext, err := kr.current.Open(nil, nonce, ciphertext, associatedData(raw[0], name))
	if err != nil {
		return Payload{}, ErrInvalid
	}

	var rec record
	if err := json.Unmarshal(plaintext, &rec); err != nil {
		return Payload{}, ErrMalformed
	}
	if rec.Identity == "" {
		return Payload{}, ErrMalformed
	}

	return Payload{
		Identity:       rec.Identity,
		LoginTimestamp: rec.LoginTimestamp,
		VisitTimestamp: rec.VisitTimestamp,
	}, nil
}

func associatedData(version byte, name string) []byte {
	ad := make([]byte, 0, 1+len(name))
	ad = append(ad, version)
	return append(ad, name...)
}
