package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"golang.org/x/crypto/argon2"
)

const (
	minMemoryKB    uint32 = 8 * 1024
	minIterations  uint32 = 1
	minThreads     uint8  = 1
	minSaltLength  uint32 = 16
	minKeyLength   uint32 = 16
	algorithmID           = "argon2id"
	defaultMaxSize        = 1024
)

var (
	// ErrMismatch is returned by [Hasher.Compare] when the password does not match.
	ErrMismatch = errors.New("password does not match")
	// ErrMalformedHash is returned for stored hashes that are not Argon2id PHC strings.
	ErrMalformedHash = errors.New("malformed password hash")
	// ErrTooShort is returned by [Hasher.Hash] for passwords under Params.MinLength bytes.
	ErrTooShort = errors.New("password too short")
	// ErrTooLong is returned for passwords over Params.MaxLength bytes.
	ErrTooLong = errors.New("password too long")
)

// Params are the Argon2id cost parameters and password length bounds.
type Params struct {
	Memory     uint32 `mapstructure:"memory"`
	Iterations uint32 `mapstructure:"iterations"`
	Threads    uint8  `mapstructure:"threads"`
	SaltLength uint32 `mapstructure:"salt_length"`
	KeyLength  uint32 `mapstructure:"key_length"`
	MinLength  int    `mapstructure:"min_length"`
	MaxLength  int    `mapstructure:"max_length"`
}

// DefaultParams returns the RFC 9106 second recommended option (64 MiB, 3 passes).
func DefaultParams() Params {
	return Params{
		Memory:     64 * 1024,
		Iterations: 3,
		Threads:    2,
		SaltLength: 16,
		KeyLength:  32,
		MinLength:  8,
		MaxLength:  defaultMaxSize,
	}
}

// Validate rejects parameters below the package minimums.
func (p Params) Validate() error {
	switch {
	case p.Memory < minMemoryKB:
		return fmt.Errorf("password: memory must be >= %d KiB", minMemoryKB)
	case p.Iterations < minIterations:
		return errors.New("password: iterations must be >= 1")
	case p.Threads < minThreads:
		return errors.New("password: threads must be >= 1")
	case p.SaltLength < minSaltLength:
		return fmt.Errorf("password: salt length must be >= %d", minSaltLength)
	case p.KeyLength < minKeyLength:
		return fmt.Errorf("password: key length must be >= %d", minKeyLength)
	case p.MinLength < 0:
		return errors.New("password: min length must be >= 0")
	case p.MaxLength <= 0 || p.MaxLength < p.MinLength:
		return errors.New("password: max length must be positive and >= min length")
	}
	return nil
}

// Hasher produces and checks Argon2id hashes. It is safe for concurrent use.
type Hasher struct {
	params Params
	// dummy is compared against when there is no stored hash so unknown usernames cost the
	// same as wrong passwords.
	dummy *phc
}

type phc struct {
	memory     uint32
	iterations uint32
	threads    uint8
	salt       []byte
	key        []byte
}

// NewHasher validates p and returns a Hasher.
func NewHasher(p Params) (*Hasher, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	salt := make([]byte, p.SaltLength)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, err
	}
	return &Hasher{
		params: p,
		dummy: &phc{
			memory:     p.Memory,
			iterations: p.Iterations,
			threads:    p.Threads,
			salt:       salt,
			key:        make([]byte, p.KeyLength),
		},
	}, nil
}

// Params returns the hasher's parameters.
func (h *Hasher) Params() Params { return h.params }

// Hash returns a PHC string for plain.
func (h *Hasher) Hash(plain string) (string, error) {
	if len(plain) < h.params.MinLength {
		return "", ErrTooShort
	}
	if len(plain) > h.params.MaxLength {
		return "", ErrTooLong
	}

	salt := make([]byte, h.params.SaltLength)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", err
	}
	p := &phc{
		memory:     h.params.Memory,
		iterations: h.params.Iterations,
		threads:    h.params.Threads,
		salt:       salt,
	}
	p.key = p.derive(plain, h.params.KeyLength)
	return p.String(), nil
}

// Compare returns nil when plain matches encoded, [ErrMismatch] when it does not, and
// [ErrMalformedHash] when encoded cannot be parsed. An empty encoded hash is compared
// against a dummy so the call takes the same time as a real mismatch.
func (h *Hasher) Compare(encoded, plain string) error {
	if len(plain) > h.params.MaxLength {
		return ErrTooLong
	}
	if encoded == "" {
		h.dummy.matches(plain)
		return ErrMismatch
	}
	p, err := parsePHC(encoded)
	if err != nil {
		return err
	}
	if !p.matches(plain) {
		return ErrMismatch
	}
	return nil
}

// NeedsRehash reports whether encoded was produced with weaker parameters than h uses.
func (h *Hasher) NeedsRehash(encoded string) (bool, error) {
	p, err := parsePHC(encoded)
	if err != nil {
		return false, err
	}
	return p.memory < h.params.Memory ||
		p.iterations < h.params.Iterations ||
		p.threads < h.params.Threads ||
		uint32(len(p.key)) != h.params.KeyLength, nil
}

func (p *phc) derive(plain string, keyLen uint32) []byte {
	return argon2.IDKey([]byte(plain), p.salt, p.iterations, p.memory, p.threads, keyLen)
}

func (p *phc) matches(plain string) bool {
	computed := p.derive(plain, uint32(len(p.key)))
	return subtle.ConstantTimeCompare(computed, p.key) == 1
}

func (p *phc) String() string {
	return fmt.Sprintf("$%s$v=%d$m=%d,t=%d,p=%d$%s$%s",
		algorithmID,
		argon2.Version,
		p.memory,
		p.iterations,
		p.threads,
		base64.RawStdEncoding.EncodeToString(p.salt),
		base64.RawStdEncoding.EncodeToString(p.key),
	)
}

func parsePHC(encoded string) (*phc, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != "" || parts[1] != algorithmID {
		return nil, ErrMalformedHash
	}
	if parts[2] != "v="+strconv.Itoa(argon2.Version) {
		return nil, fmt.Errorf("%w: unsupported version %q", ErrMalformedHash, parts[2])
	}

	p := &phc{}
	var seen int
	for _, pair := range strings.Split(parts[3], ",") {
		k, v, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, ErrMalformedHash
		}
		switch k {
		case "m":
			n, err := strconv.ParseUint(v, 10, 32)
			if err != nil || uint32(n) < minMemoryKB {
				return nil, fmt.Errorf("%w: memory", ErrMalformedHash)
			}
			p.memory = uint32(n)
		case "t":
			n, err := strconv.ParseUint(v, 10, 32)
			if err != nil || uint32(n) < minIterations {
				return nil, fmt.Errorf("%w: iterations", ErrMalformedHash)
			}
			p.iterations = uint32(n)
		case "p":
			n, err := strconv.ParseUint(v, 10, 8)
			if err != nil || uint8(n) < minThreads {
				return nil, fmt.Errorf("%w: threads", ErrMalformedHash)
			}
			p.threads = uint8(n)
		default:
			return nil, fmt.Errorf("%w: unknown parameter %q", ErrMalformedHash, k)
		}
		seen++
	}
	if seen != 3 {
		return nil, fmt.Errorf("%w: missing parameters", ErrMalformedHash)
	}

	var err error
	if p.salt, err = decodeSegment(parts[4]); err != nil || len(p.salt) < int(minSaltLength) {
		return nil, fmt.Errorf("%w: salt", ErrMalformedHash)
	}
	if p.key, err = decodeSegment(parts[5]); err != nil || len(p.key) < int(minKeyLength) {
		return nil, fmt.Errorf("%w: key", ErrMalformedHash)
	}
	return p, nil
}

// decodeSegment accepts padded and unpadded base64.
func decodeSegment(s string) ([]byte, error) {
	return base64.RawStdEncoding.DecodeString(strings.TrimRight(s, "="))
}
