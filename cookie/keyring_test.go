package cookie

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
)

func TestNewKeyringRejectsShortSecret(t *testing.T) {
	_, err := NewKeyring(bytes.Repeat([]byte("k"), MinMasterSecretSize-1))
	if !errors.Is(err, ErrMasterSecretTooShort) {
		t.Fatalf("expected ErrMasterSecretTooShort, got %v", err)
	}
}

func TestKeyringIsDeterministic(t *testing.T) {
	first := testKeyring(t)
	second := testKeyring(t)
	ts := time.Unix(1700000000, 0).UTC()

	for _, f := range []Format{FormatLegacy, FormatStructured} {
		c, err := Seal(&Payload{Identity: "alice", LoginTimestamp: &ts}, first, f, testAttrs("user"))
		if err != nil {
			t.Fatalf("Seal(%s) error: %v", f, err)
		}
		out, got, err := Open(c.Value, second, "user", true)
		if err != nil {
			t.Fatalf("Open(%s) with rebuilt keyring error: %v", f, err)
		}
		if got != f || out.Identity != "alice" {
			t.Fatalf("unexpected result for %s: format=%s payload=%+v", f, got, out)
		}
	}
}

func TestKeyringGenerationsAreDistinct(t *testing.T) {
	kr := testKeyring(t)

	// A structured value must never authenticate under the legacy generation and vice versa.
	legacy, err := Seal(&Payload{Identity: "alice"}, kr, FormatLegacy, testAttrs("user"))
	if err != nil {
		t.Fatalf("Seal error: %v", err)
	}
	if _, err := openStructured(kr, "user", legacy.Value); err == nil {
		t.Fatal("legacy value opened under the current generation")
	}

	structured, err := Seal(&Payload{Identity: "alice"}, kr, FormatStructured, testAttrs("user"))
	if err != nil {
		t.Fatalf("Seal error: %v", err)
	}
	if _, err := openLegacy(kr, "user", structured.Value); err == nil {
		t.Fatal("structured value opened under the legacy generation")
	}
}

func TestKeyringRedactsFormatting(t *testing.T) {
	master := []byte(strings.Repeat("super-secret-master!", 2))
	kr, err := NewKeyring(master)
	if err != nil {
		t.Fatalf("NewKeyring error: %v", err)
	}

	for _, out := range []string{fmt.Sprint(kr), fmt.Sprintf("%v", kr), fmt.Sprintf("%#v", kr)} {
		if strings.Contains(out, "super-secret") {
			t.Fatalf("formatted keyring leaks secret: %s", out)
		}
		if out != "cookie.Keyring{redacted}" {
			t.Fatalf("unexpected formatted keyring: %s", out)
		}
	}
}
