package session

import (
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/MrEthical07/goSession/cookie"
	"github.com/google/go-cmp/cmp"
)

var epoch = time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)

func mustBuild(t *testing.T, b *PolicyBuilder) *Policy {
	t.Helper()
	p, err := b.Build()
	if err != nil {
		t.Fatalf("Build error: %v", err)
	}
	return p
}

func TestDefaultPolicyIsLegacyCompatible(t *testing.T) {
	p := mustBuild(t, NewPolicyBuilder())

	if !p.LegacyCompatible() {
		t.Fatal("expected default policy to be legacy compatible")
	}
	if p.RequiresRefresh() {
		t.Fatal("expected default policy to skip refresh")
	}
	if p.Format() != cookie.FormatLegacy {
		t.Fatalf("expected legacy format, got %s", p.Format())
	}

	attrs := p.Attributes()
	want := cookie.Attributes{Name: DefaultName, Path: "/", Secure: true, SameSite: http.SameSiteLaxMode}
	if diff := cmp.Diff(want, attrs); diff != "" {
		t.Fatalf("attributes mismatch (-want +got):\n%s", diff)
	}
}

func TestDeadlinesSelectStructuredFormat(t *testing.T) {
	login := mustBuild(t, NewPolicyBuilder().LoginDeadline(time.Hour))
	if login.LegacyCompatible() || login.RequiresRefresh() || login.Format() != cookie.FormatStructured {
		t.Fatal("login-deadline policy must be structured without refresh")
	}

	visit := mustBuild(t, NewPolicyBuilder().VisitDeadline(time.Minute))
	if visit.LegacyCompatible() || !visit.RequiresRefresh() || visit.Format() != cookie.FormatStructured {
		t.Fatal("visit-deadline policy must be structured with refresh")
	}
}

func TestBuildRejectsBadOptions(t *testing.T) {
	cases := map[string]*PolicyBuilder{
		"empty name":       NewPolicyBuilder().Name(""),
		"bad name":         NewPolicyBuilder().Name("bad name;"),
		"negative max age": NewPolicyBuilder().MaxAge(-time.Second),
		"negative login":   NewPolicyBuilder().LoginDeadline(-time.Second),
		"negative visit":   NewPolicyBuilder().VisitDeadline(-time.Second),
		"negative leeway":  NewPolicyBuilder().Leeway(-time.Second),
		"none insecure":    NewPolicyBuilder().SameSite(http.SameSiteNoneMode).Secure(false),
	}
	for name, b := range cases {
		if _, err := b.Build(); err == nil {
			t.Fatalf("%s: expected Build error", name)
		}
	}
}

func TestMintSetsOnlyConfiguredTimestamps(t *testing.T) {
	legacy := mustBuild(t, NewPolicyBuilder())
	if got := legacy.Mint("alice", epoch); got.LoginTimestamp != nil || got.VisitTimestamp != nil {
		t.Fatalf("legacy mint must not set timestamps: %+v", got)
	}

	login := mustBuild(t, NewPolicyBuilder().LoginDeadline(time.Hour))
	got := login.Mint("alice", epoch)
	if got.LoginTimestamp == nil || !got.LoginTimestamp.Equal(epoch) || got.VisitTimestamp != nil {
		t.Fatalf("unexpected login-only payload: %+v", got)
	}

	both := mustBuild(t, NewPolicyBuilder().LoginDeadline(time.Hour).VisitDeadline(time.Minute))
	got = both.Mint("alice", epoch)
	if got.LoginTimestamp == nil || got.VisitTimestamp == nil {
		t.Fatalf("expected both timestamps: %+v", got)
	}
	if got.LoginTimestamp == got.VisitTimestamp {
		t.Fatal("timestamps must not alias")
	}
}

func TestRefreshCarriesLoginTimestamp(t *testing.T) {
	p := mustBuild(t, NewPolicyBuilder().LoginDeadline(time.Hour).VisitDeadline(10*time.Minute))
	prev := p.Mint("alice", epoch)

	later := epoch.Add(7 * time.Minute)
	next := p.Refresh(prev, later)
	if next.Identity != "alice" {
		t.Fatalf("unexpected identity %q", next.Identity)
	}
	if !next.LoginTimestamp.Equal(epoch) {
		t.Fatalf("login timestamp moved: %v", next.LoginTimestamp)
	}
	if !next.VisitTimestamp.Equal(later) {
		t.Fatalf("visit timestamp not refreshed: %v", next.VisitTimestamp)
	}
	if !p.Validate(next, epoch.Add(16*time.Minute)) {
		t.Fatal("refreshed payload should extend the visit window")
	}
}

func TestCheckLoginDeadlineBoundary(t *testing.T) {
	const deadline = 30 * time.Minute
	p := mustBuild(t, NewPolicyBuilder().LoginDeadline(deadline))
	payload := p.Mint("alice", epoch)

	if err := p.Check(payload, epoch.Add(deadline-time.Second)); err != nil {
		t.Fatalf("D-1s: unexpected error %v", err)
	}
	if err := p.Check(payload, epoch.Add(deadline)); err != nil {
		t.Fatalf("exactly D: unexpected error %v", err)
	}
	if err := p.Check(payload, epoch.Add(deadline+time.Second)); !errors.Is(err, ErrLoginExpired) {
		t.Fatalf("D+1s: expected ErrLoginExpired, got %v", err)
	}
}

func TestCheckVisitDeadlineBoundary(t *testing.T) {
	const deadline = 5 * time.Minute
	p := mustBuild(t, NewPolicyBuilder().VisitDeadline(deadline))
	payload := p.Mint("alice", epoch)

	if !p.Validate(payload, epoch.Add(deadline-time.Second)) {
		t.Fatal("D-1s: expected valid")
	}
	if err := p.Check(payload, epoch.Add(deadline+time.Second)); !errors.Is(err, ErrVisitExpired) {
		t.Fatalf("D+1s: expected ErrVisitExpired, got %v", err)
	}
}

func TestCheckMissingTimestamp(t *testing.T) {
	p := mustBuild(t, NewPolicyBuilder().LoginDeadline(time.Hour))

	if err := p.Check(cookie.Payload{Identity: "alice"}, epoch); !errors.Is(err, ErrTimestampMissing) {
		t.Fatalf("expected ErrTimestampMissing, got %v", err)
	}
}

func TestCheckFutureTimestamp(t *testing.T) {
	strict := mustBuild(t, NewPolicyBuilder().LoginDeadline(time.Hour))
	payload := strict.Mint("alice", epoch.Add(2*time.Second))

	if err := strict.Check(payload, epoch); !errors.Is(err, ErrTimestampInFuture) {
		t.Fatalf("expected ErrTimestampInFuture, got %v", err)
	}

	tolerant := mustBuild(t, NewPolicyBuilder().LoginDeadline(time.Hour).Leeway(5*time.Second))
	if err := tolerant.Check(payload, epoch); err != nil {
		t.Fatalf("expected skew within leeway to pass, got %v", err)
	}
}

func TestLegacyPolicyIgnoresTimestamps(t *testing.T) {
	p := mustBuild(t, NewPolicyBuilder())
	old := epoch.Add(-24 * 365 * time.Hour)

	if !p.Validate(cookie.Payload{Identity: "alice", LoginTimestamp: &old}, epoch) {
		t.Fatal("legacy policy must not enforce timestamps")
	}
	if p.Validate(cookie.Payload{}, epoch) {
		t.Fatal("empty identity must be rejected")
	}
}
