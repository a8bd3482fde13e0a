package internaldefs

import (
	goSession "github.com/MrEthical07/goSession"
)

// Def names one engine metric.
type Def struct {
	ID   goSession.MetricID
	Name string
	Help string
}

const (
	// AuditDroppedName is the counter fed by Engine.AuditDropped.
	AuditDroppedName = "gosession_audit_dropped_total"
	// AuditDroppedHelp describes AuditDroppedName.
	AuditDroppedHelp = "Audit events dropped under dispatcher backpressure."
)

var CounterDefs = []Def{
	{ID: goSession.MetricSessionDecoded, Name: "gosession_session_decoded_total", Help: "Session cookies that opened and passed their namespace policy."},
	{ID: goSession.MetricSessionMissing, Name: "gosession_session_missing_total", Help: "Requests without the namespace cookie."},
	{ID: goSession.MetricSessionRejected, Name: "gosession_session_rejected_total", Help: "Session cookies rejected as forged or malformed."},
	{ID: goSession.MetricSessionExpired, Name: "gosession_session_expired_total", Help: "Session cookies past their login or visit deadline."},
	{ID: goSession.MetricLegacyDecoded, Name: "gosession_legacy_decoded_total", Help: "Session cookies accepted in the legacy format."},
	{ID: goSession.MetricUserNotFound, Name: "gosession_user_not_found_total", Help: "Valid cookies naming an unknown user."},
	{ID: goSession.MetricStoreUnavailable, Name: "gosession_store_unavailable_total", Help: "Identity store lookups that failed."},
	{ID: goSession.MetricRoleDenied, Name: "gosession_role_denied_total", Help: "Hydrated users refused by a namespace role gate."},
	{ID: goSession.MetricLogin, Name: "gosession_login_total", Help: "Identity cookies minted at login."},
	{ID: goSession.MetricLogout, Name: "gosession_logout_total", Help: "Clearing cookies written at logout."},
	{ID: goSession.MetricSessionRefreshed, Name: "gosession_session_refreshed_total", Help: "Visit timestamp refreshes."},
	{ID: goSession.MetricSealFailure, Name: "gosession_seal_failure_total", Help: "Cookies that could not be sealed."},
}

var HistogramDefs = []Def{
	{ID: goSession.MetricHydrateLatency, Name: "gosession_hydrate_latency_seconds", Help: "Cookie decode plus identity store lookup latency."},
}

// HistogramBounds are the "le" labels matching the engine's bucket layout.
var HistogramBounds = []string{
	"0.001",
	"0.0025",
	"0.005",
	"0.01",
	"0.025",
	"0.05",
	"0.1",
	"+Inf",
}

// HistogramBoundSuffix spells HistogramBounds in instrument-name-safe form.
var HistogramBoundSuffix = []string{
	"0_001",
	"0_0025",
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"inf",
}

// BucketCount is the number of buckets every histogram carries.
const BucketCount = 8

// Cumulative pads or truncates raw to BucketCount and returns running totals.
func Cumulative(raw []uint64) [BucketCount]uint64 {
	var out [BucketCount]uint64
	var running uint64
	for i := range out {
		if i < len(raw) {
			running += raw[i]
		}
		out[i] = running
	}
	return out
}
