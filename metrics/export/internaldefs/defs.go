package internaldefs

import (
	goRotate "github.com/MrEthical07/goRotate"
)

// CounterDef names one engine counter for exporters.
type CounterDef struct {
	ID   goRotate.MetricID
	Name string
	Help string
}

// HistogramDef names one engine histogram for exporters.
type HistogramDef struct {
	ID   goRotate.MetricID
	Name string
	Help string
}

var CounterDefs = []CounterDef{
	{ID: goRotate.MetricLoginSuccess, Name: "gorotate_login_success_total", Help: "Token families started by Login."},
	{ID: goRotate.MetricLoginFailure, Name: "gorotate_login_failure_total", Help: "Login calls that failed to persist a family."},
	{ID: goRotate.MetricRefreshSuccess, Name: "gorotate_refresh_success_total", Help: "Successful refresh rotations."},
	{ID: goRotate.MetricRefreshFailure, Name: "gorotate_refresh_failure_total", Help: "Refresh attempts rejected as invalid."},
	{ID: goRotate.MetricRefreshReuseDetected, Name: "gorotate_refresh_reuse_detected_total", Help: "Detected refresh token reuses."},
	{ID: goRotate.MetricRefreshStoreFailure, Name: "gorotate_refresh_store_failure_total", Help: "Refresh attempts that failed on the token store."},
	{ID: goRotate.MetricFamilyRevoked, Name: "gorotate_family_revoked_records_total", Help: "Records revoked by reuse cascades."},
	{ID: goRotate.MetricLogout, Name: "gorotate_logout_total", Help: "Refresh records deleted by Logout."},
	{ID: goRotate.MetricRevokeAll, Name: "gorotate_revoke_all_total", Help: "RevokeAllForUser operations."},
	{ID: goRotate.MetricValidateFailure, Name: "gorotate_validate_failure_total", Help: "Rejected access tokens."},
}

var HistogramDefs = []HistogramDef{
	{ID: goRotate.MetricRefreshLatency, Name: "gorotate_refresh_latency_seconds", Help: "Refresh latency histogram."},
}

// HistogramUpperBounds are the finite bucket bounds in seconds; the last
// engine bucket is +Inf.
var HistogramUpperBounds = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5}

var HistogramBoundSuffix = []string{
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"inf",
}

// NormalizeBuckets copies raw into a fixed-size array, zero-filling when raw
// is short or missing.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets turns per-bucket counts into running totals.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
