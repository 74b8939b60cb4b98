package gate

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Metric names attached to verdicts.
const (
	MetricWidth      = "width"
	MetricHeight     = "height"
	MetricRatio      = "ratio"
	MetricSimilarity = "similarity"
)

// Metrics maps a metric name to its value.
type Metrics map[string]float64

// Verdict is the terminal outcome of one pipeline run. A rejected verdict
// always carries exactly one Reason; Msg is only set for SYSTEM_ERROR.
type Verdict struct {
	OK      bool
	Reason  Reason
	Msg     string
	Metrics Metrics
}

// Accept builds a passing verdict.
func Accept(m Metrics) Verdict {
	return Verdict{OK: true, Metrics: m}
}

// Reject builds a failing verdict for a known rejection reason.
func Reject(r Reason, m Metrics) Verdict {
	return Verdict{Reason: r, Metrics: m}
}

// SystemError converts an unexpected failure into a verdict. Only the error
// text is kept.
func SystemError(err error) Verdict {
	msg := "internal error"
	if err != nil && err.Error() != "" {
		msg = err.Error()
	}
	return Verdict{Reason: ReasonSystemError, Msg: msg}
}

// FromError maps a decode-stage error onto its verdict.
func FromError(err error) Verdict {
	switch {
	case errors.Is(err, ErrNoImage):
		return Reject(ReasonNoImage, nil)
	case errors.Is(err, ErrImageRead):
		return Reject(ReasonImageReadError, nil)
	default:
		return SystemError(err)
	}
}

// MarshalJSON flattens metrics into the top-level object:
// {"ok":false,"reason":"FORMAT_MISMATCH","similarity":0.31}.
func (v Verdict) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(v.Metrics)+3)
	for k, val := range v.Metrics {
		out[k] = val
	}
	out["ok"] = v.OK
	if v.Reason != ReasonNone {
		out["reason"] = string(v.Reason)
	}
	if v.Msg != "" {
		out["msg"] = v.Msg
	}
	return json.Marshal(out)
}

// String is a compact single-line rendering used in logs and CLI output.
func (v Verdict) String() string {
	var b strings.Builder
	if v.OK {
		b.WriteString("ACCEPT")
	} else {
		b.WriteString("REJECT ")
		b.WriteString(string(v.Reason))
	}
	keys := make([]string, 0, len(v.Metrics))
	for k := range v.Metrics {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%g", k, v.Metrics[k])
	}
	if v.Msg != "" {
		fmt.Fprintf(&b, " msg=%q", v.Msg)
	}
	return b.String()
}
