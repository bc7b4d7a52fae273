// Package drift notices when the portal's markup stops matching the field
// table: either most fields come back null, or the page layout fingerprint of
// a host moves far from the last one seen.
package drift

import (
	"context"
	"log/slog"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/use-agent/listingd/models"
)

// Drift reasons.
const (
	ReasonNullMajority     = "null_majority"
	ReasonStructureChanged = "structure_changed"
)

// Report describes one drift detection.
type Report struct {
	Host         string    `json:"host"`
	URL          string    `json:"url"`
	TableVersion string    `json:"table_version"`
	Reasons      []string  `json:"reasons"`
	NullFields   []string  `json:"null_fields"`
	NullRatio    float64   `json:"null_ratio"`
	Distance     int       `json:"distance,omitempty"`
	DetectedAt   time.Time `json:"detected_at"`
}

// Notifier receives drift reports. Implementations must not block.
type Notifier interface {
	Notify(ctx context.Context, r *Report)
}

// Options tunes the detector.
type Options struct {
	// NullRatio is the fraction of null fields above which a result is flagged.
	NullRatio float64 // default: 0.5
	// MaxDistance is the Hamming distance between layout fingerprints above
	// which a host's structure counts as changed.
	MaxDistance int // default: 12
}

type hostState struct {
	fingerprint uint64
	tableVer    string
	updated     time.Time
}

// Detector tracks per-host layout fingerprints. It is safe for concurrent use.
type Detector struct {
	opts     Options
	notifier Notifier

	mu    sync.Mutex
	hosts map[string]*hostState
}

// NewDetector creates a Detector. notifier may be nil.
func NewDetector(opts Options, notifier Notifier) *Detector {
	if opts.NullRatio <= 0 {
		opts.NullRatio = 0.5
	}
	if opts.MaxDistance <= 0 {
		opts.MaxDistance = 12
	}
	return &Detector{opts: opts, notifier: notifier, hosts: make(map[string]*hostState)}
}

// Observe checks one successful extraction and returns a report when drift
// is detected, or nil. Reports are logged and passed to the notifier.
func (d *Detector) Observe(ctx context.Context, res *models.ExtractResult) *Report {
	if res == nil || len(res.Values) == 0 {
		return nil
	}
	host := hostOf(res.RedirectedURL)
	if host == "" {
		host = hostOf(res.SubmittedURL)
	}

	r := &Report{
		Host:         host,
		URL:          res.SubmittedURL,
		TableVersion: res.TableVersion,
		DetectedAt:   time.Now(),
	}
	for name, v := range res.Values {
		if v == nil {
			r.NullFields = append(r.NullFields, name)
		}
	}
	sort.Strings(r.NullFields)
	r.NullRatio = float64(len(r.NullFields)) / float64(len(res.Values))
	if r.NullRatio > d.opts.NullRatio {
		r.Reasons = append(r.Reasons, ReasonNullMajority)
	}

	if fp := Structure(res.PageHTML); fp != 0 && host != "" {
		if dist, changed := d.compare(host, res.TableVersion, fp); changed {
			r.Distance = dist
			r.Reasons = append(r.Reasons, ReasonStructureChanged)
		}
	}

	if len(r.Reasons) == 0 {
		return nil
	}
	slog.Warn("drift: field table may be out of date",
		"host", r.Host,
		"url", r.URL,
		"reasons", strings.Join(r.Reasons, ","),
		"null_fields", r.NullFields,
		"null_ratio", r.NullRatio,
		"distance", r.Distance,
		"table_version", r.TableVersion,
	)
	if d.notifier != nil {
		d.notifier.Notify(ctx, r)
	}
	return r
}

// compare records fp as the host's latest layout and reports the distance to
// the previous one. A new table version resets the baseline.
func (d *Detector) compare(host, tableVer string, fp uint64) (int, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	st, ok := d.hosts[host]
	if !ok || st.tableVer != tableVer {
		d.hosts[host] = &hostState{fingerprint: fp, tableVer: tableVer, updated: time.Now()}
		return 0, false
	}
	dist := Distance(st.fingerprint, fp)
	st.fingerprint = fp
	st.updated = time.Now()
	return dist, dist > d.opts.MaxDistance
}

// Hosts returns the number of hosts with a recorded baseline.
func (d *Detector) Hosts() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.hosts)
}

func hostOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}
