package metrics

import (
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

type requestLabel struct {
	method string
	path   string
	status string
}

// Recorder aggregates in-memory counters for HTTP requests, session lifecycle
// events, video views, engagement activity, and media uploads. It coordinates
// concurrent writers via a RWMutex while exposing atomic gauges for cheap
// reads.
type Recorder struct {
	mu               sync.RWMutex
	requestCount     map[requestLabel]uint64
	requestDuration  map[requestLabel]time.Duration
	sessionEvents    map[string]uint64
	engagementEvents map[string]uint64
	uploadAttempts   map[string]uint64
	uploadFailures   map[string]uint64
	videoViews       atomic.Uint64
	activeSessions   atomic.Int64
}

var defaultRecorder = New()

// New constructs an empty Recorder with initialized backing maps so callers
// can record immediately without additional setup.
func New() *Recorder {
	return &Recorder{
		requestCount:     make(map[requestLabel]uint64),
		requestDuration:  make(map[requestLabel]time.Duration),
		sessionEvents:    make(map[string]uint64),
		engagementEvents: make(map[string]uint64),
		uploadAttempts:   make(map[string]uint64),
		uploadFailures:   make(map[string]uint64),
	}
}

// Default returns the singleton Recorder shared across helper functions for
// packages that do not need a custom instrumentation pipeline.
func Default() *Recorder {
	return defaultRecorder
}

// ObserveRequest normalizes the request label set and accumulates totals for
// request count and cumulative duration by method, normalized path, and
// status code.
func (r *Recorder) ObserveRequest(method, path string, status int, duration time.Duration) {
	label := requestLabel{
		method: strings.ToUpper(method),
		path:   normalizePath(path),
		status: fmt.Sprintf("%d", status),
	}
	r.mu.Lock()
	r.requestCount[label]++
	r.requestDuration[label] += duration
	r.mu.Unlock()
}

// SessionStarted records a login or refresh and bumps the active session
// gauge for logins.
func (r *Recorder) SessionStarted(event string) {
	r.incrementSessionEvent(event)
	if normalizeName(event) == "login" {
		r.activeSessions.Add(1)
	}
}

// SessionEnded records a logout and decrements the active session gauge,
// guarding against negative counts when concurrent updates race.
func (r *Recorder) SessionEnded() {
	r.incrementSessionEvent("logout")
	r.decrementGauge(&r.activeSessions)
}

func (r *Recorder) incrementSessionEvent(event string) {
	normalized := normalizeName(event)
	r.mu.Lock()
	r.sessionEvents[normalized]++
	r.mu.Unlock()
}

// ObserveVideoView counts a served video playback.
func (r *Recorder) ObserveVideoView() {
	r.videoViews.Add(1)
}

// ObserveEngagement records a like, comment, tweet, or subscription event.
func (r *Recorder) ObserveEngagement(event string) {
	normalized := normalizeName(event)
	r.mu.Lock()
	r.engagementEvents[normalized]++
	r.mu.Unlock()
}

// ObserveUploadAttempt records a media upload attempt keyed by kind
// (e.g. "video", "thumbnail", "avatar").
func (r *Recorder) ObserveUploadAttempt(kind string) {
	k := normalizeName(kind)
	r.mu.Lock()
	r.uploadAttempts[k]++
	r.mu.Unlock()
}

// ObserveUploadFailure records a media upload failure keyed by kind.
func (r *Recorder) ObserveUploadFailure(kind string) {
	k := normalizeName(kind)
	r.mu.Lock()
	r.uploadFailures[k]++
	r.mu.Unlock()
}

// ActiveSessions reports the current logged-in session gauge.
func (r *Recorder) ActiveSessions() int64 {
	return r.activeSessions.Load()
}

// VideoViews reports the total number of recorded playbacks.
func (r *Recorder) VideoViews() uint64 {
	return r.videoViews.Load()
}

// SessionCounts returns a copy of the session event counters.
func (r *Recorder) SessionCounts() map[string]uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	counts := make(map[string]uint64, len(r.sessionEvents))
	for event, count := range r.sessionEvents {
		counts[event] = count
	}
	return counts
}

// Reset clears all counters. Intended for tests.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.requestCount = make(map[requestLabel]uint64)
	r.requestDuration = make(map[requestLabel]time.Duration)
	r.sessionEvents = make(map[string]uint64)
	r.engagementEvents = make(map[string]uint64)
	r.uploadAttempts = make(map[string]uint64)
	r.uploadFailures = make(map[string]uint64)
	r.videoViews.Store(0)
	r.activeSessions.Store(0)
}

// Handler exposes the Recorder as an http.Handler that writes Prometheus text
// exposition data with the appropriate content type.
func (r *Recorder) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		r.Write(w)
	})
}

// Write renders the Recorder's metrics in Prometheus text format, sorting
// label sets to provide stable output for scrapes and tests.
func (r *Recorder) Write(w io.Writer) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	requestLabels := r.sortedRequestLabels()
	sessionEvents := sortedKeys(r.sessionEvents)
	engagementEvents := sortedKeys(r.engagementEvents)
	uploadKinds := r.sortedUploadKinds()

	fmt.Fprintln(w, "# HELP cliphive_http_requests_total Total number of HTTP requests processed by the API")
	fmt.Fprintln(w, "# TYPE cliphive_http_requests_total counter")
	for _, label := range requestLabels {
		count := r.requestCount[label]
		fmt.Fprintf(w, "cliphive_http_requests_total{method=\"%s\",path=\"%s\",status=\"%s\"} %d\n", label.method, label.path, label.status, count)
	}

	fmt.Fprintln(w, "# HELP cliphive_http_request_duration_seconds_sum Cumulative duration of HTTP requests in seconds")
	fmt.Fprintln(w, "# TYPE cliphive_http_request_duration_seconds_sum counter")
	for _, label := range requestLabels {
		duration := r.requestDuration[label].Seconds()
		fmt.Fprintf(w, "cliphive_http_request_duration_seconds_sum{method=\"%s\",path=\"%s\",status=\"%s\"} %f\n", label.method, label.path, label.status, duration)
	}

	fmt.Fprintln(w, "# HELP cliphive_http_request_duration_seconds_count Total number of observations for request durations")
	fmt.Fprintln(w, "# TYPE cliphive_http_request_duration_seconds_count counter")
	for _, label := range requestLabels {
		count := r.requestCount[label]
		fmt.Fprintf(w, "cliphive_http_request_duration_seconds_count{method=\"%s\",path=\"%s\",status=\"%s\"} %d\n", label.method, label.path, label.status, count)
	}

	fmt.Fprintln(w, "# HELP cliphive_session_events_total Session lifecycle events by type")
	fmt.Fprintln(w, "# TYPE cliphive_session_events_total counter")
	for _, event := range sessionEvents {
		fmt.Fprintf(w, "cliphive_session_events_total{event=\"%s\"} %d\n", event, r.sessionEvents[event])
	}

	fmt.Fprintln(w, "# HELP cliphive_active_sessions Current number of logged-in sessions")
	fmt.Fprintln(w, "# TYPE cliphive_active_sessions gauge")
	fmt.Fprintf(w, "cliphive_active_sessions %d\n", r.activeSessions.Load())

	fmt.Fprintln(w, "# HELP cliphive_video_views_total Total video playbacks served")
	fmt.Fprintln(w, "# TYPE cliphive_video_views_total counter")
	fmt.Fprintf(w, "cliphive_video_views_total %d\n", r.videoViews.Load())

	fmt.Fprintln(w, "# HELP cliphive_engagement_events_total Engagement events by type")
	fmt.Fprintln(w, "# TYPE cliphive_engagement_events_total counter")
	for _, event := range engagementEvents {
		fmt.Fprintf(w, "cliphive_engagement_events_total{event=\"%s\"} %d\n", event, r.engagementEvents[event])
	}

	fmt.Fprintln(w, "# HELP cliphive_upload_attempts_total Media upload attempts by kind")
	fmt.Fprintln(w, "# TYPE cliphive_upload_attempts_total counter")
	for _, kind := range uploadKinds {
		fmt.Fprintf(w, "cliphive_upload_attempts_total{kind=\"%s\"} %d\n", kind, r.uploadAttempts[kind])
	}

	fmt.Fprintln(w, "# HELP cliphive_upload_failures_total Media upload failures by kind")
	fmt.Fprintln(w, "# TYPE cliphive_upload_failures_total counter")
	for _, kind := range uploadKinds {
		fmt.Fprintf(w, "cliphive_upload_failures_total{kind=\"%s\"} %d\n", kind, r.uploadFailures[kind])
	}
}

func (r *Recorder) sortedRequestLabels() []requestLabel {
	labels := make([]requestLabel, 0, len(r.requestCount))
	for label := range r.requestCount {
		labels = append(labels, label)
	}
	sort.Slice(labels, func(i, j int) bool {
		if labels[i].path != labels[j].path {
			return labels[i].path < labels[j].path
		}
		if labels[i].method != labels[j].method {
			return labels[i].method < labels[j].method
		}
		return labels[i].status < labels[j].status
	})
	return labels
}

func (r *Recorder) sortedUploadKinds() []string {
	seen := make(map[string]struct{}, len(r.uploadAttempts)+len(r.uploadFailures))
	for kind := range r.uploadAttempts {
		seen[kind] = struct{}{}
	}
	for kind := range r.uploadFailures {
		seen[kind] = struct{}{}
	}
	kinds := make([]string, 0, len(seen))
	for kind := range seen {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)
	return kinds
}

func sortedKeys(counts map[string]uint64) []string {
	keys := make([]string, 0, len(counts))
	for key := range counts {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func normalizePath(path string) string {
	if path == "" || path == "/" {
		return "/"
	}
	parts := strings.Split(path, "/")
	for i, part := range parts {
		if part == "" {
			continue
		}
		if looksLikeIdentifier(part) {
			parts[i] = ":id"
			continue
		}
	}
	normalized := strings.Join(parts, "/")
	if !strings.HasPrefix(normalized, "/") {
		normalized = "/" + normalized
	}
	if strings.HasSuffix(normalized, "/") && len(normalized) > 1 {
		normalized = strings.TrimSuffix(normalized, "/")
	}
	return normalized
}

func looksLikeIdentifier(segment string) bool {
	if len(segment) >= 16 {
		return true
	}
	digitCount := 0
	for _, r := range segment {
		if r >= '0' && r <= '9' {
			digitCount++
		}
	}
	return digitCount >= 3
}

func (r *Recorder) decrementGauge(gauge *atomic.Int64) {
	for {
		current := gauge.Load()
		if current <= 0 {
			return
		}
		if gauge.CompareAndSwap(current, current-1) {
			return
		}
	}
}

func normalizeName(name string) string {
	normalized := strings.ToLower(strings.TrimSpace(name))
	if normalized == "" {
		return "unknown"
	}
	return normalized
}

// ObserveRequest is a helper on the default recorder.
func ObserveRequest(method, path string, status int, duration time.Duration) {
	defaultRecorder.ObserveRequest(method, path, status, duration)
}

// ObserveVideoView is a helper on the default recorder.
func ObserveVideoView() {
	defaultRecorder.ObserveVideoView()
}

// Handler exposes the default recorder.
func Handler() http.Handler {
	return defaultRecorder.Handler()
}
