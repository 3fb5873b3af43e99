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

// ProcessingJobLabel identifies a video processing job event by asset kind and
// terminal status.
type ProcessingJobLabel struct {
	Kind   string
	Status string
}

// Recorder aggregates in-memory counters and gauges for HTTP requests, auth
// events, video processing jobs, and dependency health. It coordinates
// concurrent writers via a RWMutex while exposing a thread-safe gauge for
// active processing jobs.
type Recorder struct {
	mu               sync.RWMutex
	requestCount     map[requestLabel]uint64
	requestDuration  map[requestLabel]time.Duration
	authEvents       map[string]uint64
	videoViews       atomic.Uint64
	dependencyValue  map[string]float64
	dependencyState  map[string]string
	processingEvents map[ProcessingJobLabel]uint64
	activeProcessing atomic.Int64
}

var (
	defaultMu       sync.RWMutex
	defaultRecorder = New()
)

// Registry bundles a Recorder destined to serve as the process default, so
// wiring code can build the recorder and install it in one step.
type Registry struct {
	Recorder *Recorder
}

// NewRegistry constructs a fresh Recorder and installs it as the default used
// by the package-level helpers.
func NewRegistry() *Registry {
	recorder := New()
	SetDefault(recorder)
	return &Registry{Recorder: recorder}
}

// SetDefault swaps the Recorder behind the package-level helpers. Passing nil
// is a no-op.
func SetDefault(recorder *Recorder) {
	if recorder == nil {
		return
	}
	defaultMu.Lock()
	defaultRecorder = recorder
	defaultMu.Unlock()
}

// New constructs an empty Recorder with initialized backing maps so callers
// can immediately record metrics without additional setup.
func New() *Recorder {
	return &Recorder{
		requestCount:     make(map[requestLabel]uint64),
		requestDuration:  make(map[requestLabel]time.Duration),
		authEvents:       make(map[string]uint64),
		dependencyValue:  make(map[string]float64),
		dependencyState:  make(map[string]string),
		processingEvents: make(map[ProcessingJobLabel]uint64),
	}
}

// Default returns the shared Recorder used by the package-level helper
// functions for packages that do not require custom instrumentation pipelines.
func Default() *Recorder {
	defaultMu.RLock()
	defer defaultMu.RUnlock()
	return defaultRecorder
}

// ObserveRequest normalizes the request label set and accumulates totals for
// request count and cumulative duration by HTTP method, normalized path, and
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

// ObserveAuthEvent records an authentication lifecycle event such as
// "login_success", "login_failure", "token_refresh", "refresh_reuse", or
// "logout".
func (r *Recorder) ObserveAuthEvent(event string) {
	normalized := normalizeName(event)
	r.mu.Lock()
	r.authEvents[normalized]++
	r.mu.Unlock()
}

// ObserveVideoView counts a delivered video view.
func (r *Recorder) ObserveVideoView() {
	r.videoViews.Add(1)
}

// ProcessingJobStarted records the beginning of a processing job of the
// provided kind (e.g., "video" or "thumbnail") and increments the active job
// gauge.
func (r *Recorder) ProcessingJobStarted(kind string) {
	r.recordProcessingEvent(kind, "start")
	r.activeProcessing.Add(1)
}

// ProcessingJobCompleted records a finished processing job and decrements the
// active job gauge.
func (r *Recorder) ProcessingJobCompleted(kind string) {
	r.recordProcessingEvent(kind, "complete")
	r.decrementGauge(&r.activeProcessing)
}

// ProcessingJobFailed records a failed processing job and decrements the
// active job gauge, guarding against negative counts when the job never
// started.
func (r *Recorder) ProcessingJobFailed(kind string) {
	r.recordProcessingEvent(kind, "fail")
	r.decrementGauge(&r.activeProcessing)
}

func (r *Recorder) recordProcessingEvent(kind, status string) {
	label := ProcessingJobLabel{
		Kind:   normalizeName(kind),
		Status: normalizeName(status),
	}
	r.mu.Lock()
	r.processingEvents[label]++
	r.mu.Unlock()
}

// ActiveProcessingJobs exposes the current number of in-flight processing
// jobs tracked by the recorder.
func (r *Recorder) ActiveProcessingJobs() int64 {
	return r.activeProcessing.Load()
}

// SetDependencyHealth normalizes dependency identifiers, maps status strings
// to numeric health values, and stores both representations for export.
func (r *Recorder) SetDependencyHealth(dependency, status string) {
	normalizedDependency := normalizeName(dependency)
	normalizedStatus := strings.ToLower(strings.TrimSpace(status))
	value := 0.0
	switch normalizedStatus {
	case "ok", "healthy":
		value = 1
	case "disabled":
		value = 0
	default:
		value = -1
	}
	r.mu.Lock()
	r.dependencyValue[normalizedDependency] = value
	r.dependencyState[normalizedDependency] = normalizedStatus
	r.mu.Unlock()
}

// AuthEventCounts returns a copy of the auth event counters for testing and
// reporting purposes.
func (r *Recorder) AuthEventCounts() map[string]uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	events := make(map[string]uint64, len(r.authEvents))
	for k, v := range r.authEvents {
		events[k] = v
	}
	return events
}

// ProcessingJobCounts returns copies of processing job event counters and the
// current active job gauge value.
func (r *Recorder) ProcessingJobCounts() (events map[ProcessingJobLabel]uint64, active int64) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	events = make(map[ProcessingJobLabel]uint64, len(r.processingEvents))
	for k, v := range r.processingEvents {
		events[k] = v
	}
	return events, r.activeProcessing.Load()
}

// Reset clears all counters and gauges on the recorder. It is intended for
// test setups.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.requestCount = make(map[requestLabel]uint64)
	r.requestDuration = make(map[requestLabel]time.Duration)
	r.authEvents = make(map[string]uint64)
	r.dependencyValue = make(map[string]float64)
	r.dependencyState = make(map[string]string)
	r.processingEvents = make(map[ProcessingJobLabel]uint64)
	r.videoViews.Store(0)
	r.activeProcessing.Store(0)
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
	authEvents := r.sortedAuthEvents()
	dependencies := r.sortedDependencies()
	processingLabels := r.sortedProcessingJobLabels()

	fmt.Fprintln(w, "# HELP streamtube_http_requests_total Total number of HTTP requests processed by the API")
	fmt.Fprintln(w, "# TYPE streamtube_http_requests_total counter")
	for _, label := range requestLabels {
		count := r.requestCount[label]
		fmt.Fprintf(w, "streamtube_http_requests_total{method=\"%s\",path=\"%s\",status=\"%s\"} %d\n", label.method, label.path, label.status, count)
	}

	fmt.Fprintln(w, "# HELP streamtube_http_request_duration_seconds_sum Cumulative duration of HTTP requests in seconds")
	fmt.Fprintln(w, "# TYPE streamtube_http_request_duration_seconds_sum counter")
	for _, label := range requestLabels {
		duration := r.requestDuration[label].Seconds()
		fmt.Fprintf(w, "streamtube_http_request_duration_seconds_sum{method=\"%s\",path=\"%s\",status=\"%s\"} %f\n", label.method, label.path, label.status, duration)
	}

	fmt.Fprintln(w, "# HELP streamtube_http_request_duration_seconds_count Total number of observations for request durations")
	fmt.Fprintln(w, "# TYPE streamtube_http_request_duration_seconds_count counter")
	for _, label := range requestLabels {
		count := r.requestCount[label]
		fmt.Fprintf(w, "streamtube_http_request_duration_seconds_count{method=\"%s\",path=\"%s\",status=\"%s\"} %d\n", label.method, label.path, label.status, count)
	}

	fmt.Fprintln(w, "# HELP streamtube_auth_events_total Authentication lifecycle events by type")
	fmt.Fprintln(w, "# TYPE streamtube_auth_events_total counter")
	for _, event := range authEvents {
		count := r.authEvents[event]
		fmt.Fprintf(w, "streamtube_auth_events_total{event=\"%s\"} %d\n", event, count)
	}

	fmt.Fprintln(w, "# HELP streamtube_video_views_total Total video views delivered")
	fmt.Fprintln(w, "# TYPE streamtube_video_views_total counter")
	fmt.Fprintf(w, "streamtube_video_views_total %d\n", r.videoViews.Load())

	fmt.Fprintln(w, "# HELP streamtube_dependency_health Health reported by backing dependencies (1=ok,0=disabled,-1=degraded)")
	fmt.Fprintln(w, "# TYPE streamtube_dependency_health gauge")
	for _, dependency := range dependencies {
		value := r.dependencyValue[dependency]
		status := r.dependencyState[dependency]
		fmt.Fprintf(w, "streamtube_dependency_health{dependency=\"%s\",status=\"%s\"} %f\n", dependency, status, value)
	}

	fmt.Fprintln(w, "# HELP streamtube_processing_jobs_total Video processing job events by kind and status")
	fmt.Fprintln(w, "# TYPE streamtube_processing_jobs_total counter")
	for _, label := range processingLabels {
		count := r.processingEvents[label]
		fmt.Fprintf(w, "streamtube_processing_jobs_total{kind=\"%s\",status=\"%s\"} %d\n", label.Kind, label.Status, count)
	}

	fmt.Fprintln(w, "# HELP streamtube_processing_active_jobs Current number of active video processing jobs")
	fmt.Fprintln(w, "# TYPE streamtube_processing_active_jobs gauge")
	fmt.Fprintf(w, "streamtube_processing_active_jobs %d\n", r.activeProcessing.Load())
}

func (r *Recorder) sortedRequestLabels() []requestLabel {
	labels := make([]requestLabel, 0, len(r.requestCount))
	for label := range r.requestCount {
		labels = append(labels, label)
	}
	sort.Slice(labels, func(i, j int) bool {
		if labels[i].method != labels[j].method {
			return labels[i].method < labels[j].method
		}
		if labels[i].path != labels[j].path {
			return labels[i].path < labels[j].path
		}
		return labels[i].status < labels[j].status
	})
	return labels
}

func (r *Recorder) sortedAuthEvents() []string {
	events := make([]string, 0, len(r.authEvents))
	for event := range r.authEvents {
		events = append(events, event)
	}
	sort.Strings(events)
	return events
}

func (r *Recorder) sortedDependencies() []string {
	dependencies := make([]string, 0, len(r.dependencyValue))
	for dependency := range r.dependencyValue {
		dependencies = append(dependencies, dependency)
	}
	sort.Strings(dependencies)
	return dependencies
}

func (r *Recorder) sortedProcessingJobLabels() []ProcessingJobLabel {
	labels := make([]ProcessingJobLabel, 0, len(r.processingEvents))
	for label := range r.processingEvents {
		labels = append(labels, label)
	}
	sort.Slice(labels, func(i, j int) bool {
		if labels[i].Kind != labels[j].Kind {
			return labels[i].Kind < labels[j].Kind
		}
		return labels[i].Status < labels[j].Status
	})
	return labels
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
	if len(segment) >= 8 {
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
	Default().ObserveRequest(method, path, status, duration)
}

// ObserveAuthEvent records an auth event on the default recorder.
func ObserveAuthEvent(event string) {
	Default().ObserveAuthEvent(event)
}

// ObserveVideoView counts a video view on the default recorder.
func ObserveVideoView() {
	Default().ObserveVideoView()
}

// SetDependencyHealth updates dependency health on the default recorder.
func SetDependencyHealth(dependency, status string) {
	Default().SetDependencyHealth(dependency, status)
}

// ProcessingJobStarted records the start of a processing job on the default recorder.
func ProcessingJobStarted(kind string) {
	Default().ProcessingJobStarted(kind)
}

// ProcessingJobCompleted records the completion of a processing job on the default recorder.
func ProcessingJobCompleted(kind string) {
	Default().ProcessingJobCompleted(kind)
}

// ProcessingJobFailed records a failed processing job on the default recorder.
func ProcessingJobFailed(kind string) {
	Default().ProcessingJobFailed(kind)
}

// Handler exposes the default recorder as an HTTP handler.
func Handler() http.Handler {
	return Default().Handler()
}
