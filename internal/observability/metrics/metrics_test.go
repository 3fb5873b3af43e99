package metrics

import (
	"bytes"
	"fmt"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestObserveRequestAndNormalizePath(t *testing.T) {
	recorder := New()

	type testCase struct {
		name     string
		method   string
		path     string
		status   int
		duration time.Duration
	}

	cases := []testCase{
		{
			name:     "root path",
			method:   "get",
			path:     "/",
			status:   200,
			duration: 50 * time.Millisecond,
		},
		{
			name:     "empty path",
			method:   "GET",
			path:     "",
			status:   200,
			duration: 25 * time.Millisecond,
		},
		{
			name:     "id segment",
			method:   "post",
			path:     "/users/123",
			status:   201,
			duration: 100 * time.Millisecond,
		},
		{
			name:     "trailing slash and alpha id",
			method:   "POST",
			path:     "/users/abc123def/",
			status:   201,
			duration: 50 * time.Millisecond,
		},
		{
			name:     "multi ids",
			method:   "PATCH",
			path:     "videos/abc/456/extra",
			status:   404,
			duration: 10 * time.Millisecond,
		},
	}

	expectedCounts := make(map[requestLabel]struct {
		count    uint64
		duration time.Duration
	})

	for _, tc := range cases {
		recorder.ObserveRequest(tc.method, tc.path, tc.status, tc.duration)

		label := requestLabel{
			method: strings.ToUpper(tc.method),
			path:   normalizePath(tc.path),
			status: fmt.Sprintf("%d", tc.status),
		}
		current := expectedCounts[label]
		current.count++
		current.duration += tc.duration
		expectedCounts[label] = current
	}

	if len(recorder.requestCount) != len(expectedCounts) {
		t.Fatalf("unexpected number of labels: got %d want %d", len(recorder.requestCount), len(expectedCounts))
	}

	for label, expected := range expectedCounts {
		gotCount := recorder.requestCount[label]
		gotDuration := recorder.requestDuration[label]
		if gotCount != expected.count {
			t.Errorf("count mismatch for %+v: got %d want %d", label, gotCount, expected.count)
		}
		if gotDuration != expected.duration {
			t.Errorf("duration mismatch for %+v: got %s want %s", label, gotDuration, expected.duration)
		}
	}

	labels := recorder.sortedRequestLabels()
	sortedExpected := make([]requestLabel, 0, len(expectedCounts))
	for label := range expectedCounts {
		sortedExpected = append(sortedExpected, label)
	}
	sort.Slice(sortedExpected, func(i, j int) bool {
		if sortedExpected[i].method != sortedExpected[j].method {
			return sortedExpected[i].method < sortedExpected[j].method
		}
		if sortedExpected[i].path != sortedExpected[j].path {
			return sortedExpected[i].path < sortedExpected[j].path
		}
		return sortedExpected[i].status < sortedExpected[j].status
	})

	if len(labels) != len(sortedExpected) {
		t.Fatalf("sorted labels length mismatch: got %d want %d", len(labels), len(sortedExpected))
	}

	for i := range labels {
		if labels[i] != sortedExpected[i] {
			t.Errorf("sorted label %d mismatch: got %+v want %+v", i, labels[i], sortedExpected[i])
		}
	}
}

func TestProcessingGaugeConcurrent(t *testing.T) {
	recorder := New()

	var wg sync.WaitGroup
	starts := 100
	completions := 150

	wg.Add(starts + completions)
	for i := 0; i < starts; i++ {
		go func() {
			defer wg.Done()
			recorder.ProcessingJobStarted("video")
		}()
	}
	for i := 0; i < completions; i++ {
		go func() {
			defer wg.Done()
			recorder.ProcessingJobCompleted("video")
		}()
	}

	wg.Wait()

	if active := recorder.ActiveProcessingJobs(); active != 0 {
		t.Fatalf("active jobs should not go negative; got %d", active)
	}

	events, _ := recorder.ProcessingJobCounts()
	if count := events[ProcessingJobLabel{Kind: "video", Status: "start"}]; count != uint64(starts) {
		t.Fatalf("unexpected start events: got %d want %d", count, starts)
	}
	if count := events[ProcessingJobLabel{Kind: "video", Status: "complete"}]; count != uint64(completions) {
		t.Fatalf("unexpected complete events: got %d want %d", count, completions)
	}
}

func TestAuthEventCounts(t *testing.T) {
	recorder := New()

	recorder.ObserveAuthEvent("login_success")
	recorder.ObserveAuthEvent("login_success")
	recorder.ObserveAuthEvent(" Login_Failure ")
	recorder.ObserveAuthEvent("")

	events := recorder.AuthEventCounts()
	if events["login_success"] != 2 {
		t.Fatalf("login_success = %d, want 2", events["login_success"])
	}
	if events["login_failure"] != 1 {
		t.Fatalf("login_failure = %d, want 1", events["login_failure"])
	}
	if events["unknown"] != 1 {
		t.Fatalf("unknown = %d, want 1", events["unknown"])
	}
}

func TestWriteAndHandlerOutput(t *testing.T) {
	recorder := New()

	recorder.ObserveRequest("GET", "/users/abc123", 200, 150*time.Millisecond)
	recorder.ObserveRequest("get", "/users/456/", 200, 50*time.Millisecond)
	recorder.ObserveRequest("POST", "/users", 201, time.Second)

	recorder.ObserveAuthEvent("login_success")
	recorder.ObserveAuthEvent("login_success")
	recorder.ObserveAuthEvent("token_refresh")

	recorder.ObserveVideoView()
	recorder.ObserveVideoView()

	recorder.SetDependencyHealth(" Storage-A ", "Healthy")
	recorder.SetDependencyHealth("redis", "Degraded")

	recorder.ProcessingJobStarted("video")
	recorder.ProcessingJobStarted("video")
	recorder.ProcessingJobCompleted("video")

	var buf bytes.Buffer
	recorder.Write(&buf)

	expected := `# HELP streamtube_http_requests_total Total number of HTTP requests processed by the API
# TYPE streamtube_http_requests_total counter
streamtube_http_requests_total{method="GET",path="/users/:id",status="200"} 2
streamtube_http_requests_total{method="POST",path="/users",status="201"} 1
# HELP streamtube_http_request_duration_seconds_sum Cumulative duration of HTTP requests in seconds
# TYPE streamtube_http_request_duration_seconds_sum counter
streamtube_http_request_duration_seconds_sum{method="GET",path="/users/:id",status="200"} 0.200000
streamtube_http_request_duration_seconds_sum{method="POST",path="/users",status="201"} 1.000000
# HELP streamtube_http_request_duration_seconds_count Total number of observations for request durations
# TYPE streamtube_http_request_duration_seconds_count counter
streamtube_http_request_duration_seconds_count{method="GET",path="/users/:id",status="200"} 2
streamtube_http_request_duration_seconds_count{method="POST",path="/users",status="201"} 1
# HELP streamtube_auth_events_total Authentication lifecycle events by type
# TYPE streamtube_auth_events_total counter
streamtube_auth_events_total{event="login_success"} 2
streamtube_auth_events_total{event="token_refresh"} 1
# HELP streamtube_video_views_total Total video views delivered
# TYPE streamtube_video_views_total counter
streamtube_video_views_total 2
# HELP streamtube_dependency_health Health reported by backing dependencies (1=ok,0=disabled,-1=degraded)
# TYPE streamtube_dependency_health gauge
streamtube_dependency_health{dependency="redis",status="degraded"} -1.000000
streamtube_dependency_health{dependency="storage-a",status="healthy"} 1.000000
# HELP streamtube_processing_jobs_total Video processing job events by kind and status
# TYPE streamtube_processing_jobs_total counter
streamtube_processing_jobs_total{kind="video",status="complete"} 1
streamtube_processing_jobs_total{kind="video",status="start"} 2
# HELP streamtube_processing_active_jobs Current number of active video processing jobs
# TYPE streamtube_processing_active_jobs gauge
streamtube_processing_active_jobs 1`

	if diff := compareLines(buf.String(), expected); diff != "" {
		t.Fatalf("unexpected write output:\n%s", diff)
	}

	res := httptest.NewRecorder()
	recorder.Handler().ServeHTTP(res, httptest.NewRequest("GET", "/metrics", nil))

	if contentType := res.Result().Header.Get("Content-Type"); !strings.HasPrefix(contentType, "text/plain") {
		t.Fatalf("unexpected content type: %s", contentType)
	}

	if diff := compareLines(res.Body.String(), expected); diff != "" {
		t.Fatalf("unexpected handler output:\n%s", diff)
	}
}

func compareLines(actual, expected string) string {
	actualLines := strings.Split(strings.TrimSpace(actual), "\n")
	expectedLines := strings.Split(strings.TrimSpace(expected), "\n")
	if len(actualLines) != len(expectedLines) {
		return formatDiff(actualLines, expectedLines)
	}
	for i := range actualLines {
		if actualLines[i] != expectedLines[i] {
			return formatDiff(actualLines, expectedLines)
		}
	}
	return ""
}

func formatDiff(actual, expected []string) string {
	var b strings.Builder
	b.WriteString("expected\n")
	for _, line := range expected {
		b.WriteString(line)
		b.WriteByte('\n')
	}
	b.WriteString("got\n")
	for _, line := range actual {
		b.WriteString(line)
		b.WriteByte('\n')
	}
	return b.String()
}
