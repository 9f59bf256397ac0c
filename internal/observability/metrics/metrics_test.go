package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestObserveRequestAggregatesByLabel(t *testing.T) {
	recorder := New()
	recorder.ObserveRequest("get", "/api/videos", 200, 10*time.Millisecond)
	recorder.ObserveRequest("GET", "/api/videos", 200, 15*time.Millisecond)
	recorder.ObserveRequest("POST", "/api/videos", 201, 5*time.Millisecond)

	var output strings.Builder
	recorder.Write(&output)
	body := output.String()
	if !strings.Contains(body, `cliphive_http_requests_total{method="GET",path="/api/videos",status="200"} 2`) {
		t.Fatalf("missing aggregated GET counter:\n%s", body)
	}
	if !strings.Contains(body, `cliphive_http_requests_total{method="POST",path="/api/videos",status="201"} 1`) {
		t.Fatalf("missing POST counter:\n%s", body)
	}
}

func TestNormalizePathCollapsesIdentifiers(t *testing.T) {
	cases := map[string]string{
		"/":           "/",
		"/api/videos": "/api/videos",
		"/api/videos/4f2a9c8b1d3e5f60718293a4": "/api/videos/:id",
		"/api/channels/casey":                  "/api/channels/casey",
		"/api/videos/abc123def/comments":       "/api/videos/:id/comments",
	}
	for input, want := range cases {
		if got := normalizePath(input); got != want {
			t.Errorf("normalizePath(%q) = %q, want %q", input, got, want)
		}
	}
}

func TestSessionGaugeNeverGoesNegative(t *testing.T) {
	recorder := New()
	recorder.SessionEnded()
	recorder.SessionEnded()
	if got := recorder.ActiveSessions(); got != 0 {
		t.Fatalf("ActiveSessions = %d, want 0", got)
	}
	recorder.SessionStarted("login")
	recorder.SessionStarted("refresh")
	if got := recorder.ActiveSessions(); got != 1 {
		t.Fatalf("ActiveSessions after login+refresh = %d, want 1", got)
	}
	recorder.SessionEnded()
	if got := recorder.ActiveSessions(); got != 0 {
		t.Fatalf("ActiveSessions after logout = %d, want 0", got)
	}
	counts := recorder.SessionCounts()
	if counts["login"] != 1 || counts["refresh"] != 1 || counts["logout"] != 3 {
		t.Fatalf("session counts = %v", counts)
	}
}

func TestConcurrentObservations(t *testing.T) {
	recorder := New()
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				recorder.ObserveVideoView()
				recorder.ObserveEngagement("like")
			}
		}()
	}
	wg.Wait()
	if got := recorder.VideoViews(); got != 800 {
		t.Fatalf("VideoViews = %d, want 800", got)
	}
	var output strings.Builder
	recorder.Write(&output)
	if !strings.Contains(output.String(), `cliphive_engagement_events_total{event="like"} 800`) {
		t.Fatalf("missing like counter:\n%s", output.String())
	}
}

func TestUploadCountersTrackFailures(t *testing.T) {
	recorder := New()
	recorder.ObserveUploadAttempt("video")
	recorder.ObserveUploadAttempt("video")
	recorder.ObserveUploadFailure("video")
	recorder.ObserveUploadAttempt("Avatar")

	var output strings.Builder
	recorder.Write(&output)
	body := output.String()
	if !strings.Contains(body, `cliphive_upload_attempts_total{kind="video"} 2`) {
		t.Fatalf("missing video attempts:\n%s", body)
	}
	if !strings.Contains(body, `cliphive_upload_failures_total{kind="video"} 1`) {
		t.Fatalf("missing video failures:\n%s", body)
	}
	if !strings.Contains(body, `cliphive_upload_attempts_total{kind="avatar"} 1`) {
		t.Fatalf("upload kinds should be normalized to lower case:\n%s", body)
	}
}

func TestHandlerServesExposition(t *testing.T) {
	recorder := New()
	recorder.ObserveRequest("GET", "/healthz", 200, time.Millisecond)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	recorder.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("metrics status = %d", rr.Code)
	}
	if got := rr.Header().Get("Content-Type"); !strings.HasPrefix(got, "text/plain") {
		t.Fatalf("metrics content type = %q", got)
	}
	if !strings.Contains(rr.Body.String(), "cliphive_http_requests_total") {
		t.Fatalf("metrics body missing request counter:\n%s", rr.Body.String())
	}
}

func TestHTTPMiddlewareRecordsStatus(t *testing.T) {
	recorder := New()
	handler := HTTPMiddleware(recorder, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/videos", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	var output strings.Builder
	recorder.Write(&output)
	if !strings.Contains(output.String(), `status="418"`) {
		t.Fatalf("middleware did not record handler status:\n%s", output.String())
	}
}
