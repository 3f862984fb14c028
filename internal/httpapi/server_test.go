package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"go.uber.org/zap"

	apimw "github.com/hamed0406/domainguard/internal/httpapi/middleware"
	"github.com/hamed0406/domainguard/internal/scheduler"
)

// ---- test helpers ----

type fakeJobs struct {
	mu   sync.Mutex
	ran  []scheduler.Job
	err  error
	busy bool
}

func (f *fakeJobs) States() []scheduler.JobStatus {
	var out []scheduler.JobStatus
	for _, j := range scheduler.Jobs {
		out = append(out, scheduler.JobStatus{Job: j, Spec: scheduler.Cadences[j], State: scheduler.StateScheduled})
	}
	return out
}

func (f *fakeJobs) RunNow(_ context.Context, job scheduler.Job) (scheduler.Summary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.busy {
		return scheduler.Summary{Job: job}, scheduler.ErrJobRunning
	}
	f.ran = append(f.ran, job)
	return scheduler.Summary{Job: job, Targets: 2, Failed: 1, Error: "b.example: boom"}, f.err
}

func setupServer(t *testing.T, jobs *fakeJobs) *httptest.Server {
	t.Helper()
	auth := apimw.Auth{
		Viewer:   []string{"pub_test"},
		Operator: []string{"adm_test"},
	}
	srv := NewServer(zap.NewNop(), jobs)
	ts := httptest.NewServer(srv.Router(auth, 10_000, 10_000))
	t.Cleanup(ts.Close)
	return ts
}

func do(t *testing.T, method, url, key string) *http.Response {
	t.Helper()
	req, _ := http.NewRequest(method, url, nil)
	if key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

// ---- tests ----

func TestHealthzAndMetrics(t *testing.T) {
	ts := setupServer(t, &fakeJobs{})

	if resp := do(t, http.MethodGet, ts.URL+"/healthz", ""); resp.StatusCode != http.StatusOK {
		t.Fatalf("healthz: %d", resp.StatusCode)
	}
	resp := do(t, http.MethodGet, ts.URL+"/metrics", "")
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), "go_goroutines") {
		t.Fatalf("metrics: %d %s", resp.StatusCode, body)
	}
}

func TestListJobs_Auth(t *testing.T) {
	ts := setupServer(t, &fakeJobs{})

	if resp := do(t, http.MethodGet, ts.URL+"/api/jobs", ""); resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("no key: want 401, got %d", resp.StatusCode)
	}

	resp := do(t, http.MethodGet, ts.URL+"/api/jobs", "pub_test")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("public key: want 200, got %d", resp.StatusCode)
	}
	var states []scheduler.JobStatus
	if err := json.NewDecoder(resp.Body).Decode(&states); err != nil {
		t.Fatal(err)
	}
	if len(states) != 4 || states[2].Job != scheduler.JobReachability || states[2].Spec != "@every 30m" {
		t.Fatalf("unexpected states: %+v", states)
	}
}

func TestRunJob(t *testing.T) {
	jobs := &fakeJobs{err: errors.New("b.example: boom")}
	ts := setupServer(t, jobs)

	if resp := do(t, http.MethodPost, ts.URL+"/api/jobs/expiry/run", "pub_test"); resp.StatusCode != http.StatusForbidden {
		t.Fatalf("public key: want 403, got %d", resp.StatusCode)
	}
	if resp := do(t, http.MethodPost, ts.URL+"/api/jobs/dns/run", "adm_test"); resp.StatusCode != http.StatusNotFound {
		t.Fatalf("unknown job: want 404, got %d", resp.StatusCode)
	}

	resp := do(t, http.MethodPost, ts.URL+"/api/jobs/certificates/run", "adm_test")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("admin run: want 200, got %d", resp.StatusCode)
	}
	var sum scheduler.Summary
	if err := json.NewDecoder(resp.Body).Decode(&sum); err != nil {
		t.Fatal(err)
	}
	if sum.Job != scheduler.JobCertificates || sum.Failed != 1 || sum.Error == "" {
		t.Fatalf("unexpected summary: %+v", sum)
	}
	if len(jobs.ran) != 1 || jobs.ran[0] != scheduler.JobCertificates {
		t.Fatalf("runner not called: %+v", jobs.ran)
	}
}

func TestRunJob_Conflict(t *testing.T) {
	ts := setupServer(t, &fakeJobs{busy: true})
	if resp := do(t, http.MethodPost, ts.URL+"/api/jobs/alerts/run", "adm_test"); resp.StatusCode != http.StatusConflict {
		t.Fatalf("want 409, got %d", resp.StatusCode)
	}
}
