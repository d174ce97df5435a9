package app

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"tolma/api/internal/store"
)

type fakeStoreForHealth struct {
	fakeStore
	pingFn func(context.Context) error
}

func (f *fakeStoreForHealth) Ping(ctx context.Context) error {
	if f.pingFn != nil {
		return f.pingFn(ctx)
	}
	return nil
}

func TestHealthEndpoint(t *testing.T) {
	svc := newTestService(&fakeStore{})
	server := NewHTTPServer(svc, "*")

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", rr.Code)
	}
	var response map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &response); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if ok, exists := response["ok"]; !exists || ok != true {
		t.Errorf("expected ok=true, got %v", ok)
	}
}

func TestReadyEndpoint(t *testing.T) {
	t.Run("database up", func(t *testing.T) {
		fs := &fakeStoreForHealth{}
		svc := newTestService(&fs.fakeStore)
		svc.store = fs
		server := NewHTTPServer(svc, "*")

		req := httptest.NewRequest(http.MethodGet, "/api/ready", nil)
		rr := httptest.NewRecorder()
		server.Handler().ServeHTTP(rr, req)

		if rr.Code != http.StatusOK {
			t.Errorf("expected status 200, got %d", rr.Code)
		}
	})

	t.Run("database down", func(t *testing.T) {
		fs := &fakeStoreForHealth{
			pingFn: func(context.Context) error { return errors.New("connection refused") },
		}
		svc := newTestService(&fs.fakeStore)
		svc.store = fs
		server := NewHTTPServer(svc, "*")

		req := httptest.NewRequest(http.MethodGet, "/api/ready", nil)
		rr := httptest.NewRecorder()
		server.Handler().ServeHTTP(rr, req)

		if rr.Code != http.StatusServiceUnavailable {
			t.Errorf("expected status 503, got %d", rr.Code)
		}
		var response map[string]any
		if err := json.Unmarshal(rr.Body.Bytes(), &response); err != nil {
			t.Fatalf("failed to parse response: %v", err)
		}
		if response["status"] != "not_ready" {
			t.Errorf("expected not_ready, got %v", response["status"])
		}
	})
}

func TestProtectedRoutesRequireSession(t *testing.T) {
	svc := newTestService(&fakeStore{})
	server := NewHTTPServer(svc, "*")

	paths := []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/api/me"},
		{http.MethodPost, "/api/works"},
		{http.MethodPatch, "/api/segments/seg_1"},
		{http.MethodPost, "/api/segments/seg_1/votes"},
	}
	for _, tc := range paths {
		req := httptest.NewRequest(tc.method, tc.path, nil)
		rr := httptest.NewRecorder()
		server.Handler().ServeHTTP(rr, req)
		if rr.Code != http.StatusUnauthorized {
			t.Errorf("%s %s: expected 401, got %d", tc.method, tc.path, rr.Code)
		}
	}
}

func TestWorksListIsPublic(t *testing.T) {
	fs := &fakeStore{
		listWorksFn: func(context.Context) ([]store.Work, error) {
			return []store.Work{{ID: "wrk_1", Title: "Der Prozess", Language: "en"}}, nil
		},
	}
	svc := newTestService(fs)
	server := NewHTTPServer(svc, "*")

	req := httptest.NewRequest(http.MethodGet, "/api/works", nil)
	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var response struct {
		Works []map[string]any `json:"works"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &response); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if len(response.Works) != 1 || response.Works[0]["title"] != "Der Prozess" {
		t.Fatalf("unexpected works payload: %+v", response.Works)
	}
}

func TestSegmentPatchThroughTransport(t *testing.T) {
	seg := testSegment()
	tx := &fakeTx{
		getSegmentForUpdateFn: func(context.Context, string) (store.Segment, error) { return seg, nil },
		getWorkFn:             func(context.Context, string) (store.Work, error) { return testWork(), nil },
		getReputationFn: func(_ context.Context, userID, _ string) (store.Reputation, error) {
			return store.Reputation{UserID: userID, Score: 5}, nil
		},
	}
	svc := newTestService(&fakeStore{tx: tx})
	server := NewHTTPServer(svc, "*")

	session, err := svc.IssueSession(context.Background(), store.User{ID: "usr_translator", DisplayName: "Translator"})
	if err != nil {
		t.Fatalf("issue session: %v", err)
	}

	body := strings.NewReader(`{"content":"Someone must have slandered Josef K., for one morning he was arrested."}`)
	req := httptest.NewRequest(http.MethodPatch, "/api/segments/seg_1", body)
	req.Header.Set("Authorization", "Bearer "+session.Token)
	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var response map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &response); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if response["version"] != float64(1) {
		t.Fatalf("expected version 1, got %v", response["version"])
	}
}

func TestDomainErrorSurfacesThroughTransport(t *testing.T) {
	seg := testSegment()
	uid := "usr_other"
	now := time.Now()
	seg.LockedBy = &uid
	seg.LockedAt = &now
	tx := &fakeTx{
		getSegmentForUpdateFn: func(context.Context, string) (store.Segment, error) { return seg, nil },
		getWorkFn:             func(context.Context, string) (store.Work, error) { return testWork(), nil },
		getReputationFn: func(_ context.Context, userID, _ string) (store.Reputation, error) {
			return store.Reputation{UserID: userID, Score: 5}, nil
		},
	}
	svc := newTestService(&fakeStore{tx: tx})
	server := NewHTTPServer(svc, "*")

	session, err := svc.IssueSession(context.Background(), store.User{ID: "usr_translator", DisplayName: "Translator"})
	if err != nil {
		t.Fatalf("issue session: %v", err)
	}

	req := httptest.NewRequest(http.MethodPatch, "/api/segments/seg_1", strings.NewReader(`{"content":"Text."}`))
	req.Header.Set("Authorization", "Bearer "+session.Token)
	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rr.Code)
	}
	var response map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &response); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if response["code"] != "SEGMENT_LOCKED" {
		t.Fatalf("expected SEGMENT_LOCKED, got %v", response["code"])
	}
	details, ok := response["details"].(map[string]any)
	if !ok || details["lockedBy"] != "usr_other" {
		t.Fatalf("expected lock holder in details, got %v", response["details"])
	}
}

func TestUnknownRouteReturns404(t *testing.T) {
	svc := newTestService(&fakeStore{})
	server := NewHTTPServer(svc, "*")

	session, err := svc.IssueSession(context.Background(), store.User{ID: "usr_1", DisplayName: "Reader"})
	if err != nil {
		t.Fatalf("issue session: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/nope", nil)
	req.Header.Set("Authorization", "Bearer "+session.Token)
	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
}

func TestAuthUnavailableWithoutService(t *testing.T) {
	svc := newTestService(&fakeStore{})
	server := NewHTTPServer(svc, "*")

	req := httptest.NewRequest(http.MethodPost, "/api/auth/signup", strings.NewReader(`{}`))
	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
}
