package core

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/oriys/logid/internal/auth"
	"github.com/oriys/logid/internal/credential"
	"github.com/oriys/logid/internal/logquery"
	"github.com/oriys/logid/internal/region"
)

// upstream 同时模拟认证服务与日志服务
type upstream struct {
	*httptest.Server
	authHits  atomic.Int32
	queryHits atomic.Int32
}

func newUpstream(t *testing.T, token string, queryStatus int, queryBody string) *upstream {
	t.Helper()
	u := &upstream{}
	r := chi.NewRouter()
	r.Get("/auth/api/v1/jwt", func(w http.ResponseWriter, r *http.Request) {
		u.authHits.Add(1)
		w.Header().Set(auth.TokenHeader, token)
	})
	r.Post("/query/trace", func(w http.ResponseWriter, r *http.Request) {
		u.queryHits.Add(1)
		if got := r.Header.Get(auth.TokenHeader); got != token {
			http.Error(w, "bad token", http.StatusUnauthorized)
			return
		}
		w.WriteHeader(queryStatus)
		_, _ = fmt.Fprint(w, queryBody)
	})
	u.Server = httptest.NewServer(r)
	t.Cleanup(u.Close)
	return u
}

func (u *upstream) orchestrator(t *testing.T, env credential.MapLookuper) *Orchestrator {
	t.Helper()
	reg, err := region.NewRegistry(map[string]region.Override{
		"us":   {AuthURL: u.URL + "/auth/api/v1/jwt", QueryURL: u.URL + "/query/trace"},
		"i18n": {AuthURL: u.URL + "/auth/api/v1/jwt", QueryURL: u.URL + "/query/trace"},
	})
	if err != nil {
		t.Fatal(err)
	}
	tokens := auth.NewManager(credential.NewSource(env), auth.Config{})
	return NewOrchestrator(reg, tokens, logquery.NewClient(nil, logquery.Config{}), nil)
}

const helloBody = `{"data":{"items":[{"id":"1","group":{"psm":"svc.api"},"value":[{"id":"1","kv_list":[{"key":"_msg","value":"hello"}]}]}]}}`

func TestRun_HappyPath(t *testing.T) {
	u := newUpstream(t, "tok1", http.StatusOK, helloBody)
	o := u.orchestrator(t, credential.MapLookuper{"CAS_SESSION_US": "cookie"})

	res, err := o.Run(context.Background(), "us", "abc-123", nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.TotalItems != 1 || len(res.Messages) != 1 || res.Messages[0].Text() != "hello" {
		t.Fatalf("result = %+v", res)
	}
	if res.TotalItems != len(res.Messages) {
		t.Error("total_items must equal len(messages)")
	}

	// 第二次查询命中令牌缓存
	if _, err := o.Run(context.Background(), "US", "abc-123", nil); err != nil {
		t.Fatal(err)
	}
	if u.authHits.Load() != 1 || u.queryHits.Load() != 2 {
		t.Errorf("auth hits = %d, query hits = %d", u.authHits.Load(), u.queryHits.Load())
	}
}

func TestRun_MissingCredential(t *testing.T) {
	u := newUpstream(t, "tok1", http.StatusOK, helloBody)
	o := u.orchestrator(t, credential.MapLookuper{"CAS_SESSION_I18N": "other-region"})

	_, err := o.Run(context.Background(), "us", "abc-123", nil)

	if KindOf(err) != KindMissingCredential || ExitCode(err) != ExitMissingCredential {
		t.Fatalf("error = %v, want missing credential", err)
	}
	if !errors.Is(err, credential.ErrMissingCredential) {
		t.Error("error should wrap credential.ErrMissingCredential")
	}
	if u.authHits.Load()+u.queryHits.Load() != 0 {
		t.Error("no network call may be made without a credential")
	}
}

func TestRun_ComplianceMarkerExcluded(t *testing.T) {
	body := `{"data":{"items":[{"id":"1","group":{"psm":"svc.api"},"value":[{"id":"1","kv_list":[{"key":"_msg","value":"x"},{"key":"_compliance_nlp_log","value":"1"}]}]}]}}`
	u := newUpstream(t, "tok1", http.StatusOK, body)
	o := u.orchestrator(t, credential.MapLookuper{"CAS_SESSION": "cookie"})

	res, err := o.Run(context.Background(), "us", "abc-123", nil)
	if err != nil {
		t.Fatal(err)
	}
	if res.TotalItems != 0 || len(res.Messages) != 0 {
		t.Errorf("total_items = %d, want 0", res.TotalItems)
	}
}

func TestRun_UnknownRegion(t *testing.T) {
	u := newUpstream(t, "tok1", http.StatusOK, helloBody)
	o := u.orchestrator(t, credential.MapLookuper{"CAS_SESSION": "cookie"})

	_, err := o.Run(context.Background(), "eu", "abc-123", nil)

	if KindOf(err) != KindUnknownRegion || ExitCode(err) != ExitUnknownRegion {
		t.Fatalf("error = %v, want unknown region", err)
	}
	if !errors.Is(err, region.ErrUnknownRegion) {
		t.Error("error should wrap region.ErrUnknownRegion")
	}
	if u.authHits.Load()+u.queryHits.Load() != 0 {
		t.Error("no network call may be made for an unknown region")
	}
}

func TestRun_ErrorClassification(t *testing.T) {
	tests := []struct {
		name     string
		region   string
		logid    string
		status   int
		body     string
		wantKind Kind
		wantExit int
	}{
		{name: "empty logid", region: "us", logid: "  ", status: 200, body: helloBody, wantKind: KindInvalidArgument, wantExit: ExitInvalidArgument},
		{name: "cn not configured", region: "cn", logid: "x", status: 200, body: helloBody, wantKind: KindRegionNotConfigured, wantExit: ExitRegionNotConfigured},
		{name: "query 500", region: "us", logid: "x", status: 500, body: "boom", wantKind: KindQueryTransport, wantExit: ExitQueryTransport},
		{name: "malformed body", region: "i18n", logid: "x", status: 200, body: `{"unexpected":true}`, wantKind: KindQueryMalformed, wantExit: ExitQueryMalformed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u := newUpstream(t, "tok1", tt.status, tt.body)
			o := u.orchestrator(t, credential.MapLookuper{"CAS_SESSION": "cookie"})

			res, err := o.Run(context.Background(), tt.region, tt.logid, nil)
			if res != nil {
				t.Error("failed run must not return a partial result")
			}
			if KindOf(err) != tt.wantKind || ExitCode(err) != tt.wantExit {
				t.Errorf("error = %v (exit %d), want %s (exit %d)", err, ExitCode(err), tt.wantKind, tt.wantExit)
			}
			var ce *Error
			if errors.As(err, &ce) && ce.Hint() == "" {
				t.Error("every kind needs a hint")
			}
		})
	}
}

func TestRun_ExchangeFailed(t *testing.T) {
	r := chi.NewRouter()
	r.Get("/auth/api/v1/jwt", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "expired", http.StatusUnauthorized)
	})
	srv := httptest.NewServer(r)
	defer srv.Close()

	reg, _ := region.NewRegistry(map[string]region.Override{
		"us": {AuthURL: srv.URL + "/auth/api/v1/jwt", QueryURL: srv.URL + "/query/trace"},
	})
	o := NewOrchestrator(reg,
		auth.NewManager(credential.NewSource(credential.MapLookuper{"CAS_SESSION": "c"}), auth.Config{}),
		logquery.NewClient(nil, logquery.Config{}), nil)

	_, err := o.Run(context.Background(), "us", "x", nil)
	if KindOf(err) != KindExchangeFailed || ExitCode(err) != ExitExchangeFailed {
		t.Fatalf("error = %v, want exchange failed", err)
	}
}

func TestExitCode(t *testing.T) {
	if ExitCode(nil) != ExitOK {
		t.Error("nil error should exit 0")
	}
	if ExitCode(errors.New("boom")) != ExitFailure {
		t.Error("unclassified error should exit 1")
	}
	wrapped := fmt.Errorf("outer: %w", &Error{Kind: KindQueryMalformed})
	if ExitCode(wrapped) != ExitQueryMalformed {
		t.Error("wrapped core error should keep its exit code")
	}

	seen := map[int]Kind{}
	for kind, code := range exitCodes {
		if other, dup := seen[code]; dup {
			t.Errorf("exit code %d shared by %s and %s", code, kind, other)
		}
		seen[code] = kind
	}
}
