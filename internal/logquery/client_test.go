package logquery

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/oriys/logid/internal/auth"
	"github.com/oriys/logid/internal/region"
)

const queryPath = "/streamlog/platform/microservice/v1/query/trace"

// logServer 模拟区域日志服务
type logServer struct {
	*httptest.Server
	hits    atomic.Int32
	lastReq Request
	lastHdr http.Header
}

func newLogServer(t *testing.T, status int, body string) *logServer {
	t.Helper()
	s := &logServer{}
	r := chi.NewRouter()
	r.Post(queryPath, func(w http.ResponseWriter, r *http.Request) {
		s.hits.Add(1)
		s.lastHdr = r.Header.Clone()
		if err := json.NewDecoder(r.Body).Decode(&s.lastReq); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	})
	s.Server = httptest.NewServer(r)
	t.Cleanup(s.Close)
	return s
}

func (s *logServer) region() region.Config {
	return region.Config{
		ID:          region.US,
		DisplayName: "美区",
		AuthURL:     s.URL + "/auth",
		QueryURL:    s.URL + queryPath,
		VRegion:     "US-TTP,US-TTP2",
	}
}

var tok1 = auth.Token{Value: "tok1", ExpiresAt: time.Now().Add(time.Hour)}

func item(id, psm string, values ...string) string {
	return `{"id":"` + id + `","group":{"psm":"` + psm + `","pod_name":"pod-1","ipv4":"10.0.0.1","env":"prod"},"value":[` + strings.Join(values, ",") + `]}`
}

func value(id string, kvs ...string) string {
	return `{"id":"` + id + `","level":"INFO","kv_list":[` + strings.Join(kvs, ",") + `]}`
}

func kv(k, v string) string {
	b, _ := json.Marshal(map[string]string{"key": k, "value": v, "type": "string"})
	return string(b)
}

func TestQuery_SingleMessage(t *testing.T) {
	body := `{"data":{"items":[` + item("i1", "svc.api", value("v1", kv("_msg", "hello"), kv("_location", "main.go:42"))) + `]}}`
	srv := newLogServer(t, http.StatusOK, body)
	fixed := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	c := NewClient(nil, Config{UserAgent: "logid/test"}, WithClock(func() time.Time { return fixed }))

	res, err := c.Query(context.Background(), srv.region(), tok1, "abc-123", nil)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}

	if res.TotalItems != 1 || len(res.Messages) != 1 {
		t.Fatalf("total_items = %d, messages = %d", res.TotalItems, len(res.Messages))
	}
	m := res.Messages[0]
	if m.Text() != "hello" || m.ID != "i1-v1" || m.Location != "main.go:42" || m.Level != "INFO" {
		t.Errorf("message = %+v", m)
	}
	if len(m.Values) != 1 {
		t.Errorf("_location should not be a value: %+v", m.Values)
	}
	if m.Group.PSM != "svc.api" || m.Group.PodName != "pod-1" {
		t.Errorf("group = %+v", m.Group)
	}
	if res.Region != region.US || res.RegionDisplayName != "美区" || res.LogID != "abc-123" {
		t.Errorf("result header = %+v", res)
	}
	if res.Timestamp != "2024-05-01T08:00:00Z" {
		t.Errorf("timestamp = %q", res.Timestamp)
	}

	if srv.lastHdr.Get(auth.TokenHeader) != "tok1" {
		t.Errorf("token header = %q", srv.lastHdr.Get(auth.TokenHeader))
	}
	if srv.lastHdr.Get("X-Request-Id") == "" || srv.lastHdr.Get("User-Agent") != "logid/test" {
		t.Errorf("headers = %v", srv.lastHdr)
	}
	want := Request{LogID: "abc-123", ScanSpanInMin: DefaultScanSpanMinutes, VRegion: "US-TTP,US-TTP2"}
	if srv.lastReq.LogID != want.LogID || srv.lastReq.ScanSpanInMin != want.ScanSpanInMin || srv.lastReq.VRegion != want.VRegion || len(srv.lastReq.PSMList) != 0 {
		t.Errorf("request = %+v, want %+v", srv.lastReq, want)
	}
}

func TestQuery_ComplianceMessageExcluded(t *testing.T) {
	body := `{"data":{"items":[` + item("i1", "svc.api", value("v1", kv("_msg", "audit"), kv("_compliance_nlp_log", "1"))) + `]}}`
	srv := newLogServer(t, http.StatusOK, body)

	res, err := NewClient(nil, Config{}).Query(context.Background(), srv.region(), tok1, "abc-123", nil)
	if err != nil {
		t.Fatal(err)
	}
	if res.TotalItems != 0 || len(res.Messages) != 0 {
		t.Errorf("total_items = %d, want 0", res.TotalItems)
	}
	if res.Stats.DroppedByFilter != 1 {
		t.Errorf("dropped by filter = %d", res.Stats.DroppedByFilter)
	}
}

func TestQuery_PSMRecheck(t *testing.T) {
	body := `{"items":[` +
		item("i1", "svc.a", value("v1", kv("_msg", "a"))) + `,` +
		item("i2", "svc.b", value("v1", kv("_msg", "b"))) + `,` +
		item("i3", "svc.c", value("v1", kv("_msg", "c"))) + `]}`

	t.Run("filters applied", func(t *testing.T) {
		srv := newLogServer(t, http.StatusOK, body)
		res, err := NewClient(nil, Config{}).Query(context.Background(), srv.region(), tok1, "x", []string{" svc.a", "svc.c", "svc.a", ""})
		if err != nil {
			t.Fatal(err)
		}
		if res.TotalItems != 2 {
			t.Fatalf("total_items = %d, want 2", res.TotalItems)
		}
		for _, m := range res.Messages {
			if m.Group.PSM != "svc.a" && m.Group.PSM != "svc.c" {
				t.Errorf("message from %s leaked through psm filter", m.Group.PSM)
			}
		}
		if got := srv.lastReq.PSMList; len(got) != 2 || got[0] != "svc.a" || got[1] != "svc.c" {
			t.Errorf("psm_list = %v", got)
		}
	})

	t.Run("no filters", func(t *testing.T) {
		srv := newLogServer(t, http.StatusOK, body)
		res, err := NewClient(nil, Config{}).Query(context.Background(), srv.region(), tok1, "x", nil)
		if err != nil {
			t.Fatal(err)
		}
		if res.TotalItems != 3 || res.Messages[0].Text() != "a" || res.Messages[2].Text() != "c" {
			t.Errorf("messages out of order or missing: %+v", res.Messages)
		}
	})
}

func TestQuery_TransportErrors(t *testing.T) {
	srv := newLogServer(t, http.StatusBadGateway, `<html>bad gateway</html>`)
	_, err := NewClient(nil, Config{}).Query(context.Background(), srv.region(), tok1, "x", nil)

	var qerr *Error
	if !errors.As(err, &qerr) || qerr.Kind != KindTransport || qerr.Status != http.StatusBadGateway {
		t.Fatalf("error = %v, want transport 502", err)
	}
	if strings.Contains(err.Error(), "bad gateway") {
		t.Error("response body should not appear in the error")
	}

	srv.Close()
	_, err = NewClient(nil, Config{}).Query(context.Background(), srv.region(), tok1, "x", nil)
	if !errors.As(err, &qerr) || qerr.Kind != KindTransport || qerr.Status != 0 {
		t.Fatalf("error = %v, want transport failure", err)
	}
}

func TestQuery_Timeout(t *testing.T) {
	r := chi.NewRouter()
	r.Post(queryPath, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	})
	srv := httptest.NewServer(r)
	defer srv.Close()

	rc := region.Config{ID: region.I18N, QueryURL: srv.URL + queryPath}
	_, err := NewClient(nil, Config{Timeout: 50 * time.Millisecond}).Query(context.Background(), rc, tok1, "x", nil)

	var qerr *Error
	if !errors.As(err, &qerr) || qerr.Kind != KindTransport || !qerr.Timeout() {
		t.Fatalf("error = %v, want transport timeout", err)
	}
}

func TestQuery_Malformed(t *testing.T) {
	tests := []struct {
		name string
		body string
		want error
	}{
		{name: "not json", body: `not json`, want: ErrNotObject},
		{name: "array", body: `[1,2]`, want: ErrNotObject},
		{name: "no items", body: `{"data":{"total":0}}`, want: ErrNoItems},
		{name: "upstream error code", body: `{"code":40001,"message":"jwt expired"}`, want: ErrNoItems},
		{name: "items not array", body: `{"items":"oops"}`, want: ErrInvalidBody},
		{name: "item not object", body: `{"items":[42]}`, want: ErrInvalidBody},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newLogServer(t, http.StatusOK, tt.body)
			res, err := NewClient(nil, Config{}).Query(context.Background(), srv.region(), tok1, "x", nil)

			var qerr *Error
			if !errors.As(err, &qerr) || qerr.Kind != KindMalformed {
				t.Fatalf("error = %v, want malformed", err)
			}
			if !errors.Is(err, tt.want) {
				t.Errorf("error = %v, want %v", err, tt.want)
			}
			if res != nil {
				t.Error("malformed response must not produce a partial result")
			}
		})
	}
}

func TestQuery_EmptyItems(t *testing.T) {
	for _, body := range []string{`{"data":{"items":null}}`, `{"items":[]}`} {
		srv := newLogServer(t, http.StatusOK, body)
		res, err := NewClient(nil, Config{}).Query(context.Background(), srv.region(), tok1, "x", nil)
		if err != nil {
			t.Fatalf("%s: %v", body, err)
		}
		if res.TotalItems != 0 || res.Messages == nil {
			t.Errorf("%s: result = %+v", body, res)
		}
	}
}
