package ripedb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync/atomic"
	"testing"

	"ripeipsearch/ratelimit"
	"ripeipsearch/record"
)

type fakeDoc [][2]string

func responseBody(total, start int, docs []fakeDoc) map[string]any {
	var out []any
	for _, d := range docs {
		var strs []any
		for _, kv := range d {
			str := map[string]any{"name": kv[0]}
			if kv[1] != "" {
				str["value"] = kv[1]
			}
			strs = append(strs, map[string]any{"str": str})
		}
		out = append(out, map[string]any{"doc": map[string]any{"strs": strs}})
	}
	return map[string]any{
		"result": map[string]any{
			"name":     "response",
			"numFound": total,
			"start":    start,
			"docs":     out,
		},
	}
}

func inetnumDoc(i int) fakeDoc {
	return fakeDoc{
		{"primary-key", strconv.Itoa(i)},
		{"object-type", "inetnum"},
		{"lookup-key", fmt.Sprintf("10.0.%d.0 - 10.0.%d.255", i, i)},
		{"descr", "first"},
		{"descr", "second"},
	}
}

// pagedServer serves total inetnum documents in pages of pageSize.
func pagedServer(t *testing.T, total, pageSize int, requests *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		if r.URL.Path != "/fulltextsearch/select" {
			http.NotFound(w, r)
			return
		}
		start, err := strconv.Atoi(r.URL.Query().Get("start"))
		if err != nil {
			t.Errorf("bad start parameter %q", r.URL.Query().Get("start"))
		}
		var docs []fakeDoc
		for i := start; i < total && i < start+pageSize; i++ {
			docs = append(docs, inetnumDoc(i))
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(responseBody(total, start, docs))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestClient(srv *httptest.Server, opts ...Option) *Client {
	opts = append([]Option{
		WithBaseURL(srv.URL),
		WithHTTPClient(srv.Client()),
		WithLimiter(ratelimit.New(0)),
	}, opts...)
	return NewClient(opts...)
}

func collect(t *testing.T, c *Client, term string) ([]*record.Record, error) {
	t.Helper()
	var recs []*record.Record
	for rec, err := range c.Search(context.Background(), term, nil) {
		if err != nil {
			return recs, err
		}
		recs = append(recs, rec)
	}
	return recs, nil
}

func TestSearchPagination(t *testing.T) {
	tests := []struct {
		name     string
		total    int
		requests int32
	}{
		{"no results", 0, 1},
		{"single page", 7, 1},
		{"exact page", 10, 1},
		{"two pages", 15, 2},
		{"three pages", 30, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var requests atomic.Int32
			srv := pagedServer(t, tt.total, DefaultPageSize, &requests)
			recs, err := collect(t, newTestClient(srv), "example")
			if err != nil {
				t.Fatalf("Search returned %v", err)
			}
			if len(recs) != tt.total {
				t.Fatalf("got %d records, want %d", len(recs), tt.total)
			}
			for i, rec := range recs {
				if rec.PrimaryKey() != strconv.Itoa(i) {
					t.Fatalf("record %d has primary key %s", i, rec.PrimaryKey())
				}
			}
			if got := requests.Load(); got != tt.requests {
				t.Fatalf("made %d requests, want %d", got, tt.requests)
			}
		})
	}
}

func TestSearchIsLazy(t *testing.T) {
	var requests atomic.Int32
	srv := pagedServer(t, 25, DefaultPageSize, &requests)
	c := newTestClient(srv)

	n := 0
	for _, err := range c.Search(context.Background(), "example", nil) {
		if err != nil {
			t.Fatal(err)
		}
		n++
		if n == 3 {
			break
		}
	}
	if got := requests.Load(); got != 1 {
		t.Fatalf("made %d requests after consuming 3 records, want 1", got)
	}
}

func TestSearchIsRestartable(t *testing.T) {
	var requests atomic.Int32
	srv := pagedServer(t, 12, DefaultPageSize, &requests)
	seq := newTestClient(srv).Search(context.Background(), "example", nil)

	for round := 0; round < 2; round++ {
		n := 0
		for _, err := range seq {
			if err != nil {
				t.Fatal(err)
			}
			n++
		}
		if n != 12 {
			t.Fatalf("round %d: got %d records, want 12", round, n)
		}
	}
	if got := requests.Load(); got != 4 {
		t.Fatalf("made %d requests, want 4", got)
	}
}

func TestSearchPageOverflow(t *testing.T) {
	var requests atomic.Int32
	srv := pagedServer(t, 30, 11, &requests)
	recs, err := collect(t, newTestClient(srv), "example")

	var sizeErr *PageSizeError
	if !errors.As(err, &sizeErr) || !errors.Is(err, ErrPageOverflow) {
		t.Fatalf("Search returned %v, want *PageSizeError", err)
	}
	if sizeErr.Got != 11 || sizeErr.PageSize != DefaultPageSize {
		t.Fatalf("PageSizeError = %+v", sizeErr)
	}
	if len(recs) != 0 {
		t.Fatalf("got %d records from an oversized page", len(recs))
	}
	if got := requests.Load(); got != 1 {
		t.Fatalf("made %d requests, want 1", got)
	}
}

func TestSearchCustomPageSize(t *testing.T) {
	var requests atomic.Int32
	srv := pagedServer(t, 12, 4, &requests)
	recs, err := collect(t, newTestClient(srv, WithPageSize(4)), "example")
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 12 || requests.Load() != 3 {
		t.Fatalf("got %d records in %d requests, want 12 in 3", len(recs), requests.Load())
	}

	srv = pagedServer(t, 12, DefaultPageSize, &requests)
	_, err = collect(t, newTestClient(srv, WithPageSize(4)), "example")
	var sizeErr *PageSizeError
	if !errors.As(err, &sizeErr) || sizeErr.Got != DefaultPageSize || sizeErr.PageSize != 4 {
		t.Fatalf("Search returned %v, want *PageSizeError for %d items", err, DefaultPageSize)
	}
}

func TestSearchEmptyPageBeforeTotal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(responseBody(5, 0, nil))
	}))
	defer srv.Close()

	_, err := collect(t, newTestClient(srv), "example")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("Search returned %v, want *APIError", err)
	}
}

func TestSearchDuplicateField(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		doc := fakeDoc{{"object-type", "inetnum"}, {"status", "ASSIGNED PA"}, {"status", "LEGACY"}}
		_ = json.NewEncoder(w).Encode(responseBody(1, 0, []fakeDoc{doc}))
	}))
	defer srv.Close()

	_, err := collect(t, newTestClient(srv), "example")
	var dup *record.DuplicateFieldError
	if !errors.As(err, &dup) || dup.Key != "status" {
		t.Fatalf("Search returned %v, want duplicate status", err)
	}
}

func TestSelectErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"not json", http.StatusOK, "<html>maintenance</html>"},
		{"no result", http.StatusOK, `{"error":"nope"}`},
		{"wrong name", http.StatusOK, `{"result":{"name":"error","numFound":0,"start":0}}`},
		{"server error", http.StatusBadGateway, "bad gateway"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := newTestClient(srv).Select(context.Background(), SearchParams("x", 0, nil))
			var apiErr *APIError
			if !errors.As(err, &apiErr) {
				t.Fatalf("Select returned %v, want *APIError", err)
			}
		})
	}
}

func TestSelectRequest(t *testing.T) {
	var got *http.Request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Clone(context.Background())
		_ = json.NewEncoder(w).Encode(responseBody(1, 0, []fakeDoc{{{"object-type", "inetnum"}, {"remarks", ""}}}))
	}))
	defer srv.Close()

	c := newTestClient(srv, WithReferer("https://example.net/db-web-ui/fulltextsearch"))
	page, err := c.Select(context.Background(), SearchParams("ACME Corp", 20, url.Values{"facet": {"false"}, "rows": {"10"}}))
	if err != nil {
		t.Fatal(err)
	}

	q := got.URL.Query()
	expected := map[string]string{
		"facet":  "false",
		"format": "xml",
		"hl":     "true",
		"q":      `("ACME Corp") AND (object-type:inetnum OR object-type:inet6num)`,
		"start":  "20",
		"wt":     "json",
		"rows":   "10",
	}
	for k, v := range expected {
		if q.Get(k) != v {
			t.Errorf("query %s = %q, want %q", k, q.Get(k), v)
		}
	}

	headers := map[string]string{
		"Accept":           "application/json, text/plain, */*",
		"Accept-Language":  DefaultAcceptLanguage,
		"Content-Type":     "application/json; charset=utf-8",
		"Referer":          "https://example.net/db-web-ui/fulltextsearch",
		"User-Agent":       DefaultUserAgent,
		"X-Requested-With": "XMLHttpRequest",
	}
	for k, v := range headers {
		if got.Header.Get(k) != v {
			t.Errorf("header %s = %q, want %q", k, got.Header.Get(k), v)
		}
	}

	if page.Total != 1 || len(page.Items) != 1 {
		t.Fatalf("page = %+v", page)
	}
	if remarks := page.Items[0][1]; remarks.Name != "remarks" || remarks.Value != "" {
		t.Fatalf("missing value decoded as %+v", remarks)
	}
}

func TestSearchEmptyTerm(t *testing.T) {
	c := NewClient()
	for _, err := range c.Search(context.Background(), "   ", nil) {
		if !errors.Is(err, ErrEmptyTerm) {
			t.Fatalf("Search returned %v, want ErrEmptyTerm", err)
		}
	}
}

func TestSearchCancelled(t *testing.T) {
	var requests atomic.Int32
	srv := pagedServer(t, 15, DefaultPageSize, &requests)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var errs []error
	for _, err := range newTestClient(srv).Search(ctx, "example", nil) {
		errs = append(errs, err)
	}
	if len(errs) != 1 || !errors.Is(errs[0], context.Canceled) {
		t.Fatalf("got %v, want a single context.Canceled", errs)
	}
}

func TestDefaultReferer(t *testing.T) {
	c := NewClient()
	if c.referer != "https://apps.db.ripe.net/db-web-ui/fulltextsearch" {
		t.Fatalf("referer = %q", c.referer)
	}
}
