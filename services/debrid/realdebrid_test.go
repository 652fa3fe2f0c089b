package debrid

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func testClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c := NewClient("test-key")
	c.baseURL = srv.URL
	return c, srv
}

func TestListTorrents(t *testing.T) {
	var gotAuth, gotQuery string
	c, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotQuery = r.URL.RawQuery
		w.Write([]byte(`[{"id":"T1","filename":"Show.S01E01.mkv","hash":"abc","bytes":1234,"added":"2024-01-02T03:04:05.000Z","status":"downloaded"}]`))
	}))

	items, err := c.ListTorrents(context.Background(), 2, 100)
	if err != nil {
		t.Fatalf("ListTorrents failed: %v", err)
	}
	if gotAuth != "Bearer test-key" {
		t.Errorf("expected bearer auth, got %q", gotAuth)
	}
	if gotQuery != "limit=100&page=2" {
		t.Errorf("unexpected query: %q", gotQuery)
	}
	if len(items) != 1 || items[0].ID != "T1" || items[0].Status != "downloaded" {
		t.Fatalf("unexpected items: %+v", items)
	}
}

func TestTorrentInfoParsesFilesAndLinks(t *testing.T) {
	c, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/torrents/info/T1" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		w.Write([]byte(`{"id":"T1","filename":"Pack","status":"downloaded",
			"files":[{"id":1,"path":"/a.mkv","bytes":10,"selected":1},{"id":2,"path":"/b.txt","bytes":1,"selected":0}],
			"links":["https://real-debrid.com/d/ONE"]}`))
	}))

	info, err := c.TorrentInfo(context.Background(), "T1")
	if err != nil {
		t.Fatalf("TorrentInfo failed: %v", err)
	}
	if len(info.Files) != 2 || info.Files[0].Selected != 1 || info.Files[1].Selected != 0 {
		t.Fatalf("unexpected files: %+v", info.Files)
	}
	if len(info.Links) != 1 {
		t.Fatalf("unexpected links: %+v", info.Links)
	}
}

func TestTorrentInfoRequiresID(t *testing.T) {
	c := NewClient("k")
	if _, err := c.TorrentInfo(context.Background(), "  "); err == nil {
		t.Fatal("expected error for empty torrent ID")
	}
}

func TestUnrestrictPostsForm(t *testing.T) {
	c, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if err := r.ParseForm(); err != nil {
			t.Fatalf("parse form: %v", err)
		}
		if r.PostForm.Get("link") != "https://real-debrid.com/d/ONE" {
			t.Errorf("unexpected link: %q", r.PostForm.Get("link"))
		}
		w.Write([]byte(`{"id":"U1","filename":"a.mkv","filesize":10,"download":"https://host/dl/a.mkv"}`))
	}))

	res, err := c.Unrestrict(context.Background(), "https://real-debrid.com/d/ONE")
	if err != nil {
		t.Fatalf("Unrestrict failed: %v", err)
	}
	if res.Download != "https://host/dl/a.mkv" {
		t.Errorf("unexpected download URL: %q", res.Download)
	}
}

func TestBadTokenError(t *testing.T) {
	c, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":"bad_token","error_code":8}`))
	}))

	_, err := c.ListTorrents(context.Background(), 1, 10)
	if !errors.Is(err, ErrBadToken) {
		t.Fatalf("expected ErrBadToken, got %v", err)
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Code != 8 {
		t.Fatalf("expected APIError code 8, got %v", err)
	}
}

func TestAPIErrorNotRetried(t *testing.T) {
	var calls int
	c, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"error":"permission_denied","error_code":9}`))
	}))

	if _, err := c.ListTorrents(context.Background(), 1, 10); err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Fatalf("expected single request for definitive error, got %d", calls)
	}
}

func TestServerErrorRetried(t *testing.T) {
	var calls int
	c, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 2 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(`[]`))
	}))

	items, err := c.ListTorrents(context.Background(), 1, 10)
	if err != nil {
		t.Fatalf("ListTorrents failed after retry: %v", err)
	}
	if len(items) != 0 || calls != 2 {
		t.Fatalf("expected recovery on second attempt, got calls=%d items=%v", calls, items)
	}
}
