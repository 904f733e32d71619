package resource

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func newTestServer(t *testing.T, storeCfg Config, token string) (*Store, *httptest.Server) {
	t.Helper()
	s := newTestStore(t, storeCfg)
	srv := NewServer(s, ServerConfig{
		Path:   "/resources",
		Token:  token,
		Logger: testLogger(),
	})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return s, ts
}

func doRequest(t *testing.T, method, url string, body io.Reader) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, url, body)
	if err != nil {
		t.Fatalf("NewRequest() error = %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s error = %v", method, url, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestServerUploadDownloadDelete(t *testing.T) {
	store, ts := newTestServer(t, Config{}, "")
	data := []byte("streamed object bytes")

	ticket, err := store.Prepare("image", "image/png", int64(len(data)), "")
	if err != nil {
		t.Fatalf("Prepare() error = %v", err)
	}
	url := ts.URL + "/resources/" + ticket.RID

	resp := doRequest(t, http.MethodPut, url, bytes.NewReader(data))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("PUT status = %d, want 200", resp.StatusCode)
	}
	var result struct {
		RID    string `json:"rid"`
		Size   int64  `json:"size"`
		SHA256 string `json:"sha256"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatalf("decode PUT response: %v", err)
	}
	if result.Size != int64(len(data)) || result.SHA256 == "" {
		t.Errorf("PUT response = %+v, want size %d and digest", result, len(data))
	}

	resp = doRequest(t, http.MethodGet, url, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET status = %d, want 200", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "image/png" {
		t.Errorf("content type = %q, want image/png", ct)
	}
	got, _ := io.ReadAll(resp.Body)
	if !bytes.Equal(got, data) {
		t.Errorf("GET body = %q, want %q", got, data)
	}

	resp = doRequest(t, http.MethodDelete, url, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("DELETE status = %d, want 200", resp.StatusCode)
	}
	resp = doRequest(t, http.MethodGet, url, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("GET after DELETE status = %d, want 404", resp.StatusCode)
	}
}

func TestServerAuth(t *testing.T) {
	store, ts := newTestServer(t, Config{}, "secret")
	rid := uploadObject(t, store, "image", []byte("guarded"))
	url := ts.URL + "/resources/" + rid

	resp := doRequest(t, http.MethodGet, url, nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("no-auth status = %d, want 401", resp.StatusCode)
	}

	req, _ := http.NewRequest(http.MethodGet, url, nil)
	req.Header.Set("Authorization", "Bearer secret")
	resp2, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET error = %v", err)
	}
	defer resp2.Body.Close()
	if resp2.StatusCode != http.StatusOK {
		t.Errorf("bearer status = %d, want 200", resp2.StatusCode)
	}

	resp = doRequest(t, http.MethodGet, url+"?token=secret", nil)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("query token status = %d, want 200", resp.StatusCode)
	}

	resp = doRequest(t, http.MethodGet, url+"?token=wrong", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("wrong token status = %d, want 401", resp.StatusCode)
	}
}

func TestServerPutUnknownRID(t *testing.T) {
	_, ts := newTestServer(t, Config{}, "")
	resp := doRequest(t, http.MethodPut, ts.URL+"/resources/nope", strings.NewReader("x"))
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("PUT unknown rid status = %d, want 404", resp.StatusCode)
	}
}

func TestServerPutOverQuota(t *testing.T) {
	store, ts := newTestServer(t, Config{MaxTotalBytes: 100}, "")
	ticket, err := store.Prepare("video", "video/mp4", 10, "")
	if err != nil {
		t.Fatalf("Prepare() error = %v", err)
	}

	// Declared content length exceeds what the store could ever hold.
	body := bytes.Repeat([]byte("v"), 500)
	resp := doRequest(t, http.MethodPut, ts.URL+"/resources/"+ticket.RID, bytes.NewReader(body))
	if resp.StatusCode != http.StatusRequestEntityTooLarge {
		t.Errorf("PUT status = %d, want 413", resp.StatusCode)
	}
}

func TestServerHealthz(t *testing.T) {
	_, ts := newTestServer(t, Config{}, "")
	resp := doRequest(t, http.MethodGet, ts.URL+"/healthz", nil)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("healthz status = %d, want 200", resp.StatusCode)
	}
}

func TestServerPutLargeDeclaredUpload(t *testing.T) {
	store, ts := newTestServer(t, Config{MaxTotalBytes: 1000}, "")
	data := bytes.Repeat([]byte("x"), 800)

	ticket, err := store.Prepare("image", "image/png", int64(len(data)), "")
	if err != nil {
		t.Fatalf("Prepare() error = %v", err)
	}

	// The payload exceeds half the quota; its Prepare reservation must
	// carry through the PUT instead of being evicted by it.
	resp := doRequest(t, http.MethodPut, ts.URL+"/resources/"+ticket.RID, bytes.NewReader(data))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("PUT status = %d, want 200", resp.StatusCode)
	}
	entry, ok := store.Lookup(ticket.RID)
	if !ok {
		t.Fatal("entry evicted during its own upload")
	}
	if entry.Status != StatusReady || entry.Size != int64(len(data)) {
		t.Errorf("entry = %+v, want ready with %d bytes", entry, len(data))
	}
}
