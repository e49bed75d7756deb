package inspect

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/statekit-dev/statekit/pkg/registry"
)

func newTestServer(t *testing.T) (*registry.Registry, *Server, *httptest.Server) {
	t.Helper()
	reg := registry.New()
	insp := NewServer(reg)
	srv := httptest.NewServer(insp)
	t.Cleanup(func() {
		srv.Close()
		insp.Close()
	})
	return reg, insp, srv
}

func getJSON(t *testing.T, url string, into any) int {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s failed: %v", url, err)
	}
	defer resp.Body.Close()
	if into != nil {
		if err := json.NewDecoder(resp.Body).Decode(into); err != nil {
			t.Fatalf("Decoding %s response: %v", url, err)
		}
	}
	return resp.StatusCode
}

func TestHealthz(t *testing.T) {
	_, _, srv := newTestServer(t)

	var body map[string]string
	if status := getJSON(t, srv.URL+"/healthz", &body); status != http.StatusOK {
		t.Fatalf("Expected 200, got %d", status)
	}
	if body["status"] != "ok" {
		t.Errorf("Expected status ok, got %v", body)
	}
}

func TestKeysSnapshot(t *testing.T) {
	reg, _, srv := newTestServer(t)

	reg.Set("count", float64(3))
	reg.Set("name", "ada")
	reg.AddListener("count", func(value, old any) {})

	var body struct {
		Keys []keyView `json:"keys"`
	}
	if status := getJSON(t, srv.URL+"/api/keys", &body); status != http.StatusOK {
		t.Fatalf("Expected 200, got %d", status)
	}
	if len(body.Keys) != 2 {
		t.Fatalf("Expected 2 keys, got %v", body.Keys)
	}
	// Keys are sorted.
	if body.Keys[0].Key != "count" || body.Keys[1].Key != "name" {
		t.Errorf("Expected sorted keys [count name], got %v", body.Keys)
	}
	if body.Keys[0].Listeners != 1 {
		t.Errorf("Expected 1 listener on count, got %d", body.Keys[0].Listeners)
	}
}

func TestKeyGet(t *testing.T) {
	reg, _, srv := newTestServer(t)

	if status := getJSON(t, srv.URL+"/api/keys/missing", nil); status != http.StatusNotFound {
		t.Errorf("Expected 404 for unset key, got %d", status)
	}

	reg.Set("count", float64(5))
	var view keyView
	if status := getJSON(t, srv.URL+"/api/keys/count", &view); status != http.StatusOK {
		t.Fatalf("Expected 200, got %d", status)
	}
	if view.Value != float64(5) {
		t.Errorf("Expected value 5, got %v", view.Value)
	}
}

func putJSON(t *testing.T, url, body string) (*http.Response, string) {
	t.Helper()
	req, err := http.NewRequest(http.MethodPut, url, strings.NewReader(body))
	if err != nil {
		t.Fatalf("Building request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("PUT %s failed: %v", url, err)
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)
	return resp, string(data)
}

func TestKeyPut(t *testing.T) {
	reg, _, srv := newTestServer(t)

	resp, _ := putJSON(t, srv.URL+"/api/keys/count", "41")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}
	if got := reg.Get("count"); got != float64(41) {
		t.Errorf("Expected 41 stored, got %v", got)
	}

	resp, _ = putJSON(t, srv.URL+"/api/keys/count", "{not json")
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected 400 for invalid body, got %d", resp.StatusCode)
	}
}

func TestKeyPutForce(t *testing.T) {
	reg, _, srv := newTestServer(t)

	fired := 0
	reg.AddListener("count", func(value, old any) { fired++ })

	putJSON(t, srv.URL+"/api/keys/count", "1")
	putJSON(t, srv.URL+"/api/keys/count", "1") // equal value, skipped
	if fired != 1 {
		t.Fatalf("Expected repeated put to be a no-op, got %d notifications", fired)
	}

	putJSON(t, srv.URL+"/api/keys/count?force=1", "1")
	if fired != 2 {
		t.Errorf("Expected forced put to notify, got %d notifications", fired)
	}
}

func TestChangeStream(t *testing.T) {
	reg, insp, srv := newTestServer(t)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("Dialing stream: %v", err)
	}
	defer conn.Close()

	// Wait for the hub to register the client.
	deadline := time.Now().Add(2 * time.Second)
	for insp.hub.clientCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("Stream client never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	reg.Set("count", 1)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("Reading stream event: %v", err)
	}

	var event changeEvent
	if err := json.Unmarshal(data, &event); err != nil {
		t.Fatalf("Decoding stream event: %v", err)
	}
	if event.Key != "count" || event.Value != float64(1) || event.OldValue != nil {
		t.Errorf("Unexpected event %+v", event)
	}

	// A skipped write produces no event.
	reg.Set("count", 1)
	reg.Set("count", 2)
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err = conn.ReadMessage()
	if err != nil {
		t.Fatalf("Reading second stream event: %v", err)
	}
	if err := json.Unmarshal(data, &event); err != nil {
		t.Fatalf("Decoding second stream event: %v", err)
	}
	if event.Key != "count" || event.Value != float64(2) {
		t.Errorf("Expected event for value 2, got %+v", event)
	}
}

func TestChangeStreamConcurrentWrites(t *testing.T) {
	reg, insp, srv := newTestServer(t)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("Dialing stream: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for insp.hub.clientCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("Stream client never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	// Drain events so the client keeps up with the writers.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	// Writes from many goroutines must serialize onto the stream
	// connection; only ever one goroutine may write to a websocket.
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			key := "writer." + strconv.Itoa(g)
			for i := 0; i < 200; i++ {
				reg.Set(key, i)
			}
		}(g)
	}
	wg.Wait()

	if got := reg.Get("writer.0"); got != 199 {
		t.Errorf("Expected final value 199, got %v", got)
	}
	if status := getJSON(t, srv.URL+"/healthz", nil); status != http.StatusOK {
		t.Errorf("Expected healthy server after concurrent writes, got %d", status)
	}
}

func TestCloseDetaches(t *testing.T) {
	reg := registry.New()
	insp := NewServer(reg)
	srv := httptest.NewServer(insp)
	defer srv.Close()

	insp.Close()

	// Writes after Close must not panic or broadcast.
	reg.Set("count", 1)
	if got := insp.hub.clientCount(); got != 0 {
		t.Errorf("Expected no clients after Close, got %d", got)
	}
}

func TestTracingMiddleware(t *testing.T) {
	reg := registry.New()
	insp := NewServer(reg, WithTracing("statekit-test"))
	srv := httptest.NewServer(insp)
	defer srv.Close()
	defer insp.Close()

	// With no tracer provider configured the middleware is a pass-through.
	var body map[string]string
	if status := getJSON(t, srv.URL+"/healthz", &body); status != http.StatusOK {
		t.Fatalf("Expected 200 through tracing middleware, got %d", status)
	}
}

func TestMetricsHandlerMounted(t *testing.T) {
	reg := registry.New()
	insp := NewServer(reg, WithMetricsHandler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("metrics"))
	})))
	srv := httptest.NewServer(insp)
	defer srv.Close()
	defer insp.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected 200 from mounted handler, got %d", resp.StatusCode)
	}
}
