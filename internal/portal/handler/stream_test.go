package handler_test

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/jmerrifield20/WavePortal/internal/events"
)

func TestStream_deliversNewWave(t *testing.T) {
	env := setupRouter(t)
	srv := httptest.NewServer(env.router)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/v1/waves/stream", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/event-stream") {
		t.Fatalf("content type: %q", ct)
	}

	deadline := time.Now().Add(2 * time.Second)
	for env.broker.Len() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("stream never subscribed")
		}
		time.Sleep(5 * time.Millisecond)
	}

	if _, err := env.svc.Wave(context.Background(), userAddr, "streamed"); err != nil {
		t.Fatal(err)
	}

	sc := bufio.NewScanner(resp.Body)
	event := ""
	for sc.Scan() {
		line := sc.Text()
		if strings.HasPrefix(line, "event:") {
			event = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
			continue
		}
		if event != "new_wave" || !strings.HasPrefix(line, "data:") {
			continue
		}
		var ev events.NewWave
		if err := json.Unmarshal([]byte(strings.TrimSpace(strings.TrimPrefix(line, "data:"))), &ev); err != nil {
			t.Fatalf("decode event: %v", err)
		}
		if ev.From != userAddr || ev.Message != "streamed" || ev.Index != 0 {
			t.Errorf("unexpected event: %+v", ev)
		}
		return
	}
	t.Fatalf("stream ended without new_wave: %v", sc.Err())
}
