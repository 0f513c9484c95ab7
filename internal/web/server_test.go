package web

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"stemprep/internal/pipeline"
)

func TestHandleReport(t *testing.T) {
	m := NewMonitor()
	m.Start(testReport())
	srv := httptest.NewServer(NewServer(m, nil).Router())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/report")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}
	var got ReportResponse
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatal(err)
	}
	if got.Status != StatusRunning || got.Report == nil || got.Report.Total != 2 || got.Report.Success != 1 {
		t.Errorf("response = %+v", got)
	}
}

func TestHandleReportBeforeStart(t *testing.T) {
	srv := httptest.NewServer(NewServer(NewMonitor(), nil).Router())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/report")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var got ReportResponse
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatal(err)
	}
	if got.Status != StatusPending || got.Report != nil {
		t.Errorf("response = %+v", got)
	}
}

func TestHandleFiles(t *testing.T) {
	m := NewMonitor()
	m.Start(testReport())
	srv := httptest.NewServer(NewServer(m, nil).Router())
	defer srv.Close()

	tests := []struct {
		query    string
		wantCode int
		wantLen  int
	}{
		{"", http.StatusOK, 2},
		{"?outcome=failed", http.StatusOK, 1},
		{"?outcome=partial", http.StatusOK, 0},
		{"?outcome=bogus", http.StatusBadRequest, 0},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			resp, err := http.Get(srv.URL + "/api/files" + tt.query)
			if err != nil {
				t.Fatal(err)
			}
			defer resp.Body.Close()

			if resp.StatusCode != tt.wantCode {
				t.Fatalf("status = %d, want %d", resp.StatusCode, tt.wantCode)
			}
			if tt.wantCode != http.StatusOK {
				return
			}
			var files []pipeline.FileReport
			if err := json.NewDecoder(resp.Body).Decode(&files); err != nil {
				t.Fatal(err)
			}
			if len(files) != tt.wantLen {
				t.Errorf("got %d files, want %d", len(files), tt.wantLen)
			}
		})
	}
}

func TestMethodNotAllowed(t *testing.T) {
	srv := httptest.NewServer(NewServer(NewMonitor(), nil).Router())
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/api/report", "application/json", strings.NewReader("{}"))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("status = %d", resp.StatusCode)
	}
}

func TestWebSocketStream(t *testing.T) {
	m := NewMonitor()
	m.Start(testReport())
	srv := httptest.NewServer(NewServer(m, nil).Router())
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial() error: %v", err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var state Event
	if err := conn.ReadJSON(&state); err != nil {
		t.Fatal(err)
	}
	if state.Type != "state" || state.Status != StatusRunning || state.RunID != "run-1" {
		t.Errorf("initial event = %+v", state)
	}

	m.FileDone(pipeline.FileReport{Source: "/in/a.wav"})
	m.Finish()

	var file, done Event
	if err := conn.ReadJSON(&file); err != nil {
		t.Fatal(err)
	}
	if file.Type != EventFile || file.File == nil || file.File.Source != "/in/a.wav" {
		t.Errorf("file event = %+v", file)
	}
	if err := conn.ReadJSON(&done); err != nil {
		t.Fatal(err)
	}
	if done.Type != EventDone {
		t.Errorf("done event = %+v", done)
	}

	if _, _, err := conn.ReadMessage(); !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
		t.Errorf("expected normal close after the run, got %v", err)
	}
}

func TestStartAndShutdown(t *testing.T) {
	s := NewServer(NewMonitor(), nil)
	addr, err := s.Start("127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}

	resp, err := http.Get("http://" + addr.String() + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d", resp.StatusCode)
	}

	if err := s.Shutdown(t.Context()); err != nil {
		t.Errorf("Shutdown() error: %v", err)
	}
}
