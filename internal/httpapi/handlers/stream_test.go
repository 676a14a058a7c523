package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"appendstream/internal/pipeline"

	"github.com/labstack/echo/v4"
)

type fakeStream struct {
	mu     sync.Mutex
	state  pipeline.State
	frames [][]byte
}

func (f *fakeStream) Append(data []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.frames = append(f.frames, append([]byte(nil), data...))
}

func (f *fakeStream) State() pipeline.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *fakeStream) Stats() pipeline.Stats {
	f.mu.Lock()
	defer f.mu.Unlock()
	total := 0
	for _, fr := range f.frames {
		total += len(fr)
	}
	return pipeline.Stats{State: f.state.String(), Buffered: total}
}

type fakeStopper struct {
	calls int
	err   error
}

func (f *fakeStopper) TriggerStop(context.Context) (bool, error) {
	f.calls++
	if f.err != nil {
		return false, f.err
	}
	return f.calls == 1, nil
}

func (f *fakeStopper) Status() StopStatus {
	return StopStatus{Running: f.calls > 0}
}

func serve(t *testing.T, route func(*echo.Echo), req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	route(e)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestPostFrame(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		state      pipeline.State
		body       string
		wantStatus int
		wantFrames int
	}{
		{name: "ready accepts", state: pipeline.StateReady, body: "abcd", wantStatus: http.StatusAccepted, wantFrames: 1},
		{name: "uninitialized buffers", state: pipeline.StateUninitialized, body: "abcd", wantStatus: http.StatusAccepted, wantFrames: 1},
		{name: "empty body", state: pipeline.StateReady, body: "", wantStatus: http.StatusBadRequest},
		{name: "too large", state: pipeline.StateReady, body: strings.Repeat("x", 17), wantStatus: http.StatusRequestEntityTooLarge},
		{name: "creation failed", state: pipeline.StateCreationFailed, body: "abcd", wantStatus: http.StatusServiceUnavailable},
		{name: "stopped", state: pipeline.StateStopped, body: "abcd", wantStatus: http.StatusConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			stream := &fakeStream{state: tt.state}
			h := New(stream, nil, 16)

			req := httptest.NewRequest(http.MethodPost, "/frames", strings.NewReader(tt.body))
			rec := serve(t, func(e *echo.Echo) { e.POST("/frames", h.PostFrame) }, req)

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d (body %s)", rec.Code, tt.wantStatus, rec.Body.String())
			}
			if len(stream.frames) != tt.wantFrames {
				t.Fatalf("frames appended = %d, want %d", len(stream.frames), tt.wantFrames)
			}
		})
	}
}

func TestPostFrame_ChunkedBodyOverLimit(t *testing.T) {
	t.Parallel()

	stream := &fakeStream{state: pipeline.StateReady}
	h := New(stream, nil, 8)

	// Unknown length forces the MaxBytesReader path.
	req := httptest.NewRequest(http.MethodPost, "/frames", bytes.NewBufferString(strings.Repeat("y", 64)))
	req.ContentLength = -1
	rec := serve(t, func(e *echo.Echo) { e.POST("/frames", h.PostFrame) }, req)

	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("status = %d, want 413", rec.Code)
	}
	if len(stream.frames) != 0 {
		t.Fatalf("oversized frame reached the stream")
	}
}

func TestHealthz(t *testing.T) {
	t.Parallel()

	for state, want := range map[pipeline.State]int{
		pipeline.StateReady:          http.StatusOK,
		pipeline.StateStopped:        http.StatusOK,
		pipeline.StateCreationFailed: http.StatusServiceUnavailable,
	} {
		h := New(&fakeStream{state: state}, nil, 0)
		req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
		rec := serve(t, func(e *echo.Echo) { e.GET("/healthz", h.Healthz) }, req)
		if rec.Code != want {
			t.Fatalf("state %s: status = %d, want %d", state, rec.Code, want)
		}

		var body struct {
			OK    bool   `json:"ok"`
			State string `json:"state"`
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if body.State != state.String() || body.OK != (want == http.StatusOK) {
			t.Fatalf("state %s: body = %+v", state, body)
		}
	}
}

func TestStopStream(t *testing.T) {
	t.Parallel()

	stopper := &fakeStopper{}
	h := New(&fakeStream{state: pipeline.StateReady}, stopper, 0)
	route := func(e *echo.Echo) { e.POST("/stop", h.StopStream) }

	rec := serve(t, route, httptest.NewRequest(http.MethodPost, "/stop", nil))
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"started":true`) {
		t.Fatalf("first stop body = %s", rec.Body.String())
	}

	rec = serve(t, route, httptest.NewRequest(http.MethodPost, "/stop", nil))
	if rec.Code != http.StatusAccepted || !strings.Contains(rec.Body.String(), `"started":false`) {
		t.Fatalf("second stop = %d %s", rec.Code, rec.Body.String())
	}
}

func TestStopStream_Errors(t *testing.T) {
	t.Parallel()

	h := New(&fakeStream{}, nil, 0)
	rec := serve(t, func(e *echo.Echo) { e.POST("/stop", h.StopStream) }, httptest.NewRequest(http.MethodPost, "/stop", nil))
	if rec.Code != http.StatusNotImplemented {
		t.Fatalf("nil stopper status = %d, want 501", rec.Code)
	}

	h = New(&fakeStream{}, &fakeStopper{err: errors.New("boom")}, 0)
	rec = serve(t, func(e *echo.Echo) { e.POST("/stop", h.StopStream) }, httptest.NewRequest(http.MethodPost, "/stop", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("failing stopper status = %d, want 500", rec.Code)
	}
}

func TestGetStream(t *testing.T) {
	t.Parallel()

	stream := &fakeStream{state: pipeline.StateUploading}
	stream.Append([]byte("hello"))
	h := New(stream, &fakeStopper{}, 0)

	rec := serve(t, func(e *echo.Echo) { e.GET("/stream", h.GetStream) }, httptest.NewRequest(http.MethodGet, "/stream", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body struct {
		Stream pipeline.Stats `json:"stream"`
		Stop   StopStatus     `json:"stop"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Stream.State != "uploading" || body.Stream.Buffered != 5 {
		t.Fatalf("stream = %+v", body.Stream)
	}
}
