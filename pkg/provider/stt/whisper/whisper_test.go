package whisper_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MrWong99/voxgate/pkg/audio"
	"github.com/MrWong99/voxgate/pkg/provider/stt"
	"github.com/MrWong99/voxgate/pkg/provider/stt/whisper"
)

// ---- helpers ----------------------------------------------------------------

// inferenceRequest captures what the mock server received.
type inferenceRequest struct {
	fields map[string]string
	wav    audio.AudioFrame
}

// newMockServer creates a test server that responds to POST /inference with a
// JSON body containing responseText and reports each parsed request on reqs.
func newMockServer(t *testing.T, responseText string, calls *atomic.Int32, reqs chan<- inferenceRequest) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet && r.URL.Path == "/" {
			w.WriteHeader(http.StatusOK)
			return
		}
		if r.Method != http.MethodPost || r.URL.Path != "/inference" {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		if calls != nil {
			calls.Add(1)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f, _, err := r.FormFile("file")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		data, _ := io.ReadAll(f)
		wav, err := audio.DecodeWAV(data)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if reqs != nil {
			fields := map[string]string{}
			for k, v := range r.MultipartForm.Value {
				fields[k] = v[0]
			}
			reqs <- inferenceRequest{fields: fields, wav: wav}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"text": responseText})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func speech(n int) []float32 {
	s := make([]float32, n)
	for i := range s {
		if i%2 == 0 {
			s[i] = 0.25
		} else {
			s[i] = -0.25
		}
	}
	return s
}

// ---- provider construction --------------------------------------------------

func TestNew_EmptyServerURL_ReturnsError(t *testing.T) {
	t.Parallel()
	if _, err := whisper.New(""); err == nil {
		t.Fatal("expected error for empty serverURL, got nil")
	}
}

func TestNew_WithOptions(t *testing.T) {
	t.Parallel()
	p, err := whisper.New("http://localhost:8080/",
		whisper.WithModel("small"),
		whisper.WithLanguage("de"),
		whisper.WithHTTPClient(&http.Client{Timeout: time.Second}),
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p == nil {
		t.Fatal("expected non-nil Provider")
	}
}

// ---- transcription ----------------------------------------------------------

func TestTranscribe_SendsWAVAndFields(t *testing.T) {
	t.Parallel()

	reqs := make(chan inferenceRequest, 1)
	srv := newMockServer(t, "  hello there \n", nil, reqs)
	p, _ := whisper.New(srv.URL, whisper.WithLanguage("de"), whisper.WithModel("base"))

	tr, err := p.Transcribe(context.Background(), speech(8000))
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if tr.Text != "hello there" {
		t.Errorf("Text = %q, want %q", tr.Text, "hello there")
	}
	if tr.Language != "de" {
		t.Errorf("Language = %q, want de", tr.Language)
	}
	if tr.Duration != 500*time.Millisecond {
		t.Errorf("Duration = %v, want 500ms", tr.Duration)
	}

	req := <-reqs
	if req.fields["language"] != "de" || req.fields["model"] != "base" || req.fields["response_format"] != "json" {
		t.Errorf("unexpected form fields: %v", req.fields)
	}
	if req.wav.SampleRate != stt.SampleRate || req.wav.Channels != 1 {
		t.Errorf("wav format %dHz %dch, want %dHz mono", req.wav.SampleRate, req.wav.Channels, stt.SampleRate)
	}
	if n := len(req.wav.Data) / 2; n != 8000 {
		t.Errorf("wav carries %d samples, want 8000", n)
	}
}

func TestTranscribe_OmitsEmptyModel(t *testing.T) {
	t.Parallel()

	reqs := make(chan inferenceRequest, 1)
	srv := newMockServer(t, "x", nil, reqs)
	p, _ := whisper.New(srv.URL)

	if _, err := p.Transcribe(context.Background(), speech(160)); err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	req := <-reqs
	if _, ok := req.fields["model"]; ok {
		t.Errorf("model field sent although unset: %v", req.fields)
	}
	if req.fields["language"] != "en" {
		t.Errorf("language = %q, want default en", req.fields["language"])
	}
}

func TestTranscribe_EmptyAudio(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := newMockServer(t, "x", &calls, nil)
	p, _ := whisper.New(srv.URL)

	_, err := p.Transcribe(context.Background(), nil)
	if !errors.Is(err, stt.ErrEmptyAudio) {
		t.Fatalf("err = %v, want ErrEmptyAudio", err)
	}
	if calls.Load() != 0 {
		t.Errorf("server called %d times for empty audio", calls.Load())
	}
}

func TestTranscribe_ServerError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "model not loaded", http.StatusServiceUnavailable)
	}))
	t.Cleanup(srv.Close)
	p, _ := whisper.New(srv.URL)

	if _, err := p.Transcribe(context.Background(), speech(160)); err == nil {
		t.Fatal("expected error for HTTP 503")
	}
}

func TestTranscribe_BadJSON(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("not json"))
	}))
	t.Cleanup(srv.Close)
	p, _ := whisper.New(srv.URL)

	if _, err := p.Transcribe(context.Background(), speech(160)); err == nil {
		t.Fatal("expected JSON parse error")
	}
}

func TestTranscribe_ContextCancelled(t *testing.T) {
	t.Parallel()

	srv := newMockServer(t, "x", nil, nil)
	p, _ := whisper.New(srv.URL)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := p.Transcribe(ctx, speech(160))
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

// ---- ping -------------------------------------------------------------------

func TestPing(t *testing.T) {
	t.Parallel()

	srv := newMockServer(t, "", nil, nil)
	p, _ := whisper.New(srv.URL)
	if err := p.Ping(context.Background()); err != nil {
		t.Errorf("Ping: %v", err)
	}

	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	t.Cleanup(down.Close)
	p, _ = whisper.New(down.URL)
	if err := p.Ping(context.Background()); err == nil {
		t.Error("expected error for HTTP 502")
	}
}
