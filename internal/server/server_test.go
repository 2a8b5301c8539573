package server_test

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/zaf/g711"

	"github.com/MrWong99/voxgate/internal/gate"
	"github.com/MrWong99/voxgate/internal/health"
	"github.com/MrWong99/voxgate/internal/resilience"
	"github.com/MrWong99/voxgate/internal/server"
	"github.com/MrWong99/voxgate/internal/verdict"
	"github.com/MrWong99/voxgate/pkg/audio"
	"github.com/MrWong99/voxgate/pkg/provider/stt"
	sttmock "github.com/MrWong99/voxgate/pkg/provider/stt/mock"
	"github.com/MrWong99/voxgate/pkg/provider/vad"
)

// ── helpers ──────────────────────────────────────────────────────────────────

func energyDetector(t *testing.T) vad.Detector {
	t.Helper()
	cfg := vad.DefaultConfig()
	cfg.Enabled = true
	det, err := vad.New(cfg)
	if err != nil {
		t.Fatalf("vad.New: %v", err)
	}
	return det
}

func tone(rate int, seconds float64) []float32 {
	s := make([]float32, int(float64(rate)*seconds))
	for i := range s {
		s[i] = float32(0.5 * math.Sin(2*math.Pi*440*float64(i)/float64(rate)))
	}
	return s
}

// floatWAV builds a mono IEEE float32 WAV file around samples.
func floatWAV(samples []float32, rate int) []byte {
	data := make([]byte, len(samples)*4)
	for i, v := range samples {
		binary.LittleEndian.PutUint32(data[i*4:], math.Float32bits(v))
	}
	b := []byte("RIFF\x00\x00\x00\x00WAVEfmt ")
	b = binary.LittleEndian.AppendUint32(b, 16)
	b = binary.LittleEndian.AppendUint16(b, 3)
	b = binary.LittleEndian.AppendUint16(b, 1)
	b = binary.LittleEndian.AppendUint32(b, uint32(rate))
	b = binary.LittleEndian.AppendUint32(b, uint32(rate*4))
	b = binary.LittleEndian.AppendUint16(b, 4)
	b = binary.LittleEndian.AppendUint16(b, 32)
	b = append(b, "data"...)
	b = binary.LittleEndian.AppendUint32(b, uint32(len(data)))
	b = append(b, data...)
	binary.LittleEndian.PutUint32(b[4:], uint32(len(b)-8))
	return b
}

func filled(n int, v float32) []float32 {
	s := make([]float32, n)
	for i := range s {
		s[i] = v
	}
	return s
}

type response struct {
	ID       string      `json:"id"`
	Decision string      `json:"decision"`
	Verdict  *vad.Result `json:"verdict"`
	Text     string      `json:"text"`
	Error    string      `json:"error"`
}

func post(t *testing.T, h http.Handler, path, contentType string, body []byte) (int, response) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var resp response
	if err := sonic.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return rec.Code, resp
}

// ── /v1/detect ───────────────────────────────────────────────────────────────

func TestDetect_Formats(t *testing.T) {
	t.Parallel()
	srv := server.New(gate.New(energyDetector(t), nil))

	pcm8k := audio.Float32ToPCM16(tone(8000, 1))

	tests := []struct {
		name        string
		contentType string
		body        []byte
		wantSpeech  bool
		wantSecs    float64
	}{
		{
			name:        "wav tone",
			contentType: "audio/wav",
			body:        audio.EncodeSamplesWAV(tone(16000, 1), 16000),
			wantSpeech:  true,
			wantSecs:    1,
		},
		{
			name:       "wav without content type",
			body:       audio.EncodeSamplesWAV(make([]float32, 8000), 16000),
			wantSpeech: false,
			wantSecs:   0.5,
		},
		{
			name:        "stereo 48k wav",
			contentType: "audio/x-wav",
			body:        audio.EncodeWAV(audio.MonoToStereo(audio.Float32ToPCM16(tone(48000, 1))), 48000, 2),
			wantSpeech:  true,
			wantSecs:    1,
		},
		{
			name:        "l16 with rate",
			contentType: "audio/L16; rate=8000",
			body:        pcm8k,
			wantSpeech:  true,
			wantSecs:    1,
		},
		{
			name:        "float wav of infinities",
			contentType: "audio/wav",
			body:        floatWAV(filled(16000, float32(math.Inf(1))), 16000),
			wantSpeech:  false,
			wantSecs:    1,
		},
		{
			name:        "float wav tone",
			contentType: "audio/wav",
			body:        floatWAV(tone(16000, 1), 16000),
			wantSpeech:  true,
			wantSecs:    1,
		},
		{
			name:        "pcmu",
			contentType: "audio/PCMU",
			body:        g711.EncodeUlaw(pcm8k),
			wantSpeech:  true,
			wantSecs:    1,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			code, resp := post(t, srv, "/v1/detect", tc.contentType, tc.body)
			if code != http.StatusOK {
				t.Fatalf("status = %d (%s)", code, resp.Error)
			}
			if resp.ID == "" || resp.Verdict == nil {
				t.Fatalf("response = %+v", resp)
			}
			if resp.Verdict.HasSpeech != tc.wantSpeech {
				t.Errorf("has_speech = %v, want %v", resp.Verdict.HasSpeech, tc.wantSpeech)
			}
			if math.Abs(resp.Verdict.TotalDurationSecs-tc.wantSecs) > 0.01 {
				t.Errorf("total_duration_secs = %v, want %v", resp.Verdict.TotalDurationSecs, tc.wantSecs)
			}
		})
	}
}

func TestDetect_Errors(t *testing.T) {
	t.Parallel()

	enabled := server.New(gate.New(energyDetector(t), nil), server.WithLimits(1024, 1))
	disabled := server.New(gate.New(nil, nil))

	tests := []struct {
		name        string
		srv         http.Handler
		contentType string
		body        []byte
		wantStatus  int
	}{
		{"empty body", enabled, "audio/L16", nil, http.StatusBadRequest},
		{"header-only wav", enabled, "audio/wav", audio.EncodeWAV(nil, 16000, 1), http.StatusBadRequest},
		{"garbage wav", enabled, "audio/wav", []byte("not a riff file"), http.StatusBadRequest},
		{"unsupported type", enabled, "video/mp4", []byte{1, 2}, http.StatusUnsupportedMediaType},
		{"opus body", enabled, "audio/opus", []byte{1, 2}, http.StatusUnsupportedMediaType},
		{"bad rate", enabled, "audio/L16; rate=fast", []byte{1, 2}, http.StatusBadRequest},
		{"too large", enabled, "audio/L16", make([]byte, 2048), http.StatusRequestEntityTooLarge},
		{"vad disabled", disabled, "audio/L16", make([]byte, 320), http.StatusConflict},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			code, resp := post(t, tc.srv, "/v1/detect", tc.contentType, tc.body)
			if code != tc.wantStatus {
				t.Errorf("status = %d, want %d (%s)", code, tc.wantStatus, resp.Error)
			}
			if resp.Error == "" {
				t.Error("error response has no message")
			}
		})
	}
}

// ── /v1/transcribe ───────────────────────────────────────────────────────────

func TestTranscribe(t *testing.T) {
	t.Parallel()
	tr := &sttmock.Provider{Transcript: stt.Transcript{Text: "hello there", Language: "en"}}
	srv := server.New(gate.New(energyDetector(t), tr))

	code, resp := post(t, srv, "/v1/transcribe", "audio/wav", audio.EncodeSamplesWAV(tone(16000, 1), 16000))
	if code != http.StatusOK {
		t.Fatalf("status = %d (%s)", code, resp.Error)
	}
	if resp.Decision != string(gate.DecisionTranscribed) || resp.Text != "hello there" {
		t.Errorf("response = %+v", resp)
	}

	code, resp = post(t, srv, "/v1/transcribe", "audio/wav", audio.EncodeSamplesWAV(make([]float32, 16000), 16000))
	if code != http.StatusOK {
		t.Fatalf("status = %d (%s)", code, resp.Error)
	}
	if resp.Decision != string(gate.DecisionSkipped) || resp.Text != "" {
		t.Errorf("silence response = %+v", resp)
	}
	if tr.CallCount() != 1 {
		t.Errorf("transcriber called %d times, want 1", tr.CallCount())
	}
}

func TestTranscribe_Passthrough(t *testing.T) {
	t.Parallel()
	tr := &sttmock.Provider{Transcript: stt.Transcript{Text: "..."}}
	srv := server.New(gate.New(nil, tr))

	code, resp := post(t, srv, "/v1/transcribe", "audio/wav", audio.EncodeSamplesWAV(make([]float32, 1600), 16000))
	if code != http.StatusOK || resp.Decision != string(gate.DecisionPassthrough) || resp.Verdict != nil {
		t.Errorf("status %d, response %+v", code, resp)
	}
}

func TestTranscribe_Errors(t *testing.T) {
	t.Parallel()
	body := audio.EncodeSamplesWAV(tone(16000, 0.5), 16000)

	code, _ := post(t, server.New(gate.New(nil, nil)), "/v1/transcribe", "audio/wav", body)
	if code != http.StatusNotImplemented {
		t.Errorf("no backend: status = %d, want 501", code)
	}

	failing := &sttmock.Provider{TranscribeErr: errors.New("upstream 500")}
	code, resp := post(t, server.New(gate.New(nil, failing)), "/v1/transcribe", "audio/wav", body)
	if code != http.StatusBadGateway || resp.Error == "" {
		t.Errorf("backend error: status = %d, resp = %+v", code, resp)
	}
}

func TestTranscribe_BreakerOpen(t *testing.T) {
	t.Parallel()
	body := audio.EncodeSamplesWAV(tone(16000, 0.5), 16000)

	failing := &sttmock.Provider{TranscribeErr: errors.New("upstream 500")}
	chain := resilience.NewTranscriber("whisper", failing, resilience.BreakerConfig{
		MaxFailures:  1,
		ResetTimeout: time.Hour,
	})
	h := server.New(gate.New(nil, chain))

	if code, _ := post(t, h, "/v1/transcribe", "audio/wav", body); code != http.StatusBadGateway {
		t.Errorf("first failure: status = %d, want 502", code)
	}
	code, resp := post(t, h, "/v1/transcribe", "audio/wav", body)
	if code != http.StatusServiceUnavailable {
		t.Errorf("breaker open: status = %d, want 503 (%+v)", code, resp)
	}
	if failing.CallCount() != 1 {
		t.Errorf("backend called %d times, want 1", failing.CallCount())
	}
}

// ── /v1/verdicts ─────────────────────────────────────────────────────────────

func TestVerdicts(t *testing.T) {
	t.Parallel()
	store, err := verdict.OpenFile(filepath.Join(t.TempDir(), "v.jsonl"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = store.Close() })

	tr := &sttmock.Provider{Transcript: stt.Transcript{Text: "x"}}
	srv := server.New(gate.New(energyDetector(t), tr, gate.WithRecorder(store)), server.WithVerdicts(store))

	for range 3 {
		post(t, srv, "/v1/transcribe", "audio/wav", audio.EncodeSamplesWAV(make([]float32, 1600), 16000))
	}

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/verdicts?limit=2", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	var body struct {
		Verdicts []verdict.Record `json:"verdicts"`
	}
	if err := sonic.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if len(body.Verdicts) != 2 {
		t.Fatalf("got %d verdicts, want 2", len(body.Verdicts))
	}
	if body.Verdicts[0].Decision != "skipped" || body.Verdicts[0].Source != "transcribe" {
		t.Errorf("verdict = %+v", body.Verdicts[0])
	}

	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/verdicts?limit=zero", nil))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad limit: status = %d", rec.Code)
	}
}

func TestVerdicts_Disabled(t *testing.T) {
	t.Parallel()
	rec := httptest.NewRecorder()
	server.New(gate.New(nil, nil)).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/verdicts", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

// ── probes and metrics ───────────────────────────────────────────────────────

func TestProbesAndMetrics(t *testing.T) {
	t.Parallel()
	tr := &sttmock.Provider{PingErr: errors.New("connection refused")}
	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, "# HELP voxgate_up test\n")
	})
	srv := server.New(gate.New(nil, tr),
		server.WithHealth(health.New(health.PingChecker("stt", tr))),
		server.WithMetricsHandler(metrics),
	)

	tests := []struct {
		path       string
		wantStatus int
		wantBody   string
	}{
		{"/healthz", http.StatusOK, `"status":"ok"`},
		{"/readyz", http.StatusServiceUnavailable, "connection refused"},
		{"/metrics", http.StatusOK, "voxgate_up"},
	}
	for _, tc := range tests {
		t.Run(tc.path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tc.path, nil))
			if rec.Code != tc.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tc.wantStatus)
			}
			if !strings.Contains(rec.Body.String(), tc.wantBody) {
				t.Errorf("body = %q, want it to contain %q", rec.Body.String(), tc.wantBody)
			}
		})
	}
}

func TestListenAndServe_Shutdown(t *testing.T) {
	t.Parallel()
	srv := server.New(gate.New(nil, nil))
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- srv.ListenAndServe(ctx, "127.0.0.1:0", time.Second) }()
	cancel()

	if err := <-done; err != nil {
		t.Errorf("ListenAndServe = %v, want nil after cancel", err)
	}
}
