package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/MrWong99/voxgate/internal/gate"
	"github.com/MrWong99/voxgate/internal/observe"
	"github.com/MrWong99/voxgate/internal/resilience"
	"github.com/MrWong99/voxgate/internal/verdict"
	"github.com/MrWong99/voxgate/pkg/provider/vad"
)

// detectResponse is the body of a successful POST /v1/detect.
type detectResponse struct {
	ID      string     `json:"id"`
	Verdict vad.Result `json:"verdict"`
}

// transcribeResponse is the body of POST /v1/transcribe and of a stream
// result message.
type transcribeResponse struct {
	ID       string        `json:"id"`
	Decision gate.Decision `json:"decision"`
	Verdict  *vad.Result   `json:"verdict,omitempty"`
	Text     string        `json:"text"`
	Language string        `json:"language,omitempty"`
}

func newTranscribeResponse(out gate.Outcome) transcribeResponse {
	resp := transcribeResponse{
		ID:       out.ID,
		Decision: out.Decision,
		Verdict:  out.Verdict,
		Text:     out.Text(),
	}
	if out.Transcript != nil {
		resp.Language = out.Transcript.Language
	}
	return resp
}

func (s *Server) handleDetect(w http.ResponseWriter, r *http.Request) {
	samples, err := readSamples(w, r, s.maxBodyBytes)
	if err != nil {
		writeBodyError(w, err)
		return
	}

	out, err := s.gate.Classify(r.Context(), gate.Utterance{Samples: samples, Source: "detect"})
	switch {
	case errors.Is(err, gate.ErrDetectorDisabled):
		writeError(w, http.StatusConflict, "vad is disabled")
		return
	case errors.Is(err, gate.ErrEmptyInput):
		writeError(w, http.StatusBadRequest, "empty audio")
		return
	case err != nil:
		observe.Logger(r.Context()).Error("detect failed", "err", err)
		writeError(w, http.StatusInternalServerError, "detection failed")
		return
	}
	writeJSON(w, http.StatusOK, detectResponse{ID: out.ID, Verdict: *out.Verdict})
}

func (s *Server) handleTranscribe(w http.ResponseWriter, r *http.Request) {
	if !s.gate.CanTranscribe() {
		writeError(w, http.StatusNotImplemented, "no transcription backend configured")
		return
	}
	samples, err := readSamples(w, r, s.maxBodyBytes)
	if err != nil {
		writeBodyError(w, err)
		return
	}

	status, resp := s.process(r.Context(), samples, "transcribe")
	writeJSON(w, status, resp)
}

// process runs one utterance through the gate under the transcription limit
// and returns the HTTP status and body to report.
func (s *Server) process(ctx context.Context, samples []float32, source string) (int, any) {
	if err := s.transcribe.Acquire(ctx, 1); err != nil {
		return http.StatusServiceUnavailable, errorResponse{Error: "request cancelled while waiting for a transcription slot"}
	}
	out, err := s.gate.Process(ctx, gate.Utterance{Samples: samples, Source: source})
	s.transcribe.Release(1)

	switch {
	case errors.Is(err, gate.ErrEmptyInput):
		return http.StatusBadRequest, errorResponse{Error: "empty audio"}
	case errors.Is(err, resilience.ErrCircuitOpen):
		observe.Logger(ctx).Warn("transcription backends unavailable", "id", out.ID, "err", err)
		return http.StatusServiceUnavailable, errorResponse{Error: "transcription backends unavailable"}
	case err != nil:
		observe.Logger(ctx).Error("transcription failed", "id", out.ID, "decision", out.Decision, "err", err)
		return http.StatusBadGateway, errorResponse{Error: "transcription backend failed"}
	}
	return http.StatusOK, newTranscribeResponse(out)
}

func (s *Server) handleVerdicts(w http.ResponseWriter, r *http.Request) {
	if s.verdicts == nil {
		writeError(w, http.StatusNotFound, "verdict log is disabled")
		return
	}
	limit := defaultRecentLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxRecentLimit)
	}

	recs, err := s.verdicts.Recent(r.Context(), limit)
	if err != nil {
		observe.Logger(r.Context()).Error("list verdicts failed", "err", err)
		writeError(w, http.StatusInternalServerError, "failed to read verdict log")
		return
	}
	if recs == nil {
		recs = []verdict.Record{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"verdicts": recs})
}
