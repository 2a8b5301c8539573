package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/bytedance/sonic"
	"github.com/coder/websocket"

	"github.com/MrWong99/voxgate/internal/observe"
	"github.com/MrWong99/voxgate/pkg/audio"
)

// streamFrameBuffer is the frame channel depth of one utterance.
const streamFrameBuffer = 32

// Stream protocol: the client sends binary messages holding encoded audio
// packets and ends each utterance with the text message {"type":"end"}. The
// server answers every end with one text message, either
// {"type":"result",...transcribeResponse} or {"type":"error","error":"..."},
// and starts a fresh utterance on the same connection.
type streamControl struct {
	Type string `json:"type"`
}

type streamResult struct {
	Type string `json:"type"`
	transcribeResponse
}

type streamError struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

// utterance accumulates decoded frames, converted to detector format, until
// the client ends it.
type utterance struct {
	frames  chan audio.AudioFrame
	samples chan []float32
	bytes   int64
}

func startUtterance(ctx context.Context) *utterance {
	u := &utterance{
		frames:  make(chan audio.AudioFrame, streamFrameBuffer),
		samples: make(chan []float32, 1),
	}
	converted := audio.ConvertStream(u.frames, audio.DetectorFormat)
	go func() {
		var buf []float32
		for {
			select {
			case f, ok := <-converted:
				if !ok {
					u.samples <- buf
					return
				}
				buf = append(buf, audio.PCM16ToFloat32(f.Data)...)
			case <-ctx.Done():
				// Keep the converter unblocked until close.
				audio.Drain(converted)
				return
			}
		}
	}()
	return u
}

// finish closes the utterance and returns its samples.
func (u *utterance) finish(ctx context.Context) ([]float32, error) {
	close(u.frames)
	select {
	case s := <-u.samples:
		return s, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	if !s.gate.CanTranscribe() {
		writeError(w, http.StatusNotImplemented, "no transcription backend configured")
		return
	}
	codec, rate, err := streamFormat(r, audio.CodecPCM16)
	if err != nil {
		writeBodyError(w, err)
		return
	}
	if codec == audio.CodecWAV {
		writeError(w, http.StatusUnsupportedMediaType, "wav is not a packet codec; use pcm16, pcmu, pcma or opus")
		return
	}
	dec, err := audio.NewDecoder(codec, rate)
	if err != nil {
		writeError(w, http.StatusUnsupportedMediaType, err.Error())
		return
	}

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		observe.Logger(r.Context()).Warn("websocket accept failed", "err", err)
		return
	}
	defer conn.CloseNow()
	conn.SetReadLimit(s.maxBodyBytes)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	s.metrics.ActiveStreams.Add(ctx, 1)
	defer s.metrics.ActiveStreams.Add(context.WithoutCancel(ctx), -1)

	log := observe.Logger(ctx).With("codec", codec)
	log.Debug("stream opened")

	utt := startUtterance(ctx)
	defer func() { close(utt.frames) }()

	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				log.Debug("stream closed by client")
			default:
				if !errors.Is(err, context.Canceled) {
					log.Debug("stream read failed", "err", err)
				}
			}
			return
		}

		switch typ {
		case websocket.MessageBinary:
			utt.bytes += int64(len(data))
			if utt.bytes > s.maxBodyBytes {
				conn.Close(websocket.StatusMessageTooBig, "utterance too large")
				return
			}
			frame, err := dec.Decode(data)
			if err != nil {
				log.Warn("stream decode failed", "err", err)
				conn.Close(websocket.StatusUnsupportedData, "decode failed")
				return
			}
			select {
			case utt.frames <- frame:
			case <-ctx.Done():
				return
			}

		case websocket.MessageText:
			var msg streamControl
			if err := sonic.Unmarshal(data, &msg); err != nil || msg.Type != "end" {
				if !s.writeStream(ctx, conn, streamError{Type: "error", Error: `expected {"type":"end"}`}) {
					return
				}
				continue
			}

			samples, err := utt.finish(ctx)
			utt = startUtterance(ctx)
			if err != nil {
				return
			}

			var reply any
			if len(samples) == 0 {
				reply = streamError{Type: "error", Error: "empty audio"}
			} else if status, resp := s.process(ctx, samples, "stream"); status == http.StatusOK {
				reply = streamResult{Type: "result", transcribeResponse: resp.(transcribeResponse)}
			} else {
				reply = streamError{Type: "error", Error: resp.(errorResponse).Error}
			}
			if !s.writeStream(ctx, conn, reply) {
				return
			}
		}
	}
}

// writeStream sends v as a text message and reports whether the connection
// is still usable.
func (s *Server) writeStream(ctx context.Context, conn *websocket.Conn, v any) bool {
	data, err := sonic.Marshal(v)
	if err != nil {
		observe.Logger(ctx).Error("stream encode failed", "err", err)
		return false
	}
	if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
		observe.Logger(ctx).Debug("stream write failed", "err", err)
		return false
	}
	return true
}
