package server

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"

	"github.com/MrWong99/voxgate/pkg/audio"
)

// httpError carries the status code a decode failure should be reported with.
type httpError struct {
	status int
	msg    string
}

func (e *httpError) Error() string { return e.msg }

func badRequest(format string, args ...any) error {
	return &httpError{status: http.StatusBadRequest, msg: fmt.Sprintf(format, args...)}
}

// streamFormat resolves the codec and sample rate of a request from its
// Content-Type (e.g. "audio/L16; rate=8000") and the optional "codec" and
// "rate" query parameters, which take precedence. fallback applies when
// neither names a codec.
func streamFormat(r *http.Request, fallback audio.Codec) (audio.Codec, int, error) {
	ct := r.Header.Get("Content-Type")
	q := r.URL.Query()

	name, rate := ct, 0
	if ct != "" {
		if _, params, err := mime.ParseMediaType(ct); err == nil {
			if v, ok := params["rate"]; ok {
				n, err := strconv.Atoi(v)
				if err != nil || n <= 0 {
					return "", 0, badRequest("invalid rate parameter %q", v)
				}
				rate = n
			}
		}
	}
	if v := q.Get("codec"); v != "" {
		name = v
	}
	if name == "" {
		name = string(fallback)
	}
	if v := q.Get("rate"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return "", 0, badRequest("invalid rate %q", v)
		}
		rate = n
	}

	codec, err := audio.ParseCodec(name)
	if err != nil {
		return "", 0, &httpError{status: http.StatusUnsupportedMediaType, msg: err.Error()}
	}
	return codec, rate, nil
}

// readSamples reads and decodes the request body into detector input. The
// body is capped at maxBytes.
func readSamples(w http.ResponseWriter, r *http.Request, maxBytes int64) ([]float32, error) {
	codec, rate, err := streamFormat(r, audio.CodecWAV)
	if err != nil {
		return nil, err
	}
	if codec == audio.CodecOpus {
		return nil, &httpError{
			status: http.StatusUnsupportedMediaType,
			msg:    "opus needs packet framing; use /v1/stream",
		}
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBytes))
	if err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			return nil, &httpError{
				status: http.StatusRequestEntityTooLarge,
				msg:    fmt.Sprintf("audio body exceeds %d bytes", mbe.Limit),
			}
		}
		return nil, badRequest("read body: %v", err)
	}
	if len(body) == 0 {
		return nil, badRequest("empty audio")
	}

	var frame audio.AudioFrame
	if codec == audio.CodecWAV {
		frame, err = audio.DecodeWAV(body)
	} else {
		var dec audio.Decoder
		if dec, err = audio.NewDecoder(codec, rate); err == nil {
			frame, err = dec.Decode(body)
		}
	}
	if err != nil {
		return nil, badRequest("decode %s: %v", codec, err)
	}

	samples := audio.ToDetectorInput(frame)
	if len(samples) == 0 {
		return nil, badRequest("empty audio")
	}
	return samples, nil
}

// writeBodyError reports an error from readSamples.
func writeBodyError(w http.ResponseWriter, err error) {
	var he *httpError
	if errors.As(err, &he) {
		writeError(w, he.status, he.msg)
		return
	}
	writeError(w, http.StatusBadRequest, err.Error())
}
