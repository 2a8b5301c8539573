package audio

import (
	"fmt"
	"log/slog"
	"sync"
)

// Format describes the sample rate and channel count of an audio stream.
type Format struct {
	SampleRate int
	Channels   int
}

// String returns e.g. "48000Hz stereo".
func (f Format) String() string {
	return formatString(f.SampleRate, f.Channels)
}

// FormatConverter converts AudioFrames to a target format with 1 or 2
// channels. It logs once on the first format mismatch and drops misaligned PCM.
// Create one per stream; not designed for shared use across goroutines.
type FormatConverter struct {
	Target         Format
	warnedMismatch sync.Once
	warnedCorrupt  sync.Once
}

// Convert converts a frame to the target format. If the source format already
// matches the target, the frame is returned unchanged (zero allocation).
// Conversion always downmixes first and resamples the mono signal; a stereo
// target receives that signal on both channels.
func (c *FormatConverter) Convert(frame AudioFrame) AudioFrame {
	channels := max(frame.Channels, 1)
	if len(frame.Data)%(2*channels) != 0 {
		c.warnedCorrupt.Do(func() {
			slog.Warn("audio format converter: misaligned PCM data, dropping frame",
				"bytes", len(frame.Data),
				"sampleRate", frame.SampleRate,
				"channels", frame.Channels,
			)
		})
		return AudioFrame{
			SampleRate: c.Target.SampleRate,
			Channels:   c.Target.Channels,
			Timestamp:  frame.Timestamp,
		}
	}

	if frame.SampleRate == c.Target.SampleRate && frame.Channels == c.Target.Channels {
		return frame
	}

	c.warnedMismatch.Do(func() {
		slog.Debug("audio format mismatch: converting",
			"from", formatString(frame.SampleRate, frame.Channels),
			"to", c.Target.String(),
		)
	})

	pcm := ResampleMono16(Downmix(frame.Data, channels), frame.SampleRate, c.Target.SampleRate)
	if c.Target.Channels == 2 {
		pcm = MonoToStereo(pcm)
	}

	return AudioFrame{
		Data:       pcm,
		SampleRate: c.Target.SampleRate,
		Channels:   c.Target.Channels,
		Timestamp:  frame.Timestamp,
	}
}

// ConvertStream wraps an input channel with a conversion goroutine. It closes
// the returned channel when in closes. Uses cap(in) for the output channel
// buffer. Frames left empty by conversion are dropped.
func ConvertStream(in <-chan AudioFrame, target Format) <-chan AudioFrame {
	out := make(chan AudioFrame, cap(in))
	go func() {
		defer close(out)
		conv := FormatConverter{Target: target}
		for frame := range in {
			converted := conv.Convert(frame)
			if len(converted.Data) == 0 {
				continue
			}
			out <- converted
		}
	}()
	return out
}

// Drain reads from ch until the channel is closed, discarding all values.
// Use it to release a ConvertStream goroutine whose output is abandoned.
func Drain[T any](ch <-chan T) {
	for range ch {
	}
}

// ToDetectorInput converts a frame of any format into mono 16 kHz float32
// samples.
func ToDetectorInput(frame AudioFrame) []float32 {
	conv := FormatConverter{Target: DetectorFormat}
	return PCM16ToFloat32(conv.Convert(frame).Data)
}

// MonoToStereo duplicates each int16 mono sample into a stereo L+R pair.
func MonoToStereo(pcm []byte) []byte {
	out := make([]byte, (len(pcm)/2)*4)
	for i := 0; i+1 < len(pcm); i += 2 {
		lo, hi := pcm[i], pcm[i+1]
		j := i * 2
		out[j] = lo
		out[j+1] = hi
		out[j+2] = lo
		out[j+3] = hi
	}
	return out
}

// Downmix averages every interleaved frame of channels samples into one mono
// sample. Uses int32 arithmetic so the sum cannot overflow; the average of
// int16 values always fits int16. channels ≤ 1 returns pcm unchanged.
func Downmix(pcm []byte, channels int) []byte {
	if channels <= 1 {
		return pcm
	}
	stride := 2 * channels
	frames := len(pcm) / stride
	out := make([]byte, frames*2)
	for i := range frames {
		var sum int32
		for ch := range channels {
			idx := i*stride + ch*2
			sum += int32(int16(pcm[idx]) | int16(pcm[idx+1])<<8)
		}
		avg := int16(sum / int32(channels))
		out[i*2] = byte(avg)
		out[i*2+1] = byte(avg >> 8)
	}
	return out
}

// ResampleMono16 resamples 16-bit mono PCM from srcRate to dstRate using linear
// interpolation. If srcRate == dstRate, the input is returned unchanged.
func ResampleMono16(pcm []byte, srcRate, dstRate int) []byte {
	if srcRate <= 0 || dstRate <= 0 {
		return pcm
	}
	if srcRate == dstRate || len(pcm) < 2 {
		return pcm
	}
	srcSamples := len(pcm) / 2
	dstSamples := int(int64(srcSamples) * int64(dstRate) / int64(srcRate))
	if dstSamples == 0 {
		return nil
	}

	out := make([]byte, dstSamples*2)
	ratio := float64(srcRate) / float64(dstRate)

	for i := range dstSamples {
		srcPos := float64(i) * ratio
		srcIdx := int(srcPos)
		frac := srcPos - float64(srcIdx)

		s0 := int16(pcm[srcIdx*2]) | int16(pcm[srcIdx*2+1])<<8
		s1 := s0
		if srcIdx+1 < srcSamples {
			s1 = int16(pcm[(srcIdx+1)*2]) | int16(pcm[(srcIdx+1)*2+1])<<8
		}

		interpolated := int16(float64(s0)*(1-frac) + float64(s1)*frac)
		out[i*2] = byte(interpolated)
		out[i*2+1] = byte(interpolated >> 8)
	}
	return out
}

func formatString(rate, channels int) string {
	ch := "mono"
	if channels == 2 {
		ch = "stereo"
	} else if channels > 2 {
		ch = fmt.Sprintf("%dch", channels)
	}
	return fmt.Sprintf("%dHz %s", rate, ch)
}
