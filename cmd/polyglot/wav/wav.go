package wav

import (
	"encoding/binary"
	"fmt"
	"os"
)

const (
	SampleRate = 16000
	BitDepth   = 16
	Channels   = 1

	headerLen   = 44
	formatPCM   = 1
	fmtChunkLen = 16
)

type Format struct {
	SampleRate int
	Channels   int
	BitDepth   int
}

// Encode wraps float32 samples in a WAV (16-bit PCM, mono, 16KHz).
func Encode(samples []float32) []byte {
	wav := make([]byte, headerLen+len(samples)*2)
	pcm := wav[headerLen:]

	copy(wav[0:], "RIFF")
	binary.LittleEndian.PutUint32(wav[4:], uint32(len(wav)-8))
	copy(wav[8:], "WAVE")
	copy(wav[12:], "fmt ")
	binary.LittleEndian.PutUint32(wav[16:], fmtChunkLen)
	binary.LittleEndian.PutUint16(wav[20:], formatPCM)
	binary.LittleEndian.PutUint16(wav[22:], Channels)
	binary.LittleEndian.PutUint32(wav[24:], SampleRate)
	binary.LittleEndian.PutUint32(wav[28:], (SampleRate*BitDepth*Channels)/8)
	binary.LittleEndian.PutUint16(wav[32:], (BitDepth*Channels)/8)
	binary.LittleEndian.PutUint16(wav[34:], BitDepth)
	copy(wav[36:], "data")
	binary.LittleEndian.PutUint32(wav[40:], uint32(len(samples)*2))

	for i, s := range samples {
		if s > 1 {
			s = 1
		} else if s < -1 {
			s = -1
		}
		binary.LittleEndian.PutUint16(pcm[i*2:], uint16(int16(s*32767.0)))
	}

	return wav
}

// Decode parses a 16-bit PCM WAV payload into float32 samples in [-1, 1].
// Multi channel audio is downmixed to mono.
func Decode(data []byte) ([]float32, Format, error) {
	var format Format

	if len(data) < 12 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return nil, format, fmt.Errorf("invalid WAV header")
	}

	var pcm []byte
	var gotFmt bool
	for off := 12; off+8 <= len(data); {
		id := string(data[off : off+4])
		size := int(binary.LittleEndian.Uint32(data[off+4:]))
		body := data[off+8:]
		if size > len(body) {
			size = len(body)
		}
		body = body[:size]

		switch id {
		case "fmt ":
			if size < fmtChunkLen {
				return nil, format, fmt.Errorf("invalid fmt chunk")
			}
			if tag := binary.LittleEndian.Uint16(body[0:]); tag != formatPCM {
				return nil, format, fmt.Errorf("unsupported audio format %d", tag)
			}
			format.Channels = int(binary.LittleEndian.Uint16(body[2:]))
			format.SampleRate = int(binary.LittleEndian.Uint32(body[4:]))
			format.BitDepth = int(binary.LittleEndian.Uint16(body[14:]))
			gotFmt = true
		case "data":
			pcm = body
		}

		// Chunks are word aligned.
		off += 8 + size + size%2
	}

	if !gotFmt {
		return nil, format, fmt.Errorf("missing fmt chunk")
	}
	if format.BitDepth != BitDepth {
		return nil, format, fmt.Errorf("unsupported bit depth %d", format.BitDepth)
	}
	if format.Channels < 1 {
		return nil, format, fmt.Errorf("invalid number of channels %d", format.Channels)
	}

	frameSize := 2 * format.Channels
	samples := make([]float32, len(pcm)/frameSize)
	for i := range samples {
		var sum float32
		for ch := 0; ch < format.Channels; ch++ {
			sum += float32(int16(binary.LittleEndian.Uint16(pcm[i*frameSize+ch*2:]))) / 32768.0
		}
		samples[i] = sum / float32(format.Channels)
	}

	return samples, format, nil
}

// ReadFile loads a WAV file and checks it matches the 16KHz sample rate
// the speech models expect.
func ReadFile(path string) ([]float32, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	samples, format, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode WAV data: %w", err)
	}

	if format.SampleRate != SampleRate {
		return nil, fmt.Errorf("unsupported sample rate %d, expected %d", format.SampleRate, SampleRate)
	}

	return samples, nil
}
