package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"rollcall/internal/ports"
)

const wavMIMEType = "audio/wav"

// EncodeWAV wraps 16-bit little-endian PCM in a WAV container.
func EncodeWAV(pcm []byte, sampleRate, channels int) (ports.AudioClip, error) {
	if len(pcm) == 0 {
		return ports.AudioClip{}, errors.New("no audio captured")
	}
	if len(pcm)%2 != 0 {
		pcm = pcm[:len(pcm)-1]
	}
	if sampleRate <= 0 {
		sampleRate = defaultSampleRate
	}
	if channels <= 0 {
		channels = 1
	}

	// The encoder seeks back to patch chunk sizes, so it needs a file.
	file, err := os.CreateTemp("", "rollcall-clip-*.wav")
	if err != nil {
		return ports.AudioClip{}, fmt.Errorf("create wav temp file: %w", err)
	}
	defer func() {
		_ = file.Close()
		_ = os.Remove(file.Name())
	}()

	samples := make([]int, len(pcm)/2)
	for i := range samples {
		samples[i] = int(int16(binary.LittleEndian.Uint16(pcm[i*2:])))
	}
	buffer := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: channels, SampleRate: sampleRate},
		Data:           samples,
		SourceBitDepth: 16,
	}

	enc := wav.NewEncoder(file, sampleRate, 16, channels, 1)
	if err := enc.Write(buffer); err != nil {
		return ports.AudioClip{}, fmt.Errorf("write wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		return ports.AudioClip{}, fmt.Errorf("close wav encoder: %w", err)
	}

	data, err := os.ReadFile(file.Name())
	if err != nil {
		return ports.AudioClip{}, fmt.Errorf("read wav: %w", err)
	}
	return ports.AudioClip{Data: data, MIMEType: wavMIMEType}, nil
}
