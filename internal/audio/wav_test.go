package audio

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/go-audio/wav"
)

func TestEncodeWAV(t *testing.T) {
	t.Parallel()

	pcm := make([]byte, 0, 200)
	for i := 0; i < 100; i++ {
		pcm = binary.LittleEndian.AppendUint16(pcm, uint16(int16(i*100-5000)))
	}

	clip, err := EncodeWAV(pcm, 16000, 1)
	if err != nil {
		t.Fatalf("EncodeWAV failed: %v", err)
	}
	if clip.MIMEType != "audio/wav" {
		t.Fatalf("unexpected MIME type: %q", clip.MIMEType)
	}
	if !bytes.HasPrefix(clip.Data, []byte("RIFF")) {
		t.Fatalf("missing RIFF header")
	}

	dec := wav.NewDecoder(bytes.NewReader(clip.Data))
	if !dec.IsValidFile() {
		t.Fatalf("encoded clip is not a valid wav file")
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if dec.SampleRate != 16000 || dec.NumChans != 1 || dec.BitDepth != 16 {
		t.Fatalf("unexpected format: rate=%d chans=%d depth=%d", dec.SampleRate, dec.NumChans, dec.BitDepth)
	}
	if len(buf.Data) != 100 || buf.Data[0] != -5000 || buf.Data[99] != 4900 {
		t.Fatalf("unexpected samples: len=%d first=%d last=%d", len(buf.Data), buf.Data[0], buf.Data[len(buf.Data)-1])
	}
}

func TestEncodeWAVRejectsEmptyAudio(t *testing.T) {
	t.Parallel()

	if _, err := EncodeWAV(nil, 16000, 1); err == nil {
		t.Fatalf("expected error for empty audio")
	}
}
