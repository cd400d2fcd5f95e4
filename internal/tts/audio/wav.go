package audio

import (
	"bytes"
	"encoding/binary"
)

const (
	wavHeaderSize  = 44
	pcmFormatTag   = 1
	fmtChunkLength = 16
)

// WrapPCM prefixes little-endian signed PCM samples with a canonical RIFF/WAVE
// header so the transcoder can probe them.
func WrapPCM(pcm []byte, sampleRate, channels, bitsPerSample int) []byte {
	blockAlign := channels * bitsPerSample / 8
	byteRate := sampleRate * blockAlign

	var buf bytes.Buffer

	buf.Grow(wavHeaderSize + len(pcm))
	buf.WriteString("RIFF")
	writeLE(&buf, uint32(36+len(pcm)))
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	writeLE(&buf, uint32(fmtChunkLength))
	writeLE(&buf, uint16(pcmFormatTag))
	writeLE(&buf, uint16(channels))
	writeLE(&buf, uint32(sampleRate))
	writeLE(&buf, uint32(byteRate))
	writeLE(&buf, uint16(blockAlign))
	writeLE(&buf, uint16(bitsPerSample))
	buf.WriteString("data")
	writeLE(&buf, uint32(len(pcm)))
	buf.Write(pcm)

	return buf.Bytes()
}

// IsWAV reports whether data starts with a RIFF/WAVE header.
func IsWAV(data []byte) bool {
	return len(data) >= 12 && string(data[0:4]) == "RIFF" && string(data[8:12]) == "WAVE"
}

func writeLE(buf *bytes.Buffer, value any) {
	// bytes.Buffer writes never fail.
	_ = binary.Write(buf, binary.LittleEndian, value)
}
