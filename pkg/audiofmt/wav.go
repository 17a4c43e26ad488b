// Package audiofmt provides the canonical audio representation used across
// Auricle: mono 16-bit signed little-endian PCM, plus the RIFF/WAV framing
// needed to hand buffers to external speech tooling. No external dependencies
// are required.
package audiofmt

import (
	"encoding/binary"
	"fmt"
	"math"
	"os"
)

const (
	// BitsPerSample is fixed at 16 for the signed little-endian PCM audio the
	// whole pipeline operates on.
	BitsPerSample = 16

	// DefaultSampleRate is the pipeline's canonical sample rate in Hz.
	DefaultSampleRate = 16000

	headerSize = 44
)

// EncodeWAV wraps mono 16-bit PCM samples in a standard RIFF/WAV container.
// The returned byte slice is suitable for writing straight to disk or a
// multipart upload.
func EncodeWAV(samples []int16, sampleRate int) []byte {
	const channels = 1
	bps := BitsPerSample
	byteRate := sampleRate * channels * bps / 8
	blockAlign := channels * bps / 8
	dataSize := len(samples) * 2

	buf := make([]byte, headerSize+dataSize)

	// RIFF chunk descriptor
	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(36+dataSize)) // file size − 8
	copy(buf[8:12], "WAVE")

	// fmt sub-chunk
	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)                 // sub-chunk size (PCM)
	binary.LittleEndian.PutUint16(buf[20:22], 1)                  // audio format: PCM
	binary.LittleEndian.PutUint16(buf[22:24], uint16(channels))   // num channels
	binary.LittleEndian.PutUint32(buf[24:28], uint32(sampleRate)) // sample rate
	binary.LittleEndian.PutUint32(buf[28:32], uint32(byteRate))   // byte rate
	binary.LittleEndian.PutUint16(buf[32:34], uint16(blockAlign)) // block align
	binary.LittleEndian.PutUint16(buf[34:36], uint16(bps))        // bits per sample

	// data sub-chunk
	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(dataSize))
	putSamples(buf[headerSize:], samples)

	return buf
}

// WriteWAVFile writes samples to path as a mono 16-bit WAV file.
func WriteWAVFile(path string, samples []int16, sampleRate int) error {
	if err := os.WriteFile(path, EncodeWAV(samples, sampleRate), 0o644); err != nil {
		return fmt.Errorf("audiofmt: write wav file: %w", err)
	}
	return nil
}

// SamplesToBytes converts int16 samples to their raw little-endian byte form.
func SamplesToBytes(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	putSamples(out, samples)
	return out
}

// BytesToSamples converts raw little-endian 16-bit PCM bytes to int16 samples.
// A trailing odd byte is dropped.
func BytesToSamples(pcm []byte) []int16 {
	n := len(pcm) / 2
	out := make([]int16, n)
	for i := 0; i < n; i++ {
		out[i] = int16(binary.LittleEndian.Uint16(pcm[i*2 : i*2+2]))
	}
	return out
}

// RMS returns the root-mean-square energy of the samples, normalized to
// [0.0, 1.0] where 1.0 is full-scale 16-bit audio. Returns 0 for an empty
// buffer.
func RMS(samples []int16) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		v := float64(s) / 32768.0
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(samples)))
}

func putSamples(dst []byte, samples []int16) {
	for i, s := range samples {
		binary.LittleEndian.PutUint16(dst[i*2:i*2+2], uint16(s))
	}
}
