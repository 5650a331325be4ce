package recording

import (
	"encoding/binary"
	"fmt"
	"os"
)

const (
	wavHeaderSize      = 44
	wavChunkSizeOffset = 4  // RIFF chunk size
	wavDataSizeOffset  = 40 // data sub-chunk size
)

// wavWriter streams PCM16 audio into a RIFF/WAV file. The header is written
// with placeholder sizes at open and rewritten with final sizes on Close.
// FlushHeader may be called mid-stream so a crash leaves a mostly valid file.
type wavWriter struct {
	f          *os.File
	sampleRate int
	channels   int
	dataBytes  int64
}

func newWavWriter(path string, sampleRate, channels int) (*wavWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create wav file: %w", err)
	}

	w := &wavWriter{f: f, sampleRate: sampleRate, channels: channels}
	if err := w.writeHeader(); err != nil {
		f.Close()
		os.Remove(path)
		return nil, err
	}
	return w, nil
}

func (w *wavWriter) writeHeader() error {
	const bitsPerSample = 16

	header := make([]byte, wavHeaderSize)
	byteRate := w.sampleRate * w.channels * bitsPerSample / 8
	blockAlign := w.channels * bitsPerSample / 8

	copy(header[0:4], "RIFF")
	binary.LittleEndian.PutUint32(header[4:8], uint32(36+w.dataBytes))
	copy(header[8:12], "WAVE")

	copy(header[12:16], "fmt ")
	binary.LittleEndian.PutUint32(header[16:20], 16) // PCM fmt chunk size
	binary.LittleEndian.PutUint16(header[20:22], 1)  // PCM format
	binary.LittleEndian.PutUint16(header[22:24], uint16(w.channels))
	binary.LittleEndian.PutUint32(header[24:28], uint32(w.sampleRate))
	binary.LittleEndian.PutUint32(header[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(header[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(header[34:36], bitsPerSample)

	copy(header[36:40], "data")
	binary.LittleEndian.PutUint32(header[40:44], uint32(w.dataBytes))

	if _, err := w.f.WriteAt(header, 0); err != nil {
		return fmt.Errorf("failed to write wav header: %w", err)
	}
	return nil
}

// WriteFrames appends raw PCM16 little-endian bytes to the data chunk.
func (w *wavWriter) WriteFrames(pcm []byte) error {
	if _, err := w.f.WriteAt(pcm, wavHeaderSize+w.dataBytes); err != nil {
		return fmt.Errorf("failed to write wav frames: %w", err)
	}
	w.dataBytes += int64(len(pcm))
	return nil
}

// FlushHeader rewrites the header with the current sizes.
func (w *wavWriter) FlushHeader() error {
	return w.writeHeader()
}

// Close finalizes the header and closes the file.
func (w *wavWriter) Close() error {
	if err := w.writeHeader(); err != nil {
		w.f.Close()
		return err
	}
	return w.f.Close()
}
