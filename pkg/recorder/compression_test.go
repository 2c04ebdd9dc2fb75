package recorder

import (
	"bufio"
	"bytes"
	"io"
	"testing"
)

func TestCompressedWriterRoundTrip(t *testing.T) {
	for _, ct := range []CompressionType{NoCompression, ZstdCompression} {
		t.Run(ct.String(), func(t *testing.T) {
			// Setup buffer to write to
			var buf bytes.Buffer
			testData := bytes.Repeat([]byte("covered covered flagged "), 64)

			w, err := NewCompressedWriter(&buf, ct)
			if err != nil {
				t.Fatalf("Failed to create compressed writer: %v", err)
			}
			if _, err := w.Write(testData); err != nil {
				t.Fatalf("Failed to write: %v", err)
			}
			if err := w.Close(); err != nil {
				t.Fatalf("Failed to close writer: %v", err)
			}

			// Compressed output should be smaller for repetitive input
			if ct == ZstdCompression && buf.Len() >= len(testData) {
				t.Errorf("Compressed data (%d bytes) is not smaller than original (%d bytes)", buf.Len(), len(testData))
			}

			br := bufio.NewReader(&buf)
			detected, err := DetectCompression(br)
			if err != nil {
				t.Fatalf("DetectCompression failed: %v", err)
			}
			if detected != ct {
				t.Errorf("Expected %s, detected %s", ct, detected)
			}

			r, err := NewCompressedReader(br, detected)
			if err != nil {
				t.Fatalf("Failed to create compressed reader: %v", err)
			}
			defer r.Close()
			got, err := io.ReadAll(r)
			if err != nil {
				t.Fatalf("Failed to read: %v", err)
			}
			if !bytes.Equal(got, testData) {
				t.Fatalf("Decompressed data does not match original")
			}
		})
	}
}

func TestDetectCompressionShortInput(t *testing.T) {
	for _, in := range [][]byte{nil, {0x28}, []byte("{}")} {
		ct, err := DetectCompression(bufio.NewReader(bytes.NewReader(in)))
		if err != nil {
			t.Errorf("DetectCompression(%v) failed: %v", in, err)
		}
		if ct != NoCompression {
			t.Errorf("DetectCompression(%v) = %s, want none", in, ct)
		}
	}
}
