package recorder

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
)

// FileRecorder records frames to a file as JSON lines with optional
// compression. Each recorder session appends one compressed stream.
type FileRecorder struct {
	file            *os.File
	writer          io.WriteCloser
	bufWriter       *bufio.Writer
	path            string
	compressionType CompressionType
	frameCount      int
	log             *slog.Logger
	// err is set when a new stream could not be started after reading
	err error
}

// FileRecorderOptions contains options for creating a file recorder
type FileRecorderOptions struct {
	CompressionType CompressionType
	Logger          *slog.Logger
}

// DefaultFileRecorderOptions returns default options for file recorder
func DefaultFileRecorderOptions() FileRecorderOptions {
	return FileRecorderOptions{
		CompressionType: DefaultCompression,
		Logger:          slog.New(slog.DiscardHandler),
	}
}

// NewFileRecorder creates a new file recorder with default options
func NewFileRecorder(path string) (*FileRecorder, error) {
	return NewFileRecorderWithOptions(path, DefaultFileRecorderOptions())
}

// NewFileRecorderWithOptions creates a new file recorder with the given options
func NewFileRecorderWithOptions(path string, options FileRecorderOptions) (*FileRecorder, error) {
	if options.Logger == nil {
		options.Logger = slog.New(slog.DiscardHandler)
	}
	fr := &FileRecorder{path: path, compressionType: options.CompressionType, log: options.Logger}
	if err := fr.open(); err != nil {
		return nil, err
	}
	return fr, nil
}

func (fr *FileRecorder) open() error {
	f, err := os.OpenFile(fr.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return err
	}
	bufWriter := bufio.NewWriter(f)
	w, err := NewCompressedWriter(bufWriter, fr.compressionType)
	if err != nil {
		f.Close()
		return err
	}
	fr.file = f
	fr.bufWriter = bufWriter
	fr.writer = w
	return nil
}

// finish ends the compressed stream and flushes it to the file
func (fr *FileRecorder) finish() error {
	if fr.writer == nil {
		return fr.bufWriter.Flush()
	}
	if err := fr.writer.Close(); err != nil {
		return err
	}
	return fr.bufWriter.Flush()
}

// RecordFrame writes a frame as one JSON line
func (fr *FileRecorder) RecordFrame(f Frame) error {
	if fr.writer == nil {
		return fmt.Errorf("frame stream not open: %w", fr.err)
	}
	data, err := json.Marshal(f)
	if err != nil {
		return err
	}
	data = append(data, '\n')

	if _, err := fr.writer.Write(data); err != nil {
		return err
	}

	// Uncompressed frames reach the file immediately
	if fr.compressionType == NoCompression {
		if err := fr.bufWriter.Flush(); err != nil {
			return err
		}
	}

	fr.frameCount++
	return nil
}

// FrameCount returns the number of frames recorded by this recorder
func (fr *FileRecorder) FrameCount() int {
	return fr.frameCount
}

// ReadAll reads all frames from the file. The current compressed stream is
// finished first and a new one is started for later frames. On a decode
// error the frames before it are returned with the error.
func (fr *FileRecorder) ReadAll() ([]Frame, error) {
	if err := fr.finish(); err != nil {
		return nil, err
	}
	frames, readErr := ReadFrames(fr.path)

	// Start a new stream for subsequent frames
	w, err := NewCompressedWriter(fr.bufWriter, fr.compressionType)
	if err != nil {
		fr.writer, fr.err = nil, err
		return frames, fmt.Errorf("restart frame stream: %w", err)
	}
	fr.writer, fr.err = w, nil
	return frames, readErr
}

// Frames reads all frames from the file, logging any read failure. Use
// ReadAll to get the error.
func (fr *FileRecorder) Frames() []Frame {
	frames, err := fr.ReadAll()
	if err != nil {
		fr.log.Warn("read recorded frames", "path", fr.path, "frames", len(frames), "error", err)
	}
	return frames
}

// Clear clears the file and resets the recorder
func (fr *FileRecorder) Clear() {
	// Ignore errors in Clear() as per interface
	fr.finish()
	fr.file.Close()
	os.Truncate(fr.path, 0)

	if err := fr.open(); err == nil {
		fr.frameCount = 0
	}
}

// Close flushes and closes the file
func (fr *FileRecorder) Close() error {
	if err := fr.finish(); err != nil {
		fr.file.Close()
		return err
	}
	return fr.file.Close()
}

// ReadFrames reads a frames file written by FileRecorder, detecting
// whether it is compressed.
func ReadFrames(path string) ([]Frame, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return DecodeFrames(f)
}

// DecodeFrames reads JSON line frames from r, compressed or not.
func DecodeFrames(r io.Reader) ([]Frame, error) {
	br := bufio.NewReader(r)
	ct, err := DetectCompression(br)
	if err != nil {
		return nil, err
	}
	reader, err := NewCompressedReader(br, ct)
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	var frames []Frame
	scanner := bufio.NewScanner(reader)
	scanner.Buffer(make([]byte, 64*1024), 16<<20)
	line := 0
	for scanner.Scan() {
		line++
		if len(scanner.Bytes()) == 0 {
			continue
		}
		var f Frame
		if err := json.Unmarshal(scanner.Bytes(), &f); err != nil {
			return frames, fmt.Errorf("frame on line %d: %w", line, err)
		}
		frames = append(frames, f)
	}
	if err := scanner.Err(); err != nil {
		return frames, err
	}
	return frames, nil
}
