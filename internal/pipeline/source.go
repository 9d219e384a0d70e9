package pipeline

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"
)

// FrameSource produces encoded JPEG frames from some video origin.
type FrameSource interface {
	// Open acquires the underlying resource.
	Open() error
	// ReadNext returns the next complete JPEG frame.
	ReadNext() ([]byte, error)
	// Close releases the resource. Safe to call on an unopened source.
	Close() error
	// Description identifies the source for status reporting and logs.
	Description() string
	// IsNetwork reports whether the source reads from the network.
	IsNetwork() bool
}

// NewSource picks a source implementation from the location: HTTP(S)
// URLs become network MJPEG sources, everything else is a local MJPEG
// file.
func NewSource(location string) FrameSource {
	if strings.HasPrefix(location, "http://") || strings.HasPrefix(location, "https://") {
		return NewNetworkSource(location)
	}
	return NewFileSource(location)
}

// FileSource reads concatenated JPEG frames from a local file and
// rewinds to the start at EOF so file playback loops forever.
type FileSource struct {
	path   string
	file   *os.File
	reader *bufio.Reader
	buffer []byte
}

// NewFileSource creates a source over an MJPEG file.
func NewFileSource(path string) *FileSource {
	return &FileSource{path: path}
}

func (s *FileSource) Open() error {
	f, err := os.Open(s.path)
	if err != nil {
		return fmt.Errorf("failed to open video file: %w", err)
	}
	s.file = f
	s.reader = bufio.NewReaderSize(f, 64*1024)
	s.buffer = s.buffer[:0]
	return nil
}

func (s *FileSource) ReadNext() ([]byte, error) {
	if s.file == nil {
		return nil, fmt.Errorf("video file %s is not open", s.path)
	}

	rewound := false
	chunk := make([]byte, 8192)
	for {
		if frame := extractJPEGFrame(&s.buffer); frame != nil {
			return frame, nil
		}

		n, err := s.reader.Read(chunk)
		if n > 0 {
			s.buffer = append(s.buffer, chunk[:n]...)
			continue
		}
		if err == io.EOF {
			if rewound {
				return nil, fmt.Errorf("no JPEG frames in %s", s.path)
			}
			if _, err := s.file.Seek(0, io.SeekStart); err != nil {
				return nil, fmt.Errorf("failed to rewind %s: %w", s.path, err)
			}
			s.reader.Reset(s.file)
			s.buffer = s.buffer[:0]
			rewound = true
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", s.path, err)
		}
	}
}

func (s *FileSource) Close() error {
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	s.reader = nil
	return err
}

func (s *FileSource) Description() string { return s.path }
func (s *FileSource) IsNetwork() bool     { return false }

// NetworkSource reads an HTTP MJPEG stream. Probe checks TCP
// reachability before the expensive HTTP handshake.
type NetworkSource struct {
	url    string
	client *http.Client
	body   io.ReadCloser
	buffer []byte
}

// NewNetworkSource creates a source over an HTTP MJPEG endpoint.
func NewNetworkSource(rawURL string) *NetworkSource {
	return &NetworkSource{
		url: rawURL,
		client: &http.Client{
			// No overall timeout: the response body is a live stream.
			Transport: &http.Transport{
				DialContext:           (&net.Dialer{Timeout: 5 * time.Second}).DialContext,
				ResponseHeaderTimeout: 10 * time.Second,
			},
		},
	}
}

// Probe dials the stream host to verify it is reachable.
func (s *NetworkSource) Probe(timeout time.Duration) error {
	u, err := url.Parse(s.url)
	if err != nil {
		return fmt.Errorf("invalid stream url %s: %w", s.url, err)
	}
	host := u.Host
	if u.Port() == "" {
		if u.Scheme == "https" {
			host = net.JoinHostPort(u.Hostname(), "443")
		} else {
			host = net.JoinHostPort(u.Hostname(), "80")
		}
	}

	conn, err := net.DialTimeout("tcp", host, timeout)
	if err != nil {
		return fmt.Errorf("stream host %s unreachable: %w", host, err)
	}
	return conn.Close()
}

func (s *NetworkSource) Open() error {
	resp, err := s.client.Get(s.url)
	if err != nil {
		return fmt.Errorf("failed to connect to stream %s: %w", s.url, err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return fmt.Errorf("stream %s returned status %d", s.url, resp.StatusCode)
	}
	s.body = resp.Body
	s.buffer = s.buffer[:0]
	return nil
}

func (s *NetworkSource) ReadNext() ([]byte, error) {
	if s.body == nil {
		return nil, fmt.Errorf("stream %s is not open", s.url)
	}

	chunk := make([]byte, 8192)
	for {
		if frame := extractJPEGFrame(&s.buffer); frame != nil {
			return frame, nil
		}

		n, err := s.body.Read(chunk)
		if n > 0 {
			s.buffer = append(s.buffer, chunk[:n]...)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("stream %s read failed: %w", s.url, err)
		}
	}
}

func (s *NetworkSource) Close() error {
	if s.body == nil {
		return nil
	}
	err := s.body.Close()
	s.body = nil
	return err
}

func (s *NetworkSource) Description() string { return s.url }
func (s *NetworkSource) IsNetwork() bool     { return true }

// extractJPEGFrame extracts one complete JPEG frame (FFD8..FFD9) from
// the front of the buffer, consuming it. Returns nil when no complete
// frame is buffered yet.
func extractJPEGFrame(buffer *[]byte) []byte {
	if len(*buffer) < 4 {
		return nil
	}

	startIdx := -1
	for i := 0; i < len(*buffer)-1; i++ {
		if (*buffer)[i] == 0xFF && (*buffer)[i+1] == 0xD8 {
			startIdx = i
			break
		}
	}
	if startIdx == -1 {
		return nil
	}

	endIdx := -1
	for i := startIdx + 2; i < len(*buffer)-1; i++ {
		if (*buffer)[i] == 0xFF && (*buffer)[i+1] == 0xD9 {
			endIdx = i + 2
			break
		}
	}
	if endIdx == -1 {
		return nil
	}

	frame := make([]byte, endIdx-startIdx)
	copy(frame, (*buffer)[startIdx:endIdx])
	*buffer = (*buffer)[endIdx:]

	return frame
}
