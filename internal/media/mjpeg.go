package media

import "bytes"

var (
	jpegSOI = []byte{0xFF, 0xD8}
	jpegEOI = []byte{0xFF, 0xD9}
)

// maxPendingFrameBytes bounds the splitter buffer when no EOI marker arrives.
const maxPendingFrameBytes = 8 << 20

// frameSplitter cuts a concatenated MJPEG byte stream into JPEG frames.
type frameSplitter struct {
	buf []byte
}

// Feed appends p and returns every complete frame now available.
func (s *frameSplitter) Feed(p []byte) [][]byte {
	s.buf = append(s.buf, p...)

	var frames [][]byte
	for {
		start := bytes.Index(s.buf, jpegSOI)
		if start < 0 {
			// Keep a trailing 0xFF in case the marker straddles two reads.
			if n := len(s.buf); n > 0 && s.buf[n-1] == 0xFF {
				s.buf = append(s.buf[:0], 0xFF)
			} else {
				s.buf = s.buf[:0]
			}
			return frames
		}

		end := bytes.Index(s.buf[start+len(jpegSOI):], jpegEOI)
		if end < 0 {
			if start > 0 {
				s.buf = append(s.buf[:0], s.buf[start:]...)
			}
			if len(s.buf) > maxPendingFrameBytes {
				s.buf = s.buf[:0]
			}
			return frames
		}

		stop := start + len(jpegSOI) + end + len(jpegEOI)
		frame := make([]byte, stop-start)
		copy(frame, s.buf[start:stop])
		frames = append(frames, frame)
		s.buf = s.buf[stop:]
	}
}
