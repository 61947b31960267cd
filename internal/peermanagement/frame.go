package peermanagement

import (
	"bufio"
	"io"

	"github.com/LeJamon/xrpl-interceptor/internal/peermanagement/compression"
	"github.com/LeJamon/xrpl-interceptor/internal/peermanagement/message"
)

// FrameInfo describes the first byte of a frame and its decoded header.
type FrameInfo struct {
	FirstByte byte

	// UnknownVersion is set when version bits other than the compression
	// flag are set.
	UnknownVersion bool

	// Header is valid when HeaderOK is set.
	Header   message.Header
	HeaderOK bool

	// Decompressible is set for a compressed frame whose whole payload is in
	// the chunk and decodes as LZ4.
	Decompressible bool
}

// InspectFrame checks the first byte of a frame. A set compression flag
// yields an *UnsupportedMessageError; unknown version bits are reported in
// FrameInfo and are not an error.
func InspectFrame(chunk []byte) (FrameInfo, error) {
	if len(chunk) == 0 {
		return FrameInfo{}, nil
	}

	info := FrameInfo{FirstByte: chunk[0]}
	compressed := chunk[0]&message.CompressedFlag != 0
	info.UnknownVersion = chunk[0]&message.VersionMask&^message.CompressedFlag != 0

	h, err := message.DecodeHeader(chunk)
	if err == nil {
		info.Header = h
		info.HeaderOK = true
	}

	if !compressed {
		return info, nil
	}

	if info.HeaderOK {
		end := h.Size() + int(h.PayloadSize)
		if end <= len(chunk) {
			_, derr := compression.DecompressLZ4(chunk[h.Size():end], int(h.UncompressedSize))
			info.Decompressible = derr == nil
		}
	}

	uerr := &UnsupportedMessageError{FirstByte: chunk[0]}
	if info.HeaderOK {
		uerr.MessageType = h.MessageType
		uerr.PayloadSize = h.PayloadSize
		uerr.UncompressedSize = h.UncompressedSize
	}
	return info, uerr
}

// frameChunk is one unit returned by frameReader. A frame that fits the
// buffer is a single chunk with head and last set.
type frameChunk struct {
	data []byte
	head bool
	last bool
}

// frameReader splits a session's byte stream at frame boundaries using the
// payload size of each header. A frame longer than the buffer is returned as
// a head chunk carrying the header followed by continuation chunks.
type frameReader struct {
	r   *bufio.Reader
	buf []byte

	// remaining counts the bytes of the current frame not yet returned.
	remaining int
}

func newFrameReader(src io.Reader, size int) *frameReader {
	return &frameReader{
		r:   bufio.NewReaderSize(src, size),
		buf: make([]byte, size),
	}
}

// next returns the next chunk. The returned data is only valid until the
// following call. Errors from the source are returned unchanged.
func (fr *frameReader) next() (frameChunk, error) {
	if fr.remaining > 0 {
		n, err := fr.r.Read(fr.buf[:min(fr.remaining, len(fr.buf))])
		if n == 0 {
			return frameChunk{}, err
		}
		fr.remaining -= n
		return frameChunk{data: fr.buf[:n], last: fr.remaining == 0}, nil
	}

	size := message.HeaderSizeUncompressed
	hdr, err := fr.r.Peek(size)
	if err != nil {
		return frameChunk{}, err
	}
	if hdr[0]&message.CompressedFlag != 0 {
		size = message.HeaderSizeCompressed
		if hdr, err = fr.r.Peek(size); err != nil {
			return frameChunk{}, err
		}
	}

	// An unknown compression algorithm still carries a payload size; the
	// frame is rejected later on its first byte.
	h, _ := message.DecodeHeader(hdr)
	total := size + int(h.PayloadSize)
	n := min(total, len(fr.buf))
	if _, err := io.ReadFull(fr.r, fr.buf[:n]); err != nil {
		return frameChunk{}, err
	}
	fr.remaining = total - n
	return frameChunk{data: fr.buf[:n], head: true, last: fr.remaining == 0}, nil
}
