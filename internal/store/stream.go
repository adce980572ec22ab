package store

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"

	apperrors "github.com/gpoulter/mscanner-sub000/pkg/errors"
)

const (
	// headerSize is the fixed record header: doc ID, date, payload length.
	headerSize = 4 + 4 + 2

	// MaxPayload bounds the encoded feature vector of one record. A longer
	// length field means the stream is corrupt (typically a bad seek).
	MaxPayload = 2000
)

// Record is one document in the feature stream: its ID, completion date as a
// YYYYMMDD integer, and the IDs of the features it contains.
type Record struct {
	DocID    uint32
	Date     uint32
	Features []uint32
}

// StreamWriter appends records to a feature stream. The stream is an
// append-only sequence of [doc_id:u32 LE][date:u32 LE][len:u16 LE][payload]
// records with no file-level header.
type StreamWriter struct {
	f   *os.File
	w   *bufio.Writer
	buf []byte
}

// OpenStreamWriter opens path for appending, creating it if absent.
func OpenStreamWriter(path string) (*StreamWriter, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("opening feature stream: %w", err)
	}
	return &StreamWriter{f: f, w: bufio.NewWriter(f)}, nil
}

// Append writes one record. Feature IDs must be non-decreasing.
func (sw *StreamWriter) Append(rec Record) error {
	sw.buf = encodeVector(sw.buf[:0], rec.Features)
	if len(sw.buf) > MaxPayload {
		return apperrors.Corruptf("encoded vector of doc %d is %d bytes, max %d",
			rec.DocID, len(sw.buf), MaxPayload)
	}
	var head [headerSize]byte
	binary.LittleEndian.PutUint32(head[0:4], rec.DocID)
	binary.LittleEndian.PutUint32(head[4:8], rec.Date)
	binary.LittleEndian.PutUint16(head[8:10], uint16(len(sw.buf)))
	if _, err := sw.w.Write(head[:]); err != nil {
		return fmt.Errorf("writing record header: %w", err)
	}
	if _, err := sw.w.Write(sw.buf); err != nil {
		return fmt.Errorf("writing record payload: %w", err)
	}
	return nil
}

// Flush pushes buffered records to the operating system. Readers only ever
// observe complete records once Flush returns.
func (sw *StreamWriter) Flush() error {
	if err := sw.w.Flush(); err != nil {
		return fmt.Errorf("flushing feature stream: %w", err)
	}
	return nil
}

// Sync flushes and fsyncs the stream file.
func (sw *StreamWriter) Sync() error {
	if err := sw.Flush(); err != nil {
		return err
	}
	if err := sw.f.Sync(); err != nil {
		return fmt.Errorf("syncing feature stream: %w", err)
	}
	return nil
}

// Close flushes and closes the stream file.
func (sw *StreamWriter) Close() error {
	if err := sw.Flush(); err != nil {
		sw.f.Close()
		return err
	}
	return sw.f.Close()
}

// StreamReader reads a feature stream sequentially.
type StreamReader struct {
	r io.Reader
	b *bufio.Reader
	c io.Closer
}

// NewStreamReader wraps r for sequential record reads.
func NewStreamReader(r io.Reader) *StreamReader {
	return &StreamReader{r: r, b: bufio.NewReaderSize(r, 1<<16)}
}

// OpenStream opens the stream file at path for reading from the start.
func OpenStream(path string) (*StreamReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening feature stream: %w", err)
	}
	sr := NewStreamReader(f)
	sr.c = f
	return sr, nil
}

// Next returns the next record, or io.EOF at the end of the stream. An
// incomplete trailing record (short header or short payload) is treated as
// end-of-stream, not an error: a writer may be mid-append. A payload length
// over MaxPayload is a corrupt stream.
func (sr *StreamReader) Next() (Record, error) {
	var head [headerSize]byte
	if _, err := io.ReadFull(sr.b, head[:]); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return Record{}, io.EOF
		}
		return Record{}, fmt.Errorf("reading record header: %w", err)
	}
	docID := binary.LittleEndian.Uint32(head[0:4])
	date := binary.LittleEndian.Uint32(head[4:8])
	nbytes := int(binary.LittleEndian.Uint16(head[8:10]))
	if nbytes > MaxPayload {
		return Record{}, apperrors.Corruptf("record for doc %d declares %d payload bytes, max %d",
			docID, nbytes, MaxPayload)
	}
	payload := make([]byte, nbytes)
	if _, err := io.ReadFull(sr.b, payload); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return Record{}, io.EOF
		}
		return Record{}, fmt.Errorf("reading record payload: %w", err)
	}
	features, err := decodeVector(payload)
	if err != nil {
		return Record{}, fmt.Errorf("doc %d: %w", docID, err)
	}
	return Record{DocID: docID, Date: date, Features: features}, nil
}

// Close closes the underlying file when the reader owns one.
func (sr *StreamReader) Close() error {
	if sr.c != nil {
		return sr.c.Close()
	}
	return nil
}
