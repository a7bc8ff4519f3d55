package meta

import (
	"github.com/glimt/exr"
	"github.com/glimt/exr/byteio"
)

// MagicNumber opens every file, stored as a little-endian int32.
const MagicNumber = 20000630

// MetaData is the decoded header section of a file: the version field and
// one header per layer.
type MetaData struct {
	Requirements Requirements
	Headers      []Header
}

// OffsetTables holds, per header, the absolute byte offset of each chunk,
// indexed by block index in increasing-y order. A zero entry means the
// chunk has not been written.
type OffsetTables [][]uint64

// TotalChunkCount sums the chunk counts of all headers.
func (m *MetaData) TotalChunkCount() int {
	total := 0
	for i := range m.Headers {
		total += m.Headers[i].ChunkCount()
	}
	return total
}

// Clone returns a deep copy, for sharing with worker goroutines as an
// immutable snapshot.
func (m *MetaData) Clone() *MetaData {
	clone := &MetaData{Requirements: m.Requirements}
	clone.Headers = make([]Header, len(m.Headers))
	copy(clone.Headers, m.Headers)
	for i := range clone.Headers {
		list := make([]Channel, len(m.Headers[i].Channels.List))
		copy(list, m.Headers[i].Channels.List)
		clone.Headers[i].Channels.List = list
		if t := m.Headers[i].Blocks.Tiles; t != nil {
			tiles := *t
			clone.Headers[i].Blocks.Tiles = &tiles
		}
	}
	return clone
}

// ReadValidatedFrom decodes magic, version and all headers, leaving the
// reader positioned at the first offset table.
func ReadValidatedFrom(r *byteio.Reader, pedantic bool) (*MetaData, error) {
	magic, err := r.I32()
	if err != nil {
		return nil, exr.WrapIo(err)
	}
	if magic != MagicNumber {
		return nil, exr.Invalid("magic number")
	}

	req, err := readRequirements(r)
	if err != nil {
		return nil, err
	}

	m := &MetaData{Requirements: req}
	if !req.MultiPart {
		h, err := readHeaderAttributes(r)
		if err != nil {
			return nil, err
		}
		m.Headers = []Header{*h}
	} else {
		for {
			// an empty header position marks the end of the header list
			b, err := r.PeekU8()
			if err != nil {
				return nil, exr.WrapIo(err)
			}
			if b == 0 {
				if _, err := r.U8(); err != nil {
					return nil, exr.WrapIo(err)
				}
				break
			}
			h, err := readHeaderAttributes(r)
			if err != nil {
				return nil, err
			}
			m.Headers = append(m.Headers, *h)
		}
	}

	if err := m.validate(pedantic); err != nil {
		return nil, err
	}
	return m, nil
}

// WriteValidatingTo encodes magic, version and all headers, leaving the
// writer positioned where the offset tables begin.
func WriteValidatingTo(w *byteio.Writer, headers []Header, pedantic bool) (Requirements, error) {
	if len(headers) == 0 {
		return Requirements{}, exr.Invalid("no headers")
	}

	req := requirementsFor(headers)
	m := &MetaData{Requirements: req, Headers: headers}
	if err := m.validate(pedantic); err != nil {
		return Requirements{}, err
	}

	if err := w.I32(MagicNumber); err != nil {
		return Requirements{}, exr.WrapIo(err)
	}
	if err := req.write(w); err != nil {
		return Requirements{}, exr.WrapIo(err)
	}
	for i := range headers {
		if err := writeHeaderAttributes(w, &headers[i], req.MultiPart); err != nil {
			return Requirements{}, exr.WrapIo(err)
		}
	}
	if req.MultiPart {
		if err := w.U8(0); err != nil {
			return Requirements{}, exr.WrapIo(err)
		}
	}
	return req, nil
}

func (m *MetaData) validate(pedantic bool) error {
	if len(m.Headers) == 0 {
		return exr.Invalid("no headers")
	}
	if !m.Requirements.MultiPart && len(m.Headers) > 1 {
		return exr.Invalid("multiple headers in single-part file")
	}

	names := map[string]bool{}
	for i := range m.Headers {
		h := &m.Headers[i]
		if err := h.validate(); err != nil {
			return err
		}
		if m.Requirements.MultiPart {
			if h.Name == "" {
				return exr.Invalid("unnamed layer in multi-part file")
			}
			if names[h.Name] {
				return exr.Invalid("duplicate layer name")
			}
			names[h.Name] = true
		}
		if h.Deep && !m.Requirements.Deep {
			return exr.Invalid("deep layer without deep version flag")
		}
		if pedantic && !m.Requirements.LongNames {
			if len(h.Name) > shortNameLimit {
				return exr.Invalid("long name without long-names version flag")
			}
			for _, c := range h.Channels.List {
				if len(c.Name) > shortNameLimit {
					return exr.Invalid("long name without long-names version flag")
				}
			}
		}
	}
	return nil
}

// ReadOffsetTables reads one table per header, in header order.
func ReadOffsetTables(r *byteio.Reader, headers []Header) (OffsetTables, error) {
	tables := make(OffsetTables, len(headers))
	for i := range headers {
		table := make([]uint64, headers[i].ChunkCount())
		for j := range table {
			v, err := r.U64()
			if err != nil {
				return nil, exr.WrapIo(err)
			}
			table[j] = v
		}
		tables[i] = table
	}
	return tables, nil
}

// SkipOffsetTables skips all tables by their known size and returns the
// total chunk count they cover.
func SkipOffsetTables(r *byteio.Reader, headers []Header) (int, error) {
	total := 0
	for i := range headers {
		total += headers[i].ChunkCount()
	}
	if err := r.Skip(int64(total) * 8); err != nil {
		return 0, exr.WrapIo(err)
	}
	return total, nil
}
