package meta

import (
	"github.com/glimt/exr"
	"github.com/glimt/exr/byteio"
)

const (
	currentFileFormatVersion = 2

	versionSingleLayerTiled = 1 << 9
	versionLongNames        = 1 << 10
	versionDeep             = 1 << 11
	versionMultiPart        = 1 << 12

	versionKnownFlags = versionSingleLayerTiled | versionLongNames | versionDeep | versionMultiPart
)

// Requirements is the decoded file version field. It states which format
// capabilities a reader must support to decode the rest of the file.
type Requirements struct {
	FileFormatVersion int
	SingleLayerTiled  bool
	LongNames         bool
	Deep              bool
	MultiPart         bool
}

// IsMultiPart reports whether chunks carry an explicit layer index.
func (r Requirements) IsMultiPart() bool { return r.MultiPart }

func readRequirements(r *byteio.Reader) (Requirements, error) {
	v, err := r.I32()
	if err != nil {
		return Requirements{}, exr.WrapIo(err)
	}

	req := Requirements{
		FileFormatVersion: int(v & 0xff),
		SingleLayerTiled:  v&versionSingleLayerTiled != 0,
		LongNames:         v&versionLongNames != 0,
		Deep:              v&versionDeep != 0,
		MultiPart:         v&versionMultiPart != 0,
	}

	if req.FileFormatVersion != currentFileFormatVersion {
		return Requirements{}, exr.Invalidf("file format version %d", req.FileFormatVersion)
	}
	if v&^(0xff|int32(versionKnownFlags)) != 0 {
		return Requirements{}, exr.Invalid("unknown version flags")
	}
	if req.SingleLayerTiled && (req.MultiPart || req.Deep) {
		return Requirements{}, exr.Invalid("contradictory version flags")
	}
	return req, nil
}

func (r Requirements) write(w *byteio.Writer) error {
	v := int32(r.FileFormatVersion)
	if r.SingleLayerTiled {
		v |= versionSingleLayerTiled
	}
	if r.LongNames {
		v |= versionLongNames
	}
	if r.Deep {
		v |= versionDeep
	}
	if r.MultiPart {
		v |= versionMultiPart
	}
	return w.I32(v)
}

// requirementsFor derives the version field the given headers need.
func requirementsFor(headers []Header) Requirements {
	req := Requirements{
		FileFormatVersion: currentFileFormatVersion,
		MultiPart:         len(headers) > 1,
	}
	for i := range headers {
		h := &headers[i]
		if h.Deep {
			req.Deep = true
		}
		if len(h.Name) > shortNameLimit {
			req.LongNames = true
		}
		for _, c := range h.Channels.List {
			if len(c.Name) > shortNameLimit {
				req.LongNames = true
			}
		}
	}
	if !req.MultiPart && !req.Deep && headers[0].Blocks.IsTiles() {
		req.SingleLayerTiled = true
	}
	return req
}
