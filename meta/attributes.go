package meta

import (
	"github.com/glimt/exr"
	"github.com/glimt/exr/byteio"
	"github.com/glimt/exr/compress"
)

// Attribute records are `name\0 type\0 size value`; a header ends at an
// empty name. Only the attributes this module writes are interpreted on
// read, everything else is skipped by its declared size.

const (
	shortNameLimit = 31
	longNameLimit  = 255

	attrChannels           = "channels"
	attrChunkCount         = "chunkCount"
	attrCompression        = "compression"
	attrDataWindow         = "dataWindow"
	attrDisplayWindow      = "displayWindow"
	attrLineOrder          = "lineOrder"
	attrName               = "name"
	attrPixelAspectRatio   = "pixelAspectRatio"
	attrScreenWindowCenter = "screenWindowCenter"
	attrScreenWindowWidth  = "screenWindowWidth"
	attrTiles              = "tiles"
	attrType               = "type"

	typeBox2i       = "box2i"
	typeChlist      = "chlist"
	typeCompression = "compression"
	typeFloat       = "float"
	typeInt         = "int"
	typeLineOrder   = "lineOrder"
	typeString      = "string"
	typeTiledesc    = "tiledesc"
	typeV2f         = "v2f"

	partTypeScanLine     = "scanlineimage"
	partTypeTile         = "tiledimage"
	partTypeDeepScanLine = "deepscanline"
	partTypeDeepTile     = "deeptile"
)

// readHeaderAttributes parses attributes until the empty-name terminator.
func readHeaderAttributes(r *byteio.Reader) (*Header, error) {
	var (
		h              Header
		partType       string
		chunkCountAttr = -1

		haveChannels, haveCompression, haveDataWindow, haveDisplayWindow bool
		haveLineOrder, havePixelAspect, haveCenter, haveWidth            bool
	)

	for {
		name, err := r.CString(longNameLimit)
		if err != nil {
			return nil, exr.WrapIo(err)
		}
		if name == "" {
			break
		}

		typeName, err := r.CString(longNameLimit)
		if err != nil {
			return nil, exr.WrapIo(err)
		}
		size, err := r.I32()
		if err != nil {
			return nil, exr.WrapIo(err)
		}
		if size < 0 {
			return nil, exr.Invalid("attribute size")
		}

		switch name {
		case attrChannels:
			if typeName != typeChlist {
				return nil, exr.Invalid("channels attribute type")
			}
			h.Channels, err = readChannelList(r, int64(size))
			haveChannels = true

		case attrCompression:
			var b byte
			b, err = r.U8()
			h.Compression = compress.Compression(b)
			haveCompression = true

		case attrDataWindow:
			var window Box2
			window, err = readBox2(r)
			h.LayerPosition = window.Position
			h.LayerSize = window.Size
			haveDataWindow = true

		case attrDisplayWindow:
			h.DisplayWindow, err = readBox2(r)
			haveDisplayWindow = true

		case attrLineOrder:
			var b byte
			b, err = r.U8()
			h.LineOrder = LineOrder(b)
			haveLineOrder = true

		case attrPixelAspectRatio:
			h.PixelAspect, err = r.F32()
			havePixelAspect = true

		case attrScreenWindowCenter:
			h.ScreenWindowCenter[0], err = r.F32()
			if err == nil {
				h.ScreenWindowCenter[1], err = r.F32()
			}
			haveCenter = true

		case attrScreenWindowWidth:
			h.ScreenWindowWidth, err = r.F32()
			haveWidth = true

		case attrTiles:
			var tiles TileDescription
			tiles, err = readTileDescription(r)
			h.Blocks = TileBlocks(tiles)

		case attrName:
			h.Name, err = readString(r, int(size))

		case attrType:
			partType, err = readString(r, int(size))

		case attrChunkCount:
			var n int32
			n, err = r.I32()
			chunkCountAttr = int(n)

		default:
			err = r.Skip(int64(size))
		}
		if err != nil {
			return nil, exr.WrapIo(err)
		}
	}

	switch partType {
	case "", partTypeScanLine, partTypeTile:
	case partTypeDeepScanLine:
		h.Deep = true
	case partTypeDeepTile:
		h.Deep = true
	default:
		return nil, exr.Invalidf("part type %q", partType)
	}
	if partType == partTypeTile || partType == partTypeDeepTile {
		if !h.Blocks.IsTiles() {
			return nil, exr.Invalid("tiled part without tiles attribute")
		}
	}
	if partType == partTypeScanLine || partType == partTypeDeepScanLine {
		h.Blocks = ScanLineBlocks()
	}

	if !haveChannels || !haveCompression || !haveDataWindow || !haveDisplayWindow ||
		!haveLineOrder || !havePixelAspect || !haveCenter || !haveWidth {
		return nil, exr.Invalid("missing required attribute")
	}

	if err := h.validate(); err != nil {
		return nil, err
	}
	if chunkCountAttr >= 0 && !h.Deep && chunkCountAttr != h.ChunkCount() {
		return nil, exr.Invalid("chunk count attribute")
	}
	return &h, nil
}

func readChannelList(r *byteio.Reader, size int64) (ChannelList, error) {
	end := r.BytePosition() + size
	var channels []Channel

	for {
		if r.BytePosition() >= end {
			return ChannelList{}, exr.Invalid("channel list not terminated")
		}
		name, err := r.CString(longNameLimit)
		if err != nil {
			return ChannelList{}, err
		}
		if name == "" {
			break
		}

		sampleType, err := r.I32()
		if err != nil {
			return ChannelList{}, err
		}
		quantize, err := r.U8()
		if err != nil {
			return ChannelList{}, err
		}
		if err := r.Skip(3); err != nil { // reserved
			return ChannelList{}, err
		}
		sx, err := r.I32()
		if err != nil {
			return ChannelList{}, err
		}
		sy, err := r.I32()
		if err != nil {
			return ChannelList{}, err
		}

		if sampleType < 0 || sampleType > int32(F32) {
			return ChannelList{}, exr.Invalid("channel sample type")
		}
		channels = append(channels, Channel{
			Name:       name,
			SampleType: SampleType(sampleType),
			Quantize:   quantize != 0,
			Sampling:   Vec2{int(sx), int(sy)},
		})
	}

	if r.BytePosition() != end {
		return ChannelList{}, exr.Invalid("channel list size")
	}
	return NewChannelList(channels), nil
}

func readBox2(r *byteio.Reader) (Box2, error) {
	var v [4]int32
	for i := range v {
		n, err := r.I32()
		if err != nil {
			return Box2{}, err
		}
		v[i] = n
	}
	// stored as inclusive min/max corners
	return Box2{
		Position: Vec2{int(v[0]), int(v[1])},
		Size:     Vec2{int(v[2]) - int(v[0]) + 1, int(v[3]) - int(v[1]) + 1},
	}, nil
}

func readTileDescription(r *byteio.Reader) (TileDescription, error) {
	x, err := r.U32()
	if err != nil {
		return TileDescription{}, err
	}
	y, err := r.U32()
	if err != nil {
		return TileDescription{}, err
	}
	mode, err := r.U8()
	if err != nil {
		return TileDescription{}, err
	}
	return TileDescription{
		TileSize:     Vec2{int(x), int(y)},
		LevelMode:    LevelMode(mode & 0xf),
		RoundingMode: RoundingMode(mode >> 4),
	}, nil
}

func readString(r *byteio.Reader, size int) (string, error) {
	b, err := r.Bytes(size)
	return string(b), err
}

// --- writing ---

func writeAttr(w *byteio.Writer, name, typeName string, size int, value func() error) error {
	if err := w.CString(name); err != nil {
		return err
	}
	if err := w.CString(typeName); err != nil {
		return err
	}
	if err := w.I32(int32(size)); err != nil {
		return err
	}
	return value()
}

func channelListSize(c ChannelList) int {
	size := 1 // terminator
	for _, ch := range c.List {
		size += len(ch.Name) + 1 + 16
	}
	return size
}

func writeChannelList(w *byteio.Writer, c ChannelList) error {
	for _, ch := range c.List {
		if err := w.CString(ch.Name); err != nil {
			return err
		}
		if err := w.I32(int32(ch.SampleType)); err != nil {
			return err
		}
		quantize := byte(0)
		if ch.Quantize {
			quantize = 1
		}
		if err := w.U8(quantize); err != nil {
			return err
		}
		if _, err := w.Write([]byte{0, 0, 0}); err != nil { // reserved
			return err
		}
		if err := w.I32(int32(ch.Sampling.X)); err != nil {
			return err
		}
		if err := w.I32(int32(ch.Sampling.Y)); err != nil {
			return err
		}
	}
	return w.U8(0)
}

func writeBox2(w *byteio.Writer, b Box2) error {
	corners := [4]int32{
		int32(b.Position.X), int32(b.Position.Y),
		int32(b.Position.X + b.Size.X - 1), int32(b.Position.Y + b.Size.Y - 1),
	}
	for _, v := range corners {
		if err := w.I32(v); err != nil {
			return err
		}
	}
	return nil
}

// writeHeaderAttributes emits the header's attributes in name order, ending
// with the empty-name terminator. Multi-part files additionally carry name,
// type and chunkCount.
func writeHeaderAttributes(w *byteio.Writer, h *Header, multiPart bool) error {
	err := writeAttr(w, attrChannels, typeChlist, channelListSize(h.Channels), func() error {
		return writeChannelList(w, h.Channels)
	})
	if err != nil {
		return err
	}

	if multiPart {
		err = writeAttr(w, attrChunkCount, typeInt, 4, func() error {
			return w.I32(int32(h.ChunkCount()))
		})
		if err != nil {
			return err
		}
	}

	err = writeAttr(w, attrCompression, typeCompression, 1, func() error {
		return w.U8(byte(h.Compression))
	})
	if err != nil {
		return err
	}

	dataWindow := Box2{Position: h.LayerPosition, Size: h.LayerSize}
	err = writeAttr(w, attrDataWindow, typeBox2i, 16, func() error {
		return writeBox2(w, dataWindow)
	})
	if err != nil {
		return err
	}

	displayWindow := h.DisplayWindow
	if displayWindow.Size == (Vec2{}) {
		displayWindow = dataWindow
	}
	err = writeAttr(w, attrDisplayWindow, typeBox2i, 16, func() error {
		return writeBox2(w, displayWindow)
	})
	if err != nil {
		return err
	}

	err = writeAttr(w, attrLineOrder, typeLineOrder, 1, func() error {
		return w.U8(byte(h.LineOrder))
	})
	if err != nil {
		return err
	}

	if multiPart {
		err = writeAttr(w, attrName, typeString, len(h.Name), func() error {
			_, werr := w.Write([]byte(h.Name))
			return werr
		})
		if err != nil {
			return err
		}
	}

	pixelAspect := h.PixelAspect
	if pixelAspect == 0 {
		pixelAspect = 1
	}
	err = writeAttr(w, attrPixelAspectRatio, typeFloat, 4, func() error {
		return w.F32(pixelAspect)
	})
	if err != nil {
		return err
	}

	err = writeAttr(w, attrScreenWindowCenter, typeV2f, 8, func() error {
		if werr := w.F32(h.ScreenWindowCenter[0]); werr != nil {
			return werr
		}
		return w.F32(h.ScreenWindowCenter[1])
	})
	if err != nil {
		return err
	}

	width := h.ScreenWindowWidth
	if width == 0 {
		width = 1
	}
	err = writeAttr(w, attrScreenWindowWidth, typeFloat, 4, func() error {
		return w.F32(width)
	})
	if err != nil {
		return err
	}

	if t := h.Blocks.Tiles; t != nil {
		err = writeAttr(w, attrTiles, typeTiledesc, 9, func() error {
			if werr := w.U32(uint32(t.TileSize.X)); werr != nil {
				return werr
			}
			if werr := w.U32(uint32(t.TileSize.Y)); werr != nil {
				return werr
			}
			return w.U8(byte(t.LevelMode) | byte(t.RoundingMode)<<4)
		})
		if err != nil {
			return err
		}
	}

	if multiPart {
		partType := h.partType()
		err = writeAttr(w, attrType, typeString, len(partType), func() error {
			_, werr := w.Write([]byte(partType))
			return werr
		})
		if err != nil {
			return err
		}
	}

	return w.U8(0)
}

func (h *Header) partType() string {
	switch {
	case h.Deep && h.Blocks.IsTiles():
		return partTypeDeepTile
	case h.Deep:
		return partTypeDeepScanLine
	case h.Blocks.IsTiles():
		return partTypeTile
	}
	return partTypeScanLine
}
