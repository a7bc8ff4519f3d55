package block_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/glimt/exr/block"
	"github.com/glimt/exr/compress"
	"github.com/glimt/exr/meta"
)

func rgba(t meta.SampleType) meta.ChannelList {
	return meta.NewChannelList([]meta.Channel{
		{Name: "R", SampleType: t},
		{Name: "G", SampleType: t},
		{Name: "B", SampleType: t},
		{Name: "A", SampleType: t},
	})
}

// gradient is position-dependent so any block mixup shows up as a value
// mismatch.
func gradient(layer int, channelName string, position meta.Vec2, x int) float32 {
	v := float32(position.Y*1000 + position.X + x)
	switch channelName {
	case "G":
		v = -v
	case "B":
		v = 2 * v
	case "A":
		v = 0.5
	}
	return v + float32(layer)*100000
}

func TestMinimalScanLineRoundTrip(t *testing.T) {
	headers := []meta.Header{{
		Channels:    rgba(meta.F32),
		Compression: compress.None,
		LineOrder:   meta.IncreasingY,
		LayerSize:   meta.Vec2{X: 4, Y: 4},
	}}

	pixel := func(i int) [4]float32 {
		f := float32(i)
		return [4]float32{f, -f, 2 * f, 0.5}
	}

	data := writeImage(t, headers, func(_ int, channelName string, position meta.Vec2, x int) float32 {
		p := pixel(position.Y*4 + position.X + x)
		switch channelName {
		case "R":
			return p[0]
		case "G":
			return p[1]
		case "B":
			return p[2]
		}
		return p[3]
	})

	m, blocks := readAllBlocks(t, data, true)
	if len(blocks) != 4 { // uncompressed images hold one scan line per chunk
		t.Fatalf("expected 4 blocks, got %d", len(blocks))
	}

	channels := m.Headers[0].Channels
	for _, b := range blocks {
		for _, line := range b.Lines(channels) {
			name := channels.List[line.Location.Channel].Name
			samples := block.ReadSamples(channels.List[line.Location.Channel].SampleType, line.Samples)
			for x, got := range samples {
				p := pixel(line.Location.Position.Y*4 + line.Location.Position.X + x)
				want := map[string]float32{"R": p[0], "G": p[1], "B": p[2], "A": p[3]}[name]
				if got != want {
					t.Fatalf("channel %s pixel (%d,%d): got %v, want %v",
						name, line.Location.Position.X+x, line.Location.Position.Y, got, want)
				}
			}
		}
	}

	// every offset slot points exactly where its chunk was laid down
	tables := readOffsetTables(t, data, headers)
	chunksStart := metadataSize(t, headers) + int64(len(tables[0]))*8
	if int64(tables[0][0]) != chunksStart {
		t.Fatalf("first offset %d, expected chunk start %d", tables[0][0], chunksStart)
	}
	for i := 1; i < len(tables[0]); i++ {
		if tables[0][i] <= tables[0][i-1] {
			t.Fatalf("offsets not ascending: %v", tables[0])
		}
	}
}

func TestSingleChunkOffsetSlot(t *testing.T) {
	// a one-line layer has exactly one chunk, whose offset slot must equal
	// the position immediately after the metadata plus its own table entry
	headers := []meta.Header{{
		Channels:    rgba(meta.F32),
		Compression: compress.None,
		LineOrder:   meta.IncreasingY,
		LayerSize:   meta.Vec2{X: 4, Y: 1},
	}}

	data := writeImage(t, headers, gradient)

	tables := readOffsetTables(t, data, headers)
	if len(tables[0]) != 1 {
		t.Fatalf("expected a lone chunk, got %d", len(tables[0]))
	}
	if int64(tables[0][0]) != metadataSize(t, headers)+8 {
		t.Fatalf("offset slot %d, expected %d", tables[0][0], metadataSize(t, headers)+8)
	}
}

func twoLayerTiledZip() []meta.Header {
	return []meta.Header{
		{
			Name:        "A",
			Channels:    rgba(meta.F32),
			Compression: compress.ZIP,
			Blocks:      meta.TileBlocks(meta.TileDescription{TileSize: meta.Vec2{X: 16, Y: 16}}),
			LineOrder:   meta.IncreasingY,
			LayerSize:   meta.Vec2{X: 32, Y: 32},
		},
		{
			Name:        "B",
			Channels:    rgba(meta.F32),
			Compression: compress.ZIP,
			Blocks:      meta.TileBlocks(meta.TileDescription{TileSize: meta.Vec2{X: 8, Y: 8}}),
			LineOrder:   meta.IncreasingY,
			LayerSize:   meta.Vec2{X: 16, Y: 8},
		},
	}
}

func TestTwoLayerTiledZipOffsetsAscend(t *testing.T) {
	headers := twoLayerTiledZip()
	data := writeImage(t, headers, gradient)

	tables := readOffsetTables(t, data, headers)
	if len(tables[0]) != 4 || len(tables[1]) != 2 {
		t.Fatalf("unexpected table shapes: %d, %d", len(tables[0]), len(tables[1]))
	}
	for h, table := range tables {
		for i := range table {
			if table[i] == 0 {
				t.Fatalf("header %d slot %d still zero", h, i)
			}
			if i > 0 && table[i] <= table[i-1] {
				t.Fatalf("header %d offsets not strictly ascending: %v", h, table)
			}
			if int64(table[i]) >= int64(len(data)) {
				t.Fatalf("header %d offset %d outside the file", h, table[i])
			}
		}
	}

	// and the pixels survive the zip round trip
	m, blocks := readAllBlocks(t, data, true)
	if len(blocks) != 6 {
		t.Fatalf("expected 6 blocks, got %d", len(blocks))
	}
	for _, b := range blocks {
		channels := m.Headers[b.Index.Layer].Channels
		for _, line := range b.Lines(channels) {
			channel := channels.List[line.Location.Channel]
			for x, got := range block.ReadSamples(channel.SampleType, line.Samples) {
				want := gradient(b.Index.Layer, channel.Name, line.Location.Position, x)
				if got != want {
					t.Fatalf("layer %d channel %s at (%d,%d): got %v, want %v",
						b.Index.Layer, channel.Name, line.Location.Position.X+x, line.Location.Position.Y, got, want)
				}
			}
		}
	}
}

func TestUnusualChannelTupleRoundTrip(t *testing.T) {
	// mixed storage types, including a half-precision channel and values
	// outside [0,1]
	channels := meta.NewChannelList([]meta.Channel{
		{Name: "R", SampleType: meta.F32},
		{Name: "G", SampleType: meta.F32},
		{Name: "B", SampleType: meta.F16},
		{Name: "A", SampleType: meta.F32},
	})
	headers := []meta.Header{{
		Channels:    channels,
		Compression: compress.ZIP,
		Blocks:      meta.TileBlocks(meta.TileDescription{TileSize: meta.Vec2{X: 16, Y: 16}}),
		LineOrder:   meta.IncreasingY,
		LayerSize:   meta.Vec2{X: 31, Y: 7},
	}}

	palette := [][4]float32{
		{0.1, 0.4, -5.0, 0.4},
		{0.3, 0.8, 4.0, -0.4},
		{0.2, -0.6, 2.0, -0.2},
		{0.8, 0.2, 21.0, -0.4},
		{0.9, 0.0, 64.0, 0.4},
	}
	sample := func(_ int, channelName string, position meta.Vec2, x int) float32 {
		p := palette[(position.Y*31+position.X+x)%len(palette)]
		switch channelName {
		case "R":
			return p[0]
		case "G":
			return p[1]
		case "B":
			return p[2]
		}
		return p[3]
	}

	data := writeImage(t, headers, sample)
	m, blocks := readAllBlocks(t, data, true)

	if len(blocks) != 2 { // 31 wide with 16-wide tiles, 7 tall
		t.Fatalf("expected 2 blocks, got %d", len(blocks))
	}
	for _, b := range blocks {
		for _, line := range b.Lines(m.Headers[0].Channels) {
			channel := m.Headers[0].Channels.List[line.Location.Channel]
			for x, got := range block.ReadSamples(channel.SampleType, line.Samples) {
				// the B palette values, the only half-precision channel,
				// are exactly representable in half
				want := sample(0, channel.Name, line.Location.Position, x)
				if got != want {
					t.Fatalf("channel %s at (%d,%d): got %v, want %v",
						channel.Name, line.Location.Position.X+x, line.Location.Position.Y, got, want)
				}
			}
		}
	}
}

func TestRoundTripPreservesBlockData(t *testing.T) {
	// the written blocks come back with identical bytes, for each codec
	for _, compression := range []compress.Compression{compress.None, compress.RLE, compress.ZIPS, compress.ZIP} {
		headers := []meta.Header{{
			Channels:    rgba(meta.F32),
			Compression: compression,
			LineOrder:   meta.IncreasingY,
			LayerSize:   meta.Vec2{X: 19, Y: 23},
		}}

		written := buildBlocks(headers, gradient)
		data := writeImage(t, headers, gradient)
		_, blocks := readAllBlocks(t, data, true)

		if len(blocks) != len(written) {
			t.Fatalf("%v: wrote %d blocks, read %d", compression, len(written), len(blocks))
		}
		byIndex := map[block.BlockIndex][]byte{}
		for _, p := range written {
			byIndex[p.block.Index] = p.block.Data
		}
		for _, b := range blocks {
			if diff := cmp.Diff(byIndex[b.Index], b.Data); diff != "" {
				t.Fatalf("%v: block %+v bytes differ (-want +got):\n%s", compression, b.Index, diff)
			}
		}
	}
}
