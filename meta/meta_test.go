package meta_test

import (
	"bytes"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/glimt/exr"
	"github.com/glimt/exr/byteio"
	"github.com/glimt/exr/compress"
	"github.com/glimt/exr/meta"
	testutils "github.com/glimt/exr/utils"
)

func rgbaChannels(t meta.SampleType) meta.ChannelList {
	return meta.NewChannelList([]meta.Channel{
		{Name: "R", SampleType: t},
		{Name: "G", SampleType: t},
		{Name: "B", SampleType: t},
		{Name: "A", SampleType: t},
	})
}

func writeReadMeta(t *testing.T, headers []meta.Header) *meta.MetaData {
	t.Helper()

	var buf testutils.SeekableBuffer
	w, err := byteio.NewWriter(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := meta.WriteValidatingTo(w, headers, true); err != nil {
		t.Fatal(err)
	}
	if err := w.Flush(); err != nil {
		t.Fatal(err)
	}

	r, err := byteio.NewReader(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatal(err)
	}
	m, err := meta.ReadValidatedFrom(r, true)
	if err != nil {
		t.Fatal(err)
	}
	return m
}

func TestSinglePartScanLineRoundTrip(t *testing.T) {
	headers := []meta.Header{{
		Channels:    rgbaChannels(meta.F32),
		Compression: compress.ZIP,
		LineOrder:   meta.IncreasingY,
		LayerSize:   meta.Vec2{X: 17, Y: 33},
	}}

	m := writeReadMeta(t, headers)

	if m.Requirements.MultiPart || m.Requirements.SingleLayerTiled {
		t.Fatalf("unexpected version flags: %+v", m.Requirements)
	}
	if len(m.Headers) != 1 {
		t.Fatalf("expected 1 header, got %d", len(m.Headers))
	}

	h := &m.Headers[0]
	if h.LayerSize != (meta.Vec2{X: 17, Y: 33}) {
		t.Fatalf("layer size %+v", h.LayerSize)
	}
	if h.Compression != compress.ZIP {
		t.Fatalf("compression %v", h.Compression)
	}
	if diff := cmp.Diff(headers[0].Channels, h.Channels); diff != "" {
		t.Fatalf("channels differ (-want +got):\n%s", diff)
	}
	if h.ChunkCount() != 3 { // ceil(33/16)
		t.Fatalf("chunk count %d", h.ChunkCount())
	}
}

func TestMultiPartTiledRoundTrip(t *testing.T) {
	headers := []meta.Header{
		{
			Name:        "color",
			Channels:    rgbaChannels(meta.F16),
			Compression: compress.ZIP,
			Blocks:      meta.TileBlocks(meta.TileDescription{TileSize: meta.Vec2{X: 16, Y: 16}}),
			LineOrder:   meta.IncreasingY,
			LayerSize:   meta.Vec2{X: 32, Y: 32},
		},
		{
			Name:        "depth",
			Channels:    meta.NewChannelList([]meta.Channel{{Name: "Z", SampleType: meta.F32}}),
			Compression: compress.ZIPS,
			LineOrder:   meta.UnspecifiedY,
			LayerSize:   meta.Vec2{X: 16, Y: 8},
		},
	}

	m := writeReadMeta(t, headers)

	if !m.Requirements.MultiPart {
		t.Fatal("expected the multi-part version flag")
	}
	if len(m.Headers) != 2 {
		t.Fatalf("expected 2 headers, got %d", len(m.Headers))
	}
	if m.Headers[0].Name != "color" || m.Headers[1].Name != "depth" {
		t.Fatalf("part names %q, %q", m.Headers[0].Name, m.Headers[1].Name)
	}
	if !m.Headers[0].Blocks.IsTiles() {
		t.Fatal("first part lost its tiling")
	}
	if m.Headers[0].ChunkCount() != 4 {
		t.Fatalf("tiled chunk count %d", m.Headers[0].ChunkCount())
	}
	if m.Headers[1].ChunkCount() != 8 {
		t.Fatalf("scan line chunk count %d", m.Headers[1].ChunkCount())
	}
	if m.TotalChunkCount() != 12 {
		t.Fatalf("total chunk count %d", m.TotalChunkCount())
	}
}

func TestSingleLayerTiledVersionFlag(t *testing.T) {
	headers := []meta.Header{{
		Channels:    rgbaChannels(meta.F32),
		Compression: compress.None,
		Blocks:      meta.TileBlocks(meta.TileDescription{TileSize: meta.Vec2{X: 8, Y: 8}}),
		LayerSize:   meta.Vec2{X: 8, Y: 8},
	}}

	m := writeReadMeta(t, headers)
	if !m.Requirements.SingleLayerTiled {
		t.Fatal("expected the single-layer-tiled version flag")
	}
}

func TestRejectsBadMagic(t *testing.T) {
	r, err := byteio.NewReader(bytes.NewReader([]byte{1, 2, 3, 4, 5, 6, 7, 8}))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := meta.ReadValidatedFrom(r, true); !exr.IsInvalid(err) {
		t.Fatalf("expected an invalid error, got %v", err)
	}
}

func TestValidationErrors(t *testing.T) {
	base := meta.Header{
		Channels:    rgbaChannels(meta.F32),
		Compression: compress.None,
		LayerSize:   meta.Vec2{X: 4, Y: 4},
	}

	cases := map[string][]meta.Header{
		"empty channel list": {func() meta.Header {
			h := base
			h.Channels = meta.ChannelList{}
			return h
		}()},
		"zero layer size": {func() meta.Header {
			h := base
			h.LayerSize = meta.Vec2{}
			return h
		}()},
		"zero tile size": {func() meta.Header {
			h := base
			h.Blocks = meta.TileBlocks(meta.TileDescription{})
			return h
		}()},
		"duplicate part names": {
			func() meta.Header { h := base; h.Name = "a"; return h }(),
			func() meta.Header { h := base; h.Name = "a"; return h }(),
		},
		"unnamed multi-part layer": {base, base},
	}

	for name, headers := range cases {
		var buf testutils.SeekableBuffer
		w, err := byteio.NewWriter(&buf)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := meta.WriteValidatingTo(w, headers, true); err == nil {
			t.Errorf("%s: expected a validation error", name)
		}
	}
}

func TestOffsetTableSkipMatchesRead(t *testing.T) {
	headers := []meta.Header{
		{Channels: rgbaChannels(meta.F32), Compression: compress.None, LayerSize: meta.Vec2{X: 4, Y: 5}},
	}

	table := make([]byte, headers[0].ChunkCount()*8)
	for i := range table {
		table[i] = byte(i + 1)
	}

	r, err := byteio.NewReader(bytes.NewReader(table))
	if err != nil {
		t.Fatal(err)
	}
	tables, err := meta.ReadOffsetTables(r, headers)
	if err != nil {
		t.Fatal(err)
	}
	readEnd := r.BytePosition()
	if len(tables) != 1 || len(tables[0]) != 5 {
		t.Fatalf("unexpected table shape %v", tables)
	}

	r, err = byteio.NewReader(bytes.NewReader(table))
	if err != nil {
		t.Fatal(err)
	}
	total, err := meta.SkipOffsetTables(r, headers)
	if err != nil {
		t.Fatal(err)
	}
	if total != 5 {
		t.Fatalf("skip reported %d chunks", total)
	}
	if r.BytePosition() != readEnd {
		t.Fatalf("skip ended at %d, read ended at %d", r.BytePosition(), readEnd)
	}
}
