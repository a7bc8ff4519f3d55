package block_test

import (
	"bytes"
	"io"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/glimt/exr/block"
	"github.com/glimt/exr/meta"
)

func collectSequential(t *testing.T, data []byte) map[block.BlockIndex]string {
	t.Helper()

	_, blocks := readAllBlocks(t, data, true)
	out := map[block.BlockIndex]string{}
	for _, b := range blocks {
		out[b.Index] = string(b.Data)
	}
	return out
}

func collectParallel(t *testing.T, data []byte, workers int) map[block.BlockIndex]string {
	t.Helper()

	reader, err := block.NewReader(bytes.NewReader(data), true)
	if err != nil {
		t.Fatal(err)
	}
	chunks, err := reader.AllChunks(true)
	if err != nil {
		t.Fatal(err)
	}

	decompressor := block.NewParallelBlockDecompressor(chunks, true, workers)
	out := map[block.BlockIndex]string{}
	for {
		b, err := decompressor.DecompressNextBlock()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatal(err)
		}
		if _, seen := out[b.Index]; seen {
			t.Fatalf("block %+v produced twice", b.Index)
		}
		out[b.Index] = string(b.Data)
	}
	if decompressor.RemainingBlocks() != 0 {
		t.Fatalf("decompressor reports %d remaining blocks after the end", decompressor.RemainingBlocks())
	}
	return out
}

func TestParallelMatchesSequential(t *testing.T) {
	data := writeImage(t, twoLayerTiledZip(), gradient)

	sequential := collectSequential(t, data)
	for _, workers := range []int{1, 2, 8} {
		parallel := collectParallel(t, data, workers)
		if diff := cmp.Diff(sequential, parallel); diff != "" {
			t.Fatalf("%d workers: parallel blocks differ from sequential (-seq +par):\n%s", workers, diff)
		}
	}
}

func TestDecompressParallelDriver(t *testing.T) {
	data := writeImage(t, twoLayerTiledZip(), gradient)

	reader, err := block.NewReader(bytes.NewReader(data), true)
	if err != nil {
		t.Fatal(err)
	}
	chunks, err := reader.AllChunks(true)
	if err != nil {
		t.Fatal(err)
	}

	seen := map[block.BlockIndex]bool{}
	err = block.DecompressParallel(chunks, true, func(m *meta.MetaData, b *block.UncompressedBlock) error {
		if m == nil || len(m.Headers) != 2 {
			t.Fatal("driver passed wrong metadata")
		}
		seen[b.Index] = true
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(seen) != 6 {
		t.Fatalf("driver produced %d distinct blocks, expected 6", len(seen))
	}
}

func TestParallelDecompressorClose(t *testing.T) {
	data := writeImage(t, twoLayerTiledZip(), gradient)

	reader, err := block.NewReader(bytes.NewReader(data), false)
	if err != nil {
		t.Fatal(err)
	}
	chunks, err := reader.AllChunks(false)
	if err != nil {
		t.Fatal(err)
	}

	decompressor := block.NewParallelBlockDecompressor(chunks, false, 2)
	if _, err := decompressor.DecompressNextBlock(); err != nil {
		t.Fatal(err)
	}

	// dropping the driver mid-stream must not hang or panic
	decompressor.Close()
	decompressor.Close() // idempotent
}

func TestSequentialDecompressorLength(t *testing.T) {
	data := writeImage(t, twoLayerTiledZip(), gradient)

	reader, err := block.NewReader(bytes.NewReader(data), false)
	if err != nil {
		t.Fatal(err)
	}
	chunks, err := reader.AllChunks(false)
	if err != nil {
		t.Fatal(err)
	}

	decompressor := block.SequentialDecompressor(chunks, false)
	remaining := decompressor.RemainingBlocks()
	if remaining != 6 {
		t.Fatalf("expected 6 remaining blocks, got %d", remaining)
	}
	for {
		if _, err := decompressor.DecompressNextBlock(); err == io.EOF {
			break
		} else if err != nil {
			t.Fatal(err)
		}
		remaining--
		if decompressor.RemainingBlocks() != remaining {
			t.Fatalf("remaining count %d, expected %d", decompressor.RemainingBlocks(), remaining)
		}
	}
	if remaining != 0 {
		t.Fatalf("ended with %d blocks unaccounted for", remaining)
	}
}
