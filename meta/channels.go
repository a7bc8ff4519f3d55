package meta

import (
	"sort"

	"github.com/glimt/exr"
)

// SampleType is the storage type of one channel's samples.
type SampleType uint8

const (
	U32 SampleType = 0
	F16 SampleType = 1
	F32 SampleType = 2
)

// BytesPerSample returns the on-disk size of one sample.
func (s SampleType) BytesPerSample() int {
	if s == F16 {
		return 2
	}
	return 4
}

// Channel describes one channel of a layer.
type Channel struct {
	Name       string
	SampleType SampleType

	// Quantize hints that the channel holds perceptually linear data.
	Quantize bool

	// Sampling is the periodic subsampling factor. Only (1,1) is supported
	// by the block pipeline.
	Sampling Vec2
}

// ChannelList is the ordered channel set of a layer. The file format keeps
// channels sorted by name; BytesPerPixel is the byte count of one pixel
// across all channels.
type ChannelList struct {
	List          []Channel
	BytesPerPixel int
}

// NewChannelList sorts the channels by name and computes the per-pixel size.
func NewChannelList(channels []Channel) ChannelList {
	sorted := make([]Channel, len(channels))
	copy(sorted, channels)
	for i := range sorted {
		if sorted[i].Sampling == (Vec2{}) {
			sorted[i].Sampling = Vec2{1, 1}
		}
	}
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })

	bytes := 0
	for _, c := range sorted {
		bytes += c.SampleType.BytesPerSample()
	}
	return ChannelList{List: sorted, BytesPerPixel: bytes}
}

func (c ChannelList) validate() error {
	if len(c.List) == 0 {
		return exr.Invalid("empty channel list")
	}
	for i, ch := range c.List {
		if ch.Name == "" {
			return exr.Invalid("unnamed channel")
		}
		if ch.Sampling.X != 1 || ch.Sampling.Y != 1 {
			return exr.NotSupported("subsampled channels")
		}
		if ch.SampleType > F32 {
			return exr.Invalid("channel sample type")
		}
		if i > 0 && c.List[i-1].Name > ch.Name {
			return exr.Invalid("channel list not sorted")
		}
	}
	return nil
}
