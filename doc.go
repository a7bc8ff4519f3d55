// Package exr reads and writes the chunk layer of OpenEXR image files.
//
// The subpackages split the work the way the file format does: meta parses
// and serializes the header section, compress holds the per-chunk codecs,
// block turns compressed chunks into pixel blocks and back, and byteio
// provides the position-tracked streams everything reads from and writes to.
//
// This package itself only defines the error kinds shared across the module.
package exr
