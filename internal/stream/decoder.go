// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package stream

import (
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// =============================================================================
// INCREMENTAL UTF-8 DECODER
// =============================================================================

// ChunkDecoder decodes a UTF-8 byte stream incrementally. Incomplete
// multi-byte sequences at the end of a chunk are buffered and completed by
// the next chunk; invalid sequences decode to U+FFFD rather than failing.
type ChunkDecoder struct {
	dec     transform.Transformer
	pending []byte
	dst     []byte
}

// NewChunkDecoder creates a decoder ready for the first chunk.
func NewChunkDecoder() *ChunkDecoder {
	return &ChunkDecoder{
		dec: unicode.UTF8.NewDecoder(),
		dst: make([]byte, 4096),
	}
}

// Decode consumes the next raw chunk and returns the text decodable so far.
// Trailing bytes of an unfinished rune are held back for the next call.
func (d *ChunkDecoder) Decode(p []byte) string {
	d.pending = append(d.pending, p...)
	return d.drain(false)
}

// Flush decodes any buffered remainder at end of stream. A dangling partial
// sequence becomes U+FFFD.
func (d *ChunkDecoder) Flush() string {
	return d.drain(true)
}

func (d *ChunkDecoder) drain(atEOF bool) string {
	var out []byte
	for len(d.pending) > 0 {
		nDst, nSrc, err := d.dec.Transform(d.dst, d.pending, atEOF)
		out = append(out, d.dst[:nDst]...)
		d.pending = d.pending[nSrc:]

		switch err {
		case nil:
			if len(d.pending) == 0 {
				return string(out)
			}
		case transform.ErrShortDst:
			// Loop again with the remaining source.
		case transform.ErrShortSrc:
			// Incomplete rune at chunk boundary: wait for more bytes.
			return string(out)
		default:
			// The UTF-8 decoder substitutes rather than erroring, but keep
			// the stream alive if that ever changes.
			return string(out)
		}
	}
	return string(out)
}
