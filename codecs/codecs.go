// Package codecs ships the small set of Codec implementations the
// engine's own tests exercise it against. Per-tile compression is an
// external collaborator (tiffrw.Codec) the core engine never
// implements itself; these are concrete, swappable adapters, not part
// of the engine's required surface.
package codecs

import (
	"bytes"
	"compress/lzw"
	"fmt"
	"io"

	"github.com/klauspost/compress/flate"

	"github.com/airbusgeo/tiffrw"
)

// None passes tile bytes through unchanged (TIFF Compression=1).
type None struct{}

func (None) Encode(decoded []byte, _ tiffrw.TileMeta) ([]byte, error) { return decoded, nil }
func (None) Decode(encoded []byte, _ tiffrw.TileMeta) ([]byte, error) { return encoded, nil }

// Deflate wraps klauspost/compress/flate (TIFF Compression=8/32946),
// the same Deflate implementation family the teacher's go.mod already
// pulled in for its own COG tile recompression paths.
type Deflate struct {
	Level int
}

func (d Deflate) Encode(decoded []byte, _ tiffrw.TileMeta) ([]byte, error) {
	level := d.Level
	if level == 0 {
		level = flate.DefaultCompression
	}
	var buf bytes.Buffer
	w, err := flate.NewWriter(&buf, level)
	if err != nil {
		return nil, fmt.Errorf("codecs: deflate writer: %w", err)
	}
	if _, err := w.Write(decoded); err != nil {
		return nil, fmt.Errorf("codecs: deflate write: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("codecs: deflate close: %w", err)
	}
	return buf.Bytes(), nil
}

func (Deflate) Decode(encoded []byte, _ tiffrw.TileMeta) ([]byte, error) {
	r := flate.NewReader(bytes.NewReader(encoded))
	defer r.Close()
	out, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("codecs: deflate decode: %w", err)
	}
	return out, nil
}

// LZW wraps the standard library's compress/lzw in TIFF's own MSB/8
// bit-order convention (TIFF Compression=5).
type LZW struct{}

func (LZW) Encode(decoded []byte, _ tiffrw.TileMeta) ([]byte, error) {
	var buf bytes.Buffer
	w := lzw.NewWriter(&buf, lzw.MSB, 8)
	if _, err := w.Write(decoded); err != nil {
		return nil, fmt.Errorf("codecs: lzw write: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("codecs: lzw close: %w", err)
	}
	return buf.Bytes(), nil
}

func (LZW) Decode(encoded []byte, _ tiffrw.TileMeta) ([]byte, error) {
	r := lzw.NewReader(bytes.NewReader(encoded), lzw.MSB, 8)
	defer r.Close()
	out, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("codecs: lzw decode: %w", err)
	}
	return out, nil
}

// PackBits implements TIFF Compression=32773: a run-length scheme
// with no third-party equivalent in the retrieved corpus, so it's
// hand-rolled directly off the TIFF6 spec's byte-level description
// (see DESIGN.md).
type PackBits struct{}

func (PackBits) Encode(decoded []byte, _ tiffrw.TileMeta) ([]byte, error) {
	var out bytes.Buffer
	i := 0
	for i < len(decoded) {
		runStart := i
		for i+1 < len(decoded) && decoded[i] == decoded[i+1] && i-runStart < 127 {
			i++
		}
		runLen := i - runStart + 1
		if runLen >= 2 {
			out.WriteByte(byte(int8(-(runLen - 1))))
			out.WriteByte(decoded[runStart])
			i++
			continue
		}
		litStart := i
		i++
		for i < len(decoded) && !(i+1 < len(decoded) && decoded[i] == decoded[i+1]) && i-litStart < 127 {
			i++
		}
		lit := decoded[litStart:i]
		out.WriteByte(byte(len(lit) - 1))
		out.Write(lit)
	}
	return out.Bytes(), nil
}

func (PackBits) Decode(encoded []byte, _ tiffrw.TileMeta) ([]byte, error) {
	var out bytes.Buffer
	i := 0
	for i < len(encoded) {
		n := int8(encoded[i])
		i++
		switch {
		case n >= 0:
			count := int(n) + 1
			if i+count > len(encoded) {
				return nil, fmt.Errorf("codecs: packbits literal run overruns input")
			}
			out.Write(encoded[i : i+count])
			i += count
		case n != -128:
			if i >= len(encoded) {
				return nil, fmt.Errorf("codecs: packbits replicate run overruns input")
			}
			count := 1 - int(n)
			for j := 0; j < count; j++ {
				out.WriteByte(encoded[i])
			}
			i++
		default:
			// n == -128: no-op byte, per TIFF6 spec.
		}
	}
	return out.Bytes(), nil
}

// Unimplemented rejects any codec the engine's own tests don't need
// (JPEG, LERC, WebP...): real support for those is out of scope for
// this module (see DESIGN.md, "codecs package").
type Unimplemented struct {
	Name string
}

func (u Unimplemented) Encode([]byte, tiffrw.TileMeta) ([]byte, error) {
	return nil, fmt.Errorf("codecs: %s encoding not implemented", u.Name)
}

func (u Unimplemented) Decode([]byte, tiffrw.TileMeta) ([]byte, error) {
	return nil, fmt.Errorf("codecs: %s decoding not implemented", u.Name)
}
