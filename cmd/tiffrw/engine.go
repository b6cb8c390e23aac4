package main

import (
	"fmt"

	"github.com/airbusgeo/tiffrw"
	"github.com/airbusgeo/tiffrw/codecs"
	"github.com/airbusgeo/tiffrw/stream"
	"github.com/airbusgeo/tiffrw/tiffifd"
)

// codecFor resolves a TIFF compression scheme name to a Codec. Only
// the schemes package codecs actually implements are accepted; any
// other name fails with a clear, actionable error rather than
// silently falling back to None.
func codecFor(name string) (tiffrw.Codec, error) {
	switch name {
	case "", "none":
		return codecs.None{}, nil
	case "deflate":
		return codecs.Deflate{}, nil
	case "lzw":
		return codecs.LZW{}, nil
	case "packbits":
		return codecs.PackBits{}, nil
	default:
		return nil, fmt.Errorf("unsupported compression %q: supported are none, deflate, lzw, packbits", name)
	}
}

// openEngine opens path read-write and builds the plumbing shared by
// the read/write/verify subcommands: a FileIFD, a file-backed
// Seekable, and a TileIO bound to it.
func openEngine(path string, ifdIndex int, require32Bit bool) (*tiffifd.FileIFD, *stream.FileStream, *tiffrw.TileIO, error) {
	ifd, err := tiffifd.OpenFileIFD(path, ifdIndex)
	if err != nil {
		return nil, nil, nil, err
	}
	fs, err := stream.OpenFile(path)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("open stream: %w", err)
	}
	tio := tiffrw.NewTileIO(fs, require32Bit)
	return ifd, fs, tio, nil
}
