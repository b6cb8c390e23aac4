package tiffrw

// ByteOrder mirrors the two TIFF byte orders.
type ByteOrder int

const (
	LittleEndian ByteOrder = iota
	BigEndian
)

// IFD is the narrow, typed view of an Image File Directory the engine
// needs. Concrete TIFF tag parsing/serialization (the bit-level IFD
// reader/writer) is an external collaborator reached through this
// interface; this package never parses tag bytes itself. See package
// tiffifd for the concrete adapter over github.com/google/tiff.
type IFD interface {
	ImageDimX() int32
	ImageDimY() int32
	TileSizeX() int32
	TileSizeY() int32
	BitsPerSample() []uint32
	SampleFormat() uint16
	SamplesPerPixel() int32
	ByteOrder() ByteOrder
	IsPlanarSeparated() bool
	HasTileInformation() bool
	Compression() uint16
	Photometric() uint16

	CachedOffsets() []uint64
	CachedByteCounts() []uint64
	UpdateDataPositioning(offsets, byteCounts []uint64) error

	IsLoadedFromFile() bool
	SetFileOffsetForWriting(uint64)

	// ID is a monotonically assigned identity, stable for the
	// lifetime of the process, used in place of pointer-identity
	// hashing for TileIndex equality/hash.
	ID() uint64
}

// TileMeta is the metadata a Codec needs about the tile it is
// encoding or decoding; it never needs the full IFD.
type TileMeta struct {
	BitsPerSample   uint32
	SamplesPerPixel int32
	SizeX, SizeY    int32
	ByteOrder       ByteOrder
	Photometric     uint16
	Interleaved     bool
}

// Codec is the external collaborator that turns decoded tile bytes
// into an encoded block and back. Specific codec implementations
// (JPEG, Deflate, LZW, PackBits...) are out of scope for the core
// engine and are consumed only through this interface; see package
// codecs for the concrete adapters this module ships for testing.
type Codec interface {
	Encode(decoded []byte, meta TileMeta) ([]byte, error)
	Decode(encoded []byte, meta TileMeta) ([]byte, error)
}

// Seekable is the minimal seekable-stream collaborator TileIO needs.
type Seekable interface {
	Seek(offset uint64) error
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Length() (uint64, error)
	SetLength(uint64) error
}
