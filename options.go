package tiffrw

// MapOptions holds the map/reader-level configuration knobs from
// spec.md §6. It carries json/yaml struct tags; cmd/tiffrw's batch
// subcommand does not read it from its config file and runs every job
// with DefaultMapOptions.
type MapOptions struct {
	CropTilesToImageBoundaries  bool   `json:"cropTilesToImageBoundaries" yaml:"cropTilesToImageBoundaries"`
	ByteFiller                  byte   `json:"byteFiller" yaml:"byteFiller"`
	AutoUnpackUnusualPrecisions bool   `json:"autoUnpackUnusualPrecisions" yaml:"autoUnpackUnusualPrecisions"`
	AutoScaleWhenIncreasing     bool   `json:"autoScaleWhenIncreasingBitDepth" yaml:"autoScaleWhenIncreasingBitDepth"`
	AutoInterleaveSource        bool   `json:"autoInterleaveSource" yaml:"autoInterleaveSource"`
	Require32BitFile            bool   `json:"require32BitFile" yaml:"require32BitFile"`
	AlwaysWriteToFileEnd        bool   `json:"alwaysWriteToFileEnd" yaml:"alwaysWriteToFileEnd"`
	TileInitializer             string `json:"tileInitializer" yaml:"tileInitializer"`
	CacheCapacity               int    `json:"cacheCapacity" yaml:"cacheCapacity"`
}

// DefaultMapOptions matches the teacher's preference for sane,
// explicit defaults set in one place (see NewStripper/NewTiler's
// option-struct defaults in stripper.go/tiler.go).
func DefaultMapOptions() MapOptions {
	return MapOptions{
		CropTilesToImageBoundaries: true,
		AutoUnpackUnusualPrecisions: true,
		CacheCapacity:              64,
	}
}

// tileInitializerFunc resolves a MapOptions.TileInitializer name
// against the small built-in registry: "zero" (default, leaves the
// buffer as allocated) and "byteFiller" (fills every byte with
// opts.ByteFiller before the caller's partial write lands).
func (o MapOptions) tileInitializerFunc() func([]byte) {
	switch o.TileInitializer {
	case "byteFiller":
		filler := o.ByteFiller
		if filler == 0 {
			return nil
		}
		return func(buf []byte) {
			for i := range buf {
				buf[i] = filler
			}
		}
	default:
		return nil
	}
}
