package main

import (
	"fmt"

	"github.com/airbusgeo/godal"
	shellwords "github.com/mattn/go-shellwords"
	"github.com/spf13/cobra"

	"github.com/airbusgeo/tiffrw/tiffifd"
)

func newVerifyCommand() *cobra.Command {
	var ifdIndex int
	var gdalOpenOptions string

	cmd := &cobra.Command{
		Use:   "verify <file.tif>",
		Short: "cross-check the engine's view of a TIFF's geometry against GDAL's",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			godal.RegisterInternalDrivers()

			ifd, err := tiffifd.OpenFileIFD(args[0], ifdIndex)
			if err != nil {
				return fmt.Errorf("tiffifd open: %w", err)
			}
			defer ifd.Close()

			openOpts, err := shellwords.Parse(gdalOpenOptions)
			if err != nil {
				return fmt.Errorf("parse --gdal-open-options: %w", err)
			}
			ds, err := godal.Open(args[0], godal.RasterOnly(), godal.OpenOptions(openOpts...))
			if err != nil {
				return fmt.Errorf("godal open: %w", err)
			}
			defer ds.Close()
			st := ds.Structure()

			var mismatches []string
			if int32(st.SizeX) != ifd.ImageDimX() {
				mismatches = append(mismatches, fmt.Sprintf("width: gdal=%d engine=%d", st.SizeX, ifd.ImageDimX()))
			}
			if int32(st.SizeY) != ifd.ImageDimY() {
				mismatches = append(mismatches, fmt.Sprintf("height: gdal=%d engine=%d", st.SizeY, ifd.ImageDimY()))
			}
			if ifd.HasTileInformation() {
				if int32(st.BlockSizeX) != ifd.TileSizeX() {
					mismatches = append(mismatches, fmt.Sprintf("tile width: gdal=%d engine=%d", st.BlockSizeX, ifd.TileSizeX()))
				}
				if int32(st.BlockSizeY) != ifd.TileSizeY() {
					mismatches = append(mismatches, fmt.Sprintf("tile height: gdal=%d engine=%d", st.BlockSizeY, ifd.TileSizeY()))
				}
			}
			if len(mismatches) > 0 {
				return fmt.Errorf("geometry mismatch:\n%v", mismatches)
			}
			fmt.Printf("%s: %dx%d, %d band(s), matches GDAL's view\n", args[0], ifd.ImageDimX(), ifd.ImageDimY(), ifd.SamplesPerPixel())
			return nil
		},
	}

	cmd.Flags().IntVar(&ifdIndex, "ifd", 0, "IFD index to verify")
	cmd.Flags().StringVar(&gdalOpenOptions, "gdal-open-options", "", "extra GDAL dataset open options, shell-quoted (e.g. \"NUM_THREADS=4 IGNORE_COG_LAYOUT_BREAK=YES\")")
	return cmd
}
