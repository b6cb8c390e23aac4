package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/airbusgeo/tiffrw"
)

func newReadCommand() *cobra.Command {
	var ifdIndex int
	var compression string
	var cacheCapacity int
	var fromX, fromY, sizeX, sizeY int32
	var outPath string
	var require32Bit bool

	cmd := &cobra.Command{
		Use:   "read <file.tif>",
		Short: "extract a rectangle of raw planar sample bytes from a TIFF/BigTIFF",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ifd, fs, tio, err := openEngine(args[0], ifdIndex, require32Bit)
			if err != nil {
				return err
			}
			defer fs.Close()
			defer ifd.Close()

			codec, err := codecFor(compression)
			if err != nil {
				return err
			}

			opts := tiffrw.DefaultMapOptions()
			opts.CacheCapacity = cacheCapacity
			rm, err := tiffrw.NewReadMap(ifd, codec, tio, opts)
			if err != nil {
				return fmt.Errorf("build read map: %w", err)
			}

			buf, err := rm.LoadSamples(fromX, fromY, sizeX, sizeY)
			if err != nil {
				return fmt.Errorf("load samples: %w", err)
			}

			if outPath == "" || outPath == "-" {
				_, err = os.Stdout.Write(buf)
				return err
			}
			return os.WriteFile(outPath, buf, 0644)
		},
	}

	flags := cmd.Flags()
	flags.IntVar(&ifdIndex, "ifd", 0, "IFD index to read from")
	flags.StringVar(&compression, "compression", "none", "tile/strip compression: none, deflate, lzw, packbits")
	flags.IntVar(&cacheCapacity, "cache", 64, "decoded-tile LRU cache capacity, 0 to disable")
	flags.Int32Var(&fromX, "x", 0, "rectangle origin X")
	flags.Int32Var(&fromY, "y", 0, "rectangle origin Y")
	flags.Int32Var(&sizeX, "w", 0, "rectangle width")
	flags.Int32Var(&sizeY, "h", 0, "rectangle height")
	flags.StringVar(&outPath, "out", "-", "output file for raw planar sample bytes, - for stdout")
	flags.BoolVar(&require32Bit, "require-32bit", false, "fail rather than cross the classic-TIFF 4GiB boundary")
	cmd.MarkFlagRequired("w")
	cmd.MarkFlagRequired("h")
	return cmd
}
