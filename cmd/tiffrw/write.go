package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/airbusgeo/tiffrw"
)

func newWriteCommand() *cobra.Command {
	var ifdIndex int
	var compression string
	var fromX, fromY, sizeX, sizeY int32
	var inPath string
	var require32Bit, ignoreOutside bool

	cmd := &cobra.Command{
		Use:   "write <file.tif>",
		Short: "inject a rectangle of raw planar sample bytes into an existing TIFF/BigTIFF",
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
			wm, err := tiffrw.NewWriteMap(ifd, codec, tio, opts, false)
			if err != nil {
				return fmt.Errorf("build write map: %w", err)
			}
			wm.IgnoreOutsideImage(ignoreOutside)

			var buf []byte
			if inPath == "" || inPath == "-" {
				buf, err = readAllStdin()
			} else {
				buf, err = os.ReadFile(inPath)
			}
			if err != nil {
				return fmt.Errorf("read input: %w", err)
			}

			if err := wm.PreloadAndStore(tiffrw.NewRect(fromX, fromY, sizeX, sizeY), false); err != nil {
				return fmt.Errorf("preload: %w", err)
			}
			if _, err := wm.UpdateSampleBytes(fromX, fromY, sizeX, sizeY, buf); err != nil {
				return fmt.Errorf("update samples: %w", err)
			}
			if err := wm.CompleteWriting(); err != nil {
				return fmt.Errorf("complete writing: %w", err)
			}
			return nil
		},
	}

	flags := cmd.Flags()
	flags.IntVar(&ifdIndex, "ifd", 0, "IFD index to write into")
	flags.StringVar(&compression, "compression", "none", "tile/strip compression: none, deflate, lzw, packbits")
	flags.Int32Var(&fromX, "x", 0, "rectangle origin X")
	flags.Int32Var(&fromY, "y", 0, "rectangle origin Y")
	flags.Int32Var(&sizeX, "w", 0, "rectangle width")
	flags.Int32Var(&sizeY, "h", 0, "rectangle height")
	flags.StringVar(&inPath, "in", "-", "input file of raw planar sample bytes, - for stdin")
	flags.BoolVar(&require32Bit, "require-32bit", false, "fail rather than cross the classic-TIFF 4GiB boundary")
	flags.BoolVar(&ignoreOutside, "ignore-outside", false, "clamp the rectangle to the image instead of failing")
	cmd.MarkFlagRequired("w")
	cmd.MarkFlagRequired("h")
	return cmd
}

func readAllStdin() ([]byte, error) {
	return io.ReadAll(os.Stdin)
}
