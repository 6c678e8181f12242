package face

import (
	"fmt"
	"image"
	"image/color"
	"os"
	"path/filepath"

	"github.com/disintegration/imaging"
)

const (
	DefaultTileSize = 128
	DefaultColumns  = 8
)

// Tile is one face crop of a montage.
type Tile struct {
	Path string
	Box  Box
}

type MontageOptions struct {
	TileSize int
	Columns  int
}

func (o MontageOptions) withDefaults() MontageOptions {
	if o.TileSize <= 0 {
		o.TileSize = DefaultTileSize
	}
	if o.Columns <= 0 {
		o.Columns = DefaultColumns
	}
	return o
}

// BuildMontage crops every tile's face out of its image and lays the crops
// out in a grid on a dark sheet, row by row.
func BuildMontage(tiles []Tile, opts MontageOptions) (*image.NRGBA, error) {
	if len(tiles) == 0 {
		return nil, fmt.Errorf("montage has no tiles")
	}
	opts = opts.withDefaults()

	cols := min(opts.Columns, len(tiles))
	rows := (len(tiles) + opts.Columns - 1) / opts.Columns
	sheet := imaging.New(cols*opts.TileSize, rows*opts.TileSize, color.NRGBA{R: 30, G: 30, B: 30, A: 255})

	sources := make(map[string]image.Image)
	for i, t := range tiles {
		src, ok := sources[t.Path]
		if !ok {
			img, err := imaging.Open(t.Path, imaging.AutoOrientation(true))
			if err != nil {
				return nil, fmt.Errorf("failed to open image %s: %w", t.Path, err)
			}
			sources[t.Path] = img
			src = img
		}

		box, ok := ClampBox(t.Box, src.Bounds().Dx(), src.Bounds().Dy())
		if !ok {
			continue
		}
		crop := imaging.Crop(src, box.Rect())
		thumb := imaging.Fill(crop, opts.TileSize, opts.TileSize, imaging.Center, imaging.Lanczos)

		pos := image.Pt((i%opts.Columns)*opts.TileSize, (i/opts.Columns)*opts.TileSize)
		sheet = imaging.Paste(sheet, thumb, pos)
	}
	return sheet, nil
}

// WriteMontage builds a montage and saves it as a JPEG at path.
func WriteMontage(path string, tiles []Tile, opts MontageOptions) error {
	sheet, err := BuildMontage(tiles, opts)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create montage directory for %s: %w", path, err)
	}
	if err := imaging.Save(sheet, path, imaging.JPEGQuality(85)); err != nil {
		return fmt.Errorf("failed to save montage to %s: %w", path, err)
	}
	return nil
}
