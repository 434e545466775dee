// Package parallel provides tile-parallel evaluation for the cpu device.
//
// An output image is divided into rectangular tiles (64x64 by default) that
// are evaluated independently by a work-stealing Pool:
//
//   - 64x64 float tiles keep one operand window in L2 cache
//   - edge tiles are clipped to the image
//   - tiles are listed row by row for deterministic job order
package parallel

// Default tile size in pixels.
const (
	TileCols = 64
	TileRows = 64
)

// Rect is a tile of an image: the pixels [X, X+Cols) x [Y, Y+Rows).
type Rect struct {
	X, Y       int
	Cols, Rows int
}

// Pixels returns Cols*Rows.
func (r Rect) Pixels() int { return r.Cols * r.Rows }

// Split divides a cols x rows image into tiles of at most tileCols x
// tileRows pixels, row by row. Non-positive tile sizes use the defaults.
func Split(cols, rows, tileCols, tileRows int) []Rect {
	if cols <= 0 || rows <= 0 {
		return nil
	}
	if tileCols <= 0 {
		tileCols = TileCols
	}
	if tileRows <= 0 {
		tileRows = TileRows
	}

	nx := (cols + tileCols - 1) / tileCols
	ny := (rows + tileRows - 1) / tileRows
	tiles := make([]Rect, 0, nx*ny)
	for ty := 0; ty < ny; ty++ {
		for tx := 0; tx < nx; tx++ {
			x, y := tx*tileCols, ty*tileRows
			tiles = append(tiles, Rect{
				X:    x,
				Y:    y,
				Cols: min(tileCols, cols-x),
				Rows: min(tileRows, rows-y),
			})
		}
	}
	return tiles
}
