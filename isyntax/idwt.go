package isyntax

// Padding widths either side of a tile's own coefficients when a
// neighbouring tile's border samples are stitched into the IDWT
// workspace.
const (
	paddingLeft  = 3
	paddingRight = 4
)

// quadrant identifies one of the four subbands a tile's IDWT workspace is
// divided into.
type quadrant int

const (
	quadLL quadrant = iota
	quadHL
	quadLH
	quadHH
)

// neighborDir indexes the eight spatial neighbours a tile gathers border
// samples from, matching the bit order of neighborMask.
type neighborDir int

const (
	dirN neighborDir = iota
	dirNE
	dirE
	dirSE
	dirS
	dirSW
	dirW
	dirNW
)

// plane returns the tileW*tileH samples for one quadrant of a channel's
// coefficients, or nil if that quadrant has not been decoded yet.
func (tc *TileChannel) plane(q quadrant, tileW, tileH int) []int32 {
	samples := tileW * tileH
	switch q {
	case quadLL:
		if !tc.hasLL {
			return nil
		}
		return tc.CoeffLL
	case quadHL:
		if !tc.hasH {
			return nil
		}
		return tc.CoeffH[0:samples]
	case quadLH:
		if !tc.hasH {
			return nil
		}
		return tc.CoeffH[samples : 2*samples]
	case quadHH:
		if !tc.hasH {
			return nil
		}
		return tc.CoeffH[2*samples : 3*samples]
	}
	return nil
}

// dummyCoefficient is the fill value used for out-of-bounds neighbour
// margins at the image edge: white for the LL quadrant of the luminance
// channel (sign-meaningless background), black everywhere else.
func dummyCoefficient(colour Colour, q quadrant) int32 {
	if colour == ColourY && q == quadLL {
		return 255
	}
	return 0
}

// stitchWorkspace builds the padded workspace IDWT operates on: four
// quadrants of size (tileW+paddingLeft+paddingRight) x
// (tileH+paddingLeft+paddingRight), each with the tile's own coefficients
// at the centre and border strips sampled from the eight neighbours'
// corresponding quadrant (or a dummy fill when a neighbour is missing).
func stitchWorkspace(colour Colour, tileW, tileH int, self *TileChannel, neighbors [8]*TileChannel) []int32 {
	quadW := tileW + paddingLeft + paddingRight
	quadH := tileH + paddingLeft + paddingRight
	wsW := 2 * quadW
	wsH := 2 * quadH
	ws := make([]int32, wsW*wsH)

	quads := [4]quadrant{quadLL, quadHL, quadLH, quadHH}
	for qi, q := range quads {
		qx0 := (qi % 2) * quadW
		qy0 := (qi / 2) * quadH

		centre := self.plane(q, tileW, tileH)
		fill := dummyCoefficient(colour, q)
		for y := 0; y < quadH; y++ {
			for x := 0; x < quadW; x++ {
				ws[(qy0+y)*wsW+(qx0+x)] = fill
			}
		}
		if centre != nil {
			for y := 0; y < tileH; y++ {
				row := centre[y*tileW : (y+1)*tileW]
				dst := ws[(qy0+paddingLeft+y)*wsW+(qx0+paddingLeft) : (qy0+paddingLeft+y)*wsW+(qx0+paddingLeft)+tileW]
				copy(dst, row)
			}
		}

		fillBorderFromNeighbors(ws, wsW, qx0, qy0, quadW, quadH, tileW, tileH, q, colour, neighbors)
	}

	return ws
}

// fillBorderFromNeighbors copies the paddingLeft/paddingRight-wide border
// strips around one quadrant's centre from the matching quadrant of each
// neighbouring tile, using the dummy fill already written by the caller
// when a neighbour is absent.
func fillBorderFromNeighbors(ws []int32, wsW, qx0, qy0, quadW, quadH, tileW, tileH int, q quadrant, colour Colour, neighbors [8]*TileChannel) {
	copyEdge := func(dir neighborDir, dstX0, dstY0, w, h, srcX0, srcY0 int) {
		n := neighbors[dir]
		if n == nil {
			return
		}
		src := n.plane(q, tileW, tileH)
		if src == nil {
			return
		}
		for y := 0; y < h; y++ {
			sy := srcY0 + y
			if sy < 0 || sy >= tileH {
				continue
			}
			for x := 0; x < w; x++ {
				sx := srcX0 + x
				if sx < 0 || sx >= tileW {
					continue
				}
				ws[(qy0+dstY0+y)*wsW+(qx0+dstX0+x)] = src[sy*tileW+sx]
			}
		}
	}

	// N / S: full-width strips taken from the bottom/top rows of the
	// neighbour directly above/below.
	copyEdge(dirN, paddingLeft, 0, tileW, paddingLeft, 0, tileH-paddingLeft)
	copyEdge(dirS, paddingLeft, paddingLeft+tileH, tileW, paddingRight, 0, 0)
	// W / E: full-height strips taken from the rightmost/leftmost columns
	// of the neighbour directly left/right.
	copyEdge(dirW, 0, paddingLeft, paddingLeft, tileH, tileW-paddingLeft, 0)
	copyEdge(dirE, paddingLeft+tileW, paddingLeft, paddingRight, tileH, 0, 0)
	// Corners: paddingLeft/paddingRight-sized blocks from the opposite
	// corner of the diagonal neighbour.
	copyEdge(dirNW, 0, 0, paddingLeft, paddingLeft, tileW-paddingLeft, tileH-paddingLeft)
	copyEdge(dirNE, paddingLeft+tileW, 0, paddingRight, paddingLeft, 0, tileH-paddingLeft)
	copyEdge(dirSW, 0, paddingLeft+tileH, paddingLeft, paddingRight, tileW-paddingLeft, 0)
	copyEdge(dirSE, paddingLeft+tileW, paddingLeft+tileH, paddingRight, paddingRight, 0, 0)
	_ = quadW
	_ = quadH
}

// inverse1D undoes the 5/3 reversible lifting transform in place: signal
// holds low-pass coefficients followed by high-pass coefficients: see
// any reference implementation of JPEG 2000's reversible 5/3 (symmetric
// extension at the boundary).
func inverse1D(signal []int32) {
	n := len(signal)
	if n < 2 {
		return
	}
	half := (n + 1) / 2
	low := make([]int32, half)
	high := make([]int32, n-half)
	copy(low, signal[:half])
	copy(high, signal[half:])

	for i := 0; i < half; i++ {
		var left int32
		if i > 0 {
			left = high[i-1]
		} else if len(high) > 0 {
			left = high[0]
		}
		right := left
		if i < len(high) {
			right = high[i]
		}
		low[i] -= (left + right + 2) / 4
	}

	for i := 0; i < len(high); i++ {
		left := low[i]
		right := left
		if i+1 < half {
			right = low[i+1]
		}
		high[i] += (left + right) / 2
	}

	for i := 0; i < half; i++ {
		signal[2*i] = low[i]
	}
	for i := 0; i < len(high); i++ {
		signal[2*i+1] = high[i]
	}
}

// inverse2D applies the inverse 5/3 transform row-wise (horizontal pass)
// then column-wise (vertical pass) over a width x height region of data
// with the given row stride.
func inverse2D(data []int32, width, height, stride int) {
	if width < 2 || height < 2 {
		return
	}

	row := make([]int32, width)
	for y := 0; y < height; y++ {
		offset := y * stride
		copy(row, data[offset:offset+width])
		inverse1D(row)
		copy(data[offset:offset+width], row)
	}

	col := make([]int32, height)
	for x := 0; x < width; x++ {
		for y := 0; y < height; y++ {
			col[y] = data[y*stride+x]
		}
		inverse1D(col)
		for y := 0; y < height; y++ {
			data[y*stride+x] = col[y]
		}
	}
}

// ReconstructTile runs the IDWT for one colour channel at one tile,
// stitching in the eight spatial neighbours' coefficients (or the dummy
// fill at image edges), and returns the four tileW x tileH quadrants to
// donate as the LL input for this tile's four children at the next
// finer scale — in (top-left, top-right, bottom-left, bottom-right)
// order, with the padding border discarded.
func ReconstructTile(colour Colour, tileW, tileH int, self *TileChannel, neighbors [8]*TileChannel) [4][]int32 {
	quadW := tileW + paddingLeft + paddingRight
	quadH := tileH + paddingLeft + paddingRight
	wsW := 2 * quadW
	wsH := 2 * quadH

	ws := stitchWorkspace(colour, tileW, tileH, self, neighbors)
	inverse2D(ws, wsW, wsH, wsW)

	var out [4][]int32
	corners := [4][2]int{{0, 0}, {quadW, 0}, {0, quadH}, {quadW, quadH}}
	for i, c := range corners {
		q := make([]int32, tileW*tileH)
		for y := 0; y < tileH; y++ {
			srcY := c[1] + paddingLeft + y
			src := ws[srcY*wsW+c[0]+paddingLeft : srcY*wsW+c[0]+paddingLeft+tileW]
			copy(q[y*tileW:(y+1)*tileW], src)
		}
		out[i] = q
	}
	return out
}

// AbsoluteValue replaces each sample of a reconstructed luminance plane
// with its absolute value: sign is meaningless for the Y channel in the
// iSyntax wavelet model, unlike Co/Cg which remain signed through
// recombination.
func AbsoluteValue(plane []int32) {
	for i, v := range plane {
		if v < 0 {
			plane[i] = -v
		}
	}
}

func clampByte(v int32) byte {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return byte(v)
}

// CombineYCoCgToBGRA reconstructs one tile's BGRA8 pixels from its three
// fully-transformed colour planes via the reversible YCoCg -> RGB
// transform. y must already have had AbsoluteValue applied; co/cg are
// used as-is (signed).
func CombineYCoCgToBGRA(y, co, cg []int32, width, height int) []byte {
	out := make([]byte, width*height*4)
	for i := 0; i < width*height; i++ {
		t := y[i] - cg[i]/2
		g := t + cg[i]
		b := t - co[i]/2
		r := b + co[i]

		out[i*4+0] = clampByte(b)
		out[i*4+1] = clampByte(g)
		out[i*4+2] = clampByte(r)
		out[i*4+3] = 255
	}
	return out
}
