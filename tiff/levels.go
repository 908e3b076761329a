package tiff

import (
	"math"
	"strings"
)

// classifyIfds is the post-parse classification pass: designate IFD 0 as
// the main image, identify macro/label IFDs by ImageDescription prefix,
// and assign a discrete downsample level to every remaining tiled IFD.
//
// The ratio main_width/ifd_width is not always an exact power of two,
// because IFD dimensions are rounded up to a tile multiple at encode
// time. Ambiguous cases are resolved by bounding the true width with the
// tile-count constraints and falling back to lastLevel+1 when that bound
// still leaves more than one integer candidate. This is a documented
// approximation, not a guess: see SPEC_FULL.md's note on pyramid level
// deduction.
func classifyIfds(ifds []*Ifd) {
	if len(ifds) == 0 {
		return
	}

	mainWidth := ifds[0].ImageWidth
	ifds[0].Kind = SubimageLevel
	ifds[0].DownsampleLevel = 0

	lastLevel := 0
	for i := 1; i < len(ifds); i++ {
		ifd := ifds[i]
		desc := strings.ToLower(strings.TrimSpace(ifd.ImageDescription))
		switch {
		case strings.HasPrefix(desc, "macro"):
			ifd.Kind = SubimageMacro
			continue
		case strings.HasPrefix(desc, "label"):
			ifd.Kind = SubimageLabel
			continue
		}
		if ifd.TileWidth == 0 || ifd.TileHeight == 0 {
			// Not a tiled subimage at all (e.g. a thumbnail strip); leave
			// unclassified rather than guessing a pyramid level for it.
			ifd.Kind = SubimageUnknown
			continue
		}

		level := deduceDownsampleLevel(mainWidth, ifd, lastLevel)
		ifd.Kind = SubimageLevel
		ifd.DownsampleLevel = level
		lastLevel = level
	}
}

// deduceDownsampleLevel computes log2(main_width / ifd_width), tightening
// an inexact ratio via the tile-count bound:
//
//	true_width ∈ [(tiles_across-1)*tile_w + 1, tiles_across*tile_w]
//
// which in turn bounds the downsample factor to an interval; if that
// interval contains exactly one integer power-of-two level, it is used,
// otherwise this falls back to lastLevel+1.
func deduceDownsampleLevel(mainWidth int64, ifd *Ifd, lastLevel int) int {
	if ifd.ImageWidth <= 0 {
		return lastLevel + 1
	}

	rawRatio := float64(mainWidth) / float64(ifd.ImageWidth)
	rawLevel := math.Log2(rawRatio)
	rounded := int(math.Round(rawLevel))
	if rounded < 0 {
		rounded = 0
	}

	// Tighten using tile-count bounds: the true (pre-rounding) width of
	// this IFD lies in [(tilesAcross-1)*tileW + 1, tilesAcross*tileW].
	tilesAcross := ifd.TilesAcross()
	lowWidth := (tilesAcross-1)*ifd.TileWidth + 1
	highWidth := tilesAcross * ifd.TileWidth
	if lowWidth < 1 {
		lowWidth = 1
	}

	lowLevel := math.Log2(float64(mainWidth) / float64(highWidth))
	highLevel := math.Log2(float64(mainWidth) / float64(lowWidth))

	candidate := -1
	for l := int(math.Floor(lowLevel)); l <= int(math.Ceil(highLevel)); l++ {
		if l < 0 {
			continue
		}
		if float64(l) >= lowLevel-1e-9 && float64(l) <= highLevel+1e-9 {
			if candidate == -1 {
				candidate = l
			} else {
				// Ambiguous: more than one integer level fits the bound.
				candidate = -2
				break
			}
		}
	}

	switch candidate {
	case -1, -2:
		return lastLevel + 1
	default:
		return candidate
	}
}
