package jpegdec

import (
	"math"
)

// Color conversion

// ycbcrToRGB converts one JFIF YCbCr sample to RGB, rounding to nearest and clamping.
func ycbcrToRGB(y, cb, cr byte) (r, g, b byte) {
	yy := float64(y)
	cbf := float64(cb) - 128
	crf := float64(cr) - 128

	r = round(yy + 1.402*crf)
	g = round(yy - 0.344136*cbf - 0.714136*crf)
	b = round(yy + 1.772*cbf)

	return r, g, b
}

// round rounds v to the nearest integer and clamps it to [0, 255].
func round(v float64) byte {
	return clip(int32(math.Floor(v + 0.5)))
}

// composeMCU writes the samples cached for MCU (mx, my) to the raster as RGB.
// Subsampled components are upsampled by nearest neighbor: output pixel x of an MCU reads
// sample x/(maxSSX/ssX) of the component, and likewise for y.
func (s *session) composeMCU(mx, my int) {
	r := s.raster
	stride := r.Stride()
	x0, y0 := mx*s.mcuSizeX, my*s.mcuSizeY

	if s.ncomp == 1 {
		src := &s.cache[s.scanOrder[0]]

		for y := 0; y < s.mcuSizeY; y++ {
			row := src[y*mcuCacheStride : y*mcuCacheStride+s.mcuSizeX]
			off := (y0+y)*stride + x0*3
			dst := r.Pix[off : off+3*s.mcuSizeX]

			for x, v := range row {
				dst[3*x], dst[3*x+1], dst[3*x+2] = v, v, v
			}
		}

		return
	}

	yc, cbc, crc := &s.comp[0], &s.comp[1], &s.comp[2]
	ySrc, cbSrc, crSrc := &s.cache[0], &s.cache[1], &s.cache[2]

	yDX, yDY := s.maxSSX/yc.ssX, s.maxSSY/yc.ssY
	cbDX, cbDY := s.maxSSX/cbc.ssX, s.maxSSY/cbc.ssY
	crDX, crDY := s.maxSSX/crc.ssX, s.maxSSY/crc.ssY

	for y := 0; y < s.mcuSizeY; y++ {
		yRow := (y / yDY) * mcuCacheStride
		cbRow := (y / cbDY) * mcuCacheStride
		crRow := (y / crDY) * mcuCacheStride

		off := (y0+y)*stride + x0*3
		dst := r.Pix[off : off+3*s.mcuSizeX]

		for x := 0; x < s.mcuSizeX; x++ {
			dst[3*x], dst[3*x+1], dst[3*x+2] = ycbcrToRGB(
				ySrc[yRow+x/yDX],
				cbSrc[cbRow+x/cbDX],
				crSrc[crRow+x/crDX])
		}
	}
}
