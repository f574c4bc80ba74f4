package source

// YUYVToRGBA converts packed YUYV 4:2:2 data to RGBA8 using integer BT.601
// coefficients. Each 4-byte group Y1 U Y2 V yields two RGBA pixels that share
// the chroma pair. dst must hold at least 2*len(src) bytes. It returns the
// number of pixels written.
func YUYVToRGBA(dst, src []byte) int {
	n := 0
	for i := 0; i+3 < len(src); i += 4 {
		y1, u, y2, v := int(src[i]), int(src[i+1]), int(src[i+2]), int(src[i+3])
		d := u - 128
		e := v - 128

		o := n * 4
		putYUV(dst[o:o+4], y1-16, d, e)
		putYUV(dst[o+4:o+8], y2-16, d, e)
		n += 2
	}
	return n
}

func putYUV(px []byte, c, d, e int) {
	px[0] = clamp8((298*c + 409*e + 128) >> 8)
	px[1] = clamp8((298*c - 100*d - 208*e + 128) >> 8)
	px[2] = clamp8((298*c + 516*d + 128) >> 8)
	px[3] = 255
}

func clamp8(v int) uint8 {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v)
}
