package framebuffer

import "image"

// FlipRGBA wraps bottom-up RGBA rows, as OpenGL reads them, into a top-down
// image. pix must hold width*height*4 bytes.
func FlipRGBA(pix []byte, width, height int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	stride := width * 4
	for y := 0; y < height; y++ {
		src := pix[(height-1-y)*stride : (height-y)*stride]
		copy(img.Pix[y*img.Stride:], src)
	}
	return img
}
