package interp

import (
	"fmt"
	"image"
	"image/color"

	xdraw "golang.org/x/image/draw"
)

// imageToTensor resizes a frame to side x side and marshals it as a
// channel-planar (CHW) float32 tensor with values in [0,1].
func imageToTensor(img *image.RGBA, side int) []float32 {
	resized := img
	if img.Bounds().Dx() != side || img.Bounds().Dy() != side {
		resized = image.NewRGBA(image.Rect(0, 0, side, side))
		xdraw.ApproxBiLinear.Scale(resized, resized.Bounds(), img, img.Bounds(), xdraw.Src, nil)
	}

	origin := resized.Bounds().Min
	plane := side * side
	data := make([]float32, 3*plane)
	for y := 0; y < side; y++ {
		for x := 0; x < side; x++ {
			c := resized.RGBAAt(origin.X+x, origin.Y+y)
			i := y*side + x
			data[i] = float32(c.R) / 255
			data[plane+i] = float32(c.G) / 255
			data[2*plane+i] = float32(c.B) / 255
		}
	}
	return data
}

// tensorToImage unmarshals a CHW tensor back into a bitmap at the original
// pre-resize resolution. Values outside [0,1] are clamped.
func tensorToImage(data []float32, side, dstW, dstH int) (*image.RGBA, error) {
	plane := side * side
	if len(data) < 3*plane {
		return nil, fmt.Errorf("tensor has %d values, need %d", len(data), 3*plane)
	}
	if dstW < 1 || dstH < 1 {
		return nil, fmt.Errorf("invalid target size %dx%d", dstW, dstH)
	}

	img := image.NewRGBA(image.Rect(0, 0, side, side))
	for y := 0; y < side; y++ {
		for x := 0; x < side; x++ {
			i := y*side + x
			img.SetRGBA(x, y, color.RGBA{
				R: unitToByte(data[i]),
				G: unitToByte(data[plane+i]),
				B: unitToByte(data[2*plane+i]),
				A: 255,
			})
		}
	}
	if dstW == side && dstH == side {
		return img, nil
	}
	dst := image.NewRGBA(image.Rect(0, 0, dstW, dstH))
	xdraw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, img.Bounds(), xdraw.Src, nil)
	return dst, nil
}

func unitToByte(v float32) uint8 {
	if v <= 0 {
		return 0
	}
	if v >= 1 {
		return 255
	}
	return uint8(v*255 + 0.5)
}
