// Package imgutil converts attention map images to model input and class maps
// back to images.
package imgutil

import (
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strings"

	"github.com/chai2010/tiff"
	"github.com/disintegration/imaging"
	"github.com/nfnt/resize"
	"golang.org/x/image/draw"
)

// ReadImage reads image from file.
func ReadImage(filename string) (image.Image, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	switch ext {
	case ".png":
		return png.Decode(f)
	case ".jpg", ".jpeg":
		return jpeg.Decode(f)
	case ".tiff", ".tif":
		return tiff.Decode(f)
	default:
		err = fmt.Errorf("Unsupported image format: %v", ext)
		return nil, err
	}
}

// SaveImage saves image to file. Format is taken from the file extension.
func SaveImage(img image.Image, filename string) error {
	return imaging.Save(img, filename)
}

// ToGray converts image to 8-bit gray scale.
func ToGray(img image.Image) *image.Gray {
	g := imaging.Grayscale(img)
	gray := image.NewGray(g.Bounds())
	draw.Copy(gray, g.Bounds().Min, g, g.Bounds(), draw.Src, nil)

	return gray
}

// Resize resizes image to width x height with bilinear interpolation.
func Resize(img image.Image, width, height int) image.Image {
	size := img.Bounds().Size()
	if size.X == width && size.Y == height {
		return img
	}

	return resize.Resize(uint(width), uint(height), img, resize.Bilinear)
}

// AttentionMaps stacks images as channels of a single [1 C H W] input.
// Every image becomes one gray scale channel with values in [0, 1].
// It returns the flat data and its shape.
func AttentionMaps(imgs []image.Image, width, height int) ([]float32, []int64, error) {
	if len(imgs) == 0 {
		return nil, nil, fmt.Errorf("No attention map given")
	}
	if width <= 0 || height <= 0 {
		return nil, nil, fmt.Errorf("Invalid size: %vx%v", width, height)
	}

	plane := width * height
	data := make([]float32, len(imgs)*plane)
	for c, img := range imgs {
		gray := ToGray(Resize(img, width, height))
		b := gray.Bounds()
		for y := 0; y < height; y++ {
			for x := 0; x < width; x++ {
				v := gray.GrayAt(b.Min.X+x, b.Min.Y+y).Y
				data[c*plane+y*width+x] = float32(v) / 255.0
			}
		}
	}

	shape := []int64{1, int64(len(imgs)), int64(height), int64(width)}

	return data, shape, nil
}

// Palette is the colour of each class in Colorize. Classes beyond its
// length wrap around.
var Palette = []color.NRGBA{
	{0, 0, 0, 255},
	{230, 25, 75, 255},
	{60, 180, 75, 255},
	{0, 130, 200, 255},
	{255, 225, 25, 255},
	{145, 30, 180, 255},
	{70, 240, 240, 255},
	{245, 130, 48, 255},
}

// Colorize paints a class map of width*height pixels (row-major).
func Colorize(classes []int64, width, height int) (*image.NRGBA, error) {
	if len(classes) != width*height {
		return nil, fmt.Errorf("Expected %v classes for %vx%v image. Got %v", width*height, width, height, len(classes))
	}

	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			c := classes[y*width+x]
			if c < 0 {
				return nil, fmt.Errorf("Negative class %v at (%v, %v)", c, x, y)
			}
			img.SetNRGBA(x, y, Palette[int(c)%len(Palette)])
		}
	}

	return img, nil
}

// ClassMap reads a ground-truth mask whose gray value is the class index.
// The mask is resized with nearest neighbour so no new classes appear.
func ClassMap(img image.Image, width, height int) []int64 {
	size := img.Bounds().Size()
	if size.X != width || size.Y != height {
		img = resize.Resize(uint(width), uint(height), img, resize.NearestNeighbor)
	}
	gray := ToGray(img)
	b := gray.Bounds()

	classes := make([]int64, width*height)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			classes[y*width+x] = int64(gray.GrayAt(b.Min.X+x, b.Min.Y+y).Y)
		}
	}

	return classes
}
