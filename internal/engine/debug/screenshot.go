// Package debug provides debug visualization utilities.
package debug

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"

	"golang.org/x/image/tiff"

	"github.com/Faultbox/midgard-shadows/internal/engine/projection"
)

// Dumper writes debug images of the pipeline's buffers.
type Dumper struct {
	outputDir string
	prefix    string
}

// NewDumper creates a dumper writing prefix_name files into outputDir.
func NewDumper(outputDir, prefix string) *Dumper {
	return &Dumper{
		outputDir: outputDir,
		prefix:    prefix,
	}
}

// SetOutputDir sets the output directory for dumps.
func (d *Dumper) SetOutputDir(dir string) {
	d.outputDir = dir
}

// Filename returns the path a dump of name with extension ext is written to.
func (d *Dumper) Filename(name, ext string) string {
	filename := fmt.Sprintf("%s_%s.%s", d.prefix, name, ext)
	if d.outputDir != "" {
		filename = filepath.Join(d.outputDir, filename)
	}
	return filename
}

func (d *Dumper) create(name, ext string) (*os.File, string, error) {
	if d.outputDir != "" {
		if err := os.MkdirAll(d.outputDir, 0755); err != nil {
			return nil, "", fmt.Errorf("creating output dir: %w", err)
		}
	}
	filename := d.Filename(name, ext)
	file, err := os.Create(filename)
	if err != nil {
		return nil, "", fmt.Errorf("creating file: %w", err)
	}
	return file, filename, nil
}

// WritePNG encodes img as PNG.
func (d *Dumper) WritePNG(name string, img image.Image) (string, error) {
	file, filename, err := d.create(name, "png")
	if err != nil {
		return "", err
	}
	defer file.Close()

	if err := png.Encode(file, img); err != nil {
		return "", fmt.Errorf("encoding PNG: %w", err)
	}
	return filename, nil
}

// WriteAttenuation writes an attenuation buffer as PNG.
func (d *Dumper) WriteAttenuation(name string, buf *projection.AttenuationBuffer) (string, error) {
	return d.WritePNG(name, AttenuationImage(buf))
}

// WriteDepth writes a depth buffer as a 16-bit grayscale TIFF.
func (d *Dumper) WriteDepth(name string, width, height int, depth []float32) (string, error) {
	if len(depth) != width*height {
		return "", fmt.Errorf("depth size mismatch: expected %d, got %d", width*height, len(depth))
	}
	file, filename, err := d.create(name, "tiff")
	if err != nil {
		return "", err
	}
	defer file.Close()

	img := DepthImage(width, height, depth)
	if err := tiff.Encode(file, img, &tiff.Options{Compression: tiff.Deflate, Predictor: true}); err != nil {
		return "", fmt.Errorf("encoding TIFF: %w", err)
	}
	return filename, nil
}

func unorm8(v float32) uint8 {
	return uint8(min(max(v, 0), 1)*255 + 0.5)
}

// AttenuationImage maps the R, G and B channels of buf to an opaque image.
// Buffers have their origin at the bottom left, so rows are flipped.
func AttenuationImage(buf *projection.AttenuationBuffer) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, buf.Width, buf.Height))
	for y := 0; y < buf.Height; y++ {
		for x := 0; x < buf.Width; x++ {
			c := buf.At(x, y)
			img.SetNRGBA(x, buf.Height-1-y, color.NRGBA{
				R: unorm8(c[projection.ChannelR]),
				G: unorm8(c[projection.ChannelG]),
				B: unorm8(c[projection.ChannelB]),
				A: 255,
			})
		}
	}
	return img
}

// DepthImage converts [0,1] depth to 16-bit gray, flipping rows.
func DepthImage(width, height int, depth []float32) *image.Gray16 {
	img := image.NewGray16(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			v := min(max(depth[y*width+x], 0), 1)
			img.SetGray16(x, height-1-y, color.Gray16{Y: uint16(v*65535 + 0.5)})
		}
	}
	return img
}
