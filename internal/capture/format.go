package capture

import (
	"fmt"
	"log/slog"
)

// PixelFormat is a four-character pixel encoding code.
type PixelFormat uint32

// FourCC builds a PixelFormat from its four characters.
func FourCC(a, b, c, d byte) PixelFormat {
	return PixelFormat(uint32(a) | uint32(b)<<8 | uint32(c)<<16 | uint32(d)<<24)
}

// Pixel formats known to the catalog.
var (
	PixelGray      = FourCC('G', 'R', 'E', 'Y')
	PixelGray16    = FourCC('Y', '1', '6', ' ')
	PixelYUYV      = FourCC('Y', 'U', 'Y', 'V')
	PixelUYVY      = FourCC('U', 'Y', 'V', 'Y')
	PixelYUV411P   = FourCC('Y', '4', '1', 'P')
	PixelYUV444    = FourCC('Y', '4', '4', '4')
	PixelIYU1      = FourCC('I', 'Y', 'U', '1')
	PixelIYU2      = FourCC('I', 'Y', 'U', '2')
	PixelYUV420    = FourCC('Y', 'U', '1', '2')
	PixelNV12      = FourCC('N', 'V', '1', '2')
	PixelRGB24     = FourCC('R', 'G', 'B', '3')
	PixelBGR24     = FourCC('B', 'G', 'R', '3')
	PixelBGRA32    = FourCC('B', 'G', 'R', '4')
	PixelRGB48     = FourCC('R', 'G', 'B', '6')
	PixelBayerBGGR = FourCC('B', 'A', '8', '1')
	PixelBayerGBRG = FourCC('G', 'B', 'R', 'G')
	PixelBayerGRBG = FourCC('G', 'R', 'B', 'G')
	PixelBayerRGGB = FourCC('R', 'G', 'G', 'B')
	PixelBayer16   = FourCC('B', 'Y', 'R', '2')
	PixelMJPEG     = FourCC('M', 'J', 'P', 'G')
	PixelH264      = FourCC('H', '2', '6', '4')
)

var bitsPerPixel = map[PixelFormat]int{
	PixelGray:      8,
	PixelGray16:    16,
	PixelYUYV:      16,
	PixelUYVY:      16,
	PixelYUV411P:   12,
	PixelYUV444:    24,
	PixelIYU1:      12,
	PixelIYU2:      24,
	PixelYUV420:    12,
	PixelNV12:      12,
	PixelRGB24:     24,
	PixelBGR24:     24,
	PixelBGRA32:    32,
	PixelRGB48:     48,
	PixelBayerBGGR: 8,
	PixelBayerGBRG: 8,
	PixelBayerGRBG: 8,
	PixelBayerRGGB: 8,
	PixelBayer16:   16,
}

// BitsPerPixel returns the packed bits per pixel, or 0 for compressed and
// unknown encodings.
func (p PixelFormat) BitsPerPixel() int {
	return bitsPerPixel[p]
}

// Compressed reports whether frames of this encoding have variable size.
func (p PixelFormat) Compressed() bool {
	return p == PixelMJPEG || p == PixelH264
}

func (p PixelFormat) String() string {
	b := []byte{byte(p), byte(p >> 8), byte(p >> 16), byte(p >> 24)}
	return string(b)
}

// FormatDescriptor is one negotiated pixel format and geometry.
type FormatDescriptor struct {
	Pixel    PixelFormat
	Name     string
	Width    int
	Height   int
	Stride   int
	MaxBytes int
	// Token is opaque to the catalog and only meaningful to the backend
	// that produced it.
	Token uint64
}

func (f FormatDescriptor) String() string {
	return fmt.Sprintf("%s %dx%d", f.Pixel, f.Width, f.Height)
}

// DefaultMaxSize is proposed when a device cannot enumerate sizes.
var DefaultMaxSize = Size{Width: 2000, Height: 2000}

// Catalog holds the formats a device accepted during trial negotiation.
type Catalog struct {
	dev     FormatProber
	logger  *slog.Logger
	formats []FormatDescriptor
}

// NewCatalog creates an empty catalog for dev.
func NewCatalog(dev FormatProber, logger *slog.Logger) *Catalog {
	return &Catalog{dev: dev, logger: logger}
}

// Enumerate probes every encoding and size the device reports and replaces
// the catalog contents with the accepted formats.
func (c *Catalog) Enumerate() error {
	encodings, err := c.dev.Encodings()
	if err != nil {
		return fmt.Errorf("enumerate encodings: %w", err)
	}

	type key struct {
		pixel PixelFormat
		w, h  int
	}
	type encKey struct {
		pixel PixelFormat
		token uint64
	}
	seenEnc := make(map[encKey]bool)
	seen := make(map[key]bool)
	var formats []FormatDescriptor

	for _, enc := range encodings {
		ek := encKey{enc.Pixel, enc.Token}
		if seenEnc[ek] {
			c.logger.Debug("Skipping repeated encoding", "pixel", enc.Pixel)
			continue
		}
		seenEnc[ek] = true

		sizes, sizeErr := c.dev.Sizes(enc)
		if sizeErr != nil {
			c.logger.Debug("Size enumeration failed", "pixel", enc.Pixel, "error", sizeErr)
			sizes = nil
		}
		if len(sizes) == 0 {
			sizes = []Size{DefaultMaxSize}
		}

		for _, size := range sizes {
			n, tryErr := c.dev.TryFormat(enc, size)
			if tryErr != nil {
				c.logger.Debug("Trial format rejected", "pixel", enc.Pixel,
					"width", size.Width, "height", size.Height, "error", tryErr)
				continue
			}
			k := key{enc.Pixel, n.Width, n.Height}
			if seen[k] {
				continue
			}
			seen[k] = true

			desc := FormatDescriptor{
				Pixel:    enc.Pixel,
				Name:     enc.Name,
				Width:    n.Width,
				Height:   n.Height,
				Stride:   normalizeStride(n, enc.Pixel),
				MaxBytes: n.MaxBytes,
				Token:    n.Token,
			}
			if desc.Stride != n.Stride {
				c.logger.Debug("Recomputed misreported stride", "format", desc.String(),
					"reported", n.Stride, "stride", desc.Stride)
			}
			if desc.MaxBytes == 0 {
				desc.MaxBytes = desc.Stride * desc.Height
			}
			formats = append(formats, desc)
		}
	}

	c.formats = formats
	return nil
}

// normalizeStride trusts the device stride unless it is zero or larger than
// the device's own buffer size allows.
func normalizeStride(n Negotiated, pixel PixelFormat) int {
	bogus := n.Stride <= 0 || (n.MaxBytes > 0 && n.Stride*n.Height > n.MaxBytes)
	if !bogus {
		return n.Stride
	}
	bpp := pixel.BitsPerPixel()
	if bpp == 0 {
		return n.Stride
	}
	return n.Width * bpp / 8
}

// Formats returns a copy of the catalogued formats.
func (c *Catalog) Formats() []FormatDescriptor {
	out := make([]FormatDescriptor, len(c.formats))
	copy(out, c.formats)
	return out
}

// Find returns the catalogued format matching pixel and geometry.
func (c *Catalog) Find(pixel PixelFormat, width, height int) (FormatDescriptor, bool) {
	for _, f := range c.formats {
		if f.Pixel == pixel && f.Width == width && f.Height == height {
			return f, true
		}
	}
	return FormatDescriptor{}, false
}

// Commit applies f to the device. A rejection wraps ErrRejected.
func (c *Catalog) Commit(f FormatDescriptor) error {
	if err := c.dev.SetFormat(f); err != nil {
		return fmt.Errorf("commit %s: %w: %w", f, ErrRejected, err)
	}
	return nil
}
