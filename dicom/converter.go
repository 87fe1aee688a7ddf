// Copyright 2018 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package dicom

import (
	"fmt"
	"math"
)

// PixelType identifies the representation of a pixel buffer.
type PixelType int

const (
	// BytePixel is 8-bit grayscale, read as signed bytes
	BytePixel PixelType = iota
	// ShortPixel is 16-bit signed grayscale
	ShortPixel
	// RGBPixel is interleaved 8-bit red, green and blue
	RGBPixel

	numPixelTypes
)

func (t PixelType) String() string {
	switch t {
	case BytePixel:
		return "BYTE"
	case ShortPixel:
		return "SHORT"
	case RGBPixel:
		return "RGB"
	}
	return fmt.Sprintf("PixelType(%d)", int(t))
}

// samplesPerPixel returns how many array entries one pixel of type t occupies.
func (t PixelType) samplesPerPixel() int {
	if t == RGBPixel {
		return 3
	}
	return 1
}

// Samples is the flat storage behind a pixel buffer or a destination array. Byte and RGB
// data live in Bytes, Short data in Shorts.
type Samples struct {
	Bytes  []byte
	Shorts []int16
}

// ConvertFunc converts the pixel starting at src index si into dst starting at index di and
// returns the index following the written pixel. Indices count array entries, so an RGB pixel
// advances them by three.
type ConvertFunc func(src Samples, si int, dst Samples, di int) int

// PixelConverter maps intensities between pixel types. Converter returns nil for a pair it
// does not support.
type PixelConverter interface {
	Converter(src, dst PixelType) ConvertFunc
}

// ConverterTable is a PixelConverter backed by a table indexed by source then destination
// type.
type ConverterTable [numPixelTypes][numPixelTypes]ConvertFunc

func (t *ConverterTable) Converter(src, dst PixelType) ConvertFunc {
	if src < 0 || src >= numPixelTypes || dst < 0 || dst >= numPixelTypes {
		return nil
	}
	return t[src][dst]
}

// DefaultConverter copies pixels of the same type, scales between byte and short by 256,
// averages RGB channels into grayscale and replicates grayscale into RGB.
var DefaultConverter PixelConverter = &ConverterTable{
	BytePixel: {
		BytePixel: func(src Samples, si int, dst Samples, di int) int {
			dst.Bytes[di] = src.Bytes[si]
			return di + 1
		},
		ShortPixel: func(src Samples, si int, dst Samples, di int) int {
			dst.Shorts[di] = int16(int8(src.Bytes[si])) << 8
			return di + 1
		},
		RGBPixel: func(src Samples, si int, dst Samples, di int) int {
			return putGray(dst.Bytes, di, src.Bytes[si])
		},
	},
	ShortPixel: {
		BytePixel: func(src Samples, si int, dst Samples, di int) int {
			dst.Bytes[di] = byte(src.Shorts[si] >> 8)
			return di + 1
		},
		ShortPixel: func(src Samples, si int, dst Samples, di int) int {
			dst.Shorts[di] = src.Shorts[si]
			return di + 1
		},
		RGBPixel: func(src Samples, si int, dst Samples, di int) int {
			return putGray(dst.Bytes, di, byte(src.Shorts[si]>>8))
		},
	},
	RGBPixel: {
		BytePixel: func(src Samples, si int, dst Samples, di int) int {
			dst.Bytes[di] = byte(rgbMean(src.Bytes, si))
			return di + 1
		},
		ShortPixel: func(src Samples, si int, dst Samples, di int) int {
			dst.Shorts[di] = int16(rgbMean(src.Bytes, si)) << 7
			return di + 1
		},
		RGBPixel: func(src Samples, si int, dst Samples, di int) int {
			copy(dst.Bytes[di:di+3], src.Bytes[si:si+3])
			return di + 3
		},
	},
}

func putGray(dst []byte, di int, v byte) int {
	dst[di], dst[di+1], dst[di+2] = v, v, v
	return di + 3
}

func rgbMean(b []byte, i int) int {
	return (int(b[i]) + int(b[i+1]) + int(b[i+2])) / 3
}

// WindowConverter maps grayscale intensities through a linear window: values at or below
// center-width/2 become black, values at or above center+width/2 become white. Byte
// destinations span 0..255 (stored as raw bytes), short destinations 0..32767. RGB sources are
// windowed per channel, or through their channel mean for grayscale destinations.
type WindowConverter struct {
	Center float64
	Width  float64
	table  ConverterTable
}

// NewWindowConverter returns a converter for the given window. A non-positive width is
// replaced by 1.
func NewWindowConverter(center, width float64) *WindowConverter {
	if width <= 0 {
		width = 1
	}
	w := &WindowConverter{Center: center, Width: width}
	gray := func(read func(Samples, int) float64) [numPixelTypes]ConvertFunc {
		return [numPixelTypes]ConvertFunc{
			BytePixel: func(src Samples, si int, dst Samples, di int) int {
				dst.Bytes[di] = byte(math.Round(w.level(read(src, si)) * math.MaxUint8))
				return di + 1
			},
			ShortPixel: func(src Samples, si int, dst Samples, di int) int {
				dst.Shorts[di] = int16(math.Round(w.level(read(src, si)) * math.MaxInt16))
				return di + 1
			},
			RGBPixel: func(src Samples, si int, dst Samples, di int) int {
				return putGray(dst.Bytes, di, byte(math.Round(w.level(read(src, si))*math.MaxUint8)))
			},
		}
	}
	w.table[BytePixel] = gray(func(s Samples, i int) float64 { return float64(int8(s.Bytes[i])) })
	w.table[ShortPixel] = gray(func(s Samples, i int) float64 { return float64(s.Shorts[i]) })
	w.table[RGBPixel] = gray(func(s Samples, i int) float64 { return float64(rgbMean(s.Bytes, i)) })
	w.table[RGBPixel][RGBPixel] = func(src Samples, si int, dst Samples, di int) int {
		for c := 0; c < 3; c++ {
			dst.Bytes[di+c] = byte(math.Round(w.level(float64(src.Bytes[si+c])) * math.MaxUint8))
		}
		return di + 3
	}
	return w
}

// WindowFromHeader builds a WindowConverter from the first Window Center (0028,1050) and
// Window Width (0028,1051) values. ok is false when either is missing.
func WindowFromHeader(h *Header) (w *WindowConverter, ok bool) {
	centers := h.MultiDecimalValue(WindowCenterTag)
	widths := h.MultiDecimalValue(WindowWidthTag)
	if len(centers) == 0 || len(widths) == 0 {
		return nil, false
	}
	return NewWindowConverter(centers[0], widths[0]), true
}

func (w *WindowConverter) Converter(src, dst PixelType) ConvertFunc {
	return w.table.Converter(src, dst)
}

// level maps v into [0, 1].
func (w *WindowConverter) level(v float64) float64 {
	t := (v-w.Center)/w.Width + 0.5
	return math.Max(0, math.Min(1, t))
}

// Interp converts pixel idx of in into out at array index odx and returns the index that
// follows it.
func Interp(conv PixelConverter, in PixelBuffer, idx int, out PixelBuffer, odx int) (int, error) {
	f, err := converterFor(conv, in.PixelType(), out.PixelType())
	if err != nil {
		return odx, err
	}
	return f(in.Samples(), idx*in.PixelType().samplesPerPixel(), out.Samples(), odx), nil
}

func converterFor(conv PixelConverter, src, dst PixelType) (ConvertFunc, error) {
	if conv == nil {
		conv = DefaultConverter
	}
	f := conv.Converter(src, dst)
	if f == nil {
		return nil, fmt.Errorf("%w: converting %v to %v", ErrUnsupportedType, src, dst)
	}
	return f, nil
}
