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

// PixelBuffer is the in-memory pixel store of one decoded frame.
//
// The strided accessors walk count pixels starting at pixel start and advancing by stride
// pixels. Reads convert each pixel into the destination array starting at offset; writes
// convert from the source array into this buffer. Both return the array offset after the last
// converted pixel so that several runs can be chained into one array. A nil converter selects
// DefaultConverter.
type PixelBuffer interface {
	PixelType() PixelType
	NumPixels() int
	// Pixel returns the value of pixel i: the signed sample for grayscale buffers, 0xRRGGBB
	// for RGB buffers
	Pixel(i int) int
	Samples() Samples

	BytePixels(start, stride, count int, dst []byte, offset int, conv PixelConverter) (int, error)
	ShortPixels(start, stride, count int, dst []int16, offset int, conv PixelConverter) (int, error)
	RGBPixels(start, stride, count int, dst []byte, offset int, conv PixelConverter) (int, error)
	CopyPixels(start, stride, count int, dst PixelBuffer, offset int, conv PixelConverter) (int, error)

	SetBytePixels(start, stride, count int, src []byte, offset int, conv PixelConverter) (int, error)
	SetShortPixels(start, stride, count int, src []int16, offset int, conv PixelConverter) (int, error)
	SetRGBPixels(start, stride, count int, src []byte, offset int, conv PixelConverter) (int, error)

	MaxIntensity() float64
	MinIntensity() float64
}

// pixels implements the strided access shared by every buffer type.
type pixels struct {
	typ     PixelType
	samples Samples
	n       int
}

func (p *pixels) PixelType() PixelType { return p.typ }
func (p *pixels) NumPixels() int       { return p.n }
func (p *pixels) Samples() Samples     { return p.samples }

func (p *pixels) BytePixels(start, stride, count int, dst []byte, offset int, conv PixelConverter) (int, error) {
	return p.get(start, stride, count, Samples{Bytes: dst}, BytePixel, offset, conv)
}

func (p *pixels) ShortPixels(start, stride, count int, dst []int16, offset int, conv PixelConverter) (int, error) {
	return p.get(start, stride, count, Samples{Shorts: dst}, ShortPixel, offset, conv)
}

func (p *pixels) RGBPixels(start, stride, count int, dst []byte, offset int, conv PixelConverter) (int, error) {
	return p.get(start, stride, count, Samples{Bytes: dst}, RGBPixel, offset, conv)
}

func (p *pixels) CopyPixels(start, stride, count int, dst PixelBuffer, offset int, conv PixelConverter) (int, error) {
	return p.get(start, stride, count, dst.Samples(), dst.PixelType(), offset, conv)
}

func (p *pixels) SetBytePixels(start, stride, count int, src []byte, offset int, conv PixelConverter) (int, error) {
	return p.set(start, stride, count, Samples{Bytes: src}, BytePixel, offset, conv)
}

func (p *pixels) SetShortPixels(start, stride, count int, src []int16, offset int, conv PixelConverter) (int, error) {
	return p.set(start, stride, count, Samples{Shorts: src}, ShortPixel, offset, conv)
}

func (p *pixels) SetRGBPixels(start, stride, count int, src []byte, offset int, conv PixelConverter) (int, error) {
	return p.set(start, stride, count, Samples{Bytes: src}, RGBPixel, offset, conv)
}

func (p *pixels) get(start, stride, count int, dst Samples, dstType PixelType, offset int, conv PixelConverter) (int, error) {
	f, err := converterFor(conv, p.typ, dstType)
	if err != nil {
		return offset, err
	}
	if err := p.checkRange(start, stride, count); err != nil {
		return offset, err
	}
	if err := checkArray(dst, dstType, offset, count); err != nil {
		return offset, err
	}
	w := p.typ.samplesPerPixel()
	for i, idx := 0, start; i < count; i, idx = i+1, idx+stride {
		offset = f(p.samples, idx*w, dst, offset)
	}
	return offset, nil
}

func (p *pixels) set(start, stride, count int, src Samples, srcType PixelType, offset int, conv PixelConverter) (int, error) {
	f, err := converterFor(conv, srcType, p.typ)
	if err != nil {
		return offset, err
	}
	if err := p.checkRange(start, stride, count); err != nil {
		return offset, err
	}
	if err := checkArray(src, srcType, offset, count); err != nil {
		return offset, err
	}
	w, sw := p.typ.samplesPerPixel(), srcType.samplesPerPixel()
	for i, idx := 0, start; i < count; i, idx = i+1, idx+stride {
		f(src, offset, p.samples, idx*w)
		offset += sw
	}
	return offset, nil
}

func (p *pixels) checkRange(start, stride, count int) error {
	if count <= 0 {
		return nil
	}
	last := start + (count-1)*stride
	if start < 0 || start >= p.n || last < 0 || last >= p.n {
		return fmt.Errorf("pixel run %d+%d*%d outside buffer of %d pixels", start, stride, count, p.n)
	}
	return nil
}

// checkArray verifies that count pixels of type typ fit in the array from offset on.
func checkArray(s Samples, typ PixelType, offset, count int) error {
	if count <= 0 {
		return nil
	}
	n := len(s.Bytes)
	if typ == ShortPixel {
		n = len(s.Shorts)
	}
	if end := offset + count*typ.samplesPerPixel(); offset < 0 || end > n {
		return fmt.Errorf("%d %v pixels at offset %d outside array of %d samples", count, typ, offset, n)
	}
	return nil
}

// BytePixelBuffer stores 8-bit grayscale samples. Samples are interpreted as signed bytes, so
// a stored 0xFF reads as -1.
type BytePixelBuffer struct {
	pixels
}

// NewBytePixelBuffer wraps data without copying it.
func NewBytePixelBuffer(data []byte) *BytePixelBuffer {
	return &BytePixelBuffer{pixels{typ: BytePixel, samples: Samples{Bytes: data}, n: len(data)}}
}

func (b *BytePixelBuffer) Pixel(i int) int {
	return int(int8(b.samples.Bytes[i]))
}

func (b *BytePixelBuffer) MaxIntensity() float64 {
	if b.n == 0 {
		return 0
	}
	m := math.MinInt8
	for _, v := range b.samples.Bytes {
		m = max(m, int(int8(v)))
	}
	return float64(m)
}

func (b *BytePixelBuffer) MinIntensity() float64 {
	if b.n == 0 {
		return 0
	}
	m := math.MaxInt8
	for _, v := range b.samples.Bytes {
		m = min(m, int(int8(v)))
	}
	return float64(m)
}

// ShortPixelBuffer stores 16-bit signed grayscale samples.
type ShortPixelBuffer struct {
	pixels
}

// NewShortPixelBuffer wraps data without copying it.
func NewShortPixelBuffer(data []int16) *ShortPixelBuffer {
	return &ShortPixelBuffer{pixels{typ: ShortPixel, samples: Samples{Shorts: data}, n: len(data)}}
}

func (s *ShortPixelBuffer) Pixel(i int) int {
	return int(s.samples.Shorts[i])
}

func (s *ShortPixelBuffer) MaxIntensity() float64 {
	if s.n == 0 {
		return 0
	}
	m := math.MinInt16
	for _, v := range s.samples.Shorts {
		m = max(m, int(v))
	}
	return float64(m)
}

func (s *ShortPixelBuffer) MinIntensity() float64 {
	if s.n == 0 {
		return 0
	}
	m := math.MaxInt16
	for _, v := range s.samples.Shorts {
		m = min(m, int(v))
	}
	return float64(m)
}

// RGBPixelBuffer stores interleaved red, green and blue bytes.
type RGBPixelBuffer struct {
	pixels
}

// NewRGBPixelBuffer wraps data, three bytes per pixel, without copying it.
func NewRGBPixelBuffer(data []byte) *RGBPixelBuffer {
	return &RGBPixelBuffer{pixels{typ: RGBPixel, samples: Samples{Bytes: data}, n: len(data) / 3}}
}

func (c *RGBPixelBuffer) Pixel(i int) int {
	b := c.samples.Bytes[3*i:]
	return int(b[0])<<16 | int(b[1])<<8 | int(b[2])
}

// MaxIntensity returns the largest channel byte, not a luminance.
func (c *RGBPixelBuffer) MaxIntensity() float64 {
	m := 0
	for _, v := range c.samples.Bytes[:3*c.n] {
		m = max(m, int(v))
	}
	return float64(m)
}

// MinIntensity returns the smallest channel byte, not a luminance.
func (c *RGBPixelBuffer) MinIntensity() float64 {
	if c.n == 0 {
		return 0
	}
	m := math.MaxUint8
	for _, v := range c.samples.Bytes[:3*c.n] {
		m = min(m, int(v))
	}
	return float64(m)
}
