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
	"encoding/binary"
	"fmt"
	"strings"
)

// ImageDecoder turns the raw data of one frame into a pixel buffer. The reader asks each
// registered decoder in turn and uses the first one whose CanDecode returns true.
type ImageDecoder interface {
	CanDecode(h *Header, f *Frame) bool
	Decode(h *Header, f *Frame) (PixelBuffer, error)
}

// imageParams are the Image Pixel module attributes that drive decoding.
// http://dicom.nema.org/medical/dicom/current/output/html/part03.html#sect_C.7.6.3
type imageParams struct {
	rows, cols          int
	samplesPerPixel     int
	bitsAllocated       int
	bitsStored          int
	highBit             int
	pixelRepresentation int
	planarConfiguration int
	photometric         string
	slope, intercept    float64
}

func imageParamsFromHeader(h *Header) imageParams {
	p := imageParams{
		rows:                h.IntValue(RowsTag, 0),
		cols:                h.IntValue(ColumnsTag, 0),
		samplesPerPixel:     h.IntValue(SamplesPerPixelTag, 1),
		bitsAllocated:       h.IntValue(BitsAllocatedTag, 16),
		pixelRepresentation: h.IntValue(PixelRepresentationTag, 0),
		planarConfiguration: h.IntValue(PlanarConfigurationTag, 0),
		slope:               h.DecimalValue(RescaleSlopeTag, 1),
		intercept:           h.DecimalValue(RescaleInterceptTag, 0),
	}
	p.bitsStored = h.IntValue(BitsStoredTag, p.bitsAllocated)
	p.highBit = h.IntValue(HighBitTag, p.bitsStored-1)
	p.photometric, _ = h.StringValue(PhotometricInterpretationTag)
	p.photometric = strings.TrimSpace(p.photometric)
	return p
}

func (p imageParams) numPixels() int {
	return p.rows * p.cols
}

func (p imageParams) inverted() bool {
	return p.photometric == "MONOCHROME1"
}

func (p imageParams) supported() bool {
	switch {
	case p.rows <= 0 || p.cols <= 0:
		return false
	case p.samplesPerPixel == 1:
		return p.bitsAllocated == 8 || p.bitsAllocated == 16
	case p.samplesPerPixel == 3:
		return p.bitsAllocated == 8
	}
	return false
}

// RawDecoder decodes native, uncompressed pixel data: 8 or 16-bit grayscale and 8-bit RGB,
// interleaved or planar.
type RawDecoder struct{}

func (RawDecoder) CanDecode(h *Header, f *Frame) bool {
	if f.Encapsulated || len(f.Floats) > 0 {
		return false
	}
	if ts := h.TransferSyntax(); ts != nil && ts.Encoded {
		return false
	}
	return imageParamsFromHeader(h).supported()
}

func (RawDecoder) Decode(h *Header, f *Frame) (PixelBuffer, error) {
	return imageParamsFromHeader(h).nativeBuffer(f)
}

// nativeBuffer builds the buffer for an uncompressed frame.
func (p imageParams) nativeBuffer(f *Frame) (PixelBuffer, error) {
	n := p.numPixels()
	switch {
	case p.samplesPerPixel == 3:
		b, err := frameBytes(f, 3*n)
		if err != nil {
			return nil, err
		}
		return NewRGBPixelBuffer(interleave(b, n, p.planarConfiguration)), nil
	case p.bitsAllocated == 8:
		b, err := frameBytes(f, n)
		if err != nil {
			return nil, err
		}
		return NewBytePixelBuffer(p.grayBytes(b)), nil
	default:
		w, err := frameWords(f, n)
		if err != nil {
			return nil, err
		}
		return NewShortPixelBuffer(p.grayShorts(w)), nil
	}
}

// frameBytes returns the first n bytes of the frame, splitting words in the frame's byte
// order when the frame was read as OW.
func frameBytes(f *Frame, n int) ([]byte, error) {
	b := f.Bytes
	if len(f.Words) > 0 {
		b = make([]byte, 2*len(f.Words))
		order := f.ByteOrder
		if order == nil {
			order = binary.LittleEndian
		}
		for i, w := range f.Words {
			order.PutUint16(b[2*i:], w)
		}
	}
	if len(b) < n {
		return nil, fmt.Errorf("frame holds %d bytes, %d needed", len(b), n)
	}
	return b[:n], nil
}

// frameWords returns the first n 16-bit samples of the frame, combining bytes in the frame's
// byte order when the frame was read as OB.
func frameWords(f *Frame, n int) ([]uint16, error) {
	w := f.Words
	if len(f.Bytes) > 0 {
		order := f.ByteOrder
		if order == nil {
			order = binary.LittleEndian
		}
		w = make([]uint16, len(f.Bytes)/2)
		for i := range w {
			w[i] = order.Uint16(f.Bytes[2*i:])
		}
	}
	if len(w) < n {
		return nil, fmt.Errorf("frame holds %d words, %d needed", len(w), n)
	}
	return w[:n], nil
}

// interleave converts planar RGB (all red, then all green, then all blue) to interleaved.
func interleave(b []byte, n, planar int) []byte {
	if planar != 1 {
		return b
	}
	out := make([]byte, 3*n)
	for i := 0; i < n; i++ {
		out[3*i] = b[i]
		out[3*i+1] = b[n+i]
		out[3*i+2] = b[2*n+i]
	}
	return out
}

// grayBytes extracts the stored bits of 8-bit samples and inverts MONOCHROME1 data.
func (p imageParams) grayBytes(b []byte) []byte {
	out := make([]byte, len(b))
	for i, v := range b {
		out[i] = byte(p.stored(uint32(v)))
	}
	return out
}

// grayShorts extracts the stored bits of 16-bit samples and inverts MONOCHROME1 data.
func (p imageParams) grayShorts(w []uint16) []int16 {
	out := make([]int16, len(w))
	for i, v := range w {
		out[i] = int16(p.stored(uint32(v)))
	}
	return out
}

// stored shifts the stored bits of a sample down to bit 0, sign extends signed samples and
// inverts MONOCHROME1 samples.
func (p imageParams) stored(v uint32) int32 {
	bits := p.bitsStored
	if bits <= 0 || bits > p.bitsAllocated {
		bits = p.bitsAllocated
	}
	shift := p.highBit + 1 - bits
	if shift < 0 {
		shift = 0
	}
	mask := uint32(1)<<bits - 1
	u := (v >> shift) & mask

	var s int32
	if p.pixelRepresentation == 1 {
		s = int32(u<<(32-bits)) >> (32 - bits)
	} else {
		s = int32(u)
	}
	if p.inverted() {
		if p.pixelRepresentation == 1 {
			s = -s - 1
		} else {
			s = int32(mask) - s
		}
	}
	return s
}
