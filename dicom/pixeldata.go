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
)

// Frame is the undecoded pixel data of one frame. Exactly one of Bytes, Words and Floats is
// set, according to VR. Encapsulated frames are always held in Bytes.
type Frame struct {
	VR *VR

	// Encapsulated is set for frames assembled from the fragments of undefined length pixel
	// data, which hold compressed images.
	Encapsulated bool

	// ByteOrder is the byte order of the data set the frame was read from
	ByteOrder binary.ByteOrder

	Bytes  []byte
	Words  []uint16
	Floats []float32
}

// Len returns the size of the frame's payload in bytes.
func (f *Frame) Len() int {
	return len(f.Bytes) + 2*len(f.Words) + 4*len(f.Floats)
}

// readFrames reads the pixel data element, whose tag has already been consumed, and splits it
// into frames.
func (d *streamDecoder) readFrames() ([]*Frame, error) {
	start := d.dr.Offset()

	var vr *VR
	if d.syntax.ExplicitVR {
		name, err := d.dr.Bytes(vrSize)
		if err != nil {
			return nil, &ParseError{Tag: PixelDataTag, Offset: start, Err: fmt.Errorf("reading VR: %w", err)}
		}
		var ok bool
		if vr, ok = LookupVR(name[0], name[1]); !ok {
			return nil, &ParseError{Tag: PixelDataTag, Offset: start, Err: fmt.Errorf("%w %q", ErrUnknownVR, name)}
		}
		if err := d.dr.Skip(2); err != nil {
			return nil, &ParseError{Tag: PixelDataTag, Offset: start, Err: fmt.Errorf("skipping reserved field: %w", err)}
		}
	} else {
		vr = OWVR
		if d.header.IntValue(BitsAllocatedTag, 16) <= 8 {
			vr = OBVR
		}
	}
	length, err := d.dr.UInt32()
	if err != nil {
		return nil, &ParseError{Tag: PixelDataTag, Offset: start, Err: fmt.Errorf("reading length: %w", noEOF(err))}
	}

	n := d.header.IntValue(NumberOfFramesTag, 1)
	if n < 1 {
		n = 1
	}
	if length == UndefinedLength {
		return d.readFragmentedFrames(n)
	}
	return d.splitFrames(vr, length, n)
}

// readFragmentedFrames assembles n frames from encapsulated pixel data. The first item is the
// basic offset table. The fragments of frame i run until the fragment stream reaches the offset
// recorded for frame i+1, or until the sequence delimiter for the last frame. An empty offset
// table gives every frame but the last a single fragment.
// http://dicom.nema.org/medical/dicom/current/output/html/part05.html#sect_A.4
func (d *streamDecoder) readFragmentedFrames(n int) ([]*Frame, error) {
	tag, err := d.dr.Tag()
	if err != nil {
		return nil, &ParseError{Tag: PixelDataTag, Offset: d.dr.Offset(), Err: fmt.Errorf("reading offset table tag: %w", noEOF(err))}
	}
	if tag != ItemTag {
		return nil, &ParseError{Tag: tag, Offset: d.dr.Offset(), Err: fmt.Errorf("%w: expected basic offset table", ErrInvalidItem)}
	}
	length, err := d.dr.UInt32()
	if err != nil {
		return nil, &ParseError{Tag: tag, Offset: d.dr.Offset(), Err: fmt.Errorf("reading offset table length: %w", noEOF(err))}
	}
	offsets, err := d.dr.UInt32s(int64(length / 4))
	if err != nil {
		return nil, &ParseError{Tag: tag, Offset: d.dr.Offset(), Err: fmt.Errorf("reading offset table: %w", err)}
	}
	if err := d.dr.Skip(int64(length % 4)); err != nil {
		return nil, &ParseError{Tag: tag, Offset: d.dr.Offset(), Err: err}
	}

	fragmentsStart := d.dr.Offset()
	nextOffset := func(i int) int64 {
		if i < len(offsets) {
			return fragmentsStart + int64(offsets[i])
		}
		return fragmentsStart
	}

	frames := make([]*Frame, 0, n)
	ended := false
	for i := 0; i < n && !ended; i++ {
		var data []byte
		fragments := 0
		for {
			offset := d.dr.Offset()
			tag, err := d.dr.Tag()
			if err != nil {
				return nil, &ParseError{Tag: PixelDataTag, Offset: offset, Err: fmt.Errorf("reading fragment tag: %w", noEOF(err))}
			}
			length, err := d.dr.UInt32()
			if err != nil {
				return nil, &ParseError{Tag: tag, Offset: offset, Err: fmt.Errorf("reading fragment length: %w", noEOF(err))}
			}
			if tag == SequenceDelimitationItemTag {
				ended = true
				break
			}
			if tag != ItemTag {
				return nil, &ParseError{Tag: tag, Offset: offset, Err: ErrInvalidItem}
			}
			fragment, err := d.dr.Bytes(int64(length))
			if err != nil {
				return nil, &ParseError{Tag: tag, Offset: offset, Err: fmt.Errorf("reading fragment: %w", err)}
			}
			data = append(data, fragment...)
			fragments++
			if i < n-1 && d.dr.Offset() >= nextOffset(i+1) {
				break
			}
		}
		if fragments > 0 {
			frames = append(frames, &Frame{VR: OBVR, Encapsulated: true, ByteOrder: d.dr.ByteOrder(), Bytes: data})
		}
	}
	if len(frames) < n {
		d.logger.Warn("encapsulated pixel data ended early", "frames", len(frames), "expected", n)
	}
	return frames, nil
}

// splitFrames divides pixel data of known length into n equal frames.
func (d *streamDecoder) splitFrames(vr *VR, length uint32, n int) ([]*Frame, error) {
	per := int64(length) / int64(n)
	frames := make([]*Frame, n)
	for i := range frames {
		offset := d.dr.Offset()
		f := &Frame{VR: vr, ByteOrder: d.dr.ByteOrder()}
		var err error
		switch vr {
		case OBVR, UNVR:
			f.Bytes, err = d.dr.Bytes(per)
		case OWVR:
			f.Words, err = d.dr.UInt16s(per / 2)
		case OFVR:
			f.Floats, err = d.dr.Float32s(per / 4)
		default:
			return nil, &ParseError{Tag: PixelDataTag, Offset: offset, Err: fmt.Errorf("unsupported pixel data VR %v", vr)}
		}
		if err != nil {
			return nil, &ParseError{Tag: PixelDataTag, Offset: offset, Err: fmt.Errorf("reading frame %d: %w", i, err)}
		}
		frames[i] = f
	}
	return frames, nil
}
