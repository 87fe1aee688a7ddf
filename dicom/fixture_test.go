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
	"bytes"
	"encoding/binary"
	"math"
	"strconv"
)

// dcmWriter writes the primitive parts of a DICOM stream for building test inputs.
type dcmWriter struct {
	bytes.Buffer
}

func (dw *dcmWriter) Tag(order binary.ByteOrder, tag Tag) {
	dw.UInt16(order, tag.Group())
	dw.UInt16(order, tag.Element())
}

func (dw *dcmWriter) Delimiter(order binary.ByteOrder, tag Tag) {
	dw.Tag(order, tag)
	dw.UInt32(order, 0)
}

func (dw *dcmWriter) UInt16(order binary.ByteOrder, v uint16) {
	buf := make([]byte, 2)
	order.PutUint16(buf, v)
	dw.Write(buf)
}

func (dw *dcmWriter) UInt32(order binary.ByteOrder, v uint32) {
	buf := make([]byte, 4)
	order.PutUint32(buf, v)
	dw.Write(buf)
}

// encoder builds encoded elements for one transfer syntax. Its methods return the encoded
// bytes so that items and sequences can be nested freely.
type encoder struct {
	order    binary.ByteOrder
	explicit bool
}

var (
	metaEncoder       = encoder{binary.LittleEndian, true}
	explicitLEEncoder = encoder{binary.LittleEndian, true}
	explicitBEEncoder = encoder{binary.BigEndian, true}
	implicitLEEncoder = encoder{binary.LittleEndian, false}
)

// element encodes tag, VR, length and value.
func (e encoder) element(tag Tag, vr *VR, value []byte) []byte {
	return e.header(tag, vr, uint32(len(value)), value)
}

// undefined encodes an element header with undefined length followed by body.
func (e encoder) undefined(tag Tag, vr *VR, body []byte) []byte {
	return e.header(tag, vr, UndefinedLength, body)
}

func (e encoder) header(tag Tag, vr *VR, length uint32, value []byte) []byte {
	var dw dcmWriter
	dw.Tag(e.order, tag)
	switch {
	case !e.explicit:
		dw.UInt32(e.order, length)
	case vr.longLength:
		dw.WriteString(vr.Name)
		dw.UInt16(e.order, 0)
		dw.UInt32(e.order, length)
	default:
		dw.WriteString(vr.Name)
		dw.UInt16(e.order, uint16(length))
	}
	dw.Write(value)
	return dw.Bytes()
}

// item encodes a sequence item of known length.
func (e encoder) item(elements ...[]byte) []byte {
	body := bytes.Join(elements, nil)
	var dw dcmWriter
	dw.Tag(e.order, ItemTag)
	dw.UInt32(e.order, uint32(len(body)))
	dw.Write(body)
	return dw.Bytes()
}

// undefinedItem encodes a sequence item of undefined length closed by an item delimiter.
func (e encoder) undefinedItem(elements ...[]byte) []byte {
	var dw dcmWriter
	dw.Tag(e.order, ItemTag)
	dw.UInt32(e.order, UndefinedLength)
	dw.Write(bytes.Join(elements, nil))
	dw.Delimiter(e.order, ItemDelimitationItemTag)
	return dw.Bytes()
}

// sequence encodes an SQ element of known length.
func (e encoder) sequence(tag Tag, items ...[]byte) []byte {
	return e.element(tag, SQVR, bytes.Join(items, nil))
}

// undefinedSequence encodes an SQ element of undefined length closed by a sequence delimiter.
func (e encoder) undefinedSequence(tag Tag, items ...[]byte) []byte {
	return e.undefined(tag, SQVR, append(bytes.Join(items, nil), e.delimiter(SequenceDelimitationItemTag)...))
}

func (e encoder) delimiter(tag Tag) []byte {
	var dw dcmWriter
	dw.Delimiter(e.order, tag)
	return dw.Bytes()
}

// text pads a string value to even length with a space, or a NUL for UI.
func text(vr *VR, s string) []byte {
	if len(s)%2 == 1 {
		if vr == UIVR {
			s += "\x00"
		} else {
			s += " "
		}
	}
	return []byte(s)
}

// str encodes a text element.
func (e encoder) str(tag Tag, vr *VR, s string) []byte {
	return e.element(tag, vr, text(vr, s))
}

func (e encoder) u16(tag Tag, v ...uint16) []byte {
	return e.element(tag, USVR, e.words(v...))
}

func (e encoder) words(v ...uint16) []byte {
	b := make([]byte, 2*len(v))
	for i, x := range v {
		e.order.PutUint16(b[2*i:], x)
	}
	return b
}

func (e encoder) longs(v ...uint32) []byte {
	b := make([]byte, 4*len(v))
	for i, x := range v {
		e.order.PutUint32(b[4*i:], x)
	}
	return b
}

func (e encoder) floats(v ...float32) []byte {
	b := make([]byte, 4*len(v))
	for i, x := range v {
		e.order.PutUint32(b[4*i:], math.Float32bits(x))
	}
	return b
}

// part10 assembles a file: preamble, magic, a meta group declaring tsUID and the already
// encoded data set elements.
func part10(tsUID string, dataset ...[]byte) []byte {
	var dw dcmWriter
	dw.Write(make([]byte, preambleLength))
	dw.WriteString(magic)
	dw.Write(metaEncoder.str(TransferSyntaxUIDTag, UIVR, tsUID))
	dw.Write(bytes.Join(dataset, nil))
	return dw.Bytes()
}

// imageElements encodes the Image Pixel module attributes of a rows x cols grayscale or RGB
// image, in tag order.
func (e encoder) imageElements(rows, cols, samples, bits int, photometric string) []byte {
	return bytes.Join([][]byte{
		e.u16(SamplesPerPixelTag, uint16(samples)),
		e.str(PhotometricInterpretationTag, CSVR, photometric),
		e.u16(RowsTag, uint16(rows)),
		e.u16(ColumnsTag, uint16(cols)),
		e.u16(BitsAllocatedTag, uint16(bits)),
		e.u16(BitsStoredTag, uint16(bits)),
		e.u16(HighBitTag, uint16(bits-1)),
		e.u16(PixelRepresentationTag, 0),
	}, nil)
}

// slice16 encodes a complete explicit VR little endian file holding one 16-bit frame at the
// given position, with Image Orientation along the patient axes.
func slice16(rows, cols int, z float64, temporal int, pixels []uint16) []byte {
	e := explicitLEEncoder
	elems := [][]byte{
		e.str(ImagePositionPatientTag, DSVR, "0\\0\\"+strconv.FormatFloat(z, 'g', -1, 64)),
		e.str(ImageOrientationPatientTag, DSVR, "1\\0\\0\\0\\1\\0"),
	}
	if temporal >= 0 {
		elems = append(elems, e.str(TemporalPositionIdentifierTag, ISVR, strconv.Itoa(temporal)))
	}
	elems = append(elems,
		e.imageElements(rows, cols, 1, 16, "MONOCHROME2"),
		e.str(PixelSpacingTag, DSVR, "0.5\\0.5"),
		e.element(PixelDataTag, OWVR, e.words(pixels...)),
	)
	return part10(ExplicitVRLittleEndianUID, elems...)
}
