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
	"errors"
	"fmt"
	"strings"
)

// readElement reads the VR, length and value of the element whose tag has just been read.
func (d *streamDecoder) readElement(tag Tag) (*Element, error) {
	start := d.dr.Offset()
	syntax := d.elementSyntax()

	vr, err := syntax.readVR(d.dr, tag)
	if err != nil {
		return nil, wrapParseError(tag, start, err)
	}
	length, err := syntax.readValueLength(d.dr, tag, vr)
	if err != nil {
		return nil, wrapParseError(tag, start, fmt.Errorf("reading length: %w", noEOF(err)))
	}
	value, err := d.readValue(tag, vr, length)
	if err != nil {
		return nil, wrapParseError(tag, start, err)
	}
	return &Element{Tag: tag, VR: vr, Value: value}, nil
}

func wrapParseError(tag Tag, offset int64, err error) error {
	var pe *ParseError
	if errors.As(err, &pe) {
		return err
	}
	return &ParseError{Tag: tag, Offset: offset, Err: err}
}

func (d *streamDecoder) readValue(tag Tag, vr *VR, length uint32) (interface{}, error) {
	if length == UndefinedLength && vr != SQVR {
		return nil, fmt.Errorf("%w for VR %v", ErrUndefinedLength, vr)
	}
	switch vr.kind {
	case textVR, uniqueIdentifierVR:
		return d.readText(vr, length)
	case numberBinaryVR, bulkDataVR:
		return d.readBinary(vr, length)
	case tagVR:
		return d.readTags(length)
	case sequenceVR:
		return d.readSequence(length)
	default:
		return nil, fmt.Errorf("unexpected VR %v for tag %v", vr, tag)
	}
}

// readText reads a string value, dropping one trailing NUL. Values that may use extended
// character sets are decoded according to the Specific Character Set seen so far.
func (d *streamDecoder) readText(vr *VR, length uint32) (string, error) {
	b, err := d.dr.Bytes(int64(length))
	if err != nil {
		return "", fmt.Errorf("reading text field value: %w", err)
	}
	if len(b) > 0 && b[len(b)-1] == 0 {
		b = b[:len(b)-1]
	}

	switch vr {
	case SHVR, LOVR, STVR, LTVR, PNVR, UCVR, UTVR:
		s := decodeText(d.charset, b)
		if vr == STVR || vr == LTVR || vr == UTVR {
			return strings.TrimRight(s, " "), nil
		}
		return strings.TrimSpace(s), nil
	case UIVR:
		return strings.TrimRight(string(b), "\x00 "), nil
	default:
		return strings.TrimSpace(string(b)), nil
	}
}

// readBinary reads a value of fixed width numbers in the current byte order. UN is kept as raw
// bytes and always read little endian.
func (d *streamDecoder) readBinary(vr *VR, length uint32) (interface{}, error) {
	n := int64(length) / int64(vr.size)
	var value interface{}
	var err error
	switch vr {
	case OBVR, OXVR:
		value, err = d.dr.Bytes(n)
	case UNVR:
		order := d.dr.ByteOrder()
		d.dr.SetByteOrder(binary.LittleEndian)
		value, err = d.dr.Bytes(n)
		d.dr.SetByteOrder(order)
	case SSVR:
		value, err = d.dr.Int16s(n)
	case USVR, OWVR:
		value, err = d.dr.UInt16s(n)
	case SLVR:
		value, err = d.dr.Int32s(n)
	case ULVR, OLVR:
		value, err = d.dr.UInt32s(n)
	case FLVR, OFVR:
		value, err = d.dr.Float32s(n)
	case FDVR, ODVR:
		value, err = d.dr.Float64s(n)
	default:
		return nil, fmt.Errorf("unexpected binary VR %v", vr)
	}
	if err != nil {
		return nil, fmt.Errorf("reading %v value: %w", vr, err)
	}
	if rest := int64(length) - n*int64(vr.size); rest > 0 {
		if err := d.dr.Skip(rest); err != nil {
			return nil, fmt.Errorf("skipping %d trailing bytes: %w", rest, err)
		}
	}
	return value, nil
}

func (d *streamDecoder) readTags(length uint32) ([]Tag, error) {
	ret := make([]Tag, length/tagSize)
	for i := range ret {
		t, err := d.dr.Tag()
		if err != nil {
			return nil, fmt.Errorf("reading attribute tag: %w", noEOF(err))
		}
		ret[i] = t
	}
	if rest := int64(length % tagSize); rest > 0 {
		if err := d.dr.Skip(rest); err != nil {
			return nil, err
		}
	}
	return ret, nil
}
