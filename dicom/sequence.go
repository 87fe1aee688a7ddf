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
)

// boundary marks where a run of nested elements ends: after a known number of bytes, or at a
// delimitation tag when the enclosing length is undefined.
type boundary struct {
	// end is the absolute offset of the first byte after the run, or -1 when delimited
	end       int64
	delimiter Tag
}

func (d *streamDecoder) boundary(length uint32, delimiter Tag) boundary {
	if length == UndefinedLength {
		return boundary{end: -1, delimiter: delimiter}
	}
	return boundary{end: d.dr.Offset() + int64(length), delimiter: delimiter}
}

func (b boundary) delimited() bool {
	return b.end < 0
}

// readNested reads tags until b is reached and hands each one to next. next returns nil for
// tags that are consumed without producing an element. Every iteration consumes at least the
// tag, so the loop ends at the boundary or at the end of the stream.
func (d *streamDecoder) readNested(b boundary, next func(Tag) (*Element, error)) ([]*Element, error) {
	var out []*Element
	for b.delimited() || d.dr.Offset() < b.end {
		tag, err := d.dr.Tag()
		if err != nil {
			return nil, fmt.Errorf("reading nested tag: %w", noEOF(err))
		}
		if b.delimited() && tag == b.delimiter {
			if _, err := d.dr.UInt32(); err != nil {
				return nil, fmt.Errorf("reading length of %v: %w", tag, noEOF(err))
			}
			return out, nil
		}
		e, err := next(tag)
		if err != nil {
			return nil, err
		}
		if e != nil {
			out = append(out, e)
		}
	}
	return out, nil
}

// readSequence reads the items of an SQ value. Item delimiters between items are ignored.
func (d *streamDecoder) readSequence(length uint32) ([]*Element, error) {
	return d.readNested(d.boundary(length, SequenceDelimitationItemTag), d.readItem)
}

// readItem reads one item of a sequence as a DL element holding the item's elements.
func (d *streamDecoder) readItem(tag Tag) (*Element, error) {
	offset := d.dr.Offset()
	length, err := d.dr.UInt32()
	if err != nil {
		return nil, &ParseError{Tag: tag, Offset: offset, Err: fmt.Errorf("reading item length: %w", noEOF(err))}
	}
	switch tag {
	case ItemTag:
		children, err := d.readNested(d.boundary(length, ItemDelimitationItemTag), d.readElement)
		if err != nil {
			return nil, err
		}
		return &Element{Tag: ItemTag, VR: DLVR, Value: children}, nil
	case ItemDelimitationItemTag:
		return nil, nil
	default:
		return nil, &ParseError{Tag: tag, Offset: offset, Err: ErrInvalidItem}
	}
}
