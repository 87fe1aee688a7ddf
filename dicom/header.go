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
	"io"
	"sort"
	"strings"
)

// Header holds the decoded elements of one DICOM stream, keyed by tag. A Header is filled by
// the decoder and read-only afterwards, so it may be shared by every slice of a multi-frame
// image.
type Header struct {
	elements map[Tag]*Element
	syntax   *TransferSyntax
}

// NewHeader returns an empty header.
func NewHeader() *Header {
	return &Header{elements: map[Tag]*Element{}}
}

// Add inserts e, replacing any element with the same tag.
func (h *Header) Add(e *Element) {
	h.elements[e.Tag] = e
}

// Element returns the element stored under tag.
func (h *Header) Element(tag Tag) (*Element, bool) {
	e, ok := h.elements[tag]
	return e, ok
}

// Len returns the number of top level elements.
func (h *Header) Len() int {
	return len(h.elements)
}

// Tags returns the tags of the header in ascending order.
func (h *Header) Tags() []Tag {
	tags := make([]Tag, 0, len(h.elements))
	for t := range h.elements {
		tags = append(tags, t)
	}
	sort.Slice(tags, func(i, j int) bool { return tags[i] < tags[j] })
	return tags
}

// TransferSyntax returns the transfer syntax the data set was decoded with. It is nil for a
// header that was not produced by the decoder.
func (h *Header) TransferSyntax() *TransferSyntax {
	return h.syntax
}

// SetTransferSyntax records the transfer syntax the header's data set was encoded in.
func (h *Header) SetTransferSyntax(ts *TransferSyntax) {
	h.syntax = ts
}

// Dump writes one formatted line per element, in tag order.
func (h *Header) Dump(w io.Writer) error {
	for _, t := range h.Tags() {
		if _, err := fmt.Fprintln(w, h.elements[t]); err != nil {
			return err
		}
	}
	return nil
}

// StringValue returns the value of a text element, or the formatted value of any other
// element. The second return value is false when the tag is absent.
func (h *Header) StringValue(tag Tag) (string, bool) {
	e, ok := h.elements[tag]
	if !ok {
		return "", false
	}
	if items, ok := e.Value.([]*Element); ok {
		return fmt.Sprintf("%d items", len(items)), true
	}
	return formatValue(e.Value), true
}

// IntValue returns the first integer of an IS, SL, UL, SS or US element, or def for any other
// VR or an absent tag.
func (h *Header) IntValue(tag Tag, def int) int {
	e, ok := h.elements[tag]
	if !ok {
		return def
	}
	switch v := e.Value.(type) {
	case string:
		if e.VR == ISVR {
			return ParseIntString(v)
		}
	case []int32:
		if len(v) > 0 {
			return int(v[0])
		}
	case []uint32:
		if len(v) > 0 && e.VR == ULVR {
			return int(v[0])
		}
	case []int16:
		if len(v) > 0 {
			return int(v[0])
		}
	case []uint16:
		if len(v) > 0 && e.VR == USVR {
			return int(v[0])
		}
	}
	return def
}

// DecimalValue returns the first number of a DS, FL or FD element, or def for any other VR or
// an absent tag.
func (h *Header) DecimalValue(tag Tag, def float64) float64 {
	e, ok := h.elements[tag]
	if !ok {
		return def
	}
	switch v := e.Value.(type) {
	case string:
		if e.VR == DSVR {
			return ParseDecimalString(v)
		}
	case []float32:
		if len(v) > 0 && e.VR == FLVR {
			return float64(v[0])
		}
	case []float64:
		if len(v) > 0 && e.VR == FDVR {
			return v[0]
		}
	}
	return def
}

// VectorValue returns every number of a DS, IS or binary numeric element as float64, or nil
// for any other VR or an absent tag.
func (h *Header) VectorValue(tag Tag) []float64 {
	e, ok := h.elements[tag]
	if !ok || e.VR.kind == bulkDataVR {
		return nil
	}
	switch v := e.Value.(type) {
	case string:
		if e.VR == DSVR || e.VR == ISVR {
			return ParseMultiDecimalString(v)
		}
	case []int16:
		return toFloat64s(v)
	case []uint16:
		return toFloat64s(v)
	case []int32:
		return toFloat64s(v)
	case []uint32:
		return toFloat64s(v)
	case []float32:
		return toFloat64s(v)
	case []float64:
		return append([]float64(nil), v...)
	}
	return nil
}

// MultiStringValue returns the values of a text element. Multi-valued VRs are split on the
// backslash separator and each value is trimmed; LT, ST, UT and UR hold a single value. It
// returns nil for any other VR or an absent tag.
func (h *Header) MultiStringValue(tag Tag) []string {
	e, ok := h.elements[tag]
	if !ok {
		return nil
	}
	s, ok := e.Value.(string)
	if !ok {
		return nil
	}
	if !e.VR.multiValued {
		return []string{s}
	}
	parts := strings.Split(strings.TrimSpace(s), "\\")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

// MultiIntValue returns every integer of an IS, DS, SL, UL, SS or US element, or nil for any
// other VR or an absent tag.
func (h *Header) MultiIntValue(tag Tag) []int {
	e, ok := h.elements[tag]
	if !ok {
		return nil
	}
	switch v := e.Value.(type) {
	case string:
		if e.VR != ISVR && e.VR != DSVR {
			return nil
		}
		parts := strings.Split(v, "\\")
		out := make([]int, len(parts))
		for i, p := range parts {
			out[i] = ParseIntString(p)
		}
		return out
	case []int16:
		return toInts(v)
	case []uint16:
		if e.VR == USVR {
			return toInts(v)
		}
	case []int32:
		return toInts(v)
	case []uint32:
		if e.VR == ULVR {
			return toInts(v)
		}
	}
	return nil
}

// MultiDecimalValue returns every number of a DS, FL or FD element, or nil for any other VR or
// an absent tag.
func (h *Header) MultiDecimalValue(tag Tag) []float64 {
	e, ok := h.elements[tag]
	if !ok {
		return nil
	}
	switch v := e.Value.(type) {
	case string:
		if e.VR != DSVR {
			return nil
		}
		parts := strings.Split(v, "\\")
		out := make([]float64, len(parts))
		for i, p := range parts {
			out[i] = ParseDecimalString(p)
		}
		return out
	case []float32:
		if e.VR == FLVR {
			return toFloat64s(v)
		}
	case []float64:
		if e.VR == FDVR {
			return append([]float64(nil), v...)
		}
	}
	return nil
}

// DateTime parses a DA, TM or DT element.
func (h *Header) DateTime(tag Tag) (DateTime, error) {
	e, ok := h.elements[tag]
	if !ok {
		return DateTime{}, fmt.Errorf("%w: %v", ErrMissingElement, tag)
	}
	s, _ := e.Value.(string)
	switch e.VR {
	case DAVR:
		return ParseDate(s)
	case TMVR:
		return ParseTime(s)
	case DTVR:
		return ParseDateTime(s)
	}
	return DateTime{}, fmt.Errorf("element %v has VR %v, not a date or time", tag, e.VR)
}

type number interface {
	~int16 | ~uint16 | ~int32 | ~uint32 | ~float32 | ~float64
}

func toFloat64s[T number](v []T) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = float64(x)
	}
	return out
}

func toInts[T number](v []T) []int {
	out := make([]int, len(v))
	for i, x := range v {
		out[i] = int(x)
	}
	return out
}
