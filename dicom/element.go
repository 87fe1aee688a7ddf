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
	"strconv"
	"strings"
)

// maxFormattedValues bounds how many array values String prints before eliding the rest.
const maxFormattedValues = 16

// Element models one decoded DICOM Data Element.
//
// The concrete type of Value is determined by VR:
//
//	text VRs (AE AS CS DA DS DT IS LO LT PN SH ST TM UC UI UR UT): string
//	SS: []int16      US, OW: []uint16
//	SL: []int32      UL, OL: []uint32
//	FL, OF: []float32
//	FD, OD: []float64
//	OB, UN: []byte
//	AT: []Tag
//	SQ: []*Element, one DL element per item
//	DL: []*Element, the elements of one item
type Element struct {
	Tag   Tag
	VR    *VR
	Value interface{}
}

// Items returns the items of a sequence element, or nil for any other VR.
func (e *Element) Items() []*Element {
	if e.VR != SQVR {
		return nil
	}
	items, _ := e.Value.([]*Element)
	return items
}

// Children returns the elements nested in an item, or nil for any other VR.
func (e *Element) Children() []*Element {
	if e.VR != DLVR {
		return nil
	}
	children, _ := e.Value.([]*Element)
	return children
}

// String formats the element for diagnostics as tag, name, VR and value.
func (e *Element) String() string {
	var sb strings.Builder
	e.format(&sb, "")
	return sb.String()
}

func (e *Element) format(sb *strings.Builder, indent string) {
	fmt.Fprintf(sb, "%s%v %s (%v)", indent, e.Tag, e.Tag.Name(), e.VR)
	if children, ok := e.Value.([]*Element); ok {
		fmt.Fprintf(sb, ": %d", len(children))
		for _, c := range children {
			sb.WriteByte('\n')
			c.format(sb, indent+"  ")
		}
		return
	}
	sb.WriteString(": ")
	sb.WriteString(formatValue(e.Value))
}

// formatValue renders a non-nested value: strings as-is, numeric arrays comma-joined and byte
// arrays in hex.
func formatValue(v interface{}) string {
	switch v := v.(type) {
	case nil:
		return ""
	case string:
		return v
	case []byte:
		parts := make([]string, 0, min(len(v), maxFormattedValues))
		for i, b := range v {
			if i == maxFormattedValues {
				break
			}
			parts = append(parts, fmt.Sprintf("%02X", b))
		}
		return elide(strings.Join(parts, " "), len(v))
	case []int16:
		return joinNumbers(v, func(x int16) string { return strconv.Itoa(int(x)) })
	case []uint16:
		return joinNumbers(v, func(x uint16) string { return strconv.Itoa(int(x)) })
	case []int32:
		return joinNumbers(v, func(x int32) string { return strconv.Itoa(int(x)) })
	case []uint32:
		return joinNumbers(v, func(x uint32) string { return strconv.FormatUint(uint64(x), 10) })
	case []float32:
		return joinNumbers(v, func(x float32) string { return strconv.FormatFloat(float64(x), 'g', -1, 32) })
	case []float64:
		return joinNumbers(v, func(x float64) string { return strconv.FormatFloat(x, 'g', -1, 64) })
	case []Tag:
		return joinNumbers(v, Tag.String)
	default:
		return fmt.Sprint(v)
	}
}

func joinNumbers[T any](values []T, f func(T) string) string {
	parts := make([]string, 0, min(len(values), maxFormattedValues))
	for i, x := range values {
		if i == maxFormattedValues {
			break
		}
		parts = append(parts, f(x))
	}
	return elide(strings.Join(parts, ", "), len(values))
}

func elide(s string, n int) string {
	if n <= maxFormattedValues {
		return s
	}
	return fmt.Sprintf("%s ... (%d values)", s, n)
}
