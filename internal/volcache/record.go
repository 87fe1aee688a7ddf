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

package volcache

import (
	"fmt"

	"github.com/GoogleCloudPlatform/go-dicom-volume/dicom"
)

// elementRecord is the cached form of a dicom.Element. Numeric arrays are widened to int64 or
// float64 and narrowed again by VR when the element is restored.
type elementRecord struct {
	Tag      uint32          `cbor:"t"`
	VR       string          `cbor:"v"`
	Text     string          `cbor:"s,omitempty"`
	Bytes    []byte          `cbor:"b,omitempty"`
	Ints     []int64         `cbor:"i,omitempty"`
	Floats   []float64       `cbor:"f,omitempty"`
	Children []elementRecord `cbor:"c,omitempty"`
}

func widen[T ~int16 | ~uint16 | ~int32 | ~uint32](v []T) []int64 {
	out := make([]int64, len(v))
	for i, x := range v {
		out[i] = int64(x)
	}
	return out
}

func narrow[T ~int16 | ~uint16 | ~int32 | ~uint32](v []int64) []T {
	out := make([]T, len(v))
	for i, x := range v {
		out[i] = T(x)
	}
	return out
}

func toRecord(e *dicom.Element) (elementRecord, error) {
	rec := elementRecord{Tag: uint32(e.Tag), VR: e.VR.String()}
	switch v := e.Value.(type) {
	case string:
		rec.Text = v
	case []byte:
		rec.Bytes = v
	case []int16:
		rec.Ints = widen(v)
	case []uint16:
		rec.Ints = widen(v)
	case []int32:
		rec.Ints = widen(v)
	case []uint32:
		rec.Ints = widen(v)
	case []dicom.Tag:
		rec.Ints = widen(v)
	case []float32:
		rec.Floats = make([]float64, len(v))
		for i, x := range v {
			rec.Floats[i] = float64(x)
		}
	case []float64:
		rec.Floats = v
	case []*dicom.Element:
		rec.Children = make([]elementRecord, 0, len(v))
		for _, child := range v {
			c, err := toRecord(child)
			if err != nil {
				return rec, err
			}
			rec.Children = append(rec.Children, c)
		}
	case nil:
	default:
		return rec, fmt.Errorf("element %v: unsupported value type %T", e.Tag, e.Value)
	}
	return rec, nil
}

func (rec elementRecord) element() (*dicom.Element, error) {
	vr, ok := dicom.LookupVRByName(rec.VR)
	if !ok {
		return nil, fmt.Errorf("element %v: %w %q", dicom.Tag(rec.Tag), dicom.ErrUnknownVR, rec.VR)
	}
	e := &dicom.Element{Tag: dicom.Tag(rec.Tag), VR: vr}
	switch vr {
	case dicom.SSVR:
		e.Value = narrow[int16](rec.Ints)
	case dicom.USVR, dicom.OWVR:
		e.Value = narrow[uint16](rec.Ints)
	case dicom.SLVR:
		e.Value = narrow[int32](rec.Ints)
	case dicom.ULVR, dicom.OLVR:
		e.Value = narrow[uint32](rec.Ints)
	case dicom.ATVR:
		e.Value = narrow[dicom.Tag](rec.Ints)
	case dicom.FLVR, dicom.OFVR:
		f := make([]float32, len(rec.Floats))
		for i, x := range rec.Floats {
			f[i] = float32(x)
		}
		e.Value = f
	case dicom.FDVR, dicom.ODVR:
		e.Value = append([]float64{}, rec.Floats...)
	case dicom.OBVR, dicom.OXVR, dicom.UNVR:
		e.Value = append([]byte{}, rec.Bytes...)
	case dicom.SQVR, dicom.DLVR:
		children := make([]*dicom.Element, 0, len(rec.Children))
		for _, c := range rec.Children {
			child, err := c.element()
			if err != nil {
				return nil, err
			}
			children = append(children, child)
		}
		e.Value = children
	default:
		e.Value = rec.Text
	}
	return e, nil
}
