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
	"errors"
	"fmt"
)

var (
	// ErrNotDICOM is returned when a stream lacks the DICM magic.
	ErrNotDICOM = errors.New("dicom: missing DICM magic")
	// ErrUnknownVR is returned for an explicit VR code outside the known set.
	ErrUnknownVR = errors.New("dicom: unknown VR")
	// ErrUnknownTag is returned when an implicit VR tag is missing from the data dictionary.
	ErrUnknownTag = errors.New("dicom: tag not in data dictionary")
	// ErrUndefinedLength is returned for an undefined length on a VR other than SQ.
	ErrUndefinedLength = errors.New("dicom: undefined length not supported")
	// ErrInvalidItem is returned when a tag other than an item or delimiter appears where an
	// item was expected.
	ErrInvalidItem = errors.New("dicom: invalid item tag")
	// ErrMissingElement is returned by header accessors that require an element.
	ErrMissingElement = errors.New("dicom: element not present")
	// ErrNoPixelData is returned when a stream ends before the pixel data element.
	ErrNoPixelData = errors.New("dicom: no pixel data")
	// ErrNoDecoder is returned when no image decoder accepts a frame.
	ErrNoDecoder = errors.New("dicom: no image decoder found")
	// ErrUnsupportedType is returned by pixel conversions between unmapped pixel types.
	ErrUnsupportedType = errors.New("dicom: unsupported pixel type")
	// ErrNoSlices is returned by batch loads that produce no slice at all.
	ErrNoSlices = errors.New("dicom: no slices loaded")
)

// ParseError reports a fatal decoding failure at a specific element.
type ParseError struct {
	Tag    Tag
	Offset int64
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("element %v at offset %d: %v", e.Tag, e.Offset, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}
