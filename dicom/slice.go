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

// SliceInfo holds the geometry and identification of a slice, taken from its header when the
// slice is created.
type SliceInfo struct {
	Title string
	Rows  int
	Cols  int

	// PixelSpacingRows is the distance between adjacent rows, PixelSpacingCols the distance
	// between adjacent columns, both in mm.
	PixelSpacingRows float64
	PixelSpacingCols float64
	// SliceSpacing is Spacing Between Slices, falling back to Slice Thickness.
	SliceSpacing   float64
	SliceThickness float64

	Pose RigidTransform

	SeriesNumber      int
	ImageNumber       int
	AcquisitionNumber int

	AcquisitionTime *DateTime
	SeriesTime      *DateTime
	ContentTime     *DateTime

	// TemporalPosition selects the time group the slice joins in a volume. Loaders assign it
	// before the slice is added.
	TemporalPosition int
}

func sliceInfoFromHeader(title string, h *Header) SliceInfo {
	info := SliceInfo{
		Title:             title,
		Rows:              h.IntValue(RowsTag, 0),
		Cols:              h.IntValue(ColumnsTag, 0),
		SliceThickness:    h.DecimalValue(SliceThicknessTag, 0),
		Pose:              PoseFromHeader(h),
		SeriesNumber:      h.IntValue(SeriesNumberTag, 0),
		ImageNumber:       h.IntValue(InstanceNumberTag, 0),
		AcquisitionNumber: h.IntValue(AcquisitionNumberTag, 0),
		SeriesTime:        timestamp(h, SeriesDateTag, SeriesTimeTag),
		ContentTime:       timestamp(h, ContentDateTag, ContentTimeTag),
	}
	if spacing := h.MultiDecimalValue(PixelSpacingTag); len(spacing) >= 2 {
		info.PixelSpacingRows, info.PixelSpacingCols = spacing[0], spacing[1]
	} else if len(spacing) == 1 {
		info.PixelSpacingRows, info.PixelSpacingCols = spacing[0], spacing[0]
	}
	info.SliceSpacing = h.DecimalValue(SpacingBetweenSlicesTag, info.SliceThickness)

	if dt, err := h.DateTime(AcquisitionDateTimeTag); err == nil {
		info.AcquisitionTime = &dt
	} else {
		info.AcquisitionTime = timestamp(h, AcquisitionDateTag, AcquisitionTimeTag)
	}
	if v := h.MultiIntValue(TemporalPositionIdentifierTag); len(v) > 0 {
		info.TemporalPosition = v[0]
	}
	return info
}

// timestamp combines a DA and a TM element. It returns nil when the date is missing or
// malformed; a missing time means midnight.
func timestamp(h *Header, dateTag, timeTag Tag) *DateTime {
	d, err := h.DateTime(dateTag)
	if err != nil {
		return nil
	}
	if t, err := h.DateTime(timeTag); err == nil {
		d = d.AddMicros(t.Micros())
	}
	return &d
}

// Slice is one decoded 2D image together with the header it was read from. Every frame of a
// multi-frame stream shares that stream's header.
type Slice struct {
	Info   SliceInfo
	header *Header
	pixels PixelBuffer
}

// NewSlice pairs a decoded frame with its header.
func NewSlice(title string, h *Header, pb PixelBuffer) *Slice {
	return &Slice{Info: sliceInfoFromHeader(title, h), header: h, pixels: pb}
}

func (s *Slice) Header() *Header          { return s.header }
func (s *Slice) PixelBuffer() PixelBuffer { return s.pixels }
func (s *Slice) PixelType() PixelType     { return s.pixels.PixelType() }
func (s *Slice) MaxIntensity() float64    { return s.pixels.MaxIntensity() }
func (s *Slice) MinIntensity() float64    { return s.pixels.MinIntensity() }

func (s *Slice) String() string {
	return fmt.Sprintf("%s: %dx%d %v t=%d", s.Info.Title, s.Info.Rows, s.Info.Cols, s.PixelType(), s.Info.TemporalPosition)
}

// BytePixels samples ny rows of nx pixels each, starting at column x and row y and stepping by
// dx columns and dy rows. Pixels are written row by row into dst starting at offset, and the
// offset after the last pixel is returned.
func (s *Slice) BytePixels(x, y, dx, dy, nx, ny int, dst []byte, offset int, conv PixelConverter) (int, error) {
	return s.sample(x, y, dx, dy, nx, ny, func(start int) (int, error) {
		return s.pixels.BytePixels(start, dx, nx, dst, offset, conv)
	}, &offset)
}

// ShortPixels is BytePixels for a 16-bit destination.
func (s *Slice) ShortPixels(x, y, dx, dy, nx, ny int, dst []int16, offset int, conv PixelConverter) (int, error) {
	return s.sample(x, y, dx, dy, nx, ny, func(start int) (int, error) {
		return s.pixels.ShortPixels(start, dx, nx, dst, offset, conv)
	}, &offset)
}

// RGBPixels is BytePixels for an interleaved RGB destination.
func (s *Slice) RGBPixels(x, y, dx, dy, nx, ny int, dst []byte, offset int, conv PixelConverter) (int, error) {
	return s.sample(x, y, dx, dy, nx, ny, func(start int) (int, error) {
		return s.pixels.RGBPixels(start, dx, nx, dst, offset, conv)
	}, &offset)
}

// Pixels is BytePixels for a destination pixel buffer.
func (s *Slice) Pixels(x, y, dx, dy, nx, ny int, dst PixelBuffer, offset int, conv PixelConverter) (int, error) {
	return s.sample(x, y, dx, dy, nx, ny, func(start int) (int, error) {
		return s.pixels.CopyPixels(start, dx, nx, dst, offset, conv)
	}, &offset)
}

func (s *Slice) sample(x, y, dx, dy, nx, ny int, row func(start int) (int, error), offset *int) (int, error) {
	if nx > 0 && (x < 0 || x+(nx-1)*dx < 0 || x+(nx-1)*dx >= s.Info.Cols) {
		return *offset, fmt.Errorf("slice %s: columns %d+%d*%d outside 0..%d", s.Info.Title, x, dx, nx, s.Info.Cols-1)
	}
	for j := 0; j < ny; j++ {
		next, err := row((y+j*dy)*s.Info.Cols + x)
		if err != nil {
			return *offset, fmt.Errorf("slice %s: %w", s.Info.Title, err)
		}
		*offset = next
	}
	return *offset, nil
}
