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
	"strings"

	"gonum.org/v1/gonum/spatial/r3"
)

const (
	initialSliceCapacity = 16
	maxCapacityIncrement = 128
)

// Volume is an ordered stack of compatible slices, grouped by temporal position and sorted
// within each group by distance along the slice normal of the first slice.
//
// A Volume is built by a single goroutine. It is safe for concurrent readers once Complete has
// been called, and accepts no further slices after that.
type Volume struct {
	title            string
	rows, cols       int
	pixelSpacingRows float64
	pixelSpacingCols float64
	sliceSpacing     float64
	pixelType        PixelType
	transform        RigidTransform

	slices []*Slice
	// timeOffsets[i] is the index of the first slice of time group i
	timeOffsets []int
	complete    bool
}

// NewVolume starts a volume whose geometry and pixel type are those of first.
func NewVolume(title string, first *Slice) *Volume {
	v := &Volume{
		title:            title,
		rows:             first.Info.Rows,
		cols:             first.Info.Cols,
		pixelSpacingRows: first.Info.PixelSpacingRows,
		pixelSpacingCols: first.Info.PixelSpacingCols,
		sliceSpacing:     first.Info.SliceSpacing,
		pixelType:        first.PixelType(),
		transform:        first.Info.Pose,
		slices:           make([]*Slice, 0, initialSliceCapacity),
		timeOffsets:      []int{0},
	}
	v.slices = append(v.slices, first)
	return v
}

// Compatible reports whether s has the volume's dimensions, pixel spacing and pixel type.
func (v *Volume) Compatible(s *Slice) bool {
	return s.Info.Rows == v.rows &&
		s.Info.Cols == v.cols &&
		s.Info.PixelSpacingRows == v.pixelSpacingRows &&
		s.Info.PixelSpacingCols == v.pixelSpacingCols &&
		s.PixelType() == v.pixelType
}

// AddSlice inserts s in (temporal position, depth) order. It returns false, leaving the volume
// unchanged, when s is not compatible or the volume is complete.
func (v *Volume) AddSlice(s *Slice) bool {
	if v.complete || !v.Compatible(s) {
		return false
	}
	v.growFor(len(v.slices) + 1)
	v.insert(s)
	return true
}

func (v *Volume) depth(s *Slice) float64 {
	return v.transform.Depth(s.Info.Pose.P)
}

func (v *Volume) insert(s *Slice) {
	n := len(v.slices)
	if n == 0 {
		v.slices = append(v.slices, s)
		v.timeOffsets = []int{0}
		return
	}

	t, z := s.Info.TemporalPosition, v.depth(s)
	last := v.slices[n-1]
	switch lt := last.Info.TemporalPosition; {
	case t > lt:
		v.timeOffsets = append(v.timeOffsets, n)
		v.slices = append(v.slices, s)
		return
	case t == lt && z >= v.depth(last):
		v.slices = append(v.slices, s)
		return
	}

	pos := v.insertionPoint(t, z)
	v.slices = append(v.slices, nil)
	copy(v.slices[pos+1:], v.slices[pos:n])
	v.slices[pos] = s
	if pos == 0 {
		v.transform = s.Info.Pose
	}
}

// insertionPoint finds where a slice at time t and depth z belongs and updates timeOffsets
// for the insertion. Callers have ruled out appending at the end.
func (v *Volume) insertionPoint(t int, z float64) int {
	for g, start := range v.timeOffsets {
		gt := v.slices[start].Info.TemporalPosition
		if t < gt {
			// new time group ahead of group g
			offsets := make([]int, 0, len(v.timeOffsets)+1)
			offsets = append(offsets, v.timeOffsets[:g]...)
			offsets = append(offsets, start)
			for _, o := range v.timeOffsets[g:] {
				offsets = append(offsets, o+1)
			}
			v.timeOffsets = offsets
			return start
		}
		if t != gt {
			continue
		}
		for j := start; j < len(v.slices); j++ {
			sj := v.slices[j]
			if sj.Info.TemporalPosition > t || z < v.depth(sj) {
				for k := g + 1; k < len(v.timeOffsets); k++ {
					v.timeOffsets[k]++
				}
				return j
			}
		}
	}
	// unreachable while the last slice holds the largest temporal position
	return len(v.slices)
}

func (v *Volume) growFor(n int) {
	if cap(v.slices) < n {
		v.EnsureCapacity(min(2*n, n+maxCapacityIncrement))
	}
}

// EnsureCapacity reserves room for at least n slices.
func (v *Volume) EnsureCapacity(n int) {
	if cap(v.slices) < n {
		grown := make([]*Slice, len(v.slices), n)
		copy(grown, v.slices)
		v.slices = grown
	}
}

// Capacity returns the number of slices the volume can hold without reallocating.
func (v *Volume) Capacity() int {
	return cap(v.slices)
}

// Trim shrinks the slice storage to the number of slices held.
func (v *Volume) Trim() {
	if cap(v.slices) > len(v.slices) {
		trimmed := make([]*Slice, len(v.slices))
		copy(trimmed, v.slices)
		v.slices = trimmed
	}
}

// Complete marks the end of loading and trims the slice storage.
func (v *Volume) Complete() {
	v.Trim()
	v.complete = true
}

// IsComplete reports whether Complete has been called.
func (v *Volume) IsComplete() bool { return v.complete }

func (v *Volume) Title() string        { return v.title }
func (v *Volume) SetTitle(t string)    { v.title = t }
func (v *Volume) PixelType() PixelType { return v.pixelType }
func (v *Volume) NumRows() int         { return v.rows }
func (v *Volume) NumCols() int         { return v.cols }
func (v *Volume) NumTimes() int        { return len(v.timeOffsets) }
func (v *Volume) RowSpacing() float64  { return v.pixelSpacingRows }
func (v *Volume) ColSpacing() float64  { return v.pixelSpacingCols }

// Len returns the number of slices over all time groups.
func (v *Volume) Len() int { return len(v.slices) }

// NumSlices returns the number of slices in one time group, assuming every group has as many
// slices as the first.
func (v *Volume) NumSlices() int {
	if len(v.timeOffsets) > 1 {
		return v.timeOffsets[1]
	}
	return len(v.slices)
}

// TimeOffsets returns the index of the first slice of each time group.
func (v *Volume) TimeOffsets() []int {
	return append([]int(nil), v.timeOffsets...)
}

// Slice returns slice i counted over all time groups.
func (v *Volume) Slice(i int) *Slice {
	return v.slices[i]
}

// SliceAt returns slice i of time group t.
func (v *Volume) SliceAt(t, i int) *Slice {
	return v.slices[v.timeOffsets[t]+i]
}

// SliceSpacing is the mean distance between consecutive slices of the first time group. With
// a single slice, or coincident slices, it is the spacing recorded in the header.
func (v *Volume) SliceSpacing() float64 {
	spacing := v.sliceSpacing
	if n := v.NumSlices(); n > 1 {
		if d := r3.Norm(r3.Sub(v.slices[n-1].Info.Pose.P, v.slices[0].Info.Pose.P)) / float64(n-1); d != 0 {
			spacing = d
		}
	}
	if spacing == 0 {
		spacing = v.slices[0].Info.SliceThickness
	}
	return spacing
}

// Transform is the pose of the first slice.
func (v *Volume) Transform() RigidTransform {
	return v.transform
}

// PixelTransform maps (column, row, slice) voxel indices to patient coordinates.
func (v *Volume) PixelTransform() AffineTransform {
	return v.transform.Scaled(v.pixelSpacingCols, v.pixelSpacingRows, v.SliceSpacing())
}

func (v *Volume) MaxIntensity() float64 {
	hi := v.slices[0].MaxIntensity()
	for _, s := range v.slices[1:] {
		hi = max(hi, s.MaxIntensity())
	}
	return hi
}

func (v *Volume) MinIntensity() float64 {
	lo := v.slices[0].MinIntensity()
	for _, s := range v.slices[1:] {
		lo = min(lo, s.MinIntensity())
	}
	return lo
}

func (v *Volume) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Title: %s\n", v.title)
	fmt.Fprintf(&b, "Size: %dx%dx%d\n", v.rows, v.cols, len(v.slices))
	fmt.Fprintf(&b, "Times: %d\n", len(v.timeOffsets))
	fmt.Fprintf(&b, "Resolution: %gx%gx%g\n", v.pixelSpacingRows, v.pixelSpacingCols, v.SliceSpacing())
	fmt.Fprintf(&b, "Type: %v\n", v.pixelType)
	fmt.Fprintf(&b, "Location: %v\n", v.transform)
	return b.String()
}

// Region selects voxels (X+i*DX, Y+j*DY, Z+k*DZ) for i < NX, j < NY and k < NZ. Z counts
// slices from the start of time group Time.
type Region struct {
	X, Y, Z    int
	DX, DY, DZ int
	NX, NY, NZ int
	Time       int
}

// Plane returns the region covering slice z of time group t at full resolution.
func (v *Volume) Plane(t, z int) Region {
	return Region{Z: z, DX: 1, DY: 1, DZ: 1, NX: v.cols, NY: v.rows, NZ: 1, Time: t}
}

// NumPixels is the number of voxels r selects.
func (r Region) NumPixels() int {
	return r.NX * r.NY * r.NZ
}

// BytePixels writes the voxels of r into dst starting at offset, slice by slice and row by
// row, and returns the offset after the last voxel.
func (v *Volume) BytePixels(r Region, dst []byte, offset int, conv PixelConverter) (int, error) {
	return v.sample(r, offset, func(s *Slice, off int) (int, error) {
		return s.BytePixels(r.X, r.Y, r.DX, r.DY, r.NX, r.NY, dst, off, conv)
	})
}

func (v *Volume) ShortPixels(r Region, dst []int16, offset int, conv PixelConverter) (int, error) {
	return v.sample(r, offset, func(s *Slice, off int) (int, error) {
		return s.ShortPixels(r.X, r.Y, r.DX, r.DY, r.NX, r.NY, dst, off, conv)
	})
}

func (v *Volume) RGBPixels(r Region, dst []byte, offset int, conv PixelConverter) (int, error) {
	return v.sample(r, offset, func(s *Slice, off int) (int, error) {
		return s.RGBPixels(r.X, r.Y, r.DX, r.DY, r.NX, r.NY, dst, off, conv)
	})
}

func (v *Volume) Pixels(r Region, dst PixelBuffer, offset int, conv PixelConverter) (int, error) {
	return v.sample(r, offset, func(s *Slice, off int) (int, error) {
		return s.Pixels(r.X, r.Y, r.DX, r.DY, r.NX, r.NY, dst, off, conv)
	})
}

func (v *Volume) sample(r Region, offset int, slice func(s *Slice, off int) (int, error)) (int, error) {
	if r.Time < 0 || r.Time >= len(v.timeOffsets) {
		return offset, fmt.Errorf("time index %d outside 0..%d", r.Time, len(v.timeOffsets)-1)
	}
	base := v.timeOffsets[r.Time] + r.Z
	for k := 0; k < r.NZ; k++ {
		idx := base + k*r.DZ
		if idx < 0 || idx >= len(v.slices) {
			return offset, fmt.Errorf("slice index %d outside 0..%d", idx, len(v.slices)-1)
		}
		var err error
		if offset, err = slice(v.slices[idx], offset); err != nil {
			return offset, err
		}
	}
	return offset, nil
}
