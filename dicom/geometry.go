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

	"gonum.org/v1/gonum/spatial/r3"
)

// RigidTransform places a slice in patient coordinates. R holds the columns of the rotation:
// the direction of increasing column index, the direction of increasing row index and the
// slice normal. P is the position of the center of the first transmitted pixel.
type RigidTransform struct {
	R [3]r3.Vec
	P r3.Vec
}

// IdentityTransform is the pose assumed when a header carries no position or orientation.
func IdentityTransform() RigidTransform {
	return RigidTransform{
		R: [3]r3.Vec{{X: 1}, {Y: 1}, {Z: 1}},
	}
}

// Apply maps a point in slice coordinates to patient coordinates.
func (t RigidTransform) Apply(v r3.Vec) r3.Vec {
	return r3.Add(t.P, t.rotate(v))
}

func (t RigidTransform) rotate(v r3.Vec) r3.Vec {
	return r3.Add(r3.Add(r3.Scale(v.X, t.R[0]), r3.Scale(v.Y, t.R[1])), r3.Scale(v.Z, t.R[2]))
}

// Normal is the third rotation column.
func (t RigidTransform) Normal() r3.Vec {
	return t.R[2]
}

// Depth is the signed distance of p from the transform origin along its normal.
func (t RigidTransform) Depth(p r3.Vec) float64 {
	return r3.Dot(r3.Sub(p, t.P), t.R[2])
}

// Scaled returns the affine transform that scales voxel indices by sx, sy and sz before
// applying t.
func (t RigidTransform) Scaled(sx, sy, sz float64) AffineTransform {
	return AffineTransform{
		A: [3]r3.Vec{r3.Scale(sx, t.R[0]), r3.Scale(sy, t.R[1]), r3.Scale(sz, t.R[2])},
		P: t.P,
	}
}

func (t RigidTransform) String() string {
	return fmt.Sprintf("R=[%v %v %v] P=%v", t.R[0], t.R[1], t.R[2], t.P)
}

// AffineTransform is a general linear map given by its columns followed by a translation.
type AffineTransform struct {
	A [3]r3.Vec
	P r3.Vec
}

// Apply maps v through the transform.
func (t AffineTransform) Apply(v r3.Vec) r3.Vec {
	return r3.Add(t.P, r3.Add(r3.Add(r3.Scale(v.X, t.A[0]), r3.Scale(v.Y, t.A[1])), r3.Scale(v.Z, t.A[2])))
}

// PoseFromHeader builds a slice transform from Image Position (Patient) and Image
// Orientation (Patient). Missing or short values leave the corresponding part of the identity
// transform in place.
func PoseFromHeader(h *Header) RigidTransform {
	t := IdentityTransform()
	if pos := h.VectorValue(ImagePositionPatientTag); len(pos) >= 3 {
		t.P = r3.Vec{X: pos[0], Y: pos[1], Z: pos[2]}
	}
	orient := h.VectorValue(ImageOrientationPatientTag)
	if len(orient) < 6 {
		return t
	}
	row := r3.Vec{X: orient[0], Y: orient[1], Z: orient[2]}
	col := r3.Vec{X: orient[3], Y: orient[4], Z: orient[5]}
	if r3.Norm(row) == 0 || r3.Norm(col) == 0 {
		return t
	}
	row, col = r3.Unit(row), r3.Unit(col)
	t.R = [3]r3.Vec{row, col, r3.Cross(row, col)}
	return t
}
