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
	"math/bits"
)

// Tag is a unique identifier for a Data Element composed of a group number and an element
// number as specified in http://dicom.nema.org/medical/dicom/current/output/html/part05.html#sect_3.10.
//
// The least significant 16 bits is the element number. The most significant 16 bits is the group
// number.
type Tag uint32

// NewTag packs a group and element number into a Tag.
func NewTag(group, element uint16) Tag {
	return Tag(uint32(group)<<16 | uint32(element))
}

// Group returns the group number component of the Tag
func (t Tag) Group() uint16 {
	return uint16(t >> 16)
}

// Element returns the element number component of the Tag
func (t Tag) Element() uint16 {
	return uint16(t & 0xFFFF)
}

// IsMetaElement is true if and only if the tag belongs to the file meta information group
func (t Tag) IsMetaElement() bool {
	return t.Group() == 0x0002
}

// IsPrivate is true for tags in odd-numbered groups.
func (t Tag) IsPrivate() bool {
	return t.Group()%2 == 1
}

// String formats the tag as 0xGGGG,0xEEEE.
func (t Tag) String() string {
	return fmt.Sprintf("0x%04X,0x%04X", t.Group(), t.Element())
}

// swapped reinterprets a tag that was read with the wrong byte order by byte-swapping each of
// its two 16-bit halves.
func (t Tag) swapped() Tag {
	return NewTag(bits.ReverseBytes16(t.Group()), bits.ReverseBytes16(t.Element()))
}

// Tags referenced by the decoder, the header accessors and the volume assembler.
const (
	FileMetaInformationGroupLengthTag Tag = 0x00020000
	FileMetaInformationVersionTag     Tag = 0x00020001
	MediaStorageSOPClassUIDTag        Tag = 0x00020002
	MediaStorageSOPInstanceUIDTag     Tag = 0x00020003
	TransferSyntaxUIDTag              Tag = 0x00020010
	ImplementationClassUIDTag         Tag = 0x00020012
	ImplementationVersionNameTag      Tag = 0x00020013

	SpecificCharacterSetTag Tag = 0x00080005
	ImageTypeTag            Tag = 0x00080008
	SOPClassUIDTag          Tag = 0x00080016
	SOPInstanceUIDTag       Tag = 0x00080018
	StudyDateTag            Tag = 0x00080020
	SeriesDateTag           Tag = 0x00080021
	AcquisitionDateTag      Tag = 0x00080022
	ContentDateTag          Tag = 0x00080023
	AcquisitionDateTimeTag  Tag = 0x0008002A
	StudyTimeTag            Tag = 0x00080030
	SeriesTimeTag           Tag = 0x00080031
	AcquisitionTimeTag      Tag = 0x00080032
	ContentTimeTag          Tag = 0x00080033
	ModalityTag             Tag = 0x00080060
	SeriesDescriptionTag    Tag = 0x0008103E

	ReferencedImageSequenceTag  Tag = 0x00081140
	ReferencedSOPClassUIDTag    Tag = 0x00081150
	ReferencedSOPInstanceUIDTag Tag = 0x00081155

	PatientNameTag Tag = 0x00100010
	PatientIDTag   Tag = 0x00100020

	SliceThicknessTag       Tag = 0x00180050
	SpacingBetweenSlicesTag Tag = 0x00180088
	TriggerTimeTag          Tag = 0x00181060

	StudyInstanceUIDTag           Tag = 0x0020000D
	SeriesInstanceUIDTag          Tag = 0x0020000E
	SeriesNumberTag               Tag = 0x00200011
	AcquisitionNumberTag          Tag = 0x00200012
	InstanceNumberTag             Tag = 0x00200013
	ImagePositionPatientTag       Tag = 0x00200032
	ImageOrientationPatientTag    Tag = 0x00200037
	FrameOfReferenceUIDTag        Tag = 0x00200052
	TemporalPositionIdentifierTag Tag = 0x00200100
	NumberOfTemporalPositionsTag  Tag = 0x00200105
	SliceLocationTag              Tag = 0x00201041

	SamplesPerPixelTag           Tag = 0x00280002
	PhotometricInterpretationTag Tag = 0x00280004
	PlanarConfigurationTag       Tag = 0x00280006
	NumberOfFramesTag            Tag = 0x00280008
	RowsTag                      Tag = 0x00280010
	ColumnsTag                   Tag = 0x00280011
	PixelSpacingTag              Tag = 0x00280030
	BitsAllocatedTag             Tag = 0x00280100
	BitsStoredTag                Tag = 0x00280101
	HighBitTag                   Tag = 0x00280102
	PixelRepresentationTag       Tag = 0x00280103
	WindowCenterTag              Tag = 0x00281050
	WindowWidthTag               Tag = 0x00281051
	RescaleInterceptTag          Tag = 0x00281052
	RescaleSlopeTag              Tag = 0x00281053

	PixelDataTag Tag = 0x7FE00010

	ItemTag                     Tag = 0xFFFEE000
	ItemDelimitationItemTag     Tag = 0xFFFEE00D
	SequenceDelimitationItemTag Tag = 0xFFFEE0DD
)
