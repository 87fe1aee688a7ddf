// Package dicom decodes DICOM Part 10 streams and assembles their images into volumes.
//
// A Reader parses a stream up to and including its pixel data. The header is kept as a map of
// typed Elements with accessors that interpret string, numeric and date/time values by VR. The
// pixel data is split into frames, and each frame is handed to the first registered
// ImageDecoder that accepts it, producing a PixelBuffer. Every decoded frame becomes a Slice.
//
// A Volume orders compatible slices by temporal position and then by position along the
// slice normal, and extracts strided 2D or 3D samples through a PixelConverter. ReadDir and
// ReadFiles decode a batch of files concurrently and fold the results into one Volume.
//
// Explicit and implicit VR, both byte orders and the deflated transfer syntax are supported.
// Native pixel data is decoded directly; encapsulated JPEG baseline and RLE frames are decoded
// in process, and other compressed frames through ImageMagick when it is installed.
package dicom
