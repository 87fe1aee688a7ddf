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
	"log/slog"
)

// Transform describes a transformation applied to a top level Element before it is added to a
// Header. Returning a nil Element drops it from the Header; returning an error stops parsing.
// The transfer syntax and character set elements take effect whatever the transform returns.
type Transform func(*Element) (*Element, error)

// ReaderOption configures a Reader.
type ReaderOption func(*Reader)

// WithTransform appends t to the transforms applied to each top level element, in the order
// the options are given.
func WithTransform(t Transform) ReaderOption {
	return func(r *Reader) {
		r.transforms = append(r.transforms, t)
	}
}

// WithLogger sets the logger that receives warnings about recoverable problems in a stream.
func WithLogger(logger *slog.Logger) ReaderOption {
	return func(r *Reader) {
		r.logger = logger
	}
}

// WithTransferSyntaxRegistry replaces the default transfer syntax registry.
func WithTransferSyntaxRegistry(registry *TransferSyntaxRegistry) ReaderOption {
	return func(r *Reader) {
		r.syntaxes = registry
	}
}

// WithImageDecoders replaces the default image decoder list.
func WithImageDecoders(decoders ...ImageDecoder) ReaderOption {
	return func(r *Reader) {
		r.decoders = append([]ImageDecoder(nil), decoders...)
		r.customDecoders = true
	}
}

// WithMagickCommand sets the ImageMagick convert command tried by the default decoder list.
// An empty command leaves ImageMagick out.
func WithMagickCommand(command string) ReaderOption {
	return func(r *Reader) {
		r.magickCommand = command
	}
}

// DropGroupLengths excludes group length elements (gggg,0000) from the header.
var DropGroupLengths = WithTransform(func(elem *Element) (*Element, error) {
	if elem.Tag.Element() == 0 {
		return nil, nil
	}
	return elem, nil
})

// DropPrivateElements excludes elements of odd groups from the header.
var DropPrivateElements = WithTransform(func(elem *Element) (*Element, error) {
	if elem.Tag.IsPrivate() {
		return nil, nil
	}
	return elem, nil
})
