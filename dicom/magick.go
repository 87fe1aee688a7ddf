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
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// DefaultMagickTimeout bounds one ImageMagick conversion.
const DefaultMagickTimeout = 30 * time.Second

// MagickDecoder decodes encapsulated frames of any compression ImageMagick understands by
// piping them through its convert command.
type MagickDecoder struct {
	command string
	timeout time.Duration
}

// NewMagickDecoder locates the ImageMagick convert command. An empty command means "convert"
// on the PATH. It fails when the command is missing or is not ImageMagick.
func NewMagickDecoder(command string, timeout time.Duration) (*MagickDecoder, error) {
	if command == "" {
		command = "convert"
	}
	if timeout <= 0 {
		timeout = DefaultMagickTimeout
	}
	path, err := exec.LookPath(command)
	if err != nil {
		return nil, fmt.Errorf("locating ImageMagick: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	out, err := exec.CommandContext(ctx, path, "--version").Output()
	if err != nil {
		return nil, fmt.Errorf("running %s --version: %w", path, err)
	}
	if !strings.Contains(string(out), "ImageMagick") {
		return nil, fmt.Errorf("%s is not ImageMagick", path)
	}
	return &MagickDecoder{command: path, timeout: timeout}, nil
}

func (m *MagickDecoder) CanDecode(h *Header, f *Frame) bool {
	return f.Encapsulated && imageParamsFromHeader(h).supported()
}

func (m *MagickDecoder) Decode(h *Header, f *Frame) (PixelBuffer, error) {
	p := imageParamsFromHeader(h)
	format := "gray:-"
	if p.samplesPerPixel == 3 {
		format = "rgb:-"
	}

	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()
	cmd := exec.CommandContext(ctx, m.command, "-", "-endian", "MSB", format)
	cmd.Stdin = bytes.NewReader(f.Bytes)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("running ImageMagick: %w: %s", err, strings.TrimSpace(stderr.String()))
	}

	samples := p.numPixels() * p.samplesPerPixel
	out := stdout.Bytes()
	if samples == 0 || len(out) < samples {
		return nil, fmt.Errorf("ImageMagick produced %d bytes for %d samples", len(out), samples)
	}
	// convert picks its own output depth; derive it from the size of what came back
	width := len(out) / samples
	if width > 2 {
		width = 2
	}
	sample := func(i int) uint32 {
		if width == 2 {
			return uint32(out[2*i])<<8 | uint32(out[2*i+1])
		}
		return uint32(out[i])
	}

	switch {
	case p.samplesPerPixel == 3:
		rgb := make([]byte, samples)
		for i := range rgb {
			rgb[i] = byte(sample(i) >> (8 * (width - 1)))
		}
		return NewRGBPixelBuffer(rgb), nil
	case p.bitsAllocated == 8:
		gray := make([]byte, samples)
		for i := range gray {
			gray[i] = byte(p.stored(sample(i) >> (8 * (width - 1))))
		}
		return NewBytePixelBuffer(gray), nil
	default:
		gray := make([]int16, samples)
		for i := range gray {
			gray[i] = int16(p.stored(sample(i)))
		}
		return NewShortPixelBuffer(gray), nil
	}
}
