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
	"strconv"
	"strings"
)

// ParseIntString parses an IS value permissively: an optional sign followed by digits. Parsing
// stops at the first other character and returns what was accumulated so far, so "12.7" is 12
// and "x" is 0.
func ParseIntString(s string) int {
	s = strings.TrimSpace(s)
	out, neg := 0, false
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case i == 0 && (c == '-' || c == '+'):
			neg = c == '-'
		case c >= '0' && c <= '9':
			out = out*10 + int(c-'0')
		default:
			return sign(out, neg)
		}
	}
	return sign(out, neg)
}

func sign(v int, neg bool) int {
	if neg {
		return -v
	}
	return v
}

// ParseDecimalString parses a DS value permissively. It accepts a leading sign, digits, a
// single decimal point before any exponent and an e/E exponent with its own sign. Parsing stops
// at the first other character; the result is the longest numeric prefix, or 0.
func ParseDecimalString(s string) float64 {
	token, _ := scanDecimal(strings.TrimSpace(s), 0)
	return decimalPrefix(token)
}

// ParseMultiDecimalString parses every number in s. Any character that cannot continue the
// current number ends it, so backslash separated DS values and stray characters both split.
func ParseMultiDecimalString(s string) []float64 {
	var out []float64
	for i := 0; i < len(s); {
		token, next := scanDecimal(s, i)
		if token == "" {
			i = next + 1
			continue
		}
		out = append(out, decimalPrefix(token))
		i = next
	}
	return out
}

// scanDecimal returns the run of s starting at i made of characters that can belong to one
// decimal number, and the index of the first character that cannot.
func scanDecimal(s string, i int) (string, int) {
	start := i
	seenDot, seenExp := false, false
	for ; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= '0' && c <= '9':
		case c == '+' || c == '-':
			if i != start && !(seenExp && (s[i-1] == 'e' || s[i-1] == 'E')) {
				return s[start:i], i
			}
		case c == '.':
			if seenDot || seenExp {
				return s[start:i], i
			}
			seenDot = true
		case c == 'e' || c == 'E':
			if seenExp || i == start {
				return s[start:i], i
			}
			seenExp = true
		default:
			return s[start:i], i
		}
	}
	return s[start:], i
}

// decimalPrefix converts the longest parseable prefix of token, dropping dangling exponent or
// sign characters.
func decimalPrefix(token string) float64 {
	for n := len(token); n > 0; n-- {
		if v, err := strconv.ParseFloat(token[:n], 64); err == nil {
			return v
		}
	}
	return 0
}
