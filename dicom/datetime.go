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
	"math"
	"strconv"
	"strings"
	"time"
)

// DateTime is a UTC instant with microsecond resolution, stored as microseconds since
// 1970-01-01T00:00:00Z. Two DateTimes compare by that count alone.
type DateTime struct {
	micros int64
}

// NewDateTime builds a DateTime from calendar fields interpreted in UTC. Out of range fields
// are normalized the way time.Date normalizes them.
func NewDateTime(year, month, day, hour, minute, second, micros int) DateTime {
	t := time.Date(year, time.Month(month), day, hour, minute, second, 0, time.UTC)
	return DateTime{t.Unix()*1e6 + int64(micros)}
}

// DateTimeFromTime converts t, truncating below the microsecond.
func DateTimeFromTime(t time.Time) DateTime {
	return DateTime{t.UnixMicro()}
}

// Micros returns the number of microseconds since the epoch.
func (d DateTime) Micros() int64 {
	return d.micros
}

// Time returns d as a time.Time in UTC.
func (d DateTime) Time() time.Time {
	return time.UnixMicro(d.micros).UTC()
}

func (d DateTime) AddMicros(n int64) DateTime {
	return DateTime{d.micros + n}
}

func (d DateTime) AddSeconds(n int64) DateTime {
	return d.AddMicros(n * 1e6)
}

func (d DateTime) AddMinutes(n int64) DateTime {
	return d.AddSeconds(n * 60)
}

func (d DateTime) AddHours(n int64) DateTime {
	return d.AddMinutes(n * 60)
}

// Compare returns -1, 0 or 1 as d is before, equal to or after o.
func (d DateTime) Compare(o DateTime) int {
	switch {
	case d.micros < o.micros:
		return -1
	case d.micros > o.micros:
		return 1
	}
	return 0
}

func (d DateTime) Before(o DateTime) bool { return d.micros < o.micros }
func (d DateTime) After(o DateTime) bool  { return d.micros > o.micros }
func (d DateTime) Equal(o DateTime) bool  { return d.micros == o.micros }

func (d DateTime) String() string {
	return d.Time().Format("2006-01-02 15:04:05.000000")
}

// ParseDate parses a DA value, YYYYMMDD or YYYY.MM.DD. The trailing fields may be omitted
// (YYYYMM, YYYY), in which case they default to the first month or day.
func ParseDate(s string) (DateTime, error) {
	str := strings.ReplaceAll(strings.TrimSpace(s), ".", "")
	year, month, day := 1970, 1, 1
	var err error
	switch len(str) {
	case 8:
		if day, err = atoiField(str[6:]); err != nil {
			return DateTime{}, fmt.Errorf("parsing date %q: %w", s, err)
		}
		str = str[:6]
		fallthrough
	case 6:
		if month, err = atoiField(str[4:]); err != nil {
			return DateTime{}, fmt.Errorf("parsing date %q: %w", s, err)
		}
		str = str[:4]
		fallthrough
	case 4:
		if year, err = atoiField(str); err != nil {
			return DateTime{}, fmt.Errorf("parsing date %q: %w", s, err)
		}
	default:
		return DateTime{}, fmt.Errorf("date %q has invalid length %d", s, len(str))
	}
	return NewDateTime(year, month, day, 0, 0, 0, 0), nil
}

// ParseTime parses a TM value, HHMMSS.FFFFFF or HH:MM:SS.FFFFFF, on 1970-01-01. Trailing
// fields may be omitted. A fractional part with fewer than six leading digits is taken to hold
// the least significant fields.
func ParseTime(s string) (DateTime, error) {
	str := strings.ReplaceAll(strings.TrimSpace(s), ":", "")
	micros := 0
	if i := strings.IndexByte(str, '.'); i >= 0 {
		var err error
		if micros, err = parseFraction(str[i:]); err != nil {
			return DateTime{}, fmt.Errorf("parsing time %q: %w", s, err)
		}
		str = str[:i]
		if len(str) < 6 {
			str = strings.Repeat("0", 6-len(str)) + str
		}
	}
	hour, minute, second, err := parseClock(str)
	if err != nil {
		return DateTime{}, fmt.Errorf("parsing time %q: %w", s, err)
	}
	return NewDateTime(1970, 1, 1, hour, minute, second, micros), nil
}

func parseClock(str string) (hour, minute, second int, err error) {
	switch len(str) {
	case 5, 6:
		if second, err = atoiField(str[len(str)-2:]); err != nil {
			return
		}
		str = str[:len(str)-2]
		fallthrough
	case 3, 4:
		if minute, err = atoiField(str[len(str)-2:]); err != nil {
			return
		}
		str = str[:len(str)-2]
		fallthrough
	case 1, 2:
		hour, err = atoiField(str)
	case 0:
	default:
		err = fmt.Errorf("invalid length %d", len(str))
	}
	return
}

// ParseDateTime parses a DT value, YYYYMMDDHHMMSS.FFFFFF&ZZZZ, where & is + or -. Trailing
// fields may be omitted. The optional &ZZZZ (or &ZZ) offset is the local time zone; it is
// subtracted so that the result is in UTC.
func ParseDateTime(s string) (DateTime, error) {
	str := strings.TrimSpace(s)

	offsetMinutes := 0
	i := strings.IndexByte(str, '+')
	if i < 0 {
		i = strings.IndexByte(str, '-')
	}
	if i >= 0 {
		minus := str[i] == '-'
		offset := str[i+1:]
		str = str[:i]
		switch len(offset) {
		case 2, 4:
			hours, err := atoiField(offset[:2])
			if err != nil {
				return DateTime{}, fmt.Errorf("parsing offset of date time %q: %w", s, err)
			}
			offsetMinutes = 60 * hours
			if len(offset) == 4 {
				minutes, err := atoiField(offset[2:])
				if err != nil {
					return DateTime{}, fmt.Errorf("parsing offset of date time %q: %w", s, err)
				}
				offsetMinutes += minutes
			}
		default:
			return DateTime{}, fmt.Errorf("date time %q has malformed offset %q", s, offset)
		}
		if minus {
			offsetMinutes = -offsetMinutes
		}
	}

	micros := 0
	if j := strings.IndexByte(str, '.'); j >= 0 {
		var err error
		if micros, err = parseFraction(str[j:]); err != nil {
			return DateTime{}, fmt.Errorf("parsing date time %q: %w", s, err)
		}
		str = str[:j]
	}

	year, month, day, hour, minute, second := 1970, 1, 1, 0, 0, 0
	fields := []*int{&year, &month, &day, &hour, &minute, &second}
	switch len(str) {
	case 4, 6, 8, 10, 12, 14:
	default:
		return DateTime{}, fmt.Errorf("date time %q has invalid length %d", s, len(str))
	}
	// year takes four digits, every other field two
	for k := len(str)/2 - 2; k >= 0; k-- {
		start := 0
		if k > 0 {
			start = 2 + 2*k
		}
		v, err := atoiField(str[start:])
		if err != nil {
			return DateTime{}, fmt.Errorf("parsing date time %q: %w", s, err)
		}
		*fields[k] = v
		str = str[:start]
	}

	return NewDateTime(year, month, day, hour, minute, second, micros).AddMinutes(-int64(offsetMinutes)), nil
}

// parseFraction converts ".FFFFFF" to whole microseconds.
func parseFraction(frac string) (int, error) {
	if frac == "." {
		return 0, nil
	}
	f, err := strconv.ParseFloat(frac, 64)
	if err != nil {
		return 0, err
	}
	return int(math.Round(f * 1e6)), nil
}

func atoiField(s string) (int, error) {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return 0, fmt.Errorf("invalid digit %q in %q", s[i], s)
		}
	}
	return strconv.Atoi(s)
}
