/*
Copyright © 2020 the ObsProc authors.
This file is part of ObsProc.

ObsProc is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

ObsProc is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with ObsProc.  If not, see <http://www.gnu.org/licenses/>.
*/

package obsproc

import (
	"fmt"
	"strings"
	"time"
)

// unitAliases maps the unit spellings encountered in observational data
// files to canonical spellings.
var unitAliases = map[string]string{
	"K":          "K",
	"Kelvin":     "K",
	"kelvin":     "K",
	"degC":       "degC",
	"deg_C":      "degC",
	"Celsius":    "degC",
	"celsius":    "degC",
	"Pa":         "Pa",
	"hPa":        "hPa",
	"mbar":       "hPa",
	"millibar":   "hPa",
	"W m-2":      "W m-2",
	"W/m2":       "W m-2",
	"W/m^2":      "W m-2",
	"kg m-2 s-1": "kg m-2 s-1",
	"m":          "m",
	"m2 s-2":     "m2 s-2",
	"1":          "1",
	"":           "1",
}

// linear unit conversions, keyed by canonical from/to pair.
var conversions = map[[2]string]struct{ scale, offset float64 }{
	{"K", "degC"}: {1, -273.15},
	{"degC", "K"}: {1, 273.15},
	{"Pa", "hPa"}: {0.01, 0},
	{"hPa", "Pa"}: {100, 0},
	{"m", "m"}:    {1, 0},
}

// canonicalUnits returns the canonical spelling of units, or an error if
// the units are not recognized.
func canonicalUnits(units string) (string, error) {
	if u, ok := unitAliases[strings.TrimSpace(units)]; ok {
		return u, nil
	}
	return "", fmt.Errorf("obsproc: unrecognized units %q", units)
}

// ConvertUnits converts f in place to the given units. Converting a field
// that is already in the requested units is a no-op; a conversion between
// incompatible units is an error.
func (f *Field) ConvertUnits(to string) error {
	from, err := canonicalUnits(f.Units)
	if err != nil {
		return fmt.Errorf("obsproc: converting %s: %v", f.Name, err)
	}
	toC, err := canonicalUnits(to)
	if err != nil {
		return fmt.Errorf("obsproc: converting %s: %v", f.Name, err)
	}
	if from == toC {
		f.Units = toC
		return nil
	}
	c, ok := conversions[[2]string{from, toC}]
	if !ok {
		return fmt.Errorf("obsproc: no conversion from %q to %q for %s", from, toC, f.Name)
	}
	for i, v := range f.Data.Elements {
		if IsFill(v) {
			continue
		}
		f.Data.Elements[i] = v*c.scale + c.offset
	}
	f.Units = toC
	return nil
}

const timeRefLayout = "2006-1-2 15:04:05"

// parseTimeUnits splits a CF time-units string such as
// "days since 1850-01-01 00:00:00" into the step duration and base time.
func parseTimeUnits(units string) (step time.Duration, base time.Time, err error) {
	fields := strings.SplitN(strings.TrimSpace(units), " since ", 2)
	if len(fields) != 2 {
		return 0, time.Time{}, fmt.Errorf("obsproc: malformed time units %q", units)
	}
	switch fields[0] {
	case "days", "day":
		step = 24 * time.Hour
	case "hours", "hour":
		step = time.Hour
	case "minutes", "minute":
		step = time.Minute
	case "seconds", "second":
		step = time.Second
	default:
		return 0, time.Time{}, fmt.Errorf("obsproc: unsupported time step %q in units %q", fields[0], units)
	}
	ref := strings.TrimSuffix(strings.TrimSpace(fields[1]), " UTC")
	for _, layout := range []string{timeRefLayout, "2006-1-2"} {
		base, err = time.Parse(layout, ref)
		if err == nil {
			return step, base.UTC(), nil
		}
	}
	return 0, time.Time{}, fmt.Errorf("obsproc: cannot parse reference time in units %q", units)
}

// ParseTimeUnits splits a CF time-units string into the step duration
// and reference time it encodes.
func ParseTimeUnits(units string) (step time.Duration, base time.Time, err error) {
	return parseTimeUnits(units)
}

// supportedCalendar reports whether time arithmetic on the given calendar
// can be done with the civil calendar.
func supportedCalendar(calendar string) bool {
	switch strings.ToLower(calendar) {
	case "", "standard", "gregorian", "proleptic_gregorian":
		return true
	}
	return false
}

// ConvertTimeUnits re-references the time axis of f to
// "days since <refYear>-01-01 00:00:00".
func (f *Field) ConvertTimeUnits(refYear int) error {
	if f.NT() == 0 {
		return fmt.Errorf("obsproc: field %s has no time axis", f.Name)
	}
	if !supportedCalendar(f.Calendar) {
		return fmt.Errorf("obsproc: unsupported calendar %q on field %s", f.Calendar, f.Name)
	}
	step, base, err := parseTimeUnits(f.TimeUnits)
	if err != nil {
		return err
	}
	ref := time.Date(refYear, time.January, 1, 0, 0, 0, 0, time.UTC)
	// Offset of the old reference from the new one, in days. Computed
	// from Unix seconds because Duration arithmetic saturates at about
	// 292 years, and archives commonly reference year 1.
	offset := float64(base.Unix()-ref.Unix()) / 86400
	scale := step.Hours() / 24
	for i, v := range f.Time {
		f.Time[i] = v*scale + offset
	}
	f.TimeUnits = fmt.Sprintf("days since %d-01-01 00:00:00", refYear)
	if f.Calendar == "" {
		f.Calendar = "standard"
	}
	return nil
}

// TimeValue returns the i-th time coordinate as a civil time.
func (f *Field) TimeValue(i int) (time.Time, error) {
	step, base, err := parseTimeUnits(f.TimeUnits)
	if err != nil {
		return time.Time{}, err
	}
	return base.Add(time.Duration(f.Time[i] * float64(step))), nil
}

// TimeRange returns the first and last time coordinates as civil times.
func (f *Field) TimeRange() (start, end time.Time, err error) {
	if f.NT() == 0 {
		return time.Time{}, time.Time{}, fmt.Errorf("obsproc: field %s has no time axis", f.Name)
	}
	if start, err = f.TimeValue(0); err != nil {
		return
	}
	end, err = f.TimeValue(f.NT() - 1)
	return
}
