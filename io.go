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
	"io"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/ctessum/cdf"
	"github.com/ctessum/sparse"
)

// ReadField reads the named variable and its coordinates from the NetCDF
// file at path.
func ReadField(path, name string) (*Field, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("obsproc: opening %s: %v", path, err)
	}
	defer f.Close()
	ff, err := cdf.Open(f)
	if err != nil {
		return nil, fmt.Errorf("obsproc: reading NetCDF header of %s: %v", path, err)
	}
	o, err := readField(ff, name)
	if err != nil {
		return nil, fmt.Errorf("obsproc: reading %s from %s: %v", name, path, err)
	}
	return o, nil
}

// ReadFieldNames lists the non-coordinate variables in the NetCDF file at
// path, sorted alphabetically.
func ReadFieldNames(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("obsproc: opening %s: %v", path, err)
	}
	defer f.Close()
	ff, err := cdf.Open(f)
	if err != nil {
		return nil, fmt.Errorf("obsproc: reading NetCDF header of %s: %v", path, err)
	}
	coords := make(map[string]struct{})
	bounds := make(map[string]struct{})
	for _, v := range ff.Header.Variables() {
		for _, d := range ff.Header.Dimensions(v) {
			coords[d] = struct{}{}
		}
		if b := attrString(ff, v, "bounds"); b != "" {
			bounds[b] = struct{}{}
		}
	}
	var names []string
	for _, v := range ff.Header.Variables() {
		if _, isCoord := coords[v]; isCoord {
			continue
		}
		if _, isBounds := bounds[v]; isBounds || strings.HasSuffix(v, "_bnds") {
			continue
		}
		if dims := ff.Header.Dimensions(v); len(dims) < 2 {
			continue // scalar coordinates and other auxiliaries
		}
		names = append(names, v)
	}
	sort.Strings(names)
	return names, nil
}

// ReadFieldMulti reads the named variable from each of the given files and
// concatenates the results along the time axis. The files must share
// horizontal coordinates, time units, and calendar.
func ReadFieldMulti(paths []string, name string) (*Field, error) {
	if len(paths) == 0 {
		return nil, fmt.Errorf("obsproc: no input files for variable %s", name)
	}
	out, err := ReadField(paths[0], name)
	if err != nil {
		return nil, err
	}
	for _, path := range paths[1:] {
		next, err := ReadField(path, name)
		if err != nil {
			return nil, err
		}
		if err := out.appendTime(next); err != nil {
			return nil, fmt.Errorf("obsproc: concatenating %s: %v", path, err)
		}
	}
	for i := 1; i < out.NT(); i++ {
		if out.Time[i] <= out.Time[i-1] {
			return nil, fmt.Errorf("obsproc: concatenated time axis of %s is not increasing", name)
		}
	}
	return out, nil
}

// appendTime concatenates o onto the end of f's time axis.
func (f *Field) appendTime(o *Field) error {
	if f.NT() == 0 || o.NT() == 0 {
		return fmt.Errorf("obsproc: cannot concatenate static field %s", f.Name)
	}
	if !f.SameGrid(o) {
		return fmt.Errorf("obsproc: field %s grids differ between input files", f.Name)
	}
	if f.TimeUnits != o.TimeUnits {
		return fmt.Errorf("obsproc: field %s time units differ between input files: %q vs %q",
			f.Name, f.TimeUnits, o.TimeUnits)
	}
	if f.Calendar != o.Calendar {
		return fmt.Errorf("obsproc: field %s calendars differ between input files: %q vs %q",
			f.Name, f.Calendar, o.Calendar)
	}
	if f.Units != o.Units {
		return fmt.Errorf("obsproc: field %s units differ between input files: %q vs %q",
			f.Name, f.Units, o.Units)
	}
	nt := f.NT() + o.NT()
	data := sparse.ZerosDense(nt, len(f.Lat), len(f.Lon))
	copy(data.Elements, f.Data.Elements)
	copy(data.Elements[len(f.Data.Elements):], o.Data.Elements)
	f.Data = data
	f.Time = append(f.Time, o.Time...)
	return nil
}

// ReadVar reads the full contents of a variable in an open NetCDF file
// as float64s, regardless of its on-disk type. It is a low-level access
// point for tools whose variables do not fit the (time, lat, lon)
// layout of a Field.
func ReadVar(ff *cdf.File, name string) ([]float64, error) {
	return readData(ff, name)
}

// AttrString returns a string attribute of a variable in an open NetCDF
// file, or "" if it is absent. An empty variable name addresses the
// global attributes.
func AttrString(ff *cdf.File, v, name string) string {
	return attrString(ff, v, name)
}

func readField(ff *cdf.File, name string) (*Field, error) {
	dims := ff.Header.Dimensions(name)
	if len(dims) == 0 {
		return nil, fmt.Errorf("variable not in file")
	}
	o := &Field{
		Name:         name,
		Units:        attrString(ff, name, "units"),
		StandardName: attrString(ff, name, "standard_name"),
		LongName:     attrString(ff, name, "long_name"),
	}

	var timeDim, latDim, lonDim string
	for _, d := range dims {
		switch d {
		case "time", "t":
			timeDim = d
		case "lat", "latitude", "y":
			latDim = d
		case "lon", "longitude", "x":
			lonDim = d
		}
	}
	if latDim == "" || lonDim == "" {
		return nil, fmt.Errorf("variable has dimensions %v; need latitude and longitude", dims)
	}

	var err error
	if o.Lat, err = readCoord(ff, latDim); err != nil {
		return nil, err
	}
	if o.Lon, err = readCoord(ff, lonDim); err != nil {
		return nil, err
	}
	if timeDim != "" {
		if o.Time, err = readCoord(ff, timeDim); err != nil {
			return nil, err
		}
		o.TimeUnits = attrString(ff, timeDim, "units")
		o.Calendar = attrString(ff, timeDim, "calendar")
	}
	o.LatBounds = readBounds(ff, latDim, len(o.Lat))
	o.LonBounds = readBounds(ff, lonDim, len(o.Lon))

	data, err := readData(ff, name)
	if err != nil {
		return nil, err
	}
	want := len(o.Lat) * len(o.Lon)
	if timeDim != "" {
		want *= len(o.Time)
	}
	if len(data) != want {
		return nil, fmt.Errorf("variable length %d does not match coordinate lengths (want %d)", len(data), want)
	}
	if timeDim != "" {
		o.Data = sparse.ZerosDense(len(o.Time), len(o.Lat), len(o.Lon))
	} else {
		o.Data = sparse.ZerosDense(len(o.Lat), len(o.Lon))
	}

	scale, offset := packing(ff, name)
	fill, haveFill := fillValue(ff, name)
	for i, v := range data {
		if haveFill && v == fill {
			o.Data.Elements[i] = FillValue
			continue
		}
		if math.IsNaN(v) || math.Abs(v) >= FillValue/2 {
			o.Data.Elements[i] = FillValue
			continue
		}
		o.Data.Elements[i] = v*scale + offset
	}
	return o, nil
}

// readData reads the full contents of a variable as float64s,
// regardless of its on-disk type.
func readData(ff *cdf.File, name string) ([]float64, error) {
	r := ff.Reader(name, nil, nil)
	buf := r.Zero(-1)
	if _, err := r.Read(buf); err != nil {
		return nil, fmt.Errorf("reading variable %s: %v", name, err)
	}
	switch b := buf.(type) {
	case []float64:
		return b, nil
	case []float32:
		o := make([]float64, len(b))
		for i, v := range b {
			o[i] = float64(v)
		}
		return o, nil
	case []int32:
		o := make([]float64, len(b))
		for i, v := range b {
			o[i] = float64(v)
		}
		return o, nil
	case []int16:
		o := make([]float64, len(b))
		for i, v := range b {
			o[i] = float64(v)
		}
		return o, nil
	case []int8:
		o := make([]float64, len(b))
		for i, v := range b {
			o[i] = float64(v)
		}
		return o, nil
	default:
		return nil, fmt.Errorf("variable %s has unsupported type %T", name, buf)
	}
}

func readCoord(ff *cdf.File, name string) ([]float64, error) {
	for _, v := range ff.Header.Variables() {
		if v == name {
			return readData(ff, name)
		}
	}
	return nil, fmt.Errorf("coordinate variable %s not in file", name)
}

// readBounds reads the cell bounds associated with a coordinate, returning
// them as n+1 edge values, or nil if the file carries none.
func readBounds(ff *cdf.File, coord string, n int) []float64 {
	name := attrString(ff, coord, "bounds")
	if name == "" {
		for _, cand := range []string{coord + "_bnds", coord + "_bounds"} {
			for _, v := range ff.Header.Variables() {
				if v == cand {
					name = cand
				}
			}
		}
	}
	if name == "" {
		return nil
	}
	data, err := readData(ff, name)
	if err != nil || len(data) != 2*n {
		return nil
	}
	edges := make([]float64, n+1)
	for i := 0; i < n; i++ {
		edges[i] = data[2*i]
	}
	edges[n] = data[2*n-1]
	return edges
}

// attrString returns a string attribute, or "" if it is absent or not a
// string.
func attrString(ff *cdf.File, v, name string) string {
	a := ff.Header.GetAttribute(v, name)
	if a == nil {
		return ""
	}
	if s, ok := a.(string); ok {
		return s
	}
	return ""
}

// attrFloat returns a numeric attribute and whether it was present.
func attrFloat(ff *cdf.File, v, name string) (float64, bool) {
	a := ff.Header.GetAttribute(v, name)
	if a == nil {
		return 0, false
	}
	switch t := a.(type) {
	case []float64:
		if len(t) > 0 {
			return t[0], true
		}
	case []float32:
		if len(t) > 0 {
			return float64(t[0]), true
		}
	case []int32:
		if len(t) > 0 {
			return float64(t[0]), true
		}
	case []int16:
		if len(t) > 0 {
			return float64(t[0]), true
		}
	case string:
		if f, err := strconv.ParseFloat(t, 64); err == nil {
			return f, true
		}
	}
	return 0, false
}

// packing returns the scale_factor and add_offset packing attributes,
// defaulting to the identity.
func packing(ff *cdf.File, v string) (scale, offset float64) {
	scale, offset = 1, 0
	if s, ok := attrFloat(ff, v, "scale_factor"); ok {
		scale = s
	}
	if o, ok := attrFloat(ff, v, "add_offset"); ok {
		offset = o
	}
	return
}

func fillValue(ff *cdf.File, v string) (float64, bool) {
	if f, ok := attrFloat(ff, v, "_FillValue"); ok {
		return f, true
	}
	return attrFloat(ff, v, "missing_value")
}

// WriteFields writes the given fields to a new NetCDF file at path with
// time as the record dimension. All fields must share coordinates. global
// holds global attributes.
func WriteFields(path string, fields []*Field, global map[string]string) error {
	if len(fields) == 0 {
		return fmt.Errorf("obsproc: no fields to write to %s", path)
	}
	first := fields[0]
	for _, f := range fields[1:] {
		if !f.SameGrid(first) {
			return fmt.Errorf("obsproc: field %s is not on the grid of %s", f.Name, first.Name)
		}
		if f.NT() != first.NT() {
			return fmt.Errorf("obsproc: field %s time axis differs from %s", f.Name, first.Name)
		}
	}
	ny, nx := len(first.Lat), len(first.Lon)
	nt := first.NT()
	if nt == 0 {
		return fmt.Errorf("obsproc: cannot write static field %s as a record variable", first.Name)
	}

	dims := []string{"time", "lat", "lon", "bnds"}
	lens := []int{0, ny, nx, 2} // time is the record dimension.
	h := cdf.NewHeader(dims, lens)
	h.AddAttribute("", "Conventions", "CF-1.6")
	for _, k := range sortKeys(global) {
		h.AddAttribute("", k, global[k])
	}

	h.AddVariable("time", []string{"time"}, []float64{0})
	h.AddAttribute("time", "standard_name", "time")
	h.AddAttribute("time", "units", first.TimeUnits)
	if first.Calendar != "" {
		h.AddAttribute("time", "calendar", first.Calendar)
	}
	h.AddVariable("lat", []string{"lat"}, []float64{0})
	h.AddAttribute("lat", "standard_name", "latitude")
	h.AddAttribute("lat", "units", "degrees_north")
	h.AddVariable("lon", []string{"lon"}, []float64{0})
	h.AddAttribute("lon", "standard_name", "longitude")
	h.AddAttribute("lon", "units", "degrees_east")
	if first.LatBounds != nil {
		h.AddAttribute("lat", "bounds", "lat_bnds")
		h.AddVariable("lat_bnds", []string{"lat", "bnds"}, []float64{0})
	}
	if first.LonBounds != nil {
		h.AddAttribute("lon", "bounds", "lon_bnds")
		h.AddVariable("lon_bnds", []string{"lon", "bnds"}, []float64{0})
	}

	scalars := make(map[string]ScalarCoord)
	for _, f := range fields {
		for _, s := range f.Scalars {
			scalars[s.Name] = s
		}
	}
	for _, name := range scalarKeys(scalars) {
		s := scalars[name]
		h.AddVariable(s.Name, []string{}, []float64{0})
		h.AddAttribute(s.Name, "standard_name", s.StandardName)
		h.AddAttribute(s.Name, "units", s.Units)
		if s.Positive != "" {
			h.AddAttribute(s.Name, "positive", s.Positive)
		}
	}

	for _, f := range fields {
		h.AddVariable(f.Name, []string{"time", "lat", "lon"}, []float32{0})
		if f.StandardName != "" {
			h.AddAttribute(f.Name, "standard_name", f.StandardName)
		}
		if f.LongName != "" {
			h.AddAttribute(f.Name, "long_name", f.LongName)
		}
		h.AddAttribute(f.Name, "units", f.Units)
		h.AddAttribute(f.Name, "_FillValue", []float32{FillValue})
		if len(f.Scalars) > 0 {
			coords := ""
			for _, s := range f.Scalars {
				if coords != "" {
					coords += " "
				}
				coords += s.Name
			}
			h.AddAttribute(f.Name, "coordinates", coords)
		}
		for _, k := range sortKeys(f.Attrs) {
			h.AddAttribute(f.Name, k, f.Attrs[k])
		}
	}

	h.Define()
	for _, err := range h.Check() {
		return fmt.Errorf("obsproc: creating NetCDF file %s: %v", path, err)
	}

	ff, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("obsproc: creating %s: %v", path, err)
	}
	defer ff.Close()
	f, err := cdf.Create(ff, h)
	if err != nil {
		return fmt.Errorf("obsproc: writing NetCDF header of %s: %v", path, err)
	}

	writeVar := func(name string, begin, end []int, data interface{}) error {
		var want int
		switch d := data.(type) {
		case []float64:
			want = len(d)
		case []float32:
			want = len(d)
		}
		n, err := f.Writer(name, begin, end).Write(data)
		if err == io.EOF && n == want {
			// The writer reports EOF when the write ends exactly at the
			// variable's last byte, as happens for dimensionless scalar
			// coordinates.
			err = nil
		}
		if err != nil {
			return fmt.Errorf("obsproc: writing %s to %s: %v", name, path, err)
		}
		return nil
	}

	if err := writeVar("lat", []int{0}, []int{ny}, first.Lat); err != nil {
		return err
	}
	if err := writeVar("lon", []int{0}, []int{nx}, first.Lon); err != nil {
		return err
	}
	if first.LatBounds != nil {
		if err := writeVar("lat_bnds", []int{0, 0}, []int{ny, 2}, edgesToBounds(first.LatBounds)); err != nil {
			return err
		}
	}
	if first.LonBounds != nil {
		if err := writeVar("lon_bnds", []int{0, 0}, []int{nx, 2}, edgesToBounds(first.LonBounds)); err != nil {
			return err
		}
	}
	for _, name := range scalarKeys(scalars) {
		if err := writeVar(name, nil, nil, []float64{scalars[name].Value}); err != nil {
			return err
		}
	}
	if err := writeVar("time", []int{0}, []int{nt}, first.Time); err != nil {
		return err
	}
	for _, fd := range fields {
		data := make([]float32, len(fd.Data.Elements))
		for i, v := range fd.Data.Elements {
			if IsFill(v) {
				data[i] = FillValue
				continue
			}
			data[i] = float32(v)
		}
		if err := writeVar(fd.Name, []int{0, 0, 0}, []int{nt, ny, nx}, data); err != nil {
			return err
		}
	}
	if err := cdf.UpdateNumRecs(ff); err != nil {
		return fmt.Errorf("obsproc: finalizing %s: %v", path, err)
	}
	return nil
}

// edgesToBounds converts n+1 cell edges to the flattened (n, 2) bounds
// layout used in CF files.
func edgesToBounds(edges []float64) []float64 {
	n := len(edges) - 1
	b := make([]float64, 2*n)
	for i := 0; i < n; i++ {
		b[2*i] = edges[i]
		b[2*i+1] = edges[i+1]
	}
	return b
}

func sortKeys(m map[string]string) []string {
	var keys []string
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func scalarKeys(m map[string]ScalarCoord) []string {
	var keys []string
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
