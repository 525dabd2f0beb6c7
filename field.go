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

// Package obsproc provides utilities for reformatting gridded observational
// climate datasets and deriving hydrological forcing variables from them.
// Fields are held in memory as dense arrays with coordinate and unit
// metadata, and are read from and written to NetCDF files.
package obsproc

import (
	"fmt"
	"math"

	"github.com/ctessum/sparse"
)

// FillValue is the missing-data marker used in output files.
const FillValue = 1.0e20

// ScalarCoord is a size-one coordinate attached to a field, such as the
// 2 m measurement height of near-surface air temperature.
type ScalarCoord struct {
	Name         string
	StandardName string
	Units        string
	Value        float64
	Positive     string
}

// Field is a gridded geophysical variable. Data is dimensioned either
// (time, lat, lon) or (lat, lon); the coordinate slices describe the
// corresponding axes.
type Field struct {
	// Name is the variable short name, e.g. "tas".
	Name         string
	StandardName string
	LongName     string
	Units        string

	Data *sparse.DenseArray

	// Time holds time coordinate values in the units given by TimeUnits
	// (e.g. "days since 1950-01-01 00:00:00"). It is nil for static fields.
	Time      []float64
	TimeUnits string
	Calendar  string

	Lat, Lon []float64

	// LatBounds and LonBounds are the cell edge coordinates. Each has one
	// more element than the corresponding coordinate slice.
	LatBounds, LonBounds []float64

	Scalars []ScalarCoord

	// Attrs holds additional variable attributes not covered by the
	// fields above.
	Attrs map[string]string
}

// NewField allocates a zero-valued field on the given coordinates.
// time may be nil for a static field.
func NewField(name string, time, lat, lon []float64) *Field {
	f := &Field{
		Name: name,
		Lat:  lat,
		Lon:  lon,
	}
	if time == nil {
		f.Data = sparse.ZerosDense(len(lat), len(lon))
	} else {
		f.Time = time
		f.Data = sparse.ZerosDense(len(time), len(lat), len(lon))
	}
	return f
}

// Copy returns a deep copy of f.
func (f *Field) Copy() *Field {
	o := new(Field)
	*o = *f
	o.Data = f.Data.Copy()
	o.Time = append([]float64(nil), f.Time...)
	o.Lat = append([]float64(nil), f.Lat...)
	o.Lon = append([]float64(nil), f.Lon...)
	o.LatBounds = append([]float64(nil), f.LatBounds...)
	o.LonBounds = append([]float64(nil), f.LonBounds...)
	o.Scalars = append([]ScalarCoord(nil), f.Scalars...)
	if f.Attrs != nil {
		o.Attrs = make(map[string]string, len(f.Attrs))
		for k, v := range f.Attrs {
			o.Attrs[k] = v
		}
	}
	return o
}

// NT returns the number of time steps, or zero for a static field.
func (f *Field) NT() int {
	return len(f.Time)
}

// Grid returns the horizontal grid that f is defined on.
func (f *Field) Grid() Grid {
	return Grid{
		Lat: f.Lat, Lon: f.Lon,
		LatBounds: f.LatBounds, LonBounds: f.LonBounds,
	}
}

// SameGrid reports whether f and o share identical horizontal coordinates.
func (f *Field) SameGrid(o *Field) bool {
	return floatsEqual(f.Lat, o.Lat) && floatsEqual(f.Lon, o.Lon)
}

// checkConformable returns an error if f and o cannot be combined
// element-by-element.
func (f *Field) checkConformable(o *Field) error {
	if len(f.Data.Shape) != len(o.Data.Shape) {
		return fmt.Errorf("obsproc: fields %s and %s have different ranks %d and %d",
			f.Name, o.Name, len(f.Data.Shape), len(o.Data.Shape))
	}
	for i, n := range f.Data.Shape {
		if o.Data.Shape[i] != n {
			return fmt.Errorf("obsproc: fields %s and %s have different shapes %v and %v",
				f.Name, o.Name, f.Data.Shape, o.Data.Shape)
		}
	}
	return nil
}

// Apply returns a copy of f with fn applied to every non-fill element.
// Fill values propagate unchanged.
func (f *Field) Apply(fn func(float64) float64) *Field {
	o := f.Copy()
	for i, v := range o.Data.Elements {
		if IsFill(v) {
			continue
		}
		o.Data.Elements[i] = fn(v)
	}
	return o
}

// Combine returns a new field on f's coordinates holding
// fn(f[i], o[i]) for every element pair. An element is fill in the
// result if it is fill in either input.
func (f *Field) Combine(o *Field, fn func(a, b float64) float64) (*Field, error) {
	if err := f.checkConformable(o); err != nil {
		return nil, err
	}
	out := f.Copy()
	for i, a := range f.Data.Elements {
		b := o.Data.Elements[i]
		if IsFill(a) || IsFill(b) {
			out.Data.Elements[i] = FillValue
			continue
		}
		out.Data.Elements[i] = fn(a, b)
	}
	return out, nil
}

// AddStatic adds the static (lat, lon) field o to every time step of f,
// scaled by scale. This is how an elevation-dependent correction is
// applied to a time-varying field.
func (f *Field) AddStatic(o *Field, scale float64) (*Field, error) {
	if !f.SameGrid(o) {
		return nil, fmt.Errorf("obsproc: static field %s is not on the grid of %s", o.Name, f.Name)
	}
	if len(o.Data.Shape) != 2 {
		return nil, fmt.Errorf("obsproc: field %s is not static", o.Name)
	}
	out := f.Copy()
	n := len(o.Data.Elements)
	for i, v := range out.Data.Elements {
		b := o.Data.Elements[i%n]
		if IsFill(v) || IsFill(b) {
			out.Data.Elements[i] = FillValue
			continue
		}
		out.Data.Elements[i] = v + b*scale
	}
	return out, nil
}

// TimeMean returns the average over the time dimension, ignoring fill
// values. Grid points that are fill at every time step are fill in the
// result.
func (f *Field) TimeMean() (*Field, error) {
	if f.NT() == 0 {
		return nil, fmt.Errorf("obsproc: field %s has no time dimension to average over", f.Name)
	}
	o := NewField(f.Name, nil, f.Lat, f.Lon)
	o.StandardName = f.StandardName
	o.LongName = f.LongName
	o.Units = f.Units
	o.LatBounds = append([]float64(nil), f.LatBounds...)
	o.LonBounds = append([]float64(nil), f.LonBounds...)
	n := len(o.Data.Elements)
	counts := make([]int, n)
	for i, v := range f.Data.Elements {
		if IsFill(v) {
			continue
		}
		o.Data.Elements[i%n] += v
		counts[i%n]++
	}
	for i := range o.Data.Elements {
		if counts[i] == 0 {
			o.Data.Elements[i] = FillValue
			continue
		}
		o.Data.Elements[i] /= float64(counts[i])
	}
	return o, nil
}

// IsFill reports whether v is a missing-data value.
func IsFill(v float64) bool {
	return math.IsNaN(v) || math.Abs(v) >= FillValue/2
}

func floatsEqual(a, b []float64) bool {
	if len(a) != len(b) {
		return false
	}
	for i, v := range a {
		if v != b[i] {
			return false
		}
	}
	return true
}
