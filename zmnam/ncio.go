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

package zmnam

import (
	"fmt"
	"os"

	"github.com/ctessum/cdf"
	"github.com/ctessum/sparse"

	"github.com/esmtools/obsproc"
)

// pcSeries is an annular-mode index time series, one column per pressure
// level. Data has shape (time, plev).
type pcSeries struct {
	Time      []float64
	TimeUnits string
	Calendar  string
	Lev       []float64
	LevUnits  string
	Data      *sparse.DenseArray
}

// level returns the index values at level l as a contiguous slice.
func (s *pcSeries) level(l int) []float64 {
	o := make([]float64, len(s.Time))
	for t := range o {
		o[t] = s.Data.Get(t, l)
	}
	return o
}

// heightField is a geopotential-height anomaly field with shape
// (time, plev, lat, lon).
type heightField struct {
	Time []float64
	Lev  []float64
	Lat  []float64
	Lon  []float64
	Data *sparse.DenseArray
}

// readPC reads the named index variable and its time and pressure-level
// coordinates.
func readPC(path, name string) (*pcSeries, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("obsproc: opening %s: %v", path, err)
	}
	defer f.Close()
	ff, err := cdf.Open(f)
	if err != nil {
		return nil, fmt.Errorf("obsproc: reading NetCDF header of %s: %v", path, err)
	}

	s := &pcSeries{
		TimeUnits: obsproc.AttrString(ff, "time", "units"),
		Calendar:  obsproc.AttrString(ff, "time", "calendar"),
		LevUnits:  obsproc.AttrString(ff, "plev", "units"),
	}
	if s.Time, err = obsproc.ReadVar(ff, "time"); err != nil {
		return nil, fmt.Errorf("obsproc: reading %s: %v", path, err)
	}
	if s.Lev, err = obsproc.ReadVar(ff, "plev"); err != nil {
		return nil, fmt.Errorf("obsproc: reading %s: %v", path, err)
	}
	data, err := obsproc.ReadVar(ff, name)
	if err != nil {
		return nil, fmt.Errorf("obsproc: reading %s from %s: %v", name, path, err)
	}
	if len(data) != len(s.Time)*len(s.Lev) {
		return nil, fmt.Errorf("obsproc: %s in %s has length %d, want time*plev = %d",
			name, path, len(data), len(s.Time)*len(s.Lev))
	}
	s.Data = sparse.ZerosDense(len(s.Time), len(s.Lev))
	copy(s.Data.Elements, data)
	return s, nil
}

// readHeight reads the named (time, plev, lat, lon) field. The latitude
// and longitude dimensions may be named lat/latitude and lon/longitude.
func readHeight(path, name string) (*heightField, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("obsproc: opening %s: %v", path, err)
	}
	defer f.Close()
	ff, err := cdf.Open(f)
	if err != nil {
		return nil, fmt.Errorf("obsproc: reading NetCDF header of %s: %v", path, err)
	}

	latDim, lonDim := "", ""
	for _, d := range ff.Header.Dimensions(name) {
		switch d {
		case "lat", "latitude":
			latDim = d
		case "lon", "longitude":
			lonDim = d
		}
	}
	if latDim == "" || lonDim == "" {
		return nil, fmt.Errorf("obsproc: %s in %s has dimensions %v; need latitude and longitude",
			name, path, ff.Header.Dimensions(name))
	}

	h := &heightField{}
	if h.Time, err = obsproc.ReadVar(ff, "time"); err != nil {
		return nil, fmt.Errorf("obsproc: reading %s: %v", path, err)
	}
	if h.Lev, err = obsproc.ReadVar(ff, "plev"); err != nil {
		return nil, fmt.Errorf("obsproc: reading %s: %v", path, err)
	}
	if h.Lat, err = obsproc.ReadVar(ff, latDim); err != nil {
		return nil, fmt.Errorf("obsproc: reading %s: %v", path, err)
	}
	if h.Lon, err = obsproc.ReadVar(ff, lonDim); err != nil {
		return nil, fmt.Errorf("obsproc: reading %s: %v", path, err)
	}
	data, err := obsproc.ReadVar(ff, name)
	if err != nil {
		return nil, fmt.Errorf("obsproc: reading %s from %s: %v", name, path, err)
	}
	want := len(h.Time) * len(h.Lev) * len(h.Lat) * len(h.Lon)
	if len(data) != want {
		return nil, fmt.Errorf("obsproc: %s in %s has length %d, want %d", name, path, len(data), want)
	}
	h.Data = sparse.ZerosDense(len(h.Time), len(h.Lev), len(h.Lat), len(h.Lon))
	copy(h.Data.Elements, data)
	return h, nil
}

// writeSlopes writes the per-level regression maps to a NetCDF file at
// path for further postprocessing.
func writeSlopes(path string, lev, lat, lon []float64, levUnits string, slopes []*sparse.DenseArray) error {
	nl, ny, nx := len(lev), len(lat), len(lon)
	if len(slopes) != nl {
		return fmt.Errorf("obsproc: have %d regression maps for %d levels", len(slopes), nl)
	}

	h := cdf.NewHeader([]string{"plev", "lat", "lon"}, []int{nl, ny, nx})
	h.AddAttribute("", "Conventions", "CF-1.6")
	h.AddVariable("plev", []string{"plev"}, []float64{0})
	h.AddAttribute("plev", "standard_name", "air_pressure")
	h.AddAttribute("plev", "units", levUnits)
	h.AddAttribute("plev", "positive", "down")
	h.AddVariable("lat", []string{"lat"}, []float64{0})
	h.AddAttribute("lat", "standard_name", "latitude")
	h.AddAttribute("lat", "units", "degrees_north")
	h.AddVariable("lon", []string{"lon"}, []float64{0})
	h.AddAttribute("lon", "standard_name", "longitude")
	h.AddAttribute("lon", "units", "degrees_east")
	h.AddVariable("regr_map", []string{"plev", "lat", "lon"}, []float32{0})
	h.AddAttribute("regr_map", "long_name",
		"Regression of the zonal mean annular mode index on geopotential height")
	h.AddAttribute("regr_map", "units", "m")
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
		w := f.Writer(name, begin, end)
		if _, err := w.Write(data); err != nil {
			return fmt.Errorf("obsproc: writing %s to %s: %v", name, path, err)
		}
		return nil
	}
	if err := writeVar("plev", []int{0}, []int{nl}, lev); err != nil {
		return err
	}
	if err := writeVar("lat", []int{0}, []int{ny}, lat); err != nil {
		return err
	}
	if err := writeVar("lon", []int{0}, []int{nx}, lon); err != nil {
		return err
	}
	data := make([]float32, 0, nl*ny*nx)
	for _, s := range slopes {
		for _, v := range s.Elements {
			data = append(data, float32(v))
		}
	}
	return writeVar("regr_map", []int{0, 0, 0}, []int{nl, ny, nx}, data)
}
