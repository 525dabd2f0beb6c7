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
	"math"
	"sort"
)

// FixCoords adjusts the horizontal coordinates of f to the standard
// conventions: latitude strictly ascending, longitude in [0, 360) and
// strictly ascending, and contiguous cell bounds on both axes. The data
// array is rearranged to match.
func (f *Field) FixCoords() error {
	if err := f.checkMonotonic(); err != nil {
		return err
	}
	if len(f.Lat) > 1 && f.Lat[0] > f.Lat[1] {
		f.flipLat()
	}
	f.rollLon()
	if f.LatBounds == nil {
		b, err := guessBounds(f.Lat)
		if err != nil {
			return fmt.Errorf("obsproc: latitude bounds for %s: %v", f.Name, err)
		}
		// Cell bounds may not extend past the poles.
		if b[0] < -90 {
			b[0] = -90
		}
		if b[len(b)-1] > 90 {
			b[len(b)-1] = 90
		}
		f.LatBounds = b
	}
	if f.LonBounds == nil {
		b, err := guessBounds(f.Lon)
		if err != nil {
			return fmt.Errorf("obsproc: longitude bounds for %s: %v", f.Name, err)
		}
		f.LonBounds = b
	}
	return nil
}

func (f *Field) checkMonotonic() error {
	for _, ax := range []struct {
		name string
		c    []float64
	}{{"latitude", f.Lat}, {"longitude", f.Lon}} {
		if len(ax.c) < 2 {
			continue
		}
		up := ax.c[1] > ax.c[0]
		for i := 1; i < len(ax.c); i++ {
			if (ax.c[i] > ax.c[i-1]) != up || ax.c[i] == ax.c[i-1] {
				return fmt.Errorf("obsproc: %s coordinate of %s is not monotonic", ax.name, f.Name)
			}
		}
	}
	return nil
}

// flipLat reverses the latitude axis and the corresponding data rows.
func (f *Field) flipLat() {
	ny, nx := len(f.Lat), len(f.Lon)
	for i, j := 0, ny-1; i < j; i, j = i+1, j-1 {
		f.Lat[i], f.Lat[j] = f.Lat[j], f.Lat[i]
	}
	if f.LatBounds != nil {
		for i, j := 0, len(f.LatBounds)-1; i < j; i, j = i+1, j-1 {
			f.LatBounds[i], f.LatBounds[j] = f.LatBounds[j], f.LatBounds[i]
		}
	}
	nt := f.NT()
	if nt == 0 {
		nt = 1
	}
	for t := 0; t < nt; t++ {
		for j, jj := 0, ny-1; j < jj; j, jj = j+1, jj-1 {
			for i := 0; i < nx; i++ {
				a := t*ny*nx + j*nx + i
				b := t*ny*nx + jj*nx + i
				f.Data.Elements[a], f.Data.Elements[b] = f.Data.Elements[b], f.Data.Elements[a]
			}
		}
	}
}

// rollLon maps longitudes into [0, 360) and rotates the data columns so
// the axis remains ascending.
func (f *Field) rollLon() {
	nx := len(f.Lon)
	if nx == 0 {
		return
	}
	wrapped := make([]float64, nx)
	for i, v := range f.Lon {
		wrapped[i] = math.Mod(math.Mod(v, 360)+360, 360)
	}
	// Index of the smallest wrapped longitude; the axis is rotated so it
	// comes first.
	shift := 0
	for i, v := range wrapped {
		if v < wrapped[shift] {
			shift = i
		}
	}
	if shift == 0 && sort.Float64sAreSorted(wrapped) {
		copy(f.Lon, wrapped)
		return
	}
	newLon := make([]float64, nx)
	for i := range newLon {
		newLon[i] = wrapped[(i+shift)%nx]
	}
	ny := len(f.Lat)
	nt := f.NT()
	if nt == 0 {
		nt = 1
	}
	newData := make([]float64, len(f.Data.Elements))
	for t := 0; t < nt; t++ {
		for j := 0; j < ny; j++ {
			for i := 0; i < nx; i++ {
				newData[t*ny*nx+j*nx+i] = f.Data.Elements[t*ny*nx+j*nx+(i+shift)%nx]
			}
		}
	}
	copy(f.Data.Elements, newData)
	copy(f.Lon, newLon)
	f.LonBounds = nil // stale after rotation; regenerated by FixCoords.
}

// guessBounds derives contiguous cell bounds from coordinate midpoints.
// The result has one more element than c.
func guessBounds(c []float64) ([]float64, error) {
	if len(c) < 2 {
		return nil, fmt.Errorf("need at least two coordinate values, got %d", len(c))
	}
	b := make([]float64, len(c)+1)
	for i := 1; i < len(c); i++ {
		b[i] = (c[i-1] + c[i]) / 2
	}
	b[0] = c[0] - (b[1] - c[0])
	b[len(c)] = c[len(c)-1] + (c[len(c)-1] - b[len(c)-1])
	return b, nil
}

// AddHeight2m attaches the 2 m measurement-height scalar coordinate used
// for near-surface variables.
func (f *Field) AddHeight2m() {
	for _, s := range f.Scalars {
		if s.Name == "height" {
			return
		}
	}
	f.Scalars = append(f.Scalars, ScalarCoord{
		Name:         "height",
		StandardName: "height",
		Units:        "m",
		Value:        2,
		Positive:     "up",
	})
}
