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

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/index/rtree"
)

// Grid describes a regular latitude-longitude grid.
type Grid struct {
	Lat, Lon             []float64
	LatBounds, LonBounds []float64
}

// RegridScheme selects the interpolation method used by Regrid.
type RegridScheme int

const (
	// Bilinear interpolates each target point from the four surrounding
	// source points. Points outside the source hull take the edge value.
	Bilinear RegridScheme = iota
	// Conservative computes area-weighted averages of the source cells
	// overlapping each target cell.
	Conservative
)

func (s RegridScheme) String() string {
	switch s {
	case Bilinear:
		return "bilinear"
	case Conservative:
		return "conservative"
	}
	return fmt.Sprintf("RegridScheme(%d)", int(s))
}

// ParseRegridScheme converts a configuration string to a RegridScheme.
func ParseRegridScheme(s string) (RegridScheme, error) {
	switch s {
	case "bilinear", "linear", "":
		return Bilinear, nil
	case "conservative", "area_weighted":
		return Conservative, nil
	}
	return 0, fmt.Errorf("obsproc: unknown regridding scheme %q", s)
}

// Regrid interpolates f onto the target grid. Fill values in the source
// propagate as fill values in the result, never as numbers.
func Regrid(f *Field, target Grid, scheme RegridScheme) (*Field, error) {
	if len(f.Lat) < 2 || len(f.Lon) < 2 {
		return nil, fmt.Errorf("obsproc: regridding %s: source grid is %dx%d; need at least 2x2",
			f.Name, len(f.Lat), len(f.Lon))
	}
	for _, ax := range [][]float64{f.Lat, f.Lon, target.Lat, target.Lon} {
		for i := 1; i < len(ax); i++ {
			if ax[i] <= ax[i-1] {
				return nil, fmt.Errorf("obsproc: regridding %s: coordinate axes must be ascending; run FixCoords first", f.Name)
			}
		}
	}
	switch scheme {
	case Bilinear:
		return regridBilinear(f, target), nil
	case Conservative:
		return regridConservative(f, target)
	}
	return nil, fmt.Errorf("obsproc: regridding %s: unsupported scheme %v", f.Name, scheme)
}

func newTarget(f *Field, target Grid) *Field {
	o := NewField(f.Name, f.Time, target.Lat, target.Lon)
	o.StandardName = f.StandardName
	o.LongName = f.LongName
	o.Units = f.Units
	o.TimeUnits = f.TimeUnits
	o.Calendar = f.Calendar
	o.LatBounds = append([]float64(nil), target.LatBounds...)
	o.LonBounds = append([]float64(nil), target.LonBounds...)
	o.Scalars = append([]ScalarCoord(nil), f.Scalars...)
	return o
}

// bracket returns the index i such that c[i] <= v <= c[i+1], along with
// the interpolation weight of c[i+1], clamping v to the ends of the axis.
func bracket(c []float64, v float64) (int, float64) {
	if v <= c[0] {
		return 0, 0
	}
	n := len(c)
	if v >= c[n-1] {
		return n - 2, 1
	}
	i := 0
	for c[i+1] < v {
		i++
	}
	return i, (v - c[i]) / (c[i+1] - c[i])
}

func regridBilinear(f *Field, target Grid) *Field {
	o := newTarget(f, target)
	nt := f.NT()
	if nt == 0 {
		nt = 1
	}
	nySrc, nxSrc := len(f.Lat), len(f.Lon)
	ny, nx := len(target.Lat), len(target.Lon)
	for j := 0; j < ny; j++ {
		j0, wy := bracket(f.Lat, target.Lat[j])
		for i := 0; i < nx; i++ {
			i0, wx := bracket(f.Lon, target.Lon[i])
			for t := 0; t < nt; t++ {
				base := t * nySrc * nxSrc
				v00 := f.Data.Elements[base+j0*nxSrc+i0]
				v01 := f.Data.Elements[base+j0*nxSrc+i0+1]
				v10 := f.Data.Elements[base+(j0+1)*nxSrc+i0]
				v11 := f.Data.Elements[base+(j0+1)*nxSrc+i0+1]
				var v float64
				if IsFill(v00) || IsFill(v01) || IsFill(v10) || IsFill(v11) {
					v = FillValue
				} else {
					v = v00*(1-wy)*(1-wx) + v01*(1-wy)*wx + v10*wy*(1-wx) + v11*wy*wx
				}
				o.Data.Elements[t*ny*nx+j*nx+i] = v
			}
		}
	}
	return o
}

// gridCell is a source grid cell held in the overlap index.
type gridCell struct {
	geom.Polygonal
	j, i int
}

// cellPolygons builds the cell polygons of a grid from its bounds,
// deriving bounds from midpoints when the grid carries none.
func cellPolygons(g Grid) ([]gridCell, error) {
	latB, lonB := g.LatBounds, g.LonBounds
	var err error
	if latB == nil {
		if latB, err = guessBounds(g.Lat); err != nil {
			return nil, err
		}
	}
	if lonB == nil {
		if lonB, err = guessBounds(g.Lon); err != nil {
			return nil, err
		}
	}
	cells := make([]gridCell, 0, len(g.Lat)*len(g.Lon))
	for j := range g.Lat {
		for i := range g.Lon {
			l, r := lonB[i], lonB[i+1]
			b, u := latB[j], latB[j+1]
			cells = append(cells, gridCell{
				Polygonal: geom.Polygon{{{X: l, Y: b}, {X: r, Y: b}, {X: r, Y: u}, {X: l, Y: u}, {X: l, Y: b}}},
				j:         j, i: i,
			})
		}
	}
	return cells, nil
}

func regridConservative(f *Field, target Grid) (*Field, error) {
	srcCells, err := cellPolygons(f.Grid())
	if err != nil {
		return nil, fmt.Errorf("obsproc: regridding %s: %v", f.Name, err)
	}
	index := rtree.NewTree(25, 50)
	for k := range srcCells {
		index.Insert(srcCells[k])
	}
	targetCells, err := cellPolygons(target)
	if err != nil {
		return nil, fmt.Errorf("obsproc: regridding %s: %v", f.Name, err)
	}

	o := newTarget(f, target)
	nt := f.NT()
	if nt == 0 {
		nt = 1
	}
	nySrc, nxSrc := len(f.Lat), len(f.Lon)
	ny, nx := len(target.Lat), len(target.Lon)

	type overlap struct {
		j, i   int
		weight float64
	}
	for _, tc := range targetCells {
		var overlaps []overlap
		var totalArea float64
		for _, sInt := range index.SearchIntersect(tc.Bounds()) {
			sc := sInt.(gridCell)
			isect := tc.Intersection(sc.Polygonal)
			if isect == nil {
				continue
			}
			a := isect.Area()
			if a <= 0 {
				continue
			}
			overlaps = append(overlaps, overlap{j: sc.j, i: sc.i, weight: a})
			totalArea += a
		}
		for t := 0; t < nt; t++ {
			out := FillValue
			if totalArea > 0 {
				sum := 0.
				ok := true
				for _, ov := range overlaps {
					v := f.Data.Elements[t*nySrc*nxSrc+ov.j*nxSrc+ov.i]
					if IsFill(v) {
						ok = false
						break
					}
					sum += v * ov.weight
				}
				if ok {
					out = sum / totalArea
				}
			}
			o.Data.Elements[t*ny*nx+tc.j*nx+tc.i] = out
		}
	}
	return o, nil
}
