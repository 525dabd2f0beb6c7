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

import "testing"

// linearField builds a field whose values are a linear function of the
// coordinates, so bilinear interpolation reproduces it exactly.
func linearField(lat, lon []float64) *Field {
	f := NewField("tas", []float64{0}, lat, lon)
	for j, y := range lat {
		for i, x := range lon {
			f.Data.Set(2*y+0.5*x+10, 0, j, i)
		}
	}
	return f
}

func TestParseRegridScheme(t *testing.T) {
	tests := []struct {
		in      string
		want    RegridScheme
		wantErr bool
	}{
		{"bilinear", Bilinear, false},
		{"linear", Bilinear, false},
		{"", Bilinear, false},
		{"conservative", Conservative, false},
		{"area_weighted", Conservative, false},
		{"cubic", 0, true},
	}
	for _, test := range tests {
		got, err := ParseRegridScheme(test.in)
		if test.wantErr {
			if err == nil {
				t.Errorf("%q: expected error", test.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("%q: %v", test.in, err)
		} else if got != test.want {
			t.Errorf("%q: got %v, want %v", test.in, got, test.want)
		}
	}
}

func TestRegridBilinear(t *testing.T) {
	src := linearField([]float64{0, 10, 20, 30}, []float64{0, 10, 20, 30})
	target := Grid{Lat: []float64{5, 15, 25}, Lon: []float64{2.5, 12.5, 22.5}}
	o, err := Regrid(src, target, Bilinear)
	if err != nil {
		t.Fatal(err)
	}
	for j, y := range target.Lat {
		for i, x := range target.Lon {
			want := 2*y + 0.5*x + 10
			if got := o.Data.Get(0, j, i); different(got, want, testTolerance) {
				t.Errorf("(%g, %g): got %g, want %g", y, x, got, want)
			}
		}
	}
}

func TestRegridBilinearClamp(t *testing.T) {
	src := linearField([]float64{0, 10}, []float64{0, 10})
	// Targets outside the source hull take the edge value.
	target := Grid{Lat: []float64{-5, 15}, Lon: []float64{-5, 15}}
	o, err := Regrid(src, target, Bilinear)
	if err != nil {
		t.Fatal(err)
	}
	if got, want := o.Data.Get(0, 0, 0), src.Data.Get(0, 0, 0); different(got, want, testTolerance) {
		t.Errorf("lower-left clamp: got %g, want %g", got, want)
	}
	if got, want := o.Data.Get(0, 1, 1), src.Data.Get(0, 1, 1); different(got, want, testTolerance) {
		t.Errorf("upper-right clamp: got %g, want %g", got, want)
	}
}

func TestRegridBilinearFill(t *testing.T) {
	src := linearField([]float64{0, 10, 20}, []float64{0, 10, 20})
	src.Data.Set(FillValue, 0, 1, 1)
	target := Grid{Lat: []float64{5, 15}, Lon: []float64{5, 15}}
	o, err := Regrid(src, target, Bilinear)
	if err != nil {
		t.Fatal(err)
	}
	// Every target point has the fill-valued source point as a corner.
	for j := range target.Lat {
		for i := range target.Lon {
			if got := o.Data.Get(0, j, i); !IsFill(got) {
				t.Errorf("(%d, %d): fill corner interpolated to %g", j, i, got)
			}
		}
	}
}

func TestRegridConservative(t *testing.T) {
	// A constant field stays constant under area-weighted averaging.
	src := NewField("pr", []float64{0}, []float64{5, 15, 25, 35}, []float64{5, 15, 25, 35})
	for i := range src.Data.Elements {
		src.Data.Elements[i] = 3
	}
	target := Grid{Lat: []float64{10, 30}, Lon: []float64{10, 30}}
	o, err := Regrid(src, target, Conservative)
	if err != nil {
		t.Fatal(err)
	}
	for j := range target.Lat {
		for i := range target.Lon {
			if got := o.Data.Get(0, j, i); different(got, 3, testTolerance) {
				t.Errorf("(%d, %d): got %g, want 3", j, i, got)
			}
		}
	}
}

func TestRegridConservativeAverage(t *testing.T) {
	// A target cell covering two equal-area source cells averages them.
	src := NewField("pr", []float64{0}, []float64{5, 15}, []float64{5, 15})
	src.Data.Set(2, 0, 0, 0)
	src.Data.Set(4, 0, 0, 1)
	src.Data.Set(2, 0, 1, 0)
	src.Data.Set(4, 0, 1, 1)
	target := Grid{
		Lat: []float64{10}, Lon: []float64{10},
		LatBounds: []float64{0, 20}, LonBounds: []float64{0, 20},
	}
	o, err := Regrid(src, target, Conservative)
	if err != nil {
		t.Fatal(err)
	}
	if got := o.Data.Get(0, 0, 0); different(got, 3, testTolerance) {
		t.Errorf("got %g, want 3", got)
	}
}

func TestRegridConservativeFill(t *testing.T) {
	src := NewField("pr", []float64{0}, []float64{5, 15}, []float64{5, 15})
	src.Data.Set(FillValue, 0, 0, 0)
	target := Grid{
		Lat: []float64{10}, Lon: []float64{10},
		LatBounds: []float64{0, 20}, LonBounds: []float64{0, 20},
	}
	o, err := Regrid(src, target, Conservative)
	if err != nil {
		t.Fatal(err)
	}
	if got := o.Data.Get(0, 0, 0); !IsFill(got) {
		t.Errorf("fill contribution averaged to %g", got)
	}

	// A target cell with no source coverage is fill.
	far := Grid{
		Lat: []float64{100}, Lon: []float64{100},
		LatBounds: []float64{90, 110}, LonBounds: []float64{90, 110},
	}
	o, err = Regrid(src, far, Conservative)
	if err != nil {
		t.Fatal(err)
	}
	if got := o.Data.Get(0, 0, 0); !IsFill(got) {
		t.Errorf("uncovered target cell got %g", got)
	}
}

func TestRegridErrors(t *testing.T) {
	small := NewField("x", nil, []float64{0}, []float64{0, 10})
	if _, err := Regrid(small, Grid{Lat: []float64{0}, Lon: []float64{0}}, Bilinear); err == nil {
		t.Error("expected error for 1xN source grid")
	}
	descending := NewField("x", nil, []float64{10, 0}, []float64{0, 10})
	if _, err := Regrid(descending, Grid{Lat: []float64{5}, Lon: []float64{5}}, Bilinear); err == nil {
		t.Error("expected error for descending axis")
	}
}
