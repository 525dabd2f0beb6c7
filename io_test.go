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
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	"github.com/ctessum/cdf"
)

// float32Tolerance accounts for data being stored as single precision.
const float32Tolerance = 1.e-6

func writeTestFile(t *testing.T, dir string) (string, *Field) {
	f := NewField("tas", []float64{15.5, 45}, []float64{-45, 0, 45}, []float64{0, 90, 180, 270})
	f.StandardName = "air_temperature"
	f.LongName = "Near-Surface Air Temperature"
	f.Units = "K"
	f.TimeUnits = "days since 1950-01-01 00:00:00"
	f.Calendar = "standard"
	for i := range f.Data.Elements {
		f.Data.Elements[i] = 250 + float64(i)
	}
	f.Data.Set(FillValue, 1, 2, 3)
	if err := f.FixCoords(); err != nil {
		t.Fatal(err)
	}
	f.AddHeight2m()

	path := filepath.Join(dir, "tas.nc")
	err := WriteFields(path, []*Field{f}, map[string]string{"title": "test data"})
	if err != nil {
		t.Fatal(err)
	}
	return path, f
}

func TestWriteReadRoundTrip(t *testing.T) {
	dir, err := ioutil.TempDir("", "obsproc")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)

	path, want := writeTestFile(t, dir)
	got, err := ReadField(path, "tas")
	if err != nil {
		t.Fatal(err)
	}

	if got.Units != want.Units || got.StandardName != want.StandardName {
		t.Errorf("metadata: got %q %q, want %q %q",
			got.Units, got.StandardName, want.Units, want.StandardName)
	}
	if got.TimeUnits != want.TimeUnits || got.Calendar != want.Calendar {
		t.Errorf("time metadata: got %q %q, want %q %q",
			got.TimeUnits, got.Calendar, want.TimeUnits, want.Calendar)
	}
	if !floatsEqual(got.Lat, want.Lat) || !floatsEqual(got.Lon, want.Lon) {
		t.Errorf("coordinates differ: got %v %v, want %v %v", got.Lat, got.Lon, want.Lat, want.Lon)
	}
	if !floatsEqual(got.Time, want.Time) {
		t.Errorf("time axis: got %v, want %v", got.Time, want.Time)
	}
	if len(got.LatBounds) != len(want.LatBounds) {
		t.Errorf("got %d latitude bounds, want %d", len(got.LatBounds), len(want.LatBounds))
	}
	for i, w := range want.Data.Elements {
		g := got.Data.Elements[i]
		if IsFill(w) {
			if !IsFill(g) {
				t.Errorf("element %d: fill read back as %g", i, g)
			}
			continue
		}
		if different(g, w, float32Tolerance) {
			t.Errorf("element %d: got %g, want %g", i, g, w)
		}
	}
}

func TestWriteScalarCoordinate(t *testing.T) {
	dir, err := ioutil.TempDir("", "obsproc")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)

	path, _ := writeTestFile(t, dir)
	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	ff, err := cdf.Open(f)
	if err != nil {
		t.Fatal(err)
	}
	if coords := AttrString(ff, "tas", "coordinates"); coords != "height" {
		t.Errorf("tas coordinates = %q, want height", coords)
	}
	if units := AttrString(ff, "height", "units"); units != "m" {
		t.Errorf("height units = %q, want m", units)
	}
	v, err := ReadVar(ff, "height")
	if err != nil {
		t.Fatal(err)
	}
	if len(v) != 1 || v[0] != 2 {
		t.Errorf("height = %v, want [2]", v)
	}
}

func TestReadFieldNames(t *testing.T) {
	dir, err := ioutil.TempDir("", "obsproc")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)

	path, _ := writeTestFile(t, dir)
	names, err := ReadFieldNames(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(names) != 1 || names[0] != "tas" {
		t.Errorf("got %v, want [tas]", names)
	}
}

func TestReadFieldMissingVariable(t *testing.T) {
	dir, err := ioutil.TempDir("", "obsproc")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)

	path, _ := writeTestFile(t, dir)
	if _, err := ReadField(path, "nosuchvar"); err == nil {
		t.Error("expected error for missing variable")
	}
}

func TestReadFieldMulti(t *testing.T) {
	dir, err := ioutil.TempDir("", "obsproc")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)

	lat := []float64{0, 10}
	lon := []float64{0, 10}
	var paths []string
	for k, times := range [][]float64{{0, 1}, {2, 3}} {
		f := NewField("pr", times, lat, lon)
		f.Units = "kg m-2 s-1"
		f.TimeUnits = "days since 1990-01-01 00:00:00"
		f.Calendar = "standard"
		for i := range f.Data.Elements {
			f.Data.Elements[i] = float64(k*100 + i)
		}
		if err := f.FixCoords(); err != nil {
			t.Fatal(err)
		}
		path := filepath.Join(dir, "pr_"+string(rune('a'+k))+".nc")
		if err := WriteFields(path, []*Field{f}, nil); err != nil {
			t.Fatal(err)
		}
		paths = append(paths, path)
	}

	got, err := ReadFieldMulti(paths, "pr")
	if err != nil {
		t.Fatal(err)
	}
	if got.NT() != 4 {
		t.Fatalf("got %d time steps, want 4", got.NT())
	}
	if !floatsEqual(got.Time, []float64{0, 1, 2, 3}) {
		t.Errorf("time axis: got %v", got.Time)
	}
	if g := got.Data.Get(2, 0, 0); different(g, 100, float32Tolerance) {
		t.Errorf("first element of second file: got %g, want 100", g)
	}

	// Overlapping time axes are rejected.
	if _, err := ReadFieldMulti([]string{paths[0], paths[0]}, "pr"); err == nil {
		t.Error("expected error for non-increasing concatenated time axis")
	}
}
