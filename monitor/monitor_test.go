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

package monitor

import (
	"io/ioutil"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/esmtools/obsproc"
)

const testTolerance = 1.e-10

func different(a, b, tolerance float64) bool {
	if math.IsNaN(a) != math.IsNaN(b) {
		return true
	}
	return math.Abs(a-b) > tolerance*math.Max(math.Abs(a), math.Abs(b))
}

func TestSpatialMean(t *testing.T) {
	f := obsproc.NewField("tas", []float64{0, 1}, []float64{0, 60}, []float64{0, 10})
	// First step: 10 at the equator row, 20 at 60 degrees north, so the
	// cosine-weighted mean is (10 + 20*0.5) / 1.5.
	f.Data.Set(10, 0, 0, 0)
	f.Data.Set(10, 0, 0, 1)
	f.Data.Set(20, 0, 1, 0)
	f.Data.Set(20, 0, 1, 1)
	// Second step: only the equator row is valid.
	f.Data.Set(30, 1, 0, 0)
	f.Data.Set(30, 1, 0, 1)
	f.Data.Set(obsproc.FillValue, 1, 1, 0)
	f.Data.Set(obsproc.FillValue, 1, 1, 1)

	mean := spatialMean(f)
	if len(mean) != 2 {
		t.Fatalf("len(mean) = %d, want 2", len(mean))
	}
	if want := 20.0 / 1.5; different(mean[0], want, testTolerance) {
		t.Errorf("mean[0] = %g, want %g", mean[0], want)
	}
	if different(mean[1], 30, testTolerance) {
		t.Errorf("mean[1] = %g, want 30", mean[1])
	}
}

func TestSpatialMeanAllFill(t *testing.T) {
	f := obsproc.NewField("tas", []float64{0}, []float64{0, 10}, []float64{0, 10})
	for i := range f.Data.Elements {
		f.Data.Elements[i] = obsproc.FillValue
	}
	mean := spatialMean(f)
	if !obsproc.IsFill(mean[0]) {
		t.Errorf("mean of an all-fill step = %g, want fill", mean[0])
	}
}

// writeDataset writes one input file holding a uniform tas field.
func writeDataset(t *testing.T, dir, dataset string, value float64) string {
	f := obsproc.NewField("tas", []float64{0, 30}, []float64{0, 10}, []float64{0, 10})
	f.LongName = "Near-Surface Air Temperature"
	f.Units = "K"
	f.TimeUnits = "days since 1990-01-01 00:00:00"
	f.Calendar = "standard"
	for i := range f.Data.Elements {
		f.Data.Elements[i] = value
	}
	if err := f.FixCoords(); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(dir, "tas_"+dataset+".nc")
	if err := obsproc.WriteFields(path, []*obsproc.Field{f}, nil); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestRun(t *testing.T) {
	dir, err := ioutil.TempDir("", "monitor")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)

	d := New(Config{
		Files: map[string][]string{
			"ERA-Interim": {writeDataset(t, dir, "ERA-Interim", 288)},
			"ERA5":        {writeDataset(t, dir, "ERA5", 290)},
		},
		Variable:   "tas",
		RefDataset: "ERA5",
		FigDir:     filepath.Join(dir, "figures"),
		Scheme:     "bilinear",
	})
	written, err := d.Run()
	if err != nil {
		t.Fatal(err)
	}
	want := []string{
		"tas_timeseries.png",
		"tas_ERA-Interim_map.png",
		"tas_ERA5_map.png",
		"tas_ERA-Interim_bias.png",
	}
	if len(written) != len(want) {
		t.Fatalf("wrote %d files %v, want %d", len(written), written, len(want))
	}
	for i, name := range want {
		if filepath.Base(written[i]) != name {
			t.Errorf("file %d = %s, want %s", i, filepath.Base(written[i]), name)
		}
		info, err := os.Stat(written[i])
		if err != nil {
			t.Errorf("missing output %s: %v", name, err)
			continue
		}
		if info.Size() == 0 {
			t.Errorf("output %s is empty", name)
		}
	}
}

func TestRunNoReference(t *testing.T) {
	dir, err := ioutil.TempDir("", "monitor")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)

	d := New(Config{
		Files: map[string][]string{
			"ERA5": {writeDataset(t, dir, "ERA5", 290)},
		},
		Variable: "tas",
		FigDir:   filepath.Join(dir, "figures"),
		Scheme:   "bilinear",
	})
	written, err := d.Run()
	if err != nil {
		t.Fatal(err)
	}
	// No reference dataset, so no bias maps.
	if len(written) != 2 {
		t.Fatalf("wrote %d files %v, want 2", len(written), written)
	}
}

func TestRunConfigErrors(t *testing.T) {
	files := map[string][]string{"ERA5": {"tas.nc"}}
	tests := []struct {
		name string
		cfg  Config
	}{
		{"no variable", Config{Files: files, Scheme: "bilinear"}},
		{"no datasets", Config{Variable: "tas", Scheme: "bilinear"}},
		{"unknown reference", Config{Files: files, Variable: "tas", RefDataset: "ERA-Interim", Scheme: "bilinear"}},
		{"bad scheme", Config{Files: files, Variable: "tas", Scheme: "cubic"}},
	}
	for _, test := range tests {
		if _, err := New(test.cfg).Run(); err == nil {
			t.Errorf("%s: no error", test.name)
		}
	}
}

func TestZeroBias(t *testing.T) {
	f := obsproc.NewField("tas", []float64{0}, []float64{0, 10}, []float64{0, 10})
	for i := range f.Data.Elements {
		f.Data.Elements[i] = 288
	}
	mean, err := f.TimeMean()
	if err != nil {
		t.Fatal(err)
	}
	onRef, err := obsproc.Regrid(mean, mean.Grid(), obsproc.Bilinear)
	if err != nil {
		t.Fatal(err)
	}
	bias, err := onRef.Combine(mean, func(a, b float64) float64 { return a - b })
	if err != nil {
		t.Fatal(err)
	}
	for i, v := range bias.Data.Elements {
		if math.Abs(v) > 1.e-9 {
			t.Errorf("bias element %d = %g, want 0", i, v)
			break
		}
	}
}
