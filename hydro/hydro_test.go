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

package hydro

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ctessum/cdf"

	"github.com/esmtools/obsproc"
)

// float32Tolerance accounts for data passing through single-precision
// NetCDF storage.
const float32Tolerance = 1.e-4

func TestGeopotentialToHeight(t *testing.T) {
	g := obsproc.NewField("z", nil, []float64{0, 10}, []float64{0, 10})
	g.Units = "m2 s-2"
	for i := range g.Data.Elements {
		g.Data.Elements[i] = 9806.65
	}
	o := GeopotentialToHeight(g)
	if o.Name != "orog" || o.Units != "m" {
		t.Errorf("metadata: name %q, units %q", o.Name, o.Units)
	}
	for i, v := range o.Data.Elements {
		if different(v, 1000, testTolerance) {
			t.Errorf("element %d = %g, want 1000", i, v)
			break
		}
	}
}

func TestRegridTemperature(t *testing.T) {
	lat := []float64{0, 10}
	lon := []float64{0, 10}
	tas := obsproc.NewField("tas", []float64{0, 1}, lat, lon)
	tas.Units = "K"
	for i := range tas.Data.Elements {
		tas.Data.Elements[i] = 288.15
	}
	orog := obsproc.NewField("orog", nil, lat, lon)
	for i := range orog.Data.Elements {
		orog.Data.Elements[i] = 1000
	}
	dem := obsproc.NewField("elevation", nil, lat, lon)
	for i := range dem.Data.Elements {
		dem.Data.Elements[i] = 500
	}

	got, err := RegridTemperature(tas, orog, dem, obsproc.Bilinear)
	if err != nil {
		t.Fatal(err)
	}
	// Correcting 1000 m down to sea level and back up to 500 m warms the
	// field by 0.0065 K/m * 500 m.
	want := 288.15 + 0.0065*500
	for i, v := range got.Data.Elements {
		if different(v, want, testTolerance) {
			t.Errorf("element %d = %g, want %g", i, v, want)
			break
		}
	}
	if got.Name != "tas" {
		t.Errorf("name = %q", got.Name)
	}

	// Correcting to the source elevation itself is the identity.
	same, err := RegridTemperature(tas, orog, orog, obsproc.Bilinear)
	if err != nil {
		t.Fatal(err)
	}
	for i, v := range same.Data.Elements {
		if different(v, 288.15, testTolerance) {
			t.Errorf("identity correction: element %d = %g, want 288.15", i, v)
			break
		}
	}
}

// writeForcingInput writes one time-varying input file for Run.
func writeForcingInput(t *testing.T, dir, name, units string, value float64) string {
	f := obsproc.NewField(name, []float64{0, 1}, []float64{0, 10}, []float64{0, 10})
	f.Units = units
	f.TimeUnits = "days since 1990-01-01 00:00:00"
	f.Calendar = "standard"
	for i := range f.Data.Elements {
		f.Data.Elements[i] = value
	}
	if err := f.FixCoords(); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(dir, name+".nc")
	if err := obsproc.WriteFields(path, []*obsproc.Field{f}, nil); err != nil {
		t.Fatal(err)
	}
	return path
}

// writeDEM writes a static elevation file the way hydrological model
// distributions ship them, without a time axis.
func writeDEM(t *testing.T, dir string, value float64) string {
	lat := []float64{2.5, 7.5}
	lon := []float64{2.5, 7.5}
	h := cdf.NewHeader([]string{"lat", "lon", "bnds"}, []int{len(lat), len(lon), 2})
	h.AddVariable("lat", []string{"lat"}, []float64{0})
	h.AddAttribute("lat", "units", "degrees_north")
	h.AddAttribute("lat", "bounds", "lat_bnds")
	h.AddVariable("lat_bnds", []string{"lat", "bnds"}, []float64{0})
	h.AddVariable("lon", []string{"lon"}, []float64{0})
	h.AddAttribute("lon", "units", "degrees_east")
	h.AddAttribute("lon", "bounds", "lon_bnds")
	h.AddVariable("lon_bnds", []string{"lon", "bnds"}, []float64{0})
	h.AddVariable("elevation", []string{"lat", "lon"}, []float64{0})
	h.AddAttribute("elevation", "units", "m")
	h.Define()
	for _, err := range h.Check() {
		t.Fatal(err)
	}

	path := filepath.Join(dir, "dem.nc")
	ff, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer ff.Close()
	f, err := cdf.Create(ff, h)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.Writer("lat", []int{0}, []int{len(lat)}).Write(lat); err != nil {
		t.Fatal(err)
	}
	if _, err := f.Writer("lon", []int{0}, []int{len(lon)}).Write(lon); err != nil {
		t.Fatal(err)
	}
	if _, err := f.Writer("lat_bnds", []int{0, 0}, []int{len(lat), 2}).Write([]float64{0, 5, 5, 10}); err != nil {
		t.Fatal(err)
	}
	if _, err := f.Writer("lon_bnds", []int{0, 0}, []int{len(lon), 2}).Write([]float64{0, 5, 5, 10}); err != nil {
		t.Fatal(err)
	}
	data := make([]float64, len(lat)*len(lon))
	for i := range data {
		data[i] = value
	}
	if _, err := f.Writer("elevation", []int{0, 0}, []int{len(lat), len(lon)}).Write(data); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestRunForcing(t *testing.T) {
	dir, err := ioutil.TempDir("", "hydro")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)
	outDir := filepath.Join(dir, "out")

	cfg := Config{
		Files: map[string][]string{
			"tas":  {writeForcingInput(t, dir, "tas", "K", 288.15)},
			"pr":   {writeForcingInput(t, dir, "pr", "kg m-2 s-1", 1e-5)},
			"psl":  {writeForcingInput(t, dir, "psl", "Pa", 100000)},
			"rsds": {writeForcingInput(t, dir, "rsds", "W m-2", 200)},
			"rsdt": {writeForcingInput(t, dir, "rsdt", "W m-2", 400)},
			"orog": {writeForcingInput(t, dir, "orog", "m", 100)},
		},
		DemFile:   writeDEM(t, dir, 50),
		OutDir:    outDir,
		Basin:     "Rhine",
		Dataset:   "ERA-Interim",
		StartYear: 1990,
		EndYear:   1990,
		Scheme:    "bilinear",
	}
	outPath, err := New(cfg).Run()
	if err != nil {
		t.Fatal(err)
	}
	if want := filepath.Join(outDir, "wflow_local_forcing_ERA-Interim_Rhine_1990_1990.nc"); outPath != want {
		t.Errorf("output path = %q, want %q", outPath, want)
	}

	pr, err := obsproc.ReadField(outPath, "pr")
	if err != nil {
		t.Fatal(err)
	}
	for i, v := range pr.Data.Elements {
		if different(v, 1e-5, float32Tolerance) {
			t.Errorf("pr element %d = %g, want 1e-5", i, v)
			break
		}
	}

	tas, err := obsproc.ReadField(outPath, "tas")
	if err != nil {
		t.Fatal(err)
	}
	// Lapse-rate corrected from 100 m source elevation to 50 m.
	want := 288.15 + 0.0065*(100-50)
	for i, v := range tas.Data.Elements {
		if different(v, want, float32Tolerance) {
			t.Errorf("tas element %d = %g, want %g", i, v, want)
			break
		}
	}

	pet, err := obsproc.ReadField(outPath, "pet")
	if err != nil {
		t.Fatal(err)
	}
	// De Bruin (2016) eq. 6 for T=15 degC, p=1000 hPa, rsds=200, rsdt=400.
	for i, v := range pet.Data.Elements {
		if different(v, 3.292811853516e-05, float32Tolerance) {
			t.Errorf("pet element %d = %g", i, v)
			break
		}
	}

	// The provenance sidecar lists every input file.
	b, err := ioutil.ReadFile(filepath.Join(outDir, "wflow_local_forcing_ERA-Interim_Rhine_1990_1990_provenance.json"))
	if err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"tas.nc", "pr.nc", "psl.nc", "rsds.nc", "rsdt.nc", "orog.nc", "dem.nc"} {
		if !strings.Contains(string(b), name) {
			t.Errorf("provenance record does not mention %s", name)
		}
	}
	if !strings.Contains(string(b), `"settings"`) {
		t.Error("provenance record carries no settings checksum")
	}
}

func TestRunMissingInput(t *testing.T) {
	cfg := Config{Files: map[string][]string{}, DemFile: "dem.nc", OutDir: "."}
	if _, err := New(cfg).Run(); err == nil {
		t.Error("expected error when input files are not configured")
	}
}
