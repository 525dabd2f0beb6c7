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

// Package hydro derives forcing inputs for a distributed hydrological
// model from standardized meteorological fields: precipitation and
// elevation-corrected temperature regridded onto the model's digital
// elevation model, and De Bruin (2016) reference evapotranspiration.
package hydro

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/esmtools/obsproc"
)

const (
	// gravity is the acceleration due to gravity [m s-2].
	gravity = 9.80665
	// lapseRate is the environmental lapse rate [K m-1].
	lapseRate = 0.0065
)

// requiredVars are the variables a forcing run needs as input.
var requiredVars = []string{"tas", "pr", "psl", "rsds", "rsdt", "orog"}

// Config holds the inputs of a forcing run.
type Config struct {
	// Files maps each required variable short name to the NetCDF files
	// holding it, in time order.
	Files map[string][]string
	// DemFile is the digital elevation model that defines the target
	// grid and elevation. DemVar optionally names the elevation
	// variable; if empty the file's single data variable is used.
	DemFile string
	DemVar  string
	OutDir  string

	Basin   string
	Dataset string
	// StartYear and EndYear name the forcing period in the output file
	// name.
	StartYear, EndYear int
	// Scheme selects the regridding method ("bilinear" or
	// "conservative").
	Scheme string
}

// Diagnostic computes hydrological-model forcing from meteorological
// fields.
type Diagnostic struct {
	Config
	Log logrus.FieldLogger
}

// New returns a Diagnostic for the given configuration.
func New(cfg Config) *Diagnostic {
	return &Diagnostic{Config: cfg, Log: logrus.StandardLogger()}
}

// GeopotentialToHeight converts a geopotential field [m2 s-2] to
// geopotential height [m].
func GeopotentialToHeight(geopotential *obsproc.Field) *obsproc.Field {
	o := geopotential.Apply(func(v float64) float64 { return v / gravity })
	o.Name = "orog"
	o.StandardName = "surface_altitude"
	o.LongName = "Surface Altitude"
	o.Units = "m"
	return o
}

// RegridTemperature interpolates temperature onto the grid of dem with a
// lapse-rate elevation correction: the field is reduced to sea level
// using the source orography, interpolated, and then corrected back up
// to the target elevation.
func RegridTemperature(tas, orog, dem *obsproc.Field, scheme obsproc.RegridScheme) (*obsproc.Field, error) {
	if len(orog.Data.Shape) != 2 {
		return nil, fmt.Errorf("hydro: source orography must be static, got shape %v", orog.Data.Shape)
	}
	seaLevel, err := tas.AddStatic(orog, lapseRate)
	if err != nil {
		return nil, fmt.Errorf("hydro: correcting temperature to sea level: %v", err)
	}
	targetSeaLevel, err := obsproc.Regrid(seaLevel, dem.Grid(), scheme)
	if err != nil {
		return nil, err
	}
	target, err := targetSeaLevel.AddStatic(dem, -lapseRate)
	if err != nil {
		return nil, fmt.Errorf("hydro: correcting temperature to target elevation: %v", err)
	}
	target.Name = tas.Name
	return target, nil
}

// Run loads the input variables, derives the forcing fields, and writes
// the combined output file plus its provenance sidecar. It returns the
// output file path.
func (d *Diagnostic) Run() (string, error) {
	prov := obsproc.NewProvenance(fmt.Sprintf("Forcings for the %s hydrological model domain.", d.Basin))
	prov.Domains = []string{"global"}
	prov.RecordSettings(d.Config)

	fields := make(map[string]*obsproc.Field, len(requiredVars))
	for _, name := range requiredVars {
		paths := d.Files[name]
		if len(paths) == 0 {
			return "", fmt.Errorf("hydro: no input files configured for variable %s", name)
		}
		d.Log.Infof("loading variable %s", name)
		f, err := obsproc.ReadFieldMulti(paths, name)
		if err != nil {
			return "", err
		}
		if err := f.FixCoords(); err != nil {
			return "", err
		}
		fields[name] = f
		for _, p := range paths {
			if err := prov.AddAncestor(p); err != nil {
				return "", err
			}
		}
	}

	dem, err := d.loadDEM()
	if err != nil {
		return "", err
	}
	if err := prov.AddAncestor(d.DemFile); err != nil {
		return "", err
	}

	scheme, err := obsproc.ParseRegridScheme(d.Scheme)
	if err != nil {
		return "", err
	}

	orog := fields["orog"]
	if len(orog.Data.Shape) == 3 {
		// Some archives store orography with a length-one time axis.
		if orog, err = orog.TimeMean(); err != nil {
			return "", err
		}
	}

	d.Log.Infof("processing variable pr")
	prDem, err := obsproc.Regrid(fields["pr"], dem.Grid(), scheme)
	if err != nil {
		return "", err
	}

	d.Log.Infof("processing variable tas")
	tasDem, err := RegridTemperature(fields["tas"], orog, dem, scheme)
	if err != nil {
		return "", err
	}

	d.Log.Infof("processing variable pet")
	pet, err := DeBruinPET(fields["tas"], fields["psl"], fields["rsds"], fields["rsdt"])
	if err != nil {
		return "", err
	}
	petDem, err := obsproc.Regrid(pet, dem.Grid(), scheme)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(d.OutDir, 0755); err != nil {
		return "", fmt.Errorf("hydro: creating output directory: %v", err)
	}
	name := strings.Join([]string{
		"wflow_local_forcing", d.Dataset, d.Basin,
		fmt.Sprintf("%d", d.StartYear), fmt.Sprintf("%d", d.EndYear),
	}, "_") + ".nc"
	outPath := filepath.Join(d.OutDir, name)

	global := map[string]string{
		"title":   fmt.Sprintf("Hydrological forcing for the %s basin", d.Basin),
		"dataset": d.Dataset,
	}
	if err := obsproc.WriteFields(outPath, []*obsproc.Field{prDem, tasDem, petDem}, global); err != nil {
		return "", err
	}
	if _, err := prov.Write(outPath); err != nil {
		return "", err
	}
	d.Log.Infof("wrote %s", outPath)
	return outPath, nil
}

// loadDEM reads the target elevation model.
func (d *Diagnostic) loadDEM() (*obsproc.Field, error) {
	name := d.DemVar
	if name == "" {
		names, err := obsproc.ReadFieldNames(d.DemFile)
		if err != nil {
			return nil, err
		}
		if len(names) != 1 {
			return nil, fmt.Errorf("hydro: DEM file %s has %d data variables; set the elevation variable name",
				d.DemFile, len(names))
		}
		name = names[0]
	}
	dem, err := obsproc.ReadField(d.DemFile, name)
	if err != nil {
		return nil, err
	}
	if len(dem.Data.Shape) != 2 {
		return nil, fmt.Errorf("hydro: DEM variable %s must be static, got shape %v", name, dem.Data.Shape)
	}
	if err := dem.FixCoords(); err != nil {
		return nil, err
	}
	return dem, nil
}
