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

package cmorize

import "fmt"

// VarInfo holds the convention metadata for one variable in one
// variable table.
type VarInfo struct {
	Short        string
	StandardName string
	LongName     string
	Units        string
	Positive     string
	// Height2m indicates that the variable is reported at the standard
	// 2 m near-surface measurement height.
	Height2m bool
}

// cmorTable is the subset of the CMIP variable tables needed for the
// supported observational datasets, keyed by table (MIP) and short name.
var cmorTable = map[string]map[string]VarInfo{
	"Amon": {
		"tas": {
			Short:        "tas",
			StandardName: "air_temperature",
			LongName:     "Near-Surface Air Temperature",
			Units:        "K",
			Height2m:     true,
		},
		"tasa": {
			Short:        "tasa",
			StandardName: "air_temperature_anomaly",
			LongName:     "Near-Surface Air Temperature Anomaly",
			Units:        "K",
			Height2m:     true,
		},
		"pr": {
			Short:        "pr",
			StandardName: "precipitation_flux",
			LongName:     "Precipitation",
			Units:        "kg m-2 s-1",
		},
		"psl": {
			Short:        "psl",
			StandardName: "air_pressure_at_mean_sea_level",
			LongName:     "Sea Level Pressure",
			Units:        "Pa",
		},
		"rsds": {
			Short:        "rsds",
			StandardName: "surface_downwelling_shortwave_flux_in_air",
			LongName:     "Surface Downwelling Shortwave Radiation",
			Units:        "W m-2",
			Positive:     "down",
		},
		"rsdt": {
			Short:        "rsdt",
			StandardName: "toa_incoming_shortwave_flux",
			LongName:     "TOA Incident Shortwave Radiation",
			Units:        "W m-2",
			Positive:     "down",
		},
	},
	"fx": {
		"orog": {
			Short:        "orog",
			StandardName: "surface_altitude",
			LongName:     "Surface Altitude",
			Units:        "m",
		},
	},
}

// LookupVariable returns the convention metadata for the given table and
// variable short name.
func LookupVariable(mip, short string) (VarInfo, error) {
	t, ok := cmorTable[mip]
	if !ok {
		return VarInfo{}, fmt.Errorf("cmorize: unknown variable table %q", mip)
	}
	v, ok := t[short]
	if !ok {
		return VarInfo{}, fmt.Errorf("cmorize: variable %q not in table %q", short, mip)
	}
	return v, nil
}
