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

package obsprocutil

import (
	"github.com/esmtools/obsproc/cmorize"
	"github.com/esmtools/obsproc/hydro"
	"github.com/esmtools/obsproc/monitor"
	"github.com/esmtools/obsproc/zmnam"
)

// Cmorize reformats the raw GISTEMP archive in inDir into CMIP-convention
// files in outDir. rawFile and version, if non-empty, override the
// dataset defaults.
func Cmorize(inDir, outDir, rawFile, version string) error {
	cfg := cmorize.GISTEMPConfig(inDir, outDir)
	if rawFile != "" {
		cfg.RawFile = rawFile
	}
	if version != "" {
		cfg.Attributes.Version = version
	}
	return cmorize.New(cfg).Run()
}

// Hydro generates the forcing file for a hydrological model from the
// given per-variable input files and target elevation model.
func Hydro(files map[string][]string, demFile, demVar, outDir, basin, dataset string,
	startYear, endYear int, scheme string) error {
	d := hydro.New(hydro.Config{
		Files:     files,
		DemFile:   demFile,
		DemVar:    demVar,
		OutDir:    outDir,
		Basin:     basin,
		Dataset:   dataset,
		StartYear: startYear,
		EndYear:   endYear,
		Scheme:    scheme,
	})
	_, err := d.Run()
	return err
}

// Zmnam renders the annular-mode diagnostics for the dataset identified
// by srcProps.
func Zmnam(dataDir, figDir string, srcProps []string) error {
	d := zmnam.New(zmnam.Config{
		DataDir:  dataDir,
		FigDir:   figDir,
		SrcProps: srcProps,
	})
	_, err := d.Run()
	return err
}

// Monitor renders comparison figures of one variable across the given
// datasets, with bias maps against refDataset when it is set.
func Monitor(files map[string][]string, variable, refDataset, figDir, scheme string) error {
	d := monitor.New(monitor.Config{
		Files:      files,
		Variable:   variable,
		RefDataset: refDataset,
		FigDir:     figDir,
		Scheme:     scheme,
	})
	_, err := d.Run()
	return err
}
