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

// Package cmorize reformats raw observational datasets into the
// standardized climate-model-output convention: standard variable names,
// units, coordinate metadata, and file naming.
package cmorize

import (
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/esmtools/obsproc"
)

// timeRefYear is the reference year of the output time axis.
const timeRefYear = 1950

// Attributes describes the dataset being CMORized. The values appear in
// the global attributes and the output file names.
type Attributes struct {
	Project   string // e.g. "OBS"
	Dataset   string // e.g. "GISTEMP"
	Type      string // e.g. "ground"
	Version   string // e.g. "v4"
	Tier      int    // data access tier, 2 for freely available datasets
	Institute string
	Source    string // where the raw data was obtained
	Reference string
	Comment   string
}

// VarSpec selects one variable to extract from the raw dataset.
type VarSpec struct {
	// Short is the standardized short name, e.g. "tas".
	Short string
	// Raw is the variable name in the raw file. If empty, Short is used.
	Raw string
	// MIP is the variable table the short name belongs to, e.g. "Amon".
	MIP string
}

// Config holds the inputs of a CMORizer run.
type Config struct {
	// InDir holds the raw downloaded dataset.
	InDir string
	// OutDir receives the standardized output files.
	OutDir string
	// RawFile is the name of the gzipped raw file within InDir. The
	// token "{raw_name}" is replaced with the raw variable name.
	RawFile    string
	Attributes Attributes
	Variables  []VarSpec
}

// GISTEMPConfig returns the configuration for the GISTEMP surface
// temperature analysis with the given input and output directories.
func GISTEMPConfig(inDir, outDir string) Config {
	return Config{
		InDir:   inDir,
		OutDir:  outDir,
		RawFile: "gistemp250_GHCNv4.nc.gz",
		Attributes: Attributes{
			Project:   "OBS",
			Dataset:   "GISTEMP",
			Type:      "ground",
			Version:   "v4",
			Tier:      2,
			Institute: "NASA-GISS",
			Source:    "https://data.giss.nasa.gov/gistemp/",
			Reference: "Hansen, J., R. Ruedy, M. Sato, and K. Lo (2010), Global surface temperature change, Rev. Geophys., 48, RG4004, doi:10.1029/2010RG000345",
		},
		Variables: []VarSpec{
			{Short: "tasa", Raw: "tempanomaly", MIP: "Amon"},
		},
	}
}

// CMORizer reformats one raw observational dataset.
type CMORizer struct {
	Config
	Log logrus.FieldLogger
}

// New returns a CMORizer for the given configuration.
func New(cfg Config) *CMORizer {
	return &CMORizer{Config: cfg, Log: logrus.StandardLogger()}
}

// Run extracts and standardizes every configured variable. A variable
// whose raw archive is missing is skipped with a log message; any other
// failure aborts the run.
func (c *CMORizer) Run() error {
	if len(c.Variables) == 0 {
		return fmt.Errorf("cmorize: no variables configured for dataset %s", c.Attributes.Dataset)
	}
	if err := os.MkdirAll(c.OutDir, 0755); err != nil {
		return fmt.Errorf("cmorize: creating output directory: %v", err)
	}
	for _, v := range c.Variables {
		c.Log.Infof("CMORizing variable %q", v.Short)
		path, err := c.unzip(v)
		if err != nil {
			return err
		}
		if path == "" {
			continue
		}
		err = c.extractVariable(v, path)
		c.clean(path)
		if err != nil {
			return err
		}
	}
	return nil
}

// unzip decompresses the raw archive for v into the output directory,
// returning the path of the decompressed file. It returns an empty path
// if the archive does not exist.
func (c *CMORizer) unzip(v VarSpec) (string, error) {
	raw := v.Raw
	if raw == "" {
		raw = v.Short
	}
	zipPath := filepath.Join(c.InDir, strings.Replace(c.RawFile, "{raw_name}", raw, -1))
	if _, err := os.Stat(zipPath); err != nil {
		c.Log.Infof("skipping %q: input file %s not found", v.Short, zipPath)
		return "", nil
	}
	c.Log.Infof("found input file %s", zipPath)

	zf, err := os.Open(zipPath)
	if err != nil {
		return "", fmt.Errorf("cmorize: opening %s: %v", zipPath, err)
	}
	defer zf.Close()
	zr, err := gzip.NewReader(zf)
	if err != nil {
		return "", fmt.Errorf("cmorize: decompressing %s: %v", zipPath, err)
	}
	defer zr.Close()

	newPath := filepath.Join(c.OutDir, strings.TrimSuffix(filepath.Base(zipPath), ".gz"))
	out, err := os.Create(newPath)
	if err != nil {
		return "", fmt.Errorf("cmorize: creating %s: %v", newPath, err)
	}
	defer out.Close()
	if _, err := io.Copy(out, zr); err != nil {
		return "", fmt.Errorf("cmorize: decompressing %s: %v", zipPath, err)
	}
	c.Log.Infof("extracted file to %s", newPath)
	return newPath, nil
}

// clean removes a decompressed temporary file.
func (c *CMORizer) clean(path string) {
	if err := os.Remove(path); err == nil {
		c.Log.Infof("removed cached file %s", path)
	}
}

// extractVariable standardizes one variable from the decompressed raw
// file and writes it to the output directory.
func (c *CMORizer) extractVariable(v VarSpec, path string) error {
	raw := v.Raw
	if raw == "" {
		raw = v.Short
	}
	info, err := LookupVariable(v.MIP, v.Short)
	if err != nil {
		return err
	}
	f, err := obsproc.ReadField(path, raw)
	if err != nil {
		return err
	}

	// Fix units.
	if err := f.ConvertUnits(info.Units); err != nil {
		return err
	}
	if err := f.ConvertTimeUnits(timeRefYear); err != nil {
		return err
	}

	// Fix coordinates.
	if err := f.FixCoords(); err != nil {
		return err
	}
	if info.Height2m {
		f.AddHeight2m()
	}

	// Fix metadata.
	f.Name = info.Short
	f.StandardName = info.StandardName
	f.LongName = info.LongName
	if info.Positive != "" {
		if f.Attrs == nil {
			f.Attrs = make(map[string]string)
		}
		f.Attrs["positive"] = info.Positive
	}

	outPath, err := c.outputPath(f, v)
	if err != nil {
		return err
	}
	if err := obsproc.WriteFields(outPath, []*obsproc.Field{f}, c.globalAttrs(v)); err != nil {
		return err
	}
	c.Log.Infof("wrote %s", outPath)
	return nil
}

// outputPath builds the standardized output file name
// <project>_<dataset>_<type>_<version>_<mip>_<short>_<start>-<end>.nc.
func (c *CMORizer) outputPath(f *obsproc.Field, v VarSpec) (string, error) {
	start, end, err := f.TimeRange()
	if err != nil {
		return "", err
	}
	a := c.Attributes
	name := strings.Join([]string{
		a.Project, a.Dataset, a.Type, a.Version, v.MIP, v.Short,
		fmt.Sprintf("%04d%02d-%04d%02d", start.Year(), start.Month(), end.Year(), end.Month()),
	}, "_") + ".nc"
	return filepath.Join(c.OutDir, name), nil
}

func (c *CMORizer) globalAttrs(v VarSpec) map[string]string {
	a := c.Attributes
	attrs := map[string]string{
		"title":     fmt.Sprintf("%s data reformatted for standardized use", a.Dataset),
		"dataset":   a.Dataset,
		"version":   a.Version,
		"tier":      fmt.Sprintf("%d", a.Tier),
		"institute": a.Institute,
		"source":    a.Source,
		"reference": a.Reference,
		"mip":       v.MIP,
		"history":   fmt.Sprintf("Created on %s by obsproc v%s", time.Now().UTC().Format(time.RFC3339), obsproc.Version),
	}
	if a.Comment != "" {
		attrs["comment"] = a.Comment
	}
	return attrs
}
