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

// Package obsprocutil holds the obsproc command-line interface.
package obsprocutil

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"github.com/lnashier/viper"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/esmtools/obsproc"
)

// Cfg holds configuration information.
var Cfg *viper.Viper

var options []struct {
	name, usage, shorthand string
	defaultVal             interface{}
	flagsets               []*pflag.FlagSet
}

func init() {
	// Options are the configuration options available to ObsProc.
	options = []struct {
		name, usage, shorthand string
		defaultVal             interface{}
		flagsets               []*pflag.FlagSet
	}{
		{
			name: "config",
			usage: `
              config specifies the configuration file location.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name: "Cmorize.InDir",
			usage: `
              Cmorize.InDir is the directory holding the raw observational
              archives to be reformatted. The path can include environment
              variables.`,
			defaultVal: ".",
			flagsets:   []*pflag.FlagSet{cmorizeCmd.Flags()},
		},
		{
			name: "Cmorize.OutDir",
			usage: `
              Cmorize.OutDir is the directory the reformatted files are
              written to. It is created if it does not exist. The path can
              include environment variables.`,
			defaultVal: "cmorized",
			flagsets:   []*pflag.FlagSet{cmorizeCmd.Flags()},
		},
		{
			name: "Cmorize.RawFile",
			usage: `
              Cmorize.RawFile overrides the name of the raw gzip archive
              inside Cmorize.InDir. If empty, the dataset's default archive
              name is used.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{cmorizeCmd.Flags()},
		},
		{
			name: "Cmorize.Version",
			usage: `
              Cmorize.Version overrides the dataset version recorded in the
              output file names and global attributes.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{cmorizeCmd.Flags()},
		},
		{
			name: "Hydro.Files",
			usage: `
              Hydro.Files maps each input variable short name to the NetCDF
              files holding it, in time order. Each entry may be a local path
              or an http(s) URL, and can include environment variables.`,
			defaultVal: map[string][]string{
				"tas": nil, "pr": nil, "psl": nil,
				"rsds": nil, "rsdt": nil, "orog": nil,
			},
			flagsets: []*pflag.FlagSet{hydroCmd.Flags()},
		},
		{
			name: "Hydro.DemFile",
			usage: `
              Hydro.DemFile is the digital elevation model that defines the
              target grid and elevation of the forcing output. It may be a
              local path or an http(s) URL.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{hydroCmd.Flags()},
		},
		{
			name: "Hydro.DemVar",
			usage: `
              Hydro.DemVar names the elevation variable inside Hydro.DemFile.
              If empty, the file must hold a single data variable.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{hydroCmd.Flags()},
		},
		{
			name: "Hydro.OutDir",
			usage: `
              Hydro.OutDir is the directory the forcing file and its
              provenance record are written to.`,
			defaultVal: "forcing",
			flagsets:   []*pflag.FlagSet{hydroCmd.Flags()},
		},
		{
			name: "Hydro.Basin",
			usage: `
              Hydro.Basin names the river basin the forcing is generated
              for. It appears in the output file name.`,
			defaultVal: "Meuse",
			flagsets:   []*pflag.FlagSet{hydroCmd.Flags()},
		},
		{
			name: "Hydro.Dataset",
			usage: `
              Hydro.Dataset names the source dataset of the meteorological
              inputs. It appears in the output file name.`,
			defaultVal: "ERA-Interim",
			flagsets:   []*pflag.FlagSet{hydroCmd.Flags()},
		},
		{
			name: "Hydro.StartYear",
			usage: `
              Hydro.StartYear is the first year of the forcing period.`,
			defaultVal: 1990,
			flagsets:   []*pflag.FlagSet{hydroCmd.Flags()},
		},
		{
			name: "Hydro.EndYear",
			usage: `
              Hydro.EndYear is the last year of the forcing period.`,
			defaultVal: 2018,
			flagsets:   []*pflag.FlagSet{hydroCmd.Flags()},
		},
		{
			name: "Hydro.RegridScheme",
			usage: `
              Hydro.RegridScheme selects the horizontal interpolation method.
              Valid options are "bilinear" and "conservative".`,
			defaultVal: "bilinear",
			flagsets:   []*pflag.FlagSet{hydroCmd.Flags()},
		},
		{
			name: "Zmnam.DataDir",
			usage: `
              Zmnam.DataDir is the directory holding the precomputed annular
              mode index and height-anomaly files. The regression maps are
              written back to it.`,
			defaultVal: ".",
			flagsets:   []*pflag.FlagSet{zmnamCmd.Flags()},
		},
		{
			name: "Zmnam.FigDir",
			usage: `
              Zmnam.FigDir is the directory the rendered figures are written
              to. It is created if it does not exist.`,
			defaultVal: "figures",
			flagsets:   []*pflag.FlagSet{zmnamCmd.Flags()},
		},
		{
			name: "Zmnam.SrcProps",
			usage: `
              Zmnam.SrcProps is the dataset, experiment, ensemble triple that
              prefixes the input file names and labels the figures.`,
			defaultVal: []string{},
			flagsets:   []*pflag.FlagSet{zmnamCmd.Flags()},
		},
		{
			name: "Monitor.Files",
			usage: `
              Monitor.Files maps each dataset name to the NetCDF files holding
              the monitored variable, as a JSON object of string arrays. The
              files of each dataset are concatenated in time order.`,
			defaultVal: map[string][]string{},
			flagsets:   []*pflag.FlagSet{monitorCmd.Flags()},
		},
		{
			name: "Monitor.Variable",
			usage: `
              Monitor.Variable is the short name of the variable to monitor.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{monitorCmd.Flags()},
		},
		{
			name: "Monitor.RefDataset",
			usage: `
              Monitor.RefDataset optionally names the dataset the others are
              compared against in bias maps. It must be a key of
              Monitor.Files. When empty, no bias maps are rendered.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{monitorCmd.Flags()},
		},
		{
			name: "Monitor.FigDir",
			usage: `
              Monitor.FigDir is the directory the rendered figures are written
              to. It is created if it does not exist.`,
			defaultVal: "figures",
			flagsets:   []*pflag.FlagSet{monitorCmd.Flags()},
		},
		{
			name: "Monitor.RegridScheme",
			usage: `
              Monitor.RegridScheme selects the horizontal interpolation method
              used to put datasets on the reference grid for bias maps. Valid
              options are "bilinear" and "conservative".`,
			defaultVal: "bilinear",
			flagsets:   []*pflag.FlagSet{monitorCmd.Flags()},
		},
	}

	Cfg = viper.New()

	// Set the prefix for configuration environment variables.
	Cfg.SetEnvPrefix("OBSPROC")

	for _, option := range options {
		for i, set := range option.flagsets {
			if i != 0 { // We don't want to create the same flag twice.
				set.AddFlag(option.flagsets[0].Lookup(option.name))
				continue
			}
			switch option.defaultVal.(type) {
			case string:
				if option.shorthand == "" {
					set.String(option.name, option.defaultVal.(string), option.usage)
				} else {
					set.StringP(option.name, option.shorthand, option.defaultVal.(string), option.usage)
				}
			case []string:
				if option.shorthand == "" {
					set.StringSlice(option.name, option.defaultVal.([]string), option.usage)
				} else {
					set.StringSliceP(option.name, option.shorthand, option.defaultVal.([]string), option.usage)
				}
			case bool:
				if option.shorthand == "" {
					set.Bool(option.name, option.defaultVal.(bool), option.usage)
				} else {
					set.BoolP(option.name, option.shorthand, option.defaultVal.(bool), option.usage)
				}
			case int:
				if option.shorthand == "" {
					set.Int(option.name, option.defaultVal.(int), option.usage)
				} else {
					set.IntP(option.name, option.shorthand, option.defaultVal.(int), option.usage)
				}
			case float64:
				if option.shorthand == "" {
					set.Float64(option.name, option.defaultVal.(float64), option.usage)
				} else {
					set.Float64P(option.name, option.shorthand, option.defaultVal.(float64), option.usage)
				}
			case map[string][]string:
				b := bytes.NewBuffer(nil)
				e := json.NewEncoder(b)
				e.Encode(option.defaultVal)
				s := string(b.Bytes())
				if option.shorthand == "" {
					set.String(option.name, s, option.usage)
				} else {
					set.StringP(option.name, option.shorthand, s, option.usage)
				}
			default:
				panic("invalid argument type")
			}
			Cfg.BindPFlag(option.name, set.Lookup(option.name))
		}
	}
}

func init() {
	// Link the commands together.
	Root.AddCommand(versionCmd)
	Root.AddCommand(cmorizeCmd)
	Root.AddCommand(hydroCmd)
	Root.AddCommand(zmnamCmd)
	Root.AddCommand(monitorCmd)
}

// outChan returns a channel printing to standard output.
func outChan() chan string {
	outChan := make(chan string)
	go func() {
		for {
			msg := <-outChan
			fmt.Printf(msg)
		}
	}()
	return outChan
}

// setConfig finds and reads in the configuration file, if there is one.
func setConfig() error {
	if cfgpath := Cfg.GetString("config"); cfgpath != "" {
		Cfg.SetConfigFile(cfgpath)
		if err := Cfg.ReadInConfig(); err != nil {
			return fmt.Errorf("obsproc: problem reading configuration file: %v", err)
		}
	}
	return nil
}

// Root is the main command.
var Root = &cobra.Command{
	Use:   "obsproc",
	Short: "Observational climate-data processing utilities.",
	Long: `ObsProc reformats observational climate datasets, generates hydrological
model forcing from meteorological fields, and renders annular-mode
diagnostics. Use the subcommands specified below to access the
functionality.

Refer to the subcommand documentation for configuration options and default
settings. Configuration can be changed by using a configuration file (and
providing the path to the file using the --config flag), by using
command-line arguments, or by setting environment variables in the format
'OBSPROC_var' where 'var' is the name of the variable to be set. Many
configuration variables are additionally allowed to contain environment
variables within them.
Refer to https://github.com/spf13/viper for additional configuration
information.`,
	DisableAutoGenTag: true,
	PersistentPreRunE: func(*cobra.Command, []string) error { return setConfig() },
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Long:  "version prints the version number of this version of ObsProc.",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Printf("ObsProc v%s\n", obsproc.Version)
	},
	DisableAutoGenTag: true,
}

// cmorizeCmd reformats a raw observational dataset.
var cmorizeCmd = &cobra.Command{
	Use:   "cmorize",
	Short: "Reformat a raw observational dataset",
	Long: `cmorize reformats the raw GISTEMP surface-temperature-anomaly archive in
Cmorize.InDir into files following the CMIP data convention: standardized
variable names, units, coordinate metadata, and file names. Variables whose
archive is absent from Cmorize.InDir are skipped with a log message.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return Cmorize(
			os.ExpandEnv(Cfg.GetString("Cmorize.InDir")),
			os.ExpandEnv(Cfg.GetString("Cmorize.OutDir")),
			Cfg.GetString("Cmorize.RawFile"),
			Cfg.GetString("Cmorize.Version"),
		)
	},
	DisableAutoGenTag: true,
}

// hydroCmd generates hydrological-model forcing.
var hydroCmd = &cobra.Command{
	Use:   "hydro",
	Short: "Generate hydrological-model forcing",
	Long: `hydro regrids precipitation and lapse-rate-corrected temperature onto the
elevation model given by Hydro.DemFile, derives De Bruin (2016) reference
evapotranspiration from temperature, pressure, and radiation, and writes the
combined forcing file together with a provenance record of its inputs.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		outChan := outChan()

		files, err := getStringMapStringSlice("Hydro.Files", Cfg)
		if err != nil {
			return err
		}
		for name, paths := range files {
			paths = expandStringSlice(paths)
			for i := range paths {
				paths[i] = maybeDownload(paths[i], outChan)
			}
			files[name] = paths
		}
		return Hydro(
			files,
			maybeDownload(os.ExpandEnv(Cfg.GetString("Hydro.DemFile")), outChan),
			Cfg.GetString("Hydro.DemVar"),
			os.ExpandEnv(Cfg.GetString("Hydro.OutDir")),
			Cfg.GetString("Hydro.Basin"),
			Cfg.GetString("Hydro.Dataset"),
			Cfg.GetInt("Hydro.StartYear"),
			Cfg.GetInt("Hydro.EndYear"),
			Cfg.GetString("Hydro.RegridScheme"),
		)
	},
	DisableAutoGenTag: true,
}

// zmnamCmd renders annular-mode diagnostics.
var zmnamCmd = &cobra.Command{
	Use:   "zmnam",
	Short: "Render annular-mode diagnostics",
	Long: `zmnam reads precomputed zonal-mean annular-mode index time series and
geopotential-height anomalies from Zmnam.DataDir and renders, per pressure
level, a monthly index time-series chart, a daily-index PDF against a unit
Gaussian, and a regression map of the height field onto the monthly index.
The regression maps are also written back to a NetCDF file.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return Zmnam(
			os.ExpandEnv(Cfg.GetString("Zmnam.DataDir")),
			os.ExpandEnv(Cfg.GetString("Zmnam.FigDir")),
			Cfg.GetStringSlice("Zmnam.SrcProps"),
		)
	},
	DisableAutoGenTag: true,
}

// monitorCmd renders multi-dataset monitoring figures.
var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Render multi-dataset monitoring figures",
	Long: `monitor loads Monitor.Variable from every dataset in Monitor.Files and
renders a global-mean time-series chart with all datasets on shared axes and
a time-mean map per dataset. When Monitor.RefDataset is set, it also renders
a bias map of every other dataset against the reference.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		outChan := outChan()

		files, err := getStringMapStringSlice("Monitor.Files", Cfg)
		if err != nil {
			return err
		}
		for name, paths := range files {
			paths = expandStringSlice(paths)
			for i := range paths {
				paths[i] = maybeDownload(paths[i], outChan)
			}
			files[name] = paths
		}
		return Monitor(
			files,
			Cfg.GetString("Monitor.Variable"),
			Cfg.GetString("Monitor.RefDataset"),
			os.ExpandEnv(Cfg.GetString("Monitor.FigDir")),
			Cfg.GetString("Monitor.RegridScheme"),
		)
	},
	DisableAutoGenTag: true,
}

// expandStringSlice expands the environment variables in a slice of strings.
func expandStringSlice(s []string) []string {
	for i := 0; i < len(s); i++ {
		s[i] = os.ExpandEnv(s[i])
	}
	return s
}
