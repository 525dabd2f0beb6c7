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

// Package monitor renders comparison figures of one variable across
// several datasets: a global-mean time-series chart with all datasets
// on shared axes, a time-mean map per dataset, and, when a reference
// dataset is named, a bias map of every other dataset against it.
package monitor

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette/moreland"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"

	"github.com/esmtools/obsproc"
)

// timeRefYear is the common reference year all time axes are converted
// to before plotting.
const timeRefYear = 1950

// Config holds the inputs of a monitoring run.
type Config struct {
	// Files maps each dataset name to the NetCDF files holding the
	// monitored variable, in time order.
	Files map[string][]string
	// Variable is the short name of the variable to monitor.
	Variable string
	// RefDataset optionally names the dataset the others are compared
	// against in bias maps. It must be a key of Files.
	RefDataset string
	// FigDir receives the rendered figures.
	FigDir string
	// Scheme selects the regridding method for bias maps.
	Scheme string
}

// Diagnostic renders multi-dataset monitoring figures.
type Diagnostic struct {
	Config
	Log logrus.FieldLogger
}

// New returns a Diagnostic for the given configuration.
func New(cfg Config) *Diagnostic {
	return &Diagnostic{Config: cfg, Log: logrus.StandardLogger()}
}

// Run loads the monitored variable from every dataset, renders the
// figures, and returns the paths of every file it wrote.
func (d *Diagnostic) Run() ([]string, error) {
	if d.Variable == "" {
		return nil, fmt.Errorf("obsproc: no variable configured to monitor")
	}
	if len(d.Files) == 0 {
		return nil, fmt.Errorf("obsproc: no datasets configured for variable %s", d.Variable)
	}
	if d.RefDataset != "" {
		if _, ok := d.Files[d.RefDataset]; !ok {
			return nil, fmt.Errorf("obsproc: reference dataset %s has no input files", d.RefDataset)
		}
	}
	scheme, err := obsproc.ParseRegridScheme(d.Scheme)
	if err != nil {
		return nil, err
	}

	datasets := make([]string, 0, len(d.Files))
	for name := range d.Files {
		datasets = append(datasets, name)
	}
	sort.Strings(datasets)

	fields := make(map[string]*obsproc.Field, len(datasets))
	for _, name := range datasets {
		d.Log.Infof("loading %s from dataset %s", d.Variable, name)
		f, err := obsproc.ReadFieldMulti(d.Files[name], d.Variable)
		if err != nil {
			return nil, err
		}
		if err := f.FixCoords(); err != nil {
			return nil, err
		}
		if err := f.ConvertTimeUnits(timeRefYear); err != nil {
			return nil, err
		}
		fields[name] = f
	}

	if err := os.MkdirAll(d.FigDir, 0755); err != nil {
		return nil, fmt.Errorf("obsproc: creating figure directory: %v", err)
	}

	var written []string
	path := filepath.Join(d.FigDir, d.Variable+"_timeseries.png")
	if err := d.plotTimeSeries(datasets, fields, path); err != nil {
		return nil, err
	}
	written = append(written, path)

	means := make(map[string]*obsproc.Field, len(datasets))
	for _, name := range datasets {
		if means[name], err = fields[name].TimeMean(); err != nil {
			return nil, err
		}
		path := filepath.Join(d.FigDir, fmt.Sprintf("%s_%s_map.png", d.Variable, name))
		if err := d.plotMap(means[name], name, path); err != nil {
			return nil, err
		}
		written = append(written, path)
	}

	if d.RefDataset != "" {
		ref := means[d.RefDataset]
		for _, name := range datasets {
			if name == d.RefDataset {
				continue
			}
			d.Log.Infof("computing %s bias of %s against %s", d.Variable, name, d.RefDataset)
			onRef, err := obsproc.Regrid(means[name], ref.Grid(), scheme)
			if err != nil {
				return nil, err
			}
			bias, err := onRef.Combine(ref, func(a, b float64) float64 { return a - b })
			if err != nil {
				return nil, err
			}
			path := filepath.Join(d.FigDir, fmt.Sprintf("%s_%s_bias.png", d.Variable, name))
			if err := d.plotBias(bias, name, path); err != nil {
				return nil, err
			}
			written = append(written, path)
		}
	}
	return written, nil
}

// spatialMean computes the cosine-latitude-weighted global mean of each
// timestep, ignoring fill values. A timestep with no valid cells is
// fill.
func spatialMean(f *obsproc.Field) []float64 {
	nt := f.NT()
	ny, nx := len(f.Lat), len(f.Lon)
	weights := make([]float64, ny)
	for j, lat := range f.Lat {
		weights[j] = math.Cos(lat * math.Pi / 180)
	}
	o := make([]float64, nt)
	for t := 0; t < nt; t++ {
		var sum, wsum float64
		for j := 0; j < ny; j++ {
			for i := 0; i < nx; i++ {
				v := f.Data.Elements[t*ny*nx+j*nx+i]
				if obsproc.IsFill(v) {
					continue
				}
				sum += v * weights[j]
				wsum += weights[j]
			}
		}
		if wsum == 0 {
			o[t] = obsproc.FillValue
			continue
		}
		o[t] = sum / wsum
	}
	return o
}

// timeTicks labels a time axis with at most eight year marks.
func timeTicks(f *obsproc.Field) ([]plot.Tick, error) {
	stride := f.NT() / 8
	if stride < 1 {
		stride = 1
	}
	var ticks []plot.Tick
	for i := 0; i < f.NT(); i += stride {
		t, err := f.TimeValue(i)
		if err != nil {
			return nil, err
		}
		ticks = append(ticks, plot.Tick{
			Value: f.Time[i],
			Label: fmt.Sprintf("%d", t.Year()),
		})
	}
	return ticks, nil
}

func (d *Diagnostic) plotTimeSeries(datasets []string, fields map[string]*obsproc.Field, path string) error {
	p, err := plot.New()
	if err != nil {
		return fmt.Errorf("obsproc: creating plot: %v", err)
	}
	first := fields[datasets[0]]
	p.Title.Text = title(first)
	p.X.Label.Text = "Time"
	p.Y.Label.Text = first.Units
	ticks, err := timeTicks(first)
	if err != nil {
		return err
	}
	p.X.Tick.Marker = plot.ConstantTicks(ticks)
	p.Legend.Top = true

	for k, name := range datasets {
		f := fields[name]
		mean := spatialMean(f)
		var xys plotter.XYs
		for t, v := range mean {
			if obsproc.IsFill(v) {
				continue
			}
			xys = append(xys, struct{ X, Y float64 }{X: f.Time[t], Y: v})
		}
		line, err := plotter.NewLine(xys)
		if err != nil {
			return fmt.Errorf("obsproc: plotting dataset %s: %v", name, err)
		}
		line.Color = plotutil.Color(k)
		p.Add(line)
		p.Legend.Add(name, line)
	}
	return savePNG(p, 7*vg.Inch, 4*vg.Inch, path)
}

func (d *Diagnostic) plotMap(f *obsproc.Field, dataset, path string) error {
	p, err := plot.New()
	if err != nil {
		return fmt.Errorf("obsproc: creating plot: %v", err)
	}
	p.Title.Text = fmt.Sprintf("%s  %s", title(f), dataset)
	p.X.Label.Text = "Longitude"
	p.Y.Label.Text = "Latitude"

	min, max := math.Inf(1), math.Inf(-1)
	for _, v := range f.Data.Elements {
		if obsproc.IsFill(v) {
			continue
		}
		min = math.Min(min, v)
		max = math.Max(max, v)
	}
	if min >= max {
		min, max = min-1, min+1
	}
	cm := moreland.Kindlmann()
	cm.SetMin(min)
	cm.SetMax(max)
	p.Add(plotter.NewHeatMap(fieldGrid{f}, cm.Palette(255)))
	return savePNG(p, 6*vg.Inch, 5*vg.Inch, path)
}

func (d *Diagnostic) plotBias(bias *obsproc.Field, dataset, path string) error {
	p, err := plot.New()
	if err != nil {
		return fmt.Errorf("obsproc: creating plot: %v", err)
	}
	p.Title.Text = fmt.Sprintf("%s  %s - %s", title(bias), dataset, d.RefDataset)
	p.X.Label.Text = "Longitude"
	p.Y.Label.Text = "Latitude"

	// Diverging palette centered on zero.
	amax := 0.0
	for _, v := range bias.Data.Elements {
		if obsproc.IsFill(v) {
			continue
		}
		if a := math.Abs(v); a > amax {
			amax = a
		}
	}
	if amax == 0 {
		amax = 1
	}
	cm := moreland.SmoothBlueRed()
	cm.SetMin(-amax)
	cm.SetMax(amax)
	p.Add(plotter.NewHeatMap(fieldGrid{bias}, cm.Palette(255)))
	return savePNG(p, 6*vg.Inch, 5*vg.Inch, path)
}

// title labels a figure with the variable's descriptive name.
func title(f *obsproc.Field) string {
	if f.LongName != "" {
		return f.LongName
	}
	return f.Name
}

// fieldGrid adapts a static field to the heat-map grid interface. Fill
// values are mapped to NaN, which the heat map leaves blank.
type fieldGrid struct {
	f *obsproc.Field
}

func (g fieldGrid) Dims() (c, r int) { return len(g.f.Lon), len(g.f.Lat) }
func (g fieldGrid) X(c int) float64  { return g.f.Lon[c] }
func (g fieldGrid) Y(r int) float64  { return g.f.Lat[r] }
func (g fieldGrid) Z(c, r int) float64 {
	v := g.f.Data.Get(r, c)
	if obsproc.IsFill(v) {
		return math.NaN()
	}
	return v
}

// savePNG renders p onto a raster canvas and writes it as a PNG file.
func savePNG(p *plot.Plot, w, h vg.Length, path string) error {
	img := vgimg.NewWith(vgimg.UseWH(w, h), vgimg.UseDPI(96))
	p.Draw(draw.New(img))
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("obsproc: creating %s: %v", path, err)
	}
	if _, err := (vgimg.PngCanvas{Canvas: img}).WriteTo(f); err != nil {
		f.Close()
		return fmt.Errorf("obsproc: writing %s: %v", path, err)
	}
	return f.Close()
}
