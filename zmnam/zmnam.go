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

// Package zmnam renders diagnostics of the zonal-mean annular mode from
// precomputed index time series and geopotential-height anomalies: a
// monthly index time-series chart, a daily-index PDF against a unit
// Gaussian, and a regression map of the height field onto the monthly
// index, per pressure level.
package zmnam

import (
	"fmt"
	"image/color"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ctessum/sparse"
	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette/moreland"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"

	"github.com/esmtools/obsproc"
)

const (
	dailyPCSuffix   = "_pc_da.nc"
	monthlyPCSuffix = "_pc_mo.nc"
	heightFileName  = "tmp_gh_mo_an_hem.nc"

	// histRange is the half-width of the daily-index PDF axis, in
	// standardized index units.
	histRange = 5
	histBins  = 50
	// tickStride is the spacing of time-axis labels, in months.
	tickStride = 60
)

// Config holds the inputs of a plotting run.
type Config struct {
	// DataDir holds the precomputed index and height-anomaly files; the
	// regression maps are written back there.
	DataDir string
	// FigDir receives the rendered figures.
	FigDir string
	// SrcProps is the dataset, experiment, ensemble triple that
	// prefixes the input file names and output figures and labels the
	// chart titles.
	SrcProps []string
}

// Diagnostic renders annular-mode figures per pressure level.
type Diagnostic struct {
	Config
	Log logrus.FieldLogger
}

// New returns a Diagnostic for the given configuration.
func New(cfg Config) *Diagnostic {
	return &Diagnostic{Config: cfg, Log: logrus.StandardLogger()}
}

// Run reads the index and height files, renders the figures for every
// pressure level, and writes the regression maps to a NetCDF file. It
// returns the paths of every file it wrote.
func (d *Diagnostic) Run() ([]string, error) {
	if len(d.SrcProps) != 3 {
		return nil, fmt.Errorf("obsproc: zmnam needs a dataset, experiment, ensemble triple; got %v", d.SrcProps)
	}
	prefix := strings.Join(d.SrcProps, "_")

	daily, err := readPC(filepath.Join(d.DataDir, prefix+dailyPCSuffix), "PC_da")
	if err != nil {
		return nil, err
	}
	monthly, err := readPC(filepath.Join(d.DataDir, prefix+monthlyPCSuffix), "PC_mo")
	if err != nil {
		return nil, err
	}
	zg, err := readHeight(filepath.Join(d.DataDir, heightFileName), "zg")
	if err != nil {
		return nil, err
	}
	if len(daily.Lev) != len(monthly.Lev) || len(zg.Lev) != len(monthly.Lev) {
		return nil, fmt.Errorf("obsproc: pressure levels disagree between inputs: daily %d, monthly %d, height %d",
			len(daily.Lev), len(monthly.Lev), len(zg.Lev))
	}
	if len(zg.Time) != len(monthly.Time) {
		return nil, fmt.Errorf("obsproc: height field has %d months, index has %d",
			len(zg.Time), len(monthly.Time))
	}

	ticks, err := timeTicks(monthly)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(d.FigDir, 0755); err != nil {
		return nil, fmt.Errorf("obsproc: creating figure directory: %v", err)
	}

	var written []string
	slopes := make([]*sparse.DenseArray, len(monthly.Lev))
	for l, lev := range monthly.Lev {
		levLabel := fmt.Sprintf("%d %s", int(lev), monthly.LevUnits)
		d.Log.Infof("plotting level %s", levLabel)

		path := filepath.Join(d.FigDir, fmt.Sprintf("%s_%d%s_mo_ts.png", prefix, int(lev), monthly.LevUnits))
		if err := d.plotTimeSeries(monthly, l, levLabel, ticks, path); err != nil {
			return nil, err
		}
		written = append(written, path)

		path = filepath.Join(d.FigDir, fmt.Sprintf("%s_%d%s_da_pdf.png", prefix, int(lev), monthly.LevUnits))
		if err := d.plotPDF(daily, l, levLabel, path); err != nil {
			return nil, err
		}
		written = append(written, path)

		slopes[l] = regressionMap(zg, monthly.level(l), l)
		path = filepath.Join(d.FigDir, fmt.Sprintf("%s_%d%s_mo_reg.png", prefix, int(lev), monthly.LevUnits))
		if err := d.plotRegression(zg, slopes[l], levLabel, path); err != nil {
			return nil, err
		}
		written = append(written, path)
	}

	path := filepath.Join(d.DataDir, prefix+"_regr_map.nc")
	if err := writeSlopes(path, monthly.Lev, zg.Lat, zg.Lon, monthly.LevUnits, slopes); err != nil {
		return nil, err
	}
	written = append(written, path)
	return written, nil
}

// regressionMap computes, for each grid point, the regression through
// the origin of the height field at level l onto the monthly index:
// dot(zg, pc) / dot(pc, pc).
func regressionMap(zg *heightField, pc []float64, l int) *sparse.DenseArray {
	out := sparse.ZerosDense(len(zg.Lat), len(zg.Lon))
	norm := floats.Dot(pc, pc)
	series := make([]float64, len(zg.Time))
	for j := range zg.Lat {
		for i := range zg.Lon {
			for t := range series {
				series[t] = zg.Data.Get(t, l, j, i)
			}
			out.Set(floats.Dot(series, pc)/norm, j, i)
		}
	}
	return out
}

// timeTicks labels the monthly time axis with year-month marks every
// tickStride months.
func timeTicks(s *pcSeries) ([]plot.Tick, error) {
	step, base, err := obsproc.ParseTimeUnits(s.TimeUnits)
	if err != nil {
		return nil, err
	}
	var ticks []plot.Tick
	for i := 0; i < len(s.Time); i += tickStride {
		t := base.Add(time.Duration(s.Time[i] * float64(step)))
		ticks = append(ticks, plot.Tick{
			Value: s.Time[i],
			Label: fmt.Sprintf("%d-%d", t.Year(), int(t.Month())),
		})
	}
	return ticks, nil
}

func (d *Diagnostic) plotTimeSeries(s *pcSeries, l int, levLabel string, ticks []plot.Tick, path string) error {
	p, err := plot.New()
	if err != nil {
		return fmt.Errorf("obsproc: creating plot: %v", err)
	}
	p.Title.Text = fmt.Sprintf("%s  %s %s", levLabel, d.SrcProps[1], d.SrcProps[2])
	p.X.Label.Text = "Time"
	p.Y.Label.Text = "Zonal mean NAM"
	p.X.Tick.Marker = plot.ConstantTicks(ticks)

	pc := s.level(l)
	xys := make(plotter.XYs, len(pc))
	for t := range pc {
		xys[t].X = s.Time[t]
		xys[t].Y = pc[t]
	}
	line, err := plotter.NewLine(xys)
	if err != nil {
		return fmt.Errorf("obsproc: creating time-series plot: %v", err)
	}
	line.Color = color.NRGBA{B: 255, A: 255}
	p.Add(line)
	return savePNG(p, 6*vg.Inch, 4*vg.Inch, path)
}

func (d *Diagnostic) plotPDF(s *pcSeries, l int, levLabel string, path string) error {
	p, err := plot.New()
	if err != nil {
		return fmt.Errorf("obsproc: creating plot: %v", err)
	}
	p.Title.Text = fmt.Sprintf("Daily PDF %s  %s %s", levLabel, d.SrcProps[1], d.SrcProps[2])
	p.X.Label.Text = "Zonal mean NAM"
	p.Y.Label.Text = "Normalized probability"
	p.X.Min = -histRange
	p.X.Max = histRange

	h, err := plotter.NewHist(plotter.Values(s.level(l)), histBins)
	if err != nil {
		return fmt.Errorf("obsproc: creating histogram: %v", err)
	}
	h.Normalize(1)
	h.FillColor = color.NRGBA{B: 255, A: 190}
	p.Add(h)

	// Unit-Gaussian reference.
	g := plotter.NewFunction(func(x float64) float64 {
		return math.Exp(-x*x/2) / math.Sqrt(2*math.Pi)
	})
	g.Color = color.Black
	g.Width = vg.Points(2)
	g.Dashes = []vg.Length{vg.Points(4), vg.Points(2)}
	p.Add(g)
	return savePNG(p, 6*vg.Inch, 4*vg.Inch, path)
}

func (d *Diagnostic) plotRegression(zg *heightField, slope *sparse.DenseArray, levLabel, path string) error {
	p, err := plot.New()
	if err != nil {
		return fmt.Errorf("obsproc: creating plot: %v", err)
	}
	p.Title.Text = fmt.Sprintf("%s  %s %s", levLabel, d.SrcProps[1], d.SrcProps[2])
	p.X.Label.Text = "Longitude"
	p.Y.Label.Text = "Latitude"

	// Diverging palette centered on zero.
	amax := 0.0
	for _, v := range slope.Elements {
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
	hm := plotter.NewHeatMap(slopeGrid{zg: zg, slope: slope}, cm.Palette(255))
	p.Add(hm)
	return savePNG(p, 6*vg.Inch, 5*vg.Inch, path)
}

// slopeGrid adapts a regression map to the heat-map grid interface.
type slopeGrid struct {
	zg    *heightField
	slope *sparse.DenseArray
}

func (g slopeGrid) Dims() (c, r int)   { return len(g.zg.Lon), len(g.zg.Lat) }
func (g slopeGrid) Z(c, r int) float64 { return g.slope.Get(r, c) }
func (g slopeGrid) X(c int) float64    { return g.zg.Lon[c] }
func (g slopeGrid) Y(r int) float64    { return g.zg.Lat[r] }

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
