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
	"fmt"
	"math"

	"github.com/ctessum/unit"

	"github.com/esmtools/obsproc"
)

// Physical constants for the De Bruin (2016) reference evapotranspiration
// formula (doi:10.1175/JHM-D-15-0006.1). Values are SI.
var (
	// rv is the gas constant of water vapour [J K-1 kg-1]
	// (Wallace and Hobbs 2006, eq. 3.14).
	rv = unit.New(461.51, joulePerKelvinKilogram)
	// rd is the gas constant of dry air [J K-1 kg-1].
	rd = unit.New(287.0, joulePerKelvinKilogram)
	// lambda is the latent heat of vaporization [J kg-1].
	lambda = unit.New(2.5e6, joulePerKilogram)
	// cp is the specific heat of dry air at constant pressure
	// [J K-1 kg-1].
	cp = unit.New(1004.0, joulePerKelvinKilogram)
	// beta is the correction constant of De Bruin (2016), section 4a
	// [W m-2].
	beta = unit.New(20.0, wattPerMeter2)
	// cs is the empirical constant of De Bruin (2016), section 4a
	// [W m-2].
	cs = unit.New(110.0, wattPerMeter2)
)

var (
	joulePerKelvinKilogram = unit.Dimensions{
		unit.LengthDim:      2,
		unit.TimeDim:        -2,
		unit.TemperatureDim: -1,
	}
	joulePerKilogram = unit.Dimensions{
		unit.LengthDim: 2,
		unit.TimeDim:   -2,
	}
	wattPerMeter2 = unit.Dimensions{
		unit.MassDim: 1,
		unit.TimeDim: -3,
	}
	// kilogramPerMeter2Second is the dimension of an evaporation mass
	// flux.
	kilogramPerMeter2Second = unit.Dimensions{
		unit.MassDim:   1,
		unit.LengthDim: -2,
		unit.TimeDim:   -1,
	}
	pascalPerKelvin = unit.Dimensions{
		unit.MassDim:        1,
		unit.LengthDim:      -1,
		unit.TimeDim:        -2,
		unit.TemperatureDim: -1,
	}
)

func init() {
	// Dimensional soundness of eq. 6: the psychrometric term
	// gamma = (rv/rd) * cp * p / lambda must be a pressure per
	// temperature, and the final flux divided by lambda must be an
	// evaporation mass flux.
	gamma := unit.Div(unit.Mul(unit.Div(rv, rd), cp, unit.New(1, unit.Pascal)), lambda)
	if err := gamma.Check(pascalPerKelvin); err != nil {
		panic(err)
	}
	if err := unit.Div(beta, lambda).Check(kilogramPerMeter2Second); err != nil {
		panic(err)
	}
}

// Tetens formula constants for saturated vapour pressure over water,
// es(T) = e0 * exp(a*T / (T+b)) with T in degrees Celsius.
const (
	tetensE0 = 6.112 // hPa
	tetensA  = 17.67
	tetensB  = 243.5 // degC
)

// tetensDerivative is the slope of the saturated-vapour-pressure curve
// [hPa degC-1] at temperature t [degC]:
// des/dT = a * b * e0 * exp(a*T/(b+T)) / (b+T)^2.
func tetensDerivative(t float64) float64 {
	bt := tetensB + t
	return tetensA * tetensB * tetensE0 * math.Exp(tetensA*t/bt) / (bt * bt)
}

// surface albedo assumed in the radiation term of De Bruin eq. 6.
const albedo = 0.23

// DeBruinPET computes the De Bruin (2016, eq. 6) reference
// evapotranspiration [kg m-2 s-1] from near-surface temperature,
// sea-level pressure, and downwelling and top-of-atmosphere shortwave
// radiation. Inputs are unit-converted internally; the caller's fields
// are unmodified.
func DeBruinPET(tas, psl, rsds, rsdt *obsproc.Field) (*obsproc.Field, error) {
	tasC := tas.Copy()
	if err := tasC.ConvertUnits("degC"); err != nil {
		return nil, err
	}
	pslH := psl.Copy()
	if err := pslH.ConvertUnits("hPa"); err != nil {
		return nil, err
	}
	kdown := rsds.Copy()
	if err := kdown.ConvertUnits("W m-2"); err != nil {
		return nil, err
	}
	kdownExt := rsdt.Copy()
	if err := kdownExt.ConvertUnits("W m-2"); err != nil {
		return nil, err
	}

	gammaCoef := rv.Value() / rd.Value() * cp.Value() / lambda.Value() // hPa in, hPa degC-1 out

	delta := tasC.Apply(tetensDerivative)
	gamma := pslH.Apply(func(p float64) float64 { return gammaCoef * p })

	// rad = (1-albedo)*kdown - cs*kdown/kdownExt, fill where the
	// extraterrestrial flux vanishes (polar night).
	rad, err := kdown.Combine(kdownExt, func(kdown, kdownExt float64) float64 {
		if kdownExt <= 0 {
			return obsproc.FillValue
		}
		return (1-albedo)*kdown - cs.Value()*kdown/kdownExt
	})
	if err != nil {
		return nil, err
	}

	frac, err := delta.Combine(gamma, func(d, g float64) float64 { return d / (d + g) })
	if err != nil {
		return nil, err
	}
	refEvap, err := frac.Combine(rad, func(f, r float64) float64 {
		return f*r + beta.Value()
	})
	if err != nil {
		return nil, err
	}

	pet := refEvap.Apply(func(v float64) float64 { return v / lambda.Value() })
	pet.Name = "pet"
	pet.StandardName = "water_potential_evaporation_flux"
	pet.LongName = "Potential Evapotranspiration"
	pet.Units = "kg m-2 s-1"
	pet.Scalars = nil
	if pet.NT() != tas.NT() {
		return nil, fmt.Errorf("hydro: reference evapotranspiration time axis mismatch")
	}
	return pet, nil
}
