// v0
// internal/telemetry/params.go
package telemetry

import (
	"errors"
	"fmt"
	"math"
)

// Bounds is a closed numeric interval.
type Bounds struct {
	Min float64
	Max float64
}

// Clamp saturates v into [Min, Max].
func (b Bounds) Clamp(v float64) float64 {
	return math.Max(b.Min, math.Min(b.Max, v))
}

// Contains reports whether v lies inside the interval, edges included.
func (b Bounds) Contains(v float64) bool {
	return v >= b.Min && v <= b.Max
}

func (b Bounds) validate(name string) error {
	if math.IsNaN(b.Min) || math.IsNaN(b.Max) || math.IsInf(b.Min, 0) || math.IsInf(b.Max, 0) {
		return fmt.Errorf("%s bounds must be finite", name)
	}
	if b.Min > b.Max {
		return fmt.Errorf("%s bounds inverted: min %g > max %g", name, b.Min, b.Max)
	}
	return nil
}

// Params holds the tunables of the bounded random walk. The clamp bounds,
// the perturbation half-widths and the classification thresholds are all
// independent of each other.
type Params struct {
	// TempClamp and HumidityClamp are the saturating domains of each value.
	TempClamp     Bounds
	HumidityClamp Bounds
	// TempStep and HumidityStep are the half-widths of the symmetric deltas.
	TempStep     float64
	HumidityStep float64
	// TempMax and HumidityMax are the out-of-range thresholds (strictly greater).
	TempMax     float64
	HumidityMax float64
	// TempSeed and HumiditySeed bound the random starting values.
	TempSeed     Bounds
	HumiditySeed Bounds
	// Decimals rounds every post-delta value before clamping. Negative disables rounding.
	Decimals int
}

const (
	DefaultTempMin          = 0.0
	DefaultTempClampMax     = 15.0
	DefaultHumidityMin      = 50.0
	DefaultHumidityClampMax = 90.0
	DefaultTempStep         = 1.0
	DefaultHumidityStep     = 1.0
	DefaultTempMax          = 10.0
	DefaultHumidityMax      = 80.0
	DefaultDecimals         = 2
)

// DefaultParams returns the cold-storage defaults.
func DefaultParams() Params {
	return Params{
		TempClamp:     Bounds{Min: DefaultTempMin, Max: DefaultTempClampMax},
		HumidityClamp: Bounds{Min: DefaultHumidityMin, Max: DefaultHumidityClampMax},
		TempStep:      DefaultTempStep,
		HumidityStep:  DefaultHumidityStep,
		TempMax:       DefaultTempMax,
		HumidityMax:   DefaultHumidityMax,
		TempSeed:      Bounds{Min: 5, Max: 10},
		HumiditySeed:  Bounds{Min: 60, Max: 80},
		Decimals:      DefaultDecimals,
	}
}

// Validate checks the parameters once at start-up; Tick never re-validates.
func (p Params) Validate() error {
	var errs []error
	for _, b := range []struct {
		name string
		b    Bounds
	}{
		{"temperature clamp", p.TempClamp},
		{"humidity clamp", p.HumidityClamp},
		{"temperature seed", p.TempSeed},
		{"humidity seed", p.HumiditySeed},
	} {
		if err := b.b.validate(b.name); err != nil {
			errs = append(errs, err)
		}
	}
	if !p.TempClamp.Contains(p.TempSeed.Min) || !p.TempClamp.Contains(p.TempSeed.Max) {
		errs = append(errs, fmt.Errorf("temperature seed [%g, %g] must lie inside the clamp [%g, %g]",
			p.TempSeed.Min, p.TempSeed.Max, p.TempClamp.Min, p.TempClamp.Max))
	}
	if !p.HumidityClamp.Contains(p.HumiditySeed.Min) || !p.HumidityClamp.Contains(p.HumiditySeed.Max) {
		errs = append(errs, fmt.Errorf("humidity seed [%g, %g] must lie inside the clamp [%g, %g]",
			p.HumiditySeed.Min, p.HumiditySeed.Max, p.HumidityClamp.Min, p.HumidityClamp.Max))
	}
	if p.TempStep < 0 || math.IsNaN(p.TempStep) || math.IsInf(p.TempStep, 0) {
		errs = append(errs, fmt.Errorf("temperature step must be a finite value >= 0: %g", p.TempStep))
	}
	if p.HumidityStep < 0 || math.IsNaN(p.HumidityStep) || math.IsInf(p.HumidityStep, 0) {
		errs = append(errs, fmt.Errorf("humidity step must be a finite value >= 0: %g", p.HumidityStep))
	}
	if math.IsNaN(p.TempMax) || math.IsNaN(p.HumidityMax) {
		errs = append(errs, errors.New("thresholds must not be NaN"))
	}
	if p.Decimals > 10 {
		errs = append(errs, fmt.Errorf("decimals must be <= 10: %d", p.Decimals))
	}
	return errors.Join(errs...)
}

func (p Params) round(v float64) float64 {
	if p.Decimals < 0 {
		return v
	}
	scale := math.Pow(10, float64(p.Decimals))
	return math.Round(v*scale) / scale
}
