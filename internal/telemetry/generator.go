// v0
// internal/telemetry/generator.go
package telemetry

import (
	"math/rand/v2"
	"time"
)

// DeltaSource draws a perturbation in [-halfWidth, +halfWidth].
type DeltaSource interface {
	Delta(halfWidth float64) float64
}

// UniformDeltas draws uniformly distributed deltas from a seeded PRNG.
// It is not safe for concurrent use; the generator is driven by one goroutine.
type UniformDeltas struct {
	rng *rand.Rand
}

// NewUniformDeltas seeds a PCG source. Equal seeds give equal sequences.
func NewUniformDeltas(seed uint64) *UniformDeltas {
	return &UniformDeltas{rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

func (u *UniformDeltas) Delta(halfWidth float64) float64 {
	if halfWidth == 0 {
		return 0
	}
	return (u.rng.Float64()*2 - 1) * halfWidth
}

// Uniform draws a value inside b.
func (u *UniformDeltas) Uniform(b Bounds) float64 {
	return b.Min + u.rng.Float64()*(b.Max-b.Min)
}

// SeedZones creates the initial state for keys, drawing each value inside
// the seed bands of p.
func SeedZones(keys []string, p Params, src *UniformDeltas) Zones {
	zones := make(Zones, len(keys))
	for _, k := range keys {
		zones[k] = ZoneState{
			Temperature: src.Uniform(p.TempSeed),
			Humidity:    src.Uniform(p.HumiditySeed),
		}
	}
	return zones
}

// Generator advances zones by one bounded random-walk step per tick.
type Generator struct {
	params Params
	deltas DeltaSource
}

// NewGenerator builds a generator. params are assumed to be validated.
func NewGenerator(params Params, deltas DeltaSource) *Generator {
	return &Generator{params: params, deltas: deltas}
}

// Params returns the generator's parameters.
func (g *Generator) Params() Params {
	return g.params
}

// Tick advances every zone once and returns the resulting snapshot, all
// readings stamped with now. zones is updated in place. Zones are visited in
// key order so that a fixed delta source reproduces the same snapshot.
func (g *Generator) Tick(zones Zones, now time.Time) Snapshot {
	snap := make(Snapshot, len(zones))
	for _, key := range zones.Keys() {
		st := zones[key]
		temp := g.params.round(st.Temperature + g.deltas.Delta(g.params.TempStep))
		hum := g.params.round(st.Humidity + g.deltas.Delta(g.params.HumidityStep))
		temp = g.params.TempClamp.Clamp(temp)
		hum = g.params.HumidityClamp.Clamp(hum)

		zones[key] = ZoneState{Temperature: temp, Humidity: hum}
		snap[key] = Reading{
			Temperature: temp,
			Humidity:    hum,
			Timestamp:   now,
			Status:      Classify(g.params, temp, hum),
		}
	}
	return snap
}
