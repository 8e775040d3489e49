package pool

import (
	"math"

	"github.com/influxtsdb/nodepool/connection"
)

const (
	// DecayLog subtracts log2(weight)^deadCount from the weight.
	DecayLog = "log"

	// DecayProportional halves the weight for every consecutive failure.
	DecayProportional = "proportional"
)

// DecayFunc returns the weight of a node after its deadCount-th consecutive
// failure. Results below 1 are raised to 1 by the pool.
type DecayFunc func(weight, deadCount int) int

// LogDecay reduces weight by round(log2(weight)^deadCount). It barely
// touches a node after a single failure and collapses it to the floor
// within a handful of consecutive ones.
func LogDecay(weight, deadCount int) int {
	if weight <= 1 {
		return weight
	}
	d := math.Round(math.Pow(math.Log2(float64(weight)), float64(deadCount)))
	if d >= float64(weight) {
		return 0
	}
	return weight - int(d)
}

// ProportionalDecay divides weight by 2^deadCount.
func ProportionalDecay(weight, deadCount int) int {
	return int(math.Round(float64(weight) / math.Pow(2, float64(deadCount))))
}

// DecayByName returns the decay function registered under name.
func DecayByName(name string) (DecayFunc, error) {
	switch name {
	case DecayLog, "":
		return LogDecay, nil
	case DecayProportional:
		return ProportionalDecay, nil
	}
	return nil, connection.NewConfigurationError("unknown decay policy: '%s'", name)
}
