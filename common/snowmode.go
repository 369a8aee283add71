package common

import "fmt"

//go:generate go run github.com/dmarkham/enumer -json -text -type SnowMode -trimprefix SnowMode

// SnowMode selects the observations used by an inversion
type SnowMode int

const (
	SnowModeNoSnow SnowMode = iota
	SnowModeSnow
)

// SnowModeFromFlag converts the 0/1 snow flag of the command lines
func SnowModeFromFlag(flag int) (SnowMode, error) {
	switch flag {
	case 0:
		return SnowModeNoSnow, nil
	case 1:
		return SnowModeSnow, nil
	}
	return SnowModeNoSnow, fmt.Errorf("invalid snow flag: %d (expecting 0 or 1)", flag)
}

// Accept returns true if a pixel with the given snow mask value belongs to the mode
func (m SnowMode) Accept(snowMask float32) bool {
	if m == SnowModeSnow {
		return snowMask == 1
	}
	return snowMask != 1
}
