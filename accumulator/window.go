package accumulator

import (
	"github.com/airbusgeo/albedo-inversion/brdf"
	"github.com/airbusgeo/albedo-inversion/common"
)

// periodShift is the number of days between the MODIS day of year and the centre of its period
const periodShift = 8

// Sample is a daily accumulator contributing to a target date
type Sample struct {
	Date common.Date
	// Offset in days between the sample and the centre of the period
	Offset int
	Weight float64
}

// Weight returns the temporal weight of a sample at days from the centre of the period
func Weight(days float64) float64 {
	return brdf.Weight(days)
}

// Window returns the candidate daily accumulators of the period of the target (MODIS) date,
// with wings days on each side, sorted by date.
// The wings are taken on the previous and the next years when the period crosses the year boundary.
func Window(target common.Date, wings int) []Sample {
	doy := target.DoY + periodShift
	var samples []Sample
	add := func(year, d, offset int) {
		samples = append(samples, Sample{Date: common.Date{Year: year, DoY: d}, Offset: offset, Weight: Weight(float64(offset))})
	}

	// Left wing
	if 365+(doy-wings) <= 366 {
		year := target.Year - 1
		for d := max(1, 366+(doy-wings)); d <= common.DaysInYear(year); d++ {
			add(year, d, d-doy-366)
		}
	}

	// Centre
	for d := max(1, doy-wings); d < doy+wings && d <= common.DaysInYear(target.Year); d++ {
		add(target.Year, d, d-doy)
	}

	// Right wing
	if doy+wings-365 > 0 {
		year := target.Year + 1
		for d := 1; d <= doy+wings-365 && d <= common.DaysInYear(year); d++ {
			add(year, d, d-doy+365)
		}
	}
	return samples
}
