package types

import (
	"strconv"
	"time"
)

const (
	// DateLayout is the compact date format used in the local log and by
	// PVOutput.
	DateLayout = "20060102"
	// TimeLayout is minute precision local time.
	TimeLayout = "15:04"
)

// ReadingHeader is the header row of the local log, in column order.
var ReadingHeader = []string{"date", "time", "status", "PAC_W", "E_TODAY"}

// Reading is a single snapshot of the inverter.
type Reading struct {
	Date          string    `json:"date"`
	Time          string    `json:"time"`
	Status        string    `json:"status"`
	PowerWatts    int       `json:"powerWatts"`
	EnergyTodayWh int       `json:"energyTodayWh"`
	Timestamp     time.Time `json:"timestamp"`
}

// NewReading stamps a reading with the date and time of ts in loc.
func NewReading(ts time.Time, loc *time.Location, status string, powerWatts, energyTodayWh int) Reading {
	if loc != nil {
		ts = ts.In(loc)
	}
	return Reading{
		Date:          ts.Format(DateLayout),
		Time:          ts.Format(TimeLayout),
		Status:        status,
		PowerWatts:    powerWatts,
		EnergyTodayWh: energyTodayWh,
		Timestamp:     ts,
	}
}

// Row returns the reading as a log row matching ReadingHeader.
func (r Reading) Row() []string {
	return []string{
		r.Date,
		r.Time,
		r.Status,
		strconv.Itoa(r.PowerWatts),
		strconv.Itoa(r.EnergyTodayWh),
	}
}

// IsError returns true if the inverter reported its error status.
func (r Reading) IsError() bool {
	return r.Status == "Error"
}
