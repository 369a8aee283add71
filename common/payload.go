package common

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
)

// UnitAttrs are the processing parameters of a unit
type UnitAttrs struct {
	Wings      int      `json:"wings"`
	Sensors    []string `json:"sensors"`
	PriorScale float64  `json:"prior_scale"`
	Footprint  string   `json:"footprint,omitempty"` // WKT, sinusoidal metres
}

// Unit is one inversion: a tile, a (prior) date and a snow mode
type Unit struct {
	Tile Tile      `json:"tile"`
	Date Date      `json:"date"`
	Mode SnowMode  `json:"mode"`
	Data UnitAttrs `json:"data,omitempty"`
}

// Tag identifies the unit in logs and ledgers: tile.YYYYDDD.mode
func (u Unit) Tag() string {
	return fmt.Sprintf("%s.%s.%s", u.Tile, u.Date, u.Mode)
}

// UnitStatus is the status of a unit as recorded in the ledger
type UnitStatus struct {
	Unit
	Status  Status `json:"status"`
	Message string `json:"message"`
}

// Value implements the driver.Value interface
func (a UnitAttrs) Value() (driver.Value, error) {
	return json.Marshal(a)
}

// Scan implements the sql.Scanner interface.
func (a *UnitAttrs) Scan(value interface{}) error {
	if value == nil {
		*a = UnitAttrs{}
		return nil
	}
	var b []byte
	switch v := value.(type) {
	case []byte:
		b = v
	case string:
		b = []byte(v)
	default:
		return errors.New("type assertion to []byte failed")
	}
	return json.Unmarshal(b, &a)
}

// MarshalText implements encoding.TextMarshaler (hHHvVV)
func (t Tile) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (t *Tile) UnmarshalText(b []byte) error {
	var err error
	*t, err = ParseTile(string(b))
	return err
}

// MarshalText implements encoding.TextMarshaler (YYYYDDD)
func (d Date) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (d *Date) UnmarshalText(b []byte) error {
	var err error
	*d, err = ParseDate(string(b))
	return err
}
