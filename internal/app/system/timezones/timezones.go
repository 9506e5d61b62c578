// Package timezones holds the curated list of zones a deployment may run
// in. Meeting dates and "today" are evaluated in the configured zone.
package timezones

import (
	"embed"
	"encoding/json"
	"fmt"
	"sync"
	"time"
	_ "time/tzdata" // zone rules travel with the binary
)

//go:embed timezonedata/timezones.json
var FS embed.FS

// Zone is one entry of the curated list.
type Zone struct {
	ID     string `json:"id"`
	Label  string `json:"label"`
	Region string `json:"region,omitempty"`
}

// catalog is the parsed list with every zone already resolved.
type catalog struct {
	zones []Zone
	byID  map[string]Zone
	locs  map[string]*time.Location
}

var (
	once    sync.Once
	loaded  catalog
	loadErr error
)

func get() (catalog, error) {
	once.Do(func() { loaded, loadErr = parse() })
	return loaded, loadErr
}

func parse() (catalog, error) {
	data, err := FS.ReadFile("timezonedata/timezones.json")
	if err != nil {
		return catalog{}, err
	}
	var list []Zone
	if err := json.Unmarshal(data, &list); err != nil {
		return catalog{}, fmt.Errorf("parse zone list: %w", err)
	}

	c := catalog{
		zones: list,
		byID:  make(map[string]Zone, len(list)),
		locs:  make(map[string]*time.Location, len(list)),
	}
	for _, z := range list {
		if _, dup := c.byID[z.ID]; dup {
			return catalog{}, fmt.Errorf("zone %q listed twice", z.ID)
		}
		loc, err := time.LoadLocation(z.ID)
		if err != nil {
			return catalog{}, fmt.Errorf("zone %q: %w", z.ID, err)
		}
		c.byID[z.ID] = z
		c.locs[z.ID] = loc
	}
	return c, nil
}

// Load reports any error reading or resolving the embedded list.
func Load() error {
	_, err := get()
	return err
}

// All returns the curated zones in file order.
func All() ([]Zone, error) {
	c, err := get()
	if err != nil {
		return nil, err
	}
	return c.zones, nil
}

// Label returns the display label for id, or id itself when unknown.
func Label(id string) string {
	c, err := get()
	if err != nil {
		return id
	}
	if z, ok := c.byID[id]; ok && z.Label != "" {
		return z.Label
	}
	return id
}

// Valid reports whether id is in the curated list.
func Valid(id string) bool {
	c, err := get()
	if err != nil {
		return false
	}
	_, ok := c.locs[id]
	return ok
}

// Location returns the resolved location for a curated zone ID.
func Location(id string) (*time.Location, error) {
	c, err := get()
	if err != nil {
		return nil, err
	}
	loc, ok := c.locs[id]
	if !ok {
		return nil, fmt.Errorf("unsupported time zone %q", id)
	}
	return loc, nil
}

// Today formats now as a YYYY-MM-DD date in loc.
func Today(loc *time.Location, now time.Time) string {
	return now.In(loc).Format("2006-01-02")
}
