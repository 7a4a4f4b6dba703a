package clock

import (
	"fmt"
	"time"
)

// OffsetMinutes returns how many minutes must be added to a time of day in
// zone to get the same instant as a time of day on the server's clock.
// Both UTC offsets are taken at the given instant so daylight saving
// transitions are accounted for.
func OffsetMinutes(zone string, server *time.Location, at time.Time) (int, error) {
	location, err := time.LoadLocation(zone)
	if err != nil {
		return 0, fmt.Errorf("failed loading timezone %q: %w", zone, err)
	}
	if server == nil {
		server = time.Local
	}
	_, zoneOffset := at.In(location).Zone()
	_, serverOffset := at.In(server).Zone()
	return (serverOffset - zoneOffset) / 60, nil
}
