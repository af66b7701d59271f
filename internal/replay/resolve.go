// Package replay resolves the datasets against the current time.
//
// The Resolve* functions are pure: for a fixed snapshot and time they
// always return the same values and keep no state between calls.
package replay

import (
	"math"

	"ride-replay/internal/dataset"
	"ride-replay/internal/timeline"
)

type Point struct {
	Lon  float64 `json:"lon"`
	Lat  float64 `json:"lat"`
	Time float64 `json:"time"`
}

// TripSegment is the visible part of one trip at a given time.
type TripSegment struct {
	VehicleID   string  `json:"vehicleId"`
	PassengerID string  `json:"passengerId,omitempty"`
	CarType     string  `json:"carType,omitempty"`
	Board       int     `json:"board"`
	Path        []Point `json:"path"`
	Head        Point   `json:"head"`
	Bearing     float64 `json:"bearing"`
	Travelled   float64 `json:"travelled"` // path length in coordinate units
	Arrived     bool    `json:"arrived"`
}

// Frame is the resolved bundle every presentation consumer renders from.
type Frame struct {
	Seq              uint64                 `json:"seq"`
	Time             float64                `json:"time"`
	Minute           int                    `json:"minute"`
	MinTime          float64                `json:"minTime"`
	MaxTime          float64                `json:"maxTime"`
	TripSegments     []TripSegment          `json:"tripSegments"`
	VehicleMarkers   []dataset.MarkerRecord `json:"vehicleMarkers"`
	PassengerMarkers []dataset.MarkerRecord `json:"passengerMarkers"`
	Result           dataset.ResultRecord   `json:"resultRecord"`
}

// Minute maps a continuous time onto its simulation minute.
func Minute(t float64) int { return int(math.Floor(t)) }

// ResolveResult returns the result record for floor(t), or the empty
// sentinel when that minute has no record.
func ResolveResult(snap *dataset.Snapshot, t float64) dataset.ResultRecord {
	m := Minute(t)
	if r, ok := snap.Result(m); ok {
		return r
	}
	return dataset.EmptyResult(m)
}

// ResolveVehicleMarkers returns the vehicle markers whose bucket is floor(t).
func ResolveVehicleMarkers(snap *dataset.Snapshot, t float64) []dataset.MarkerRecord {
	return cloneMarkers(snap.VehicleMarkersAt(Minute(t)))
}

// ResolvePassengerMarkers returns the passenger markers whose bucket is floor(t).
func ResolvePassengerMarkers(snap *dataset.Snapshot, t float64) []dataset.MarkerRecord {
	return cloneMarkers(snap.PassengerMarkersAt(Minute(t)))
}

func cloneMarkers(in []dataset.MarkerRecord) []dataset.MarkerRecord {
	out := make([]dataset.MarkerRecord, len(in))
	copy(out, in)
	return out
}

// ResolveTrip computes the part of tr travelled by time t: every present
// sample at or before t plus an interpolated head towards the next present
// sample. Absent samples are skipped without ending the trip. ok is false
// when t precedes the first present sample.
func ResolveTrip(tr dataset.TripRecord, t float64) (seg TripSegment, ok bool) {
	var (
		path       []Point
		prev, next *dataset.Sample
	)
	for i := range tr.Path {
		s := &tr.Path[i]
		if s.Absent() {
			continue
		}
		if s.Time <= t {
			path = append(path, pointOf(*s))
			prev = s
			continue
		}
		next = s
		break
	}
	if prev == nil {
		return TripSegment{}, false
	}

	seg = TripSegment{
		VehicleID:   tr.VehicleID,
		PassengerID: tr.PassengerID,
		CarType:     tr.CarType,
		Board:       tr.Board,
	}
	if next == nil {
		// Trailing absent samples still belong to the trip, so it has only
		// arrived once t reaches the last sample of any kind.
		seg.Arrived = t >= tr.Path[len(tr.Path)-1].Time
		seg.Head = path[len(path)-1]
		if len(path) > 1 {
			seg.Bearing = bearingDeg(path[len(path)-2], seg.Head)
		}
		seg.Path = path
		seg.Travelled = PathLength(path)
		return seg, true
	}

	// next.Time > t >= prev.Time, so the span is positive.
	frac := (t - prev.Time) / (next.Time - prev.Time)
	a, b := pointOf(*prev), pointOf(*next)
	head := Point{
		Lon:  a.Lon + (b.Lon-a.Lon)*frac,
		Lat:  a.Lat + (b.Lat-a.Lat)*frac,
		Time: t,
	}
	if frac > 0 {
		path = append(path, head)
	}
	seg.Head = head
	seg.Bearing = bearingDeg(a, b)
	seg.Path = path
	seg.Travelled = PathLength(path)
	return seg, true
}

// ResolveTrips resolves every trip, keeping dataset order and skipping trips
// that have not started yet.
func ResolveTrips(trips []dataset.TripRecord, t float64) []TripSegment {
	out := make([]TripSegment, 0, len(trips))
	for _, tr := range trips {
		if seg, ok := ResolveTrip(tr, t); ok {
			out = append(out, seg)
		}
	}
	return out
}

// Resolve builds the full frame for tick.
func Resolve(snap *dataset.Snapshot, tick timeline.Tick, minTime, maxTime float64) Frame {
	return Frame{
		Seq:              tick.Seq,
		Time:             tick.Time,
		Minute:           Minute(tick.Time),
		MinTime:          minTime,
		MaxTime:          maxTime,
		TripSegments:     ResolveTrips(snap.Trips, tick.Time),
		VehicleMarkers:   ResolveVehicleMarkers(snap, tick.Time),
		PassengerMarkers: ResolvePassengerMarkers(snap, tick.Time),
		Result:           ResolveResult(snap, tick.Time),
	}
}

func pointOf(s dataset.Sample) Point {
	return Point{Lon: s.Lon.Value, Lat: s.Lat.Value, Time: s.Time}
}

// PathLength returns the planar length of a path in coordinate units.
func PathLength(path []Point) float64 {
	total := 0.0
	for i := 1; i < len(path); i++ {
		total += math.Hypot(path[i].Lon-path[i-1].Lon, path[i].Lat-path[i-1].Lat)
	}
	return total
}

func bearingDeg(a, b Point) float64 {
	if a.Lon == b.Lon && a.Lat == b.Lat {
		return 0
	}
	toRad := func(d float64) float64 { return d * math.Pi / 180 }
	y := math.Sin(toRad(b.Lon-a.Lon)) * math.Cos(toRad(b.Lat))
	x := math.Cos(toRad(a.Lat))*math.Sin(toRad(b.Lat)) - math.Sin(toRad(a.Lat))*math.Cos(toRad(b.Lat))*math.Cos(toRad(b.Lon-a.Lon))
	brng := math.Atan2(y, x) * 180 / math.Pi
	if brng < 0 {
		brng += 360
	}
	return brng
}
