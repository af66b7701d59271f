package dataset

import (
	"encoding/json"
	"math"
	"sort"
	"strconv"
)

// Kind names one of the replay datasets. The value doubles as the payload
// base name used by sources ("trip" -> trip.json).
type Kind string

const (
	KindTrips            Kind = "trip"
	KindVehicleMarkers   Kind = "vehicle_marker"
	KindPassengerMarkers Kind = "passenger_marker"
	KindResults          Kind = "result"
	KindStats            Kind = "stats"
)

// Kinds lists the four datasets that gate readiness, in load order.
var Kinds = []Kind{KindTrips, KindVehicleMarkers, KindPassengerMarkers, KindResults}

// Num is a numeric value that may be absent. Source feeds encode missing
// values as NaN; those become Valid=false, never 0.
type Num struct {
	Value float64
	Valid bool
}

// Some wraps v, turning non-finite input into an absent value.
func Some(v float64) Num {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return Num{}
	}
	return Num{Value: v, Valid: true}
}

// Absent returns the absent-value sentinel.
func Absent() Num { return Num{} }

func numFromPtr(p *float64) Num {
	if p == nil {
		return Num{}
	}
	return Some(*p)
}

// Or returns the value, or def when absent.
func (n Num) Or(def float64) float64 {
	if !n.Valid {
		return def
	}
	return n.Value
}

func (n Num) MarshalJSON() ([]byte, error) {
	if !n.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(n.Value)
}

func (n *Num) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*n = Num{}
		return nil
	}
	var v float64
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*n = Some(v)
	return nil
}

// Sample is one timestamped position of a trip path.
type Sample struct {
	Lon  Num     `json:"lon"`
	Lat  Num     `json:"lat"`
	Time float64 `json:"time"` // simulation minutes
}

// Absent reports whether the sample has no usable coordinate.
func (s Sample) Absent() bool { return !s.Lon.Valid || !s.Lat.Valid }

type TripRecord struct {
	VehicleID   string   `json:"vehicleId"`
	PassengerID string   `json:"passengerId,omitempty"`
	CarType     string   `json:"carType,omitempty"`
	Board       int      `json:"board"` // 0 heading to pickup, 1 passenger on board
	Path        []Sample `json:"path"`  // timestamps non-decreasing
}

type MarkerKind string

const (
	VehicleMarker   MarkerKind = "vehicle"
	PassengerMarker MarkerKind = "passenger"
)

const (
	StatusIdle        = "idle"
	StatusDispatching = "dispatching"
	StatusOccupied    = "occupied"
	StatusWaiting     = "waiting"
)

type MarkerRecord struct {
	Kind    MarkerKind `json:"kind"`
	ID      string     `json:"id"`
	CarType string     `json:"carType,omitempty"`
	Status  string     `json:"status"`
	Lon     Num        `json:"lon"`
	Lat     Num        `json:"lat"`
	Minute  int        `json:"minute"` // the single timestamp bucket
	Until   Num        `json:"until"`  // end of the source interval, if any
}

// ResultRecord is the aggregate dispatch snapshot for one simulation minute.
type ResultRecord struct {
	Minute             int            `json:"minute"`
	DrivingVehicles    Num            `json:"drivingVehicles"`
	DispatchedVehicles Num            `json:"dispatchedVehicles"`
	OccupiedVehicles   Num            `json:"occupiedVehicles"`
	IdleVehicles       Num            `json:"idleVehicles"`
	FailedPassengers   Num            `json:"failedPassengers"` // cumulative
	WaitingPassengers  Num            `json:"waitingPassengers"`
	AverageWaitMinutes Num            `json:"averageWaitMinutes"`
	WaitingHistogram   map[string]Num `json:"waitingHistogram"` // bucket label -> percent
	Empty              bool           `json:"empty"`
}

// EmptyResult is the sentinel returned when no record covers minute.
func EmptyResult(minute int) ResultRecord {
	zero := Some(0)
	return ResultRecord{
		Minute:             minute,
		DrivingVehicles:    zero,
		DispatchedVehicles: zero,
		OccupiedVehicles:   zero,
		IdleVehicles:       zero,
		FailedPassengers:   zero,
		WaitingPassengers:  zero,
		AverageWaitMinutes: zero,
		WaitingHistogram:   map[string]Num{},
		Empty:              true,
	}
}

type HistogramBucket struct {
	Label   string `json:"label"`
	Percent Num    `json:"percent"`
}

// HistogramSeries returns the waiting-time buckets ordered by their numeric
// lower bound. Labels that are not numbers sort last, alphabetically.
func (r ResultRecord) HistogramSeries() []HistogramBucket {
	out := make([]HistogramBucket, 0, len(r.WaitingHistogram))
	for label, pct := range r.WaitingHistogram {
		out = append(out, HistogramBucket{Label: label, Percent: pct})
	}
	sort.Slice(out, func(i, j int) bool {
		a, aerr := strconv.ParseFloat(out[i].Label, 64)
		b, berr := strconv.ParseFloat(out[j].Label, 64)
		switch {
		case aerr == nil && berr == nil:
			return a < b
		case aerr == nil:
			return true
		case berr == nil:
			return false
		}
		return out[i].Label < out[j].Label
	})
	return out
}

// StatsSummary is the run-level summary table shown beside the replay.
// Values are kept as the display strings found in the source.
type StatsSummary struct {
	TotalCalls     string            `json:"totalCalls"`
	FailedCalls    string            `json:"failedCalls"`
	FailureRate    string            `json:"failureRate"`
	VehiclesDriven string            `json:"vehiclesDriven"`
	Extra          map[string]string `json:"extra,omitempty"`
	Default        bool              `json:"default"` // true when the configured fallback is served
}
