package dataset

import (
	"encoding/json"
	"fmt"
	"log"
	"math"
	"reflect"
	"strconv"
	"strings"

	"github.com/mitchellh/mapstructure"
)

// toSequence turns an ingestion payload into its top-level records. Textual
// payloads ([]byte, string, json.RawMessage) are sanitized and parsed;
// already-parsed payloads must be a slice.
func toSequence(kind Kind, payload any) ([]any, error) {
	switch p := payload.(type) {
	case []byte:
		return parseText(kind, p)
	case json.RawMessage:
		return parseText(kind, p)
	case string:
		return parseText(kind, []byte(p))
	case []any:
		return p, nil
	case []map[string]any:
		out := make([]any, len(p))
		for i, m := range p {
			out[i] = m
		}
		return out, nil
	case nil:
		return nil, &ShapeError{Dataset: kind, Got: "null"}
	default:
		return nil, &ShapeError{Dataset: kind, Got: fmt.Sprintf("%T", p)}
	}
}

func parseText(kind Kind, b []byte) ([]any, error) {
	clean := SanitizeNonFinite(b)
	var v any
	if err := json.Unmarshal(clean, &v); err != nil {
		log.Printf("%s: parse failed near %q", kind, prefix(clean, 200))
		return nil, &ParseError{Dataset: kind, Err: err}
	}
	seq, ok := v.([]any)
	if !ok {
		return nil, &ShapeError{Dataset: kind, Got: jsonTypeName(v)}
	}
	return seq, nil
}

func jsonTypeName(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case map[string]any:
		return "object"
	case string:
		return "string"
	case float64:
		return "number"
	case bool:
		return "boolean"
	}
	return fmt.Sprintf("%T", v)
}

func prefix(b []byte, n int) string {
	if len(b) > n {
		b = b[:n]
	}
	return string(b)
}

func decodeRecord(in any, out any) error {
	if _, ok := in.(map[string]any); !ok {
		return fmt.Errorf("record is %s, want object", jsonTypeName(in))
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return err
	}
	return dec.Decode(in)
}

type rawTrip struct {
	VehicleID   string       `mapstructure:"vehicle_id"`
	PassengerID string       `mapstructure:"passenger_id"`
	CarType     string       `mapstructure:"cartype"`
	Board       *float64     `mapstructure:"board"`
	Trip        [][]*float64 `mapstructure:"trip"`
	Timestamp   []*float64   `mapstructure:"timestamp"`
}

// DecodeTrips ingests the trip dataset. Records that cannot be decoded are
// skipped and counted in dropped.
func DecodeTrips(payload any) (trips []TripRecord, dropped int, err error) {
	seq, err := toSequence(KindTrips, payload)
	if err != nil {
		return nil, 0, err
	}
	trips = make([]TripRecord, 0, len(seq))
	for _, item := range seq {
		var raw rawTrip
		if err := decodeRecord(item, &raw); err != nil {
			dropped++
			continue
		}
		trips = append(trips, TripRecord{
			VehicleID:   raw.VehicleID,
			PassengerID: raw.PassengerID,
			CarType:     raw.CarType,
			Board:       int(numFromPtr(raw.Board).Or(0)),
			Path:        buildPath(raw.Trip, raw.Timestamp),
		})
	}
	return trips, dropped, nil
}

// buildPath zips coordinates with timestamps. When no timestamp list is
// given, the third element of each coordinate is the timestamp. Samples
// without a usable timestamp, or whose timestamp goes backwards, are dropped.
func buildPath(coords [][]*float64, stamps []*float64) []Sample {
	n := len(coords)
	tripleForm := len(stamps) == 0
	if !tripleForm && len(stamps) < n {
		n = len(stamps)
	}
	path := make([]Sample, 0, n)
	for i := 0; i < n; i++ {
		c := coords[i]
		var ts Num
		if tripleForm {
			if len(c) < 3 {
				continue
			}
			ts = numFromPtr(c[2])
		} else {
			ts = numFromPtr(stamps[i])
		}
		if !ts.Valid {
			continue
		}
		if len(path) > 0 && ts.Value < path[len(path)-1].Time {
			continue
		}
		s := Sample{Time: ts.Value}
		if len(c) >= 2 {
			s.Lon = numFromPtr(c[0])
			s.Lat = numFromPtr(c[1])
		}
		path = append(path, s)
	}
	return path
}

type rawMarker struct {
	VehicleID   string     `mapstructure:"vehicle_id"`
	PassengerID string     `mapstructure:"passenger_id"`
	CarType     string     `mapstructure:"cartype"`
	Status      any        `mapstructure:"status"`
	Location    []*float64 `mapstructure:"location"`
	Timestamp   any        `mapstructure:"timestamp"`
}

var statusCodes = map[MarkerKind][]string{
	VehicleMarker:   {StatusIdle, StatusDispatching, StatusOccupied},
	PassengerMarker: {StatusWaiting},
}

// DecodeMarkers ingests a vehicle or passenger marker dataset. A marker
// belongs to the minute floor(start) of its timestamp; markers without a
// usable timestamp are dropped.
func DecodeMarkers(kind MarkerKind, payload any) (markers []MarkerRecord, dropped int, err error) {
	dk := KindVehicleMarkers
	if kind == PassengerMarker {
		dk = KindPassengerMarkers
	}
	seq, err := toSequence(dk, payload)
	if err != nil {
		return nil, 0, err
	}
	markers = make([]MarkerRecord, 0, len(seq))
	for _, item := range seq {
		var raw rawMarker
		if err := decodeRecord(item, &raw); err != nil {
			dropped++
			continue
		}
		start, until := markerSpan(raw.Timestamp)
		if !start.Valid || !inMinuteRange(start.Value) {
			dropped++
			continue
		}
		m := MarkerRecord{
			Kind:    kind,
			ID:      raw.VehicleID,
			CarType: raw.CarType,
			Status:  markerStatus(kind, raw.Status),
			Minute:  int(math.Floor(start.Value)),
			Until:   until,
		}
		if kind == PassengerMarker {
			m.ID = raw.PassengerID
		}
		if len(raw.Location) >= 2 {
			m.Lon = numFromPtr(raw.Location[0])
			m.Lat = numFromPtr(raw.Location[1])
		}
		markers = append(markers, m)
	}
	return markers, dropped, nil
}

func markerSpan(v any) (start, until Num) {
	if k := reflect.ValueOf(v).Kind(); k != reflect.Slice && k != reflect.Array {
		return anyNum(v), Num{}
	}
	var span []*float64
	if err := mapstructure.WeakDecode(v, &span); err != nil {
		return Num{}, Num{}
	}
	if len(span) > 0 {
		start = numFromPtr(span[0])
	}
	if len(span) > 1 {
		until = numFromPtr(span[len(span)-1])
	}
	return start, until
}

// maxMinute bounds source minutes so they convert to int safely.
const maxMinute = 1e9

func inMinuteRange(v float64) bool { return v >= -maxMinute && v <= maxMinute }

func anyNum(v any) Num {
	switch n := v.(type) {
	case float64:
		return Some(n)
	case float32:
		return Some(float64(n))
	case int:
		return Some(float64(n))
	case int64:
		return Some(float64(n))
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return Num{}
		}
		return Some(f)
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return Num{}
		}
		return Some(f)
	}
	return Num{}
}

func markerStatus(kind MarkerKind, v any) string {
	if s, ok := v.(string); ok && strings.TrimSpace(s) != "" {
		if _, err := strconv.ParseFloat(s, 64); err != nil {
			return strings.ToLower(strings.TrimSpace(s))
		}
	}
	codes := statusCodes[kind]
	if n := anyNum(v); n.Valid {
		if i := int(n.Value); i >= 0 && i < len(codes) && float64(i) == n.Value {
			return codes[i]
		}
	}
	return codes[0]
}

type rawResult struct {
	Time               *float64            `mapstructure:"time"`
	DrivingVehicles    *float64            `mapstructure:"driving_vehicle_num"`
	DispatchedVehicles *float64            `mapstructure:"dispatched_vehicle_num"`
	OccupiedVehicles   *float64            `mapstructure:"occupied_vehicle_num"`
	IdleVehicles       *float64            `mapstructure:"empty_vehicle_num"`
	FailedPassengers   *float64            `mapstructure:"fail_passenger_cumNum"`
	WaitingPassengers  *float64            `mapstructure:"waiting_passenger_num"`
	AverageWaitMinutes *float64            `mapstructure:"average_waiting_time"`
	WaitingHistogram   map[string]*float64 `mapstructure:"current_waiting_time_dict"`
}

// DecodeResults ingests the per-minute result dataset. Minute indexes must
// be integral and unique; the first record for a minute wins.
func DecodeResults(payload any) (results []ResultRecord, dropped int, err error) {
	seq, err := toSequence(KindResults, payload)
	if err != nil {
		return nil, 0, err
	}
	results = make([]ResultRecord, 0, len(seq))
	seen := make(map[int]bool, len(seq))
	for _, item := range seq {
		var raw rawResult
		if err := decodeRecord(item, &raw); err != nil {
			dropped++
			continue
		}
		minute := numFromPtr(raw.Time)
		if !minute.Valid || minute.Value != math.Trunc(minute.Value) || !inMinuteRange(minute.Value) {
			dropped++
			continue
		}
		m := int(minute.Value)
		if seen[m] {
			dropped++
			continue
		}
		seen[m] = true
		hist := make(map[string]Num, len(raw.WaitingHistogram))
		for label, pct := range raw.WaitingHistogram {
			hist[label] = numFromPtr(pct)
		}
		results = append(results, ResultRecord{
			Minute:             m,
			DrivingVehicles:    numFromPtr(raw.DrivingVehicles),
			DispatchedVehicles: numFromPtr(raw.DispatchedVehicles),
			OccupiedVehicles:   numFromPtr(raw.OccupiedVehicles),
			IdleVehicles:       numFromPtr(raw.IdleVehicles),
			FailedPassengers:   numFromPtr(raw.FailedPassengers),
			WaitingPassengers:  numFromPtr(raw.WaitingPassengers),
			AverageWaitMinutes: numFromPtr(raw.AverageWaitMinutes),
			WaitingHistogram:   hist,
		})
	}
	return results, dropped, nil
}
