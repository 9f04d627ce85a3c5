package api

import (
	"net/http"
	"strconv"
	"time"

	"procodus.dev/tempmon/internal/store"
)

// Request parameter and header names.
const (
	paramLimit     = "limit"
	paramOffset    = "offset"
	paramStartTime = "startTime"
	paramEndTime   = "endTime"
	paramDeviceMAC = "deviceMac"
	paramRoom      = "room"

	headerMACAddress = "X-MAC-Address"
	headerDeviceName = "X-Device-Name"
)

// localDateTime is an ISO-8601 date-time without zone, read as UTC.
const localDateTime = "2006-01-02T15:04:05.999999999"

// pageParams reads limit and offset. Absent, unparsable or negative values
// fall back to the defaults.
func pageParams(r *http.Request) store.Page {
	q := r.URL.Query()
	return store.Page{
		Limit:  intParam(q.Get(paramLimit), store.DefaultLimit),
		Offset: intParam(q.Get(paramOffset), store.DefaultOffset),
	}
}

func intParam(raw string, fallback int) int {
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return fallback
	}
	return v
}

// timeRangeParams reads startTime and endTime. Each bound missing from the
// request defaults to the last 24 hours before now.
func timeRangeParams(r *http.Request, now time.Time) (store.TimeRange, error) {
	tr := store.LastDay(now.UTC())

	q := r.URL.Query()
	if raw := q.Get(paramStartTime); raw != "" {
		t, err := parseTime(raw)
		if err != nil {
			return store.TimeRange{}, invalidParam(paramStartTime)
		}
		tr.Start = t
	}
	if raw := q.Get(paramEndTime); raw != "" {
		t, err := parseTime(raw)
		if err != nil {
			return store.TimeRange{}, invalidParam(paramEndTime)
		}
		tr.End = t
	}
	return tr, nil
}

// optionalTimeRange returns nil unless the request names a bound.
func optionalTimeRange(r *http.Request, now time.Time) (*store.TimeRange, error) {
	q := r.URL.Query()
	if q.Get(paramStartTime) == "" && q.Get(paramEndTime) == "" {
		return nil, nil
	}
	tr, err := timeRangeParams(r, now)
	if err != nil {
		return nil, err
	}
	return &tr, nil
}

func parseTime(raw string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		return t.UTC(), nil
	}
	return time.ParseInLocation(localDateTime, raw, time.UTC)
}

// sideChannel reads a sender attribute from the header, falling back to
// the query parameter of the same name.
func sideChannel(r *http.Request, name string) string {
	if v := r.Header.Get(name); v != "" {
		return v
	}
	return r.URL.Query().Get(name)
}

// requiredParam reads name from the query string, falling back to the
// header of the same name.
func requiredParam(r *http.Request, name string) (string, error) {
	if v := r.URL.Query().Get(name); v != "" {
		return v, nil
	}
	if v := r.Header.Get(name); v != "" {
		return v, nil
	}
	return "", missingParam(name)
}
