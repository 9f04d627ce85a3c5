package api_test

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"procodus.dev/tempmon/internal/api"
	"procodus.dev/tempmon/internal/ingest"
	"procodus.dev/tempmon/internal/store"
	"procodus.dev/tempmon/internal/submission"
	"procodus.dev/tempmon/pkg/logger"
	"procodus.dev/tempmon/pkg/metrics"
)

func ptr[T any](v T) *T { return &v }

var _ = Describe("Router", func() {
	var (
		st       *fakeStore
		ingester *fakeIngester
		m        *metrics.APIMetrics
		router   http.Handler
		now      time.Time
	)

	BeforeEach(func() {
		st = &fakeStore{}
		ingester = &fakeIngester{}
		m = metrics.NewAPIMetrics("test", prometheus.NewRegistry())
		now = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

		var err error
		router, err = api.NewRouter(&api.Config{
			Logger:   logger.Discard(),
			Store:    st,
			Ingester: ingester,
			Metrics:  m,
			Now:      func() time.Time { return now },
		})
		Expect(err).NotTo(HaveOccurred())
	})

	serve := func(req *http.Request) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec
	}

	get := func(target string) *httptest.ResponseRecorder {
		return serve(httptest.NewRequest(http.MethodGet, target, nil))
	}

	Describe("NewRouter", func() {
		DescribeTable("rejects incomplete configuration",
			func(cfg *api.Config, msg string) {
				h, err := api.NewRouter(cfg)
				Expect(h).To(BeNil())
				Expect(err).To(MatchError(ContainSubstring(msg)))
			},
			Entry("nil config", nil, "config cannot be nil"),
			Entry("no logger", &api.Config{Store: &fakeStore{}, Ingester: &fakeIngester{}}, "logger cannot be nil"),
			Entry("no store", &api.Config{Logger: logger.Discard(), Ingester: &fakeIngester{}}, "store cannot be nil"),
			Entry("no ingester", &api.Config{Logger: logger.Discard(), Store: &fakeStore{}}, "ingester cannot be nil"),
		)
	})

	Describe("POST /request", func() {
		post := func(body string, headers map[string]string, query string) *httptest.ResponseRecorder {
			req := httptest.NewRequest(http.MethodPost, "/request"+query, strings.NewReader(body))
			req.Header.Set("Content-Type", "application/json")
			for k, v := range headers {
				req.Header.Set(k, v)
			}
			return serve(req)
		}

		It("acknowledges a temperature reading with its receipt text", func() {
			rec := post(`{"type":"TEMPERATURE","temperature":22}`, map[string]string{
				"X-MAC-Address": "AA:BB:CC:DD:EE:FF",
				"X-Device-Name": "Office",
			}, "")

			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(rec.Header().Get("Content-Type")).To(HavePrefix("text/plain"))
			Expect(rec.Body.String()).To(Equal("Received TemperatureRequest: Temp=22"))

			Expect(ingester.calls).To(HaveLen(1))
			origin := ingester.calls[0].origin
			Expect(origin.Transport).To(Equal(ingest.TransportHTTP))
			Expect(origin.MACAddress).To(Equal("AA:BB:CC:DD:EE:FF"))
			Expect(origin.DeviceName).To(Equal("Office"))
			Expect(origin.RemoteIP).To(Equal("192.0.2.1"))
		})

		It("reads the side channel from the query string when headers are absent", func() {
			rec := post(`{"type":"HUMIDITY","humidity":40.5}`, nil, "?X-MAC-Address=11:22:33:44:55:66&X-Device-Name=Kitchen")

			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(rec.Body.String()).To(Equal("Received HumidityRequest: Humidity=40.5"))
			Expect(ingester.calls[0].origin.MACAddress).To(Equal("11:22:33:44:55:66"))
			Expect(ingester.calls[0].origin.DeviceName).To(Equal("Kitchen"))
		})

		It("prefers the header over the query string", func() {
			post(`{"type":"TEMPERATURE","temperature":1}`, map[string]string{"X-Device-Name": "Header"}, "?X-Device-Name=Query")
			Expect(ingester.calls[0].origin.DeviceName).To(Equal("Header"))
		})

		It("records the peer address and ignores client supplied forwarding headers", func() {
			req := httptest.NewRequest(http.MethodPost, "/request", strings.NewReader(`{"type":"TEMPERATURE","temperature":1}`))
			req.RemoteAddr = "192.168.1.50:4000"
			req.Header.Set("X-Forwarded-For", "6.6.6.6")
			req.Header.Set("X-Real-IP", "203.0.113.7")
			req.Header.Set("True-Client-IP", "198.51.100.9")

			rec := serve(req)
			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(ingester.calls).To(HaveLen(1))
			Expect(ingester.calls[0].origin.RemoteIP).To(Equal("192.168.1.50"))
		})

		It("decodes the variant selected by the tag", func() {
			post(`{"type":"TEMPERATURE_HUMIDITY","temperature":21.5,"humidity":40}`, nil, "")
			Expect(ingester.calls[0].sub).To(Equal(submission.TemperatureHumidity{Temperature: ptr(21.5), Humidity: ptr(40.0)}))
		})

		DescribeTable("rejects undecodable bodies without calling the store",
			func(body string) {
				rec := post(body, nil, "")
				Expect(rec.Code).To(Equal(http.StatusBadRequest))
				Expect(rec.Header().Get("Content-Type")).To(HavePrefix("text/plain"))
				Expect(rec.Body.String()).To(HavePrefix("Invalid request body: "))
				Expect(ingester.calls).To(BeEmpty())
			},
			Entry("unknown tag", `{"type":"PRESSURE","pressure":1013}`),
			Entry("missing tag", `{"temperature":22}`),
			Entry("not json", `hello`),
		)

		It("reports validation failures as invalid bodies", func() {
			ingester.err = ingest.ErrEmptySubmission
			rec := post(`{"type":"TEMPERATURE_HUMIDITY"}`, nil, "")

			Expect(rec.Code).To(Equal(http.StatusBadRequest))
			Expect(rec.Body.String()).To(Equal("Invalid request body: submission carries neither temperature nor humidity"))
		})

		It("reports store failures with their cause", func() {
			ingester.err = &store.Error{Op: store.OpSave, Err: errors.New("connection refused")}
			rec := post(`{"type":"TEMPERATURE","temperature":1}`, nil, "")

			Expect(rec.Code).To(Equal(http.StatusBadRequest))
			Expect(rec.Body.String()).To(ContainSubstring("connection refused"))
		})
	})

	Describe("GET /measurements", func() {
		It("returns the page and the total count", func() {
			st.measurements = []store.Measurement{{ID: 2, Temperature: ptr(20.0)}, {ID: 1}}
			st.count = 7

			rec := get("/measurements?limit=2&offset=4")
			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(rec.Header().Get("Content-Type")).To(Equal("application/json"))

			var body struct {
				Measurements []store.Measurement `json:"measurements"`
				Count        int64               `json:"count"`
			}
			Expect(json.Unmarshal(rec.Body.Bytes(), &body)).To(Succeed())
			Expect(body.Count).To(Equal(int64(7)))
			Expect(body.Measurements).To(HaveLen(2))
			Expect(st.lastPage).To(Equal(store.Page{Limit: 2, Offset: 4}))
		})

		DescribeTable("falls back to default paging",
			func(query string) {
				get("/measurements" + query)
				Expect(st.lastPage).To(Equal(store.DefaultPage()))
			},
			Entry("absent", ""),
			Entry("unparsable", "?limit=ten&offset=x"),
			Entry("negative", "?limit=-1&offset=-5"),
		)

		It("renders an empty table as an empty list", func() {
			rec := get("/measurements")
			Expect(rec.Body.String()).To(MatchJSON(`{"measurements":[],"count":0}`))
		})

		It("reports store failures as 400", func() {
			st.err = &store.Error{Op: store.OpAll, Err: errors.New("db down")}
			rec := get("/measurements")

			Expect(rec.Code).To(Equal(http.StatusBadRequest))
			Expect(rec.Body.String()).To(Equal("Error retrieving measurements: all: db down"))
		})
	})

	Describe("GET /measurements/device", func() {
		It("requires deviceMac", func() {
			rec := get("/measurements/device")
			Expect(rec.Code).To(Equal(http.StatusBadRequest))
			Expect(rec.Body.String()).To(Equal("missing required parameter: deviceMac"))
		})

		It("reads deviceMac from the query string", func() {
			rec := get("/measurements/device?deviceMac=AA:BB&limit=5")
			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(st.lastMAC).To(Equal("AA:BB"))
			Expect(st.lastPage.Limit).To(Equal(5))
		})

		It("falls back to the deviceMac header", func() {
			req := httptest.NewRequest(http.MethodGet, "/measurements/device", nil)
			req.Header.Set("deviceMac", "CC:DD")
			rec := serve(req)

			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(st.lastMAC).To(Equal("CC:DD"))
		})
	})

	Describe("time windows", func() {
		It("defaults to the last 24 hours", func() {
			get("/measurements/timerange")
			Expect(st.lastRange).To(HaveValue(Equal(store.TimeRange{Start: now.Add(-24 * time.Hour), End: now})))
		})

		It("parses RFC 3339 and zone-less date-times", func() {
			get("/measurements/timerange?startTime=2025-01-01T00:00:00%2B02:00&endTime=2025-01-02T10:30:00")
			Expect(st.lastRange).To(HaveValue(Equal(store.TimeRange{
				Start: time.Date(2024, 12, 31, 22, 0, 0, 0, time.UTC),
				End:   time.Date(2025, 1, 2, 10, 30, 0, 0, time.UTC),
			})))
		})

		It("defaults a missing bound independently", func() {
			get("/measurements/avgTemperature?startTime=2025-05-01T00:00:00Z")
			Expect(st.lastRange.Start).To(Equal(time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)))
			Expect(st.lastRange.End).To(Equal(now))
		})

		DescribeTable("rejects unparsable bounds",
			func(target string) {
				rec := get(target)
				Expect(rec.Code).To(Equal(http.StatusBadRequest))
				Expect(rec.Body.String()).To(ContainSubstring("invalid date-time parameter"))
			},
			Entry("timerange", "/measurements/timerange?startTime=yesterday"),
			Entry("avgTemperature", "/measurements/avgTemperature?endTime=2025-13-01T00:00:00"),
			Entry("avgHumidity", "/measurements/avgHumidity?startTime=1700000000"),
			Entry("room", "/rooms/measurements?room=A&endTime=noon"),
		)
	})

	Describe("averages", func() {
		It("returns a bare number", func() {
			st.average = ptr(21.0)
			rec := get("/measurements/avgTemperature")
			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(rec.Body.String()).To(Equal("21"))
		})

		It("returns null when there is nothing to average", func() {
			rec := get("/measurements/avgHumidity")
			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(rec.Body.String()).To(Equal("null"))
		})
	})

	Describe("GET /measurements/latest", func() {
		It("returns the store rows", func() {
			st.measurements = []store.Measurement{{ID: 9, DeviceName: ptr("A")}}
			rec := get("/measurements/latest")
			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(rec.Body.String()).To(ContainSubstring(`"deviceName":"A"`))
		})
	})

	Describe("GET /devices", func() {
		It("renders devices with macAddress and name", func() {
			st.devices = []store.Device{{MACAddress: "m1", Name: "A"}}
			rec := get("/devices")
			Expect(rec.Body.String()).To(MatchJSON(`[{"macAddress":"m1","name":"A"}]`))
		})
	})

	Describe("GET /rooms", func() {
		It("renders rooms with their devices", func() {
			st.rooms = []store.Room{{Name: "A", Devices: []store.Device{{MACAddress: "m1", Name: "A"}}}}
			rec := get("/rooms?limit=1")
			Expect(rec.Body.String()).To(MatchJSON(`[{"name":"A","devices":[{"macAddress":"m1","name":"A"}]}]`))
			Expect(st.lastPage.Limit).To(Equal(1))
		})

		It("renders no rooms as an empty list", func() {
			Expect(get("/rooms").Body.String()).To(Equal("[]"))
		})
	})

	Describe("GET /rooms/measurements", func() {
		It("requires room", func() {
			rec := get("/rooms/measurements")
			Expect(rec.Code).To(Equal(http.StatusBadRequest))
			Expect(rec.Body.String()).To(Equal("missing required parameter: room"))
		})

		It("does not narrow by time unless asked to", func() {
			get("/rooms/measurements?room=Kitchen")
			Expect(st.lastRoom).To(Equal("Kitchen"))
			Expect(st.lastRange).To(BeNil())
			Expect(st.lastPage).To(Equal(store.DefaultPage()))
		})

		It("narrows by the requested window", func() {
			get("/rooms/measurements?room=Kitchen&startTime=2025-05-31T12:00:00Z")
			Expect(st.lastRange).To(HaveValue(Equal(store.TimeRange{
				Start: time.Date(2025, 5, 31, 12, 0, 0, 0, time.UTC),
				End:   now,
			})))
		})
	})

	Describe("CORS", func() {
		It("answers preflight requests", func() {
			req := httptest.NewRequest(http.MethodOptions, "/measurements/latest", nil)
			req.Header.Set("Origin", "http://dashboard.local")
			req.Header.Set("Access-Control-Request-Method", "GET")
			rec := serve(req)

			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(rec.Header().Get("Access-Control-Allow-Origin")).To(Equal("*"))
			Expect(rec.Header().Get("Access-Control-Allow-Methods")).To(Equal("GET, POST, PUT, DELETE, OPTIONS"))
			Expect(rec.Header().Get("Access-Control-Allow-Headers")).To(ContainSubstring("X-MAC-Address"))
			Expect(rec.Header().Get("Access-Control-Allow-Credentials")).To(Equal("true"))
		})

		It("decorates error responses too", func() {
			rec := get("/rooms/measurements")
			Expect(rec.Code).To(Equal(http.StatusBadRequest))
			Expect(rec.Header().Get("Access-Control-Allow-Origin")).To(Equal("*"))
		})
	})

	Describe("handler panics", func() {
		It("are reported as 400 text with the cause", func() {
			st.panicValue = "connection pool exhausted"

			rec := get("/measurements")
			Expect(rec.Code).To(Equal(http.StatusBadRequest))
			Expect(rec.Header().Get("Content-Type")).To(HavePrefix("text/plain"))
			Expect(rec.Body.String()).To(Equal("Error handling request: connection pool exhausted"))
			Expect(rec.Header().Get("Access-Control-Allow-Origin")).To(Equal("*"))
		})

		It("keep the router serving afterwards", func() {
			st.panicValue = errors.New("boom")
			Expect(get("/measurements").Code).To(Equal(http.StatusBadRequest))

			st.panicValue = nil
			Expect(get("/measurements").Code).To(Equal(http.StatusOK))
		})

		It("re-raise http.ErrAbortHandler", func() {
			st.panicValue = http.ErrAbortHandler
			Expect(func() { get("/measurements") }).To(PanicWith(http.ErrAbortHandler))
		})
	})

	Describe("operational endpoints", func() {
		It("reports health", func() {
			rec := get("/health")
			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(rec.Body.String()).To(MatchJSON(`{"status":"ok"}`))
		})

		It("exposes Prometheus metrics", func() {
			rec := get("/metrics")
			Expect(rec.Code).To(Equal(http.StatusOK))
		})

		It("counts requests by route pattern", func() {
			get("/devices")
			get("/devices?limit=3")
			Expect(testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", "/devices", "200"))).To(Equal(2.0))
		})
	})
})
