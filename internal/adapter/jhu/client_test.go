package jhu

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/covid-data-etl/internal/domain"
	"github.com/couchcryptid/covid-data-etl/internal/observability"
)

// Australia is split into two states that must collapse into one national
// total per date; Kenya reports nationally already.
const confirmedCSV = `Province/State,Country/Region,Lat,Long,3/1/22,3/2/22,3/3/22
New South Wales,Australia,-33.87,151.2,900,950,1000
Victoria,Australia,-37.81,144.96,600,640,700
,Kenya,-0.02,37.9,100,150,300
`

func testClient(baseURL string) *Client {
	return NewClient(baseURL, 5*time.Second,
		slog.New(slog.NewTextHandler(io.Discard, nil)),
		observability.NewMetricsForTesting())
}

func seriesServer(t *testing.T, metric string, payload string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, fmt.Sprintf("/time_series_covid19_%s_global.csv", metric), r.URL.Path)
		w.Header().Set("Content-Type", "text/csv")
		_, _ = w.Write([]byte(payload))
	}))
}

func TestFetchMetricSeries_AggregatesSubNationalRows(t *testing.T) {
	srv := seriesServer(t, "confirmed", confirmedCSV)
	defer srv.Close()

	series, err := testClient(srv.URL+"/time_series_covid19").FetchMetricSeries(context.Background(), domain.MetricConfirmed)
	require.NoError(t, err)

	assert.Equal(t, domain.MetricConfirmed, series.Metric)
	// 2 countries x 3 dates: exactly one value per (region, date) pair.
	assert.Len(t, series.Values, 6)

	day1 := time.Date(2022, 3, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, int64(1500), series.Values[domain.SeriesKey{Country: "Australia", Date: day1}])
	assert.Equal(t, int64(100), series.Values[domain.SeriesKey{Country: "Kenya", Date: day1}])

	day3 := time.Date(2022, 3, 3, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, int64(1700), series.Values[domain.SeriesKey{Country: "Australia", Date: day3}])
}

func TestFetchMetricSeries_InvalidMetric(t *testing.T) {
	_, err := testClient("http://unused").FetchMetricSeries(context.Background(), domain.Metric("recovered"))
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInvalidMetric)
}

func TestFetchMetricSeries_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := testClient(srv.URL + "/time_series_covid19").FetchMetricSeries(context.Background(), domain.MetricDeaths)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrSourceUnavailable)
}

func TestFetchMetricSeries_UnexpectedColumn(t *testing.T) {
	payload := "Province/State,Country/Region,Lat,Long,not-a-date\n,Kenya,0,0,1\n"
	srv := seriesServer(t, "confirmed", payload)
	defer srv.Close()

	_, err := testClient(srv.URL+"/time_series_covid19").FetchMetricSeries(context.Background(), domain.MetricConfirmed)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrSourceUnavailable)
	assert.Contains(t, err.Error(), "not-a-date")
}

func TestFetchMetricSeries_NonNumericCount(t *testing.T) {
	payload := "Province/State,Country/Region,Lat,Long,3/1/22\n,Kenya,0,0,many\n"
	srv := seriesServer(t, "confirmed", payload)
	defer srv.Close()

	_, err := testClient(srv.URL+"/time_series_covid19").FetchMetricSeries(context.Background(), domain.MetricConfirmed)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrSourceUnavailable)
	assert.Contains(t, err.Error(), "many")
}

func TestFetchMetricSeries_EmptyPayload(t *testing.T) {
	srv := seriesServer(t, "deaths", "Province/State,Country/Region,Lat,Long\n")
	defer srv.Close()

	_, err := testClient(srv.URL+"/time_series_covid19").FetchMetricSeries(context.Background(), domain.MetricDeaths)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrSourceUnavailable)
}
