//go:build integration

package integration_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tckafka "github.com/testcontainers/testcontainers-go/modules/kafka"

	"github.com/couchcryptid/covid-data-etl/internal/adapter/jhu"
	kafkaadapter "github.com/couchcryptid/covid-data-etl/internal/adapter/kafka"
	"github.com/couchcryptid/covid-data-etl/internal/adapter/owid"
	"github.com/couchcryptid/covid-data-etl/internal/config"
	"github.com/couchcryptid/covid-data-etl/internal/domain"
	"github.com/couchcryptid/covid-data-etl/internal/observability"
	"github.com/couchcryptid/covid-data-etl/internal/pipeline"
	"github.com/couchcryptid/covid-data-etl/internal/store"
)

const testTopic = "test-artifact-refreshes"

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func startKafka(ctx context.Context, t *testing.T) string {
	t.Helper()

	container, err := tckafka.Run(ctx, "confluentinc/confluent-local:7.5.0")
	require.NoError(t, err, "start kafka container")
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	brokers, err := container.Brokers(ctx)
	require.NoError(t, err, "resolve kafka brokers")
	require.NotEmpty(t, brokers)
	return brokers[0]
}

func createTopic(t *testing.T, broker, topic string) {
	t.Helper()

	conn, err := kafkago.Dial("tcp", broker)
	require.NoError(t, err)
	defer conn.Close()

	controller, err := conn.Controller()
	require.NoError(t, err)

	ctrlConn, err := kafkago.Dial("tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	require.NoError(t, err)
	defer ctrlConn.Close()

	require.NoError(t, ctrlConn.CreateTopics(kafkago.TopicConfig{
		Topic:             topic,
		NumPartitions:     1,
		ReplicationFactor: 1,
	}))
}

// mockSources serves deterministic upstream feeds: a snapshot with an
// aggregate row and two wide time-series, one per metric, with a
// sub-national split for Australia.
func mockSources(t *testing.T) *httptest.Server {
	t.Helper()

	snapshot := "iso_code,location,last_updated_date\n" +
		"OWID_WRL,World,2021-07-15\n" +
		"FRA,France,2021-07-15\n" +
		"AUS,Australia,2021-07-15\n"
	confirmed := "Province/State,Country/Region,Lat,Long,7/13/21,7/14/21,7/15/21\n" +
		",France,46.2,2.2,100,110,120\n" +
		"New South Wales,Australia,-33.8,151.2,40,44,48\n" +
		"Victoria,Australia,-37.8,144.9,60,66,72\n"
	deaths := "Province/State,Country/Region,Lat,Long,7/13/21,7/14/21,7/15/21\n" +
		",France,46.2,2.2,10,11,12\n" +
		"New South Wales,Australia,-33.8,151.2,4,4,5\n" +
		"Victoria,Australia,-37.8,144.9,6,7,7\n"

	mux := http.NewServeMux()
	mux.HandleFunc("/snapshot.csv", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, snapshot)
	})
	mux.HandleFunc("/time_series_covid19_confirmed_global.csv", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, confirmed)
	})
	mux.HandleFunc("/time_series_covid19_deaths_global.csv", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, deaths)
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

// TestRefreshPublishesToKafka wires the full pipeline (source adapters →
// transforms → store → Kafka notifier) against real Kafka and verifies both
// the persisted artifacts and the published refresh events.
func TestRefreshPublishesToKafka(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testTopic)

	sources := mockSources(t)
	dataDir := t.TempDir()

	cfg := &config.Config{
		KafkaBrokers: []string{broker},
		KafkaTopic:   testTopic,
	}

	logger := discardLogger()
	metrics := observability.NewMetricsForTesting()

	artifacts, err := store.New(dataDir, logger, metrics)
	require.NoError(t, err)

	snapshots := owid.NewClient(sources.URL+"/snapshot.csv", 10*time.Second, logger, metrics)
	series := jhu.NewClient(sources.URL+"/time_series_covid19", 10*time.Second, logger, metrics)

	writer := kafkaadapter.NewWriter(cfg, logger)
	t.Cleanup(func() { _ = writer.Close() })

	clock := clockwork.NewFakeClockAt(time.Date(2021, time.July, 15, 9, 30, 0, 0, time.UTC))
	svc := pipeline.New(snapshots, series, artifacts, writer, logger, metrics, clock, time.Hour)

	require.NoError(t, svc.Refresh(ctx))

	// Artifacts are on disk.
	for _, artifact := range domain.Artifacts {
		info, err := os.Stat(filepath.Join(dataDir, string(artifact)+".csv"))
		require.NoError(t, err, "artifact %s", artifact)
		assert.Positive(t, info.Size())
	}

	// One refresh event per artifact on the topic.
	consumer := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:     []string{broker},
		Topic:       testTopic,
		GroupID:     fmt.Sprintf("test-consumer-%d", time.Now().UnixNano()),
		StartOffset: kafkago.FirstOffset,
	})
	t.Cleanup(func() { _ = consumer.Close() })

	seen := map[domain.Artifact]domain.RefreshEvent{}
	for len(seen) < len(domain.Artifacts) {
		readCtx, readCancel := context.WithTimeout(ctx, 30*time.Second)
		msg, err := consumer.ReadMessage(readCtx)
		readCancel()
		require.NoError(t, err, "read refresh event")

		var event domain.RefreshEvent
		require.NoError(t, json.Unmarshal(msg.Value, &event))
		assert.Equal(t, string(event.Artifact), string(msg.Key))
		seen[event.Artifact] = event
	}

	// The snapshot dropped its aggregate row.
	assert.Equal(t, 2, seen[domain.ArtifactLatest].Rows)
	// Three observed days produce two deltas.
	assert.Equal(t, 2, seen[domain.ArtifactDailyDifferences].Rows)
	assert.Equal(t, time.Date(2021, time.July, 15, 0, 0, 0, 0, time.UTC),
		seen[domain.ArtifactDailyDifferences].LastDate)

	// Reads served after the refresh reflect the merged, aggregated feeds.
	diffs, err := svc.RecentDailyDiffs(ctx)
	require.NoError(t, err)
	require.Len(t, diffs, 2)
	// France 100→110→120 plus Australia 100→110→120 combined.
	assert.Equal(t, int64(20), diffs[0].Confirmed)

	points, err := svc.TimeSeries(ctx)
	require.NoError(t, err)
	countries := map[string]int64{}
	for _, p := range points {
		countries[p.Country] = p.Confirmed
	}
	// Sub-national rows were summed into one national series.
	assert.Equal(t, int64(100), countries["Australia"])
}
