package scylla

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gocql/gocql"
	"go.uber.org/zap"

	"analytics-service/internal/config"
	"analytics-service/internal/util"
)

// Expected schema:
//
//	CREATE TABLE analytics_events (
//	    partition_key       text,      -- YYYYMMDD date bucket
//	    row_key             text,
//	    event_type          text,
//	    user_id             text,
//	    session_id          text,
//	    timestamp_utc       timestamp,
//	    server_timestamp    timestamp,
//	    url                 text,
//	    referrer            text,
//	    browser             text,
//	    device              text,
//	    screen_size         text,
//	    ip_address          text,
//	    latitude            double,
//	    longitude           double,
//	    city                text,
//	    country             text,
//	    batch_id            text,
//	    processed_timestamp timestamp,
//	    properties_json     text,
//	    PRIMARY KEY (partition_key, row_key)
//	);

// PreparedStatements holds the statements used by the event repository.
type PreparedStatements struct {
	InsertEvent   *gocql.Query
	ScanFrom      *gocql.Query
	ScanPartition *gocql.Query
}

type ScyllaClient struct {
	Session      *gocql.Session
	config       *config.ScyllaConfig
	Prepared     *PreparedStatements
	prepareMutex sync.Mutex
	isPrepared   bool
}

func NewScyllaClient(cfg *config.Config, logger *zap.Logger) (*ScyllaClient, error) {
	scyllaConfig := cfg.Scylla

	cluster := gocql.NewCluster(scyllaConfig.Nodes...)
	cluster.Keyspace = scyllaConfig.Keyspace
	cluster.Consistency = gocql.LocalQuorum
	cluster.Timeout = 10 * time.Second
	cluster.ConnectTimeout = 10 * time.Second
	cluster.NumConns = 4
	cluster.SocketKeepalive = 30 * time.Second
	cluster.PageSize = 1000
	cluster.RetryPolicy = &gocql.ExponentialBackoffRetryPolicy{
		Min:        time.Second,
		Max:        10 * time.Second,
		NumRetries: 3,
	}

	if scyllaConfig.Username != "" && scyllaConfig.Password != "" {
		cluster.Authenticator = gocql.PasswordAuthenticator{
			Username: scyllaConfig.Username,
			Password: scyllaConfig.Password,
		}
	}

	session, err := cluster.CreateSession()
	if err != nil {
		return nil, fmt.Errorf("failed to create scylla session: %w", err)
	}

	client := &ScyllaClient{
		Session: session,
		config:  &scyllaConfig,
	}

	if err := client.prepareStatements(); err != nil {
		session.Close()
		return nil, fmt.Errorf("failed to prepare statements: %w", err)
	}

	util.Info("ScyllaDB client initialized with prepared statements",
		zap.Strings("nodes", scyllaConfig.Nodes),
		zap.String("keyspace", scyllaConfig.Keyspace))

	return client, nil
}

const eventColumns = `partition_key, row_key, event_type, user_id, session_id,
        timestamp_utc, server_timestamp, url, referrer, browser, device,
        screen_size, ip_address, latitude, longitude, city, country,
        batch_id, processed_timestamp, properties_json`

func (s *ScyllaClient) prepareStatements() error {
	s.prepareMutex.Lock()
	defer s.prepareMutex.Unlock()

	if s.isPrepared {
		return nil
	}

	prepared := &PreparedStatements{}

	// INSERT is a native upsert in Cassandra: rewriting the same
	// (partition_key, row_key) replaces the row.
	prepared.InsertEvent = s.Session.Query(fmt.Sprintf(`
        INSERT INTO analytics_events (%s)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, eventColumns))

	// Inclusive lower bound, no upper bound: the dashboard window always
	// includes today and any future-dated partitions.
	prepared.ScanFrom = s.Session.Query(fmt.Sprintf(`
        SELECT %s FROM analytics_events WHERE partition_key >= ? ALLOW FILTERING`, eventColumns))

	prepared.ScanPartition = s.Session.Query(fmt.Sprintf(`
        SELECT %s FROM analytics_events WHERE partition_key = ?`, eventColumns))

	s.Prepared = prepared
	s.isPrepared = true

	util.Info("ScyllaDB prepared statements created")
	return nil
}

func (s *ScyllaClient) Close() {
	if s.Session != nil {
		s.Session.Close()
		util.Info("ScyllaDB client closed")
	}
}

func (s *ScyllaClient) Query(stmt string, values ...interface{}) *gocql.Query {
	return s.Session.Query(stmt, values...)
}

func (s *ScyllaClient) HealthCheck() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var clusterName string
	err := s.Session.Query(`SELECT cluster_name FROM system.local`).WithContext(ctx).Scan(&clusterName)
	if err != nil {
		return fmt.Errorf("scylla health check failed: %w", err)
	}

	util.Debug("ScyllaDB health check passed", zap.String("cluster_name", clusterName))
	return nil
}
