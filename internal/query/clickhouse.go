// Package query implements the optional persistent-storage side of
// connmon's domain stack: a ClickHouse-backed Sink that stores every
// Observation the classifier emits, and a Querier that serves aggregate
// flow statistics back out over cmd/connmon-api. Grounded on the teacher's
// internal/engine/impl/exact/writer_clickhouse.go (batch insert, table
// bootstrap) and internal/query/querier.go (query building), re-keyed from
// flow_metrics snapshots to per-packet Observations and with the
// protobuf/v1 request types dropped in favor of plain JSON (see
// SPEC_FULL.md §2's dropped-dependency note on grpc/protobuf).
package query

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"connmon/internal/config"
	"connmon/internal/model"
)

const createObservationsTable = `
CREATE TABLE IF NOT EXISTS observations (
    CaptureTime    DateTime64(6),
    FlowName       String,
    TSRTT          Nullable(Float64),
    SeqRTT         Nullable(Float64),
    DSeq           Nullable(Int32),
    DupACKInterval Nullable(Float64),
    PayloadLen     UInt32,
    FlowBytes      UInt64
) ENGINE = MergeTree()
PARTITION BY toYYYYMM(CaptureTime)
ORDER BY (FlowName, CaptureTime);
`

func connect(cfg config.ClickHouseConfig) (driver.Conn, error) {
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{addr},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		Compression: &clickhouse.Compression{Method: clickhouse.CompressionLZ4},
	})
	if err != nil {
		return nil, err
	}
	if err := conn.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to ping clickhouse: %w", err)
	}
	return conn, nil
}

// ClickHouseSink implements sink.Sink and sink.Flusher, batching
// Observations in memory and flushing them to ClickHouse either when the
// batch fills or when Flush is called, the same batch-on-interval shape as
// the teacher's ClickHouseWriter.
type ClickHouseSink struct {
	conn      driver.Conn
	pending   []model.Observation
	batchSize int
}

// NewClickHouseSink connects to ClickHouse, ensures the observations table
// exists, and returns a sink that batches writes in groups of batchSize.
func NewClickHouseSink(cfg config.ClickHouseConfig, batchSize int) (*ClickHouseSink, error) {
	conn, err := connect(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to clickhouse: %w", err)
	}
	if err := conn.Exec(context.Background(), createObservationsTable); err != nil {
		return nil, fmt.Errorf("failed to create observations table: %w", err)
	}
	if batchSize <= 0 {
		batchSize = 500
	}
	return &ClickHouseSink{conn: conn, batchSize: batchSize}, nil
}

// Write appends obs to the pending batch, flushing immediately once the
// batch reaches its configured size.
func (s *ClickHouseSink) Write(obs model.Observation) error {
	s.pending = append(s.pending, obs)
	if len(s.pending) >= s.batchSize {
		return s.Flush()
	}
	return nil
}

// Flush sends any pending Observations to ClickHouse as a single batch.
func (s *ClickHouseSink) Flush() error {
	if len(s.pending) == 0 {
		return nil
	}
	batch, err := s.conn.PrepareBatch(context.Background(), "INSERT INTO observations")
	if err != nil {
		return fmt.Errorf("failed to prepare batch: %w", err)
	}
	for _, o := range s.pending {
		capTime := time.Unix(o.CaptureSec, o.CaptureUsec*1000)
		if err := batch.Append(
			capTime,
			o.FlowName,
			nullableFloat(o.TSRTT, o.TSRTTOk),
			nullableFloat(o.SeqRTT, o.SeqRTTOk),
			nullableInt32(o.DSeq, o.DSeqOk),
			nullableFloat(o.DupACKInterval, o.DupACKOk),
			uint32(o.PayloadLen),
			o.FlowBytes,
		); err != nil {
			return fmt.Errorf("failed to append observation to batch: %w", err)
		}
	}
	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to send batch: %w", err)
	}
	s.pending = s.pending[:0]
	return nil
}

// Close flushes any remaining batch and closes the underlying connection.
func (s *ClickHouseSink) Close() error {
	if err := s.Flush(); err != nil {
		return err
	}
	return s.conn.Close()
}

func nullableFloat(v float64, ok bool) interface{} {
	if !ok {
		return nil
	}
	return v
}

func nullableInt32(v int32, ok bool) interface{} {
	if !ok {
		return nil
	}
	return v
}
