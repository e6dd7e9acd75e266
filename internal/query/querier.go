package query

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"connmon/internal/config"
)

// FlowSummary aggregates the Observations recorded for one flow over a
// window, the per-flow rollup cmd/connmon-api serves from /api/v1/flows.
type FlowSummary struct {
	FlowName     string  `json:"flow_name"`
	Observations uint64  `json:"observations"`
	FlowBytes    uint64  `json:"flow_bytes"`
	AvgTSRTT     float64 `json:"avg_ts_rtt"`
	AvgSeqRTT    float64 `json:"avg_seq_rtt"`
}

// ObservationRow is one stored Observation as returned by FlowTrace.
type ObservationRow struct {
	CaptureTime    time.Time `json:"capture_time"`
	TSRTT          *float64  `json:"ts_rtt,omitempty"`
	SeqRTT         *float64  `json:"seq_rtt,omitempty"`
	DSeq           *int32    `json:"dseq,omitempty"`
	DupACKInterval *float64  `json:"dup_ack_interval,omitempty"`
	PayloadLen     uint32    `json:"payload_len"`
	FlowBytes      uint64    `json:"flow_bytes"`
}

// Querier serves read-side aggregate and per-flow queries over the
// observations table populated by ClickHouseSink.
type Querier struct {
	conn driver.Conn
}

// NewQuerier connects to ClickHouse for read-only queries.
func NewQuerier(cfg config.ClickHouseConfig) (*Querier, error) {
	conn, err := connect(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to clickhouse: %w", err)
	}
	return &Querier{conn: conn}, nil
}

// FlowSummaries aggregates observations into one row per flow, optionally
// restricted to a single flow name and/or a start time.
func (q *Querier) FlowSummaries(ctx context.Context, flowName string, since time.Time) ([]FlowSummary, error) {
	var b strings.Builder
	b.WriteString(`
		SELECT
			FlowName,
			count() AS Observations,
			max(FlowBytes) AS FlowBytes,
			avgIf(TSRTT, isNotNull(TSRTT)) AS AvgTSRTT,
			avgIf(SeqRTT, isNotNull(SeqRTT)) AS AvgSeqRTT
		FROM observations
	`)

	var where []string
	var args []interface{}
	if flowName != "" {
		where = append(where, "FlowName = ?")
		args = append(args, flowName)
	}
	if !since.IsZero() {
		where = append(where, "CaptureTime >= ?")
		args = append(args, since)
	}
	if len(where) > 0 {
		b.WriteString(" WHERE " + strings.Join(where, " AND "))
	}
	b.WriteString(" GROUP BY FlowName ORDER BY FlowName")

	rows, err := q.conn.Query(ctx, b.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute aggregate query: %w", err)
	}
	defer rows.Close()

	var out []FlowSummary
	for rows.Next() {
		var s FlowSummary
		if err := rows.Scan(&s.FlowName, &s.Observations, &s.FlowBytes, &s.AvgTSRTT, &s.AvgSeqRTT); err != nil {
			return nil, fmt.Errorf("failed to scan aggregate row: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// FlowTrace returns up to limit Observations for one flow, most recent
// first, the per-packet detail view behind /api/v1/flows/{name}/trace.
func (q *Querier) FlowTrace(ctx context.Context, flowName string, limit int) ([]ObservationRow, error) {
	if limit <= 0 {
		limit = 100
	}
	const stmt = `
		SELECT CaptureTime, TSRTT, SeqRTT, DSeq, DupACKInterval, PayloadLen, FlowBytes
		FROM observations
		WHERE FlowName = ?
		ORDER BY CaptureTime DESC
		LIMIT ?
	`
	rows, err := q.conn.Query(ctx, stmt, flowName, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to execute trace query: %w", err)
	}
	defer rows.Close()

	var out []ObservationRow
	for rows.Next() {
		var r ObservationRow
		if err := rows.Scan(&r.CaptureTime, &r.TSRTT, &r.SeqRTT, &r.DSeq, &r.DupACKInterval, &r.PayloadLen, &r.FlowBytes); err != nil {
			return nil, fmt.Errorf("failed to scan trace row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Close closes the underlying ClickHouse connection.
func (q *Querier) Close() error {
	return q.conn.Close()
}
