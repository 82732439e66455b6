package archive

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/klauspost/compress/zstd"
	"go.uber.org/zap"

	"github.com/route-beacon/linkstate-ingester/internal/bgpls"
	"github.com/route-beacon/linkstate-ingester/internal/metrics"
)

var zstdEncoder, _ = zstd.NewWriter(nil)

// Writer appends raw link-state events to the partitioned ls_attr_events
// table. Rows are deduplicated by (event_id, ingest_time), so replayed
// Kafka offsets after a crash insert nothing.
type Writer struct {
	pool        *pgxpool.Pool
	logger      *zap.Logger
	compressRaw bool
}

func NewWriter(pool *pgxpool.Pool, logger *zap.Logger, compressRaw bool) *Writer {
	return &Writer{
		pool:        pool,
		logger:      logger,
		compressRaw: compressRaw,
	}
}

// Row represents a single row to insert into ls_attr_events.
type Row struct {
	EventID  []byte // 32-byte SHA256 of the BMP message
	RouterID string
	NLRIType uint16
	Action   string
	Key      string // Stable element key of the NLRI
	Attr     []byte // Raw BGP-LS path attribute bytes, announcements only
	BMPRaw   []byte // Raw BMP message bytes
	Topic    string // For dedup metric labeling
}

// FlushBatch inserts a batch of rows into ls_attr_events.
// Returns the number of rows actually inserted (after dedup).
func (w *Writer) FlushBatch(ctx context.Context, rows []*Row) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	start := time.Now()

	tx, err := w.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var totalInserted int64

	for _, row := range rows {
		rawBytes := row.BMPRaw
		if w.compressRaw && rawBytes != nil {
			rawBytes = zstdEncoder.EncodeAll(rawBytes, nil)
		}

		tag, err := tx.Exec(ctx, `
			INSERT INTO ls_attr_events (event_id, ingest_time, router_id, nlri_type,
				action, element_key, ls_attr, bmp_raw)
			VALUES ($1, date_trunc('day', now()), $2, $3, $4, $5, $6, $7)
			ON CONFLICT (event_id, ingest_time) DO NOTHING`,
			row.EventID, row.RouterID, bgpls.NLRITypeName(row.NLRIType),
			row.Action, row.Key, nilIfEmptyBytes(row.Attr), rawBytes,
		)
		if err != nil {
			return 0, fmt.Errorf("insert ls_attr_event: %w", err)
		}

		affected := tag.RowsAffected()
		totalInserted += affected
		if affected == 0 {
			metrics.ArchiveDedupConflictsTotal.WithLabelValues(row.Topic).Inc()
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit tx: %w", err)
	}

	dur := time.Since(start).Seconds()
	metrics.DBWriteDuration.WithLabelValues("archive", "insert").Observe(dur)
	metrics.DBRowsAffectedTotal.WithLabelValues("archive", "ls_attr_events", "insert").Add(float64(totalInserted))
	metrics.BatchSize.WithLabelValues("archive").Observe(float64(len(rows)))

	return totalInserted, nil
}

func nilIfEmptyBytes(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return b
}
