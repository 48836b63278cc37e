package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"WasteFlow/internal/domain/models"
	pkgch "WasteFlow/pkg/clickhouse"
	applogger "WasteFlow/pkg/logger"
)

const archiveChunkSize = 2000

// CHSeriesArchive appends training series to a ClickHouse MergeTree table.
// Each training run is tagged with a run timestamp.
type CHSeriesArchive struct {
	client *pkgch.Client
	db     *sql.DB
	table  string
	l      *applogger.Logger
	now    func() time.Time
}

func NewCHSeriesArchive(ch *pkgch.Client, table string, l *applogger.Logger) *CHSeriesArchive {
	if l == nil {
		l = applogger.Nop()
	}
	return &CHSeriesArchive{client: ch, db: ch.DB(), table: table, l: l, now: time.Now}
}

// SchemaStatements returns the DDL for the archive table.
func SchemaStatements(table string) []string {
	return []string{fmt.Sprintf(`
        CREATE TABLE IF NOT EXISTS %s (
            run_at        DateTime,
            date          Date,
            day_of_week   UInt8,
            month         UInt8,
            region        LowCardinality(String),
            material_type LowCardinality(String),
            volume_tons   Float64
        ) ENGINE = MergeTree
        ORDER BY (material_type, region, date, run_at)
    `, table)}
}

// Init creates the table if needed.
func (s *CHSeriesArchive) Init(ctx context.Context) error {
	return s.client.InitSchema(ctx, SchemaStatements(s.table))
}

func (s *CHSeriesArchive) StoreBatch(ctx context.Context, points []models.TimeSeriesPoint) error {
	if len(points) == 0 {
		return nil
	}
	start := time.Now()
	runAt := s.now().UTC().Truncate(time.Second)
	for from := 0; from < len(points); from += archiveChunkSize {
		to := min(from+archiveChunkSize, len(points))
		q, args, err := buildArchiveInsert(s.table, runAt, points[from:to])
		if err != nil {
			return err
		}
		if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
			s.l.Error("clickhouse archive insert error",
				applogger.String("table", s.table),
				applogger.Int("offset", from),
				applogger.Error(err),
			)
			return fmt.Errorf("archive insert: %w", err)
		}
	}
	s.l.Info("clickhouse archive ok",
		applogger.String("table", s.table),
		applogger.Int("rows", len(points)),
		applogger.Duration("duration_ms", time.Since(start)),
	)
	return nil
}

func buildArchiveInsert(table string, runAt time.Time, points []models.TimeSeriesPoint) (string, []interface{}, error) {
	values := make([]string, 0, len(points))
	args := make([]interface{}, 0, len(points)*7)
	for _, p := range points {
		date, err := time.Parse(models.DateLayout, p.Date)
		if err != nil {
			return "", nil, fmt.Errorf("point date %q: %w", p.Date, err)
		}
		values = append(values, "(?, ?, ?, ?, ?, ?, ?)")
		args = append(args, runAt, date, uint8(p.DayOfWeek), uint8(p.Month), p.Region, p.MaterialType, p.VolumeTons)
	}
	q := fmt.Sprintf("INSERT INTO %s (run_at, date, day_of_week, month, region, material_type, volume_tons) VALUES %s",
		table, strings.Join(values, ","))
	return q, args, nil
}

func (s *CHSeriesArchive) Health(ctx context.Context) error {
	return s.client.Health(ctx)
}

func (s *CHSeriesArchive) Close() error {
	return s.client.Close()
}
