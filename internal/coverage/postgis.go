package coverage

import (
	"context"
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"

	"github.com/sells-group/dokanalyse/internal/db"
	"github.com/sells-group/dokanalyse/internal/geometry"
	"github.com/sells-group/dokanalyse/internal/model"
)

// PostGISSource reads coverage polygons from a PostGIS table.
type PostGISSource struct {
	pool db.Pool
}

// NewPostGISSource creates a table-backed coverage source.
func NewPostGISSource(pool db.Pool) *PostGISSource {
	return &PostGISSource{pool: pool}
}

// coverageSQL sums the intersected area per coverage value, measured in the
// request EPSG.
const coverageSQL = `SELECT t.%[2]s::text AS value,
	COALESCE(SUM(ST_Area(ST_Intersection(ST_Transform(t.%[3]s, $2::int), ST_GeomFromEWKB($1)))), 0) AS area
FROM %[1]s t
WHERE t.%[2]s IS NOT NULL
	AND ST_Intersects(t.%[3]s, ST_Transform(ST_GeomFromEWKB($1), ST_SRID(t.%[3]s)))
GROUP BY 1
ORDER BY 1`

// Fetch implements Source.
func (s *PostGISSource) Fetch(ctx context.Context, qi *model.QualityIndicator, g geom.T, epsg int) (Result, error) {
	src := qi.PostGIS
	if src == nil {
		return Result{}, eris.New("coverage: indicator has no postgis source")
	}
	if src.Table == "" {
		return Result{}, eris.New("coverage: postgis source has no table")
	}
	table := db.QualifiedIdentifier(src.Table)
	column := defaultString(src.ValueColumn, qi.Property)
	if column == "" {
		return Result{}, eris.Errorf("coverage: postgis source %s has no value column", src.Table)
	}
	valueCol := db.Identifier(column)
	geomCol := db.Identifier(defaultString(src.GeomColumn, "geom"))

	input, err := geometry.EncodeEWKB(geometry.WithSRID(geometry.Clone(g), epsg))
	if err != nil {
		return Result{}, err
	}

	rows, err := s.pool.Query(ctx, fmt.Sprintf(coverageSQL, table, valueCol, geomCol), input, epsg)
	if err != nil {
		return Result{}, eris.Wrapf(err, "coverage: query %s", src.Table)
	}
	defer rows.Close()

	c := newCollector(qi)
	for rows.Next() {
		var (
			value string
			area  float64
		)
		if err := rows.Scan(&value, &area); err != nil {
			return Result{}, eris.Wrap(err, "coverage: scan row")
		}
		c.add(value, area)
	}
	if err := rows.Err(); err != nil {
		return Result{}, eris.Wrap(err, "coverage: iterate rows")
	}

	return c.result(geometry.Area(g)), nil
}

func defaultString(v, fallback string) string {
	if v != "" {
		return v
	}
	return fallback
}
