package geometry

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/ewkb"

	"github.com/sells-group/dokanalyse/internal/db"
)

const (
	sqlBuffer = `SELECT ST_AsEWKB(ST_Buffer(ST_GeomFromEWKB($1), $2))`

	sqlIntersection = `
		SELECT CASE WHEN ST_IsEmpty(i) THEN NULL ELSE ST_AsEWKB(i) END
		FROM (SELECT ST_Intersection(ST_GeomFromEWKB($1), ST_GeomFromEWKB($2)) AS i) s`

	sqlIntersects = `SELECT ST_Intersects(ST_GeomFromEWKB($1), ST_GeomFromEWKB($2))`

	sqlDistance = `SELECT ST_Distance(ST_GeomFromEWKB($1), ST_GeomFromEWKB($2))`

	sqlTransform = `SELECT ST_AsEWKB(ST_Transform(ST_SetSRID(ST_GeomFromEWKB($1), $2::int), $3::int))`
)

// PostGIS implements Engine by round-tripping EWKB through a PostGIS database.
type PostGIS struct {
	pool db.Pool
}

// NewPostGIS creates a PostGIS-backed Engine.
func NewPostGIS(pool db.Pool) *PostGIS {
	return &PostGIS{pool: pool}
}

// Buffer implements Engine.
func (p *PostGIS) Buffer(ctx context.Context, g geom.T, distance float64) (geom.T, error) {
	data, err := EncodeEWKB(g)
	if err != nil {
		return nil, err
	}
	return scanGeometry(p.pool.QueryRow(ctx, sqlBuffer, data, distance), "buffer")
}

// Intersection implements Engine.
func (p *PostGIS) Intersection(ctx context.Context, a, b geom.T) (geom.T, error) {
	ea, eb, err := encodePair(a, b)
	if err != nil {
		return nil, err
	}
	return scanGeometry(p.pool.QueryRow(ctx, sqlIntersection, ea, eb), "intersection")
}

// Intersects implements Engine.
func (p *PostGIS) Intersects(ctx context.Context, a, b geom.T) (bool, error) {
	ea, eb, err := encodePair(a, b)
	if err != nil {
		return false, err
	}

	var ok bool
	if err := p.pool.QueryRow(ctx, sqlIntersects, ea, eb).Scan(&ok); err != nil {
		return false, eris.Wrap(err, "geometry: intersects")
	}
	return ok, nil
}

// Distance implements Engine.
func (p *PostGIS) Distance(ctx context.Context, a, b geom.T) (float64, error) {
	ea, eb, err := encodePair(a, b)
	if err != nil {
		return 0, err
	}

	var d float64
	if err := p.pool.QueryRow(ctx, sqlDistance, ea, eb).Scan(&d); err != nil {
		return 0, eris.Wrap(err, "geometry: distance")
	}
	return d, nil
}

// Transform implements Engine.
func (p *PostGIS) Transform(ctx context.Context, g geom.T, from, to int) (geom.T, error) {
	if from == to {
		return WithSRID(Clone(g), to), nil
	}

	data, err := EncodeEWKB(g)
	if err != nil {
		return nil, err
	}
	return scanGeometry(p.pool.QueryRow(ctx, sqlTransform, data, from, to), "transform")
}

// EncodeEWKB marshals g as little-endian EWKB.
func EncodeEWKB(g geom.T) ([]byte, error) {
	if g == nil {
		return nil, eris.New("geometry: nil geometry")
	}
	data, err := ewkb.Marshal(g, ewkb.NDR)
	if err != nil {
		return nil, eris.Wrap(err, "geometry: encode ewkb")
	}
	return data, nil
}

// DecodeEWKB unmarshals EWKB produced by PostGIS.
func DecodeEWKB(data []byte) (geom.T, error) {
	g, err := ewkb.Unmarshal(data)
	if err != nil {
		return nil, eris.Wrap(err, "geometry: decode ewkb")
	}
	return g, nil
}

func encodePair(a, b geom.T) ([]byte, []byte, error) {
	ea, err := EncodeEWKB(a)
	if err != nil {
		return nil, nil, err
	}
	eb, err := EncodeEWKB(b)
	if err != nil {
		return nil, nil, err
	}
	return ea, eb, nil
}

func scanGeometry(row pgx.Row, op string) (geom.T, error) {
	var data []byte
	if err := row.Scan(&data); err != nil {
		return nil, eris.Wrapf(err, "geometry: %s", op)
	}
	if data == nil {
		return nil, nil
	}
	return DecodeEWKB(data)
}
