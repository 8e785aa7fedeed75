package gtfs

import (
	"github.com/jackc/pgx"
	"github.com/jmoiron/sqlx"
)

/*
Shape contains rows from the GTFS shapes.txt file
*/
type Shape struct {
	AgencyId        string  `db:"agency_id" json:"agency_id"`
	ShapeId         string  `db:"shape_id" json:"shape_id"`
	ShapePtLat      float64 `db:"shape_pt_lat" json:"shape_pt_lat"`
	ShapePtLon      float64 `db:"shape_pt_lon" json:"shape_pt_lon"`
	ShapePtSequence int     `db:"shape_pt_sequence" json:"shape_pt_sequence"`
}

// RecordShapes loads shape points over the COPY protocol in a single batch
func RecordShapes(shapes []*Shape, atx *AgencyTransaction) error {
	for _, shape := range shapes {
		shape.AgencyId = string(atx.Agency)
	}

	rows := make([][]interface{}, 0, len(shapes))
	for _, shape := range shapes {
		rows = append(rows, []interface{}{
			shape.AgencyId,
			shape.ShapeId,
			shape.ShapePtLat,
			shape.ShapePtLon,
			shape.ShapePtSequence,
		})
	}
	_, err := atx.Tx.CopyFrom(
		pgx.Identifier{"current_shapes"},
		[]string{"agency_id", "shape_id", "shape_pt_lat", "shape_pt_lon", "shape_pt_sequence"},
		pgx.CopyFromRows(rows),
	)
	return err
}

// GetShapePoints retrieves the polyline points for shapeId in drawing order.
// An unknown shape produces an empty slice.
func GetShapePoints(db *sqlx.DB, shapeId string) ([]*Shape, error) {
	query := "select agency_id, shape_id, shape_pt_lat, shape_pt_lon, shape_pt_sequence " +
		"from current_shapes where shape_id = $1 order by shape_pt_sequence"
	shapes := make([]*Shape, 0)
	if err := db.Select(&shapes, query, shapeId); err != nil {
		return nil, err
	}
	return shapes, nil
}
