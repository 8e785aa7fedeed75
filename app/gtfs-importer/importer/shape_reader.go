package importer

import "github.com/OpenTransitData/stopcast/business/data/gtfs"

const batchedShapeCount = 250

// shapeRowReader implements gtfsRowReader interface for gtfs.Shape
// batches inserts
type shapeRowReader struct {
	batchedShapeRows []*gtfs.Shape
}

func (s *shapeRowReader) addRow(parser *gtfsFileParser, atx *gtfs.AgencyTransaction) error {
	shape, err := buildShape(parser)
	if err != nil {
		return err
	}
	s.batchedShapeRows = append(s.batchedShapeRows, shape)

	//check if its time to save the batch
	if len(s.batchedShapeRows) == batchedShapeCount {
		return s.flush(atx)
	}
	return nil
}

func (s *shapeRowReader) flush(atx *gtfs.AgencyTransaction) error {
	//check if there's something to do
	if len(s.batchedShapeRows) == 0 {
		return nil
	}

	err := gtfs.RecordShapes(s.batchedShapeRows, atx)
	if err != nil {
		return err
	}

	// truncate the batch
	s.batchedShapeRows = make([]*gtfs.Shape, 0)
	return nil
}

func buildShape(parser *gtfsFileParser) (*gtfs.Shape, error) {
	shape := gtfs.Shape{}
	shape.ShapeId = parser.getString("shape_id", false)
	shape.ShapePtLat = parser.getFloat64("shape_pt_lat", false)
	shape.ShapePtLon = parser.getFloat64("shape_pt_lon", false)
	shape.ShapePtSequence = parser.getInt("shape_pt_sequence", false)
	return &shape, parser.getError()
}
