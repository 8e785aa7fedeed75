package importer

import (
	"github.com/OpenTransitData/stopcast/business/data/gtfs"
)

const batchedStopCount = 250

// stopRowReader implements gtfsRowReader interface for gtfs.Stop
// batches upserts
type stopRowReader struct {
	batchedStops []*gtfs.Stop
}

func (s *stopRowReader) addRow(parser *gtfsFileParser, atx *gtfs.AgencyTransaction) error {
	stop, err := buildStop(parser)
	if err != nil {
		return err
	}
	s.batchedStops = append(s.batchedStops, stop)

	//check if its time to save the batch
	if len(s.batchedStops) == batchedStopCount {
		return s.flush(atx)
	}
	return nil
}

func (s *stopRowReader) flush(atx *gtfs.AgencyTransaction) error {
	//check if there's something to do
	if len(s.batchedStops) == 0 {
		return nil
	}

	err := gtfs.RecordStops(s.batchedStops, atx)
	if err != nil {
		return err
	}

	//truncate batch
	s.batchedStops = make([]*gtfs.Stop, 0)
	return nil
}

func buildStop(parser *gtfsFileParser) (*gtfs.Stop, error) {
	stop := gtfs.Stop{
		StopId:   parser.getString("stop_id", false),
		StopName: parser.getString("stop_name", false),
		StopCode: parser.getStringPointer("stop_code", true),
		StopDesc: parser.getStringPointer("stop_desc", true),
		StopLat:  parser.getFloat64Pointer("stop_lat", true),
		StopLon:  parser.getFloat64Pointer("stop_lon", true),
	}
	return &stop, parser.getError()
}
