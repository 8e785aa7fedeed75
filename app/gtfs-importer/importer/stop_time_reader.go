package importer

import (
	"github.com/OpenTransitData/stopcast/business/data/gtfs"
)

const batchedStopTimeCount = 250

// stopTimeRowReader implements gtfsRowReader interface for gtfs.StopTime
// batches inserts
type stopTimeRowReader struct {
	batchedStopTimes []*gtfs.StopTime
}

func (s *stopTimeRowReader) addRow(parser *gtfsFileParser, atx *gtfs.AgencyTransaction) error {
	stopTime, err := buildStopTime(parser)
	if err != nil {
		return err
	}
	s.batchedStopTimes = append(s.batchedStopTimes, stopTime)

	//check if its time to save the batch
	if len(s.batchedStopTimes) == batchedStopTimeCount {
		return s.flush(atx)
	}
	return nil
}

func (s *stopTimeRowReader) flush(atx *gtfs.AgencyTransaction) error {
	//check if there's something to do
	if len(s.batchedStopTimes) == 0 {
		return nil
	}

	err := gtfs.RecordStopTimes(s.batchedStopTimes, atx)
	if err != nil {
		return err
	}

	// truncate the batch
	s.batchedStopTimes = make([]*gtfs.StopTime, 0)
	return nil
}

func buildStopTime(parser *gtfsFileParser) (*gtfs.StopTime, error) {
	stopTime := gtfs.StopTime{}
	stopTime.TripId = parser.getString("trip_id", false)
	stopTime.StopId = parser.getString("stop_id", false)
	stopTime.StopSequence = parser.getInt("stop_sequence", false)
	stopTime.ArrivalSeconds = parser.getGTFSTime("arrival_time", false)
	stopTime.DepartureSeconds = parser.getGTFSTimePointer("departure_time", true)
	return &stopTime, parser.getError()
}
