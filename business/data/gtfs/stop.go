package gtfs

import (
	"github.com/jmoiron/sqlx"
)

/*
Stop contains rows from the GTFS stops.txt file.
Stops are shared between agencies, a row belongs to whichever archive
loaded it last.
*/
type Stop struct {
	StopId   string   `db:"stop_id" json:"stop_id"`
	StopName string   `db:"stop_name" json:"stop_name"`
	StopCode *string  `db:"stop_code" json:"stop_code"`
	StopDesc *string  `db:"stop_desc" json:"stop_desc"`
	StopLat  *float64 `db:"stop_lat" json:"stop_lat"`
	StopLon  *float64 `db:"stop_lon" json:"stop_lon"`
}

// RecordStops upserts stops one row at a time inside the agency transaction.
// The stops table is shared between agencies so rows from another agency's
// archive must survive, which rules out the delete and COPY approach the
// other static tables use.
func RecordStops(stops []*Stop, atx *AgencyTransaction) error {
	statementString := "insert into current_stops ( " +
		"stop_id, " +
		"stop_name, " +
		"stop_code, " +
		"stop_desc, " +
		"stop_lat, " +
		"stop_lon) " +
		"values ($1, $2, $3, $4, $5, $6) " +
		"on conflict (stop_id) do update set " +
		"stop_name = excluded.stop_name, " +
		"stop_code = excluded.stop_code, " +
		"stop_desc = excluded.stop_desc, " +
		"stop_lat = excluded.stop_lat, " +
		"stop_lon = excluded.stop_lon"

	if _, err := atx.Tx.Prepare("upsert_stop", statementString); err != nil {
		return err
	}
	for _, stop := range stops {
		_, err := atx.Tx.Exec("upsert_stop",
			stop.StopId,
			stop.StopName,
			stop.StopCode,
			stop.StopDesc,
			stop.StopLat,
			stop.StopLon,
		)
		if err != nil {
			return err
		}
	}
	return nil
}

// GetStop retrieves the stop with stopId, or sql.ErrNoRows when it's unknown
func GetStop(db *sqlx.DB, stopId string) (*Stop, error) {
	query := "select stop_id, stop_name, stop_code, stop_desc, stop_lat, stop_lon " +
		"from current_stops where stop_id = $1"
	stop := Stop{}
	err := db.Get(&stop, query, stopId)
	if err != nil {
		return nil, err
	}
	return &stop, nil
}
