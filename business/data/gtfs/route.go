package gtfs

import (
	"github.com/jackc/pgx"
)

/*
Route contains rows from the GTFS routes.txt file
*/
type Route struct {
	RouteId        string `db:"route_id" json:"route_id"`
	AgencyId       Agency `db:"agency_id" json:"agency_id"`
	RouteShortName string `db:"route_short_name" json:"route_short_name"`
}

// RecordRoutes loads routes over the COPY protocol in a single batch
func RecordRoutes(routes []*Route, atx *AgencyTransaction) error {
	rows := make([][]interface{}, 0, len(routes))
	for _, route := range routes {
		route.AgencyId = atx.Agency
		rows = append(rows, []interface{}{
			route.RouteId,
			string(route.AgencyId),
			route.RouteShortName,
		})
	}
	_, err := atx.Tx.CopyFrom(
		pgx.Identifier{"current_routes"},
		[]string{"route_id", "agency_id", "route_short_name"},
		pgx.CopyFromRows(rows),
	)
	return err
}
