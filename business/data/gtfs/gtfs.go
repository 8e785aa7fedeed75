// Package gtfs provides gtfs related CRUD functionality
package gtfs

import (
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx"
	"github.com/jmoiron/sqlx"
)

// Agency identifies a transit operator whose feeds this system ingests.
type Agency string

const (
	AgencyMPK     Agency = "mpk"
	AgencyMobilis Agency = "mobilis"
)

// Agencies lists every agency this deployment ingests.
func Agencies() []Agency {
	return []Agency{AgencyMPK, AgencyMobilis}
}

// FeedConfig names the upstream endpoints for one agency.
type FeedConfig struct {
	Agency              Agency
	StaticURL           string
	StaticFilename      string
	VehiclePositionsURL string
	TripUpdatesURL      string
}

// FeedConfigs returns the feed endpoints for every agency.
func FeedConfigs() []FeedConfig {
	return []FeedConfig{
		{
			Agency:              AgencyMPK,
			StaticURL:           "https://gtfs.ztp.krakow.pl/GTFS_KRK_A.zip",
			StaticFilename:      "GTFS_KRK_A.zip",
			VehiclePositionsURL: "https://gtfs.ztp.krakow.pl/VehiclePositions_A.pb",
			TripUpdatesURL:      "https://gtfs.ztp.krakow.pl/TripUpdates_A.pb",
		},
		{
			Agency:              AgencyMobilis,
			StaticURL:           "https://gtfs.ztp.krakow.pl/GTFS_KRK_M.zip",
			StaticFilename:      "GTFS_KRK_M.zip",
			VehiclePositionsURL: "https://gtfs.ztp.krakow.pl/VehiclePositions_M.pb",
			TripUpdatesURL:      "https://gtfs.ztp.krakow.pl/TripUpdates_M.pb",
		},
	}
}

// AgencyTransaction carries an open pgx transaction scoped to replacing one
// agency's static gtfs records. A single pgx transaction lets the deletes,
// COPY loads and meta update commit or roll back together.
type AgencyTransaction struct {
	Agency Agency
	Tx     *pgx.Tx
}

// Meta is a row of gtfs_meta tracking which static archive is loaded per agency.
type Meta struct {
	Agency      Agency    `db:"agency"`
	CurrentHash string    `db:"current_hash"`
	UpdatedAt   time.Time `db:"updated_at"`
}

// GetCurrentHash retrieves the content hash of the static archive currently
// loaded for agency. Returns the empty string when the agency was never loaded.
func GetCurrentHash(db *sqlx.DB, agency Agency) (string, error) {
	query := "select current_hash from gtfs_meta where agency = $1"
	var hash string
	err := db.Get(&hash, query, agency)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return hash, err
}

// SetCurrentHash records hash as the loaded archive version for the
// transaction's agency.
func SetCurrentHash(atx *AgencyTransaction, hash string) error {
	statementString := "insert into gtfs_meta ( " +
		"agency, " +
		"current_hash, " +
		"updated_at) " +
		"values ($1, $2, now()) " +
		"on conflict (agency) do update set " +
		"current_hash = excluded.current_hash, " +
		"updated_at = now()"
	_, err := atx.Tx.Exec(statementString, string(atx.Agency), hash)
	return err
}

// DeleteAgencyStaticData removes the agency's routes, trips, stop times and
// shapes ahead of a reload. Order follows the foreign keys. Stops are shared
// between agencies and are never deleted, only upserted by RecordStops.
func DeleteAgencyStaticData(atx *AgencyTransaction) error {
	statements := []string{
		"delete from current_stop_times where trip_id in " +
			"(select t.trip_id from current_trips t " +
			"join current_routes r on r.route_id = t.route_id " +
			"where r.agency_id = $1)",
		"delete from current_trips where route_id in " +
			"(select route_id from current_routes where agency_id = $1)",
		"delete from current_routes where agency_id = $1",
		"delete from current_shapes where agency_id = $1",
	}
	for _, statementString := range statements {
		if _, err := atx.Tx.Exec(statementString, string(atx.Agency)); err != nil {
			return err
		}
	}
	return nil
}
