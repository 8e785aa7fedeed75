package main

import (
	"fmt"
	logger "log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/OpenTransitData/stopcast/app/gtfs-importer/importer"
	"github.com/OpenTransitData/stopcast/business/data/gtfs"
	"github.com/OpenTransitData/stopcast/foundation/database"
	"github.com/OpenTransitData/stopcast/foundation/httpclient"
	"github.com/OpenTransitData/stopcast/foundation/keyvalue"
	"github.com/ardanlabs/conf"
)

var build = "develop"

func main() {
	log := logger.New(os.Stdout, "GTFS_IMPORTER : ", logger.LstdFlags|logger.Lmicroseconds|logger.Lshortfile)
	if err := run(log); err != nil {
		log.Printf("main: error: %v", err)
		os.Exit(1)
	}
}

func run(log *logger.Logger) error {
	var cfg struct {
		conf.Version
		Args conf.Args
		DB   struct {
			User         string `conf:"default:postgres"`
			Password     string `conf:"default:postgres,noprint"`
			PasswordFile string
			Host         string `conf:"default:0.0.0.0"`
			Name         string `conf:"default:postgres"`
			DisableTLS   bool   `conf:"default:true"`
		}
		Redis struct {
			Host         string `conf:"default:0.0.0.0:6379"`
			Password     string `conf:"noprint"`
			PasswordFile string
			DB           int `conf:"default:0"`
		}
		GTFS struct {
			DataDir                string `conf:"default:data"`
			ImportIntervalSeconds  int    `conf:"default:3600"`
			DownloadTimeoutSeconds int    `conf:"default:30"`
			ForceImport            bool   `conf:"default:false"`
		}
	}
	cfg.Version.SVN = build
	cfg.Version.Desc = "Import static gtfs schedules into database"
	const prefix = "IMPORTER"
	if err := conf.Parse(os.Args[1:], prefix, &cfg); err != nil {
		switch err {
		case conf.ErrHelpWanted:
			usage, err := conf.Usage(prefix, &cfg)
			if err != nil {
				return fmt.Errorf("generating config usage: %w", err)
			}
			fmt.Println(usage)
			return nil
		case conf.ErrVersionWanted:
			version, err := conf.VersionString(prefix, &cfg)
			if err != nil {
				return fmt.Errorf("generating config version: %w", err)
			}
			fmt.Println(version)
			return nil
		}
		return fmt.Errorf("parsing config: %w", err)
	}

	// =========================================================================
	// App Starting

	log.Printf("main : Started : Application initializing : version %s", build)
	defer log.Println("main: Completed")

	out, err := conf.String(&cfg)
	if err != nil {
		return fmt.Errorf("generating config for output: %w", err)
	}
	log.Printf("main: Config :\n%v\n", out)

	// =========================================================================
	// Start Database

	log.Println("main: Initializing database support")

	db, err := database.Open(database.Config{
		User:         cfg.DB.User,
		Password:     cfg.DB.Password,
		PasswordFile: cfg.DB.PasswordFile,
		Host:         cfg.DB.Host,
		Name:         cfg.DB.Name,
		DisableTLS:   cfg.DB.DisableTLS,
	})
	if err != nil {
		return fmt.Errorf("connecting to db: %w", err)
	}
	defer func() {
		log.Printf("main: Database Stopping : %s", cfg.DB.Host)
		err = db.Close()
		if err != nil {
			log.Printf("main: error closing database: %v", err)
		}
	}()

	log.Println("main: Applying database schema")
	if err = gtfs.ApplySchema(db); err != nil {
		return fmt.Errorf("applying database schema: %w", err)
	}

	// =========================================================================
	// Start Key Value Store

	log.Println("main: Initializing key value store support")

	kvClient, err := keyvalue.Open(keyvalue.Config{
		Host:         cfg.Redis.Host,
		Password:     cfg.Redis.Password,
		PasswordFile: cfg.Redis.PasswordFile,
		DB:           cfg.Redis.DB,
	})
	if err != nil {
		return fmt.Errorf("connecting to key value store: %w", err)
	}
	defer func() {
		log.Printf("main: Key value store Stopping : %s", cfg.Redis.Host)
		err = kvClient.Close()
		if err != nil {
			log.Printf("main: error closing key value store: %v", err)
		}
	}()

	// Make a channel to listen for an interrupt or terminate signal from the OS.
	// Use a buffered channel because the signal package requires it.
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	httpClient := httpclient.New(time.Duration(cfg.GTFS.DownloadTimeoutSeconds) * time.Second)

	return importer.RunImportLoop(log, db, kvClient, httpClient, cfg.GTFS.DataDir,
		time.Duration(cfg.GTFS.ImportIntervalSeconds)*time.Second, cfg.GTFS.ForceImport, shutdown)
}
