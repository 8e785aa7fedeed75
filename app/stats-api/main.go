package main

import (
	"fmt"
	logger "log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/OpenTransitData/stopcast/app/stats-api/statsapi"
	"github.com/OpenTransitData/stopcast/foundation/database"
	"github.com/OpenTransitData/stopcast/foundation/keyvalue"
	"github.com/OpenTransitData/stopcast/foundation/metrics"
	"github.com/ardanlabs/conf"
)

var build = "develop"

func main() {
	log := logger.New(os.Stdout, "STATS_API : ", logger.LstdFlags|logger.Lmicroseconds|logger.Lshortfile)
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
		Web struct {
			APIPort             int `conf:"default:8080"`
			FetchTimeoutSeconds int `conf:"default:10"`
		}
		Stats struct {
			Timezone string `conf:"default:Europe/Warsaw"`
		}
	}
	cfg.Version.SVN = build
	cfg.Version.Desc = "Serve delay statistics and live vehicle positions"
	const prefix = "STATS_API"
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

	location, err := time.LoadLocation(cfg.Stats.Timezone)
	if err != nil {
		return fmt.Errorf("loading timezone %s: %w", cfg.Stats.Timezone, err)
	}

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

	m := metrics.New()

	return statsapi.RunWebService(log, db, kvClient, m, location,
		cfg.Web.APIPort, cfg.Web.FetchTimeoutSeconds, shutdown)
}
