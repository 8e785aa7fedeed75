package main

import (
	"fmt"
	logger "log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/OpenTransitData/stopcast/app/stop-monitor/monitor"
	"github.com/OpenTransitData/stopcast/business/data/kvstore"
	"github.com/OpenTransitData/stopcast/foundation/database"
	"github.com/OpenTransitData/stopcast/foundation/keyvalue"
	"github.com/ardanlabs/conf"
	"github.com/nats-io/nats.go"
)

var build = "develop"

func main() {
	log := logger.New(os.Stdout, "STOP_MONITOR : ", logger.LstdFlags|logger.Lmicroseconds|logger.Lshortfile)
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
		NATS struct {
			URL              string `conf:"default:nats://localhost:4222"`
			BroadcastEnabled bool   `conf:"default:false"`
		}
		Monitor struct {
			BatchSize            int    `conf:"default:100"`
			FlushIntervalSeconds int    `conf:"default:10"`
			Timezone             string `conf:"default:Europe/Warsaw"`
			ReadyTimeoutSeconds  int    `conf:"default:180"`
			ReadyPollSeconds     int    `conf:"default:5"`
		}
	}
	cfg.Version.SVN = build
	cfg.Version.Desc = "Detect and record vehicle stop arrivals"
	const prefix = "MONITOR"
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

	location, err := time.LoadLocation(cfg.Monitor.Timezone)
	if err != nil {
		return fmt.Errorf("loading timezone %s: %w", cfg.Monitor.Timezone, err)
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

	// =========================================================================
	// Start NATS

	var natsConnection *nats.Conn
	if cfg.NATS.BroadcastEnabled {
		log.Println("main: Initializing NATS support")

		natsConnection, err = nats.Connect(cfg.NATS.URL,
			nats.RetryOnFailedConnect(true),
			nats.MaxReconnects(-1),
			nats.ReconnectWait(2*time.Second),
		)
		if err != nil {
			return fmt.Errorf("connecting to nats: %w", err)
		}
		defer func() {
			log.Printf("main: NATS Stopping : %s", cfg.NATS.URL)
			natsConnection.Close()
		}()
	}

	// Make a channel to listen for an interrupt or terminate signal from the OS.
	// Use a buffered channel because the signal package requires it.
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	// Hold detection until the importer has populated the static tables.
	ready, err := kvstore.WaitForReady(log, kvClient,
		time.Duration(cfg.Monitor.ReadyTimeoutSeconds)*time.Second,
		time.Duration(cfg.Monitor.ReadyPollSeconds)*time.Second,
		shutdown)
	if err != nil {
		return err
	}
	if !ready {
		return nil
	}

	return monitor.RunStopMonitorLoop(log, db, kvClient, natsConnection, cfg.NATS.BroadcastEnabled,
		location, cfg.Monitor.BatchSize, cfg.Monitor.FlushIntervalSeconds, shutdown)
}
