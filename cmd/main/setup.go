package main

import (
	"io"

	"commission-observer/src/interfaces"
	"commission-observer/src/logger"
	"commission-observer/src/models"
	"commission-observer/src/publisher"
	"commission-observer/src/storage"
	"commission-observer/src/tokenstore"
)

// -----------------------------------------------------------------------------

// setupDatabase initializes snapshot storage based on config. db_type "none"
// returns nil and the service runs without persistence.
func setupDatabase(config *models.MConfig, appLogger *logger.Logger) (interfaces.IDatabase, error) {
	var db interfaces.IDatabase
	var err error

	switch config.Storage.DBType {
	case "none":
		appLogger.Info("Snapshot storage disabled")
		return nil, nil
	case "postgres":
		pgLogger := logger.NewLogger(config, "PostgresDB")
		db, err = storage.NewPostgresDB(config, pgLogger)
	default:
		// Default to SQLite
		sqliteLogger := logger.NewLogger(config, "SQLiteDB")
		db, err = storage.NewAsyncSQLiteDB(config, sqliteLogger)
	}

	if err != nil {
		appLogger.Error("Failed to init db: %v", err)
		return nil, err
	}
	if err := db.Initialize(); err != nil {
		appLogger.Error("Failed to migrate db: %v", err)
		db.Close()
		return nil, err
	}
	return db, nil
}

// -----------------------------------------------------------------------------

// setupTokenStore returns nil when the Redis token store is disabled.
func setupTokenStore(config *models.MConfig, appLogger *logger.Logger) (interfaces.ITokenStore, io.Closer) {
	if !config.TokenStore.Enabled {
		return nil, nil
	}
	store, err := tokenstore.NewRedisTokenStore(config.TokenStore, logger.NewLogger(config, "TokenStore"))
	if err != nil {
		appLogger.Warning("Token store unavailable, continuing without it: %v", err)
		return nil, nil
	}
	return store, store
}

// -----------------------------------------------------------------------------

// setupPublisher returns nil when Kafka publishing is disabled.
func setupPublisher(config *models.MConfig, appLogger *logger.Logger) interfaces.IReportPublisher {
	if !config.Publisher.Enabled {
		return nil
	}
	pub, err := publisher.NewKafkaPublisher(config.Publisher, logger.NewLogger(config, "KafkaPublisher"))
	if err != nil {
		appLogger.Warning("Publisher unavailable, continuing without it: %v", err)
		return nil
	}
	appLogger.Info("Publishing snapshots to %s", config.Publisher.Topic)
	return pub
}
