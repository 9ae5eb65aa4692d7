package main

import (
	"github.com/franz/playlake/internal/report"
	"github.com/franz/playlake/internal/store"
	"github.com/franz/playlake/internal/util"
	"github.com/spf13/viper"
)

// GetConfigString retrieves a string config value with proper precedence:
// 1. Command-line flag (if set)
// 2. Environment variable (PLAYLAKE_*)
// 3. Config file
// 4. Default value
func GetConfigString(key string, defaultValue string) string {
	val := viper.GetString(key)
	if val == "" {
		return defaultValue
	}
	return val
}

// GetConfigInt retrieves an int config value with proper precedence
func GetConfigInt(key string, defaultValue int) int {
	val := viper.GetInt(key)
	if val <= 0 {
		return defaultValue
	}
	return val
}

// eventLevel maps -v/-q onto the event log threshold
func eventLevel() report.EventLevel {
	switch {
	case viper.GetBool("quiet"):
		return report.LevelWarning
	case viper.GetBool("verbose"):
		return report.LevelDebug
	default:
		return report.LevelInfo
	}
}

// openEventLogger falls back to a null logger when the events directory
// cannot be created; the event log never blocks a run.
func openEventLogger() *report.EventLogger {
	logger, err := report.NewEventLogger(GetConfigString("events_dir", "artifacts"), eventLevel())
	if err != nil {
		util.WarnLog("Failed to create event logger: %v", err)
		return report.NullLogger()
	}
	return logger
}

func openLedger() (*store.Store, string, error) {
	dbPath := GetConfigString("db", "playlake-state.db")
	db, err := store.OpenWithOptions(dbPath, &store.OpenOptions{
		SharedStorage: viper.GetBool("db_shared_storage"),
	})
	if err != nil {
		return nil, dbPath, err
	}
	return db, dbPath, nil
}
