package config

import (
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
)

// ReplayConfig holds configuration for the replay command.
type ReplayConfig struct {
	In                string
	PGDSN             string
	StateFile         string
	StateName         string
	RecomputeFrom     string
	SaveEvery         int
	SnapshotOut       string
	WrappedNative     string
	USDAnchorPool     string
	USDStableIsToken0 bool
	LogLevel          string
}

// LoadReplay merges config file, environment variables, and flags into ReplayConfig.
func LoadReplay(cfgFile string, flags *pflag.FlagSet) (ReplayConfig, error) {
	v, err := newViper(cfgFile, flags, map[string]interface{}{
		"state-name":   "replay",
		"save-every":   1000,
		"snapshot-out": "./data/state_snapshot.json",
		"log-level":    "info",
	})
	if err != nil {
		return ReplayConfig{}, err
	}

	cfg := ReplayConfig{
		In:                v.GetString("in"),
		PGDSN:             v.GetString("pg-dsn"),
		StateFile:         v.GetString("state-file"),
		StateName:         v.GetString("state-name"),
		RecomputeFrom:     v.GetString("recompute-from"),
		SaveEvery:         v.GetInt("save-every"),
		SnapshotOut:       v.GetString("snapshot-out"),
		WrappedNative:     v.GetString("wrapped-native"),
		USDAnchorPool:     v.GetString("usd-anchor-pool"),
		USDStableIsToken0: v.GetBool("usd-stable-is-token0"),
		LogLevel:          v.GetString("log-level"),
	}

	return cfg, nil
}

// ParseTimestamp parses a timestamp value (unix seconds or RFC3339).
func ParseTimestamp(input string) (uint64, error) {
	if strings.TrimSpace(input) == "" {
		return 0, nil
	}

	if isNumeric(input) {
		val, err := strconv.ParseUint(input, 10, 64)
		if err != nil {
			return 0, err
		}
		return val, nil
	}

	tm, err := time.Parse(time.RFC3339, input)
	if err != nil {
		return 0, err
	}
	return uint64(tm.Unix()), nil
}

func isNumeric(input string) bool {
	for _, r := range input {
		if r < '0' || r > '9' {
			return false
		}
	}
	return input != ""
}
