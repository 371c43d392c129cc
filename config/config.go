// Package config reads the CS_* environment variables described in
// §6 once at process start into a frozen Config value.
// Grounded in the original engine's analytics.LoadEnvFile + joho/godotenv pattern
// for optional .env loading during development (an operator's
// ~/.scalpel/.env can set these without exporting them in the shell).
package config

import (
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"

	"github.com/codescalpel/scalpel/policy"
)

// Config is every CS_* environment variable from §6, resolved once.
type Config struct {
	// Tier is parsed from CS_TIER by policy.ParseTier, which yields
	// Community for an empty or unrecognized value. The license document
	// at LicensePath is not read when resolving the tier.
	Tier policy.Tier

	// LicensePath is the value of CS_LICENSE_PATH. It is recorded here
	// but no package reads the document it points at.
	LicensePath string

	CacheDir     string
	AuditPath    string // empty disables the audit sink, per §6
	PolicyPath   string // empty uses the built-in policy.DefaultDocuments()
	SolverTimeoutMs int
}

// Defaults mirror the literal default values named in §6.
const (
	DefaultCacheDir        = ".scalpel_cache"
	DefaultAuditPath       = ".scalpel/audit.jsonl"
	DefaultSolverTimeoutMs = 5000
)

// Load reads CS_* from the process environment, optionally loading
// `~/.scalpel/.env` first (godotenv.Load is a no-op if the file is
// absent) the way the original engine's analytics.LoadEnvFile loads a development
// `.env` before checking os.Getenv.
func Load() Config {
	loadDotEnv()

	c := Config{
		Tier:            policy.ParseTier(os.Getenv("CS_TIER")),
		LicensePath:     os.Getenv("CS_LICENSE_PATH"),
		CacheDir:        getEnvOr("CS_CACHE_DIR", DefaultCacheDir),
		AuditPath:       getEnvOr("CS_AUDIT_PATH", DefaultAuditPath),
		PolicyPath:      os.Getenv("CS_POLICY_PATH"),
		SolverTimeoutMs: DefaultSolverTimeoutMs,
	}
	if v, err := strconv.Atoi(os.Getenv("CS_SOLVER_TIMEOUT_MS")); err == nil && v > 0 {
		c.SolverTimeoutMs = v
	}
	return c
}

func loadDotEnv() {
	home, err := os.UserHomeDir()
	if err != nil {
		return
	}
	_ = godotenv.Load(filepath.Join(home, ".scalpel", ".env"))
}

// getEnvOr returns the environment value for key, or def if it was never
// set at all. An explicitly empty value is preserved rather than falling
// back to def (distinguishing "unset" from "set to empty"), which matters
// for CS_AUDIT_PATH's "empty disables" semantics in §6.
func getEnvOr(key, def string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return def
}
