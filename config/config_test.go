package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/codescalpel/scalpel/policy"
)

func clearScalpelEnv(t *testing.T) {
	for _, k := range []string{"CS_TIER", "CS_LICENSE_PATH", "CS_CACHE_DIR", "CS_AUDIT_PATH", "CS_POLICY_PATH"} {
		old, had := os.LookupEnv(k)
		os.Unsetenv(k)
		t.Cleanup(func() {
			if had {
				os.Setenv(k, old)
			}
		})
	}
}

func TestLoadDefaults(t *testing.T) {
	clearScalpelEnv(t)
	c := Load()
	assert.Equal(t, policy.Community, c.Tier)
	assert.Equal(t, DefaultCacheDir, c.CacheDir)
	assert.Equal(t, DefaultAuditPath, c.AuditPath)
}

func TestLoadReadsOverrides(t *testing.T) {
	clearScalpelEnv(t)
	os.Setenv("CS_TIER", "enterprise")
	os.Setenv("CS_CACHE_DIR", "/tmp/custom-cache")
	os.Setenv("CS_AUDIT_PATH", "")

	c := Load()
	assert.Equal(t, policy.Enterprise, c.Tier)
	assert.Equal(t, "/tmp/custom-cache", c.CacheDir)
	assert.Equal(t, "", c.AuditPath, "explicitly empty CS_AUDIT_PATH must disable auditing, not fall back to the default")
}
