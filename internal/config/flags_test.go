package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFeatureManager_DefaultsAndOverride(t *testing.T) {
	fm := GetFeatureManager()
	assert.True(t, fm.IsEnabled("circuit_breaker"))
	assert.True(t, fm.IsEnabled("stealth_navigation"))
	assert.True(t, fm.IsEnabled("auto_resolve_poll"))
	assert.False(t, fm.IsEnabled("does_not_exist"))

	fm.SetFlag("circuit_breaker", false)
	assert.False(t, fm.IsEnabled("circuit_breaker"))
	fm.SetFlag("circuit_breaker", true)
}
