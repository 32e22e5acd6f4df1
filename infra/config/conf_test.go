package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetEnv(t *testing.T) {
	os.Setenv("TEST_CONF_KEY", "value")
	defer os.Unsetenv("TEST_CONF_KEY")

	assert.Equal(t, "value", GetEnv("TEST_CONF_KEY", "fallback"))
	assert.Equal(t, "fallback", GetEnv("TEST_CONF_MISSING", "fallback"))
}

func TestGetBoolEnv(t *testing.T) {
	os.Setenv("TEST_CONF_BOOL", "true")
	defer os.Unsetenv("TEST_CONF_BOOL")

	assert.True(t, GetBoolEnv("TEST_CONF_BOOL", false))
	assert.True(t, GetBoolEnv("TEST_CONF_BOOL_MISSING", true))

	os.Setenv("TEST_CONF_BOOL", "not-a-bool")
	assert.False(t, GetBoolEnv("TEST_CONF_BOOL", false))
}

func TestGetIntEnv(t *testing.T) {
	os.Setenv("TEST_CONF_INT", "42")
	defer os.Unsetenv("TEST_CONF_INT")

	assert.Equal(t, 42, GetIntEnv("TEST_CONF_INT", 7))
	assert.Equal(t, 7, GetIntEnv("TEST_CONF_INT_MISSING", 7))
}

func TestRandomString(t *testing.T) {
	a := RandomString(32)
	b := RandomString(32)

	assert.Len(t, a, 32)
	assert.Len(t, b, 32)
	assert.NotEqual(t, a, b)
}
