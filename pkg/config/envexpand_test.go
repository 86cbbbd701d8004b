package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExpandEnv_BasicExpansion(t *testing.T) {
	t.Setenv("ARGUS_TEST_DB_HOST", "db.internal")
	t.Setenv("ARGUS_TEST_DB_PORT", "5432")

	in := []byte("host: {{.ARGUS_TEST_DB_HOST}}\nport: {{.ARGUS_TEST_DB_PORT}}\n")
	out := ExpandEnv(in)

	assert.Equal(t, "host: db.internal\nport: 5432\n", string(out))
}

func TestExpandEnv_MissingVariableExpandsEmpty(t *testing.T) {
	in := []byte("api_key: {{.ARGUS_TEST_DEFINITELY_UNSET}}\n")
	out := ExpandEnv(in)

	assert.Equal(t, "api_key: \n", string(out))
}

func TestExpandEnv_PreservesDollarSigns(t *testing.T) {
	// FP-pattern regexes are full of $ anchors; they must pass through
	// byte-for-byte.
	in := []byte(`alert_name_regex: "^AWS.*root.*$"` + "\n" +
		`value_regex: ".*service-\\d+$"` + "\n")
	out := ExpandEnv(in)

	assert.Equal(t, string(in), string(out))
}

func TestExpandEnv_ValueContainingEquals(t *testing.T) {
	t.Setenv("ARGUS_TEST_DSN", "postgres://u:p@h/db?sslmode=disable")

	out := ExpandEnv([]byte("dsn: {{.ARGUS_TEST_DSN}}\n"))

	assert.Equal(t, "dsn: postgres://u:p@h/db?sslmode=disable\n", string(out))
}

func TestExpandEnv_MalformedTemplatePassesThrough(t *testing.T) {
	in := []byte("broken: {{.UNCLOSED\n")
	out := ExpandEnv(in)

	assert.Equal(t, string(in), string(out))
}
