package env

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestExpandWith(t *testing.T) {
	vars := map[string]string{"HOST": "example.com", "EMPTY": ""}
	lookup := func(k string) (string, bool) {
		v, ok := vars[k]
		return v, ok
	}

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"set variable", "host: ${HOST}", "host: example.com"},
		{"default unused", "${HOST:-fallback}", "example.com"},
		{"default used", "${MISSING:-fallback}", "fallback"},
		{"empty uses default", "${EMPTY:-fallback}", "fallback"},
		{"unset without default", "[${MISSING}]", "[]"},
		{"bare dollar untouched", "price: $HOST", "price: $HOST"},
		{"several", "${HOST}/${MISSING:-x}", "example.com/x"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExpandWith(tt.input, lookup))
		})
	}
}

func TestExpand_OSEnvironment(t *testing.T) {
	t.Setenv("IMAGIC_EXPAND_TEST", "yes")
	assert.Equal(t, "yes", Expand("${IMAGIC_EXPAND_TEST}"))
}

func TestTypedLookups(t *testing.T) {
	t.Setenv("IMAGIC_T_STRING", "value")
	t.Setenv("IMAGIC_T_BOOL", "YES")
	t.Setenv("IMAGIC_T_INT", "12")
	t.Setenv("IMAGIC_T_BADINT", "twelve")
	t.Setenv("IMAGIC_T_FLOAT", "2.5")
	t.Setenv("IMAGIC_T_DURATION", "1m30s")

	assert.Equal(t, "value", GetString("IMAGIC_T_STRING", "d"))
	assert.Equal(t, "d", GetString("IMAGIC_T_UNSET", "d"))
	assert.True(t, GetBool("IMAGIC_T_BOOL", false))
	assert.False(t, GetBool("IMAGIC_T_STRING", true))
	assert.True(t, GetBool("IMAGIC_T_UNSET", true))
	assert.Equal(t, 12, GetInt("IMAGIC_T_INT", 0))
	assert.Equal(t, 7, GetInt("IMAGIC_T_BADINT", 7))
	assert.Equal(t, 2.5, GetFloat("IMAGIC_T_FLOAT", 0))
	assert.Equal(t, 90*time.Second, GetDuration("IMAGIC_T_DURATION", 0))
	assert.Equal(t, time.Second, GetDuration("IMAGIC_T_UNSET", time.Second))
}
