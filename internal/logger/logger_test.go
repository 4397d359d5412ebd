package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewLogger(t *testing.T) {
	for _, lvl := range []string{"", "debug", "info", "warn", "error"} {
		log, err := NewLogger(lvl)
		assert.NoError(t, err, "level %q", lvl)
		assert.NotNil(t, log)
	}

	_, err := NewLogger("loud")
	assert.Error(t, err)
}
