package logging

import (
	"bytes"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestInitWriter_SetsLevel(t *testing.T) {
	var buf bytes.Buffer

	InitWriter(&buf, true)
	assert.True(t, DebugEnabled())
	assert.Equal(t, zerolog.DebugLevel, zerolog.GlobalLevel())

	InitWriter(&buf, false)
	assert.False(t, DebugEnabled())
	assert.Equal(t, zerolog.InfoLevel, zerolog.GlobalLevel())
}

func TestComponent_TagsEvents(t *testing.T) {
	var buf bytes.Buffer
	InitWriter(&buf, false)

	logger := Component("probe")
	logger.Info().Msg("hello")

	assert.Contains(t, buf.String(), "component=probe")
	assert.Contains(t, buf.String(), "hello")
}
