package shield_test

import (
	"testing"

	"github.com/shieldkit/webshield/internal/shield"
	"github.com/stretchr/testify/assert"
)

func TestConfiguration(t *testing.T) {
	c := shield.AllOn()
	assert.True(t, c.IsDefault())
	assert.False(t, c.IsAllOff())

	c.ScriptBlocking = true
	assert.False(t, c.IsDefault())

	off := shield.Configuration{ScriptBlocking: true}
	assert.True(t, off.IsAllOff())
	assert.False(t, off.IsDefault())
}
