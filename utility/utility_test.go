package utility

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestToInt(t *testing.T) {
	assert.Equal(t, 7400, ToInt("7400"))
	assert.Equal(t, 0, ToInt("not a number"))
	assert.Equal(t, -5, ToInt("-5"))
}

func TestClamp(t *testing.T) {
	assert.Equal(t, 1000, Clamp(50, 1000, 22000))
	assert.Equal(t, 22000, Clamp(50000, 1000, 22000))
	assert.Equal(t, 7400, Clamp(7400, 1000, 22000))
}

func TestWattsToString(t *testing.T) {
	assert.Equal(t, "22.0", WattsToString(22000))
	assert.Equal(t, "7.4", WattsToString(7400))
	assert.Equal(t, "0.0", WattsToString(99))
}

func TestNewUUIDUnique(t *testing.T) {
	assert.NotEqual(t, NewUUID(), NewUUID())
	assert.NotEmpty(t, NewUUID())
}
