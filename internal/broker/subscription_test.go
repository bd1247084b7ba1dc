package broker

import (
	"testing"

	"frostflow/internal/models"

	"github.com/stretchr/testify/assert"
)

func TestEventMaskMatches(t *testing.T) {
	assert.True(t, EventAll.matches(models.ChangeInsert))
	assert.True(t, EventAll.matches(models.ChangeUpdate))
	assert.True(t, EventAll.matches(models.ChangeDelete))

	assert.True(t, EventInsert.matches(models.ChangeInsert))
	assert.False(t, EventInsert.matches(models.ChangeUpdate))
	assert.False(t, EventInsert.matches(models.ChangeDelete))

	mask := EventUpdate | EventDelete
	assert.False(t, mask.matches(models.ChangeInsert))
	assert.True(t, mask.matches(models.ChangeUpdate))

	assert.False(t, EventAll.matches("TRUNCATE"))
	assert.False(t, EventMask(0).matches(models.ChangeInsert))
}
