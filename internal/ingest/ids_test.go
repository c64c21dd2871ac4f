package ingest

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/david/grant-search/internal/models"
)

func TestIDAllocatorStartsAtOffset(t *testing.T) {
	a := NewIDAllocator(nil, 15)
	assert.Equal(t, "g15", a.ID("https://a"))
	assert.Equal(t, "g16", a.ID("https://b"))
	assert.Equal(t, "g15", a.ID("https://a"))
}

func TestIDAllocatorReusesStoredIDs(t *testing.T) {
	existing := models.GrantCollection{
		"g3":     {ID: "g3", URL: "https://old"},
		"g40":    {ID: "g40", URL: "https://newer"},
		"manual": {ID: "manual", URL: "https://manual"},
	}
	a := NewIDAllocator(existing, 15)
	assert.Equal(t, "g3", a.ID("https://old"))
	assert.Equal(t, "manual", a.ID("https://manual"))
	assert.Equal(t, "g41", a.ID("https://fresh"))
}

func TestIDAllocatorEmptyURLAlwaysNew(t *testing.T) {
	a := NewIDAllocator(nil, 1)
	assert.Equal(t, "g1", a.ID(""))
	assert.Equal(t, "g2", a.ID(""))
}
