package ai

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/david/grant-search/internal/models"
)

func TestClassifyEligibility(t *testing.T) {
	c := &fakeCompleter{responses: map[bool]string{
		true: `{"positions":["phd","Undergraduate","Astronaut","PhD"]}`,
	}}
	got, err := ClassifyEligibility(context.Background(), c, "Grant", "Open to PhD and undergraduate students")
	require.NoError(t, err)
	assert.Equal(t, []models.AcademicPosition{models.PositionPhD, models.PositionUndergraduate}, got)
}

func TestClassifyEligibilityBadJSON(t *testing.T) {
	c := &fakeCompleter{responses: map[bool]string{true: `not json`}}
	_, err := ClassifyEligibility(context.Background(), c, "Grant", "x")
	assert.Error(t, err)
}

func TestFilterValid(t *testing.T) {
	got := filterValid([]string{" coterm ", "x", "Coterm"}, []string{"Coterm", "PhD"})
	assert.Equal(t, []string{"Coterm"}, got)
	assert.Empty(t, filterValid(nil, []string{"PhD"}))
}
