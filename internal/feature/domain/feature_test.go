package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFeatureSetAccessors(t *testing.T) {
	set := FeatureSet{
		"flag_on":   true,
		"flag_off":  false,
		"limit":     float64(25),
		"zero":      0,
		"unlimited": -1,
		"number":    json.Number("7"),
		"text":      "yes",
	}

	assert.True(t, set.Bool("flag_on"))
	assert.False(t, set.Bool("flag_off"))
	assert.True(t, set.Bool("limit"))
	assert.False(t, set.Bool("zero"))
	assert.True(t, set.Bool("unlimited"))
	assert.False(t, set.Bool("text"))
	assert.False(t, set.Bool("missing"))

	assert.EqualValues(t, 25, set.Int("limit"))
	assert.EqualValues(t, -1, set.Int("unlimited"))
	assert.EqualValues(t, 7, set.Int("number"))
	assert.Zero(t, set.Int("flag_on"))
	assert.Zero(t, set.Int("missing"))
}

func TestLimitErrorMatchesSentinel(t *testing.T) {
	err := error(&LimitError{Kind: "devices", Current: 10, Limit: 10})
	assert.ErrorIs(t, err, ErrLimitExceeded)
	assert.NotErrorIs(t, err, ErrFeatureDisabled)
	assert.Equal(t, "You have reached the limit of 10 devices. Please upgrade your plan.", err.(*LimitError).Message())
}
