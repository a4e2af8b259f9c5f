package money

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected Amount
	}{
		{"whole number", "15", 1500},
		{"two decimals", "4.00", 400},
		{"one decimal", "7.5", 750},
		{"cents only", "0.01", 1},
		{"zero", "0", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, err := Parse(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, a)
		})
	}
}

func TestParse_TooPrecise(t *testing.T) {
	_, err := Parse("1.005")
	assert.ErrorIs(t, err, ErrPrecision)
}

func TestParse_Garbage(t *testing.T) {
	_, err := Parse("four dollars")
	assert.Error(t, err)
}

func TestAmount_String(t *testing.T) {
	assert.Equal(t, "15.00", FromCents(1500).String())
	assert.Equal(t, "0.07", FromCents(7).String())
	assert.Equal(t, "-1.50", FromCents(-150).String())
}

func TestAmount_Times(t *testing.T) {
	assert.Equal(t, FromCents(800), MustParse("4.00").Times(2))
	assert.Equal(t, FromCents(0), MustParse("4.00").Times(0))
}

func TestAmount_NoDriftOverManySmallAdditions(t *testing.T) {
	var total Amount
	for i := 0; i < 1000; i++ {
		total += MustParse("0.10")
	}

	assert.Equal(t, "100.00", total.String())
	assert.True(t, total.Decimal().Equal(decimal.NewFromInt(100)))
}

func TestAmount_JSON(t *testing.T) {
	data, err := json.Marshal(struct {
		Price Amount `json:"price"`
	}{Price: MustParse("4")})
	require.NoError(t, err)
	assert.JSONEq(t, `{"price":"4.00"}`, string(data))

	var decoded struct {
		Quoted Amount `json:"quoted"`
		Bare   Amount `json:"bare"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"quoted":"7.00","bare":4.5}`), &decoded))
	assert.Equal(t, FromCents(700), decoded.Quoted)
	assert.Equal(t, FromCents(450), decoded.Bare)
}

func TestAmount_UnmarshalJSON_TooPrecise(t *testing.T) {
	var a Amount
	err := json.Unmarshal([]byte(`"0.001"`), &a)
	assert.ErrorIs(t, err, ErrPrecision)
}
