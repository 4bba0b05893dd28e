package money

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAndString(t *testing.T) {
	cases := []struct {
		in   string
		want Amount
		out  string
	}{
		{"100", 100_000_000, "100"},
		{"0.45", 450_000, "0.45"},
		{"99.55", 99_550_000, "99.55"},
		{"0.000001", 1, "0.000001"},
		{"-2.5", -2_500_000, "-2.5"},
	}
	for _, tc := range cases {
		got, err := Parse(tc.in)
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.want, got, tc.in)
		assert.Equal(t, tc.out, got.String(), tc.in)
	}
}

func TestParseRejectsExcessPrecision(t *testing.T) {
	_, err := Parse("0.0000001")
	if !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
	_, err = Parse("not-a-number")
	if !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
}

func TestRoundHalfAwayFromZero(t *testing.T) {
	got, err := Round(decimal.RequireFromString("0.0000005"))
	require.NoError(t, err)
	assert.Equal(t, Amount(1), got)

	got, err = Round(decimal.RequireFromString("-0.0000005"))
	require.NoError(t, err)
	assert.Equal(t, Amount(-1), got)

	got, err = Round(decimal.RequireFromString("0.4500004"))
	require.NoError(t, err)
	assert.Equal(t, Amount(450_000), got)
}

func TestJSON(t *testing.T) {
	var body struct {
		Amount Amount `json:"amount"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"amount": 12.34}`), &body))
	assert.Equal(t, Amount(12_340_000), body.Amount)

	require.NoError(t, json.Unmarshal([]byte(`{"amount": "7"}`), &body))
	assert.Equal(t, Amount(7_000_000), body.Amount)

	raw, err := json.Marshal(map[string]Amount{"wallet": MustParse("99.55")})
	require.NoError(t, err)
	assert.JSONEq(t, `{"wallet": 99.55}`, string(raw))

	assert.Error(t, json.Unmarshal([]byte(`{"amount": null}`), &body))
}

func TestUnmarshalRejectsUnbalancedQuotes(t *testing.T) {
	for _, raw := range []string{`"5`, `5"`, `""5"`, `"`, `""`} {
		var a Amount
		err := a.UnmarshalJSON([]byte(raw))
		if !errors.Is(err, ErrInvalidAmount) {
			t.Fatalf("%s: expected ErrInvalidAmount, got %v", raw, err)
		}
	}

	var a Amount
	require.NoError(t, a.UnmarshalJSON([]byte(`"5"`)))
	assert.Equal(t, MustParse("5"), a)
}
