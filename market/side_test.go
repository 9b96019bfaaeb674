package market

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSide(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    Side
		wantErr bool
	}{
		{"long", Long, false},
		{"BUY", Long, false},
		{" short ", Short, false},
		{"sell", Short, false},
		{"flat", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseSide(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got)
	}
}

func TestSideJSON(t *testing.T) {
	t.Parallel()

	b, err := json.Marshal(struct {
		D Side `json:"direction"`
	}{Short})
	require.NoError(t, err)
	assert.JSONEq(t, `{"direction":"short"}`, string(b))

	var v struct {
		D Side `json:"direction"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"direction":"buy"}`), &v))
	assert.Equal(t, Long, v.D)
	assert.Equal(t, 1.0, v.D.Sign())

	// Unset sides survive a round trip as "".
	b, err = json.Marshal(struct {
		D Side `json:"direction"`
	}{})
	require.NoError(t, err)
	assert.JSONEq(t, `{"direction":""}`, string(b))
}

func TestBarValidHighBelowOpen(t *testing.T) {
	t.Parallel()

	ok := Bar{Symbol: "AAPL", Open: 10, High: 11, Low: 9, Close: 10.5}
	assert.True(t, ok.Valid())

	bad := ok
	bad.High = 9.5
	assert.False(t, bad.Valid())
}
