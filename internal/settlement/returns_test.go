package settlement

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/pickem/backend/internal/contracts"
)

func TestPositionReturn(t *testing.T) {
	pos := contracts.Position{Ticker: "aapl", BudgetInvested: 5000, Quantity: 50, InitialPrice: 100}

	pr := PositionReturn(pos, 110)
	assert.Equal(t, "AAPL", pr.Ticker)
	assert.InDelta(t, 10.0, pr.ReturnPercent, 1e-9)
	assert.InDelta(t, 5500.0, pr.ValueAtEnd, 1e-9)
	assert.Equal(t, 50.0, pr.Quantity, "quantity is never recomputed")

	zero := PositionReturn(contracts.Position{Ticker: "X", Quantity: 3}, 10)
	assert.Zero(t, zero.ReturnPercent, "zero initial price yields zero return")
	assert.InDelta(t, 30.0, zero.ValueAtEnd, 1e-9)
}

func TestComputeResult(t *testing.T) {
	player := &contracts.Player{
		ID:          "p1",
		GameCode:    "G1",
		UserID:      "u1",
		TotalBudget: 10000,
		SubmittedAt: t0,
		Positions: []contracts.Position{
			{Ticker: "AAA", BudgetInvested: 6000, Quantity: 60, InitialPrice: 100},
			{Ticker: "BBB", BudgetInvested: 4000, Quantity: 20, InitialPrice: 200},
		},
	}

	r := ComputeResult(player, map[string]float64{"AAA": 120}, t0)

	require.Len(t, r.Positions, 2)
	assert.InDelta(t, 20.0, r.Positions[0].ReturnPercent, 1e-9)
	assert.Equal(t, 200.0, r.Positions[1].FinalPrice, "missing price settles flat")
	assert.InDelta(t, 11200.0, r.FinalValue, 1e-9)
	assert.InDelta(t, 12.0, r.PortfolioReturnPercent, 1e-9)
	assert.Equal(t, t0, r.SubmittedAt)
	assert.Equal(t, "u1", r.UserID)
}

func TestComputeResult_UserIDs(t *testing.T) {
	tests := []struct {
		name   string
		userID string
		want   string
	}{
		{"linked", "u1", "u1"},
		{"padded", "  u1 ", "u1"},
		{"blank", "   ", ""},
		{"anonymous", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := ComputeResult(&contracts.Player{ID: "p1", UserID: tt.userID, TotalBudget: 100}, nil, t0)
			assert.Equal(t, tt.want, r.UserID)
			assert.Equal(t, tt.want == "", r.IsAnonymous())
		})
	}
}

func TestPortfolioReturn_RoundTrip(t *testing.T) {
	cases := []struct{ budget, value float64 }{
		{10000, 12345.67},
		{10000, 8765.4321},
		{2500, 2500},
		{999.99, 1.01},
	}

	for _, c := range cases {
		ret := PortfolioReturn(c.value, c.budget)
		back := c.budget * (1 + RoundReturn(ret)/100)
		assert.InDelta(t, c.value, back, c.budget*1e-6)
	}
	assert.Zero(t, PortfolioReturn(100, 0))
}

func TestRounding(t *testing.T) {
	assert.Equal(t, 12.3457, RoundReturn(12.345678))
	assert.Equal(t, -0.0001, RoundReturn(-0.00005))
	assert.Equal(t, 1234.57, RoundMoney(1234.5678))
	assert.Equal(t, 0.1, RoundMoney(0.1))
}

func TestRoundedForPersistence_DoesNotMutate(t *testing.T) {
	v := 33.333333
	r := contracts.Result{
		PortfolioReturnPercent: 33.333333,
		FinalValue:             13333.3333,
		Positions:              []contracts.PositionResult{{ReturnPercent: 33.333333, ValueAtEnd: 13333.3333}},
		Awards:                 []contracts.Award{{Type: contracts.AwardOracle, Value: &v}},
	}

	out := roundedForPersistence(r)
	assert.Equal(t, 33.3333, out.PortfolioReturnPercent)
	assert.Equal(t, 13333.33, out.FinalValue)
	assert.Equal(t, 33.3333, out.Positions[0].ReturnPercent)
	assert.Equal(t, 33.3333, *out.Awards[0].Value)

	assert.Equal(t, 33.333333, r.Positions[0].ReturnPercent)
	assert.Equal(t, 33.333333, *r.Awards[0].Value)
}
