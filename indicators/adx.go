package indicators

import (
	"fmt"
	"math"

	"github.com/IvanHuYY/Stockbot/market"
)

// ADX implements Wilder's Average Directional Index (trend strength).
//
//	adx := indicators.NewADX(14)
//	adx.Update(bar)
//	if adx.Ready() && adx.Value() >= 20 { ... }
type ADX struct {
	period int

	prev     market.Bar
	havePrev bool

	// Wilder-smoothed values after warmup.
	tr  float64
	pdm float64
	mdm float64

	adx   float64
	dxSum float64

	// bars processed, including the first seed
	count int
	ready bool
}

func NewADX(period int) *ADX {
	return &ADX{period: period}
}

func (a *ADX) Name() string {
	return fmt.Sprintf("ADX(%d)", a.period)
}

// Warmup is 2*period+1: period bars seed the smoothed ranges, then
// period DX values seed the ADX.
func (a *ADX) Warmup() int {
	return 2*a.period + 1
}

func (a *ADX) Reset() {
	*a = ADX{period: a.period}
}

func (a *ADX) Ready() bool {
	return a.ready
}

func (a *ADX) Value() float64 {
	if !a.ready {
		return 0
	}
	return a.adx
}

func (a *ADX) Update(b market.Bar) {
	if !a.havePrev {
		a.prev = b
		a.havePrev = true
		a.count = 1
		return
	}

	upMove := b.High - a.prev.High
	downMove := a.prev.Low - b.Low

	var pdm, mdm float64
	if upMove > downMove && upMove > 0 {
		pdm = upMove
	}
	if downMove > upMove && downMove > 0 {
		mdm = downMove
	}
	tr := trueRange(b, a.prev)

	a.prev = b
	a.count++

	p := float64(a.period)
	if a.count <= a.period+1 {
		a.tr += tr
		a.pdm += pdm
		a.mdm += mdm
		if a.count == a.period+1 {
			a.tr /= p
			a.pdm /= p
			a.mdm /= p
		}
		return
	}

	a.tr = (a.tr*(p-1) + tr) / p
	a.pdm = (a.pdm*(p-1) + pdm) / p
	a.mdm = (a.mdm*(p-1) + mdm) / p

	var dx float64
	if a.tr > 0 {
		pdi := 100 * a.pdm / a.tr
		mdi := 100 * a.mdm / a.tr
		if den := pdi + mdi; den > 0 {
			dx = 100 * math.Abs(pdi-mdi) / den
		}
	}

	if !a.ready {
		a.dxSum += dx
		if a.count == 2*a.period+1 {
			a.adx = a.dxSum / p
			a.ready = true
		}
		return
	}
	a.adx = (a.adx*(p-1) + dx) / p
}
