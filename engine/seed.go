package engine

// Canonical start: players face each other at mirrored x on the ground.
const (
	SeedStartX        = 30.0
	SeedShield        = 60.0
	SeedStocks        = 4
	SeedJumps         = 2
	SeedGroundSurface = 1
)

// GenerateSyntheticSeed builds k identical frames of the canonical starting
// position: P0 at x=-30 facing right, P1 at x=+30 facing left, both grounded
// with full shield, 4 stocks, idle action and neutral controllers. The output
// depends only on its arguments.
func GenerateSyntheticSeed(cfg EncodingConfig, k, stage, p0Char, p1Char int) Window {
	l := NewLayout(cfg)
	base := NewFrame(cfg)

	chars := [2]int{p0Char, p1Char}
	xs := [2]float32{-SeedStartX, SeedStartX}
	facing := [2]float32{1, 0}
	for p := 0; p < 2; p++ {
		f := func(idx int) *float32 { return &base.Floats[l.PlayerFloat(p, idx)] }
		*f(l.X) = xs[p] * cfg.XYScale
		*f(l.Shield) = SeedShield * cfg.ShieldScale
		*f(l.Stocks) = SeedStocks * cfg.StocksScale
		*f(l.Facing) = facing[p]
		*f(l.OnGround) = 1
		l.SetController(base, p, NeutralController())

		base.Ints[l.PlayerInt(p, IntAction)] = 0
		base.Ints[l.PlayerInt(p, IntJumps)] = SeedJumps
		base.Ints[l.PlayerInt(p, IntCharacter)] = int32(chars[p])
		base.Ints[l.PlayerInt(p, IntGround)] = SeedGroundSurface
	}
	base.Ints[l.StageCol()] = int32(stage)

	w := make(Window, k)
	for i := range w {
		w[i] = base.Clone()
	}
	return w
}
