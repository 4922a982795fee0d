package imgx

import (
	"math"
	"testing"
)

func TestJet_Endpoints(t *testing.T) {
	if c := Jet(0); c.R != 0 || c.G != 0 || c.B < 120 {
		t.Fatalf("t=0 期望深蓝，实际 %v", c)
	}
	if c := Jet(1); c.R < 120 || c.G != 0 || c.B != 0 {
		t.Fatalf("t=1 期望深红，实际 %v", c)
	}
	if c := Jet(0.5); c.G != 255 {
		t.Fatalf("t=0.5 期望绿色通道饱和，实际 %v", c)
	}
	if Jet(math.NaN()) != Jet(0) || Jet(-3) != Jet(0) || Jet(7) != Jet(1) {
		t.Fatalf("越界输入应被截断到端点")
	}
}

func TestJetN_SpreadsEvenly(t *testing.T) {
	if JetN(0, 1) != Jet(0) || JetN(4, 5) != Jet(1) {
		t.Fatalf("JetN 端点不一致")
	}
	if JetN(2, 5) != Jet(0.5) {
		t.Fatalf("期望中点颜色 %v，实际 %v", Jet(0.5), JetN(2, 5))
	}
	seen := map[[3]uint8]bool{}
	for i := 0; i < 8; i++ {
		c := JetN(i, 8)
		seen[[3]uint8{c.R, c.G, c.B}] = true
	}
	if len(seen) != 8 {
		t.Fatalf("8 等分应得到 8 种不同颜色，实际 %d", len(seen))
	}
}
