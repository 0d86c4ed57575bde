package services

import (
	"math"

	"github.com/custodia-labs/notelens/internal/core/domain"
)

// clamp01 clamps x into [0,1].
func clamp01(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}

// smoothstep is the cubic ease from 0 at e0 to 1 at e1, with zero
// derivative at both ends.
func smoothstep(e0, e1, x float64) float64 {
	if e0 == e1 {
		if x < e0 {
			return 0
		}
		return 1
	}
	t := clamp01((x - e0) / (e1 - e0))
	return t * t * (3 - 2*t)
}

// sigmoid is the logistic function.
func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}

// modulateScore blends one cosine similarity and one raw lexical score
// into a bounded relevance score in [0,1].
//
// Lexical strength s = max(0,-lex) drives two adjustments. A saturating
// lexical share, capped at cfg.LexCap and sigmoid-gated so weak matches
// contribute almost nothing. And a cosine penalty for candidates with
// weak lexical support (s below cfg.WeakHigh) that fades out once
// cosine itself clears cfg.CosFadeHigh.
//
// matched counts query terms the candidate matched literally; each
// extra term adds a small saturating bonus to the lexical share.
func modulateScore(cos, lex float64, matched int, cfg domain.ModulatorSettings) float64 {
	s := math.Max(0, -lex)

	gate := sigmoid(cfg.GateSlope * (s - cfg.GateMidpoint))
	base := cfg.BaseScale * (1 - math.Exp(-s/cfg.BaseDecay))
	extra := 0.0
	if matched > 1 {
		extra = float64(matched - 1)
	}
	bonus := cfg.BonusScale * (1 - math.Exp(-extra/cfg.BonusDecay))
	lexPct := math.Min(cfg.LexCap, math.Max(0, base-cfg.BaseOffset+bonus)*gate)

	pLow := 1 - smoothstep(cfg.WeakLow, cfg.WeakHigh, s)
	pHeavy := pLow * pLow
	pModest := math.Max(0, pLow-pHeavy)
	gateCos := 1 - smoothstep(cfg.CosFadeLow, cfg.CosFadeHigh, clamp01(cos))
	penalty := clamp01(1 - (cfg.HeavyPenalty*pHeavy+cfg.ModestPenalty*pModest)*gateCos)

	cosAdj := clamp01(cos) * penalty
	return cosAdj + lexPct*(1-cosAdj)
}
