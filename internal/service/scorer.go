package service

import (
	"context"
	"math/rand/v2"
	"sync"

	"recruit-go/internal/types"
)

// MatchScore 一次评分的结果
type MatchScore struct {
	Score    float64             `json:"score"`
	Analysis types.MatchAnalysis `json:"analysis"`
}

// Scorer 岗位与候选人的匹配评分策略
type Scorer interface {
	Score(ctx context.Context, job types.Job, candidate types.Candidate) (MatchScore, error)
}

// 随机评分的取值范围
const (
	MinMatchScore    = 0.5
	MaxMatchScore    = 1.0
	MinAnalysisScore = 0.7
	MaxAnalysisScore = 1.0
)

// RandomScorer 不看内容的随机评分: 总分在 [0.5,1.0]，四个分项在 [0.7,1.0]
type RandomScorer struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewRandomScorer seed 为 0 时使用随机种子
func NewRandomScorer(seed uint64) *RandomScorer {
	if seed == 0 {
		seed = rand.Uint64()
	}
	return &RandomScorer{rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

// Score 实现 Scorer
func (r *RandomScorer) Score(ctx context.Context, _ types.Job, _ types.Candidate) (MatchScore, error) {
	if err := ctx.Err(); err != nil {
		return MatchScore{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return MatchScore{
		Score: r.between(MinMatchScore, MaxMatchScore),
		Analysis: types.MatchAnalysis{
			Skills:     r.between(MinAnalysisScore, MaxAnalysisScore),
			Experience: r.between(MinAnalysisScore, MaxAnalysisScore),
			Education:  r.between(MinAnalysisScore, MaxAnalysisScore),
			Location:   r.between(MinAnalysisScore, MaxAnalysisScore),
		},
	}, nil
}

func (r *RandomScorer) between(lo, hi float64) float64 {
	return lo + r.rng.Float64()*(hi-lo)
}
