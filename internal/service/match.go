package service

import (
	"context"
	"fmt"
	"math"

	"recruit-go/internal/constants"
	"recruit-go/internal/logger"
	"recruit-go/internal/store"
	"recruit-go/internal/types"
)

// JobMatchService 岗位匹配记录和评分
type JobMatchService struct {
	crud[types.JobMatch]
	jobs       *store.Collection[types.Job]
	candidates *store.Collection[types.Candidate]
	scorer     Scorer
}

// NewJobMatchService 创建匹配服务，scorer 为 nil 时使用 RandomScorer
func NewJobMatchService(s *store.Store, delay Delayer, scorer Scorer) *JobMatchService {
	if scorer == nil {
		scorer = NewRandomScorer(0)
	}
	return &JobMatchService{
		crud: newCrud(s, constants.CollectionJobMatches, delay, ErrMatchNotFound, func(m types.JobMatch) []string {
			return []string{m.JobID, m.CandidateID, string(m.Status), m.AISummary}
		}),
		jobs:       store.NewCollection[types.Job](s, constants.CollectionJobs),
		candidates: store.NewCollection[types.Candidate](s, constants.CollectionCandidates),
		scorer:     scorer,
	}
}

// GetMatchesForJob 岗位的所有匹配
func (s *JobMatchService) GetMatchesForJob(ctx context.Context, jobID string) ([]types.JobMatch, error) {
	return s.filter(ctx, func(m types.JobMatch) bool { return m.JobID == jobID })
}

// GetMatchesForCandidate 候选人的所有匹配
func (s *JobMatchService) GetMatchesForCandidate(ctx context.Context, candidateID string) ([]types.JobMatch, error) {
	return s.filter(ctx, func(m types.JobMatch) bool { return m.CandidateID == candidateID })
}

// UpdateMatchStatus 修改招聘流程状态。状态之间的先后顺序不做限制。
func (s *JobMatchService) UpdateMatchStatus(ctx context.Context, id string, status types.MatchStatus) (types.JobMatch, error) {
	if !status.Valid() {
		return types.JobMatch{}, fmt.Errorf("%w: %q", ErrInvalidMatchStatus, status)
	}
	return s.update(ctx, id, store.Record{"status": string(status)})
}

// CalculateMatchScore 为一对岗位和候选人评分并保存为新的匹配记录
func (s *JobMatchService) CalculateMatchScore(ctx context.Context, jobID, candidateID string) (types.JobMatch, error) {
	if err := s.delay.Delay(ctx); err != nil {
		return types.JobMatch{}, err
	}
	job, ok := s.jobs.Get(ctx, jobID)
	if !ok {
		return types.JobMatch{}, ErrJobNotFound
	}
	candidate, ok := s.candidates.Get(ctx, candidateID)
	if !ok {
		return types.JobMatch{}, ErrCandidateNotFound
	}

	score, err := s.scorer.Score(ctx, job, candidate)
	if err != nil {
		return types.JobMatch{}, fmt.Errorf("匹配评分失败: %w", err)
	}
	return s.coll.Add(ctx, types.JobMatch{
		JobID:       jobID,
		CandidateID: candidateID,
		Status:      types.MatchStatusApplied,
		Score:       score.Score,
		Analysis:    score.Analysis,
	})
}

// BulkCreateMatches 为岗位批量创建匹配，附带一段摘要。不存在的候选人被跳过。
func (s *JobMatchService) BulkCreateMatches(ctx context.Context, jobID string, candidateIDs []string) ([]types.JobMatch, error) {
	if err := s.delay.Delay(ctx); err != nil {
		return nil, err
	}
	job, ok := s.jobs.Get(ctx, jobID)
	if !ok {
		return nil, ErrJobNotFound
	}

	created := make([]types.JobMatch, 0, len(candidateIDs))
	for _, cid := range candidateIDs {
		candidate, ok := s.candidates.Get(ctx, cid)
		if !ok {
			logger.Ctx(ctx).Warn().Str("job_id", jobID).Str("candidate_id", cid).Msg("候选人不存在，跳过")
			continue
		}
		score, err := s.scorer.Score(ctx, job, candidate)
		if err != nil {
			return created, fmt.Errorf("匹配评分失败: %w", err)
		}
		m, err := s.coll.Add(ctx, types.JobMatch{
			JobID:       jobID,
			CandidateID: cid,
			Status:      types.MatchStatusApplied,
			Score:       score.Score,
			Analysis:    score.Analysis,
			AISummary:   aiSummary(job, candidate, score.Score),
		})
		if err != nil {
			return created, err
		}
		created = append(created, m)
	}
	return created, nil
}

func aiSummary(job types.Job, candidate types.Candidate, score float64) string {
	return fmt.Sprintf("%s is a %d%% match for the %s role based on skills, experience and background.",
		candidate.Name, int(math.Round(score*100)), job.Title)
}
