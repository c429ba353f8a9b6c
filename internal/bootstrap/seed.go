package bootstrap

import (
	"time"

	"recruit-go/internal/constants"
	"recruit-go/internal/logger"
	"recruit-go/internal/store"
	"recruit-go/internal/types"
)

// 种子数据使用固定时间，保证每次初始化内容一致
var seedTime = time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC)

// SeedCollections 有种子数据的集合，InitializeWithMockData 会覆盖这些集合
var SeedCollections = []string{
	constants.CollectionCompanies,
	constants.CollectionUsers,
	constants.CollectionJobs,
	constants.CollectionCandidates,
	constants.CollectionAPIUsage,
}

// SeedData 返回指定集合的种子记录，没有种子数据的集合返回 nil
func SeedData(collection string) []store.Record {
	var items []any
	switch collection {
	case constants.CollectionCompanies:
		items = toAny(seedCompanies())
	case constants.CollectionUsers:
		items = toAny(seedUsers())
	case constants.CollectionJobs:
		items = toAny(seedJobs())
	case constants.CollectionCandidates:
		items = toAny(seedCandidates())
	case constants.CollectionAPIUsage:
		items = toAny(seedAPIUsage())
	default:
		return nil
	}

	records := make([]store.Record, 0, len(items))
	for _, item := range items {
		rec, err := store.ToRecord(item)
		if err != nil {
			logger.Error().Err(err).Str("collection", collection).Msg("种子记录转换失败")
			continue
		}
		records = append(records, rec)
	}
	return records
}

func toAny[T any](in []T) []any {
	out := make([]any, len(in))
	for i := range in {
		out[i] = in[i]
	}
	return out
}

func seedCompanies() []types.Company {
	return []types.Company{
		{
			ID:               "company-1",
			Name:             "TechCorp Solutions",
			Industry:         "Technology",
			Size:             "201-500",
			Website:          "https://techcorp.example.com",
			Location:         "San Francisco, CA",
			SubscriptionPlan: "enterprise",
			Status:           "active",
			CreatedAt:        seedTime,
			UpdatedAt:        seedTime,
		},
		{
			ID:               "company-2",
			Name:             "Green Energy Ltd",
			Industry:         "Energy",
			Size:             "51-200",
			Website:          "https://greenenergy.example.com",
			Location:         "Austin, TX",
			SubscriptionPlan: "professional",
			Status:           "active",
			CreatedAt:        seedTime,
			UpdatedAt:        seedTime,
		},
	}
}

func seedUsers() []types.User {
	return []types.User{
		{ID: "user-1", CompanyID: "company-1", Name: "Alice Admin", Email: "alice@techcorp.example.com", Role: types.RoleAdmin, Status: "active", CreatedAt: seedTime, UpdatedAt: seedTime},
		{ID: "user-2", CompanyID: "company-1", Name: "Bob Recruiter", Email: "bob@techcorp.example.com", Role: types.RoleRecruiter, Status: "active", CreatedAt: seedTime, UpdatedAt: seedTime},
		{ID: "user-3", CompanyID: "company-1", Name: "Carol Manager", Email: "carol@techcorp.example.com", Role: types.RoleHiringManager, Status: "active", CreatedAt: seedTime, UpdatedAt: seedTime},
		{ID: "user-4", CompanyID: "company-2", Name: "Dan Viewer", Email: "dan@greenenergy.example.com", Role: types.RoleViewer, Status: "inactive", CreatedAt: seedTime, UpdatedAt: seedTime},
	}
}

func seedJobs() []types.Job {
	return []types.Job{
		{
			ID:             "job-1",
			CompanyID:      "company-1",
			Title:          "Senior Backend Engineer",
			Department:     "Engineering",
			Location:       "San Francisco, CA",
			EmploymentType: "full_time",
			Description:    "Build and operate the services behind our hiring platform.",
			Requirements:   []string{"5+ years backend experience", "Distributed systems"},
			Skills:         []string{"Go", "PostgreSQL", "Kubernetes"},
			Salary:         &types.SalaryRange{Min: 150000, Max: 190000, Currency: "USD"},
			Status:         types.JobStatusOpen,
			CreatedBy:      "user-2",
			CreatedAt:      seedTime,
			UpdatedAt:      seedTime,
		},
		{
			ID:             "job-2",
			CompanyID:      "company-1",
			Title:          "Frontend Developer",
			Department:     "Engineering",
			Location:       "Remote",
			EmploymentType: "full_time",
			Description:    "Own the recruiter-facing web application.",
			Requirements:   []string{"3+ years React"},
			Skills:         []string{"TypeScript", "React", "CSS"},
			Salary:         &types.SalaryRange{Min: 110000, Max: 140000, Currency: "USD"},
			Status:         types.JobStatusOpen,
			CreatedBy:      "user-2",
			CreatedAt:      seedTime,
			UpdatedAt:      seedTime,
		},
		{
			ID:             "job-3",
			CompanyID:      "company-2",
			Title:          "Data Analyst",
			Department:     "Operations",
			Location:       "Austin, TX",
			EmploymentType: "contract",
			Description:    "Analyze grid performance and energy usage data.",
			Skills:         []string{"SQL", "Python"},
			Status:         types.JobStatusDraft,
			CreatedAt:      seedTime,
			UpdatedAt:      seedTime,
		},
	}
}

func seedCandidates() []types.Candidate {
	return []types.Candidate{
		{ID: "candidate-1", CompanyID: "company-1", Name: "Emma Chen", Email: "emma.chen@example.com", Phone: "+1-555-0101", Location: "Oakland, CA", CurrentTitle: "Backend Engineer", ExperienceYears: 6, Education: "BSc Computer Science", Skills: []string{"Go", "PostgreSQL", "gRPC"}, ResumeFile: "emma_chen.pdf", Source: "linkedin", CreatedAt: seedTime, UpdatedAt: seedTime},
		{ID: "candidate-2", CompanyID: "company-1", Name: "Liam Patel", Email: "liam.patel@example.com", Location: "Remote", CurrentTitle: "Frontend Engineer", ExperienceYears: 4, Education: "BA Design", Skills: []string{"React", "TypeScript"}, ResumeFile: "liam_patel.pdf", Source: "referral", CreatedAt: seedTime, UpdatedAt: seedTime},
		{ID: "candidate-3", CompanyID: "company-1", Name: "Sofia Garcia", Email: "sofia.garcia@example.com", Location: "San Jose, CA", CurrentTitle: "Platform Engineer", ExperienceYears: 8, Education: "MSc Distributed Systems", Skills: []string{"Kubernetes", "Go", "Terraform"}, ResumeFile: "sofia_garcia.pdf", Source: "website", CreatedAt: seedTime, UpdatedAt: seedTime},
		{ID: "candidate-4", CompanyID: "company-2", Name: "Noah Kim", Email: "noah.kim@example.com", Location: "Austin, TX", CurrentTitle: "Analyst", ExperienceYears: 2, Education: "BSc Statistics", Skills: []string{"SQL", "Python", "Tableau"}, ResumeFile: "noah_kim.pdf", Source: "job_board", CreatedAt: seedTime, UpdatedAt: seedTime},
	}
}

func seedAPIUsage() []types.APIUsage {
	return []types.APIUsage{
		{ID: "usage-1", CompanyID: "company-1", Endpoint: "/api/v1/matches/calculate", Count: 42, Date: "2024-01-15", CreatedAt: seedTime, UpdatedAt: seedTime},
		{ID: "usage-2", CompanyID: "company-2", Endpoint: "/api/v1/batch-uploads", Count: 7, Date: "2024-01-15", CreatedAt: seedTime, UpdatedAt: seedTime},
	}
}
