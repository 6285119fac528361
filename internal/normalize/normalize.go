// Package normalize turns raw extracted records into canonical jobs and derives the
// fingerprint used for de-duplication.
package normalize

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/JakeFAU/job-crawler/internal/crawler"
)

const (
	defaultLocation      = "India"
	defaultRetentionDays = 30
	fingerprintHexLen    = 16
)

// Config controls defaults applied during normalization.
type Config struct {
	DefaultLocation string
	RetentionDays   int
}

// Normalizer implements crawler.Normalizer.
type Normalizer struct {
	cfg    Config
	hasher crawler.Hasher
	clock  crawler.Clock
}

// New builds a Normalizer.
func New(cfg Config, hasher crawler.Hasher, clock crawler.Clock) *Normalizer {
	if strings.TrimSpace(cfg.DefaultLocation) == "" {
		cfg.DefaultLocation = defaultLocation
	}
	if cfg.RetentionDays <= 0 {
		cfg.RetentionDays = defaultRetentionDays
	}
	return &Normalizer{cfg: cfg, hasher: hasher, clock: clock}
}

// Normalize implements crawler.Normalizer. A non-empty runSalt is appended to the
// external id; the fingerprint itself never carries it.
func (n *Normalizer) Normalize(record crawler.RawJobRecord, source, runSalt string) (crawler.NormalizedJob, error) {
	title := Clean(record.Title, MaxTitleLen)
	if title == "" {
		return crawler.NormalizedJob{}, crawler.ErrEmptyTitle
	}
	company := Clean(record.Company, MaxCompanyLen)
	if company == "" {
		company = Clean(source, MaxCompanyLen)
	}
	location := Clean(record.Location, MaxLocationLen)
	if location == "" {
		location = n.cfg.DefaultLocation
	}

	fingerprint, err := Fingerprint(n.hasher, title, company)
	if err != nil {
		return crawler.NormalizedJob{}, err
	}
	externalID := fingerprint
	if runSalt != "" {
		externalID += "_" + runSalt
	}

	url := strings.TrimSpace(record.ApplyURL)
	if url == "" {
		url = strings.TrimSpace(record.SourceURL)
	}
	posted := n.clock.Now().UTC()

	return crawler.NormalizedJob{
		ExternalID:         externalID,
		Fingerprint:        fingerprint,
		Title:              title,
		Company:            company,
		Location:           location,
		Description:        Clean(record.Description, MaxDescriptionLen),
		URL:                url,
		Source:             source,
		Skills:             cleanSkills(record.Skills),
		ExperienceRequired: Clean(record.Experience, MaxExperienceLen),
		SalaryRange:        Clean(record.Salary, MaxSalaryLen),
		PostedAt:           posted,
		ExpiresAt:          posted.Add(time.Duration(n.cfg.RetentionDays) * 24 * time.Hour),
		Remote:             IsRemote(location),
		Type:               InferType(title),
		IsActive:           true,
	}, nil
}

// Fingerprint is slug(company) + "_" + the first 16 hex digits of sha256(title+company).
func Fingerprint(h crawler.Hasher, title, company string) (string, error) {
	digest, err := h.Hash([]byte(title + company))
	if err != nil {
		return "", fmt.Errorf("hash fingerprint: %w", err)
	}
	if len(digest) > fingerprintHexLen {
		digest = digest[:fingerprintHexLen]
	}
	return Slug(company) + "_" + digest, nil
}

var (
	slugSpace = regexp.MustCompile(`\s+`)
	slugDrop  = regexp.MustCompile(`[^\p{L}\p{N}_]+`)
)

// Slug lowercases s, joins words with underscores and drops everything else.
func Slug(s string) string {
	s = slugSpace.ReplaceAllString(strings.ToLower(strings.TrimSpace(s)), "_")
	s = strings.Trim(slugDrop.ReplaceAllString(s, ""), "_")
	if s == "" {
		return "unknown"
	}
	return s
}

// IsRemote reports whether a location describes remote work.
func IsRemote(location string) bool {
	l := strings.ToLower(location)
	return strings.Contains(l, "remote") || strings.Contains(l, "work from home")
}

var (
	internTitle   = regexp.MustCompile(`(?i)\bintern(ship)?s?\b|\btrainee\b`)
	contractTitle = regexp.MustCompile(`(?i)\b(contract(ual)?|freelance(r)?)\b`)
	partTimeTitle = regexp.MustCompile(`(?i)\bpart[\s-]?time\b`)
)

// InferType derives the employment type from a job title.
func InferType(title string) crawler.EmploymentType {
	switch {
	case internTitle.MatchString(title):
		return crawler.EmploymentInternship
	case contractTitle.MatchString(title):
		return crawler.EmploymentContract
	case partTimeTitle.MatchString(title):
		return crawler.EmploymentPartTime
	default:
		return crawler.EmploymentFullTime
	}
}

func cleanSkills(skills []string) []string {
	seen := make(map[string]struct{}, len(skills))
	out := make([]string, 0, len(skills))
	for _, s := range skills {
		s = Clean(s, MaxSkillLen)
		if s == "" {
			continue
		}
		key := strings.ToLower(s)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, s)
	}
	return out
}
