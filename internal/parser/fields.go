package parser

import (
	"strings"

	"github.com/JakeFAU/job-crawler/internal/crawler"
)

// fields holds the ordered patterns for each record field.
type fields struct {
	title       []pattern
	company     []pattern
	location    []pattern
	experience  []pattern
	skills      []pattern
	salary      []pattern
	description []pattern
	apply       []pattern
}

var fallbackFields = fields{
	title:      fallbackTitle,
	company:    fallbackCompany,
	location:   fallbackLocation,
	experience: fallbackExperience,
	skills:     fallbackSkills,
	salary:     fallbackSalary,
	apply:      fallbackApply,
}

// then returns f with next's patterns appended at lower priority.
func (f fields) then(next fields) fields {
	return fields{
		title:       concat(f.title, next.title),
		company:     concat(f.company, next.company),
		location:    concat(f.location, next.location),
		experience:  concat(f.experience, next.experience),
		skills:      concat(f.skills, next.skills),
		salary:      concat(f.salary, next.salary),
		description: concat(f.description, next.description),
		apply:       concat(f.apply, next.apply),
	}
}

// extract builds one record from sc. ok is false when no title was found.
func (f fields) extract(sc scope, pageURL string) (crawler.RawJobRecord, bool) {
	title := strings.Trim(firstValue(f.title, sc), "#*: ")
	if title == "" {
		return crawler.RawJobRecord{}, false
	}
	return crawler.RawJobRecord{
		Title:       title,
		Company:     strings.TrimRight(firstValue(f.company, sc), ".,;: "),
		Location:    firstValue(f.location, sc),
		Experience:  firstValue(f.experience, sc),
		Skills:      skillList(firstMatch(f.skills, sc)),
		Salary:      firstValue(f.salary, sc),
		Description: firstValue(f.description, sc),
		ApplyURL:    resolveLink(pageURL, firstValue(f.apply, sc)),
		SourceURL:   pageURL,
	}, true
}

func concat(a, b []pattern) []pattern {
	out := make([]pattern, 0, len(a)+len(b))
	out = append(out, a...)
	return append(out, b...)
}
