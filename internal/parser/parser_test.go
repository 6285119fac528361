package parser

import (
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/job-crawler/internal/crawler"
)

const listingMarkdown = `# Jobs in India

## Senior Backend Engineer
Company: Acme Technologies
Location: Bangalore
Experience: 3-5 years
Skills: Go, PostgreSQL, Kubernetes, go
Salary: ₹12-18 LPA

Posted today

Job Title: Data Analyst
Organization: Beta Corp
Based in: Pune
We are looking for an analyst with SQL and Python skills to join our growing analytics team in Bangalore.

**Frontend Developer Intern**
Work with React and TypeScript at Gamma Labs on customer dashboards. Remote friendly team, stipend ₹15,000/month for six months.

About us: we are a staffing firm placing people across many industries. Contact our office for more information about openings and terms.
`

func collect(t *testing.T, s crawler.Strategy, page crawler.Page) []crawler.RawJobRecord {
	t.Helper()
	return slices.Collect(s.Extract(page, "Test Source"))
}

func TestGenericExtractsSections(t *testing.T) {
	t.Parallel()

	page := crawler.Page{URL: "https://jobs.example.com/search", Content: listingMarkdown, Format: crawler.FormatMarkdown}
	records := collect(t, NewGeneric(), page)
	require.Len(t, records, 3)

	first := records[0]
	assert.Equal(t, "Senior Backend Engineer", first.Title)
	assert.Equal(t, "Acme Technologies", first.Company)
	assert.Equal(t, "Bangalore", first.Location)
	assert.Equal(t, "3-5 years", first.Experience)
	assert.Equal(t, []string{"Go", "PostgreSQL", "Kubernetes"}, first.Skills)
	assert.Equal(t, "₹12-18 LPA", first.Salary)
	assert.Equal(t, "https://jobs.example.com/search", first.ApplyURL)
	assert.Equal(t, "https://jobs.example.com/search", first.SourceURL)
	assert.Contains(t, first.Description, "Senior Backend Engineer")

	second := records[1]
	assert.Equal(t, "Data Analyst", second.Title)
	assert.Equal(t, "Beta Corp", second.Company)
	assert.Equal(t, []string{"SQL", "Python"}, second.Skills)

	third := records[2]
	assert.Equal(t, "Frontend Developer Intern", third.Title)
	assert.Equal(t, "Gamma Labs", third.Company)
	assert.Equal(t, "Remote", third.Location)
	assert.Equal(t, "₹15,000/month", third.Salary)
}

func TestFirstPatternWinsWithoutMerging(t *testing.T) {
	t.Parallel()

	section := "Job Title: Platform Engineer\n# Senior Data Analyst\nLocation: Pune\nThe team also has members in Bangalore and Chennai working on the same product."
	records := collect(t, NewGeneric(), crawler.Page{Content: section, Format: crawler.FormatMarkdown})
	require.Len(t, records, 1)
	assert.Equal(t, "Platform Engineer", records[0].Title)
	assert.Equal(t, "Pune", records[0].Location)
}

func TestSectionsWithoutTitleAreDiscarded(t *testing.T) {
	t.Parallel()

	content := "Company: Nobody Hiring Ltd\nLocation: Mumbai\nThis paragraph is long enough to be considered but it never names a role or position anywhere at all."
	records := collect(t, NewGeneric(), crawler.Page{Content: content, Format: crawler.FormatMarkdown})
	require.Empty(t, records)
}

func TestGenericHandlesHTML(t *testing.T) {
	t.Parallel()

	content := `<html><body>
<article><h2>Machine Learning Engineer</h2><p>Company: Orbit AI</p><p>Location: Hyderabad</p>
<p>Design and ship ranking models with Python and Kubernetes for millions of users.</p></article>
<article><p>Newsletter signup</p></article>
</body></html>`
	records := collect(t, NewGeneric(), crawler.Page{URL: "https://orbit.example/careers", Content: content, Format: crawler.FormatHTML})
	require.Len(t, records, 1)
	assert.Equal(t, "Machine Learning Engineer", records[0].Title)
	assert.Equal(t, "Orbit AI", records[0].Company)
	assert.Equal(t, "Hyderabad", records[0].Location)
}

func TestExtractStopsWhenConsumerStops(t *testing.T) {
	t.Parallel()

	seq := NewGeneric().Extract(crawler.Page{Content: listingMarkdown, Format: crawler.FormatMarkdown}, "x")
	n := 0
	for range seq {
		n++
		break
	}
	require.Equal(t, 1, n)
}

const naukriHTML = `<html><body>
<div class="srp-jobtuple-wrapper">
  <a class="title" href="/job-listings-backend-developer-acme-123">Backend Developer</a>
  <a class="comp-name">Acme Corp</a>
  <span class="expwdth">2-4 Yrs</span>
  <span class="locWdth">Bengaluru</span>
  <span class="sal">10-15 Lacs PA</span>
  <span class="job-desc">Build APIs in Go.</span>
  <ul class="tags-gt"><li>Go</li><li>gRPC</li><li>go</li></ul>
</div>
<div class="srp-jobtuple-wrapper">
  <a class="comp-name">No Title Inc</a>
  <span class="locWdth">Pune</span>
</div>
<div class="srp-jobtuple-wrapper">
  <a class="title" href="https://www.naukri.com/job-listings-qa-456#apply">QA Analyst</a>
  <a class="comp-name">Beta Ltd</a>
</div>
</body></html>`

func TestPortalExtractsCards(t *testing.T) {
	t.Parallel()

	strategy := Default().Lookup("Naukri")
	require.Equal(t, "naukri", strategy.Name())
	require.True(t, strategy.Render())

	page := crawler.Page{URL: "https://www.naukri.com/golang-jobs", Content: naukriHTML, Format: crawler.FormatHTML}
	records := collect(t, strategy, page)
	require.Len(t, records, 2)

	first := records[0]
	assert.Equal(t, "Backend Developer", first.Title)
	assert.Equal(t, "Acme Corp", first.Company)
	assert.Equal(t, "Bengaluru", first.Location)
	assert.Equal(t, "2-4 Yrs", first.Experience)
	assert.Equal(t, "10-15 Lacs PA", first.Salary)
	assert.Equal(t, "Build APIs in Go.", first.Description)
	assert.Equal(t, []string{"Go", "gRPC"}, first.Skills)
	assert.Equal(t, "https://www.naukri.com/job-listings-backend-developer-acme-123", first.ApplyURL)

	second := records[1]
	assert.Equal(t, "QA Analyst", second.Title)
	assert.Equal(t, "https://www.naukri.com/job-listings-qa-456", second.ApplyURL)
	assert.Empty(t, second.Location)
}

func TestPortalXPathPattern(t *testing.T) {
	t.Parallel()

	content := `<html><body><div class="job_seen_beacon">
<h2 class="jobTitle"><a href="/rc/clk?jk=1"><span>Site Reliability Engineer</span></a></h2>
<span data-testid="company-name">Delta</span>
<div data-testid="text-location">Hyderabad, Telangana</div>
</div></body></html>`
	records := collect(t, Default().Lookup("Indeed India"), crawler.Page{URL: "https://in.indeed.com/jobs?q=sre", Content: content, Format: crawler.FormatHTML})
	require.Len(t, records, 1)
	assert.Equal(t, "Site Reliability Engineer", records[0].Title)
	assert.Equal(t, "Delta", records[0].Company)
	assert.Equal(t, "Hyderabad, Telangana", records[0].Location)
	assert.Equal(t, "https://in.indeed.com/rc/clk?jk=1", records[0].ApplyURL)
}

func TestPortalDefaultLocationAndCardAttribute(t *testing.T) {
	t.Parallel()

	content := `<html><body><table>
<tr class="job" data-url="/remote-jobs/123"><td class="company"><h2 itemprop="title">Go Engineer</h2><h3 itemprop="name">Zeta</h3></td>
<td class="tags"><a><h3>golang</h3></a><a><h3>postgres</h3></a></td></tr>
</table></body></html>`
	records := collect(t, Default().Lookup("RemoteOK"), crawler.Page{URL: "https://remoteok.com/remote-golang-jobs", Content: content, Format: crawler.FormatHTML})
	require.Len(t, records, 1)
	assert.Equal(t, "Go Engineer", records[0].Title)
	assert.Equal(t, "Zeta", records[0].Company)
	assert.Equal(t, "Remote", records[0].Location)
	assert.Equal(t, []string{"golang", "postgres"}, records[0].Skills)
	assert.Equal(t, "https://remoteok.com/remote-jobs/123", records[0].ApplyURL)
}

func TestPortalFallsBackToGenericForMarkdown(t *testing.T) {
	t.Parallel()

	page := crawler.Page{URL: "https://www.naukri.com/golang-jobs", Content: listingMarkdown, Format: crawler.FormatMarkdown}
	records := collect(t, Default().Lookup("naukri"), page)
	require.Len(t, records, 3)
}

func TestSearchURLs(t *testing.T) {
	t.Parallel()

	registry := Default()
	urls := registry.Lookup("naukri").SearchURLs("https://www.naukri.com/", []string{"Golang Developer", "  ", "golang developer", "Data Analyst"})
	require.Equal(t, []string{
		"https://www.naukri.com/golang-developer-jobs",
		"https://www.naukri.com/data-analyst-jobs",
	}, urls)

	urls = registry.Lookup("indeed").SearchURLs("https://in.indeed.com", []string{"golang developer"})
	require.Equal(t, []string{"https://in.indeed.com/jobs?q=golang+developer&l=India"}, urls)

	require.Equal(t, []string{"https://www.naukri.com"}, registry.Lookup("naukri").SearchURLs("https://www.naukri.com/", nil))
	require.Equal(t, []string{"https://careers.example.com/jobs"}, registry.Lookup("Example Careers").SearchURLs("https://careers.example.com/jobs", []string{"go"}))
	require.Nil(t, registry.Lookup("anything").SearchURLs("", nil))
}

func TestRegistryLookup(t *testing.T) {
	t.Parallel()

	registry := Default()
	cases := map[string]string{
		"Naukri":           "naukri",
		"Naukri.com":       "naukri",
		"LinkedIn Jobs":    "linkedin",
		"We Work Remotely": "weworkremotely",
		"Monster India":    "foundit",
		"Internshala":      "internshala",
		"Unknown Board":    genericName,
		"":                 genericName,
	}
	for source, want := range cases {
		assert.Equal(t, want, registry.Lookup(source).Name(), source)
	}
	require.Equal(t, []string{"foundit", "indeed", "internshala", "linkedin", "naukri", "remoteok", "weworkremotely"}, registry.Names())
}

func TestRegistryRegisterOverrides(t *testing.T) {
	t.Parallel()

	registry := NewRegistry()
	custom := newPortal(profile{name: "acme"}, NewGeneric())
	registry.Register(custom, "Acme Careers")
	require.Same(t, custom, registry.Lookup("acme-careers"))
	require.Equal(t, genericName, registry.Lookup("naukri").Name())
}

func TestKey(t *testing.T) {
	t.Parallel()

	require.Equal(t, "weworkremotely", Key("We Work Remotely!"))
	require.Equal(t, "naukricom", Key("Naukri.com"))
}

func TestSkillList(t *testing.T) {
	t.Parallel()

	got := skillList([]string{"Go, PostgreSQL; Docker", "go | Kubernetes", "  "})
	require.Equal(t, []string{"Go", "PostgreSQL", "Docker", "Kubernetes"}, got)
}

func TestResolveLink(t *testing.T) {
	t.Parallel()

	base := "https://jobs.example.com/search/page"
	assert.Equal(t, "https://jobs.example.com/job/1", resolveLink(base, "/job/1"))
	assert.Equal(t, "https://jobs.example.com/search/job-2", resolveLink(base, "job-2"))
	assert.Equal(t, base, resolveLink(base, ""))
	assert.Equal(t, base, resolveLink(base, "#top"))
	assert.Equal(t, base, resolveLink(base, "javascript:void(0)"))
	assert.Equal(t, "https://other.example/x", resolveLink(base, "https://other.example/x#frag"))
}

func TestBlockText(t *testing.T) {
	t.Parallel()

	got := htmlText(`<html><head><title>x</title></head><body><h2>Title</h2><p>Line   one</p><script>ignored()</script><ul><li>a</li><li>b</li></ul></body></html>`)
	require.Equal(t, "# Title\nLine one\na\n\nb", got)
}
