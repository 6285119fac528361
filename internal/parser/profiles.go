package parser

// Listing markup of the supported portals. Selectors are ordered from the current layout
// to older ones; the keyword patterns are appended after them by newPortal.
var portalProfiles = []profile{
	{
		name:   "naukri",
		card:   "div.srp-jobtuple-wrapper, article.jobTuple, div.cust-job-tuple",
		render: true,
		fields: fields{
			title:       []pattern{css("a.title"), xpAttr(`.//a[contains(@class,"title")]`, "title")},
			company:     []pattern{css("a.comp-name"), css("a.subTitle")},
			location:    []pattern{css("span.locWdth"), css("li.location span")},
			experience:  []pattern{css("span.expwdth"), css("li.experience span")},
			skills:      []pattern{css("ul.tags-gt li"), css("ul.tags li")},
			salary:      []pattern{css("span.sal"), css("li.salary span")},
			description: []pattern{css("span.job-desc"), css("div.job-description")},
			apply:       []pattern{cssAttr("a.title", "href")},
		},
		search: func(base, q string) string {
			return base + "/" + slug(q) + "-jobs"
		},
	},
	{
		name: "indeed",
		card: "div.job_seen_beacon, td.resultContent",
		fields: fields{
			title: []pattern{
				cssAttr("h2.jobTitle span[title]", "title"),
				xp(`.//h2[contains(@class,"jobTitle")]//span`),
			},
			company:     []pattern{css(`span[data-testid="company-name"]`), css("span.companyName")},
			location:    []pattern{css(`div[data-testid="text-location"]`), css("div.companyLocation")},
			salary:      []pattern{css("div.salary-snippet-container"), css(`div[data-testid="attribute_snippet_testid"]`)},
			description: []pattern{css("div.job-snippet"), css(`div[data-testid="jobsnippet_footer"]`)},
			apply:       []pattern{cssAttr("h2.jobTitle a", "href"), xpAttr(`.//a[@data-jk]`, "href")},
		},
		search: func(base, q string) string {
			return base + "/jobs?q=" + query(q) + "&l=India"
		},
	},
	{
		name: "linkedin",
		card: "div.base-card, div.base-search-card, li.jobs-search__results-list > div",
		fields: fields{
			title:    []pattern{css("h3.base-search-card__title"), css("span.sr-only")},
			company:  []pattern{css("h4.base-search-card__subtitle a"), css("h4.base-search-card__subtitle")},
			location: []pattern{css("span.job-search-card__location")},
			salary:   []pattern{css("span.job-search-card__salary-info")},
			apply: []pattern{
				cssAttr("a.base-card__full-link", "href"),
				xpAttr(`.//a[contains(@href,"/jobs/view/")]`, "href"),
			},
		},
		search: func(base, q string) string {
			return base + "/jobs/search?keywords=" + query(q) + "&location=India"
		},
	},
	{
		name:    "foundit",
		aliases: []string{"monster", "monsterindia"},
		card:    "div.srpResultCardContainer, div.cardContainer",
		render:  true,
		fields: fields{
			title:      []pattern{css("div.jobTitle"), css("h3.medium")},
			company:    []pattern{css("div.companyName p"), css("div.companyName")},
			location:   []pattern{css("div.details.location"), xp(`.//div[contains(@class,"location")]//span`)},
			experience: []pattern{css("div.details.experience"), xp(`.//div[contains(@class,"experience")]//span`)},
			skills:     []pattern{css("div.skillTags span"), css("div.skills span")},
			salary:     []pattern{css("div.details.package")},
			apply:      []pattern{cssAttr("a.jobTitle", "href"), xpAttr(`.//a[contains(@href,"/job/")]`, "href")},
		},
		search: func(base, q string) string {
			return base + "/srp/results?query=" + query(q) + "&locations=India"
		},
	},
	{
		name: "internshala",
		card: "div.individual_internship",
		fields: fields{
			title:      []pattern{css("h3.job-internship-name"), css("h3.heading_4_5 a")},
			company:    []pattern{css("p.company-name"), css("h4.heading_6 a")},
			location:   []pattern{css("div.locations a"), css("#location_names a")},
			experience: []pattern{xp(`.//div[contains(@class,"row-1-item")][.//i[contains(@class,"ic-16-briefcase")]]//span`)},
			salary:     []pattern{css("span.stipend"), css("span.desktop")},
			apply:      []pattern{cssAttr("a.job-title-href", "href"), cssAttr("a.view_detail_button", "href")},
		},
		search: func(base, q string) string {
			return base + "/jobs/" + slug(q) + "-jobs"
		},
	},
	{
		name:     "remoteok",
		aliases:  []string{"remoteokio"},
		card:     "tr.job",
		location: "Remote",
		fields: fields{
			title:    []pattern{css(`h2[itemprop="title"]`), css("td.company h2")},
			company:  []pattern{css(`h3[itemprop="name"]`), css("td.company h3")},
			location: []pattern{css("div.location")},
			skills:   []pattern{xp(`.//td[contains(@class,"tags")]//h3`), css("td.tags div.tag")},
			salary:   []pattern{css("div.salary")},
			apply:    []pattern{cssAttr("", "data-url"), cssAttr("a.preventLink", "href")},
		},
		search: func(base, q string) string {
			return base + "/remote-" + slug(q) + "-jobs"
		},
	},
	{
		name:     "weworkremotely",
		aliases:  []string{"wwr"},
		card:     "li.new-listing-container, section.jobs li.feature, section.jobs li:not(.view-all)",
		location: "Remote",
		fields: fields{
			title:    []pattern{css("h4.new-listing__header__title"), css("span.title")},
			company:  []pattern{css("p.new-listing__company-name"), css("span.company")},
			location: []pattern{css("p.new-listing__company-headquarters"), css("span.region")},
			skills:   []pattern{css("p.new-listing__categories__category")},
			apply:    []pattern{xpAttr(`.//a[starts-with(@href,"/remote-jobs/")]`, "href")},
		},
		search: func(base, q string) string {
			return base + "/remote-jobs/search?term=" + query(q)
		},
	},
}
