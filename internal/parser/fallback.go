package parser

import "regexp"

// Keyword patterns shared by every strategy. Portal strategies append them after their
// structural patterns; the generic extractor uses nothing else.
var (
	roleWords = `(?:engineer|developer|analyst|manager|executive|specialist|consultant|designer|architect|intern|scientist|administrator|lead)`

	fallbackTitle = []pattern{
		rx(`(?im)^\s*(?:Job Title|Position|Role)\s*:\s*([^\n]+)`, 1),
		rx(`(?i)<h[1-4][^>]*>([^<]*`+roleWords+`[^<]*)</h[1-4]>`, 1),
		rx(`(?im)^#{1,4}\s+([^\n]*`+roleWords+`[^\n]*)`, 1),
		rx(`(?i)\*\*([^*\n]*`+roleWords+`[^*\n]*)\*\*`, 1),
	}
	fallbackCompany = []pattern{
		rx(`(?im)^\s*(?:Company|Organization|Organisation|Employer)\s*:\s*([^\n]+)`, 1),
		regexPattern{
			re:     regexp.MustCompile(`\bat\s+([A-Z][\w&.\-]*(?:[ \t]+(?:&[ \t]+)?[A-Z][\w&.\-]*){0,4})`),
			group:  1,
			minLen: 3,
		},
		regexPattern{re: regexp.MustCompile(`@\s*([A-Z][a-zA-Z&.\- ]{2,30})`), group: 1, minLen: 3},
	}
	fallbackLocation = []pattern{
		rx(`(?im)^\s*(?:Location|Based in|City)\s*:\s*([^\n]+)`, 1),
		rx(`(?i)\b(Mumbai|Delhi|New Delhi|Bangalore|Bengaluru|Chennai|Hyderabad|Pune|Kolkata|Ahmedabad|Gurgaon|Gurugram|Noida|Remote|Work from home|WFH)\b`, 1),
	}
	fallbackExperience = []pattern{
		rx(`(?im)^\s*(?:Experience|Exp)\s*:\s*([^\n]+)`, 1),
		rx(`(?i)(\d+\s*(?:-|to)?\s*\d*\s*(?:years?|yrs?)(?:\s*of)?(?:\s*experience)?)`, 1),
		rx(`(?i)\b(Fresher|Entry[- ]level|Junior|Senior|Lead)\b`, 1),
	}
	fallbackSkills = []pattern{
		rx(`(?im)^\s*(?:Skills|Key Skills|Technologies|Tech Stack|Requirements)\s*:\s*([^\n]+)`, 1),
		rx(`\b(JavaScript|TypeScript|Python|Java|Golang|Go|React|Node\.?js|Angular|Vue|PHP|C\+\+|C#|SQL|MySQL|PostgreSQL|MongoDB|AWS|Azure|GCP|Docker|Kubernetes|Git|HTML|CSS|Express|Spring|Django|Flask)(?:[^\w+#]|$)`, 1),
	}
	fallbackSalary = []pattern{
		rx(`(?im)^\s*(?:Salary|Package|CTC|Stipend)\s*:\s*([^\n]+)`, 1),
		rx(`(?i)₹\s*[\d,]+(?:\s*[-–]\s*₹?\s*[\d,]+)?(?:\s*(?:lakh|lakhs|crore|LPA|per\s*annum|/month))?`, 0),
		rx(`(?i)\b\d+(?:\.\d+)?\s*[-–]\s*\d+(?:\.\d+)?\s*(?:LPA|Lacs? P\.?A\.?)`, 0),
		rx(`\$\s?\d[\d,]*k?(?:\s*[-–]\s*\$?\s?\d[\d,]*k?)?`, 0),
	}
	fallbackApply = []pattern{
		rx(`(?i)\[(?:apply|view|details)[^\]]*\]\((\S+?)\)`, 1),
		rx(`(?im)^\s*(?:Apply(?: at| here| link)?|Link)\s*:\s*(\S+)`, 1),
	}
)
