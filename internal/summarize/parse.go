package summarize

import "strings"

// parseSections splits an engine response on the three dossier headers.
// Lines before the first header are dropped, the header lines themselves
// are not part of the content, and a response with none of the headers
// lands whole in SummaryMD rather than being lost.
func parseSections(text string) Sections {
	var sections Sections
	var target *string
	var buf []string

	flush := func() {
		if target != nil && len(buf) > 0 {
			*target = strings.TrimSpace(strings.Join(buf, "\n"))
		}
		buf = buf[:0]
	}

	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(trimmed, sectionSummary):
			flush()
			target = &sections.SummaryMD
		case strings.HasPrefix(trimmed, sectionBias):
			flush()
			target = &sections.BiasAnalysisMD
		case strings.HasPrefix(trimmed, sectionTimeline):
			flush()
			target = &sections.TimelineMD
		case target != nil:
			buf = append(buf, line)
		}
	}
	flush()

	if sections.SummaryMD == "" && sections.BiasAnalysisMD == "" && sections.TimelineMD == "" {
		sections.SummaryMD = strings.TrimSpace(text)
	}
	return sections
}
