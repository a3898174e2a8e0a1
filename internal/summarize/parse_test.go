package summarize

import (
	"strings"
	"testing"
)

func TestParseSections(t *testing.T) {
	response := `## Résumé Factuel
La grève des transports se poursuit pour la troisième journée.
Les syndicats maintiennent leur préavis.

## Analyse des Angles et Biais
- Source A insiste sur les perturbations.
- Source B met en avant les revendications.

## Chronologie
- 2026-03-12 - Début du mouvement
- 2026-03-14 08:30 - Reconduction annoncée`

	sections := parseSections(response)

	if !strings.HasPrefix(sections.SummaryMD, "La grève des transports") {
		t.Errorf("Expected summary content, got %q", sections.SummaryMD)
	}
	if strings.Contains(sections.SummaryMD, "## Résumé Factuel") {
		t.Error("Expected the header to be excluded from the section content")
	}
	if !strings.Contains(sections.BiasAnalysisMD, "Source B met en avant") {
		t.Errorf("Expected bias content, got %q", sections.BiasAnalysisMD)
	}
	if !strings.HasPrefix(sections.TimelineMD, "- 2026-03-12") {
		t.Errorf("Expected timeline content, got %q", sections.TimelineMD)
	}
	if strings.HasSuffix(sections.SummaryMD, "\n") {
		t.Error("Expected section content to be trimmed")
	}
}

func TestParseSections_MissingSection(t *testing.T) {
	response := `## Résumé Factuel
Les faits.

## Chronologie
- 2026-03-12 - Début`

	sections := parseSections(response)

	if sections.SummaryMD != "Les faits." {
		t.Errorf("Expected summary %q, got %q", "Les faits.", sections.SummaryMD)
	}
	if sections.BiasAnalysisMD != "" {
		t.Errorf("Expected empty bias section, got %q", sections.BiasAnalysisMD)
	}
	if sections.TimelineMD != "- 2026-03-12 - Début" {
		t.Errorf("Expected timeline %q, got %q", "- 2026-03-12 - Début", sections.TimelineMD)
	}
}

func TestParseSections_NoHeaders(t *testing.T) {
	response := "  Une réponse sans structure.  \n"

	sections := parseSections(response)

	if sections.SummaryMD != "Une réponse sans structure." {
		t.Errorf("Expected the whole response in the summary, got %q", sections.SummaryMD)
	}
	if sections.BiasAnalysisMD != "" || sections.TimelineMD != "" {
		t.Error("Expected the other sections to stay empty")
	}
}

func TestParseSections_PreambleDropped(t *testing.T) {
	response := `Voici le dossier demandé.

## Résumé Factuel
Les faits.`

	sections := parseSections(response)

	if sections.SummaryMD != "Les faits." {
		t.Errorf("Expected preamble to be dropped, got %q", sections.SummaryMD)
	}
}

func TestParseSections_IndentedHeader(t *testing.T) {
	response := "  ## Résumé Factuel\nLes faits."

	sections := parseSections(response)

	if sections.SummaryMD != "Les faits." {
		t.Errorf("Expected indented headers to match, got %q", sections.SummaryMD)
	}
}
