package summarize

import (
	"fmt"
	"strings"
	"time"
)

// previewRunes caps how much article body goes into the prompt per article.
const previewRunes = 1000

// Section headers the engines are instructed to emit. The parser keys on
// the same strings, so changing one side breaks the other.
const (
	sectionSummary  = "## Résumé Factuel"
	sectionBias     = "## Analyse des Angles et Biais"
	sectionTimeline = "## Chronologie"
)

const systemPrompt = "Tu es un analyste de presse expert. Ton rôle est d'analyser " +
	"plusieurs articles sur un même sujet et produire une synthèse objective et structurée."

const promptTemplate = `Voici %d articles sur un même sujet :

%s

Produis un dossier structuré en Markdown avec les sections suivantes :

%s
- Synthèse neutre et objective des faits rapportés (200-300 mots)
- Structure: Qui, quoi, quand, où, pourquoi
- Reste factuel sans interpréter ni donner d'opinion

%s
- Identifier les différentes perspectives et angles éditoriaux présentés par chaque source
- Noter les éventuels biais (omission, emphase, cadrage, choix lexical)
- Comparer les couvertures entre sources
- Signaler les points de convergence et divergence

%s
- Timeline des événements datés mentionnés dans les articles
- Format: ` + "`YYYY-MM-DD HH:MM - Événement`" + ` (si heure disponible, sinon juste la date)
- Ordre chronologique strict

Consignes importantes :
- Reste factuel et cite les sources quand pertinent
- Si les articles sont en conflit, note les désaccords sans trancher
- Format Markdown propre et structuré
- Utilise des listes à puces quand approprié`

// buildPrompt renders the documents into the dossier prompt. Empty fields
// render as N/A so the model never sees a dangling label.
func buildPrompt(docs []Document) string {
	contexts := make([]string, 0, len(docs))
	for i, doc := range docs {
		contexts = append(contexts, fmt.Sprintf(`---
Article %d:
Titre: %s
Source: %s
Date: %s
Contenu: %s
---`,
			i+1,
			orNA(doc.Title),
			orNA(doc.Source),
			formatDate(doc.PublishedAt),
			preview(doc.Text),
		))
	}

	return fmt.Sprintf(promptTemplate, len(docs), strings.Join(contexts, "\n\n"),
		sectionSummary, sectionBias, sectionTimeline)
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}

func formatDate(t *time.Time) string {
	if t == nil {
		return "N/A"
	}
	return t.Format(time.RFC3339)
}

func preview(text string) string {
	runes := []rune(text)
	if len(runes) > previewRunes {
		runes = runes[:previewRunes]
	}
	return string(runes)
}
