package search

// stopWords are excluded from indexing. French first since most sources
// publish in French, English for the international feeds.
var stopWords = []string{
	// French
	"le", "la", "les", "un", "une", "des", "de", "du", "au", "aux",
	"ce", "cette", "ces", "mon", "ton", "son", "ma", "ta", "sa",
	"mes", "tes", "ses", "notre", "votre", "leur", "nos", "vos", "leurs",
	"je", "tu", "il", "elle", "nous", "vous", "ils", "elles",
	"me", "te", "se", "moi", "toi", "lui", "eux",
	"est", "sont", "était", "étaient", "sera", "seront",
	"a", "ont", "avait", "avaient", "aura", "auront",
	"et", "ou", "mais", "donc", "or", "ni", "car",
	"dans", "sur", "sous", "avec", "sans", "pour", "par", "vers", "chez",
	"à", "en", "y",
	// English
	"the", "an", "and", "but", "in", "on", "at", "to", "for",
	"of", "with", "by", "from", "as", "is", "was", "are", "were",
	"be", "been", "being", "have", "has", "had", "do", "does", "did",
	"will", "would", "should", "could", "may", "might", "must",
	"i", "you", "he", "she", "it", "we", "they",
	"him", "her", "us", "them",
	"my", "your", "his", "its", "our", "their",
	"this", "that", "these", "those",
}
