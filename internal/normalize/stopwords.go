package normalize

// englishStopwords is a conventional English list. Single letters that name
// languages ("c", "r") are deliberately absent.
var englishStopwords = []string{
	"a", "about", "above", "after", "again", "against", "all", "also", "am", "an", "and",
	"any", "are", "as", "at", "be", "because", "been", "before", "being", "below",
	"between", "both", "but", "by", "can", "could", "did", "do", "does", "doing", "down",
	"during", "each", "etc", "few", "for", "from", "further", "had", "has", "have", "having",
	"he", "her", "here", "hers", "herself", "him", "himself", "his", "how", "i", "if",
	"in", "into", "is", "it", "its", "itself", "just", "may", "me", "more", "most", "must",
	"my", "myself", "no", "nor", "not", "now", "of", "off", "on", "once", "only", "or",
	"other", "our", "ours", "ourselves", "out", "over", "own", "per", "same", "she",
	"should", "so", "some", "such", "than", "that", "the", "their", "theirs", "them",
	"themselves", "then", "there", "these", "they", "this", "those", "through", "to",
	"too", "under", "until", "up", "us", "very", "via", "was", "we", "were", "what",
	"when", "where", "which", "while", "who", "whom", "why", "will", "with", "within",
	"would", "you", "your", "yours", "yourself", "yourselves",
}

// defaultBoilerplate are recruiting phrases that carry no signal about the
// role itself.
var defaultBoilerplate = []string{
	"equal opportunity employer",
	"equal employment opportunity",
	"without regard to race color religion sex sexual orientation gender identity national origin disability veteran status",
	"all qualified applicants will receive consideration for employment",
	"reasonable accommodation",
	"apply now",
	"click here to apply",
	"we look forward to hearing from you",
}
