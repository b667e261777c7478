// Package textmatch — нечёткое сопоставление текста для поиска по базе знаний,
// дедупликации записей и группировки похожих тикетов.
package textmatch

import (
	"regexp"
	"sort"
	"strings"

	"github.com/loopback-ai/helpdesk-service/internal/model"
)

var wordRe = regexp.MustCompile(`\w+`)

// Tokens разбивает запрос на множество слов в нижнем регистре.
func Tokens(query string) map[string]struct{} {
	out := make(map[string]struct{})
	for _, w := range wordRe.FindAllString(strings.ToLower(query), -1) {
		out[w] = struct{}{}
	}
	return out
}

// Score — число токенов запроса, встречающихся в тексте (подстрочно).
func Score(text string, tokens map[string]struct{}) int {
	text = strings.ToLower(text)
	n := 0
	for w := range tokens {
		if strings.Contains(text, w) {
			n++
		}
	}
	return n
}

// maxContextEntries — сколько лучших записей попадает в контекст промпта.
// Полного текста трёх записей достаточно.
const maxContextEntries = 3

// ContextSummary ищет по базе знаний записи, релевантные запросу, и собирает
// их в текстовый контекст для промпта. Записи с нулевым счётом отбрасываются;
// при равном счёте сохраняется исходный порядок базы.
func ContextSummary(entries []model.KBEntry, query string) string {
	tokens := Tokens(query)
	if len(tokens) == 0 {
		return ""
	}
	type scored struct {
		score   int
		content string
	}
	var rows []scored
	for _, e := range entries {
		searchText := e.Category + " " + e.Issue + " " + e.Question + " " + e.Tags
		s := Score(searchText, tokens)
		if s == 0 {
			continue
		}
		var b strings.Builder
		b.WriteString("Issue: " + e.Issue + "\n")
		b.WriteString("Question: " + e.Question + "\n")
		b.WriteString("Resolution: " + e.Resolution + "\n")
		rows = append(rows, scored{score: s, content: b.String()})
	}
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].score > rows[j].score })
	if len(rows) > maxContextEntries {
		rows = rows[:maxContextEntries]
	}
	parts := make([]string, len(rows))
	for i, r := range rows {
		parts[i] = r.content
	}
	return strings.Join(parts, "\n---\n")
}

// Ratio — мера похожести двух строк в диапазоне [0, 1]: 2*M/T, где M — сумма
// длин совпадающих блоков, T — суммарная длина строк. Регистронезависима.
func Ratio(a, b string) float64 {
	ar := []rune(strings.ToLower(a))
	br := []rune(strings.ToLower(b))
	if len(ar)+len(br) == 0 {
		return 0
	}
	b2j := make(map[rune][]int, len(br))
	for j, r := range br {
		b2j[r] = append(b2j[r], j)
	}
	m := matchedLength(ar, b2j, 0, len(ar), 0, len(br))
	return 2 * float64(m) / float64(len(ar)+len(br))
}

// matchedLength рекурсивно суммирует длины совпадающих блоков: находит самый
// длинный общий блок внутри окна и спускается в участки слева и справа от него.
func matchedLength(a []rune, b2j map[rune][]int, alo, ahi, blo, bhi int) int {
	besti, bestj, bestsize := alo, blo, 0
	j2len := make(map[int]int)
	for i := alo; i < ahi; i++ {
		newj2len := make(map[int]int)
		for _, j := range b2j[a[i]] {
			if j < blo {
				continue
			}
			if j >= bhi {
				break
			}
			k := j2len[j-1] + 1
			newj2len[j] = k
			if k > bestsize {
				besti, bestj, bestsize = i-k+1, j-k+1, k
			}
		}
		j2len = newj2len
	}
	if bestsize == 0 {
		return 0
	}
	return bestsize +
		matchedLength(a, b2j, alo, besti, blo, bestj) +
		matchedLength(a, b2j, besti+bestsize, ahi, bestj+bestsize, bhi)
}

// Фразы-«мостики»: короткий ответ, который лишь передаёт диалог дальше,
// решением не является.
var bridgePhrases = []string{
	"connecting you", "transferring", "admin to assist",
	"support team", "logged a ticket", "escalated",
}

// Транзакционные ответы (заявка принята, доступ выдан) в базу знаний не идут.
var transactionalPhrases = []string{
	"received your request", "initiate the", "monitor the", "let you know",
	"approval", "access granted", "deployed", "shipping", "ordered",
	"will now", "have been added",
}

var solutionIndicators = []string{
	"check", "try", "navigate", "click", "install", "reset",
	"restart", "verify", "password", "steps:", "how to",
}

// IsQualitySolution решает, годится ли текст ответа как запись базы знаний.
func IsQualitySolution(text string) bool {
	if n := len([]rune(text)); text == "" || n < 15 {
		return false
	}
	lower := strings.ToLower(text)
	if containsAny(lower, bridgePhrases) && len([]rune(text)) < 60 {
		return false
	}
	if containsAny(lower, transactionalPhrases) {
		return false
	}
	return containsAny(lower, solutionIndicators) || len([]rune(text)) > 40
}

func containsAny(s string, phrases []string) bool {
	for _, p := range phrases {
		if strings.Contains(s, p) {
			return true
		}
	}
	return false
}
