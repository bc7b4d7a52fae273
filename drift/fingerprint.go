package drift

import (
	"hash/fnv"
	"math/bits"
	"strings"

	"golang.org/x/net/html"
)

// skipTags hold no layout: their contents change with every deploy or ad load.
var skipTags = map[string]bool{
	"script": true, "style": true, "noscript": true, "svg": true, "path": true,
	"link": true, "meta": true, "iframe": true,
}

// Fingerprint computes a 64-bit SimHash of the whitespace separated tokens of text.
// Tokens are hashed with FNV-64a and accumulated into a signed bit vector.
func Fingerprint(text string) uint64 {
	words := strings.Fields(text)
	if len(words) == 0 {
		return 0
	}

	var vector [64]int
	for _, word := range words {
		h := fnv.New64a()
		h.Write([]byte(word))
		sum := h.Sum64()
		for i := 0; i < 64; i++ {
			if sum&(1<<uint(i)) != 0 {
				vector[i]++
			} else {
				vector[i]--
			}
		}
	}

	var fp uint64
	for i := 0; i < 64; i++ {
		if vector[i] > 0 {
			fp |= 1 << uint(i)
		}
	}
	return fp
}

// Distance returns the Hamming distance between two fingerprints.
func Distance(a, b uint64) int {
	return bits.OnesCount64(a ^ b)
}

// Structure fingerprints the layout of a document: the sequence of open tags,
// each qualified by its first class name, hashed as 3-token shingles. Text and
// other attributes are ignored, so two listings on the same template hash
// alike while a redesigned template (new markup or regenerated class names)
// moves far away.
func Structure(htmlStr string) uint64 {
	tokens := layoutTokens(htmlStr)
	if len(tokens) == 0 {
		return 0
	}
	shingles := shingle(tokens, 3)
	if len(shingles) == 0 {
		return Fingerprint(strings.Join(tokens, " "))
	}
	return Fingerprint(strings.Join(shingles, " "))
}

func layoutTokens(htmlStr string) []string {
	z := html.NewTokenizer(strings.NewReader(htmlStr))
	var tokens []string
	for {
		switch z.Next() {
		case html.ErrorToken:
			return tokens
		case html.StartTagToken, html.SelfClosingTagToken:
			name, hasAttr := z.TagName()
			tag := string(name)
			if skipTags[tag] {
				continue
			}
			tokens = append(tokens, tag+firstClass(z, hasAttr))
		}
	}
}

func firstClass(z *html.Tokenizer, more bool) string {
	for more {
		var key, val []byte
		key, val, more = z.TagAttr()
		if string(key) != "class" {
			continue
		}
		if cls := strings.Fields(string(val)); len(cls) > 0 {
			return "." + cls[0]
		}
		return ""
	}
	return ""
}

func shingle(tokens []string, n int) []string {
	if len(tokens) < n {
		return nil
	}
	out := make([]string, 0, len(tokens)-n+1)
	for i := 0; i <= len(tokens)-n; i++ {
		out = append(out, strings.Join(tokens[i:i+n], "_"))
	}
	return out
}
