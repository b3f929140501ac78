// Package parser turns a query string into a plan of index terms. Words are
// analyzed with the indexing tokenizer so they match indexed terms; a word
// written as field:text targets that field, anything else the default field.
package parser

import (
	"strings"

	"github.com/Adithya-Monish-Kumar-K/kvindex/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/kvindex/internal/schema"
)

type QueryType int

const (
	QueryAND QueryType = iota
	QueryOR
)

func (t QueryType) String() string {
	if t == QueryOR {
		return "OR"
	}
	return "AND"
}

type QueryPlan struct {
	Terms        []schema.Term
	Type         QueryType
	ExcludeTerms []schema.Term
	RawQuery     string
}

// Parse builds a plan. AND, OR and NOT are keywords; the last of AND/OR
// wins for the whole query and NOT excludes the following word.
func Parse(query, defaultField string) *QueryPlan {
	plan := &QueryPlan{
		Terms:        make([]schema.Term, 0),
		ExcludeTerms: make([]schema.Term, 0),
		Type:         QueryAND,
		RawQuery:     query,
	}
	if strings.TrimSpace(query) == "" {
		return plan
	}
	excludeNext := false
	for _, word := range strings.Fields(query) {
		switch strings.ToUpper(word) {
		case "AND":
			plan.Type = QueryAND
			continue
		case "OR":
			plan.Type = QueryOR
			continue
		case "NOT":
			excludeNext = true
			continue
		}
		field, text := defaultField, word
		if i := strings.IndexByte(word, ':'); i > 0 && i < len(word)-1 {
			field, text = word[:i], word[i+1:]
		}
		tokens := tokenizer.Tokenize(text)
		if len(tokens) == 0 {
			continue
		}
		term := schema.Term{Field: field, Text: tokens[0].Term}
		if excludeNext {
			plan.ExcludeTerms = append(plan.ExcludeTerms, term)
			excludeNext = false
		} else {
			plan.Terms = append(plan.Terms, term)
		}
	}
	return plan
}
