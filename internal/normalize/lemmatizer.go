package normalize

import (
	"fmt"
	"strings"

	"github.com/aaaton/golem/v4"
	"github.com/aaaton/golem/v4/dicts/en"
	"github.com/jdkato/prose/v2"
)

// verbTagPrefix marks Penn Treebank verb tags (VB, VBD, VBG, VBN, VBP, VBZ).
const verbTagPrefix = "VB"

// VerbLemmatizer tags tokens with an averaged-perceptron POS model and replaces verbs by their
// dictionary lemma. The dictionary is loaded once by NewVerbLemmatizer and only read afterwards,
// so one instance can be shared across goroutines.
type VerbLemmatizer struct {
	dict *golem.Lemmatizer
}

// NewVerbLemmatizer loads the English lemma dictionary.
func NewVerbLemmatizer() (*VerbLemmatizer, error) {
	dict, err := golem.New(en.New())
	if err != nil {
		return nil, fmt.Errorf("load english lemma dictionary: %w", err)
	}

	return &VerbLemmatizer{dict: dict}, nil
}

// LemmatizeVerbs returns text with verb tokens in base form and all other tokens unchanged,
// joined by single spaces. If tagging fails the input is returned as is.
func (l *VerbLemmatizer) LemmatizeVerbs(text string) string {
	doc, err := prose.NewDocument(text,
		prose.WithSegmentation(false),
		prose.WithExtraction(false),
	)
	if err != nil {
		return text
	}

	tokens := doc.Tokens()
	if len(tokens) == 0 {
		return text
	}

	out := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		out = append(out, l.lemmaFor(tok))
	}

	return strings.Join(out, " ")
}

func (l *VerbLemmatizer) lemmaFor(tok prose.Token) string {
	if !strings.HasPrefix(tok.Tag, verbTagPrefix) {
		return tok.Text
	}

	if !l.dict.InDict(tok.Text) {
		return tok.Text
	}

	if lemma := l.dict.Lemma(tok.Text); lemma != "" {
		return lemma
	}

	return tok.Text
}
