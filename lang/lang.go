// Package lang renders counts and lists of things as English text.
package lang

import (
	"bytes"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/gertd/go-pluralize"
)

const (
	DefaultPattern   = "%s"
	DefaultSeparator = ","
	DefaultOperator  = "and"
)

var (
	client = pluralize.NewClient()

	silentH = []string{"hour", "honest", "honor", "honour", "heir"}
	softU   = []string{"uni", "use", "usu", "uti", "one", "once", "eu"}
	numbers = []string{"no", "a", "two", "three"}
)

func Plural(s string) string {
	return client.Plural(s)
}

func Singular(s string) string {
	return client.Singular(s)
}

func Capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if size == 0 {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}

// Article returns the indefinite article for s.
func Article(s string) string {
	lower := strings.ToLower(s)
	for _, prefix := range silentH {
		if strings.HasPrefix(lower, prefix) {
			return "an"
		}
	}
	for _, prefix := range softU {
		if strings.HasPrefix(lower, prefix) {
			return "a"
		}
	}
	if strings.HasPrefix(lower, "8") || strings.HasPrefix(lower, "11") || strings.HasPrefix(lower, "18") {
		return "an"
	}
	if r, _ := utf8.DecodeRuneInString(lower); strings.ContainsRune("aeiou", r) {
		return "an"
	}
	return "a"
}

func Indef(s string) string {
	return Article(s) + " " + s
}

// Card returns "no chairs", "a chair", "two chairs", and "12 chairs".
func Card(n int, s string) string {
	switch {
	case n == 1:
		return Indef(s)
	case n >= 0 && n < len(numbers):
		return fmt.Sprintf("%s %s", numbers[n], Plural(s))
	}
	return fmt.Sprintf("%d %s", n, Plural(s))
}

// Possessive returns "Bob's" and "Jess'".
func Possessive(s string) string {
	if s == "" {
		return s
	}
	if strings.HasSuffix(strings.ToLower(s), "s") {
		return s + "'"
	}
	return s + "'s"
}

type Tense int

const (
	NoTense Tense = iota
	Present
	Past
)

type Enumerator struct {
	Pattern   string
	Separator string
	Operator  string
	// Tense appends the matching form of "to be".
	Tense Tense
}

func (e Enumerator) Do(elements ...string) string {
	pattern, separator, operator := DefaultPattern, DefaultSeparator, DefaultOperator
	if e.Pattern != "" {
		pattern = e.Pattern
	}
	if e.Separator != "" {
		separator = e.Separator
	}
	if e.Operator != "" {
		operator = e.Operator
	}
	res := &bytes.Buffer{}
	for idx, element := range elements {
		fmt.Fprintf(res, pattern, element)
		switch {
		case len(elements) == 2 && idx == 0:
			fmt.Fprintf(res, " %s ", operator)
		case idx+2 < len(elements):
			fmt.Fprintf(res, "%s ", separator)
		case idx+2 == len(elements):
			fmt.Fprintf(res, "%s %s ", separator, operator)
		}
	}
	switch e.Tense {
	case Present:
		if len(elements) == 1 {
			res.WriteString(" is")
		} else {
			res.WriteString(" are")
		}
	case Past:
		if len(elements) == 1 {
			res.WriteString(" was")
		} else {
			res.WriteString(" were")
		}
	}
	return res.String()
}
