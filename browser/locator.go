package browser

import (
	"fmt"
	"strings"
)

// Kind selects how a Locator finds its element.
type Kind int

const (
	KindCSS Kind = iota
	KindXPath
	KindButton
	KindInput
	KindText
	KindClassText
	KindClassNonZero
	KindMarker
)

var kindNames = [...]string{
	KindCSS:          "css",
	KindXPath:        "xpath",
	KindButton:       "button",
	KindInput:        "input",
	KindText:         "text",
	KindClassText:    "class-text",
	KindClassNonZero: "class-nonzero",
	KindMarker:       "marker",
}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return fmt.Sprintf("kind(%d)", int(k))
	}
	return kindNames[k]
}

// Locator describes an element the way the game's UI contract exposes it:
// by lifecycle marker, visible button label, adjacent label text or
// displayed text. It compiles to a CSS selector or an XPath expression.
type Locator struct {
	Kind  Kind
	Value string
	Class string // KindClassText, KindClassNonZero
}

// CSS locates by CSS selector.
func CSS(sel string) Locator { return Locator{Kind: KindCSS, Value: sel} }

// XPath locates by XPath expression.
func XPath(expr string) Locator { return Locator{Kind: KindXPath, Value: expr} }

// Button locates a button whose visible label contains label, ignoring case.
func Button(label string) Locator { return Locator{Kind: KindButton, Value: label} }

// Input locates the input next to the label containing label.
func Input(label string) Locator { return Locator{Kind: KindInput, Value: label} }

// Text locates an element whose own text, whitespace-trimmed, equals text.
func Text(text string) Locator { return Locator{Kind: KindText, Value: text} }

// ClassText locates an element whose class contains class and whose text
// contains fragment (e.g. a point counter showing "1").
func ClassText(class, fragment string) Locator {
	return Locator{Kind: KindClassText, Class: class, Value: fragment}
}

// ClassNonZero locates an element whose class contains class and whose text
// contains a digit other than 0, so a fresh "0" counter never matches.
func ClassNonZero(class string) Locator { return Locator{Kind: KindClassNonZero, Class: class} }

// Marker locates the lifecycle container `.container.<name>`.
func Marker(name string) Locator { return Locator{Kind: KindMarker, Value: name} }

// WithValue returns a copy of l with Value replaced.
func (l Locator) WithValue(v string) Locator {
	l.Value = v
	return l
}

func (l Locator) String() string {
	switch l.Kind {
	case KindClassText:
		return fmt.Sprintf("%s %q~%q", l.Kind, l.Class, l.Value)
	case KindClassNonZero:
		return fmt.Sprintf("%s %q", l.Kind, l.Class)
	}
	return fmt.Sprintf("%s %q", l.Kind, l.Value)
}

const (
	upperASCII = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	lowerASCII = "abcdefghijklmnopqrstuvwxyz"
)

// Selector compiles l. xpath reports whether sel is an XPath expression
// rather than a CSS selector.
func (l Locator) Selector() (sel string, xpath bool) {
	switch l.Kind {
	case KindCSS:
		return l.Value, false
	case KindMarker:
		return ".container." + l.Value, false
	case KindXPath:
		return l.Value, true
	case KindButton:
		return fmt.Sprintf(`//button[contains(translate(normalize-space(.), '%s', '%s'), %s)]`,
			upperASCII, lowerASCII, xpathLiteral(strings.ToLower(l.Value))), true
	case KindInput:
		return fmt.Sprintf(`//label[contains(text(), %s)]/..//input`, xpathLiteral(l.Value)), true
	case KindText:
		return fmt.Sprintf(`//*[text()[normalize-space(.)=%s]]`, xpathLiteral(strings.TrimSpace(l.Value))), true
	case KindClassText:
		return fmt.Sprintf(`//*[contains(@class, %s) and contains(text(), %s)]`,
			xpathLiteral(l.Class), xpathLiteral(l.Value)), true
	case KindClassNonZero:
		return fmt.Sprintf(`//*[contains(@class, %s) and translate(normalize-space(text()), '123456789', '') != normalize-space(text())]`,
			xpathLiteral(l.Class)), true
	}
	return l.Value, false
}

// xpathLiteral quotes s for XPath 1.0, which has no escape sequences.
func xpathLiteral(s string) string {
	if !strings.Contains(s, "'") {
		return "'" + s + "'"
	}
	if !strings.Contains(s, `"`) {
		return `"` + s + `"`
	}
	parts := strings.Split(s, "'")
	var b strings.Builder
	b.WriteString("concat(")
	for i, p := range parts {
		if i > 0 {
			b.WriteString(`, "'", `)
		}
		b.WriteString("'" + p + "'")
	}
	b.WriteString(")")
	return b.String()
}
