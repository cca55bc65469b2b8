// Package statement holds the data model comments are stored in: terms,
// subject-predicate-object statements and the batches they are written in.
package statement

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
	"unicode"
)

// Kind tags the variant held by a Term.
type Kind uint8

const (
	// KindAny is the zero Kind. A Term of this kind matches anything in a
	// graph pattern and is never stored.
	KindAny Kind = iota
	KindIRI
	KindBlank
	KindLiteral
)

func (k Kind) String() string {
	switch k {
	case KindAny:
		return "any"
	case KindIRI:
		return "iri"
	case KindBlank:
		return "blank"
	case KindLiteral:
		return "literal"
	}
	return "kind(" + strconv.Itoa(int(k)) + ")"
}

// Term is a subject, predicate or object. It is a plain comparable value so
// it can be used as a map key.
type Term struct {
	Kind     Kind
	Value    string
	Datatype string
	Lang     string
}

// Any is the wildcard term.
var Any = Term{}

var ErrInvalidIRI = errors.New("invalid IRI")

// CheckIRI reports whether v can be written as an IRI reference in
// N-Quads: no whitespace, controls or any of <>"{}|\^`.
func CheckIRI(v string) error {
	if v == "" {
		return fmt.Errorf("%w: empty", ErrInvalidIRI)
	}
	for _, r := range v {
		if unicode.IsSpace(r) || unicode.IsControl(r) || strings.ContainsRune("<>\"{}|\\^`", r) {
			return fmt.Errorf("%w: %q", ErrInvalidIRI, v)
		}
	}
	return nil
}

func IRI(v string) Term {
	return Term{Kind: KindIRI, Value: v}
}

func Blank(id string) Term {
	return Term{Kind: KindBlank, Value: id}
}

// Literal builds a typed literal. An empty datatype means xsd:string.
func Literal(v, datatype string) Term {
	if datatype == XSDString {
		datatype = ""
	}
	return Term{Kind: KindLiteral, Value: v, Datatype: datatype}
}

// String builds a plain string literal.
func String(v string) Term {
	return Term{Kind: KindLiteral, Value: v}
}

func LangLiteral(v, lang string) Term {
	return Term{Kind: KindLiteral, Value: v, Lang: strings.ToLower(lang)}
}

// XMLLiteral builds a literal whose content is an XML/HTML fragment.
func XMLLiteral(v string) Term {
	return Literal(v, RDFXMLLiteral)
}

// DateTime renders t as an xsd:dateTime literal with an explicit offset.
func DateTime(t time.Time) Term {
	return Literal(t.Format(time.RFC3339), XSDDateTime)
}

// Mailto builds the mailto: reference used for contact addresses. The
// address is percent-escaped.
func Mailto(email string) Term {
	return IRI("mailto:" + url.PathEscape(email))
}

func (t Term) IsAny() bool     { return t.Kind == KindAny }
func (t Term) IsIRI() bool     { return t.Kind == KindIRI }
func (t Term) IsLiteral() bool { return t.Kind == KindLiteral }

// Time parses a dateTime literal.
func (t Term) Time() (time.Time, error) {
	if t.Kind != KindLiteral {
		return time.Time{}, fmt.Errorf("%s is not a literal", t)
	}
	return time.Parse(time.RFC3339, t.Value)
}

// String renders the term for logs and error messages. It resembles
// N-Triples but literals use Go quoting.
func (t Term) String() string {
	switch t.Kind {
	case KindAny:
		return "?"
	case KindIRI:
		return "<" + t.Value + ">"
	case KindBlank:
		return "_:" + t.Value
	case KindLiteral:
		s := strconv.Quote(t.Value)
		if t.Lang != "" {
			return s + "@" + t.Lang
		}
		if t.Datatype != "" {
			return s + "^^<" + t.Datatype + ">"
		}
		return s
	}
	return "<!" + t.Kind.String() + ">"
}

// Statement is a single subject-predicate-object fact.
type Statement struct {
	Subject   Term
	Predicate Term
	Object    Term
}

func New(s, p, o Term) Statement {
	return Statement{Subject: s, Predicate: p, Object: o}
}

// Valid reports whether the statement can be stored.
func (s Statement) Valid() bool {
	switch s.Subject.Kind {
	case KindIRI, KindBlank:
	default:
		return false
	}
	if s.Predicate.Kind != KindIRI {
		return false
	}
	return s.Object.Kind != KindAny && s.Subject.storable() && s.Predicate.storable() && s.Object.storable()
}

func (t Term) storable() bool {
	switch t.Kind {
	case KindIRI:
		return CheckIRI(t.Value) == nil
	case KindBlank:
		return t.Value != ""
	case KindLiteral:
		return t.Datatype == "" || CheckIRI(t.Datatype) == nil
	}
	return false
}

func (s Statement) String() string {
	return s.Subject.String() + " " + s.Predicate.String() + " " + s.Object.String() + " ."
}

// Batch is a group of statements written atomically under one context.
type Batch struct {
	Context    Term
	Statements []Statement
	// Created is the moment the batch was assembled. It is more precise
	// than the dcterms:created literal and is used to name the batch.
	Created time.Time
}

// Topic returns the resource the batch replies to.
func (b Batch) Topic() Term {
	for _, s := range b.Statements {
		if s.Predicate == HasReply.Term() {
			return s.Subject
		}
	}
	return Any
}

// Comment returns the reply identifier carried by the batch.
func (b Batch) Comment() Term {
	for _, s := range b.Statements {
		if s.Predicate == HasReply.Term() {
			return s.Object
		}
	}
	return Any
}

// CommentCreated returns the dcterms:created value of the comment, falling
// back to Created.
func (b Batch) CommentCreated() time.Time {
	c := b.Comment()
	for _, s := range b.Statements {
		if s.Subject == c && s.Predicate == Created.Term() {
			if t, err := s.Object.Time(); err == nil {
				return t
			}
		}
	}
	return b.Created
}

// Validate checks that every statement is storable and that the batch
// reads back from its own serialization.
func (b Batch) Validate() error {
	if len(b.Statements) == 0 {
		return fmt.Errorf("empty batch")
	}
	if !b.Context.IsAny() && !b.Context.storable() {
		return fmt.Errorf("context is not storable: %s", b.Context)
	}
	for i, s := range b.Statements {
		if !s.Valid() {
			return fmt.Errorf("statement %d is not storable: %s", i, s)
		}
	}
	data, err := Marshal(b)
	if err != nil {
		return err
	}
	back, err := Unmarshal(data)
	if err != nil {
		return fmt.Errorf("batch does not read back: %w", err)
	}
	if len(back.Statements) != len(b.Statements) {
		return fmt.Errorf("batch reads back %d of %d statements", len(back.Statements), len(b.Statements))
	}
	return nil
}
