package statement

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/cayleygraph/quad"
	"github.com/cayleygraph/quad/nquads"
)

// ContentType is the media type batches are serialized as.
const ContentType = "application/n-quads"

// Encode writes the batch as N-Quads, one statement per line, labelled with
// the batch context.
func Encode(w io.Writer, b Batch) error {
	label, err := toValue(b.Context)
	if err != nil && !b.Context.IsAny() {
		return fmt.Errorf("context: %w", err)
	}
	qw := nquads.NewWriter(w)
	for i, s := range b.Statements {
		q, err := toQuad(s)
		if err != nil {
			return fmt.Errorf("statement %d: %w", i, err)
		}
		q.Label = label
		if err := qw.WriteQuad(q); err != nil {
			return err
		}
	}
	return qw.Close()
}

// Marshal returns the N-Quads serialization of b.
func Marshal(b Batch) ([]byte, error) {
	var buf bytes.Buffer
	if err := Encode(&buf, b); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Decode reads statements until EOF. The context of the document is the
// label of its first labelled statement.
func Decode(r io.Reader) (Batch, error) {
	var b Batch
	qr := nquads.NewReader(r, false)
	for line := 1; ; line++ {
		q, err := qr.ReadQuad()
		if err == io.EOF {
			break
		} else if err != nil {
			return b, fmt.Errorf("quad %d: %w", line, err)
		}
		s, err := fromQuad(q)
		if err != nil {
			return b, fmt.Errorf("quad %d: %w", line, err)
		}
		if b.Context.IsAny() && q.Label != nil {
			if b.Context, err = fromValue(q.Label); err != nil {
				return b, fmt.Errorf("quad %d label: %w", line, err)
			}
		}
		b.Statements = append(b.Statements, s)
	}
	return b, nil
}

// Unmarshal parses an N-Quads or N-Triples document.
func Unmarshal(data []byte) (Batch, error) {
	return Decode(bytes.NewReader(data))
}

var errWildcard = errors.New("wildcard term cannot be serialized")

func toQuad(s Statement) (quad.Quad, error) {
	var q quad.Quad
	var err error
	if q.Subject, err = toValue(s.Subject); err != nil {
		return q, err
	}
	if q.Predicate, err = toValue(s.Predicate); err != nil {
		return q, err
	}
	if q.Object, err = toValue(s.Object); err != nil {
		return q, err
	}
	return q, nil
}

func fromQuad(q quad.Quad) (Statement, error) {
	var s Statement
	var err error
	if s.Subject, err = fromValue(q.Subject); err != nil {
		return s, fmt.Errorf("subject: %w", err)
	}
	if s.Predicate, err = fromValue(q.Predicate); err != nil {
		return s, fmt.Errorf("predicate: %w", err)
	}
	if s.Object, err = fromValue(q.Object); err != nil {
		return s, fmt.Errorf("object: %w", err)
	}
	if !s.Valid() {
		return s, fmt.Errorf("not a valid statement: %s", s)
	}
	return s, nil
}

func toValue(t Term) (quad.Value, error) {
	switch t.Kind {
	case KindIRI:
		return quad.IRI(t.Value), nil
	case KindBlank:
		return quad.BNode(t.Value), nil
	case KindLiteral:
		if t.Lang != "" {
			return quad.LangString{Value: quad.String(t.Value), Lang: t.Lang}, nil
		}
		if t.Datatype == "" {
			return quad.String(t.Value), nil
		}
		return quad.TypedString{Value: quad.String(t.Value), Type: quad.IRI(t.Datatype)}, nil
	case KindAny:
		return nil, errWildcard
	}
	return nil, fmt.Errorf("unsupported term kind %s", t.Kind)
}

func fromValue(v quad.Value) (Term, error) {
	switch v := v.(type) {
	case nil:
		return Any, errors.New("missing term")
	case quad.IRI:
		return IRI(string(v)), nil
	case quad.BNode:
		return Blank(string(v)), nil
	case quad.String:
		return String(string(v)), nil
	case quad.TypedString:
		return Literal(string(v.Value), string(v.Type)), nil
	case quad.LangString:
		return LangLiteral(string(v.Value), v.Lang), nil
	case quad.Time:
		return Literal(time.Time(v).Format(time.RFC3339), XSDDateTime), nil
	case quad.Int:
		return Literal(strconv.FormatInt(int64(v), 10), NsXSD+"integer"), nil
	case quad.Float:
		return Literal(strconv.FormatFloat(float64(v), 'g', -1, 64), NsXSD+"double"), nil
	case quad.Bool:
		return Literal(strconv.FormatBool(bool(v)), NsXSD+"boolean"), nil
	}
	return Any, fmt.Errorf("unsupported value %T", v)
}
