package statement

const (
	NsRDF     = "http://www.w3.org/1999/02/22-rdf-syntax-ns#"
	NsSIOC    = "http://rdfs.org/sioc/ns#"
	NsContent = "http://purl.org/rss/1.0/modules/content/"
	NsDCTerms = "http://purl.org/dc/terms/"
	NsXSD     = "http://www.w3.org/2001/XMLSchema#"
	NsFOAF    = "http://xmlns.com/foaf/0.1/"
	NsHTTP    = "http://www.w3.org/2006/http#"
	NsOV      = "http://open.vocab.org/terms/"
)

const (
	XSDString     = NsXSD + "string"
	XSDDateTime   = NsXSD + "dateTime"
	RDFXMLLiteral = NsRDF + "XMLLiteral"
	FOAFPerson    = NsFOAF + "Person"
)

// Predicate is one of the predicates the comment store understands.
type Predicate uint8

const (
	PredicateUnknown Predicate = iota
	HasReply
	HasCreator
	Created
	ContentEncoded
	Type
	Name
	Mbox
	UsedHTTPHeader
	FieldName
	FieldValue
	predicateCount
)

var predicateIRIs = [predicateCount]string{
	PredicateUnknown: "",
	HasReply:         NsSIOC + "has_reply",
	HasCreator:       NsSIOC + "has_creator",
	Created:          NsDCTerms + "created",
	ContentEncoded:   NsContent + "encoded",
	Type:             NsRDF + "type",
	Name:             NsFOAF + "name",
	Mbox:             NsFOAF + "mbox",
	UsedHTTPHeader:   NsOV + "usedHttpHeader",
	FieldName:        NsHTTP + "fieldName",
	FieldValue:       NsHTTP + "fieldValue",
}

var (
	predicateByIRI = make(map[string]Predicate, predicateCount)
	predicateTerms [predicateCount]Term
)

func init() {
	for p := HasReply; p < predicateCount; p++ {
		predicateByIRI[predicateIRIs[p]] = p
		predicateTerms[p] = IRI(predicateIRIs[p])
	}
}

// LookupPredicate maps an IRI onto the known predicates. Anything else is
// PredicateUnknown; such statements are still stored and queryable.
func LookupPredicate(iri string) Predicate {
	return predicateByIRI[iri]
}

func (p Predicate) IRI() string {
	if p >= predicateCount {
		return ""
	}
	return predicateIRIs[p]
}

func (p Predicate) Term() Term {
	if p == PredicateUnknown || p >= predicateCount {
		return Any
	}
	return predicateTerms[p]
}

func (p Predicate) Known() bool {
	return p != PredicateUnknown && p < predicateCount
}

func (p Predicate) String() string {
	if !p.Known() {
		return "unknown"
	}
	return predicateIRIs[p]
}
