// Package identity mints identifiers for comments and for commenters who
// did not log in.
package identity

import (
	"fmt"
	"strings"
	"time"

	"github.com/aquilax/tripcode"
	"github.com/drewp/commentserve/database"
	"github.com/drewp/commentserve/statement"
	"github.com/google/uuid"
)

const (
	DefaultUserBase    = "http://bigasterisk.com/guest/"
	DefaultCommentBase = "http://bigasterisk.com/comment/"

	// ForwardedHeader is the request header recorded as the origin of a
	// minted identity.
	ForwardedHeader = "X-Forwarded-For"
)

type Minter struct {
	UserBase    string
	CommentBase string
	clock       database.Clock
	newID       func() string
}

func NewMinter(userBase, commentBase string) *Minter {
	if userBase == "" {
		userBase = DefaultUserBase
	}
	if commentBase == "" {
		commentBase = DefaultCommentBase
	}
	return &Minter{
		UserBase:    userBase,
		CommentBase: commentBase,
		newID:       func() string { return uuid.New().String() },
	}
}

// Now returns the next creation time. Two calls never return the same
// instant.
func (m *Minter) Now() time.Time {
	return m.clock.Next()
}

// Comment returns the identifier of a comment created at t.
func (m *Minter) Comment(t time.Time) statement.Term {
	return statement.IRI(fmt.Sprintf("%s%d.%06d", m.CommentBase, t.Unix(), t.Nanosecond()/int(time.Microsecond)))
}

// Mint makes a new public user. Every call yields a new identifier, even
// for identical arguments.
func (m *Minter) Mint(sourceAddress, name, email string) (statement.Term, []statement.Statement) {
	user := statement.IRI(m.UserBase + m.newID())
	header := statement.IRI(user.Value + "/header1")
	stmts := []statement.Statement{
		statement.New(user, statement.Type.Term(), statement.IRI(statement.FOAFPerson)),
		statement.New(user, statement.Created.Term(), statement.DateTime(m.Now())),
		statement.New(user, statement.UsedHTTPHeader.Term(), header),
		statement.New(header, statement.FieldName.Term(), statement.String(ForwardedHeader)),
		statement.New(header, statement.FieldValue.Term(), statement.String(sourceAddress)),
	}
	if name = DisplayName(name); name != "" {
		stmts = append(stmts, statement.New(user, statement.Name.Term(), statement.String(name)))
	}
	if email = strings.TrimSpace(email); email != "" {
		stmts = append(stmts, statement.New(user, statement.Mbox.Term(), statement.Mailto(email)))
	}
	return user, stmts
}

// DisplayName turns "name#secret" into "name !tripcode" so a returning
// poster can be recognised without an account.
func DisplayName(name string) string {
	name = strings.TrimSpace(name)
	n, secret, ok := strings.Cut(name, "#")
	if !ok || secret == "" {
		return name
	}
	return strings.TrimSpace(n) + " !" + tripcode.Tripcode(secret)
}
