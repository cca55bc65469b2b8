package comments

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/drewp/commentserve/database"
	"github.com/drewp/commentserve/database/cached"
	"github.com/drewp/commentserve/database/memory"
	"github.com/drewp/commentserve/guard"
	"github.com/drewp/commentserve/statement"
	. "github.com/smartystreets/goconvey/convey"
)

const post = "urn:post:42"

type recorder struct {
	mu    sync.Mutex
	calls [][2]string
	err   error
}

func (r *recorder) Notify(ctx context.Context, parent, user string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, [2]string{parent, user})
	return r.err
}

type reputation struct {
	err   error
	asked []string
}

func (r *reputation) Check(ctx context.Context, addr string) error {
	r.asked = append(r.asked, addr)
	return r.err
}

func public(content string) Submission {
	return Submission{Parent: post, Content: content, SourceAddress: "1.2.3.4"}
}

func newStore(log *memory.Memory, opts ...Option) *Store {
	return New(cached.New(log), opts...)
}

func TestCommentStore(t *testing.T) {
	ctx := context.Background()
	Convey("Given an empty comment store", t, func() {
		log := memory.New()
		notes := &recorder{}
		s := newStore(log, WithNotifier(notes, time.Second))

		count := func() int {
			n, err := s.CountComments(ctx, post)
			So(err, ShouldBeNil)
			return n
		}

		Convey("A thread with no comments is empty", func() {
			So(count(), ShouldEqual, 0)
			rows, err := s.ListComments(ctx, post, Options{})
			So(err, ShouldBeNil)
			So(rows, ShouldBeEmpty)
		})

		Convey("A public comment from Alice is listed with her name", func() {
			sub := public("<p>hi</p>")
			sub.Name, sub.Email = "Alice", "alice@example.com"
			ref, err := s.AddComment(ctx, sub)
			So(err, ShouldBeNil)
			So(ref.Probe, ShouldBeFalse)
			So(ref.ID, ShouldStartWith, "http://bigasterisk.com/comment/")
			So(ref.User, ShouldStartWith, "http://bigasterisk.com/guest/")

			rows, err := s.ListComments(ctx, post, Options{})
			So(err, ShouldBeNil)
			So(rows, ShouldHaveLength, 1)
			So(rows[0].CreatorName, ShouldEqual, "Alice")
			So(rows[0].Content, ShouldContainSubstring, "<p>hi</p>")
			So(rows[0].Creator, ShouldEqual, ref.User)
			So(rows[0].ID, ShouldEqual, ref.ID)
			So(count(), ShouldEqual, 1)

			name, ok, err := s.ResolveDisplayName(ctx, ref.User)
			So(err, ShouldBeNil)
			So(ok, ShouldBeTrue)
			So(name, ShouldEqual, "Alice")

			Convey("Reading twice gives identical results", func() {
				again, err := s.ListComments(ctx, post, Options{})
				So(err, ShouldBeNil)
				So(again, ShouldResemble, rows)
			})

			Convey("The listener hears about it", func() {
				s.Wait()
				So(notes.calls, ShouldResemble, [][2]string{{post, ref.User}})
			})

			Convey("A second comment is listed after the first", func() {
				second, err := s.AddComment(ctx, Submission{Parent: post, Content: "<p>again</p>", Caller: Caller(ref.User)})
				So(err, ShouldBeNil)
				So(second.User, ShouldEqual, ref.User)
				rows, err := s.ListComments(ctx, post, Options{})
				So(err, ShouldBeNil)
				So(rows, ShouldHaveLength, 2)
				So(rows[0].ID, ShouldEqual, ref.ID)
				So(rows[1].ID, ShouldEqual, second.ID)
				So(rows[1].CreatorName, ShouldEqual, "Alice")
				So(count(), ShouldEqual, 2)
			})

			Convey("Comments on other parents are not listed", func() {
				_, err := s.AddComment(ctx, Submission{Parent: "urn:post:43", Content: "elsewhere"})
				So(err, ShouldBeNil)
				So(count(), ShouldEqual, 1)
			})

			Convey("Spam is hidden unless asked for", func() {
				So(s.Classify(ctx, ref.ID, database.ClassSpam), ShouldBeNil)
				So(count(), ShouldEqual, 0)
				rows, err := s.ListComments(ctx, post, Options{})
				So(err, ShouldBeNil)
				So(rows, ShouldBeEmpty)
				rows, err = s.ListComments(ctx, post, Options{IncludeSpam: true})
				So(err, ShouldBeNil)
				So(rows, ShouldHaveLength, 1)
				So(rows[0].Spam, ShouldBeTrue)

				Convey("and comes back when marked ham", func() {
					So(s.Classify(ctx, ref.ID, database.ClassHam), ShouldBeNil)
					So(count(), ShouldEqual, 1)
				})
			})

			Convey("Classifying an unknown comment is a validation error", func() {
				err := s.Classify(ctx, "http://bigasterisk.com/comment/0.000000", database.ClassSpam)
				So(errors.Is(err, ErrValidation), ShouldBeTrue)
				So(errors.Is(err, database.ErrNotFound), ShouldBeTrue)
			})

			Convey("The thread shows up in Parents", func() {
				threads, err := s.Parents(ctx)
				So(err, ShouldBeNil)
				So(threads, ShouldHaveLength, 1)
				So(threads[0].Parent, ShouldEqual, post)
				So(threads[0].Count, ShouldEqual, 1)
				So(threads[0].Last.Equal(rows[0].Created), ShouldBeTrue)
			})
		})

		Convey("Five links are rejected as spam", func() {
			_, err := s.AddComment(ctx, public("<a href=x>1</a><a href=x>2</a><a href=x>3</a><a href=x>4</a><a href=x>5</a>"))
			So(errors.Is(err, ErrSpam), ShouldBeTrue)
			So(errors.Is(err, guard.ErrSpam), ShouldBeTrue)
			So(count(), ShouldEqual, 0)
			refs, err := log.Enumerate(ctx)
			So(err, ShouldBeNil)
			So(refs, ShouldBeEmpty)
		})

		Convey("Blank content is a validation error", func() {
			_, err := s.AddComment(ctx, public("   "))
			So(errors.Is(err, ErrValidation), ShouldBeTrue)
			So(count(), ShouldEqual, 0)
		})

		Convey("A missing parent is a validation error", func() {
			sub := public("hello")
			sub.Parent = " "
			_, err := s.AddComment(ctx, sub)
			So(errors.Is(err, ErrValidation), ShouldBeTrue)
		})

		Convey("A parent that cannot be written as an IRI is a validation error", func() {
			sub := public("hello")
			sub.Parent = "http://example.com/a post"
			_, err := s.AddComment(ctx, sub)
			So(errors.Is(err, ErrValidation), ShouldBeTrue)
			refs, err := log.Enumerate(ctx)
			So(err, ShouldBeNil)
			So(refs, ShouldBeEmpty)
			So(count(), ShouldEqual, 0)
		})

		Convey("A caller that cannot be written as an IRI is a validation error", func() {
			_, err := s.AddComment(ctx, Submission{Parent: post, Content: "hello", Caller: Caller("http://x/y z")})
			So(errors.Is(err, ErrValidation), ShouldBeTrue)
			refs, err := log.Enumerate(ctx)
			So(err, ShouldBeNil)
			So(refs, ShouldBeEmpty)
			So(count(), ShouldEqual, 0)
		})

		Convey("An email with a space is escaped and later comments stay visible", func() {
			So(count(), ShouldEqual, 0)
			sub := public("first")
			sub.Name, sub.Email = "Bob", "a b@example.com"
			ref, err := s.AddComment(ctx, sub)
			So(err, ShouldBeNil)
			_, err = s.AddComment(ctx, public("second"))
			So(err, ShouldBeNil)
			So(count(), ShouldEqual, 2)

			snap, err := s.cache.Get(ctx)
			So(err, ShouldBeNil)
			mbox, ok := snap.Graph.Value(statement.IRI(ref.User), statement.Mbox.Term())
			So(ok, ShouldBeTrue)
			So(mbox.Value, ShouldEqual, "mailto:a%20b@example.com")
		})

		Convey("Content that sanitizes to nothing is a validation error", func() {
			_, err := s.AddComment(ctx, public("<script>alert(1)</script>"))
			So(errors.Is(err, ErrValidation), ShouldBeTrue)
			So(count(), ShouldEqual, 0)
		})

		Convey("A \"test\" post succeeds without storing anything", func() {
			ref, err := s.AddComment(ctx, public("  test "))
			So(err, ShouldBeNil)
			So(ref.Probe, ShouldBeTrue)
			So(ref.ID, ShouldBeEmpty)
			So(count(), ShouldEqual, 0)
			s.Wait()
			So(notes.calls, ShouldBeEmpty)
		})

		Convey("Stored content is cleaned", func() {
			_, err := s.AddComment(ctx, public("<p onclick=\"x()\">cafe\u0301\r\nok</p><script>bad()</script>"))
			So(err, ShouldBeNil)
			rows, err := s.ListComments(ctx, post, Options{})
			So(err, ShouldBeNil)
			So(rows, ShouldHaveLength, 1)
			So(rows[0].Content, ShouldEqual, "<p>café\nok</p>")
		})

		Convey("Markdown is rendered when asked for", func() {
			sub := public("some *emphasis*")
			sub.Format = FormatMarkdown
			_, err := s.AddComment(ctx, sub)
			So(err, ShouldBeNil)
			rows, err := s.ListComments(ctx, post, Options{})
			So(err, ShouldBeNil)
			So(rows[0].Content, ShouldContainSubstring, "<em>emphasis</em>")
		})

		Convey("A logged in caller is not minted a new identity", func() {
			_, err := s.AddComment(ctx, Submission{Parent: post, Content: "hi", Caller: Caller("http://example.com/drew")})
			So(err, ShouldBeNil)
			snap, err := s.cache.Get(ctx)
			So(err, ShouldBeNil)
			So(snap.Graph.Match(statement.Any, statement.Type.Term(), statement.IRI(statement.FOAFPerson)), ShouldBeEmpty)
			rows, err := s.ListComments(ctx, post, Options{})
			So(err, ShouldBeNil)
			So(rows[0].Creator, ShouldEqual, "http://example.com/drew")
			So(rows[0].CreatorName, ShouldEqual, "")
			_, ok, err := s.ResolveDisplayName(ctx, "http://example.com/drew")
			So(err, ShouldBeNil)
			So(ok, ShouldBeFalse)
		})

		Convey("Each write advances the staleness token", func() {
			_, err := s.AddComment(ctx, public("one"))
			So(err, ShouldBeNil)
			t1, err := log.Staleness(ctx)
			So(err, ShouldBeNil)
			_, err = s.AddComment(ctx, public("two"))
			So(err, ShouldBeNil)
			t2, err := log.Staleness(ctx)
			So(err, ShouldBeNil)
			So(t2.After(t1), ShouldBeTrue)
		})

		Convey("A failing notifier does not fail the write", func() {
			notes.err = errors.New("relay down")
			_, err := s.AddComment(ctx, public("hello"))
			So(err, ShouldBeNil)
			s.Wait()
			So(notes.calls, ShouldHaveLength, 1)
			So(count(), ShouldEqual, 1)
		})
	})
}

func TestStorageFaultLeavesNothingVisible(t *testing.T) {
	ctx := context.Background()
	Convey("Given a log that fails mid append", t, func() {
		log := memory.New()
		s := newStore(log)
		_, err := s.AddComment(ctx, public("before"))
		So(err, ShouldBeNil)
		before, err := s.ListComments(ctx, post, Options{})
		So(err, ShouldBeNil)

		log.Fault = func(database.BatchRef) error { return errors.New("disk full") }
		sub := public("during")
		sub.Name = "Mallory"
		_, err = s.AddComment(ctx, sub)
		So(errors.Is(err, ErrStorage), ShouldBeTrue)

		after, err := s.ListComments(ctx, post, Options{})
		So(err, ShouldBeNil)
		So(after, ShouldResemble, before)
		snap, err := s.cache.Get(ctx)
		So(err, ShouldBeNil)
		So(snap.Graph.Match(statement.Any, statement.Name.Term(), statement.String("Mallory")), ShouldBeEmpty)
		So(snap.Graph.Match(statement.Any, statement.Type.Term(), statement.IRI(statement.FOAFPerson)), ShouldHaveLength, 1)
	})
}

func TestPolicyChecks(t *testing.T) {
	ctx := context.Background()
	Convey("Given a store with a reputation check and a throttle", t, func() {
		log := memory.New()
		rep := &reputation{}
		s := newStore(log, WithReputation(rep), WithThrottle(guard.NewThrottle(time.Hour)))

		Convey("A listed address is rejected before anything is stored", func() {
			rep.err = guard.ErrAbuse
			_, err := s.AddComment(ctx, public("hello"))
			So(errors.Is(err, ErrAbuse), ShouldBeTrue)
			So(rep.asked, ShouldResemble, []string{"1.2.3.4"})
			refs, err := log.Enumerate(ctx)
			So(err, ShouldBeNil)
			So(refs, ShouldBeEmpty)
		})

		Convey("A broken reputation service lets the post through", func() {
			rep.err = errors.New("resolver unreachable")
			_, err := s.AddComment(ctx, public("hello"))
			So(err, ShouldBeNil)
		})

		Convey("Posting twice from one address is throttled", func() {
			_, err := s.AddComment(ctx, public("hello"))
			So(err, ShouldBeNil)
			_, err = s.AddComment(ctx, public("hello again"))
			So(errors.Is(err, ErrThrottled), ShouldBeTrue)
			n, err := s.CountComments(ctx, post)
			So(err, ShouldBeNil)
			So(n, ShouldEqual, 1)
		})

		Convey("A test post does not use up the window", func() {
			ref, err := s.AddComment(ctx, public("test"))
			So(err, ShouldBeNil)
			So(ref.Probe, ShouldBeTrue)
			_, err = s.AddComment(ctx, public("hello"))
			So(err, ShouldBeNil)
		})

		Convey("A rejected post does not use up the window", func() {
			_, err := s.AddComment(ctx, public("   "))
			So(errors.Is(err, ErrValidation), ShouldBeTrue)
			_, err = s.AddComment(ctx, public("<script>x()</script>"))
			So(errors.Is(err, ErrValidation), ShouldBeTrue)
			_, err = s.AddComment(ctx, public("hello"))
			So(err, ShouldBeNil)
		})

		Convey("Posters with no address or identity are not throttled together", func() {
			for _, content := range []string{"one", "two"} {
				_, err := s.AddComment(ctx, Submission{Parent: post, Content: content})
				So(err, ShouldBeNil)
			}
			n, err := s.CountComments(ctx, post)
			So(err, ShouldBeNil)
			So(n, ShouldEqual, 2)
		})

		Convey("No lookup happens without a source address", func() {
			_, err := s.AddComment(ctx, Submission{Parent: post, Content: "hello", Caller: Caller("http://example.com/drew")})
			So(err, ShouldBeNil)
			So(rep.asked, ShouldBeEmpty)
		})
	})
}

func TestUnreadableLog(t *testing.T) {
	ctx := context.Background()
	log := memory.New()
	log.AppendRaw("post-broken", []byte("<nope"))
	s := newStore(log)
	_, err := s.ListComments(ctx, post, Options{})
	if !errors.Is(err, ErrStorage) || !errors.Is(err, cached.ErrNoGraph) {
		t.Errorf("ListComments() = %v, want a storage error", err)
	}
	if _, err := s.CountComments(ctx, post); !errors.Is(err, ErrStorage) {
		t.Errorf("CountComments() = %v, want a storage error", err)
	}
}

func TestDuplicateRowsAreListedOnce(t *testing.T) {
	ctx := context.Background()
	log := memory.New()
	at := time.Date(2023, 11, 14, 22, 13, 20, 0, time.UTC)
	user := statement.IRI("http://example.com/alice")
	var stmts []statement.Statement
	for _, id := range []string{"http://example.com/comment/1", "http://example.com/comment/2"} {
		c := statement.IRI(id)
		stmts = append(stmts,
			statement.New(statement.IRI(post), statement.HasReply.Term(), c),
			statement.New(c, statement.Created.Term(), statement.DateTime(at)),
			statement.New(c, statement.HasCreator.Term(), user),
			statement.New(c, statement.ContentEncoded.Term(), statement.XMLLiteral("same")),
		)
	}
	stmts = append(stmts, statement.New(user, statement.Name.Term(), statement.String("Alice")))
	if _, err := log.Append(ctx, statement.Batch{Context: statement.IRI(post + "/comments"), Statements: stmts, Created: at}); err != nil {
		t.Fatal(err)
	}
	s := newStore(log)
	rows, err := s.ListComments(ctx, post, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 {
		t.Fatalf("got %d rows, want 1", len(rows))
	}
	if n, _ := s.CountComments(ctx, post); n != 2 {
		t.Errorf("CountComments() = %d, want 2", n)
	}
	if !strings.HasPrefix(rows[0].ID, "http://example.com/comment/") {
		t.Errorf("row ID = %q", rows[0].ID)
	}
}
