package main

import (
	"fmt"
	"net"
	"net/http"

	"github.com/drewp/commentserve/comments"
	"github.com/drewp/commentserve/database"
	"github.com/drewp/commentserve/database/boltdb"
	"github.com/drewp/commentserve/database/cached"
	"github.com/drewp/commentserve/database/file"
	"github.com/drewp/commentserve/database/memory"
	"github.com/drewp/commentserve/database/objstore"
	"github.com/drewp/commentserve/database/postgres"
	"github.com/drewp/commentserve/database/sqlite"
	"github.com/drewp/commentserve/guard"
	"github.com/drewp/commentserve/identity"
	"github.com/drewp/commentserve/notify"
	"go.uber.org/zap"
)

// openLog opens the statement log named by kind.
func openLog(kind, dsn string) (database.Log, error) {
	var db database.Log
	switch kind {
	case "memory":
		db = memory.New()
	case "file":
		db = file.New()
	case "sqlite":
		db = sqlite.New()
	case "postgres":
		db = postgres.New()
	case "bolt":
		db = boltdb.New()
	case "s3":
		db = objstore.New()
	default:
		return nil, fmt.Errorf("unknown database %q", kind)
	}
	if err := db.Open(dsn); err != nil {
		return nil, fmt.Errorf("open %s database: %w", kind, err)
	}
	return db, nil
}

func newNotifier(c NotifyConfig, log *zap.Logger) (notify.Notifier, error) {
	var all notify.Multi
	if c.URL != "" && len(c.Listeners) > 0 {
		all = append(all, notify.NewHTTP(c.URL, c.Listeners, &http.Client{Timeout: c.Timeout}))
	}
	if c.Redis != "" {
		r, err := notify.NewRedis(c.Redis, c.Channel)
		if err != nil {
			return nil, err
		}
		all = append(all, r)
	}
	switch len(all) {
	case 0:
		log.Info("comment notifications disabled")
		return notify.Nop{}, nil
	case 1:
		return all[0], nil
	}
	return all, nil
}

// newStore builds the comment store over an already opened log.
func newStore(c *Config, db database.Log, log *zap.Logger) (*cached.Cached, *comments.Store, error) {
	opts := []cached.Option{cached.WithLogger(log.Named("cache")), cached.WithTimeout(c.Timeout)}
	if c.Baseline != "" {
		opts = append(opts, cached.WithBaseline(database.NewBaseline(c.Baseline)))
	}
	cache := cached.New(db, opts...)

	notifier, err := newNotifier(c.Notify, log)
	if err != nil {
		return nil, nil, err
	}
	storeOpts := []comments.Option{
		comments.WithLogger(log.Named("comments")),
		comments.WithMinter(identity.NewMinter(c.UserBase, c.CommentBase)),
		comments.WithNotifier(notifier, c.Notify.Timeout),
		comments.WithImages(c.AllowImages),
		comments.WithThrottle(guard.NewThrottle(c.PostBlockExpire)),
	}
	if c.HoneypotKey != "" {
		storeOpts = append(storeOpts, comments.WithReputation(
			guard.NewHoneypot(c.HoneypotKey, net.DefaultResolver, c.HoneypotTimeout, log.Named("honeypot"))))
	}
	return cache, comments.New(cache, storeOpts...), nil
}
