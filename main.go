package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/drewp/commentserve/database"
	"github.com/drewp/commentserve/database/file"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger() (*zap.Logger, error) {
	if os.Getenv("GO_ENV") != "" {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

type app struct {
	configPath string
	database   string
	dsn        string

	config *Config
	log    *zap.Logger
}

// setup loads the configuration and applies command line overrides.
func (a *app) setup(cmd *cobra.Command, args []string) error {
	log, err := newLogger()
	if err != nil {
		return err
	}
	a.log = log
	a.config = NewConfig()
	if err := a.config.Load(a.configPath); err != nil {
		return err
	}
	if a.database != "" {
		a.config.Database = a.database
	}
	if a.dsn != "" {
		a.config.Dsn = a.dsn
	}
	return nil
}

func (a *app) open() (database.Log, error) {
	return openLog(a.config.Database, a.config.Dsn)
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:               "commentserve",
		Short:             "Threaded comments stored as statements",
		SilenceUsage:      true,
		PersistentPreRunE: a.setup,
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.log != nil {
				a.log.Sync()
			}
		},
	}
	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", os.Getenv("COMMENTSERVE_CONFIG"), "YAML configuration file")
	root.PersistentFlags().StringVar(&a.database, "database", "", "log backend: memory, file, sqlite, postgres, bolt or s3")
	root.PersistentFlags().StringVar(&a.dsn, "dsn", "", "backend location")

	root.AddCommand(a.serveCmd(), a.importCmd(), a.countCmd(), a.classifyCmd())
	return root
}

func (a *app) serveCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve comments over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			if addr != "" {
				a.config.Server = addr
			}
			db, err := a.open()
			if err != nil {
				return err
			}
			cache, store, err := newStore(a.config, db, a.log)
			if err != nil {
				db.Close()
				return err
			}
			defer cache.Close()
			if _, err := cache.Get(cmd.Context()); err != nil {
				a.log.Warn("initial load failed", zap.Error(err))
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			err = NewCommentServe(a.config, store, a.log).Run(ctx)
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return err
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address, overrides server and PORT")
	return cmd
}

func (a *app) importCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import DIR",
		Short: "Copy every batch of a file store into the configured database",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			src := file.New()
			if err := src.Open(args[0]); err != nil {
				return err
			}
			dst, err := a.open()
			if err != nil {
				return err
			}
			defer dst.Close()
			n, err := importBatches(cmd.Context(), src, dst, a.log)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d batches\n", n)
			return nil
		},
	}
}

// importBatches copies src into dst, carrying classifications along.
// Batches whose names would collide are nudged apart by a microsecond.
func importBatches(ctx context.Context, src *file.File, dst database.Log, log *zap.Logger) (int, error) {
	batches, err := src.Batches(ctx)
	if err != nil {
		return 0, err
	}
	classes, err := src.Classes(ctx)
	if err != nil {
		return 0, err
	}
	used := make(map[string]bool, len(batches))
	for i, b := range batches {
		if b.Context.IsAny() {
			b.Context = b.Topic()
			if b.Context.IsIRI() {
				b.Context.Value += "/comments"
			}
		}
		for used[database.BatchName(b.Topic().Value, b.Created)] {
			b.Created = b.Created.Add(time.Microsecond)
		}
		ref, err := dst.Append(ctx, b)
		if err != nil {
			return i, fmt.Errorf("import batch %d: %w", i, err)
		}
		used[ref.Name] = true
		if class, ok := classes[ref.Comment]; ok {
			if err := dst.Classify(ctx, ref.Comment, class); err != nil {
				return i, fmt.Errorf("classify %s: %w", ref.Comment, err)
			}
		}
		log.Debug("imported batch", zap.String("batch", ref.Name))
	}
	return len(batches), nil
}

func (a *app) countCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "count PARENT",
		Short: "Print the number of comments on a resource",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := a.open()
			if err != nil {
				return err
			}
			cache, store, err := newStore(a.config, db, a.log)
			if err != nil {
				return err
			}
			defer cache.Close()
			n, err := store.CountComments(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), countString(n))
			return nil
		},
	}
}

func (a *app) classifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "classify COMMENT ham|spam|none",
		Short: "Mark a comment as ham or spam",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			class, err := database.ParseClass(args[1])
			if err != nil && args[1] != "none" {
				return err
			}
			db, err := a.open()
			if err != nil {
				return err
			}
			cache, store, err := newStore(a.config, db, a.log)
			if err != nil {
				return err
			}
			defer cache.Close()
			if err := store.Classify(cmd.Context(), args[0], class); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s is %s\n", args[0], classString(class))
			return nil
		},
	}
}
