package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/qolzam/docstore/internal/pkg/log"
	platformconfig "github.com/qolzam/docstore/internal/platform/config"
	"github.com/qolzam/docstore/internal/store"
	"github.com/qolzam/docstore/internal/store/filter"
	"github.com/spf13/cobra"
	"go.mongodb.org/mongo-driver/bson"
)

// document accepts any stored document
type document struct {
	ID     interface{}            `bson:"_id"`
	Fields map[string]interface{} `bson:",inline"`
}

var summary = color.New(color.FgGreen)

type environment struct {
	debug *bool
}

// open loads the configuration from the environment and opens a store on
// collection
func (e *environment) open(ctx context.Context, collection string) (*store.DB, *store.Store[document], error) {
	cfg, err := platformconfig.LoadFromEnv()
	if err != nil {
		return nil, nil, err
	}
	log.SetDebug(cfg.Log.Debug || *e.debug)

	db, err := store.Open(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	s, err := store.GetStore[document](db, collection)
	if err != nil {
		db.Close()
		return nil, nil, err
	}
	return db, s, nil
}

func cursor(s *store.Store[document], args []string) *store.Cursor[document] {
	if len(args) == 0 {
		return s.All()
	}
	return s.Find(args[0])
}

func printJSON(w io.Writer, v interface{}) error {
	data, err := bson.MarshalExtJSON(v, false, false)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

func newParseCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "parse <filter> [args...]",
		Short: "Print the query document a filter compiles to",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			templateArgs := make([]interface{}, len(args)-1)
			for i, a := range args[1:] {
				templateArgs[i] = a
			}
			expr, err := filter.Parse(filter.Format(args[0], templateArgs...))
			if err != nil {
				return err
			}
			doc, err := store.Compile(expr, nil)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), doc)
		},
	}
}

func newFindCommand(env *environment) *cobra.Command {
	var (
		limit, skip int64
		sortKeys    []string
		fields      []string
	)

	cmd := &cobra.Command{
		Use:   "find <collection> [filter]",
		Short: "Print matching documents as extended JSON",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			db, s, err := env.open(ctx, args[0])
			if err != nil {
				return err
			}
			defer db.Close()

			c := cursor(s, args[1:]).Limit(limit).Skip(skip)
			if len(fields) > 0 {
				c.Select(fields...)
			}
			for _, key := range sortKeys {
				if strings.HasPrefix(key, "-") {
					c.Descending(key[1:])
				} else {
					c.Ascending(strings.TrimPrefix(key, "+"))
				}
			}

			n := 0
			for doc, err := range c.Stream(ctx) {
				if err != nil {
					return err
				}
				if err := printJSON(cmd.OutOrStdout(), doc); err != nil {
					return err
				}
				n++
			}
			summary.Fprintf(cmd.ErrOrStderr(), "%d documents\n", n)
			return nil
		},
	}

	cmd.Flags().Int64Var(&limit, "limit", 0, "Maximum number of documents, 0 for the default page size")
	cmd.Flags().Int64Var(&skip, "skip", 0, "Number of matches to skip")
	cmd.Flags().StringSliceVar(&sortKeys, "sort", nil, "Sort keys, prefix with - for descending")
	cmd.Flags().StringSliceVar(&fields, "select", nil, "Fields to return")
	return cmd
}

func newCountCommand(env *environment) *cobra.Command {
	return &cobra.Command{
		Use:   "count <collection> [filter]",
		Short: "Count matching documents",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			db, s, err := env.open(ctx, args[0])
			if err != nil {
				return err
			}
			defer db.Close()

			n, err := cursor(s, args[1:]).Count(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), n)
			return nil
		},
	}
}

func newDistinctCommand(env *environment) *cobra.Command {
	return &cobra.Command{
		Use:   "distinct <collection> <field> [filter]",
		Short: "Print the distinct values of a field",
		Args:  cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			db, s, err := env.open(ctx, args[0])
			if err != nil {
				return err
			}
			defer db.Close()

			values, err := cursor(s, args[2:]).Distinct(ctx, args[1])
			if err != nil {
				return err
			}
			for _, v := range values {
				if err := printJSON(cmd.OutOrStdout(), bson.D{{Key: args[1], Value: v}}); err != nil {
					return err
				}
			}
			summary.Fprintf(cmd.ErrOrStderr(), "%d values\n", len(values))
			return nil
		},
	}
}

func newVisitCommand(env *environment) *cobra.Command {
	return &cobra.Command{
		Use:   "visit <collection> [filter]",
		Short: "Print the identity of every match in identity order",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			db, s, err := env.open(ctx, args[0])
			if err != nil {
				return err
			}
			defer db.Close()

			n := 0
			completed, err := cursor(s, args[1:]).Select("_id").Visit(ctx, func(doc *document) (bool, error) {
				n++
				return true, printJSON(cmd.OutOrStdout(), bson.D{{Key: "_id", Value: doc.ID}})
			})
			if err != nil {
				return err
			}
			if !completed {
				return fmt.Errorf("visit of %s stopped after %d documents", args[0], n)
			}
			summary.Fprintf(cmd.ErrOrStderr(), "%d documents visited\n", n)
			return nil
		},
	}
}

func newRemoveCommand(env *environment) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <collection> <filter>",
		Short: "Delete matching documents",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			db, s, err := env.open(ctx, args[0])
			if err != nil {
				return err
			}
			defer db.Close()

			n, err := s.Find(args[1]).Delete(ctx)
			if err != nil {
				return err
			}
			summary.Fprintf(cmd.OutOrStdout(), "%d documents removed\n", n)
			return nil
		},
	}
}
