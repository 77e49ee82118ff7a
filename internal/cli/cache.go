package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/pstuifzand/section-outliner/internal/autosave"
	"github.com/pstuifzand/section-outliner/internal/legacy"
	"github.com/pstuifzand/section-outliner/internal/model"
	"github.com/pstuifzand/section-outliner/internal/storage"
	"github.com/pstuifzand/section-outliner/internal/transport/httpapi"
)

func newDraftsCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "drafts",
		Short: "Inspect drafts kept in the local autosave cache",
	}
	cmd.AddCommand(newDraftsListCmd(app))
	cmd.AddCommand(newDraftsShowCmd(app))
	cmd.AddCommand(newDraftsClearCmd(app))
	return cmd
}

func newDraftsListCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List cached drafts, oldest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cache, err := app.openCache(ctx)
			if err != nil {
				return writeErr(cmd, err)
			}
			defer cache.Close()

			drafts, err := cache.ListDrafts(ctx)
			if err != nil {
				return writeErr(cmd, err)
			}
			if len(drafts) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No drafts")
				return nil
			}
			for _, d := range drafts {
				fmt.Fprintf(cmd.OutOrStdout(), "%-24s %-16s %s\n",
					d.ArticleID, humanize.Time(d.QueuedAt), humanize.Bytes(uint64(len(d.Content))))
			}
			return nil
		},
	}
}

func newDraftsShowCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "show <article-id>",
		Short: "Print the section tree of a cached draft",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cache, err := app.openCache(ctx)
			if err != nil {
				return writeErr(cmd, err)
			}
			defer cache.Close()

			d, ok, err := cache.ReadDraft(ctx, args[0])
			if err != nil {
				return writeErr(cmd, err)
			}
			if !ok {
				return writeErr(cmd, fmt.Errorf("no draft for %s", args[0]))
			}
			doc, err := model.ParseDocument(d.Content)
			if err != nil {
				return writeErr(cmd, err)
			}
			writeTree(cmd.OutOrStdout(), doc, false, true, false)
			return nil
		},
	}
}

func newDraftsClearCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "clear <article-id>...",
		Short: "Discard cached drafts",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cache, err := app.openCache(ctx)
			if err != nil {
				return writeErr(cmd, err)
			}
			defer cache.Close()

			for _, id := range args {
				if err := cache.ClearDraft(ctx, id); err != nil {
					return writeErr(cmd, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Cleared draft %s\n", id)
			}
			return nil
		},
	}
}

// queueOnly is a save source without a live document; its coordinator only
// delivers what is already queued
type queueOnly struct{}

func (queueOnly) Capture(bool) (autosave.Capture, bool) { return autosave.Capture{}, false }
func (queueOnly) Committed(autosave.Capture)            {}
func (queueOnly) Current(string, uint64) bool           { return false }

func newFlushCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "flush [article-id...]",
		Short: "Deliver saves queued while offline",
		Long:  "Delivers the queued operations of the given documents, or of every document with queued work.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			client, err := app.client()
			if err != nil {
				return writeErr(cmd, err)
			}
			cache, err := app.openCache(ctx)
			if err != nil {
				return writeErr(cmd, err)
			}
			defer cache.Close()

			articles := args
			if len(articles) == 0 {
				if articles, err = cache.QueuedArticles(ctx); err != nil {
					return writeErr(cmd, err)
				}
			}
			if len(articles) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "Nothing queued")
				return nil
			}

			var failed []error
			for _, id := range articles {
				status, err := app.flushArticle(ctx, client, cache, id)
				if err != nil {
					failed = append(failed, err)
					fmt.Fprintf(cmd.OutOrStdout(), "%-24s %s: %v\n", id, status, err)
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%-24s %s\n", id, status)
			}
			if len(failed) > 0 {
				return errors.Join(failed...)
			}
			return nil
		},
	}
}

func (app *App) flushArticle(ctx context.Context, p autosave.Persister, cache storage.Cache, articleID string) (autosave.Status, error) {
	coord, err := autosave.NewCoordinator(p, queueOnly{}, autosave.Options{
		ArticleID: articleID,
		Drafts:    cache,
		Queue:     cache,
		Sequences: cache,
		Logger:    app.logger,
	})
	if err != nil {
		return autosave.StatusError, err
	}
	defer coord.Stop()
	err = coord.FlushQueue(ctx)
	return coord.Status(), err
}

func newPullCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "pull <article-id> <file>",
		Short: "Download a document from the service into a local file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := app.client()
			if err != nil {
				return writeErr(cmd, err)
			}
			remote, err := client.FetchDocument(cmd.Context(), args[0])
			if err != nil {
				if errors.Is(err, httpapi.ErrNotFound) {
					return writeErr(cmd, fmt.Errorf("document %s not found", args[0]))
				}
				return writeErr(cmd, err)
			}
			if remote.Encrypted {
				return writeErr(cmd, fmt.Errorf("document %s is encrypted", args[0]))
			}
			if !remote.HasContent() {
				return writeErr(cmd, fmt.Errorf("document %s has no content yet", args[0]))
			}
			doc, _, err := storage.Decode(remote.Document, legacy.NewConverter())
			if err != nil {
				return writeErr(cmd, err)
			}
			if err := app.saveDocument(cmd, args[1], doc); err != nil {
				return writeErr(cmd, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Pulled %s (updated %s) into %s\n", args[0], humanize.Time(remote.UpdatedAt), args[1])
			return nil
		},
	}
}
