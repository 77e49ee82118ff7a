package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pstuifzand/section-outliner/internal/autosave"
	"github.com/pstuifzand/section-outliner/internal/editmode"
	"github.com/pstuifzand/section-outliner/internal/legacy"
	"github.com/pstuifzand/section-outliner/internal/model"
	"github.com/pstuifzand/section-outliner/internal/outline"
	"github.com/pstuifzand/section-outliner/internal/session"
	"github.com/pstuifzand/section-outliner/internal/storage"
	"github.com/pstuifzand/section-outliner/internal/transport/httpapi"
)

func newEditCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "edit <article-id>",
		Short: "Edit a remote document with commands read from stdin",
		Long: `Opens a document from the service in an editor session and applies one
command per input line. Saves go through autosave exactly as in the editor;
failed saves are kept as drafts in the local cache.

Commands:
  edit <id>                  enter edit mode on a section
  view                       return to view mode
  focus <id>                 move the cursor
  next | prev                move the cursor to the next/previous visible section
  heading <id> <text>        replace a heading (needs edit mode)
  body <id> <text>           replace a body (needs edit mode)
  indent|outdent|up|down|delete|insert|merge|backspace <id>
  split <id> [offset]        split the heading at offset
  toggle|fold|unfold <id>
  show | status | save | online`,
		Args: cobra.ExactArgs(1),
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

			req, err := fetchOpenRequest(ctx, client, args[0])
			if err != nil {
				return writeErr(cmd, err)
			}

			out := cmd.OutOrStdout()
			sess, err := session.New(app.sessionOptions(client, cache, out))
			if err != nil {
				return writeErr(cmd, err)
			}
			if err := sess.Open(ctx, req); err != nil {
				return writeErr(cmd, err)
			}
			if req.Encrypted {
				fmt.Fprintln(out, "warning: document is encrypted, changes are not saved")
			}

			scanner := bufio.NewScanner(cmd.InOrStdin())
			for scanner.Scan() {
				line := strings.TrimSpace(scanner.Text())
				if line == "" || strings.HasPrefix(line, "#") {
					continue
				}
				if err := runScriptLine(ctx, out, sess, line); err != nil {
					fmt.Fprintf(out, "error: %v\n", err)
				}
			}
			fmt.Fprintf(out, "status: %s\n", sess.Status())
			closeErr := sess.Close(ctx)
			if err := errors.Join(scanner.Err(), closeErr); err != nil {
				return writeErr(cmd, err)
			}
			return nil
		},
	}
}

func (app *App) sessionOptions(p autosave.Persister, cache storage.Cache, out io.Writer) session.Options {
	return session.Options{
		Persister:         p,
		Cache:             cache,
		Logger:            app.logger,
		LeaveDelay:        app.cfg.Autosave.LeaveDelay.Std(),
		TypingDelay:       app.cfg.Autosave.TypingDelay.Std(),
		RetryDelay:        app.cfg.Autosave.RetryDelay.Std(),
		StaleVersionHours: app.cfg.Autosave.StaleVersionHours,
		ConfirmWindow:     app.cfg.Editor.MergeConfirmWindow.Std(),
		HintInterval:      app.cfg.Editor.HintInterval.Std(),
		OnHint: func(hint string) {
			fmt.Fprintf(out, "hint: %s\n", hint)
		},
	}
}

// fetchOpenRequest loads the server copy of a document. A document the
// service has no content for yet opens empty.
func fetchOpenRequest(ctx context.Context, client *httpapi.Client, articleID string) (session.OpenRequest, error) {
	req := session.OpenRequest{ArticleID: articleID}
	remote, err := client.FetchDocument(ctx, articleID)
	if err != nil {
		if errors.Is(err, httpapi.ErrNotFound) {
			return req, nil
		}
		return req, err
	}
	req.ServerUpdatedAt = remote.UpdatedAt
	req.Encrypted = remote.Encrypted
	if !remote.HasContent() || remote.Encrypted {
		return req, nil
	}
	doc, _, err := storage.Decode(remote.Document, legacy.NewConverter())
	if err != nil {
		return req, fmt.Errorf("document %s: %w", articleID, err)
	}
	req.Document = doc
	return req, nil
}

func runScriptLine(ctx context.Context, out io.Writer, sess *session.Session, line string) error {
	fields := strings.Fields(line)
	name := fields[0]
	arg := func(i int) string {
		if i < len(fields) {
			return fields[i]
		}
		return ""
	}

	switch name {
	case "edit":
		report(out, sess.EnterEditMode(arg(1)), "cannot edit "+arg(1))
	case "view":
		sess.ExitEditMode()
	case "focus":
		report(out, sess.SetActiveSection(arg(1)), "no section "+arg(1))
	case "next":
		report(out, sess.MoveCursorDown(), "at the last visible section")
	case "prev":
		report(out, sess.MoveCursorUp(), "at the first visible section")
	case "heading", "body":
		parts := strings.SplitN(line, " ", 3)
		if len(parts) < 2 {
			return fmt.Errorf("usage: %s <id> <text>", name)
		}
		text := ""
		if len(parts) == 3 {
			text = strings.TrimSpace(parts[2])
		}
		d := sess.ApplyContent(editmode.Mutation{Kind: editmode.ReplaceContent, Sections: []string{parts[1]}}, func(s *model.Section) {
			if name == "heading" {
				s.Heading = model.Text(text)
			} else {
				s.Body = model.Paragraphs(text)
			}
		})
		if !d.Allowed {
			fmt.Fprintf(out, "rejected: %s\n", d.Reason)
		}
	case "split":
		offset := 0
		if s := arg(2); s != "" {
			n, err := strconv.Atoi(s)
			if err != nil {
				return fmt.Errorf("split offset: %w", err)
			}
			offset = n
		}
		result(out, sess.Split(arg(1), outline.Caret{InHeading: true, Offset: offset}))
	case "indent":
		result(out, sess.Indent(arg(1)))
	case "outdent":
		result(out, sess.Outdent(arg(1)))
	case "up":
		result(out, sess.MoveUp(arg(1)))
	case "down":
		result(out, sess.MoveDown(arg(1)))
	case "delete":
		result(out, sess.Delete(arg(1)))
	case "insert":
		result(out, sess.InsertAfter(arg(1)))
	case "merge":
		result(out, sess.Merge(arg(1)))
	case "backspace":
		result(out, sess.Backspace(arg(1), true))
	case "toggle":
		result(out, sess.ToggleCollapsed(arg(1), outline.ScopeSelf))
	case "fold":
		result(out, sess.ToggleCollapsed(arg(1), outline.ScopeCollapseParentSubtree))
	case "unfold":
		result(out, sess.ToggleCollapsed(arg(1), outline.ScopeExpandSubtree))
	case "show":
		doc, err := sess.Document()
		if err != nil {
			return err
		}
		writeTree(out, doc, true, true, false)
	case "status":
		mode := sess.Mode()
		fmt.Fprintf(out, "%s, %s on %s, dirty %v\n", sess.Status(), mode.Mode, sess.Active(), sess.Dirty())
	case "save":
		if err := sess.Save(ctx); err != nil && !errors.Is(err, autosave.ErrSaveInFlight) {
			return err
		}
	case "online":
		sess.OnOnline(ctx)
	default:
		return fmt.Errorf("unknown command %q", name)
	}
	return nil
}

func result(out io.Writer, r outline.Result) {
	if !r.Applied {
		fmt.Fprintf(out, "no-op: %s\n", r.Reason)
		return
	}
	fmt.Fprintf(out, "ok, cursor on %s\n", r.Cursor.SectionID)
}

func report(out io.Writer, ok bool, msg string) {
	if !ok {
		fmt.Fprintf(out, "no-op: %s\n", msg)
	}
}
