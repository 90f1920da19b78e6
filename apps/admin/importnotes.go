package main

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/trezcool/studentnotes/core"
	"github.com/trezcool/studentnotes/core/note"
	"github.com/trezcool/studentnotes/core/tree"
	"github.com/trezcool/studentnotes/core/user"
)

const importSummary = "Imported from static content"

type importResult struct {
	Imported int
	Skipped  int
}

func (cli *commandLine) importNotesCmd() *cobra.Command {
	var adminEm string
	cmd := &cobra.Command{
		Use:   "importnotes",
		Short: "Store every markdown note of the static content as a published note",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			admin, err := cli.admin(ctx, adminEm)
			if err != nil {
				return err
			}
			res, err := cli.importNotes(ctx, admin)
			if err != nil {
				return err
			}
			cli.printf("imported %d notes, skipped %d\n", res.Imported, res.Skipped)
			return nil
		},
	}
	cmd.Flags().StringVar(&adminEm, "by", "", "Email of the admin owning the imported notes")
	_ = cmd.MarkFlagRequired("by")
	return cmd
}

// importNotes skips components, invalid entries and notes already stored under the same title in the same folder.
func (cli *commandLine) importNotes(ctx context.Context, admin user.User) (importResult, error) {
	var res importResult
	t, err := cli.static.Load(ctx)
	if err != nil {
		return res, errors.Wrap(err, "loading static content")
	}

	var walkErr error
	t.Walk(func(dept, year, section, subject string, entries []tree.Entry) {
		for _, e := range entries {
			if walkErr != nil {
				return
			}
			if e.Type != tree.TypeMarkdown {
				res.Skipped++
				continue
			}

			nn := note.NewNote{
				Title:              e.DisplayTitle(),
				Department:         dept,
				Year:               year,
				Section:            section,
				Subject:            subject,
				Content:            e.Content,
				ChangeSummary:      importSummary,
				PublishImmediately: true,
			}
			if err := nn.Validate(cli.validate); err != nil {
				cli.logger.Warn(fmt.Sprintf("skipping %s: %v", tree.RoutePath(dept, year, section, subject, e.ID), err))
				res.Skipped++
				continue
			}

			exists, err := cli.noteExists(ctx, nn)
			if err != nil {
				walkErr = err
				return
			}
			if exists {
				res.Skipped++
				continue
			}
			if _, err := cli.notes.Create(ctx, admin, nn); err != nil {
				walkErr = errors.Wrapf(err, "importing %s", tree.RoutePath(dept, year, section, subject, e.ID))
				return
			}
			res.Imported++
		}
	})
	return res, walkErr
}

func (cli *commandLine) noteExists(ctx context.Context, nn note.NewNote) (bool, error) {
	filter := note.QueryFilter{
		Search:     nn.Title,
		Department: nn.Department,
		Year:       nn.Year,
		Section:    nn.Section,
		Subject:    nn.Subject,
	}
	notes, _, err := cli.notes.Query(ctx, filter, nil, core.Paginate{Size: core.MaxPageSize})
	if err != nil {
		return false, errors.Wrap(err, "looking up existing notes")
	}
	for _, n := range notes {
		if n.Title == nn.Title {
			return true, nil
		}
	}
	return false, nil
}
