package main

import (
	"context"
	"strings"
	"text/tabwriter"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/trezcool/studentnotes/core/catalog"
	"github.com/trezcool/studentnotes/core/tree"
)

func (cli *commandLine) treeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tree [folder]",
		Short: "Print the routes of the merged content tree, or of one of its folders",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var folder string
			if len(args) > 0 {
				folder = args[0]
			}
			return cli.printTree(context.Background(), folder)
		},
	}
}

func (cli *commandLine) printTree(ctx context.Context, folder string) error {
	snap, err := catalog.NewService(cli.static, cli.notes, cli.logger).Current(ctx)
	if err != nil {
		return errors.Wrap(err, "loading content")
	}

	routes := tree.Routes(snap.Tree)
	if folder = strings.Trim(folder, "/"); folder != "" {
		node, ok := tree.FindNode(tree.Normalize(snap.Tree), "/"+folder)
		if !ok {
			return errors.Errorf("no content at /%s", folder)
		}
		routes = routesUnder(routes, node.Path)
	}

	stats := snap.Tree.Count()
	cli.printf("mode: %s, departments: %d, notes: %d\n", snap.Mode, stats.Departments, stats.Notes)
	w := tabwriter.NewWriter(cli.out, 0, 4, 2, ' ', 0)
	for _, r := range routes {
		_, _ = w.Write([]byte(r.Path + "\t" + r.Type + "\t" + r.Title + "\n"))
	}
	return w.Flush()
}

func routesUnder(routes []tree.Route, path string) []tree.Route {
	var out []tree.Route
	for _, r := range routes {
		if r.Path == path || strings.HasPrefix(r.Path, path+"/") {
			out = append(out, r)
		}
	}
	return out
}
