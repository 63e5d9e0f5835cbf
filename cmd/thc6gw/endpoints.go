package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/WangQiHao-Charlie/thc6gw/internal/gateway"
	"github.com/WangQiHao-Charlie/thc6gw/pkg/driver"
)

func newEndpointsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "endpoints",
		Short: "List the exposed endpoints and the commands they run",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return printEndpoints(cmd.OutOrStdout())
		},
	}
}

func printEndpoints(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ENDPOINT\tPARAMS\tCOMMAND")
	for _, ep := range gateway.Endpoints() {
		names := make([]string, 0, len(ep.Params)+1)
		for _, p := range ep.Params {
			names = append(names, p.Name)
		}
		if ep.Variadic {
			names = append(names, "args...")
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", ep.Name, strings.Join(names, ","), renderTemplate(ep.Template))
	}
	return tw.Flush()
}

func renderTemplate(tmpl []string) string {
	out := make([]string, 0, len(tmpl))
	for _, tok := range tmpl {
		if tok == driver.ArgsToken {
			out = append(out, "<args...>")
			continue
		}
		tok = strings.ReplaceAll(tok, "{param:", "<")
		tok = strings.ReplaceAll(tok, "}", ">")
		out = append(out, tok)
	}
	return strings.Join(out, " ")
}
