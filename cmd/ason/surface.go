package main

import (
	"context"
	"fmt"
	"os"

	"github.com/aretw0/ason/internal/cli"
	"github.com/aretw0/ason/internal/demo"
	"github.com/aretw0/ason/internal/presentation/graph"
	"github.com/aretw0/ason/internal/presentation/tui"
	"github.com/spf13/cobra"
)

var surfaceCmd = &cobra.Command{
	Use:   "surface",
	Short: "Print the script surface of the demo application",
	Long: `Prints what a generator sees: the signature listing (default), the full
prelude scripts are compiled with (--prelude), or a Mermaid diagram of the
operator types (--mermaid).`,
	RunE: func(cmd *cobra.Command, args []string) error {
		prelude, _ := cmd.Flags().GetBool("prelude")
		mermaid, _ := cmd.Flags().GetBool("mermaid")

		cfg, err := cli.LoadConfig(cliOptions(cmd))
		if err != nil {
			return err
		}
		app, client, err := cli.NewDemoClient(context.Background(), cfg, cli.NewLogger(cfg))
		if err != nil {
			return err
		}
		defer client.Close(context.Background())

		out := cmd.OutOrStdout()
		switch {
		case mermaid:
			reg := client.Registry()
			overlay := &graph.Overlay{}
			for _, kind := range []string{demo.RootKind, demo.CustomersKind, demo.OrdersKind} {
				if n, ok := app.Tree().Lookup(kind); ok && n.Initialized() {
					overlay.Attached = append(overlay.Attached, kind)
				}
			}
			fmt.Fprint(out, graph.GenerateMermaid(demo.RootKind, reg.Types(), reg.ToolSets(), overlay))
		case prelude:
			fmt.Fprint(out, client.Prelude())
		default:
			render := tui.NewRenderer(os.Stdout)
			text, err := render("```go\n" + client.Signatures() + "```\n")
			if err != nil {
				return err
			}
			fmt.Fprint(out, text)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(surfaceCmd)
	surfaceCmd.Flags().Bool("prelude", false, "Print the executable prelude instead of the listing")
	surfaceCmd.Flags().Bool("mermaid", false, "Print a Mermaid diagram of the operator types")
}
