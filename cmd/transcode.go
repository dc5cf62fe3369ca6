package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/forumkit/flarum-importer/internal/markup"
)

func transcodeCommand() *cobra.Command {
	var trace bool

	cmd := &cobra.Command{
		Use:   "transcode [file]",
		Short: "Convert Flarum post markup to Discourse markdown",
		Long: "Read Flarum's stored post XML from a file or stdin and print the markdown the importer would write. " +
			"With --trace every rewrite rule's output is printed to stderr.",
		Args:        cobra.MaximumNArgs(1),
		Annotations: map[string]string{skipSetup: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			in := cmd.InOrStdin()
			if len(args) == 1 && args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				in = f
			}

			raw, err := io.ReadAll(in)
			if err != nil {
				return fmt.Errorf("read input: %w", err)
			}

			var out string
			if trace {
				stderr := cmd.ErrOrStderr()
				out = markup.TranscodeTrace(string(raw), func(rule, result string) {
					fmt.Fprintf(stderr, "--- %s\n%s\n", rule, result)
				})
			} else {
				out = markup.Transcode(string(raw))
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), out)
			return err
		},
	}
	cmd.Flags().BoolVar(&trace, "trace", false, "Print the intermediate result of each rule to stderr")
	return cmd
}
