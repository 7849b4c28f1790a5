package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		var shown *reportedError
		if !errors.As(err, &shown) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}

// globalOpts holds the root persistent flags.
type globalOpts struct {
	configPath string
	baseURL    string
	format     string
	quiet      bool
}

func newRootCmd() *cobra.Command {
	opts := &globalOpts{}

	root := &cobra.Command{
		Use:           "evalview",
		Short:         "Browse and act on LLM evaluation results",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "evalview.yaml", "path to config file")
	root.PersistentFlags().StringVar(&opts.baseURL, "api", "", "backend base URL (overrides api.base_url)")
	root.PersistentFlags().StringVar(&opts.format, "format", "table", "output format: table or json")
	root.PersistentFlags().BoolVarP(&opts.quiet, "quiet", "q", false, "suppress operation progress lines")

	root.AddCommand(
		newLeaderboardCmd(opts),
		newRunsCmd(opts),
		newQuestionsCmd(opts),
		newModelCmd(opts),
		newQuestionCmd(opts),
		newMutationCmd(opts, mutationRegenerate),
		newMutationCmd(opts, mutationFix),
		newMutationCmd(opts, mutationReevaluate),
		newExecuteCmd(opts),
		newCompareCmd(opts),
		newJobsCmd(opts),
		newPinCmd(opts),
		newUnpinCmd(opts),
		newBrowseCmd(opts),
		newOpsCmd(opts),
		newCacheCmd(opts),
		newMCPCmd(opts),
	)
	return root
}

// reportedError marks an error the renderer has already shown.
type reportedError struct {
	err error
}

func (e *reportedError) Error() string { return e.err.Error() }
func (e *reportedError) Unwrap() error { return e.err }

func reported(err error) error {
	if err == nil {
		return nil
	}
	return &reportedError{err: err}
}
