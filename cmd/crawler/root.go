package main

import (
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/alvmarrod/tag-weaver/internal/version"
)

// Process exit codes
const (
	exitOK    = 0
	exitFatal = 1
	exitSetup = 2
)

// exitError carries the process exit code for a failed command
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }

func (e *exitError) Unwrap() error { return e.err }

func setupError(format string, args ...any) error {
	return &exitError{code: exitSetup, err: fmt.Errorf(format, args...)}
}

func fatalError(err error) error {
	return &exitError{code: exitFatal, err: err}
}

// NewRootCmd creates the root command
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tag-weaver",
		Short: "Crawl the subreddit catalog and spread audience tags across mentions",
		Long: `tag-weaver pages through the public subreddit catalog, records each
subreddit's audience tags and the subreddits it mentions, and propagates every
tag along mentions so each subreddit knows how far it is from each tag.

The crawl resumes from the last saved cursor and runs until interrupted.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
				logrus.SetLevel(logrus.DebugLevel)
			}
		},
	}

	cmd.PersistentFlags().StringP("config", "c", "", "Configuration file (json, yaml or env)")
	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging")

	cmd.AddCommand(NewCrawlCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// NewVersionCmd creates the version command
func NewVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "tag-weaver version %s\n", version.Version)
		},
	}
}

// Execute runs the root command with args and returns the process exit code
func Execute(args []string) int {
	cmd := NewRootCmd()
	cmd.SetArgs(args)

	if err := cmd.Execute(); err != nil {
		logrus.Error(err)

		var exitErr *exitError
		if errors.As(err, &exitErr) {
			return exitErr.code
		}
		// Flag and argument parsing errors
		return exitSetup
	}
	return exitOK
}
