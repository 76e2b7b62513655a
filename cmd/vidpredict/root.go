package main

import (
	"context"
	"io"

	"github.com/spf13/cobra"
)

// appFunc is the body of a command that needs the configured clients.
type appFunc func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error

// withAppFunc adapts an appFunc into a cobra RunE.
type withAppFunc func(appFunc) func(*cobra.Command, []string) error

func newRootCmd(in io.Reader, out, errOut io.Writer) *cobra.Command {
	var opts globalOptions

	root := &cobra.Command{
		Use:   "vidpredict",
		Short: "Upload short videos and browse their predictions",
		Long: `vidpredict signs in to a video prediction API, uploads recorded
videos for prediction and pages through the prediction history.`,
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	root.SetIn(in)
	root.SetOut(out)
	root.SetErr(errOut)

	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "Path to config JSON/JSONC")
	root.PersistentFlags().StringVar(&opts.apiURL, "api", "", "API base URL override")
	root.PersistentFlags().StringVarP(&opts.output, "output", "o", formatText, "Output format: text, json or yaml")

	withApp := func(fn appFunc) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			a, err := openApp(opts, cmd.InOrStdin(), cmd.OutOrStdout(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close()
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			return fn(ctx, a, cmd, args)
		}
	}

	root.AddCommand(
		newRegisterCmd(withApp),
		newLoginCmd(withApp),
		newLogoutCmd(withApp),
		newMeCmd(withApp),
		newHistoryCmd(withApp),
		newPredictCmd(withApp),
		newBrowseCmd(withApp),
		newShellCmd(withApp),
		newDevServerCmd(&opts),
		newConfigCmd(),
	)
	return root
}
