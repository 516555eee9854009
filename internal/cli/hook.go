package cli

import (
	"github.com/spf13/cobra"

	"github.com/lazypower/rapport/internal/hooks"
)

var hookCmd = &cobra.Command{
	Use:   "hook <event>",
	Short: "Forward a bot event read from stdin to the server",
	Long: "Reads one JSON event on stdin and posts it to the rapport server.\n" +
		"Events: interaction, user, voice, summary. Failures are reported on stderr\n" +
		"and never fail the calling bot.",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{hooks.EventInteraction, hooks.EventUser, hooks.EventVoice, hooks.EventSummary},
	Run: func(cmd *cobra.Command, args []string) {
		client := hooks.NewClient(cfg.Server.URL)
		if err := hooks.Handle(client, args[0], cmd.InOrStdin(), cmd.OutOrStdout()); err != nil {
			hooks.ReportError(cmd.ErrOrStderr(), err)
		}
	},
}
