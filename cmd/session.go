package main

import (
	"encoding/json"
	"io"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/lead-wizard/internal/model"
	"github.com/sells-group/lead-wizard/internal/persist"
	"github.com/sells-group/lead-wizard/internal/workflow"
)

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Inspect or clear a user's persisted workflow progress",
}

// openSession restores the durable session of user with an empty ephemeral
// tier. Callers Close the controller to stop its recovery timer.
func openSession(tier persist.Tier, user string) *workflow.Controller {
	store := persist.NewStore(persist.NewMemory(), persist.Prefixed(tier, user), sessionLayout())
	return workflow.New("cli", workflow.Deps{Store: store})
}

var sessionShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the persisted session of a user",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := cfg.Validate("session"); err != nil {
			return err
		}
		tier, err := initSessionTier()
		if err != nil {
			return err
		}
		defer tier.Close() //nolint:errcheck

		user, _ := cmd.Flags().GetString("user")
		ctrl := openSession(tier, user)
		s := ctrl.Restore(cmd.Context())
		ctrl.Close()
		return writeSession(os.Stdout, s)
	},
}

var sessionResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Clear the persisted session of a user",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := cfg.Validate("session"); err != nil {
			return err
		}
		tier, err := initSessionTier()
		if err != nil {
			return err
		}
		defer tier.Close() //nolint:errcheck

		user, _ := cmd.Flags().GetString("user")
		ctrl := openSession(tier, user)
		ctrl.Restore(cmd.Context())
		s := ctrl.Reset()
		ctrl.Close()
		return writeSession(os.Stdout, s)
	},
}

func writeSession(out io.Writer, s model.Session) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return eris.Wrap(enc.Encode(s), "encode session")
}

func init() {
	for _, c := range []*cobra.Command{sessionShowCmd, sessionResetCmd} {
		c.Flags().String("user", "anonymous", "user id the session belongs to")
		sessionCmd.AddCommand(c)
	}
	rootCmd.AddCommand(sessionCmd)
}
