package main

import (
	"github.com/Wyydra/yacall/internal/config"
	"github.com/Wyydra/yacall/internal/logging"
	"github.com/spf13/cobra"
)

var (
	flagServer   string
	flagUser     string
	flagSTUN     string
	flagTURN     string
	flagTURNUser string
	flagTURNPass string
	flagLogLevel string
)

var rootCmd = &cobra.Command{
	Use:   "callctl",
	Short: "Headless call participant",
	Long: `callctl places, joins and answers calls from the command line and
negotiates a WebRTC connection with every other participant.

Examples:
  callctl --user alice place bob carol
  callctl --user bob listen --answer
  callctl --user carol ongoing`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return logging.Init(flagLogLevel, "console")
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flagServer, "server", "", "signaling server URL (env CALL_SERVER)")
	pf.StringVarP(&flagUser, "user", "u", "", "user id to act as (env CALL_USER)")
	pf.StringVar(&flagSTUN, "stun", "", "STUN server URL (env STUN_SERVER)")
	pf.StringVar(&flagTURN, "turn", "", "TURN server URL (env TURN_SERVER)")
	pf.StringVar(&flagTURNUser, "turn-user", "", "TURN username (env TURN_USERNAME)")
	pf.StringVar(&flagTURNPass, "turn-pass", "", "TURN password (env TURN_PASSWORD)")
	pf.StringVar(&flagLogLevel, "log-level", "warn", "log level")

	rootCmd.AddCommand(placeCmd, joinCmd, leaveCmd, ongoingCmd, listenCmd)
}

func loadClient() (*config.Client, error) {
	return config.LoadClient(config.ClientOptions{
		Server:     flagServer,
		User:       flagUser,
		STUNServer: flagSTUN,
		TURNServer: flagTURN,
		TURNUser:   flagTURNUser,
		TURNPass:   flagTURNPass,
	})
}
