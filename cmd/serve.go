package cmd

import (
	"github.com/rivalscope/rivalscope/internal/server"
	"github.com/rivalscope/rivalscope/internal/utils"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the dashboard data as a JSON API",
	RunE: func(cmd *cobra.Command, _ []string) error {
		addr, _ := cmd.Flags().GetString("listen")
		user, _ := cmd.Flags().GetString("username")
		pass, _ := cmd.Flags().GetString("password")

		e, err := openEngine(false)
		if err != nil {
			return err
		}
		defer e.Close()

		s := server.New(e.db, e.pipeline, user, pass)
		s.Lock = e.lock
		s.Log = utils.Log
		if user == "" && pass == "" {
			utils.Log.Warn("Serving without authentication")
		}
		return s.Start(cmd.Context(), addr)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("listen", "127.0.0.1:8080", "Address to listen on")
	serveCmd.Flags().String("username", "", "Basic auth username")
	serveCmd.Flags().String("password", "", "Basic auth password")
}
