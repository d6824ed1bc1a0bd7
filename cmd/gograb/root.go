package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

const version = "0.3.0"

var (
	configPath string
	serverURL  string
)

var rootCmd = &cobra.Command{
	Use:   "gograb",
	Short: "GoGrab is a queueing media downloader built around yt-dlp",
	Long: `GoGrab runs a durable download queue: jobs are persisted, executed by
supervised yt-dlp subprocesses with bounded concurrency, retried on
transient failures, and recovered across restarts.`,
	SilenceUsage: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the gograb version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("gograb", version)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config file (default config.yaml)")
	rootCmd.PersistentFlags().StringVarP(&serverURL, "server", "s", "http://localhost:8080", "address of a running gograb daemon")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(addCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(cancelCmd)
	rootCmd.AddCommand(pauseCmd)
	rootCmd.AddCommand(resumeCmd)
	rootCmd.AddCommand(retryCmd)
	rootCmd.AddCommand(rmCmd)
	rootCmd.AddCommand(versionCmd)
}
