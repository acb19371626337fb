package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "deliveries",
	Short: "Supplier delivery tracking service",
	Long:  `Tracks supplier deliveries from forecast through warehouse arrival to registration and archival`,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}
