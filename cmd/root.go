package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/zoosonics/sawcall-go/cmd/batch"
	"github.com/zoosonics/sawcall-go/cmd/file"
	"github.com/zoosonics/sawcall-go/cmd/watch"
	"github.com/zoosonics/sawcall-go/internal/conf"
)

// RootCommand creates and returns the root command
func RootCommand(settings *conf.Settings) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "sawcall",
		Short: "Saw-call detection CLI",
		Long:  `Detects saw-call vocalizations in zoo audio recordings and manages their processing queue.`,
	}

	setupFlags(rootCmd, settings)

	subcommands := []*cobra.Command{
		file.Command(settings),
		batch.Command(settings),
		watch.Command(settings),
	}
	rootCmd.AddCommand(subcommands...)

	return rootCmd
}

// setupFlags defines flags that are global to the command line interface
func setupFlags(rootCmd *cobra.Command, settings *conf.Settings) {
	rootCmd.PersistentFlags().BoolVarP(&settings.Debug, "debug", "d", viper.GetBool("debug"), "Enable debug output")

	if err := viper.BindPFlags(rootCmd.PersistentFlags()); err != nil {
		fmt.Printf("error binding flags: %v\n", err)
	}
}
