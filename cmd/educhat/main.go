package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	root := &cobra.Command{
		Use:           "educhat",
		Short:         "Room-scoped real-time chat server",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newServeCommand(), newChatCommand(), newTokenCommand())

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "educhat: %v\n", err)
		os.Exit(1)
	}
}
