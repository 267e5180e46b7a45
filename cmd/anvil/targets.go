package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"anvil/internal/target"
)

var targetsCmd = &cobra.Command{
	Use:   "targets",
	Short: "List supported target triples",
	Args:  cobra.NoArgs,
	RunE:  targetsExecution,
}

func targetsExecution(cmd *cobra.Command, args []string) error {
	if err := applyColorMode(cmd); err != nil {
		return err
	}
	for _, triple := range target.Triples() {
		marker := " "
		if triple == target.DefaultTriple {
			marker = color.GreenString("*")
		}
		fmt.Printf("%s %s\n", marker, triple)
	}
	if _, err := target.ResolveJIT(); err != nil {
		fmt.Printf("\nhost: %s\n", color.YellowString("in-process execution unavailable (%v)", err))
		return nil
	}
	fmt.Printf("\nhost: %s (in-process execution available)\n", target.HostTriple())
	return nil
}
