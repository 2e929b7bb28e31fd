package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/DroidSim/platform-art/oatdump"
)

func newDumpCommand() *cobra.Command {
	var opts oatdump.Options
	cmd := &cobra.Command{
		Use:   "dump <file.oat>",
		Short: "Print the structure of an OAT file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			return oatdump.Dump(cmd.OutOrStdout(), data, opts)
		},
	}
	cmd.Flags().BoolVarP(&opts.Disassemble, "disassemble", "d", false, "Disassemble trampolines and code")
	cmd.Flags().StringVar(&opts.Module, "module", "", "Only show the module with this location")
	return cmd
}
