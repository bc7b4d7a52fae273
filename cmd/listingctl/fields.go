package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/use-agent/listingd/fields"
)

var fieldsCmd = &cobra.Command{
	Use:   "fields",
	Short: "Inspect and validate field tables",
}

var fieldsCheckCmd = &cobra.Command{
	Use:   "check <file>",
	Short: "Validate a field table file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		t, err := fields.Parse(data)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: version %q, %d fields OK\n", args[0], t.Version, len(t.Fields))
		return nil
	},
}

var fieldsShowCmd = &cobra.Command{
	Use:   "show [file]",
	Short: "List the fields of a table (default: the embedded table)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		t := fields.Default()
		if len(args) == 1 {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			if t, err = fields.Parse(data); err != nil {
				return err
			}
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "version %s\n", t.Version)
		for _, f := range t.Fields {
			fmt.Fprintf(out, "  %-20s %-5s %-15s %d selector(s)", f.Name, f.Kind, f.Transform, len(f.Selectors))
			if len(f.Routes) > 0 {
				dests := make([]string, len(f.Routes))
				for i, r := range f.Routes {
					dests[i] = r.Field
				}
				fmt.Fprintf(out, " -> %s", strings.Join(dests, ", "))
			}
			fmt.Fprintln(out)
		}
		return nil
	},
}

func init() {
	fieldsCmd.AddCommand(fieldsCheckCmd, fieldsShowCmd)
	rootCmd.AddCommand(fieldsCmd)
}
