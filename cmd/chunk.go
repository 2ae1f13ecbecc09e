package main

import (
	"context"
	"fmt"
	"sort"

	"github.com/spf13/cobra"
)

var chunkCmd = &cobra.Command{
	Use:   "chunk",
	Short: "Inspect chunks on storage nodes",
}

var chunkHeadCmd = &cobra.Command{
	Use:   "head [chunk-url]",
	Short: "Print the headers of a chunk",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		headers, err := router.Head(context.Background(), args[0])
		if err != nil {
			fmt.Printf("Error reading chunk: %v\n", err)
			return
		}

		fields := headers.ToMap()
		keys := make([]string, 0, len(fields))
		for key := range fields {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			fmt.Printf("%s: %s\n", key, fields[key])
		}
	},
}

func init() {
	chunkCmd.AddCommand(chunkHeadCmd)
	rootCmd.AddCommand(chunkCmd)
}
