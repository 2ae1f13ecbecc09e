package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

var quiet bool

var contentCmd = &cobra.Command{
	Use:   "content",
	Short: "Store, read and inspect contents",
}

var contentPutCmd = &cobra.Command{
	Use:   "put [file-path] [container-id] [name]",
	Short: "Store a file as a new content",
	Args:  cobra.RangeArgs(2, 3),
	Run: func(cmd *cobra.Command, args []string) {
		filePath, containerID := args[0], args[1]
		name := filepath.Base(filePath)
		if len(args) == 3 {
			name = args[2]
		}

		file, err := os.Open(filePath)
		if err != nil {
			fmt.Printf("Error opening file: %v\n", err)
			return
		}
		defer file.Close()

		stat, err := file.Stat()
		if err != nil {
			fmt.Printf("Error reading file size: %v\n", err)
			return
		}

		policy, _ := cmd.Flags().GetString("policy")
		ctx := context.Background()
		c, err := contents.New(ctx, containerID, name, stat.Size(), policy)
		if err != nil {
			fmt.Printf("Error preparing content: %v\n", err)
			return
		}

		var reader io.Reader = file
		if !quiet {
			bar := progressbar.DefaultBytes(stat.Size(), "uploading")
			pbReader := progressbar.NewReader(file, bar)
			reader = &pbReader
		}

		if err := c.Create(ctx, reader); err != nil {
			fmt.Printf("Error storing content: %v\n", err)
			return
		}

		meta := c.Meta()
		fmt.Printf("Content stored: %s -> %s/%s (%s, %d chunks, md5 %s)\n",
			filePath, containerID, meta.ContentID, meta.Policy, len(c.Chunks()), meta.Hash)
	},
}

var contentGetCmd = &cobra.Command{
	Use:   "get [container-id] [content-id] [output-path]",
	Short: "Read a content back into a file",
	Args:  cobra.ExactArgs(3),
	Run: func(cmd *cobra.Command, args []string) {
		containerID, contentID, outputPath := args[0], args[1], args[2]

		ctx := context.Background()
		c, err := contents.Get(ctx, containerID, contentID)
		if err != nil {
			fmt.Printf("Error loading content: %v\n", err)
			return
		}

		// If output path is a directory, use the content name
		if stat, err := os.Stat(outputPath); err == nil && stat.IsDir() {
			outputPath = filepath.Join(outputPath, filepath.Base(c.Meta().Name))
		}

		if err := os.MkdirAll(filepath.Dir(outputPath), 0755); err != nil {
			fmt.Printf("Error creating output directory: %v\n", err)
			return
		}

		outFile, err := os.Create(outputPath)
		if err != nil {
			fmt.Printf("Error creating output file: %v\n", err)
			return
		}
		defer outFile.Close()

		var reader io.Reader = c.Fetch(ctx).Reader()
		if !quiet {
			bar := progressbar.DefaultBytes(c.Meta().Length, "downloading")
			pbReader := progressbar.NewReader(reader, bar)
			reader = &pbReader
		}

		if _, err := io.Copy(outFile, reader); err != nil {
			fmt.Printf("Error reading content: %v\n", err)
			return
		}

		fmt.Printf("Content read successfully: %s/%s -> %s\n", containerID, contentID, outputPath)
	},
}

var contentLocateCmd = &cobra.Command{
	Use:   "locate [container-id] [content-id]",
	Short: "List the chunks of a content",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		c, err := contents.Get(context.Background(), args[0], args[1])
		if err != nil {
			fmt.Printf("Error loading content: %v\n", err)
			return
		}

		meta := c.Meta()
		fmt.Printf("%s %s policy=%s method=%s length=%d version=%d\n",
			meta.ContentID, meta.Fullpath().String(), meta.Policy, meta.ChunkMethod, meta.Length, meta.ChunksVersion)
		for _, chunk := range c.Chunks() {
			fmt.Printf("%-6s %-50s %10d %s\n", chunk.Pos, chunk.URL, chunk.Size, chunk.Checksum)
		}
	},
}

func init() {
	contentPutCmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Suppress progress bars")
	contentPutCmd.Flags().String("policy", "THREECOPIES", "Storage policy")
	contentGetCmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Suppress progress bars")

	contentCmd.AddCommand(contentPutCmd)
	contentCmd.AddCommand(contentGetCmd)
	contentCmd.AddCommand(contentLocateCmd)
	rootCmd.AddCommand(contentCmd)
}
