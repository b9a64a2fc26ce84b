package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dgallion1/docoutline/internal/chunker"
	"github.com/dgallion1/docoutline/internal/version"
)

var (
	treeJSON   bool
	chunkSize  int
	chunksJSON bool
)

var treeCmd = &cobra.Command{
	Use:   "tree FILE",
	Short: "Print the outline tree of a document",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		_, doc, trees, err := outlineFile(cmd, args[0])
		if err != nil {
			return err
		}
		if treeJSON {
			return writeJSON(cmd, trees)
		}
		renderTrees(cmd.OutOrStdout(), doc.Title, trees)
		return nil
	},
}

var chunksCmd = &cobra.Command{
	Use:   "chunks FILE",
	Short: "Flatten a document into retrieval chunks",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if chunkSize <= 0 {
			return fmt.Errorf("--chunk-size must be positive, got %d", chunkSize)
		}
		cat, _, trees, err := outlineFile(cmd, args[0])
		if err != nil {
			return err
		}
		chunks := chunker.Flatten(trees, chunker.Config{ChunkSize: chunkSize}.Fill(cat.Policy()))
		if chunksJSON {
			return writeJSON(cmd, chunks)
		}
		renderChunks(cmd.OutOrStdout(), chunks)
		return nil
	},
}

var levelsCmd = &cobra.Command{
	Use:   "levels FILE",
	Short: "Print the level inferred for each marker type, per paragraph",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cat, p, err := newParser(cmd)
		if err != nil {
			return err
		}
		doc, err := loadDocument(cmd, args[0])
		if err != nil {
			return err
		}
		results, err := p.Analyze(cmd.Context(), strings.Join(doc.Lines(), "\n"))
		if err != nil {
			return err
		}
		renderLevels(cmd.OutOrStdout(), cat, results)
		return nil
	},
}

var catalogsCmd = &cobra.Command{
	Use:   "catalogs",
	Short: "List marker catalogs",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		r, err := registry()
		if err != nil {
			return err
		}
		renderCatalogs(cmd.OutOrStdout(), r)
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "outline %s\n", version.String())
	},
}

func init() {
	treeCmd.Flags().BoolVar(&treeJSON, "json", false, "Print trees as JSON")
	chunksCmd.Flags().IntVarP(&chunkSize, "chunk-size", "s", chunker.DefaultConfig().ChunkSize, "Maximum characters per chunk")
	chunksCmd.Flags().BoolVar(&chunksJSON, "json", false, "Print chunks as JSON")

	rootCmd.AddCommand(treeCmd, chunksCmd, levelsCmd, catalogsCmd, versionCmd)
}

func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}
