package main

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/dgallion1/docoutline/internal/doctree"
	"github.com/dgallion1/docoutline/internal/marker"
	"github.com/dgallion1/docoutline/internal/outline"
	"github.com/dgallion1/docoutline/internal/parser"
	"github.com/dgallion1/docoutline/internal/version"
)

var (
	catalogName string
	catalogDir  string
	maxLines    int
	verbose     bool
)

var rootCmd = &cobra.Command{
	Use:   "outline",
	Short: "Outline numbered regulatory and legal documents",
	Long: `outline infers the heading hierarchy of numbered documents (第一章, 第一条,
（一）, 1., I., A. ...) and prints it as a tree, as retrieval chunks, or as the
level assigned to each marker type.

FILE may be .txt, .md, .html, .docx, .pdf or .csv. Use - to read text from stdin.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.Version = version.Version
	rootCmd.SetVersionTemplate(fmt.Sprintf("outline %s\n", version.String()))

	rootCmd.PersistentFlags().StringVarP(&catalogName, "catalog", "c", "general", "Marker catalog")
	rootCmd.PersistentFlags().StringVar(&catalogDir, "catalog-dir", os.Getenv("CATALOG_DIR"), "Directory of custom catalog YAML files")
	rootCmd.PersistentFlags().IntVar(&maxLines, "max-lines", outline.DefaultMaxLines, "Reject documents longer than this (0 = unlimited)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log cycles and fallbacks to stderr")
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render(err.Error()))
		os.Exit(1)
	}
}

func logger(cmd *cobra.Command) *slog.Logger {
	if !verbose {
		return slog.New(slog.DiscardHandler)
	}
	return slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func registry() (*marker.Registry, error) {
	r := marker.NewRegistry()
	if catalogDir != "" {
		if _, err := r.LoadDir(catalogDir); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// newParser resolves the selected catalog.
func newParser(cmd *cobra.Command) (*marker.PatternCatalog, *outline.Parser, error) {
	r, err := registry()
	if err != nil {
		return nil, nil, err
	}
	cat, err := r.Lookup(catalogName)
	if err != nil {
		return nil, nil, err
	}
	return cat, outline.New(cat, logger(cmd), outline.WithMaxLines(maxLines)), nil
}

// loadDocument extracts a document from path, or reads text from stdin
// when path is "-".
func loadDocument(cmd *cobra.Command, path string) (*doctree.Document, error) {
	if path == "-" {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return nil, err
		}
		return (&parser.TextParser{}).Parse(bytes.NewReader(data), "stdin.txt")
	}
	p, err := parser.ForFile(path)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return p.Parse(f, path)
}

// outlineFile loads and parses path. Paragraph-level errors are reported as
// warnings; only a rejected document fails the command.
func outlineFile(cmd *cobra.Command, path string) (*marker.PatternCatalog, *doctree.Document, []*doctree.Tree, error) {
	cat, p, err := newParser(cmd)
	if err != nil {
		return nil, nil, nil, err
	}
	doc, err := loadDocument(cmd, path)
	if err != nil {
		return nil, nil, nil, err
	}
	trees, err := p.ParseDocument(cmd.Context(), doc)
	if trees == nil && err != nil {
		return nil, nil, nil, err
	}
	if err != nil {
		fmt.Fprintln(cmd.ErrOrStderr(), warnStyle.Render("warning: "+err.Error()))
	}
	return cat, doc, trees, nil
}
