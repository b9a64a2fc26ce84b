package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/dgallion1/docoutline/internal/doctree"
	"github.com/dgallion1/docoutline/internal/marker"
)

const regulation = "第一章 总则\n第一条 为了规范药品注册行为。\n第二条 本办法适用于境内申请。\n附件\n1. 申请表"

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&bytes.Buffer{})
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestTreeJSON(t *testing.T) {
	path := writeFile(t, "rules.txt", regulation)
	out, err := run(t, "tree", path, "--json", "--catalog", "general")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var trees []doctree.Tree
	if err := json.Unmarshal([]byte(out), &trees); err != nil {
		t.Fatalf("decode: %v\n%s", err, out)
	}
	if len(trees) != 2 {
		t.Fatalf("expected 2 paragraphs, got %d", len(trees))
	}
	if trees[0].Output[0].Block != "第一章 总则" || len(trees[0].Output[0].Children) != 2 {
		t.Errorf("unexpected first tree %+v", trees[0].Output[0])
	}
}

func TestChunksJSON(t *testing.T) {
	path := writeFile(t, "rules.txt", regulation)
	out, err := run(t, "chunks", path, "--json", "--chunk-size", "1500", "--catalog", "general")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var chunks []doctree.Chunk
	if err := json.Unmarshal([]byte(out), &chunks); err != nil {
		t.Fatalf("decode: %v\n%s", err, out)
	}
	if len(chunks) < 3 {
		t.Fatalf("expected at least 3 chunks, got %d", len(chunks))
	}
	if chunks[0].Content != "第一章 总则\n第一条 为了规范药品注册行为。" {
		t.Errorf("unexpected first chunk %q", chunks[0].Content)
	}
	if last := chunks[len(chunks)-1]; !strings.Contains(last.Content, "1. 申请表") || last.Metadata["paragraph"] != float64(1) {
		t.Errorf("expected appendix chunk from paragraph 1, got %+v", last)
	}
}

func TestCommandErrors(t *testing.T) {
	path := writeFile(t, "rules.txt", regulation)
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"unknown catalog", []string{"tree", path, "--catalog", "nope"}, "unknown marker catalog"},
		{"unsupported file", []string{"tree", writeFile(t, "a.doc", "x"), "--catalog", "general"}, "unsupported"},
		{"missing file", []string{"levels", filepath.Join(t.TempDir(), "none.txt")}, "no such file"},
		{"bad chunk size", []string{"chunks", path, "--chunk-size", "0"}, "chunk-size"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := run(t, tt.args...)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}

func TestCatalogsAndVersion(t *testing.T) {
	out, err := run(t, "catalogs")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, name := range []string{"general", "fda", "ich"} {
		if !strings.Contains(out, name) {
			t.Errorf("expected catalog %s in output:\n%s", name, out)
		}
	}

	out, err = run(t, "version")
	if err != nil || !strings.Contains(out, "outline dev") {
		t.Errorf("unexpected version output %q, %v", out, err)
	}
}

func TestRenderTrees(t *testing.T) {
	one := marker.Type(1)
	trees := []*doctree.Tree{{
		MarkerTypes: []marker.Type{1},
		Output: []*doctree.Node{{
			Block:      "第一章 总则",
			Content:    "本章说明",
			MarkerType: &one,
			Level:      1,
			Children: []*doctree.Node{{
				Table: &doctree.Table{Title: "表1 清单", Rows: [][]string{{"a"}, {"b"}}},
			}},
		}},
	}}
	var buf bytes.Buffer
	renderTrees(&buf, "办法", trees)
	out := buf.String()
	for _, want := range []string{"办法", "第一章 总则", "  本章说明", "  [table] 表1 清单 (2 rows)"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in output:\n%s", want, out)
		}
	}
}

func TestRenderLevelsOrdersByLevel(t *testing.T) {
	var buf bytes.Buffer
	renderLevels(&buf, marker.General, []doctree.ParseResult{
		{Content: "第一章 总则", MarkerLevels: map[marker.Type]int{3: 2, 1: 1}},
		{Content: "甲", Error: "cycle"},
	})
	out := buf.String()
	first := strings.Index(out, "type 1 → level 1")
	second := strings.Index(out, "type 3 → level 2")
	if first < 0 || second < 0 || first > second {
		t.Errorf("expected levels in order:\n%s", out)
	}
	if !strings.Contains(out, "cycle") {
		t.Errorf("expected error reason in output:\n%s", out)
	}
}
