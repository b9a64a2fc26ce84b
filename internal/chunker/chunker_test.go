package chunker

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/dgallion1/docoutline/internal/doctree"
	"github.com/dgallion1/docoutline/internal/marker"
	"github.com/dgallion1/docoutline/internal/outline"
)

func typ(t marker.Type) *marker.Type { return &t }

func parse(t *testing.T, text string) []*doctree.Tree {
	t.Helper()
	trees, err := outline.New(marker.General, nil).ParseText(context.Background(), text)
	if err != nil {
		t.Fatalf("unexpected parse error: %v", err)
	}
	return trees
}

func TestFlatten_ArticlesUnderChapters(t *testing.T) {
	text := strings.Join([]string{
		"第一章 总则",
		"第一条 为了规范药品注册",
		"第二条 本办法适用于境内申请",
		"第二章 申请",
		"第三条 申请人应当提交",
		"（一）申请表",
		"（二）证明文件",
	}, "\n")
	chunks := Flatten(parse(t, text), DefaultConfig())

	want := []string{
		"第一章 总则\n第一条 为了规范药品注册",
		"第一章 总则\n第二条 本办法适用于境内申请",
		"第二章 申请\n第三条 申请人应当提交\n（一）申请表",
		"第二章 申请\n第三条 申请人应当提交\n（二）证明文件",
	}
	if len(chunks) != len(want) {
		t.Fatalf("expected %d chunks, got %d: %+v", len(want), len(chunks), chunks)
	}
	for i := range want {
		if chunks[i].Content != want[i] {
			t.Errorf("chunk %d: expected %q, got %q", i, want[i], chunks[i].Content)
		}
		if chunks[i].Metadata["index"] != i {
			t.Errorf("chunk %d: expected index %d, got %v", i, i, chunks[i].Metadata["index"])
		}
	}
	if chunks[2].Metadata["marker_type"] != 6 {
		t.Errorf("expected marker_type 6, got %v", chunks[2].Metadata["marker_type"])
	}
	bc, _ := chunks[2].Metadata["breadcrumb"].([]string)
	if len(bc) != 2 || bc[1] != "第三条 申请人应当提交" {
		t.Errorf("expected breadcrumb through the article, got %v", bc)
	}
}

func TestFlatten_TableRowsSplitOnBudget(t *testing.T) {
	tbl := &doctree.Table{
		Title: "表1 药品清单",
		Rows: [][]string{
			{"名称", "规格"},
			{"阿莫西林胶囊", "0.25g"},
			{"布洛芬缓释胶囊", "0.3g"},
			{"对乙酰氨基酚片", "0.5g"},
			{"维生素C片", "100mg"},
		},
	}
	tree := &doctree.Tree{
		MarkerTypes: []marker.Type{1},
		Output: []*doctree.Node{{
			Block:      "第一章 总则",
			MarkerType: typ(1),
			Level:      1,
			Children:   []*doctree.Node{{Table: tbl}},
		}},
	}
	chunks := FlattenTree(tree, Config{ChunkSize: 50})

	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d: %+v", len(chunks), chunks)
	}
	prefix := "第一章 总则\n表1 药品清单\n"
	for i, c := range chunks {
		if !strings.HasPrefix(c.Content, prefix) {
			t.Errorf("chunk %d: expected title prefix, got %q", i, c.Content)
		}
		if n := utf8.RuneCountInString(c.Content); n > 50 {
			t.Errorf("chunk %d: %d characters exceeds budget", i, n)
		}
		if c.Metadata["table"] != true {
			t.Errorf("chunk %d: expected table metadata", i)
		}
	}
	all := chunks[0].Content + chunks[1].Content
	for _, row := range tbl.Rows {
		if !strings.Contains(all, strings.Join(row, "|")) {
			t.Errorf("expected row %v in output", row)
		}
	}
}

func TestFlatten_TableCellsCleaned(t *testing.T) {
	tbl := &doctree.Table{Title: " 表2　检验项目 ", Rows: [][]string{{"性状", "白色  粉末"}}}
	chunks := FlattenTree(&doctree.Tree{Output: []*doctree.Node{{Table: tbl}}}, DefaultConfig())
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
	if chunks[0].Content != "表2 检验项目\n性状|白色 粉末" {
		t.Errorf("expected cleaned table chunk, got %q", chunks[0].Content)
	}
}

func TestFlatten_HeadingContentKept(t *testing.T) {
	chunks := Flatten(parse(t, "第一章 总则\n本章说明目的\n第一条 细则"), DefaultConfig())
	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d: %+v", len(chunks), chunks)
	}
	if chunks[0].Content != "第一章 总则\n本章说明目的" {
		t.Errorf("expected heading content chunk, got %q", chunks[0].Content)
	}
}

func TestFlatten_HeadingLeafEmitsPath(t *testing.T) {
	chunks := Flatten(parse(t, "第一章 总则\n第二章 附则\n第一条 施行日期"), DefaultConfig())
	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d: %+v", len(chunks), chunks)
	}
	if chunks[0].Content != "第一章 总则" {
		t.Errorf("expected path-only chunk, got %q", chunks[0].Content)
	}
}

func TestFlatten_FallbackAndEmpty(t *testing.T) {
	chunks := Flatten(parse(t, "甲\n乙"), DefaultConfig())
	if len(chunks) != 1 || chunks[0].Content != "甲\n乙" {
		t.Errorf("expected single content chunk, got %+v", chunks)
	}
	if chunks := Flatten(parse(t, ""), DefaultConfig()); len(chunks) != 0 {
		t.Errorf("expected no chunks for empty input, got %d", len(chunks))
	}
}

func TestFlatten_LongContentSplitsOnLines(t *testing.T) {
	lines := []string{"第一章 总则"}
	for i := range 10 {
		lines = append(lines, fmt.Sprintf("说明文字第%02d行内容较长", i))
	}
	chunks := Flatten(parse(t, strings.Join(lines, "\n")), Config{ChunkSize: 40})
	if len(chunks) < 2 {
		t.Fatalf("expected content to be split, got %d chunks", len(chunks))
	}
	for i, c := range chunks {
		if !strings.HasPrefix(c.Content, "第一章 总则\n") {
			t.Errorf("chunk %d: expected heading prefix, got %q", i, c.Content)
		}
		if n := utf8.RuneCountInString(c.Content); n > 40 {
			t.Errorf("chunk %d: %d characters exceeds budget", i, n)
		}
	}
}

func TestFlatten_RoundTripKeepsEveryLine(t *testing.T) {
	text := strings.Join([]string{
		"前言说明",
		"第一章 总则",
		"第一条 目的",
		"条文内容一",
		"第二条 范围",
		"（一）境内",
		"（二）境外",
		"补充说明",
		"第二章 附则",
		"第三条 施行",
		"附件",
		"1. 表格",
		"2. 说明",
		"(1) 细项",
	}, "\n")
	chunks := Flatten(parse(t, text), Config{ChunkSize: 30})
	var all strings.Builder
	for _, c := range chunks {
		all.WriteString(c.Content)
		all.WriteByte('\n')
	}
	for _, line := range strings.Split(text, "\n") {
		if !strings.Contains(all.String(), line) {
			t.Errorf("line %q missing from chunks", line)
		}
	}
}

func TestFlatten_ParagraphMetadata(t *testing.T) {
	chunks := Flatten(parse(t, "第一章 总则\n第一条 a\n附件\n1. b"), DefaultConfig())
	last := chunks[len(chunks)-1]
	if last.Metadata["paragraph"] != 1 {
		t.Errorf("expected last chunk from paragraph 1, got %v", last.Metadata["paragraph"])
	}
}

func TestPushMergesCoveredChunks(t *testing.T) {
	f := &flattener{cfg: DefaultConfig()}
	f.push("A", nil, nil, false)
	f.push("A\nB", nil, nil, false)
	f.push("B", nil, nil, false)
	f.push("C", nil, nil, false)
	if len(f.chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d: %+v", len(f.chunks), f.chunks)
	}
	if f.chunks[0].Content != "A\nB" || f.chunks[1].Content != "C" {
		t.Errorf("unexpected chunks %+v", f.chunks)
	}
	f.push("CD", nil, nil, false)
	if len(f.chunks) != 3 {
		t.Errorf("expected non line-aligned prefix to stay separate, got %d chunks", len(f.chunks))
	}
}

func TestWithPolicy(t *testing.T) {
	cfg := DefaultConfig().WithPolicy(marker.Policy{HeadingTypes: []marker.Type{7}})
	if len(cfg.HeadingTypes) != 1 || cfg.HeadingTypes[0] != 7 {
		t.Errorf("expected heading types [7], got %v", cfg.HeadingTypes)
	}
	if len(cfg.ArticleTypes) != 1 || cfg.ArticleTypes[0] != marker.Article {
		t.Errorf("expected default article types kept, got %v", cfg.ArticleTypes)
	}
}

func TestFillKeepsExplicitTypes(t *testing.T) {
	cfg := Config{HeadingTypes: []marker.Type{9}}.Fill(marker.Policy{
		HeadingTypes: []marker.Type{1},
		ArticleTypes: []marker.Type{3},
	})
	if len(cfg.HeadingTypes) != 1 || cfg.HeadingTypes[0] != 9 {
		t.Errorf("expected explicit heading types kept, got %v", cfg.HeadingTypes)
	}
	if len(cfg.ArticleTypes) != 1 || cfg.ArticleTypes[0] != 3 {
		t.Errorf("expected article types from policy, got %v", cfg.ArticleTypes)
	}
}

func TestEstimateTokens(t *testing.T) {
	tests := []struct {
		in   string
		want int
	}{
		{"", 0},
		{"hello world", 2},
		{"中文", 2},
		{"中文 hello", 3},
	}
	for _, tt := range tests {
		if got := EstimateTokens(tt.in); got != tt.want {
			t.Errorf("EstimateTokens(%q): expected %d, got %d", tt.in, tt.want, got)
		}
	}
}
