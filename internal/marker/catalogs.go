package marker

// Chinese numerals accepted inside chapter, section and list markers.
const cnNum = `[一二三四五六七八九十百零〇]+`

// Marker types of the general catalog that the chunker and tests refer to.
const (
	Chapter Type = 1
	Section Type = 2
	Article Type = 3
	Part    Type = 4
)

var generalEntries = []Entry{
	{Chapter, `第` + cnNum + `章\s+`},
	{Section, `第` + cnNum + `节\s+`},
	{Article, `第` + cnNum + `条\s+`},
	{Part, `第` + cnNum + `部分\s+`},
	{5, cnNum + `[、.]`},
	{6, `[（(]` + cnNum + `[）)]`},
	{7, `[1-9]\d*(?:\.[1-9]\d*){4,}\s*`},
	{8, `[1-9]\d*(?:\.[1-9]\d*){3}\s*`},
	{9, `[1-9]\d*(?:\.[1-9]\d*){2}\s*`},
	{10, `[1-9]\d*\.[1-9]\d*\s*`},
	{11, `[1-9]\d*(?:[\s.)]|$)`},
	{12, `[1-9]\d*[、.](?![、.\d])`},
	{13, `[1-9]\d*\s`},
	{14, `[（(][1-9]\d*[）)]`},
	{15, `[（(][a-z][）)]`},
	{16, `(?:I{1,3}|IV|V|VI{0,3}|IX|X)(?![\p{L}\p{N}_])`},
	{17, `[A-Z]\.`},
	{18, `[a-z]\.`},
	{19, `问[：:]`},
}

var fdaEntries = []Entry{
	{1, `(?:I{1,3}|IV|V|VI{1,3}|IX|X)\. |APPENDIX|REFERENCES`},
	{2, `[A-Z]\. `},
	{3, `[1-9]\d*\. `},
	{4, `[a-z]\. `},
	{5, `(?:[1-9]\d*\.)+[1-9]\d* `},
	{6, `\(\d+\) `},
	{7, `\([a-z]\) `},
}

var ichEntries = []Entry{
	{1, `(?:I{1,3}|IV|V|VI{1,3}|IX|X)\. |APPENDIX|REFERENCES`},
	{2, `[A-Z]\. `},
	{3, `[1-9]\d*\. `},
	{4, `[a-z]\. `},
	{5, `[1-9]\d*(?:\.[1-9]\d*){4,} `},
	{6, `[1-9]\d*(?:\.[1-9]\d*){3} `},
	{7, `[1-9]\d*(?:\.[1-9]\d*){2} `},
	{8, `[1-9]\d*\.[1-9]\d* `},
	{9, `\([1-9]\d*\) `},
	{10, `\([a-z]\) `},
}

// Built-in catalogs. They are compiled once and shared.
var (
	General = mustCatalog("general", "Chinese legal and regulatory numbering", generalEntries)
	FDA     = mustCatalog("fda", "FDA guidance numbering (Roman, letter, numeral)", fdaEntries)
	ICH     = mustCatalog("ich", "ICH guideline numbering (Roman, letter, dotted decimal)", ichEntries)
)

func mustCatalog(name, description string, entries []Entry) *PatternCatalog {
	c, err := NewCatalog(name, description, entries, Policy{})
	if err != nil {
		panic(err)
	}
	return c
}

// LooksLikeLaw reports whether more than three lines open a chapter, the
// shape of a statute rather than a guidance document.
func LooksLikeLaw(lines []string) bool {
	n := 0
	for _, l := range lines {
		if t, ok := General.Classify(l); ok && t == Chapter {
			n++
		}
	}
	return n > 3
}
