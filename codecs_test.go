package docconv

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"golang.org/x/text/encoding/japanese"
)

// convertTo writes content to dir/name, converts it to f and returns the
// output bytes.
func convertTo(t *testing.T, c *Converter, dir, name, content string, f Format, opts map[string]string) []byte {
	t.Helper()
	in := writeFile(t, filepath.Join(dir, name), content)
	res := c.Convert(context.Background(), Request{Input: in, Format: f, Options: opts})
	if res.Err != nil {
		t.Fatalf("convert %s to %s: %v", name, f, res.Err)
	}
	data, err := os.ReadFile(res.Output)
	if err != nil {
		t.Fatal(err)
	}
	return data
}

func TestCSVToJSON(t *testing.T) {
	dir := t.TempDir()
	out := convertTo(t, New(), dir, "people.csv", "name,age\nAda,36\nBob,41\n", JSON, nil)

	var got map[string][]map[string]string
	if err := json.Unmarshal(out, &got); err != nil {
		t.Fatalf("invalid JSON %s: %v", out, err)
	}
	want := []map[string]string{{"name": "Ada", "age": "36"}, {"name": "Bob", "age": "41"}}
	if len(got["data"]) != len(want) {
		t.Fatalf("data = %v", got["data"])
	}
	for i := range want {
		for k, v := range want[i] {
			if got["data"][i][k] != v {
				t.Errorf("record %d %s = %q, want %q", i, k, got["data"][i][k], v)
			}
		}
	}
	// Column order follows the header.
	if !bytes.Contains(out, []byte(`"name": "Ada",`)) {
		t.Errorf("expected indented, ordered output, got %s", out)
	}
}

func TestJSONToCSV(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"records", `{"data":[{"b":"2","a":"1"},{"a":"3","c":true}]}`, "b,a,c\n2,1,\n,3,true\n"},
		{"array of objects", `[{"x":1.5},{"x":null}]`, "x\n1.5\n\n"},
		{"array of arrays", `[["h1","h2"],["v1","v2"]]`, "h1,h2\nv1,v2\n"},
		{"text content", `{"content":"line one\n\nline two"}`, "text\nline one\nline two\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := convertTo(t, New(), t.TempDir(), "in.json", tt.input, CSV, nil)
			if string(out) != tt.want {
				t.Errorf("got %q, want %q", out, tt.want)
			}
		})
	}
}

func TestJSONDecode_Invalid(t *testing.T) {
	for _, input := range []string{`{not json`, `{"a":1} {"b":2}`} {
		_, err := NewJSONDecoder().Decode(context.Background(), strings.NewReader(input), CodecOptions{})
		if err == nil {
			t.Errorf("Decode(%q) succeeded", input)
		}
	}
}

func TestCSVDelimiterOption(t *testing.T) {
	out := convertTo(t, New(), t.TempDir(), "in.csv", "a;b\n1;2\n", TXT, map[string]string{"delimiter": ";"})
	want := "| a | b |\n| --- | --- |\n| 1 | 2 |\n"
	if string(out) != want {
		t.Errorf("got %q, want %q", out, want)
	}
}

func TestCSVCharsetOption(t *testing.T) {
	sjis, err := japanese.ShiftJIS.NewEncoder().String("名前,年齢\n佐藤太郎,30\n三木英子,25\n")
	if err != nil {
		t.Fatal(err)
	}
	out := convertTo(t, New(), t.TempDir(), "sjis.csv", sjis, JSON, map[string]string{"charset": "shift_jis"})
	for _, want := range []string{"佐藤太郎", "三木英子", "名前"} {
		if !strings.Contains(string(out), want) {
			t.Errorf("output missing %q: %s", want, out)
		}
	}
}

func TestTextToJSON(t *testing.T) {
	input := "# Quarterly Report\n\nRevenue grew.\nCosts fell.\n\n| k | v |\n| --- | --- |\n| a | 1 |\n"
	out := convertTo(t, New(), t.TempDir(), "report.md", input, JSON, nil)

	var got struct {
		Title     string   `json:"title"`
		Content   string   `json:"content"`
		Lines     []string `json:"lines"`
		LineCount int      `json:"line_count"`
		Tables    []struct {
			Rows [][]string `json:"rows"`
		} `json:"tables"`
	}
	if err := json.Unmarshal(out, &got); err != nil {
		t.Fatalf("invalid JSON %s: %v", out, err)
	}
	if got.Title != "Quarterly Report" {
		t.Errorf("title = %q", got.Title)
	}
	if got.LineCount != len(got.Lines) || got.LineCount != 5 {
		t.Errorf("line_count = %d, lines = %v", got.LineCount, got.Lines)
	}
	if len(got.Tables) != 1 || got.Tables[0].Rows[1][1] != "1" {
		t.Errorf("tables = %+v", got.Tables)
	}
}

func TestTitleOption(t *testing.T) {
	input := "# Quarterly Report\n\nRevenue grew.\n"
	out := convertTo(t, New(), t.TempDir(), "report.md", input, JSON, map[string]string{"title": "Board Summary"})

	var got struct {
		Title string `json:"title"`
	}
	if err := json.Unmarshal(out, &got); err != nil {
		t.Fatalf("invalid JSON %s: %v", out, err)
	}
	if got.Title != "Board Summary" {
		t.Errorf("title = %q, want the option value", got.Title)
	}
}

func TestTextDocxRoundTrip(t *testing.T) {
	dir := t.TempDir()
	c := New()
	input := "# Project Plan\n\nThe first milestone ships in spring.\n\n## Risks\n\n| Risk | Owner |\n| --- | --- |\n| Delay | Ops |\n"
	docx := convertTo(t, c, dir, "plan.txt", input, DOCX, nil)
	if !bytes.HasPrefix(docx, []byte("PK")) {
		t.Fatalf("DOCX is not a zip archive")
	}

	res := c.Convert(context.Background(), Request{Input: filepath.Join(dir, "plan.docx"), Output: filepath.Join(dir, "back.txt")})
	if res.Err != nil {
		t.Fatal(res.Err)
	}
	out, _ := os.ReadFile(res.Output)
	for _, want := range []string{"# Project Plan", "The first milestone ships in spring.", "## Risks", "| Delay | Ops |"} {
		if !strings.Contains(string(out), want) {
			t.Errorf("round trip lost %q:\n%s", want, out)
		}
	}
}

func TestSpreadsheetRoundTrip(t *testing.T) {
	dir := t.TempDir()
	c := New()
	input := `{"People":[{"name":"Ada","role":"eng"}],"Cities":[{"city":"Oslo"}]}`
	xlsx := convertTo(t, c, dir, "book.json", input, XLSX, nil)
	if !bytes.HasPrefix(xlsx, []byte("PK")) {
		t.Fatal("XLSX is not a zip archive")
	}

	res := c.Convert(context.Background(), Request{Input: filepath.Join(dir, "book.xlsx"), Output: filepath.Join(dir, "back.json")})
	if res.Err != nil {
		t.Fatal(res.Err)
	}
	out, _ := os.ReadFile(res.Output)
	var got map[string][]map[string]string
	if err := json.Unmarshal(out, &got); err != nil {
		t.Fatalf("invalid JSON %s: %v", out, err)
	}
	if got["People"][0]["name"] != "Ada" || got["Cities"][0]["city"] != "Oslo" {
		t.Errorf("round trip = %v", got)
	}

	// A single sheet can be picked for CSV output.
	res = c.Convert(context.Background(), Request{
		Input:   filepath.Join(dir, "book.xlsx"),
		Output:  filepath.Join(dir, "cities.csv"),
		Options: map[string]string{"sheet": "Cities"},
	})
	if res.Err != nil {
		t.Fatal(res.Err)
	}
	out, _ = os.ReadFile(res.Output)
	if string(out) != "city\nOslo\n" {
		t.Errorf("sheet CSV = %q", out)
	}
}

func TestMaxRows(t *testing.T) {
	rules := DefaultQualityRules()
	p, _ := rules.Resolve(CSV, QualityLow)
	p.MaxRows = 2
	rules.Set(CSV, QualityLow, p)
	c := New(WithQualityRules(rules))

	in := writeFile(t, filepath.Join(t.TempDir(), "in.json"), `[[1],[2],[3],[4]]`)
	res := c.Convert(context.Background(), Request{Input: in, Format: CSV, Quality: QualityLow})
	if res.Err != nil {
		t.Fatal(res.Err)
	}
	out, _ := os.ReadFile(res.Output)
	if string(out) != "1\n2\n3\n" {
		t.Errorf("got %q", out)
	}
}

func TestJSONIndentFollowsQuality(t *testing.T) {
	dir := t.TempDir()
	c := New()
	indented := convertTo(t, c, dir, "high.csv", "a\n1\n", JSON, nil)
	in := writeFile(t, filepath.Join(dir, "compact.csv"), "a\n1\n")
	res := c.Convert(context.Background(), Request{Input: in, Format: JSON, Quality: QualityLow})
	if res.Err != nil {
		t.Fatal(res.Err)
	}
	compact, _ := os.ReadFile(res.Output)
	if string(compact) != "{\"data\":[{\"a\":\"1\"}]}\n" {
		t.Errorf("low quality JSON = %q", compact)
	}
	if !bytes.Contains(indented, []byte("\n  ")) {
		t.Errorf("high quality JSON not indented: %q", indented)
	}
}

func TestPDFOutput(t *testing.T) {
	dir := t.TempDir()
	out := convertTo(t, New(), dir, "note.txt", "# Hello PDF\n\nSome body text.\n\n| a | b |\n| --- | --- |\n| 1 | 2 |\n", PDF, nil)
	if !bytes.HasPrefix(out, []byte("%PDF-")) {
		t.Fatalf("output does not start with %%PDF-: %q", out[:min(len(out), 16)])
	}
	if testing.Short() {
		t.Skip("skipping PDF text extraction in short mode")
	}

	res := New().Convert(context.Background(), Request{Input: filepath.Join(dir, "note.pdf"), Format: TXT})
	if res.Err != nil {
		t.Fatal(res.Err)
	}
	text, _ := os.ReadFile(res.Output)
	for _, want := range []string{"Hello PDF", "Some body text."} {
		if !strings.Contains(string(text), want) {
			t.Errorf("extracted text missing %q:\n%s", want, text)
		}
	}
}

func TestNormalizeOutput(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"", ""},
		{"\n\n", ""},
		{"a  \r\nb\n\n\n\nc", "a\nb\n\nc\n"},
		{"x\x00y\n", "xy\n"},
	}
	for _, tt := range tests {
		if got := normalizeOutput(tt.in); got != tt.want {
			t.Errorf("normalizeOutput(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestUniqueSheetName(t *testing.T) {
	used := map[string]bool{}
	names := []string{
		uniqueSheetName("Data", 1, used),
		uniqueSheetName("Data", 2, used),
		uniqueSheetName("a/b:c", 3, used),
		uniqueSheetName(strings.Repeat("x", 40), 4, used),
	}
	if names[0] != "Data" || names[0] == names[1] {
		t.Errorf("names = %v", names)
	}
	if strings.ContainsAny(names[2], "/:") {
		t.Errorf("invalid characters kept: %q", names[2])
	}
	if n := len([]rune(names[3])); n > 31 {
		t.Errorf("name has %d runes", n)
	}
}
