package feed

import (
	"strings"
	"testing"
)

func TestCleanTextStripsMarkup(t *testing.T) {
	raw := `<p>New   <b>album</b> out&nbsp;now</p><script>track()</script>`

	got := CleanText(raw)
	if got != "New album out now" {
		t.Errorf("Expected 'New album out now', got '%s'", got)
	}
}

func TestCleanTextRemovesBoilerplate(t *testing.T) {
	cases := map[string]string{
		"Tour dates announced. Read more »":                                   "Tour dates announced.",
		"Tour dates announced. [Continue reading...]":                         "Tour dates announced.",
		"Label signs band. The post Label signs band appeared first on Blog.": "Label signs band.",
		"新专辑发布 扫码关注我们":                                                        "新专辑发布",
		"新专辑发布。阅读原文":                                                          "新专辑发布。",
	}

	for raw, want := range cases {
		if got := CleanText(raw); got != want {
			t.Errorf("Expected '%s', got '%s'", want, got)
		}
	}
}

func TestCleanTextKeepsPhrasesInProse(t *testing.T) {
	cases := []string{
		"Fans who read more than one review will notice the album splits critics. The tour starts in May.",
		"Great record. Read more about the band below. The tour starts in May.",
		"Fans scan the code printed on the sleeve to unlock a demo.",
		"点击查看大图后你会发现乐队成员都换了。乐队下月巡演。",
	}

	for _, raw := range cases {
		if got := CleanText(raw); got != raw {
			t.Errorf("Expected '%s', got '%s'", raw, got)
		}
	}
}

func TestCleanTextEmpty(t *testing.T) {
	if got := CleanText("  \n\t "); got != "" {
		t.Errorf("Expected empty string, got '%s'", got)
	}
}

func TestCleanTextNormalizesUnicode(t *testing.T) {
	// "e" followed by a combining acute accent composes to a single rune
	got := CleanText("Beyonce\u0301")
	if got != "Beyonc\u00e9" {
		t.Errorf("Expected NFC composed text, got %q", got)
	}
}

func TestTruncate(t *testing.T) {
	if got := Truncate("short", 10); got != "short" {
		t.Errorf("Expected 'short', got '%s'", got)
	}

	long := strings.Repeat("音", 120)
	got := Truncate(long, 100)
	if !strings.HasSuffix(got, "...") {
		t.Errorf("Expected ellipsis suffix, got '%s'", got)
	}
	if n := len([]rune(strings.TrimSuffix(got, "..."))); n != 100 {
		t.Errorf("Expected 100 runes before the ellipsis, got %d", n)
	}

	if got := Truncate(long, 0); got != long {
		t.Error("Expected non-positive limit to leave the text unchanged")
	}
}
