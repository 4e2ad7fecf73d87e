package capture

import (
	"strings"
	"testing"
)

func TestSanitizeHTML(t *testing.T) {
	in := `<div id="viewer" onload="steal()"><script>alert(1)</script>` +
		`<a href="javascript:alert(2)">x</a><img src="model.png" onerror="x()"><p>Keep me</p></div>`
	out, err := SanitizeHTML(in)
	if err != nil {
		t.Fatalf("sanitize: %v", err)
	}
	for _, banned := range []string{"<script", "onload", "onerror", "javascript:"} {
		if strings.Contains(out, banned) {
			t.Fatalf("sanitized output still contains %q: %s", banned, out)
		}
	}
	for _, kept := range []string{`id="viewer"`, `src="model.png"`, "Keep me"} {
		if !strings.Contains(out, kept) {
			t.Fatalf("sanitized output lost %q: %s", kept, out)
		}
	}
}
