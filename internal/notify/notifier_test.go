package notify

import (
	"strings"
	"testing"
)

func TestRenderAlertIncludesSubjectSeverityAndBody(t *testing.T) {
	html, err := renderAlert(Alert{Subject: "drop rate critical: spring-sale", Severity: "critical", Body: "reduce pacing immediately"})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	for _, want := range []string{"drop rate critical: spring-sale", "critical", "reduce pacing immediately"} {
		if !strings.Contains(html, want) {
			t.Fatalf("expected rendered alert to contain %q, got: %s", want, html)
		}
	}
}
