package security_test

import (
	"strings"
	"testing"

	"github.com/g960059/sweepview/internal/security"
)

func TestRedactText(t *testing.T) {
	in := `token=abc123 access_token="quoted-token" password:supersecret password='quoted-pass' Authorization: Basic dXNlcjpwYXNz {"refresh_token":"jsonsecret","api_key":"jsonkey"}`
	out := security.RedactText(in)
	if strings.Contains(out, "abc123") || strings.Contains(out, "quoted-token") || strings.Contains(out, "supersecret") || strings.Contains(out, "quoted-pass") ||
		strings.Contains(out, "dXNlcjpwYXNz") ||
		strings.Contains(out, "jsonsecret") || strings.Contains(out, "jsonkey") {
		t.Fatalf("secret value leaked after redaction: %q", out)
	}
	if !strings.Contains(out, "[REDACTED]") {
		t.Fatalf("expected redaction marker in output: %q", out)
	}
}

func TestRedactTextCookieAndBearer(t *testing.T) {
	in := "bearer tokenxyz\nCookie: foo=bar; sessionid=secret"
	out := security.RedactText(in)
	if strings.Contains(out, "tokenxyz") || strings.Contains(out, "foo=bar") || strings.Contains(out, "sessionid=secret") {
		t.Fatalf("secret value leaked after redaction: %q", out)
	}
}

func TestRedactTextLeavesReplayTextAlone(t *testing.T) {
	in := "Tommy 3BV:7 Time: 3.20 Arbiter 0.52.3"
	if out := security.RedactText(in); out != in {
		t.Fatalf("expected plain text untouched, got %q", out)
	}
}

func TestMaskToken(t *testing.T) {
	cases := map[string]string{
		"":        "",
		"  ":      "",
		"tkolar":  "t***",
		"Österle": "Ö***",
		"x":       "x***",
	}
	for in, want := range cases {
		if got := security.MaskToken(in); got != want {
			t.Fatalf("MaskToken(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestRedactMetadata(t *testing.T) {
	md := map[string]string{
		"player.token":    "tkolar",
		"player.name":     "Thomas",
		"result.NICK":     "tkolar",
		"footer.Comments": "api_key=live-secret-123",
		"bbbv":            "14",
	}
	out := security.RedactMetadata(md, "tkolar")

	if out["player.token"] != "[REDACTED]" {
		t.Fatalf("expected token key to be redacted, got %q", out["player.token"])
	}
	if out["result.NICK"] != "t***" {
		t.Fatalf("expected best token to be masked, got %q", out["result.NICK"])
	}
	if strings.Contains(out["footer.Comments"], "live-secret-123") {
		t.Fatalf("secret leaked from footer: %q", out["footer.Comments"])
	}
	if out["bbbv"] != "14" || out["player.name"] != "Thomas" {
		t.Fatalf("unexpected passthrough values: %v", out)
	}
	if md["player.token"] != "tkolar" {
		t.Fatalf("input metadata must not be modified")
	}
}
