package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseLine(t *testing.T) {
	tests := []struct {
		line    string
		kind    Kind
		payload string
	}{
		{"BROWSER_READY", BrowserReady, ""},
		{"BROWSER_READY\r\n", BrowserReady, ""},
		{"  NAVIGATED \r", Navigated, ""},
		{"CAPTURE_SUCCESS:/tmp/capture_1.png\r", CaptureSuccess, "/tmp/capture_1.png"},
		{"CAPTURE_SUCCESS:C:\\shots\\capture_1.png", CaptureSuccess, "C:\\shots\\capture_1.png"},
		{"CAPTURE_ERROR:timeout: 30000ms exceeded", CaptureError, "timeout: 30000ms exceeded"},
		{"NAV_ERROR:net::ERR_NAME_NOT_RESOLVED", NavError, "net::ERR_NAME_NOT_RESOLVED"},
		{"NAV_ERROR", NavError, ""},
		{"CAPTURING", Capturing, ""},
		{"CAPTURING_MOBILE", CapturingMobile, ""},
		{"FATAL_ERROR:no chrome", FatalError, "no chrome"},
		{"SETTING_VIEWPORT: 390x844", Diagnostic, "SETTING_VIEWPORT: 390x844"},
		{`CURRENT_VIEWPORT: {"width":390}`, Diagnostic, `CURRENT_VIEWPORT: {"width":390}`},
		{"browser_ready", Diagnostic, "browser_ready"},
		{"NAVIGATEDX", Diagnostic, "NAVIGATEDX"},
		{"", Diagnostic, ""},
	}

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			s := ParseLine(tt.line)
			assert.Equal(t, tt.kind, s.Kind)
			assert.Equal(t, tt.payload, s.Payload)
		})
	}
}

func TestStatus_Family(t *testing.T) {
	assert.Equal(t, FamilyNavigate, ParseLine("NAV_ERROR:x").Family())
	assert.Equal(t, FamilyCapture, ParseLine("CAPTURE_SUCCESS:/a").Family())
	assert.Equal(t, FamilyLifecycle, ParseLine("BROWSER_CLOSED").Family())
	assert.Equal(t, FamilyProgress, ParseLine("CAPTURING_MOBILE").Family())
	assert.Equal(t, FamilyNone, ParseLine("KEPT_MOBILE_VIEW").Family())
}

func TestParseCommand(t *testing.T) {
	cmd, arg := ParseCommand("GOTO:https://example.com/a?b=c\r\n")
	assert.True(t, cmd.IsGoto())
	assert.Equal(t, "https://example.com/a?b=c", arg)

	cmd, arg = ParseCommand("CAPTURE_MOBILE\n")
	assert.Equal(t, CmdCaptureMobile, cmd)
	assert.Empty(t, arg)

	assert.Equal(t, Command("GOTO:about:blank"), Goto("about:blank"))
}

func TestNormalizeURL(t *testing.T) {
	assert.Equal(t, "about:blank", NormalizeURL("  "))
	assert.Equal(t, "https://example.com", NormalizeURL("example.com"))
	assert.Equal(t, "http://localhost:3000", NormalizeURL("http://localhost:3000"))
	assert.Equal(t, "https://a.b/c", NormalizeURL(" https://a.b/c\n"))
}

func TestHostname(t *testing.T) {
	assert.Equal(t, "example.com", Hostname("https://example.com/path"))
	assert.Equal(t, "about:blank", Hostname("about:blank"))
	assert.Equal(t, "Global Hotkey", Hostname("Global Hotkey"))
}
