package jsrewrite

import (
	"strings"
	"testing"
	"time"
)

func TestRenameLocation(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"member", "window.location.href", "window.__mcopLocation.href"},
		{"bare identifier", `location.href = "/"`, `__mcopLocation.href = "/"`},
		{
			"string literal",
			`var b = this.locationModel.get("location")`,
			`var b = this.locationModel.get("__mcopLocation")`,
		},
		{"css class", `e.className = "sc-location-loader"`, `e.className = "sc-location-loader"`},
		{"url literal", `var u = "https://example.com/location"`, `var u = "https://example.com/location"`},
		{"regexp literal", `var r = /location/g`, `var r = /location/g`},
		{"longer identifier", "var locationModel = 1", "var locationModel = 1"},
		{"destructuring", "var {location} = window", "var {__mcopLocation} = window"},
		{"object key", "var o = {location: 1}", "var o = {__mcopLocation: 1}"},
		{"quoted object key", `var o = {"location": 1}`, `var o = {"__mcopLocation": 1}`},
		{"object value", "var o = {a: document.location}", "var o = {a: document.__mcopLocation}"},
		{"no token", "var a = 1", "var a = 1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := RenameLocation(tt.src); got != tt.want {
				t.Errorf("RenameLocation(%q) = %q, want %q", tt.src, got, tt.want)
			}
		})
	}
}

func TestRenameLocationCountsEdits(t *testing.T) {
	res, err := Rewrite("location.reload(); top.location = location.href", ModeLocation)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := "__mcopLocation.reload(); top.__mcopLocation = __mcopLocation.href"
	if res.Output != want {
		t.Errorf("output = %q, want %q", res.Output, want)
	}
	if res.Edits != 3 {
		t.Errorf("edits = %d, want 3", res.Edits)
	}
	if res.Tolerant {
		t.Error("strict parse expected")
	}
}

func TestRenameLocationBrokenScript(t *testing.T) {
	res, err := Rewrite("window.location.href = ;", ModeLocation)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Tolerant {
		t.Error("expected tolerant parse")
	}
	if !strings.Contains(res.Output, "window.__mcopLocation.href") {
		t.Errorf("output = %q, want location renamed", res.Output)
	}
}

func TestRenameLocationTemplatesAndComments(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{
			"url template",
			"fetch(`/api?type=location&x=1`).then(f)",
			"fetch(`/api?type=location&x=1`).then(f)",
		},
		{
			"css template",
			"e.className = `sc-location-${n}`",
			"e.className = `sc-location-${n}`",
		},
		{
			"template substitution",
			"var h = `${location.href}`",
			"var h = `${__mcopLocation.href}`",
		},
		{
			"block comment inside member",
			"(function(){ /* read location here */ f() }).call(this)",
			"(function(){ /* read location here */ f() }).call(this)",
		},
		{
			"line comment inside member",
			"(function(){ // location\n f() }).call(this)",
			"(function(){ // location\n f() }).call(this)",
		},
		{
			"comment next to a rename",
			"window.location.href /* location */",
			"window.__mcopLocation.href /* location */",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := RenameLocation(tt.src); got != tt.want {
				t.Errorf("RenameLocation(%q) = %q, want %q", tt.src, got, tt.want)
			}
		})
	}
}

func TestRenameLocationTemplateTextIndependentOfEnclosingMember(t *testing.T) {
	body := "function(){ var s = `Your location is ${x}`; /* read location here */ }"
	bare := RenameLocation("(" + body + ")")
	called := RenameLocation("(" + body + ").call(this)")

	if !strings.HasPrefix(called, bare) {
		t.Errorf("wrapped output %q does not extend bare output %q", called, bare)
	}
	if !strings.Contains(bare, "/* read location here */") {
		t.Errorf("comment rewritten: %q", bare)
	}
}

func TestRenameLocationScales(t *testing.T) {
	if testing.Short() {
		t.Skip("timing test")
	}
	block := `var o={location:x.location.y,u:"http://a/location.js"};`
	want := `var o={__mcopLocation:x.__mcopLocation.y,u:"http://a/location.js"};`
	if got := RenameLocation(block); got != want {
		t.Fatalf("RenameLocation(%q) = %q, want %q", block, got, want)
	}

	best := func(src string) time.Duration {
		var min time.Duration
		for i := 0; i < 3; i++ {
			start := time.Now()
			RenameLocation(src)
			if d := time.Since(start); i == 0 || d < min {
				min = d
			}
		}
		return min
	}
	small := best(strings.Repeat(block, 2000))
	large := best(strings.Repeat(block, 8000))
	// Four times the input; a quadratic pass would take about sixteen times as long.
	if large > 8*small+50*time.Millisecond {
		t.Errorf("4x input took %v, 1x took %v", large, small)
	}
}

func TestRenameLocationNeverFails(t *testing.T) {
	src := "}}}{{{ location ((("
	got := RenameLocation(src)
	if got == "" {
		t.Fatal("empty output")
	}
}

func TestWrapPostMessage(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{
			"message only",
			"self.postMessage([e,a,c])",
			"self.postMessage(_mcopPreparePostMessageMsg([e,a,c]))",
		},
		{
			"message and origin",
			`a.postMessage(m, "*")`,
			`a.postMessage(_mcopPreparePostMessageMsg(m), _mcopPreparePostMessageOrigin("*"))`,
		},
		{
			"transfer list untouched",
			`w.postMessage(m, "*", [buf])`,
			`w.postMessage(_mcopPreparePostMessageMsg(m), _mcopPreparePostMessageOrigin("*"), [buf])`,
		},
		{
			"nested calls",
			"a.postMessage(b.postMessage(x))",
			"a.postMessage(_mcopPreparePostMessageMsg(b.postMessage(_mcopPreparePostMessageMsg(x))))",
		},
		{
			"newlines stripped",
			"w.postMessage({\na: 1\n})",
			"w.postMessage(_mcopPreparePostMessageMsg({a: 1}))",
		},
		{
			"function body keeps line breaks",
			"w.postMessage(function(){\n var a = 1\n var b = 2\n return a\n}, \"*\")",
			"w.postMessage(_mcopPreparePostMessageMsg(function(){\n var a = 1\n var b = 2\n return a\n}), _mcopPreparePostMessageOrigin(\"*\"))",
		},
		{
			"arrow body keeps line breaks",
			"w.postMessage(() => {\n f()\n g()\n})",
			"w.postMessage(_mcopPreparePostMessageMsg(() => {\n f()\n g()\n}))",
		},
		{
			"line continuation kept",
			"w.postMessage(\"a\\\nb\")",
			"w.postMessage(_mcopPreparePostMessageMsg(\"a\\\nb\"))",
		},
		{
			"template keeps line breaks",
			"w.postMessage(`a\nb`)",
			"w.postMessage(_mcopPreparePostMessageMsg(`a\nb`))",
		},
		{
			"newlines kept around comments",
			"w.postMessage({ // c\na: 1})",
			"w.postMessage(_mcopPreparePostMessageMsg({ // c\na: 1}))",
		},
		{"spread argument", "w.postMessage(...args)", "w.postMessage(...args)"},
		{"no arguments", "w.postMessage()", "w.postMessage()"},
		{"too many arguments", "w.postMessage(a, b, c, d)", "w.postMessage(a, b, c, d)"},
		{"bare call", "postMessage(m)", "postMessage(m)"},
		{"no token", "var a = 1", "var a = 1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := WrapPostMessage(tt.src)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("WrapPostMessage(%q) = %q, want %q", tt.src, got, tt.want)
			}
		})
	}
}

func TestWrapPostMessageTruncatedCall(t *testing.T) {
	res, err := Rewrite("a.postMessage(m,", ModePostMessage)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(res.Output, "_mcopPreparePostMessageMsg(m)") {
		t.Errorf("output = %q, want message wrapped", res.Output)
	}
	if strings.Contains(res.Output, PostMessageOriginWrap+"(") {
		t.Errorf("output = %q, want missing origin left alone", res.Output)
	}
}

func TestWrapPostMessageSequence(t *testing.T) {
	got, err := WrapPostMessage("w.postMessage((a, b))")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(got, "_mcopPreparePostMessageMsg((a, b))") {
		t.Errorf("got %q, want sequence kept as one argument", got)
	}
}

func TestWrapPostMessageDuplicates(t *testing.T) {
	src := "w.postMessage(m); w.postMessage(m)"
	got, err := WrapPostMessage(src)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := "w.postMessage(_mcopPreparePostMessageMsg(m)); w.postMessage(_mcopPreparePostMessageMsg(m))"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestRewriteModes(t *testing.T) {
	src := "window.location.href; w.postMessage(m)"

	res, err := Rewrite(src, ModeLocation)
	if err != nil {
		t.Fatalf("location: %v", err)
	}
	if strings.Contains(res.Output, PostMessageMsgWrap) || !strings.Contains(res.Output, LocationAlias) {
		t.Errorf("location pass output = %q", res.Output)
	}

	res, err = Rewrite(src, ModePostMessage)
	if err != nil {
		t.Fatalf("postmessage: %v", err)
	}
	if strings.Contains(res.Output, LocationAlias) || !strings.Contains(res.Output, PostMessageMsgWrap) {
		t.Errorf("postMessage pass output = %q", res.Output)
	}

	res, err = Rewrite(src, 0)
	if err != nil || res.Output != src {
		t.Errorf("zero mode = %q, %v; want source unchanged", res.Output, err)
	}
}

func TestParseMode(t *testing.T) {
	tests := []struct {
		in   string
		want Mode
		ok   bool
	}{
		{"location", ModeLocation, true},
		{"PostMessage", ModePostMessage, true},
		{"none", 0, false},
		{"", 0, false},
		{"bogus", 0, false},
	}
	for _, tt := range tests {
		got, ok := ParseMode(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("ParseMode(%q) = %v, %v; want %v, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
	if ModeLocation.String() != "location" || ModePostMessage.String() != "postmessage" || Mode(0).String() != "none" {
		t.Error("unexpected Mode.String values")
	}
}
