package exclusion

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shotwatch/shotwatch/pkg/window"
)

func sample(title string) window.WindowInfo {
	return window.WindowInfo{AppName: "editor", WindowTitle: title, DisplayServer: "x11"}
}

func TestApply(t *testing.T) {
	tests := []struct {
		name       string
		excludeAll bool
		patterns   []string
		title      string
		want       string
	}{
		{"case-insensitive match", false, []string{"secret"}, "My Secret Doc", Redacted},
		{"no match", false, []string{"secret"}, "Public Doc", "Public Doc"},
		{"match anywhere", false, []string{"bank"}, "online banking - Firefox", Redacted},
		{"second pattern matches", false, []string{"^foo$", "bar"}, "Crowbar", Redacted},
		{"anchored pattern", false, []string{"^inbox"}, "Re: inbox", "Re: inbox"},
		{"no patterns", false, nil, "anything", "anything"},
		{"exclude all", true, nil, "Public Doc", Redacted},
		{"exclude all ignores patterns", true, []string{"nomatch"}, "Public Doc", Redacted},
		{"empty title exclude all", true, nil, "", Redacted},
		{"empty title no patterns", false, []string{"x"}, "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := Compile(tt.excludeAll, tt.patterns)
			require.NoError(t, err)

			got := p.Apply(sample(tt.title))
			assert.Equal(t, tt.want, got.WindowTitle)
			assert.Equal(t, "editor", got.AppName)
		})
	}
}

func TestApplyIsIdempotent(t *testing.T) {
	titles := []string{"My Secret Doc", "Public Doc", "excluded", "", "SECRET", "top secret notes"}
	policies := []struct {
		excludeAll bool
		patterns   []string
	}{
		{false, nil},
		{false, []string{"secret"}},
		{false, []string{"doc", "public"}},
		{false, []string{"^excluded$"}},
		{true, nil},
		{true, []string{"secret"}},
	}

	for _, pc := range policies {
		p, err := Compile(pc.excludeAll, pc.patterns)
		require.NoError(t, err)

		for _, title := range titles {
			once := p.Apply(sample(title))
			twice := p.Apply(once)
			assert.Equal(t, once, twice, "policy %+v title %q", pc, title)
		}
	}
}

func TestApplyDoesNotUnredact(t *testing.T) {
	p, err := Compile(false, []string{"nothing-matches-this"})
	require.NoError(t, err)

	got := p.Apply(sample(Redacted))
	assert.Equal(t, Redacted, got.WindowTitle)
}

func TestApplyLeavesInputUntouched(t *testing.T) {
	p, err := Compile(true, nil)
	require.NoError(t, err)

	in := sample("Public Doc")
	_ = p.Apply(in)
	assert.Equal(t, "Public Doc", in.WindowTitle)
}

func TestNilPolicy(t *testing.T) {
	var p *Policy
	got := p.Apply(sample("Public Doc"))
	assert.Equal(t, "Public Doc", got.WindowTitle)
}

func TestCompileRejectsInvalidPattern(t *testing.T) {
	_, err := Compile(false, []string{"ok", "(unclosed"})
	require.Error(t, err)

	var perr *PatternError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "(unclosed", perr.Pattern)
	assert.Contains(t, err.Error(), `invalid title pattern "(unclosed"`)
}

func TestCompileRejectsLookahead(t *testing.T) {
	_, err := Compile(false, []string{"foo(?=bar)"})
	assert.Error(t, err)
}

func TestPatterns(t *testing.T) {
	p, err := Compile(false, []string{"secret", "^bank"})
	require.NoError(t, err)

	assert.Equal(t, []string{"secret", "^bank"}, p.Patterns())
	assert.False(t, p.ExcludeAll())
}
