package web

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractContent_TruncatesLongText(t *testing.T) {
	body := strings.Repeat("a", 20000)

	_, text := ExtractContent(body)

	require.True(t, strings.HasSuffix(text, TruncationMarker))
	assert.Equal(t, MaxContentChars, utf8.RuneCountInString(strings.TrimSuffix(text, TruncationMarker)))
	assert.Equal(t, strings.Repeat("a", MaxContentChars)+TruncationMarker, text)
}

func TestExtractContent_ShortTextUntouched(t *testing.T) {
	_, text := ExtractContent("<p>short page</p>")
	assert.Equal(t, "short page", text)
}

func TestExtractContent_PreservesCodeBlocks(t *testing.T) {
	markup := `<html><body><main>
<p>Loop example:</p>
<pre><code>for (i=0;i<10;i++){}</code></pre>
<p>Done.</p>
</main></body></html>`

	_, text := ExtractContent(markup)

	assert.Contains(t, text, "```\nfor (i=0;i<10;i++){}\n```")
	assert.NotContains(t, text, "&lt;")
	assert.Contains(t, text, "Loop example:")
	assert.Contains(t, text, "Done.")
	assert.NotContains(t, text, "WEBSCOUTCODEBLOCK")
}

func TestExtractContent_CodeWhitespaceKept(t *testing.T) {
	markup := "<article><pre>func main() {\n\n\n\n\tif a &amp;&amp; b {\n\t\treturn\n\t}\n}</pre></article>"

	_, text := ExtractContent(markup)

	assert.Equal(t, "```\nfunc main() {\n\n\n\n\tif a && b {\n\t\treturn\n\t}\n}\n```", text)
}

func TestExtractContent_StandaloneCode(t *testing.T) {
	_, text := ExtractContent(`<main><p>Call <code>x &lt; y</code> first.</p></main>`)
	assert.Contains(t, text, "```\nx < y\n```")
	assert.Equal(t, 1, strings.Count(text, "```\nx < y"))
}

func TestExtractContent_DropsComments(t *testing.T) {
	markup := `<html><body><main>
<!-- if a > b then show banner -->
<p>Visible <!-- x > y --> text.</p>
<div><!--[if IE]><p>legacy</p><![endif]--></div>
</main></body></html>`

	_, text := ExtractContent(markup)

	assert.Equal(t, "Visible text.", text)
	assert.NotContains(t, text, "-->")
	assert.NotContains(t, text, "banner")
}

func TestExtractContent_StripsNonContent(t *testing.T) {
	markup := `<html><head><title>Page</title><style>body{color:red}</style></head>
<body>
<header>Site header</header>
<nav><a href="/">Home</a></nav>
<script>var tracking = 1;</script>
<p>Real content here.</p>
<aside>Related links</aside>
<footer>Copyright</footer>
</body></html>`

	title, text := ExtractContent(markup)

	assert.Equal(t, "Page", title)
	assert.Equal(t, "Real content here.", text)
}

func TestExtractContent_PrefersMainThenArticleThenDiv(t *testing.T) {
	tests := []struct {
		name   string
		markup string
		want   string
	}{
		{
			name:   "main wins over article",
			markup: `<body><p>outside</p><article>the article</article><main>the main</main></body>`,
			want:   "the main",
		},
		{
			name:   "article wins over hinted div",
			markup: `<body><div class="content">the div</div><article>the article</article></body>`,
			want:   "the article",
		},
		{
			name:   "hinted div by class",
			markup: `<body><div class="sidebar">side</div><div class="post-body">the post</div></body>`,
			want:   "the post",
		},
		{
			name:   "hinted div by id",
			markup: `<body><div id="MainContent">by id</div><p>other</p></body>`,
			want:   "by id",
		},
		{
			name:   "whole body when nothing matches",
			markup: `<body><div class="wrap"><p>one</p></div><p>two</p></body>`,
			want:   "one\n\ntwo",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, text := ExtractContent(tt.markup)
			assert.Equal(t, tt.want, text)
		})
	}
}

func TestExtractContent_DecodesEntitiesAndCollapsesBlankLines(t *testing.T) {
	markup := "<main><p>Tom &amp; Jerry &lt;3 &quot;cheese&quot; &#39;n&#39; more</p>\n\n\n\n\n<p>Next</p></main>"

	_, text := ExtractContent(markup)

	assert.Equal(t, "Tom & Jerry <3 \"cheese\" 'n' more\n\nNext", text)
}

func TestExtractContent_NoTitle(t *testing.T) {
	title, _ := ExtractContent("<p>no head</p>")
	assert.Empty(t, title)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", Truncate("abc"))

	exact := strings.Repeat("x", MaxContentChars)
	assert.Equal(t, exact, Truncate(exact))

	// Multi-byte characters count once each.
	wide := strings.Repeat("é", MaxContentChars)
	assert.Equal(t, wide, Truncate(wide))

	over := strings.Repeat("é", MaxContentChars+1)
	got := Truncate(over)
	assert.Equal(t, wide+TruncationMarker, got)
	assert.True(t, utf8.ValidString(got))
}
