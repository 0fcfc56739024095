package links

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtract(t *testing.T) {
	text := "Отчёт тут https://docs.example.com/report?id=7, и ещё http://wiki.local/page.\nhttps://docs.example.com/report?id=7"
	assert.Equal(t, []string{
		"https://docs.example.com/report?id=7",
		"http://wiki.local/page",
	}, Extract(text))
	assert.Nil(t, Extract("без ссылок"))
}

func TestMergeAndFormat(t *testing.T) {
	merged := Merge([]string{"https://a.io"}, "https://b.io", "https://a.io", "")
	assert.Equal(t, []string{"https://a.io", "https://b.io"}, merged)
	assert.Equal(t, "- https://a.io\n- https://b.io", Format(merged))
}
