package services

import (
	"fmt"
	"regexp"

	"github.com/tdewolff/minify/v2"
	"github.com/tdewolff/minify/v2/css"
	minhtml "github.com/tdewolff/minify/v2/html"
	"github.com/tdewolff/minify/v2/js"
)

var scriptMediaType = regexp.MustCompile(`^(application|text)/(x-)?(java|ecma)script$`)

// MinifyDocument 压缩组装后的预览文档，内联的 <style> 与 <script> 一并压缩
func MinifyDocument(doc string) (string, error) {
	m := minify.New()
	m.AddFunc("text/css", css.Minify)
	m.AddFunc("text/html", minhtml.Minify)
	m.AddFuncRegexp(scriptMediaType, js.Minify)

	out, err := m.String("text/html", doc)
	if err != nil {
		return "", fmt.Errorf("压缩预览文档失败: %w", err)
	}
	return out, nil
}
