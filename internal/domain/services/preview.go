package services

import (
	"fmt"
	"html"
	"slices"
	"sort"
	"strings"

	nethtml "golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"stelgent-web/internal/domain/models"
)

// baselineStyles 总是注入到预览文档的 <head> 中
const baselineStyles = `
    <style>
      body {
        margin: 0;
        padding: 20px;
        font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif;
        line-height: 1.6;
      }
      * {
        box-sizing: border-box;
      }
      img {
        max-width: 100%;
        height: auto;
      }
      .container {
        max-width: 1200px;
        margin: 0 auto;
      }
    </style>
`

// PreviewOptions 预览组装参数
type PreviewOptions struct {
	Lang              string
	Title             string
	ScriptExcludeDirs []string
}

// PreviewAssembler 把项目文件组装成一个自包含的 HTML 文档
type PreviewAssembler struct {
	opts PreviewOptions
}

// NewPreviewAssembler 创建预览组装器
func NewPreviewAssembler(opts PreviewOptions) *PreviewAssembler {
	if opts.Lang == "" {
		opts.Lang = "en"
	}
	if opts.Title == "" {
		opts.Title = "Preview"
	}
	if !slices.Contains(opts.ScriptExcludeDirs, "node_modules") {
		opts.ScriptExcludeDirs = append(slices.Clone(opts.ScriptExcludeDirs), "node_modules")
	}
	return &PreviewAssembler{opts: opts}
}

// Assemble 选择入口 HTML，内联全部 CSS 与 JS，并注入基础样式。
// 没有 HTML 文件时返回 ErrNoEntryHTML。相同输入总是得到相同输出，files 不会被修改。
func (a *PreviewAssembler) Assemble(files []models.FileRecord) (string, error) {
	entry := findEntryHTML(files)
	if entry == nil {
		return "", models.ErrNoEntryHTML
	}

	src := entry.Content
	doc := scanDocument(src)
	if doc.htmlOpen < 0 {
		src = a.shell(src)
		doc = scanDocument(src)
	}

	headAt := doc.headAnchor()
	var blocks []insertion

	css := concatAssets(files, ".css", nil)
	if strings.TrimSpace(css) != "" {
		blocks = append(blocks, insertion{offset: headAt, text: "\n<style>" + css + "</style>\n"})
	}
	blocks = append(blocks, insertion{offset: headAt, text: baselineStyles})

	js := concatAssets(files, ".js", a.opts.ScriptExcludeDirs)
	if strings.TrimSpace(js) != "" {
		blocks = append(blocks, insertion{offset: doc.bodyAnchor(), text: "\n<script>" + js + "</script>\n"})
	}

	return splice(src, blocks), nil
}

// shell 为 HTML 片段补全文档骨架
func (a *PreviewAssembler) shell(content string) string {
	return fmt.Sprintf(`<!DOCTYPE html>
<html lang="%s">
<head>
<meta charset="UTF-8">
<meta name="viewport" content="width=device-width, initial-scale=1.0">
<title>%s</title>
</head>
<body>
%s
</body>
</html>`, html.EscapeString(a.opts.Lang), html.EscapeString(a.opts.Title), content)
}

// findEntryHTML 优先选择 index.html，否则选择第一个 .html 文件
func findEntryHTML(files []models.FileRecord) *models.FileRecord {
	for i := range files {
		if files[i].IsFile() && files[i].Path == "index.html" {
			return &files[i]
		}
	}
	for i := range files {
		if files[i].IsFile() && strings.HasSuffix(files[i].Path, ".html") {
			return &files[i]
		}
	}
	return nil
}

// concatAssets 按输入顺序拼接指定后缀的文件，每个文件前加上来源注释
func concatAssets(files []models.FileRecord, suffix string, excludeDirs []string) string {
	var b strings.Builder
	for _, f := range files {
		if !f.IsFile() || !strings.HasSuffix(f.Path, suffix) || containsAny(f.Path, excludeDirs) {
			continue
		}
		b.WriteString("\n/* ")
		b.WriteString(f.Path)
		b.WriteString(" */\n")
		b.WriteString(f.Content)
		b.WriteString("\n")
	}
	return b.String()
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if sub != "" && strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// documentAnchors 记录入口文档中的插入点（字节偏移，-1 表示不存在）
type documentAnchors struct {
	htmlOpen  int // <html ...> 之后
	headOpen  int // <head ...> 之后
	headClose int // </head> 之前
	bodyClose int // </body> 之前
	length    int
}

// headAnchor 是 <style> 块的插入点：</head> 之前，否则 <head> 之后，否则 <html> 之后
func (d documentAnchors) headAnchor() int {
	switch {
	case d.headClose >= 0:
		return d.headClose
	case d.headOpen >= 0:
		return d.headOpen
	case d.htmlOpen >= 0:
		return d.htmlOpen
	default:
		return 0
	}
}

// bodyAnchor 是 <script> 块的插入点：</body> 之前，否则文档末尾
func (d documentAnchors) bodyAnchor() int {
	if d.bodyClose >= 0 {
		return d.bodyClose
	}
	return d.length
}

// scanDocument 用 HTML 分词器定位每种标签的第一次出现。
// <script>、<style> 等元素内部按原始文本处理，不会误匹配其中的标签字样。
func scanDocument(src string) documentAnchors {
	d := documentAnchors{htmlOpen: -1, headOpen: -1, headClose: -1, bodyClose: -1, length: len(src)}

	z := nethtml.NewTokenizer(strings.NewReader(src))
	offset := 0
	for {
		tt := z.Next()
		if tt == nethtml.ErrorToken {
			break
		}
		start := offset
		offset += len(z.Raw())

		switch tt {
		case nethtml.StartTagToken, nethtml.SelfClosingTagToken:
			name, _ := z.TagName()
			switch atom.Lookup(name) {
			case atom.Html:
				if d.htmlOpen < 0 {
					d.htmlOpen = offset
				}
			case atom.Head:
				if d.headOpen < 0 {
					d.headOpen = offset
				}
			}
		case nethtml.EndTagToken:
			name, _ := z.TagName()
			switch atom.Lookup(name) {
			case atom.Head:
				if d.headClose < 0 {
					d.headClose = start
				}
			case atom.Body:
				if d.bodyClose < 0 {
					d.bodyClose = start
				}
			}
		}
	}
	return d
}

// insertion 是在 offset 处插入的一段文本
type insertion struct {
	offset int
	text   string
}

// splice 按偏移插入文本；同一偏移处保持加入顺序
func splice(src string, blocks []insertion) string {
	sort.SliceStable(blocks, func(i, j int) bool {
		return blocks[i].offset < blocks[j].offset
	})

	size := len(src)
	for _, blk := range blocks {
		size += len(blk.text)
	}

	var b strings.Builder
	b.Grow(size)
	prev := 0
	for _, blk := range blocks {
		b.WriteString(src[prev:blk.offset])
		b.WriteString(blk.text)
		prev = blk.offset
	}
	b.WriteString(src[prev:])
	return b.String()
}
