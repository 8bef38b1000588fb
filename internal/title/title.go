// Package title 读取并改写字幕（title clip）内嵌的 XML 载荷中的字体与图片引用。
package title

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Refs 是一段载荷里引用的外部资源（保持出现顺序，已去重）。
type Refs struct {
	Fonts  []string
	Images []string
}

// Parse 解析 xmldata。内嵌为 base64 的图片不算外部引用。
func Parse(xmldata string) (Refs, error) {
	var r Refs
	if strings.TrimSpace(xmldata) == "" {
		return r, nil
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(xmldata))
	if err != nil {
		return r, fmt.Errorf("title: 解析载荷失败：%w", err)
	}

	seenFont := map[string]bool{}
	doc.Find("content[font]").Each(func(_ int, s *goquery.Selection) {
		f := strings.TrimSpace(s.AttrOr("font", ""))
		if f == "" || seenFont[f] {
			return
		}
		seenFont[f] = true
		r.Fonts = append(r.Fonts, f)
	})

	seenImg := map[string]bool{}
	doc.Find("content[url]").Each(func(_ int, s *goquery.Selection) {
		if _, embedded := s.Attr("base64"); embedded {
			return
		}
		u := strings.TrimSpace(s.AttrOr("url", ""))
		if u == "" || seenImg[u] {
			return
		}
		seenImg[u] = true
		r.Images = append(r.Images, u)
	})
	return r, nil
}

var attrEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
)

// ReplaceFont 把 font="old" 改为 font="new"；没有命中时 ok=false，载荷原样返回。
func ReplaceFont(xmldata, oldFont, newFont string) (string, bool) {
	return replaceAttr(xmldata, "font", oldFont, newFont)
}

// ReplaceImage 把 url="old" 改为 url="new"。
func ReplaceImage(xmldata, oldURL, newURL string) (string, bool) {
	return replaceAttr(xmldata, "url", oldURL, newURL)
}

func replaceAttr(xmldata, attr, oldV, newV string) (string, bool) {
	from := attr + `="` + attrEscaper.Replace(oldV) + `"`
	if !strings.Contains(xmldata, from) {
		return xmldata, false
	}
	to := attr + `="` + attrEscaper.Replace(newV) + `"`
	return strings.ReplaceAll(xmldata, from, to), true
}
