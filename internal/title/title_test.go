package title

import (
	"os"
	"path/filepath"
	"testing"

	"golang.org/x/image/font/gofont/goregular"
)

const payload = `<kdenlivetitle duration="125" width="1920" height="1080" out="124">
 <item type="QGraphicsTextItem" z-index="0">
  <position x="10" y="20"><transform>1,0,0,0,1,0,0,0,1</transform></position>
  <content font="Foo-Bold" font-pixel-size="60" font-weight="75">Hello</content>
 </item>
 <item type="QGraphicsTextItem" z-index="1">
  <content font="Foo-Bold" font-pixel-size="40">Again</content>
 </item>
 <item type="QGraphicsTextItem" z-index="2">
  <content font="Tom &amp; Jerry" font-pixel-size="40">Amp</content>
 </item>
 <item type="QGraphicsPixmapItem" z-index="3">
  <content url="/media/bg.png"/>
 </item>
 <item type="QGraphicsPixmapItem" z-index="4">
  <content url="inline.png" base64="iVBORw0KGgo="/>
 </item>
 <background color="0,0,0,0"/>
</kdenlivetitle>`

func TestParse_FontsAndImages(t *testing.T) {
	r, err := Parse(payload)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if len(r.Fonts) != 2 || r.Fonts[0] != "Foo-Bold" || r.Fonts[1] != "Tom & Jerry" {
		t.Fatalf("fonts 不符合预期：%#v", r.Fonts)
	}
	if len(r.Images) != 1 || r.Images[0] != "/media/bg.png" {
		t.Fatalf("images 不符合预期（base64 内嵌图应被忽略）：%#v", r.Images)
	}
}

func TestParse_Empty(t *testing.T) {
	r, err := Parse("  ")
	if err != nil || len(r.Fonts) != 0 || len(r.Images) != 0 {
		t.Fatalf("空载荷应返回空结果：%#v %v", r, err)
	}
}

func TestReplaceFont_EscapedAttribute(t *testing.T) {
	out, ok := ReplaceFont(payload, "Tom & Jerry", "Sans")
	if !ok {
		t.Fatalf("期望命中转义后的属性")
	}
	r, _ := Parse(out)
	if r.Fonts[1] != "Sans" {
		t.Fatalf("替换后字体不符合预期：%#v", r.Fonts)
	}

	out, ok = ReplaceFont(payload, "Foo-Bold", "Bar")
	if !ok {
		t.Fatalf("期望命中")
	}
	r, _ = Parse(out)
	if r.Fonts[0] != "Bar" || len(r.Fonts) != 2 {
		t.Fatalf("所有同名字体都应被替换：%#v", r.Fonts)
	}

	if same, ok := ReplaceFont(payload, "Nope", "Bar"); ok || same != payload {
		t.Fatalf("未命中时应原样返回")
	}
}

func TestReplaceImage(t *testing.T) {
	out, ok := ReplaceImage(payload, "/media/bg.png", "/new/bg.png")
	if !ok {
		t.Fatalf("期望命中")
	}
	r, _ := Parse(out)
	if r.Images[0] != "/new/bg.png" {
		t.Fatalf("替换后图片不符合预期：%#v", r.Images)
	}
}

func TestSystemFonts_ReadsNamesAndStems(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "truetype"), 0o755); err != nil {
		t.Fatalf("创建目录失败：%v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "truetype", "x.ttf"), goregular.TTF, 0o644); err != nil {
		t.Fatalf("写入字体失败：%v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "My_Font.otf"), []byte("not a font"), 0o644); err != nil {
		t.Fatalf("写入文件失败：%v", err)
	}

	fonts := NewSystemFonts([]string{dir})
	if !fonts.Has("Go") {
		t.Fatalf("应从字体文件读到 family 名")
	}
	if !fonts.Has("my font") {
		t.Fatalf("无法解析的字体应以文件名兜底")
	}
	if fonts.Has("Foo-Bold") {
		t.Fatalf("不应存在 Foo-Bold")
	}
}
