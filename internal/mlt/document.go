// Package mlt 提供工程文件（MLT XML 场景图）的类型化视图。
//
// 文档只解析一次；之后所有读取与修改都通过 Node 的类型化访问器完成，
// 不在调用方散落“按标签名/属性名”的字符串查找。
package mlt

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/beevik/etree"
)

// ErrNotProject 表示输入不是 MLT 工程文档（根元素不是 <mlt>）。
var ErrNotProject = errors.New("mlt: 根元素不是 <mlt>")

const (
	MainBinID = "main_bin"

	PropResource     = "resource"
	PropService      = "mlt_service"
	PropClipID       = "kdenlive:id"
	PropProducerType = "kdenlive:producer_type"
	PropOriginalURL  = "kdenlive:originalurl"
	PropProxy        = "kdenlive:proxy"
	PropFileHash     = "kdenlive:file_hash"
	PropFileSize     = "kdenlive:file_size"
	PropUUID         = "kdenlive:uuid"
	PropOrigService  = "kdenlive:orig_service"
	PropOrigResource = "kdenlive:orig_resource"
	PropWarpResource = "warp_resource"
	PropXMLData      = "xmldata"
	PropPlaceholder  = "_placeholder"
	PropMissingSrc   = "_missingsource"
	PropReplaceProxy = "_replaceproxy"
	PropKdenliveID   = "kdenlive_id"
)

// Document 是一份可变的工程文档。调用方独占所有权；本包不做并发保护。
type Document struct {
	doc  *etree.Document
	root *etree.Element
}

// Parse 解析 MLT XML。根元素必须是 <mlt>。
func Parse(b []byte) (*Document, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(b); err != nil {
		return nil, fmt.Errorf("mlt: 解析 XML 失败：%w", err)
	}
	root := doc.Root()
	if root == nil || root.Tag != "mlt" {
		return nil, ErrNotProject
	}
	return &Document{doc: doc, root: root}, nil
}

// Load 读取并解析 path 指向的工程文件。
func Load(path string) (*Document, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(b)
}

// Bytes 序列化当前（可能已被修改的）文档。
func (d *Document) Bytes() ([]byte, error) {
	return d.doc.WriteToBytes()
}

// Root 返回 <mlt root="..."> 记录的工程根目录（可能为空）。
func (d *Document) Root() string {
	return strings.TrimSpace(d.root.SelectAttrValue("root", ""))
}

func (d *Document) SetRoot(root string) {
	d.root.CreateAttr("root", root)
}

// Elements 按文档顺序返回所有标签为 tag 的元素（任意深度）。
func (d *Document) Elements(tag string) []*Node {
	var out []*Node
	collect(d.root, tag, &out)
	return out
}

// All 按文档顺序返回根以下的全部元素。
func (d *Document) All() []*Node {
	var out []*Node
	collect(d.root, "", &out)
	return out
}

// ReferencingProducer 返回 producer 属性指向 ids 中任一 id 的元素（entry、track 等），文档顺序。
func (d *Document) ReferencingProducer(ids map[string]bool) []*Node {
	var out []*Node
	for _, n := range d.All() {
		if ref := n.Attr("producer"); ref != "" && ids[ref] {
			out = append(out, n)
		}
	}
	return out
}

// InsertPlaylistBefore 在 ref 之前插入一个空 playlist（同一父元素下），返回新节点。
// ref 是游离节点时返回 nil。
func (d *Document) InsertPlaylistBefore(ref *Node, id string) *Node {
	parent := ref.el.Parent()
	if parent == nil {
		return nil
	}
	el := etree.NewElement("playlist")
	el.CreateAttr("id", id)
	parent.InsertChildAt(ref.el.Index(), el)
	return &Node{el: el}
}

// HasID 判断文档中是否已有元素使用该 id。
func (d *Document) HasID(id string) bool {
	for _, n := range d.All() {
		if n.ID() == id {
			return true
		}
	}
	return false
}

func collect(el *etree.Element, tag string, out *[]*Node) {
	for _, c := range el.ChildElements() {
		if tag == "" || c.Tag == tag {
			*out = append(*out, &Node{el: c})
		}
		collect(c, tag, out)
	}
}

func (d *Document) Producers() []*Node   { return d.Elements("producer") }
func (d *Document) Chains() []*Node      { return d.Elements("chain") }
func (d *Document) Playlists() []*Node   { return d.Elements("playlist") }
func (d *Document) Tractors() []*Node    { return d.Elements("tractor") }
func (d *Document) Transitions() []*Node { return d.Elements("transition") }
func (d *Document) Filters() []*Node     { return d.Elements("filter") }

// ProducersAndChains 返回所有 producer 与 chain（两者都可能是 bin clip 的载体）。
func (d *Document) ProducersAndChains() []*Node {
	return append(d.Producers(), d.Chains()...)
}

// MainBin 返回 id=main_bin 的 playlist；不存在时返回 nil。
func (d *Document) MainBin() *Node {
	for _, p := range d.Playlists() {
		if p.ID() == MainBinID {
			return p
		}
	}
	return nil
}

// BinEntries 返回 main_bin 下的 entry 列表。
func (d *Document) BinEntries() []*Node {
	bin := d.MainBin()
	if bin == nil {
		return nil
	}
	return bin.Children("entry")
}

// DocProperty 读取 main_bin 上的 kdenlive:docproperties.<name>。
func (d *Document) DocProperty(name string) string {
	bin := d.MainBin()
	if bin == nil {
		return ""
	}
	return bin.Property("kdenlive:docproperties." + name)
}

// DocumentID 返回工程的 documentid（代理/缓存文件名依赖它）。
func (d *Document) DocumentID() string { return d.DocProperty("documentid") }

// ProfileIsHD 判断工程 profile 是否为高清（决定 luma 资源目录 HD/PAL）。
func (d *Document) ProfileIsHD() bool {
	p := d.root.SelectElement("profile")
	if p == nil {
		return false
	}
	w, _ := strconv.Atoi(p.SelectAttrValue("width", "0"))
	h, _ := strconv.Atoi(p.SelectAttrValue("height", "0"))
	return w >= 1000 || h >= 720
}

// ByClipID 返回 kdenlive clip id 等于 id 的所有 producer/chain（文档顺序）。
func (d *Document) ByClipID(id string) []*Node {
	var out []*Node
	for _, n := range d.ProducersAndChains() {
		if ClipID(n) == id {
			out = append(out, n)
		}
	}
	return out
}

// Remove 把 n 从父元素中摘除；n 已是游离节点时返回 false。
func (d *Document) Remove(n *Node) bool {
	return n.detach()
}

// SplitSpeed 拆分变速 clip 的 "speed:path" 形式 resource；不带速度前缀时 ok=false，path 原样返回。
func SplitSpeed(res string) (speed, path string, ok bool) {
	if i := strings.IndexByte(res, ':'); i > 0 {
		if _, err := strconv.ParseFloat(res[:i], 64); err == nil {
			return res[:i], res[i+1:], true
		}
	}
	return "", res, false
}

// ClipID 返回与文档位置无关的 bin clip 标识。
// 优先 kdenlive:id；否则从元素 id 推断（去掉 "_video" 之类的后缀与 "slowmotion:" 之类的前缀）。
func ClipID(n *Node) string {
	if id := n.Property(PropClipID); id != "" {
		return id
	}
	id := n.ID()
	if i := strings.IndexByte(id, '_'); i >= 0 {
		id = id[:i]
	}
	if strings.Contains(id, ":") {
		parts := strings.Split(id, ":")
		id = parts[1]
	}
	return id
}
