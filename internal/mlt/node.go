package mlt

import (
	"strconv"

	"github.com/beevik/etree"
)

// Node 是文档中某个元素的类型化视图（producer/chain/playlist/entry/tractor/track/filter/transition）。
type Node struct {
	el *etree.Element
}

func (n *Node) Tag() string { return n.el.Tag }

// SetTag 修改元素标签（例如把 chain 改为 producer）；id 与属性不变。
func (n *Node) SetTag(tag string) { n.el.Tag = tag }

func (n *Node) ID() string { return n.el.SelectAttrValue("id", "") }

func (n *Node) Attr(key string) string { return n.el.SelectAttrValue(key, "") }

func (n *Node) SetAttr(key, value string) { n.el.CreateAttr(key, value) }

// Same 判断两个视图是否指向同一元素。
func (n *Node) Same(o *Node) bool { return o != nil && n.el == o.el }

func (n *Node) property(name string) *etree.Element {
	for _, p := range n.el.SelectElements("property") {
		if p.SelectAttrValue("name", "") == name {
			return p
		}
	}
	return nil
}

// Property 返回直接子元素 <property name=name> 的文本；不存在时返回空串。
func (n *Node) Property(name string) string {
	if p := n.property(name); p != nil {
		return p.Text()
	}
	return ""
}

func (n *Node) HasProperty(name string) bool { return n.property(name) != nil }

// SetProperty 设置（或新建）属性。
func (n *Node) SetProperty(name, value string) {
	p := n.property(name)
	if p == nil {
		p = n.el.CreateElement("property")
		p.CreateAttr("name", name)
	}
	p.SetText(value)
}

// RemoveProperty 删除属性；不存在时返回 false。
func (n *Node) RemoveProperty(name string) bool {
	p := n.property(name)
	if p == nil {
		return false
	}
	n.el.RemoveChild(p)
	return true
}

func (n *Node) Service() string { return n.Property(PropService) }

// Children 返回标签为 tag 的直接子元素。
func (n *Node) Children(tag string) []*Node {
	els := n.el.SelectElements(tag)
	out := make([]*Node, 0, len(els))
	for _, e := range els {
		out = append(out, &Node{el: e})
	}
	return out
}

// Parent 返回父元素视图；根或游离节点返回 nil。
func (n *Node) Parent() *Node {
	p := n.el.Parent()
	if p == nil {
		return nil
	}
	return &Node{el: p}
}

func (n *Node) detach() bool {
	p := n.el.Parent()
	if p == nil {
		return false
	}
	return p.RemoveChild(n.el) != nil
}

// Frames 返回 in/out 区间的帧数（out-in+1）；属性缺失或非法时返回 0。
func (n *Node) Frames() int {
	in, err1 := strconv.Atoi(n.Attr("in"))
	out, err2 := strconv.Atoi(n.Attr("out"))
	if err1 != nil || err2 != nil || out < in {
		return 0
	}
	return out - in + 1
}

// Length 返回 producer 的播放长度：优先 in/out，其次 length 属性；都没有时返回 0。
func (n *Node) Length() int {
	if f := n.Frames(); f > 0 {
		return f
	}
	if v, err := strconv.Atoi(n.Property("length")); err == nil && v > 0 {
		return v
	}
	return 0
}

// ToBlank 把 playlist 的 <entry> 原位替换为等长的 <blank>，并清除其子元素（挂载的 filter）。
// 时间线上其它 clip 的位置因此保持不变。entry 没有 in/out 时长度取 fallback（被引用 producer 的长度）。
func (n *Node) ToBlank(fallback int) {
	length := n.Frames()
	if length == 0 {
		length = fallback
	}
	for _, c := range n.el.ChildElements() {
		n.el.RemoveChild(c)
	}
	for _, a := range append([]etree.Attr(nil), n.el.Attr...) {
		n.el.RemoveAttr(a.Key)
	}
	n.el.Tag = "blank"
	n.el.CreateAttr("length", strconv.Itoa(length))
}
