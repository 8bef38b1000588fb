package repair

import (
	"fmt"

	"github.com/John-Robertt/kdcheck/internal/mlt"
)

// removal 是删除一个 clip 前计算出的完整计划；计划阶段不修改文档。
type removal struct {
	ids        map[string]bool
	producers  []*mlt.Node
	binEntries []*mlt.Node // main_bin 中的 entry：直接删除
	entries    []*mlt.Node // 时间线 playlist 中的 entry：原位变为等长 blank
	lengths    []int       // 与 entries 一一对应：entry 缺少 in/out 时使用的长度
	tracks     []*mlt.Node // 直接引用 clip 的 track：改指向空 playlist
	anchors    []*mlt.Node // 与 tracks 一一对应：新 playlist 插在它之前
	others     []*mlt.Node // 其它带 producer 引用的元素：删除
}

// RemoveClip 删除 clipID 的全部 producer/chain，并级联清理所有引用。
//
// 约束：要么全部引用都被清理，要么文档不变。计划阶段发现无法安全摘除的节点时直接返回错误。
// 返回删除的 producer/chain 数量；clip 不存在时返回 0, nil。
func (e *Engine) RemoveClip(clipID string) (int, error) {
	plan, err := e.planRemoval(clipID)
	if err != nil {
		return 0, err
	}
	if len(plan.producers) == 0 {
		return 0, nil
	}

	for _, n := range plan.binEntries {
		e.doc.Remove(n)
	}
	for _, n := range plan.others {
		e.doc.Remove(n)
	}
	for i, n := range plan.entries {
		n.ToBlank(plan.lengths[i])
	}
	for i, tr := range plan.tracks {
		pl := e.doc.InsertPlaylistBefore(plan.anchors[i], e.nextEmptyID())
		tr.SetAttr("producer", pl.ID())
	}
	for _, n := range plan.producers {
		e.doc.Remove(n)
	}

	if left := e.doc.ReferencingProducer(plan.ids); len(left) > 0 {
		return len(plan.producers), fmt.Errorf("repair: 删除 clip %s 后仍有 %d 处引用", clipID, len(left))
	}
	e.note("clip %s 已从工程中删除（时间线位置保留为空白）", clipID)
	return len(plan.producers), nil
}

func (e *Engine) planRemoval(clipID string) (removal, error) {
	plan := removal{ids: map[string]bool{}}
	if clipID == "" {
		return plan, fmt.Errorf("repair: clip id 不能为空")
	}
	plan.producers = e.doc.ByClipID(clipID)
	byID := make(map[string]*mlt.Node, len(plan.producers))
	for _, n := range plan.producers {
		if n.Parent() == nil {
			return plan, fmt.Errorf("repair: clip %s 的节点 %s 无法摘除", clipID, n.ID())
		}
		if id := n.ID(); id != "" {
			plan.ids[id] = true
			byID[id] = n
		}
	}

	for _, ref := range e.doc.ReferencingProducer(plan.ids) {
		parent := ref.Parent()
		if parent == nil {
			return plan, fmt.Errorf("repair: 引用节点 <%s> 无法摘除", ref.Tag())
		}
		switch {
		case ref.Tag() == "entry" && parent.ID() == mlt.MainBinID:
			plan.binEntries = append(plan.binEntries, ref)
		case ref.Tag() == "entry":
			length := 0
			if p, ok := byID[ref.Attr("producer")]; ok {
				length = p.Length()
			}
			plan.entries = append(plan.entries, ref)
			plan.lengths = append(plan.lengths, length)
		case ref.Tag() == "track":
			anchor := topLevel(ref)
			if anchor == nil {
				return plan, fmt.Errorf("repair: track 不在文档根之下")
			}
			plan.tracks = append(plan.tracks, ref)
			plan.anchors = append(plan.anchors, anchor)
		default:
			plan.others = append(plan.others, ref)
		}
	}
	return plan, nil
}

// topLevel 返回 n 所在的、直接挂在 <mlt> 下的祖先（可能是 n 自己）。
func topLevel(n *mlt.Node) *mlt.Node {
	cur := n
	for {
		p := cur.Parent()
		if p == nil {
			return nil
		}
		if p.Tag() == "mlt" {
			return cur
		}
		cur = p
	}
}

func (e *Engine) nextEmptyID() string {
	for {
		e.emptySeq++
		id := fmt.Sprintf("kdcheck_empty%d", e.emptySeq)
		if !e.doc.HasID(id) {
			return id
		}
	}
}
