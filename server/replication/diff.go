package replication

import (
	"fmt"
	"slices"
)

type OpKind string

const (
	OpAdd    OpKind = "add"
	OpRemove OpKind = "remove"
	OpChange OpKind = "change"
)

// Op は1つのパッチ操作です。
//
//	add:    Path のコレクションに Key の要素 Value を追加する
//	remove: Path のコレクションから Key の要素を削除する
//	change: Path のstructの Field を Value にする (Key があればコレクションの要素そのものを置き換える)
type Op struct {
	Op    OpKind `json:"op"`
	Path  []Step `json:"path"`
	Key   string `json:"key,omitempty"`
	Field string `json:"field,omitempty"`
	Value *Node  `json:"value,omitempty"`
}

func (o Op) String() string {
	switch o.Op {
	case OpChange:
		if o.Key != "" {
			return fmt.Sprintf("change %s[%s]", pathString(o.Path), o.Key)
		}
		return fmt.Sprintf("change %s.%s", pathString(o.Path), o.Field)
	default:
		return fmt.Sprintf("%s %s[%s]", o.Op, pathString(o.Path), o.Key)
	}
}

// Diff はprevからnextへの操作列を返します。prevがnilの場合は空の木からの全量になります。
// フィールドは宣言順、コレクション内では削除を先に、追加と変更を挿入順に並べます。
func Diff(prev, next *Node) []Op {
	var ops []Op
	diffStruct(&ops, nil, prev, next)
	return ops
}

func diffStruct(ops *[]Op, path []Step, prev, next *Node) {
	if prev != nil && prev.Kind != KindStruct {
		prev = nil
	}
	for _, f := range next.Fields {
		var before *Node
		if prev != nil {
			before = prev.field(f.Name)
		}
		diffField(ops, path, f.Name, before, f.Node)
	}
}

func diffField(ops *[]Op, path []Step, name string, prev, next *Node) {
	switch next.Kind {
	case KindStruct:
		diffStruct(ops, appendStep(path, F(name)), prev, next)
	case KindCollection:
		diffCollection(ops, appendStep(path, F(name)), prev, next)
	default:
		if prev == nil || prev.Kind != KindValue || !jsonEqual(prev.Value, next.Value) {
			*ops = append(*ops, Op{Op: OpChange, Path: path, Field: name, Value: next})
		}
	}
}

func diffCollection(ops *[]Op, path []Step, prev, next *Node) {
	if prev != nil && prev.Kind != KindCollection {
		prev = nil
	}
	var before map[string]Item
	if prev != nil {
		before = make(map[string]Item, len(prev.Items))
		for _, it := range prev.Items {
			before[it.Key] = it
		}
	}
	after := make(map[string]Item, len(next.Items))
	for _, it := range next.Items {
		after[it.Key] = it
	}

	if prev != nil {
		for _, it := range prev.Items {
			if cur, ok := after[it.Key]; !ok || cur.Seq != it.Seq {
				*ops = append(*ops, Op{Op: OpRemove, Path: path, Key: it.Key})
			}
		}
	}
	for _, it := range next.Items {
		old, ok := before[it.Key]
		if !ok || old.Seq != it.Seq {
			*ops = append(*ops, Op{Op: OpAdd, Path: path, Key: it.Key, Value: it.Node})
			continue
		}
		switch it.Node.Kind {
		case KindStruct:
			diffStruct(ops, appendStep(path, K(it.Key)), old.Node, it.Node)
		case KindCollection:
			diffCollection(ops, appendStep(path, K(it.Key)), old.Node, it.Node)
		default:
			if old.Node.Kind != KindValue || !jsonEqual(old.Node.Value, it.Node.Value) {
				*ops = append(*ops, Op{Op: OpChange, Path: path, Key: it.Key, Value: it.Node})
			}
		}
	}
}

func appendStep(path []Step, s Step) []Step {
	out := slices.Clone(path)
	return append(out, s)
}
