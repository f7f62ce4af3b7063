package replication

import (
	"errors"
	"fmt"
)

// ErrProtocolDesync はミラーが受信したパッチを適用できない場合に返されるエラーです。
// 受信側は全量の再同期を要求する必要があります。
var ErrProtocolDesync = errors.New("replication: protocol desync")

// Mirror はパッチの列を受け取って状態木を再構築する純粋なリデューサーです。
type Mirror struct {
	root *Node
	seq  uint64
}

func NewMirror() *Mirror {
	return &Mirror{root: newStruct()}
}

func (m *Mirror) Root() *Node { return m.root }
func (m *Mirror) Seq() uint64 { return m.seq }

// Apply はbatchの操作を受信順に適用します。
// 通常のbatchはシーケンスが連続している必要があります。エラーの場合はミラーを再同期してください。
// 再同期のbatchは空の木から組み立て直すため、取りこぼしたbatchの影響は残りません。
func (m *Mirror) Apply(b Batch) error {
	if b.Resync {
		m.root = newStruct()
	} else if b.Seq != m.seq+1 {
		return fmt.Errorf("%w: batch seq %d after %d", ErrProtocolDesync, b.Seq, m.seq)
	}
	for _, op := range b.Ops {
		if err := m.apply(op); err != nil {
			return err
		}
	}
	m.seq = b.Seq
	return nil
}

func (m *Mirror) apply(op Op) error {
	switch op.Op {
	case OpAdd:
		coll, err := m.resolve(op.Path, KindCollection, true)
		if err != nil {
			return err
		}
		if op.Value == nil {
			return fmt.Errorf("%w: %s without value", ErrProtocolDesync, op)
		}
		if i := coll.itemIndex(op.Key); i >= 0 {
			coll.Items[i].Node = op.Value.Clone()
			return nil
		}
		coll.Items = append(coll.Items, Item{Key: op.Key, Node: op.Value.Clone()})
	case OpRemove:
		coll, err := m.resolve(op.Path, KindCollection, false)
		if err != nil {
			return err
		}
		i := coll.itemIndex(op.Key)
		if i < 0 {
			return fmt.Errorf("%w: %s on missing key", ErrProtocolDesync, op)
		}
		coll.Items = append(coll.Items[:i], coll.Items[i+1:]...)
	case OpChange:
		if op.Value == nil {
			return fmt.Errorf("%w: %s without value", ErrProtocolDesync, op)
		}
		if op.Key != "" {
			coll, err := m.resolve(op.Path, KindCollection, false)
			if err != nil {
				return err
			}
			i := coll.itemIndex(op.Key)
			if i < 0 {
				return fmt.Errorf("%w: %s on missing key", ErrProtocolDesync, op)
			}
			coll.Items[i].Node = op.Value.Clone()
			return nil
		}
		parent, err := m.resolve(op.Path, KindStruct, true)
		if err != nil {
			return err
		}
		parent.setField(op.Field, op.Value.Clone())
	default:
		// 未知の操作は前方互換のため無視する
	}
	return nil
}

// resolve はパスを辿ってleafの種類のノードを返します。
// createがtrueの場合、存在しないstructのフィールドは次の段の種類に合わせて作成します。
// コレクションの要素はaddでのみ作成されます。
func (m *Mirror) resolve(path []Step, leaf Kind, create bool) (*Node, error) {
	cur := m.root
	for i, s := range path {
		if s.IsKey() {
			if cur.Kind != KindCollection {
				return nil, fmt.Errorf("%w: key %s under %s", ErrProtocolDesync, s.Key, cur.Kind)
			}
			idx := cur.itemIndex(s.Key)
			if idx < 0 {
				return nil, fmt.Errorf("%w: missing key %s at %s", ErrProtocolDesync, s.Key, pathString(path[:i]))
			}
			cur = cur.Items[idx].Node
			continue
		}
		if cur.Kind != KindStruct {
			return nil, fmt.Errorf("%w: field %s under %s", ErrProtocolDesync, s.Field, cur.Kind)
		}
		child := cur.field(s.Field)
		if child == nil {
			if !create {
				return nil, fmt.Errorf("%w: missing field %s", ErrProtocolDesync, pathString(path[:i+1]))
			}
			want := leaf
			if i+1 < len(path) {
				want = KindStruct
				if path[i+1].IsKey() {
					want = KindCollection
				}
			}
			child = &Node{Kind: want}
			cur.setField(s.Field, child)
		}
		cur = child
	}
	if cur.Kind != leaf {
		return nil, fmt.Errorf("%w: %s is %s, want %s", ErrProtocolDesync, pathString(path), cur.Kind, leaf)
	}
	return cur, nil
}
