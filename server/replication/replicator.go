package replication

import "fmt"

// Batch は1回の処理ステップで発生した操作をまとめたものです。
// Resync が true の場合は空の木から現在の状態を再構築する全量です。
type Batch struct {
	Seq    uint64 `json:"seq"`
	Resync bool   `json:"resync,omitempty"`
	Ops    []Op   `json:"ops"`
}

func (b Batch) Empty() bool { return len(b.Ops) == 0 }

// Replicator は最後に配信したスナップショットを保持し、状態との差分を計算します。
// 1つのルームのループからのみ呼び出されることを前提にしています。
type Replicator struct {
	published *Node
	seq       uint64
}

func NewReplicator() *Replicator {
	return &Replicator{published: newStruct()}
}

// Commit はstateのスナップショットを取り、前回の配信からの差分を返します。
// 差分が無い場合は空のBatchを返し、シーケンスを進めません。
func (r *Replicator) Commit(state any) (Batch, error) {
	next, err := Snapshot(state)
	if err != nil {
		return Batch{}, fmt.Errorf("snapshot: %w", err)
	}
	ops := Diff(r.published, next)
	r.published = next
	if len(ops) == 0 {
		return Batch{Seq: r.seq}, nil
	}
	r.seq++
	return Batch{Seq: r.seq, Ops: ops}, nil
}

// Resync は最後に配信した状態を全量の操作列として返します。
func (r *Replicator) Resync() Batch {
	return Batch{Seq: r.seq, Resync: true, Ops: Diff(nil, r.published)}
}

func (r *Replicator) Seq() uint64 { return r.seq }

// Published は最後に配信したスナップショットです。呼び出し側は変更してはいけません。
func (r *Replicator) Published() *Node { return r.published }
