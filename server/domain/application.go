package domain

import (
	"context"
	"encoding/json"
	"time"
)

//go:generate go tool mockgen -destination=./mocks/application_mock.go -package=mocks . Application

// Application はルームに注入されるゲームロジックです。
// 全てのメソッドはルームのループからのみ呼び出されるため、実装側で排他制御は不要です。
type Application interface {
	// Seat はseatをロールに着席させ、割り当てたロールを返します。
	// 同じユーザーが再接続した場合は元のロールを返します。
	Seat(ctx context.Context, seat Seat) (string, error)
	// Detach はロールの接続が無くなったことを記録します。状態は保持されます。
	Detach(ctx context.Context, role string)
	// Handle はroleから届いたコマンドを1つ適用します。
	Handle(ctx context.Context, role string, data []byte) (Effects, error)
	// Tick はルームの時計を1単位進めます。
	Tick(ctx context.Context) (Effects, error)
	// State は複製対象の状態木を返します。
	State() any
	// Terminal はセッションが victory か defeat にあるかどうかを返します。
	Terminal() bool
	// Record はアーカイブ用の記録を返します。
	Record() GameRecord
}

// Seat は入室するユーザーの身元と希望する席です。
type Seat struct {
	UserID   string
	Username string
	Role     string
	Muted    bool
}

// Effects はコマンドの適用に伴ってルーム全体に送る付随情報です。
type Effects struct {
	Sfx []string
}

func (e Effects) Empty() bool { return len(e.Sfx) == 0 }

// GameRecord は終了したセッションの記録です。
type GameRecord struct {
	Status       string
	Round        int
	SystemHealth int
	Players      []PlayerRecord
	Events       []GameEvent
}

type PlayerRecord struct {
	Role          string
	UserID        string
	Username      string
	IsBot         bool
	VictoryPoints int
}

// GameEvent はセッション中に適用されたコマンドやフェーズ遷移の1件です。
type GameEvent struct {
	Round   int
	Phase   string
	Kind    string
	Role    string
	Payload json.RawMessage
	At      time.Time
}
