package application

import (
	"strconv"

	"portofmars/server/replication"
)

type Phase string

const (
	PhaseLobby             Phase = "lobby"
	PhaseRoundIntroduction Phase = "roundIntroduction"
	PhaseInvest            Phase = "invest"
	PhaseEvent             Phase = "event"
	PhaseTrade             Phase = "trade"
	PhasePurchase          Phase = "purchase"
	PhaseRoundEnd          Phase = "roundEnd"
	PhaseVictory           Phase = "victory"
	PhaseDefeat            Phase = "defeat"
)

func (p Phase) Terminal() bool { return p == PhaseVictory || p == PhaseDefeat }

// GameState は1セッションの正規の状態木です。patchタグの付いたフィールドだけが複製され、
// クライアントへの差分はタグの宣言順に並びます。playersをroundIntroductionより前に置くことで、
// 再同期でプレイヤーが先に届くことを保証しています。
type GameState struct {
	Phase               Phase  `patch:"phase"`
	Round               int    `patch:"round"`
	TimeRemaining       int    `patch:"timeRemaining"`
	MarsEventsProcessed int    `patch:"marsEventsProcessed"`
	SystemHealth        int    `patch:"systemHealth"`
	Winners             []Role `patch:"winners"`
	HeroOrPariah        string `patch:"heroOrPariah"`

	Players           *replication.Collection[*Player]      `patch:"players"`
	MarsEvents        *replication.Collection[*MarsEvent]   `patch:"marsEvents"`
	TradeSet          *replication.Collection[*Trade]       `patch:"tradeSet"`
	RoundIntroduction RoundIntroduction                     `patch:"roundIntroduction"`
	Logs              *replication.Collection[*LogEntry]    `patch:"logs"`
	Messages          *replication.Collection[*ChatMessage] `patch:"messages"`

	acc      roundAccumulator
	tradeIDs map[string]bool
	logSeq   int
	chatSeq  int
}

type Player struct {
	Role                Role              `patch:"role"`
	Username            string            `patch:"username"`
	IsBot               bool              `patch:"isBot"`
	Connected           bool              `patch:"connected"`
	IsMuted             bool              `patch:"isMuted"`
	BotWarning          bool              `patch:"botWarning"`
	Specialty           Resource          `patch:"specialty"`
	TimeBlocks          int               `patch:"timeBlocks"`
	Ready               bool              `patch:"ready"`
	VictoryPoints       int               `patch:"victoryPoints"`
	SystemHealthChanges int               `patch:"systemHealthChanges"`
	Inventory           Bundle            `patch:"inventory"`
	Costs               Bundle            `patch:"costs"`
	Accomplishments     AccomplishmentSet `patch:"accomplishments"`

	userID string
	// 切断されてからのtick数
	absentTicks int
}

// Seated は人間かボットが席に着いているかどうかを返します。
func (p *Player) Seated() bool { return p.userID != "" || p.IsBot }

type AccomplishmentSet struct {
	Purchased   *replication.Collection[*Accomplishment] `patch:"purchased"`
	Purchasable *replication.Collection[*Accomplishment] `patch:"purchasable"`
}

// Accomplishment は購入できる実績です。参照データとして扱い、購入後も内容は変わりません。
type Accomplishment struct {
	ID            int    `patch:"id" json:"id"`
	Role          Role   `patch:"role" json:"role"`
	Label         string `patch:"label" json:"label"`
	FlavorText    string `patch:"flavorText" json:"flavorText"`
	VictoryPoints int    `patch:"victoryPoints" json:"victoryPoints"`
	SystemHealth  int    `patch:"systemHealth" json:"systemHealth"`
	Cost          Bundle `patch:"cost" json:"cost"`
}

func (a *Accomplishment) key() string { return strconv.Itoa(a.ID) }

type TradeStatus string

const (
	TradeProposed TradeStatus = "proposed"
	TradeAccepted TradeStatus = "accepted"
	TradeRejected TradeStatus = "rejected"
	TradeExpired  TradeStatus = "expired"
)

func (s TradeStatus) Terminal() bool {
	return s == TradeAccepted || s == TradeRejected || s == TradeExpired
}

type TradeSide struct {
	Role      Role   `patch:"role" json:"role"`
	Resources Bundle `patch:"resources" json:"resources"`
}

// Trade は2つのロールの間の取引です。Fromが差し出し、Toが受け取る代わりにTo側の資源を差し出します。
type Trade struct {
	ID     string      `patch:"id" json:"id"`
	From   TradeSide   `patch:"from" json:"from"`
	To     TradeSide   `patch:"to" json:"to"`
	Status TradeStatus `patch:"status" json:"status"`
}

type MarsEvent struct {
	ID        string `patch:"id"`
	Kind      string `patch:"kind"`
	Name      string `patch:"name"`
	Effect    string `patch:"effect"`
	Processed bool   `patch:"processed"`

	def EventDefinition
}

// RoundIntroduction は前のラウンドの要約です。ラウンドの開始時に作り直され、その後は変更されません。
type RoundIntroduction struct {
	SystemHealthAtStart            int                                              `patch:"systemHealthAtStart"`
	SystemHealthMaintenance        int                                              `patch:"systemHealthMaintenance"`
	SystemHealthMarsEvents         *replication.Collection[*SystemHealthMarsEvent]  `patch:"systemHealthMarsEvents"`
	AccomplishmentPurchases        *replication.Collection[*AccomplishmentPurchase] `patch:"accomplishmentPurchases"`
	CompletedTrades                *replication.Collection[*Trade]                  `patch:"completedTrades"`
	SystemHealthGroupContributions map[string]int                                   `patch:"systemHealthGroupContributions"`
}

type SystemHealthMarsEvent struct {
	ID                       string `patch:"id"`
	Name                     string `patch:"name"`
	SystemHealthModification int    `patch:"systemHealthModification"`
}

type AccomplishmentPurchase struct {
	Role          Role   `patch:"role"`
	Name          string `patch:"name"`
	VictoryPoints int    `patch:"victoryPoints"`
	SystemHealth  int    `patch:"systemHealthModification"`
}

type LogEntry struct {
	ID          string `patch:"id"`
	Round       int    `patch:"round"`
	Category    string `patch:"category"`
	Content     string `patch:"content"`
	PerformedBy string `patch:"performedBy"`
}

type ChatMessage struct {
	ID        string `patch:"id"`
	Round     int    `patch:"round"`
	Sender    Role   `patch:"sender"`
	Message   string `patch:"message"`
	Timestamp int64  `patch:"timestamp"`
}

// roundAccumulator はラウンド中に起きたことを次のRoundIntroductionのために溜めます。
type roundAccumulator struct {
	marsEvents    []SystemHealthMarsEvent
	purchases     []AccomplishmentPurchase
	trades        []Trade
	contributions map[Role]int
	// costDeltas は次のラウンドの投資コストに加える増減です。
	costDeltas map[Role]Bundle
}

func (a *roundAccumulator) reset() {
	a.marsEvents = nil
	a.purchases = nil
	a.trades = nil
	a.contributions = make(map[Role]int)
	a.costDeltas = make(map[Role]Bundle)
}

// NewGameState はロビーにある状態を作ります。全てのロールの席は最初から存在し、空席として扱われます。
func NewGameState(initialHealth int) *GameState {
	s := &GameState{
		Phase:        PhaseLobby,
		Round:        1,
		SystemHealth: clampHealth(initialHealth),
		Players:      replication.NewCollection[*Player](),
		MarsEvents:   replication.NewCollection[*MarsEvent](),
		TradeSet:     replication.NewCollection[*Trade](),
		RoundIntroduction: RoundIntroduction{
			SystemHealthAtStart:            clampHealth(initialHealth),
			SystemHealthMarsEvents:         replication.NewCollection[*SystemHealthMarsEvent](),
			AccomplishmentPurchases:        replication.NewCollection[*AccomplishmentPurchase](),
			CompletedTrades:                replication.NewCollection[*Trade](),
			SystemHealthGroupContributions: map[string]int{},
		},
		Logs:     replication.NewCollection[*LogEntry](),
		Messages: replication.NewCollection[*ChatMessage](),
		tradeIDs: make(map[string]bool),
	}
	s.acc.reset()
	for _, role := range Roles {
		s.Players.Set(string(role), &Player{
			Role:      role,
			Specialty: specialtyOf(role),
			Costs:     baseCosts(role),
			Accomplishments: AccomplishmentSet{
				Purchased:   replication.NewCollection[*Accomplishment](),
				Purchasable: replication.NewCollection[*Accomplishment](),
			},
		})
	}
	return s
}

// Player はロールのプレイヤーを返します。
func (s *GameState) Player(role Role) (*Player, bool) {
	return s.Players.Get(string(role))
}

// EachPlayer はロールの正規順にプレイヤーを返します。
func (s *GameState) EachPlayer(yield func(*Player) bool) {
	for _, role := range Roles {
		if p, ok := s.Player(role); ok {
			if !yield(p) {
				return
			}
		}
	}
}

func clampHealth(v int) int {
	return max(0, min(100, v))
}
