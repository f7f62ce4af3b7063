package application

import "time"

// Tuning はゲームバランスの数値です。
type Tuning struct {
	MaxRounds           int
	InitialSystemHealth int
	// SystemHealthWear は2ラウンド目以降の開始時に失われるシステムヘルスです。
	SystemHealthWear   int
	TimeBlocksPerRound int
	EventsPerRound     int
	PurchasableLimit   int
	LobbySeconds       int
	// BotTakeoverSeconds は切断されたプレイヤーがボットに置き換わるまでの秒数です。0以下なら置き換えません。
	BotTakeoverSeconds int
	PhaseSeconds       map[Phase]int
	// Seed はイベントデッキのシャッフルに使います。0なら毎回異なる順になります。
	Seed uint64
}

func DefaultTuning() Tuning {
	return Tuning{
		MaxRounds:           8,
		InitialSystemHealth: 100,
		SystemHealthWear:    15,
		TimeBlocksPerRound:  10,
		EventsPerRound:      1,
		PurchasableLimit:    3,
		LobbySeconds:        60,
		BotTakeoverSeconds:  60,
		PhaseSeconds: map[Phase]int{
			PhaseRoundIntroduction: 30,
			PhaseInvest:            60,
			PhaseEvent:             30,
			PhaseTrade:             120,
			PhasePurchase:          60,
			PhaseRoundEnd:          10,
		},
	}
}

func (t Tuning) duration(p Phase) int {
	if p == PhaseLobby {
		return t.LobbySeconds
	}
	return t.PhaseSeconds[p]
}

// PhaseDuration はフェーズの長さを返します。
func (t Tuning) PhaseDuration(p Phase) time.Duration {
	return time.Duration(t.duration(p)) * time.Second
}

func specialtyOf(role Role) Resource {
	switch role {
	case RoleCurator:
		return ResourceCulture
	case RoleEntrepreneur:
		return ResourceFinance
	case RolePioneer:
		return ResourceLegacy
	case RolePolitician:
		return ResourceGovernment
	case RoleResearcher:
		return ResourceScience
	default:
		return ""
	}
}

// 各ロールが投資できない資源
var unavailableResource = map[Role]Resource{
	RoleCurator:      ResourceScience,
	RoleEntrepreneur: ResourceCulture,
	RolePioneer:      ResourceGovernment,
	RolePolitician:   ResourceLegacy,
	RoleResearcher:   ResourceFinance,
}

// baseCosts はラウンド開始時の投資コストです。得意な資源は1、投資できない資源はCostUnavailableです。
func baseCosts(role Role) Bundle {
	var b Bundle
	for _, r := range Resources {
		switch r {
		case specialtyOf(role):
			b.Set(r, 1)
		case unavailableResource[role]:
			b.Set(r, CostUnavailable)
		default:
			b.Set(r, 3)
		}
	}
	return b
}

// adjustCosts はコストにdeltaを加えます。投資できない資源は変わらず、それ以外は1未満になりません。
func adjustCosts(costs, delta Bundle) Bundle {
	for _, r := range Resources {
		if c := costs.Get(r); c != CostUnavailable {
			costs.Set(r, max(1, c+delta.Get(r)))
		}
	}
	return costs
}

// 実績の一覧。購入可能な実績はこの順で選ばれます。
var accomplishmentCatalog = []Accomplishment{
	{ID: 1, Role: RoleCurator, Label: "Martian Museum", FlavorText: "A home for the artifacts of the first settlers.", VictoryPoints: 2, Cost: Bundle{Culture: 2, Legacy: 1}},
	{ID: 2, Role: RoleCurator, Label: "Festival of Dust", FlavorText: "The colony celebrates surviving another storm season.", VictoryPoints: 3, SystemHealth: 2, Cost: Bundle{Culture: 3, Finance: 1}},
	{ID: 3, Role: RoleCurator, Label: "Oral History Archive", FlavorText: "Every voice recorded before it fades.", VictoryPoints: 4, Cost: Bundle{Culture: 4, Science: 1}},
	{ID: 4, Role: RoleCurator, Label: "Grand Mural", FlavorText: "Painted across the habitat dome.", VictoryPoints: 6, SystemHealth: -3, Cost: Bundle{Culture: 5, Government: 2}},

	{ID: 11, Role: RoleEntrepreneur, Label: "Ice Mining Venture", FlavorText: "Water is the most valuable export.", VictoryPoints: 2, Cost: Bundle{Finance: 2, Science: 1}},
	{ID: 12, Role: RoleEntrepreneur, Label: "Orbital Trade Post", FlavorText: "Ships from Earth dock here first.", VictoryPoints: 3, Cost: Bundle{Finance: 3, Government: 1}},
	{ID: 13, Role: RoleEntrepreneur, Label: "Luxury Habitat", FlavorText: "Comfort, for those who can pay.", VictoryPoints: 5, SystemHealth: -4, Cost: Bundle{Finance: 4, Culture: 1}},
	{ID: 14, Role: RoleEntrepreneur, Label: "Colony Bank", FlavorText: "Credit keeps the airlocks cycling.", VictoryPoints: 6, Cost: Bundle{Finance: 5, Government: 2}},

	{ID: 21, Role: RolePioneer, Label: "Crater Survey", FlavorText: "Maps for whoever comes after.", VictoryPoints: 2, Cost: Bundle{Legacy: 2, Science: 1}},
	{ID: 22, Role: RolePioneer, Label: "Greenhouse Ring", FlavorText: "The first crops grown in Martian soil.", VictoryPoints: 3, SystemHealth: 3, Cost: Bundle{Legacy: 3, Culture: 1}},
	{ID: 23, Role: RolePioneer, Label: "Deep Drill", FlavorText: "Reaching the aquifer below the regolith.", VictoryPoints: 4, SystemHealth: -2, Cost: Bundle{Legacy: 4, Finance: 1}},
	{ID: 24, Role: RolePioneer, Label: "Second Settlement", FlavorText: "The colony is no longer alone.", VictoryPoints: 6, Cost: Bundle{Legacy: 5, Government: 2}},

	{ID: 31, Role: RolePolitician, Label: "Colony Charter", FlavorText: "The rules everyone agreed to, mostly.", VictoryPoints: 2, Cost: Bundle{Government: 2, Culture: 1}},
	{ID: 32, Role: RolePolitician, Label: "Resource Accord", FlavorText: "Fair shares, on paper.", VictoryPoints: 3, SystemHealth: 2, Cost: Bundle{Government: 3, Finance: 1}},
	{ID: 33, Role: RolePolitician, Label: "Earth Embassy", FlavorText: "A voice back home.", VictoryPoints: 4, Cost: Bundle{Government: 4, Legacy: 1}},
	{ID: 34, Role: RolePolitician, Label: "Martian Independence", FlavorText: "A new flag over the dome.", VictoryPoints: 6, SystemHealth: -3, Cost: Bundle{Government: 5, Science: 2}},

	{ID: 41, Role: RoleResearcher, Label: "Atmospheric Study", FlavorText: "Understanding the thin air.", VictoryPoints: 2, Cost: Bundle{Science: 2, Legacy: 1}},
	{ID: 42, Role: RoleResearcher, Label: "Radiation Shielding", FlavorText: "Fewer sick days for everyone.", VictoryPoints: 3, SystemHealth: 3, Cost: Bundle{Science: 3, Finance: 1}},
	{ID: 43, Role: RoleResearcher, Label: "Microbe Discovery", FlavorText: "Life, or something like it.", VictoryPoints: 4, Cost: Bundle{Science: 4, Culture: 1}},
	{ID: 44, Role: RoleResearcher, Label: "Terraforming Model", FlavorText: "A thousand-year plan.", VictoryPoints: 6, SystemHealth: -2, Cost: Bundle{Science: 5, Government: 2}},
}

func accomplishmentsOf(role Role) []Accomplishment {
	var out []Accomplishment
	for _, a := range accomplishmentCatalog {
		if a.Role == role {
			out = append(out, a)
		}
	}
	return out
}

// Mars event kinds
const (
	EventKindSystemHealth = "systemHealth"
	EventKindResources    = "resources"
	EventKindCosts        = "costs"
	EventKindHeroOrPariah = "heroOrPariah"
)

// EventDefinition はイベントデッキの1枚です。
type EventDefinition struct {
	Kind   string
	Name   string
	Effect string
	// SystemHealth はシステムヘルスの増減です。
	SystemHealth int
	// Inventory は対象プレイヤーのインベントリの増減です。減少は0で止まります。
	Inventory Bundle
	// Target が空なら全員が対象です。
	Target Role
	// CostDelta は次のラウンドの投資コストの増減です。コストは1未満になりません。
	CostDelta Bundle
	// HeroOrPariah は "hero" か "pariah" です。
	HeroOrPariah string
}

// DefaultDeck はMarsイベントのデッキです。
func DefaultDeck() []EventDefinition {
	return []EventDefinition{
		{Kind: EventKindSystemHealth, Name: "Dust Storm", Effect: "System health is reduced by 10.", SystemHealth: -10},
		{Kind: EventKindSystemHealth, Name: "Solar Flare", Effect: "System health is reduced by 15.", SystemHealth: -15},
		{Kind: EventKindSystemHealth, Name: "Meteor Strike", Effect: "System health is reduced by 20.", SystemHealth: -20},
		{Kind: EventKindSystemHealth, Name: "Supply Drop", Effect: "System health is increased by 5.", SystemHealth: 5},
		{Kind: EventKindSystemHealth, Name: "Stable Season", Effect: "Nothing happens this round."},
		{Kind: EventKindResources, Name: "Lost Shipment", Effect: "Every player loses 1 finance.", Inventory: Bundle{Finance: -1}},
		{Kind: EventKindResources, Name: "Cultural Exchange", Effect: "Every player gains 1 culture.", Inventory: Bundle{Culture: 1}},
		{Kind: EventKindResources, Name: "Lab Fire", Effect: "The Researcher loses 2 science.", Inventory: Bundle{Science: -2}, Target: RoleResearcher},
		{Kind: EventKindResources, Name: "Charter Dispute", Effect: "The Politician loses 2 government.", Inventory: Bundle{Government: -2}, Target: RolePolitician},
		{Kind: EventKindCosts, Name: "Efficiency Drive", Effect: "Science costs 1 less time block next round.", CostDelta: Bundle{Science: -1}},
		{Kind: EventKindCosts, Name: "Red Tape", Effect: "Government costs 1 more time block next round.", CostDelta: Bundle{Government: 1}},
		{Kind: EventKindHeroOrPariah, Name: "Hero or Pariah", Effect: "The colony will name a hero.", HeroOrPariah: "hero"},
		{Kind: EventKindHeroOrPariah, Name: "Blame Game", Effect: "The colony will name a pariah.", HeroOrPariah: "pariah"},
		{Kind: EventKindSystemHealth, Name: "Hull Breach", Effect: "System health is reduced by 25.", SystemHealth: -25},
	}
}
