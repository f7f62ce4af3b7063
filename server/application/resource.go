package application

import (
	"fmt"
	"strings"
)

// Role はプレイヤーの席です。1セッションに各ロール1人ずつ着席します。
type Role string

const (
	RoleCurator      Role = "Curator"
	RoleEntrepreneur Role = "Entrepreneur"
	RolePioneer      Role = "Pioneer"
	RolePolitician   Role = "Politician"
	RoleResearcher   Role = "Researcher"
)

// Roles はロールの正規順です。席の割り当て、勝者、アーカイブはこの順に並びます。
var Roles = []Role{RoleCurator, RoleEntrepreneur, RolePioneer, RolePolitician, RoleResearcher}

func (r Role) String() string { return string(r) }

func (r Role) Valid() bool {
	for _, v := range Roles {
		if v == r {
			return true
		}
	}
	return false
}

// ParseRole は大文字小文字を区別せずにロール名を解釈します。
func ParseRole(s string) (Role, error) {
	for _, v := range Roles {
		if strings.EqualFold(string(v), s) {
			return v, nil
		}
	}
	return "", fmt.Errorf("unknown role %q", s)
}

type Resource string

const (
	ResourceCulture    Resource = "culture"
	ResourceFinance    Resource = "finance"
	ResourceGovernment Resource = "government"
	ResourceLegacy     Resource = "legacy"
	ResourceScience    Resource = "science"
)

var Resources = []Resource{ResourceCulture, ResourceFinance, ResourceGovernment, ResourceLegacy, ResourceScience}

// CostUnavailable はそのロールが投資できない資源のコストです。
const CostUnavailable = 1000

// Bundle は資源ごとの量です。インベントリ、コスト、取引の内容に使います。
type Bundle struct {
	Culture    int `patch:"culture" json:"culture"`
	Finance    int `patch:"finance" json:"finance"`
	Government int `patch:"government" json:"government"`
	Legacy     int `patch:"legacy" json:"legacy"`
	Science    int `patch:"science" json:"science"`
}

func (b *Bundle) ref(r Resource) *int {
	switch r {
	case ResourceCulture:
		return &b.Culture
	case ResourceFinance:
		return &b.Finance
	case ResourceGovernment:
		return &b.Government
	case ResourceLegacy:
		return &b.Legacy
	case ResourceScience:
		return &b.Science
	default:
		return nil
	}
}

func (b Bundle) Get(r Resource) int {
	if p := b.ref(r); p != nil {
		return *p
	}
	return 0
}

func (b *Bundle) Set(r Resource, v int) {
	if p := b.ref(r); p != nil {
		*p = v
	}
}

func (b Bundle) Add(o Bundle) Bundle {
	for _, r := range Resources {
		b.Set(r, b.Get(r)+o.Get(r))
	}
	return b
}

func (b Bundle) Sub(o Bundle) Bundle {
	for _, r := range Resources {
		b.Set(r, b.Get(r)-o.Get(r))
	}
	return b
}

// Covers はbが全ての資源でneed以上を持っているかどうかを返します。
func (b Bundle) Covers(need Bundle) bool {
	for _, r := range Resources {
		if b.Get(r) < need.Get(r) {
			return false
		}
	}
	return true
}

func (b Bundle) Total() int {
	n := 0
	for _, r := range Resources {
		n += b.Get(r)
	}
	return n
}

func (b Bundle) IsZero() bool { return b == Bundle{} }

func (b Bundle) hasNegative() bool {
	for _, r := range Resources {
		if b.Get(r) < 0 {
			return true
		}
	}
	return false
}

func (b Bundle) String() string {
	var parts []string
	for _, r := range Resources {
		if v := b.Get(r); v != 0 {
			parts = append(parts, fmt.Sprintf("%d %s", v, r))
		}
	}
	if len(parts) == 0 {
		return "nothing"
	}
	return strings.Join(parts, ", ")
}
