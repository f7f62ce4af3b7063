package domain

// DisconnectKind はクライアントの切断をどう扱うかの分類です。
type DisconnectKind uint8

const (
	// DisconnectBenign はユーザーに通知しない切断です。
	DisconnectBenign DisconnectKind = iota
	// DisconnectRefreshable はクライアントが再読み込みするべき切断です。
	DisconnectRefreshable
	// DisconnectRetryable は再接続を促すべき切断です。
	DisconnectRetryable
)

const (
	CloseNormal          int32 = 1000
	CloseGoingAway       int32 = 1001
	CloseProtocolError   int32 = 1002
	CloseUnsupportedData int32 = 1003
	CloseNoStatus        int32 = 1005
	CloseAbnormal        int32 = 1006
	ClosePolicyViolation int32 = 1008
	CloseInternalError   int32 = 1011
	CloseTLSHandshake    int32 = 1015
	// CloseReplaced は同じロールに新しい接続が来たときに古い接続を閉じるコードです。
	CloseReplaced int32 = 4000
)

func (k DisconnectKind) String() string {
	switch k {
	case DisconnectBenign:
		return "benign"
	case DisconnectRefreshable:
		return "refreshable"
	default:
		return "retryable"
	}
}

// ClassifyDisconnect は切断コードを分類します。セッションが終了フェーズなら常に benign です。
func ClassifyDisconnect(code int32, terminal bool) DisconnectKind {
	if terminal || code == CloseNormal {
		return DisconnectBenign
	}
	if code == CloseProtocolError || code == CloseUnsupportedData ||
		(code >= CloseNoStatus && code <= CloseTLSHandshake) {
		return DisconnectRefreshable
	}
	return DisconnectRetryable
}
