package application

import (
	"fmt"

	"portofmars/server/domain"
)

// クライアントからのゲームコマンド
const (
	CommandReady                  domain.MessageType = "ready"
	CommandInvest                 domain.MessageType = "invest"
	CommandProposeTrade           domain.MessageType = "propose-trade"
	CommandAcceptTrade            domain.MessageType = "accept-trade"
	CommandRejectTrade            domain.MessageType = "reject-trade"
	CommandPurchaseAccomplishment domain.MessageType = "purchase-accomplishment"
	CommandSendChat               domain.MessageType = "send-chat"
)

// ReadyPayload は省略可能です。省略した場合は準備完了として扱います。
type ReadyPayload struct {
	Ready *bool `json:"ready,omitempty"`
}

type ProposeTradePayload struct {
	To   Role   `json:"to"`
	Give Bundle `json:"give"`
	Get  Bundle `json:"get"`
}

type TradeIDPayload struct {
	ID string `json:"id"`
}

type PurchasePayload struct {
	ID int `json:"id"`
}

type SendChatPayload struct {
	Message string `json:"message"`
}

// decodePayload はpayloadを解釈し、失敗をErrInvalidCommandとして返します。
func decodePayload[T any](env domain.Envelope) (T, error) {
	v, err := domain.DecodePayload[T](env)
	if err != nil {
		return v, fmt.Errorf("%w: %s: %w", domain.ErrInvalidCommand, env.Type, err)
	}
	return v, nil
}

func decodeReady(env domain.Envelope) (bool, error) {
	if len(env.Payload) == 0 {
		return true, nil
	}
	p, err := decodePayload[ReadyPayload](env)
	if err != nil {
		return false, err
	}
	if p.Ready == nil {
		return true, nil
	}
	return *p.Ready, nil
}
