package server

import "math/big"

type depositRequest struct {
	// From 为空表示资金已在带外转入策略地址，只做记账
	From   string `json:"from"`
	Amount string `json:"amount"`
}

type faucetRequest struct {
	To     string `json:"to"`
	Amount string `json:"amount"`
}

type faucetResponse struct {
	To     string   `json:"to"`
	Minted *big.Int `json:"minted"`
}

type withdrawRequest struct {
	To     string `json:"to"`
	Amount string `json:"amount"`
}

type callerRequest struct {
	Caller string `json:"caller"`
}

type unlockTimeRequest struct {
	Caller     string `json:"caller"`
	UnlockTime uint64 `json:"unlock_time"`
}

type emergencyFreeRequest struct {
	Caller string `json:"caller"`
	Amount string `json:"amount"`
}

type withdrawLimitResponse struct {
	Account string   `json:"account"`
	Limit   *big.Int `json:"limit"`
}

type emergencyFreeResponse struct {
	Recovered *big.Int `json:"recovered"`
}

type errorResponse struct {
	Code  string `json:"code"`
	Error string `json:"error"`
}
