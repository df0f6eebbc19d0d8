package hub

import "splpulse/internal/models"

type connectedMsg struct {
	Type     string `json:"type"`
	SocketID string `json:"socketId"`
	Message  string `json:"message"`
	Usage    string `json:"usage"`
}

type subscriptionErrorMsg struct {
	Type    string `json:"type"`
	Mint    string `json:"mint"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

type subscriptionStatusMsg struct {
	Type   string `json:"type"`
	Mint   string `json:"mint"`
	Status string `json:"status"`
}

type subscriptionSuccessMsg struct {
	Type               string `json:"type"`
	Mint               string `json:"mint"`
	TotalSubscriptions int    `json:"totalSubscriptions"`
}

type unsubscriptionSuccessMsg struct {
	Type               string `json:"type"`
	Mint               string `json:"mint"`
	TotalSubscriptions int    `json:"totalSubscriptions"`
}

type priceUpdateMsg struct {
	Type string               `json:"type"`
	Data models.PriceSnapshot `json:"data"`
}

type errorMsg struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}
