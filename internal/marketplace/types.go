package marketplace

import "time"

// ClaimType filters the return-query API by event type.
type ClaimType string

const (
	ClaimTypeReturn ClaimType = "RETURN"
	ClaimTypeCancel ClaimType = "CANCEL"
)

// ReturnEvent is one return/cancellation claim as reported by the source
// marketplace.
type ReturnEvent struct {
	ReceiptID      string    `json:"receiptId"`
	OrderID        string    `json:"orderId"`
	ProductName    string    `json:"productName"`
	RecipientName  string    `json:"recipientName"`
	RecipientPhone string    `json:"recipientPhone"`
	ClaimType      ClaimType `json:"claimType"`
	ClaimStatus    string    `json:"claimStatus"`
	ReasonCategory string    `json:"claimReason"`
	RequestedAt    time.Time `json:"requestedAt"`
}

// FetchOptions narrows a return-event query.
type FetchOptions struct {
	ClaimType   ClaimType
	ClaimStatus string
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
	TokenType   string `json:"token_type"`
}

type claimsPage struct {
	Contents  []ReturnEvent `json:"contents"`
	Page      int           `json:"page"`
	TotalPage int           `json:"totalPages"`
}
