/**
 * @description
 * This package provides a client for a VTU (virtual top-up) airtime vendor.
 * The vendor exposes a query-string API: one GET request per purchase carrying
 * the caller's credentials, the mobile network, amount and phone number, and a
 * caller-supplied request id that makes retries idempotent on the vendor side.
 *
 * @dependencies
 * - context, encoding/json, fmt, net/http, net/url, time: Standard Go libraries.
 */
package airtimeclient

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Network ids the vendor accepts.
const (
	NetworkMTN      = "01"
	NetworkGlo      = "02"
	NetworkEtisalat = "03"
	NetworkAirtel   = "04"
)

// Client is a client for the VTU vendor API.
type Client struct {
	BaseURL    string
	UserID     string
	APIKey     string
	HTTPClient *http.Client
}

// NewClient creates a new VTU client.
func NewClient(baseURL, userID, apiKey string) *Client {
	return &Client{
		BaseURL: baseURL,
		UserID:  userID,
		APIKey:  apiKey,
		HTTPClient: &http.Client{
			Timeout: 20 * time.Second,
		},
	}
}

// Order is the vendor's record of a top-up purchase.
type Order struct {
	OrderID string `json:"orderid"`
	Status  string `json:"status"`
	Remark  string `json:"remark"`
}

// Successful reports whether the vendor accepted the order.
func (o *Order) Successful() bool {
	s := strings.ToUpper(o.Status)
	return s == "ORDER_RECEIVED" || s == "ORDER_COMPLETED" || s == "SUCCESSFUL"
}

// NetworkForName maps a carrier name to the vendor's network id. Ported
// numbers keep their old prefix, so a caller-stated carrier must win over
// prefix inference.
func NetworkForName(name string) (string, bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "mtn":
		return NetworkMTN, true
	case "glo", "globacom":
		return NetworkGlo, true
	case "airtel":
		return NetworkAirtel, true
	case "9mobile", "etisalat":
		return NetworkEtisalat, true
	}
	return "", false
}

// NetworkForPrefix maps a Nigerian phone number to the vendor's network id.
// Returns false when the prefix is not recognized.
func NetworkForPrefix(phone string) (string, bool) {
	p := strings.TrimPrefix(phone, "+234")
	p = strings.TrimPrefix(p, "234")
	if !strings.HasPrefix(p, "0") {
		p = "0" + p
	}
	if len(p) < 4 {
		return "", false
	}
	switch p[:4] {
	case "0803", "0806", "0703", "0706", "0813", "0816", "0810", "0814", "0903", "0906", "0913", "0916", "0704":
		return NetworkMTN, true
	case "0805", "0807", "0705", "0815", "0811", "0905", "0915":
		return NetworkGlo, true
	case "0802", "0808", "0708", "0812", "0901", "0902", "0904", "0907", "0912":
		return NetworkAirtel, true
	case "0809", "0818", "0817", "0909", "0908":
		return NetworkEtisalat, true
	}
	return "", false
}

// BuyAirtime purchases airtime for a phone number. Amount is in naira, as the
// vendor prices in whole naira. requestID deduplicates retried purchases.
func (c *Client) BuyAirtime(ctx context.Context, network, phone string, amountNaira int64, requestID string) (*Order, error) {
	params := url.Values{
		"UserID":        {c.UserID},
		"APIKey":        {c.APIKey},
		"MobileNetwork": {network},
		"Amount":        {strconv.FormatInt(amountNaira, 10)},
		"MobileNumber":  {phone},
		"RequestID":     {requestID},
	}

	req, err := http.NewRequestWithContext(ctx, "GET", c.BaseURL+"/APIAirtimeV1.asp?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create airtime request: %w", err)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute airtime request: %w", err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read airtime response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("airtime vendor error: status %d", resp.StatusCode)
	}

	var order Order
	if err := json.Unmarshal(bodyBytes, &order); err != nil {
		return nil, fmt.Errorf("failed to decode airtime response: %w", err)
	}
	return &order, nil
}
