// Package onramp integrates the hosted fiat-to-crypto checkout used for
// card-path escrow funding. The gateway never touches funds itself: it
// builds the redirect URL and verifies the signed callback the provider
// sends once the purchase settles.
package onramp

import (
	"fmt"
	"net/url"
)

// Gateway builds hosted checkout URLs for the fiat on-ramp provider.
type Gateway struct {
	apiKey        string
	baseURL       string
	currency      string
	publicBaseURL string
}

// NewGateway creates a checkout URL builder. baseURL is the provider's
// hosted widget origin; publicBaseURL is this service's externally
// reachable origin, used for the settlement callback.
func NewGateway(apiKey, baseURL, currency, publicBaseURL string) *Gateway {
	return &Gateway{
		apiKey:        apiKey,
		baseURL:       baseURL,
		currency:      currency,
		publicBaseURL: publicBaseURL,
	}
}

// CheckoutURL builds the provider redirect for one pending deposit. The
// token round-trips through the provider and comes back in the callback
// so the deposit can be matched to its escrow.
func (g *Gateway) CheckoutURL(contractID, engagementID, amount, token string) string {
	q := url.Values{}
	q.Set("apiKey", g.apiKey)
	q.Set("theme", "dark")
	q.Set("defaultCurrencyCode", g.currency)
	q.Set("baseCurrencyAmount", amount)
	q.Set("colorCode", "#7d01ff")
	q.Set("externalTransactionId", token)
	q.Set("contractId", contractID)
	if engagementID != "" {
		q.Set("engagementId", engagementID)
	}
	if g.publicBaseURL != "" {
		q.Set("callbackUrl", fmt.Sprintf("%s/v1/onramp/callback", g.publicBaseURL))
	}
	return g.baseURL + "?" + q.Encode()
}
