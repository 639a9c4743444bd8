package ledger

import (
	"context"

	"github.com/Tico4Chain-Coders/DAPP-Trustless-Work/internal/escrow"
)

// Bridge adapts Client to the interfaces the escrow service consumes.
// It owns the translation between escrow domain types and the wire
// payloads the transaction service expects.
type Bridge struct {
	client *Client
}

// NewBridge wraps a ledger client.
func NewBridge(client *Client) *Bridge {
	return &Bridge{client: client}
}

// InitializeEscrow deploys the escrow defined by the payload and returns
// the ledger-assigned contract id.
func (b *Bridge) InitializeEscrow(ctx context.Context, payload escrow.CreatePayload, issuer string) (string, error) {
	milestones := make([]MilestonePayload, len(payload.Milestones))
	for i, m := range payload.Milestones {
		milestones[i] = MilestonePayload{
			Description: m.Description,
			Amount:      m.Amount,
			Flag:        m.Flag,
		}
	}

	return b.client.InitializeEscrow(ctx, InitializePayload{
		Title:           payload.Title,
		EngagementID:    payload.EngagementID,
		Description:     payload.Description,
		Client:          payload.Client,
		ServiceProvider: payload.ServiceProvider,
		PlatformAddress: payload.PlatformAddress,
		PlatformFee:     payload.PlatformFee,
		Amount:          payload.Amount,
		ReleaseSigner:   payload.ReleaseSigner,
		DisputeResolver: payload.DisputeResolver,
		Issuer:          issuer,
		Milestones:      milestones,
	})
}

// SubmitFunding moves funds into an existing contract and reduces the
// ledger's verdict to an accept/reject outcome.
func (b *Bridge) SubmitFunding(ctx context.Context, contractID, signerAddr, amount string) (*escrow.TxOutcome, error) {
	result, err := b.client.SubmitFunding(ctx, contractID, signerAddr, amount)
	if err != nil {
		return nil, err
	}
	return &escrow.TxOutcome{
		Accepted: result.Successful(),
		Message:  result.Message,
	}, nil
}

var _ escrow.LedgerClient = (*Bridge)(nil)
