// Package identity derives the anonymous group identity of a wallet. The
// identity is a pure function of the wallet's signature over a fixed message,
// so the same wallet can always recover it without storing secrets
// elsewhere.
package identity

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/vocdoni/maci-voter/crypto/maci"
	"github.com/vocdoni/maci-voter/log"
	"github.com/vocdoni/maci-voter/storage"
	"github.com/vocdoni/maci-voter/types"
)

// Message is the default text the wallet signs to derive its identity.
const Message = "Sign this message to generate your anonymous voting identity. This will not trigger a blockchain transaction or cost any gas."

// userRejectedCode is the EIP-1193 error code wallets use when the user
// declines a request.
const userRejectedCode = 4001

// ErrUserRejected is returned by signers when the user declines to sign.
var ErrUserRejected = fmt.Errorf("%w: user rejected the request", types.ErrSignatureRejected)

// WalletSigner signs personal messages on behalf of a wallet.
type WalletSigner interface {
	SignMessage(ctx context.Context, msg []byte) ([]byte, error)
}

// Identity is the anonymous identity of a wallet.
type Identity struct {
	PrivateKey maci.PrivateKey
	PublicKey  *maci.PublicKey
	Commitment *big.Int
	Signature  []byte
}

// FromSignature builds the identity deterministically from the wallet
// signature: the private key is keccak256(signature) used as a BabyJubJub
// seed and the commitment is Poseidon(pub.X, pub.Y).
func FromSignature(signature []byte) (*Identity, error) {
	if len(signature) == 0 {
		return nil, fmt.Errorf("empty signature")
	}
	var sk maci.PrivateKey
	copy(sk[:], ethcrypto.Keccak256(signature))
	pub := sk.Public()
	commitment, err := pub.Hash()
	if err != nil {
		return nil, fmt.Errorf("identity commitment: %w", err)
	}
	return &Identity{
		PrivateKey: sk,
		PublicKey:  pub,
		Commitment: commitment,
		Signature:  append([]byte(nil), signature...),
	}, nil
}

// Verify reports whether id is the identity its own signature derives to.
func Verify(id *Identity) bool {
	if id == nil || id.Commitment == nil {
		return false
	}
	derived, err := FromSignature(id.Signature)
	if err != nil {
		return false
	}
	return derived.PrivateKey == id.PrivateKey && derived.Commitment.Cmp(id.Commitment) == 0
}

// Deriver resolves identities, prompting the wallet only when no identity is
// stored yet.
type Deriver struct {
	storage *storage.Storage
	signer  WalletSigner
	message string
}

// NewDeriver returns a Deriver. An empty message selects Message.
func NewDeriver(st *storage.Storage, signer WalletSigner, message string) *Deriver {
	if message == "" {
		message = Message
	}
	return &Deriver{storage: st, signer: signer, message: message}
}

// Stored returns the identity stored for wallet without prompting, or nil.
func (d *Deriver) Stored(wallet string) (*Identity, error) {
	rec, err := d.storage.Identity(wallet)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	id, err := FromSignature(rec.Signature)
	if err != nil {
		return nil, err
	}
	if id.Commitment.Cmp(rec.Commitment.MathBigInt()) != 0 {
		return nil, fmt.Errorf("stored identity of %s does not match its signature", wallet)
	}
	return id, nil
}

// Derive returns the identity of wallet. A stored identity is returned
// without prompting; otherwise the signer is asked to sign the message and
// the result is persisted. A declined signature yields an error wrapping
// types.ErrSignatureRejected; other signer failures are reported with
// types.CodeWallet.
func (d *Deriver) Derive(ctx context.Context, wallet string) (*Identity, error) {
	if _, err := types.NormalizeAddress(wallet); err != nil {
		return nil, err
	}
	if id, err := d.Stored(wallet); err != nil || id != nil {
		return id, err
	}
	if d.signer == nil {
		return nil, types.ErrMissingWallet
	}
	sig, err := d.signer.SignMessage(ctx, []byte(d.message))
	if err != nil {
		return nil, classifySignerError(err)
	}
	id, err := FromSignature(sig)
	if err != nil {
		return nil, err
	}
	stored, err := d.storage.SetIdentity(wallet, &storage.Identity{
		PrivateKey: types.HexBytes(id.PrivateKey[:]),
		Commitment: types.FromBig(id.Commitment),
		Signature:  id.Signature,
	})
	if err != nil {
		return nil, err
	}
	// Another caller may have stored first; both derive from the same wallet
	// so the stored signature is authoritative.
	if stored.Commitment.MathBigInt().Cmp(id.Commitment) != 0 {
		return FromSignature(stored.Signature)
	}
	log.Infow("identity derived", "wallet", wallet, "commitment", id.Commitment.String())
	return id, nil
}

type codedError interface {
	ErrorCode() int
}

func classifySignerError(err error) error {
	if errors.Is(err, types.ErrSignatureRejected) {
		return err
	}
	var ce codedError
	if errors.As(err, &ce) && ce.ErrorCode() == userRejectedCode {
		return fmt.Errorf("%w: %w", types.ErrSignatureRejected, err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return types.NewBoundaryError(types.CodeTimeout, "sign identity message", err)
	}
	return types.NewBoundaryError(types.CodeWallet, "sign identity message", err)
}
