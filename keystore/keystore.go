// Package keystore keeps one MACI voting keypair per (wallet, voting
// contract). A key is created on first use and never changes afterwards.
package keystore

import (
	"errors"
	"fmt"

	"github.com/vocdoni/maci-voter/crypto/maci"
	"github.com/vocdoni/maci-voter/log"
	"github.com/vocdoni/maci-voter/storage"
)

// ErrKeyMismatch is returned by Import when a different key is already
// stored for the pair.
var ErrKeyMismatch = errors.New("a different voting key is already stored")

// KeyStore resolves voting keys from storage.
type KeyStore struct {
	storage *storage.Storage
}

// New returns a KeyStore backed by st.
func New(st *storage.Storage) *KeyStore {
	return &KeyStore{storage: st}
}

func toKeypair(vk *storage.VotingKey) (*maci.Keypair, error) {
	sk, err := maci.ParsePrivateKey(vk.PrivKey)
	if err != nil {
		return nil, fmt.Errorf("stored voting key is corrupt: %w", err)
	}
	return maci.KeypairFromPrivateKey(sk), nil
}

func toRecord(kp *maci.Keypair) *storage.VotingKey {
	return &storage.VotingKey{PrivKey: kp.PrivKey.Serialize(), PubKey: kp.PubKey.Serialize()}
}

// GetKey returns the key of wallet for contract, or nil if none exists yet.
// It fails with types.ErrMissingWallet if wallet is empty.
func (k *KeyStore) GetKey(contract, wallet string) (*maci.Keypair, error) {
	vk, err := k.storage.VotingKey(contract, wallet)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return toKeypair(vk)
}

// CreateKey returns the key of wallet for contract, generating and storing a
// new random one if none exists. Repeated and concurrent calls return the
// same key.
func (k *KeyStore) CreateKey(contract, wallet string) (*maci.Keypair, error) {
	vk, created, err := k.storage.FetchOrCreateVotingKey(contract, wallet, func() (*storage.VotingKey, error) {
		return toRecord(maci.NewKeypair()), nil
	})
	if err != nil {
		return nil, err
	}
	kp, err := toKeypair(vk)
	if err != nil {
		return nil, err
	}
	if created {
		log.Infow("voting key created", "contract", contract, "wallet", wallet, "pubKey", kp.PubKey.Serialize())
	}
	return kp, nil
}

// Import stores a key exported with Export. Importing the key that is
// already stored is a no-op; any other existing key yields ErrKeyMismatch.
func (k *KeyStore) Import(contract, wallet, serialized string) (*maci.Keypair, error) {
	sk, err := maci.ParsePrivateKey(serialized)
	if err != nil {
		return nil, err
	}
	kp := maci.KeypairFromPrivateKey(sk)
	vk, _, err := k.storage.FetchOrCreateVotingKey(contract, wallet, func() (*storage.VotingKey, error) {
		return toRecord(kp), nil
	})
	if err != nil {
		return nil, err
	}
	if vk.PrivKey != kp.PrivKey.Serialize() {
		return nil, ErrKeyMismatch
	}
	return kp, nil
}

// Export returns the macisk. form of the stored key, or "" if there is none.
func (k *KeyStore) Export(contract, wallet string) (string, error) {
	kp, err := k.GetKey(contract, wallet)
	if err != nil || kp == nil {
		return "", err
	}
	return kp.PrivKey.Serialize(), nil
}
