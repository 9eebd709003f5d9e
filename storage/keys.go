package storage

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/vocdoni/maci-voter/types"
)

// pairKey joins two normalized addresses (or an address and a decimal id)
// into a storage key.
func pairKey(a, b string) []byte {
	return []byte(a + "/" + b)
}

func normalizedPair(a, b string) ([]byte, error) {
	na, err := types.NormalizeAddress(a)
	if err != nil {
		return nil, err
	}
	nb, err := types.NormalizeAddress(b)
	if err != nil {
		return nil, err
	}
	return pairKey(na, nb), nil
}

// VotingKey returns the voting key stored for (contract, wallet), or
// ErrNotFound.
func (s *Storage) VotingKey(contract, wallet string) (*VotingKey, error) {
	key, err := normalizedPair(contract, wallet)
	if err != nil {
		return nil, err
	}
	ck := cacheKey(votingKeyPrefix, key)
	if v, ok := s.cache.Get(ck); ok {
		return v.(*VotingKey), nil
	}
	vk := new(VotingKey)
	if err := s.getArtifact(votingKeyPrefix, key, vk); err != nil {
		return nil, err
	}
	s.cache.Add(ck, vk)
	return vk, nil
}

// FetchOrCreateVotingKey returns the voting key stored for (contract,
// wallet). If there is none, generate is called once and its result is
// persisted. The returned bool is true when a new key was stored. The
// sequence is atomic for concurrent callers on the same Storage.
func (s *Storage) FetchOrCreateVotingKey(contract, wallet string,
	generate func() (*VotingKey, error),
) (*VotingKey, bool, error) {
	key, err := normalizedPair(contract, wallet)
	if err != nil {
		return nil, false, err
	}
	s.globalLock.Lock()
	defer s.globalLock.Unlock()

	existing := new(VotingKey)
	err = s.getArtifact(votingKeyPrefix, key, existing)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, false, err
	}
	vk, err := generate()
	if err != nil {
		return nil, false, err
	}
	if err := s.createArtifact(votingKeyPrefix, key, vk); err != nil {
		return nil, false, fmt.Errorf("could not store voting key: %w", err)
	}
	s.cache.Add(cacheKey(votingKeyPrefix, key), vk)
	return vk, true, nil
}

// Identity returns the identity stored for wallet, or ErrNotFound.
func (s *Storage) Identity(wallet string) (*Identity, error) {
	w, err := types.NormalizeAddress(wallet)
	if err != nil {
		return nil, err
	}
	ck := cacheKey(identityPrefix, []byte(w))
	if v, ok := s.cache.Get(ck); ok {
		return v.(*Identity), nil
	}
	id := new(Identity)
	if err := s.getArtifact(identityPrefix, []byte(w), id); err != nil {
		return nil, err
	}
	s.cache.Add(ck, id)
	return id, nil
}

// SetIdentity stores the identity of wallet. Identities are a pure function
// of the wallet signature, so an existing record is left untouched and
// returned instead.
func (s *Storage) SetIdentity(wallet string, id *Identity) (*Identity, error) {
	w, err := types.NormalizeAddress(wallet)
	if err != nil {
		return nil, err
	}
	s.globalLock.Lock()
	defer s.globalLock.Unlock()
	existing := new(Identity)
	if err := s.getArtifact(identityPrefix, []byte(w), existing); err == nil {
		return existing, nil
	}
	if err := s.createArtifact(identityPrefix, []byte(w), id); err != nil {
		return nil, fmt.Errorf("could not store identity: %w", err)
	}
	s.cache.Add(cacheKey(identityPrefix, []byte(w)), id)
	return id, nil
}

func nonceKey(wallet string, pollID *big.Int) ([]byte, error) {
	w, err := types.NormalizeAddress(wallet)
	if err != nil {
		return nil, err
	}
	if pollID == nil || pollID.Sign() < 0 {
		return nil, fmt.Errorf("invalid poll id %v", pollID)
	}
	return pairKey(w, pollID.String()), nil
}

// Nonce returns the stored nonce of (wallet, poll), or ErrNotFound.
func (s *Storage) Nonce(wallet string, pollID *big.Int) (uint64, error) {
	key, err := nonceKey(wallet, pollID)
	if err != nil {
		return 0, err
	}
	var n uint64
	if err := s.getArtifact(noncePrefix, key, &n); err != nil {
		return 0, err
	}
	return n, nil
}

// CompareAndSwapNonce sets the nonce of (wallet, poll) to next only if the
// stored value equals old. A missing record compares equal to missing, the
// value the caller treats as the default. It returns ErrValueChanged when the
// comparison fails.
func (s *Storage) CompareAndSwapNonce(wallet string, pollID *big.Int, old, missing, next uint64) error {
	key, err := nonceKey(wallet, pollID)
	if err != nil {
		return err
	}
	s.globalLock.Lock()
	defer s.globalLock.Unlock()

	current := missing
	if err := s.getArtifact(noncePrefix, key, &current); err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}
	if current != old {
		return fmt.Errorf("%w: have %d, expected %d", ErrValueChanged, current, old)
	}
	return s.setArtifact(noncePrefix, key, next)
}

// SignUp returns the registration of wallet on a MACI contract, or
// ErrNotFound.
func (s *Storage) SignUp(contract, wallet string) (*SignUp, error) {
	key, err := normalizedPair(contract, wallet)
	if err != nil {
		return nil, err
	}
	su := new(SignUp)
	if err := s.getArtifact(signUpPrefix, key, su); err != nil {
		return nil, err
	}
	return su, nil
}

// SetSignUp records a confirmed registration.
func (s *Storage) SetSignUp(contract, wallet string, su *SignUp) error {
	key, err := normalizedPair(contract, wallet)
	if err != nil {
		return err
	}
	return s.setArtifact(signUpPrefix, key, su)
}

// PollJoin returns the join record of wallet in poll, or ErrNotFound.
func (s *Storage) PollJoin(poll, wallet string) (*PollJoin, error) {
	key, err := normalizedPair(poll, wallet)
	if err != nil {
		return nil, err
	}
	pj := new(PollJoin)
	if err := s.getArtifact(pollJoinPrefix, key, pj); err != nil {
		return nil, err
	}
	return pj, nil
}

// SetPollJoin records a confirmed poll join.
func (s *Storage) SetPollJoin(poll, wallet string, pj *PollJoin) error {
	key, err := normalizedPair(poll, wallet)
	if err != nil {
		return err
	}
	return s.setArtifact(pollJoinPrefix, key, pj)
}

// DeletePollJoin removes a join record, used when a join is found to be
// stale on chain.
func (s *Storage) DeletePollJoin(poll, wallet string) error {
	key, err := normalizedPair(poll, wallet)
	if err != nil {
		return err
	}
	return s.deleteArtifact(pollJoinPrefix, key)
}

// VotingKeyOwners lists the (contract, wallet) pairs holding a voting key.
func (s *Storage) VotingKeyOwners() ([][2]string, error) {
	keys, err := s.listArtifacts(votingKeyPrefix)
	if err != nil {
		return nil, err
	}
	out := make([][2]string, 0, len(keys))
	for _, k := range keys {
		// normalized addresses are always 42 characters
		if len(k) != 42*2+1 {
			continue
		}
		out = append(out, [2]string{string(k[:42]), string(k[43:])})
	}
	return out, nil
}
