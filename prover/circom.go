package prover

import (
	"encoding/json"
	"fmt"
	"math/big"
	"strings"

	curve "github.com/consensys/gnark-crypto/ecc/bn254"
	bn254fr "github.com/consensys/gnark-crypto/ecc/bn254/fr"
	groth16_bn254 "github.com/consensys/gnark/backend/groth16/bn254"
)

// CircomProof is a Groth16 proof as snarkjs and rapidsnark print it.
type CircomProof struct {
	PiA      []string   `json:"pi_a"`
	PiB      [][]string `json:"pi_b"`
	PiC      []string   `json:"pi_c"`
	Protocol string     `json:"protocol"`
}

// CircomVerificationKey is a snarkjs verification key.
type CircomVerificationKey struct {
	Protocol string     `json:"protocol"`
	Curve    string     `json:"curve"`
	NPublic  int        `json:"nPublic"`
	VkAlpha1 []string   `json:"vk_alpha_1"`
	VkBeta2  [][]string `json:"vk_beta_2"`
	VkGamma2 [][]string `json:"vk_gamma_2"`
	VkDelta2 [][]string `json:"vk_delta_2"`
	IC       [][]string `json:"IC"`
}

// ParseProof decodes a proof and its public signals.
func ParseProof(proofJSON, publicSignalsJSON []byte) (*CircomProof, []string, error) {
	proof := new(CircomProof)
	if err := json.Unmarshal(proofJSON, proof); err != nil {
		return nil, nil, fmt.Errorf("parse proof: %w", err)
	}
	var signals []string
	if err := json.Unmarshal(publicSignalsJSON, &signals); err != nil {
		return nil, nil, fmt.Errorf("parse public signals: %w", err)
	}
	return proof, signals, nil
}

// ParseVerificationKey decodes a snarkjs verification key.
func ParseVerificationKey(data []byte) (*CircomVerificationKey, error) {
	vk := new(CircomVerificationKey)
	if err := json.Unmarshal(data, vk); err != nil {
		return nil, fmt.Errorf("parse verification key: %w", err)
	}
	return vk, nil
}

// Verify checks a circom Groth16 proof with the gnark bn254 verifier.
func Verify(vk *CircomVerificationKey, proof *CircomProof, publicSignals []string) error {
	if len(vk.IC) != len(publicSignals)+1 {
		return fmt.Errorf("verification key expects %d public signals, got %d", len(vk.IC)-1, len(publicSignals))
	}
	inputs, err := convertPublicInputs(publicSignals)
	if err != nil {
		return err
	}
	gp, err := convertProof(proof)
	if err != nil {
		return err
	}
	gvk, err := convertVerificationKey(vk)
	if err != nil {
		return err
	}
	if err := groth16_bn254.Verify(gp, gvk, inputs); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidProof, err)
	}
	return nil
}

// SolidityProof lays the proof out as the on-chain verifier takes it:
// [a.x, a.y, b.x1, b.x0, b.y1, b.y0, c.x, c.y].
func SolidityProof(p *CircomProof) ([8]*big.Int, error) {
	var out [8]*big.Int
	if len(p.PiA) < 2 || len(p.PiC) < 2 || len(p.PiB) < 2 || len(p.PiB[0]) < 2 || len(p.PiB[1]) < 2 {
		return out, fmt.Errorf("malformed proof")
	}
	values := []string{
		p.PiA[0], p.PiA[1],
		p.PiB[0][1], p.PiB[0][0], p.PiB[1][1], p.PiB[1][0],
		p.PiC[0], p.PiC[1],
	}
	for i, v := range values {
		bi, err := stringToBigInt(v)
		if err != nil {
			return out, fmt.Errorf("proof element %d: %w", i, err)
		}
		out[i] = bi
	}
	return out, nil
}

func convertPublicInputs(signals []string) ([]bn254fr.Element, error) {
	inputs := make([]bn254fr.Element, len(signals))
	for i, s := range signals {
		bi, err := stringToBigInt(s)
		if err != nil {
			return nil, fmt.Errorf("public signal %d: %w", i, err)
		}
		inputs[i].SetBigInt(bi)
	}
	return inputs, nil
}

func convertProof(p *CircomProof) (*groth16_bn254.Proof, error) {
	ar, err := stringToG1(p.PiA)
	if err != nil {
		return nil, fmt.Errorf("pi_a: %w", err)
	}
	krs, err := stringToG1(p.PiC)
	if err != nil {
		return nil, fmt.Errorf("pi_c: %w", err)
	}
	bs, err := stringToG2(p.PiB)
	if err != nil {
		return nil, fmt.Errorf("pi_b: %w", err)
	}
	return &groth16_bn254.Proof{Ar: *ar, Krs: *krs, Bs: *bs}, nil
}

func convertVerificationKey(v *CircomVerificationKey) (*groth16_bn254.VerifyingKey, error) {
	alpha, err := stringToG1(v.VkAlpha1)
	if err != nil {
		return nil, fmt.Errorf("vk_alpha_1: %w", err)
	}
	beta, err := stringToG2(v.VkBeta2)
	if err != nil {
		return nil, fmt.Errorf("vk_beta_2: %w", err)
	}
	gamma, err := stringToG2(v.VkGamma2)
	if err != nil {
		return nil, fmt.Errorf("vk_gamma_2: %w", err)
	}
	delta, err := stringToG2(v.VkDelta2)
	if err != nil {
		return nil, fmt.Errorf("vk_delta_2: %w", err)
	}
	k := make([]curve.G1Affine, len(v.IC))
	for i, ic := range v.IC {
		p, err := stringToG1(ic)
		if err != nil {
			return nil, fmt.Errorf("IC[%d]: %w", i, err)
		}
		k[i] = *p
	}
	vk := &groth16_bn254.VerifyingKey{}
	vk.G1.Alpha = *alpha
	vk.G1.K = k
	vk.G2.Beta = *beta
	vk.G2.Gamma = *gamma
	vk.G2.Delta = *delta
	if err := vk.Precompute(); err != nil {
		return nil, fmt.Errorf("precompute verification key: %w", err)
	}
	return vk, nil
}

func stringToBigInt(s string) (*big.Int, error) {
	if hexa, ok := strings.CutPrefix(s, "0x"); ok {
		bi, ok := new(big.Int).SetString(hexa, 16)
		if !ok {
			return nil, fmt.Errorf("invalid hex number %q", s)
		}
		return bi, nil
	}
	bi, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("invalid decimal number %q", s)
	}
	return bi, nil
}

// coordinateBytes returns the 32 byte big endian form of a coordinate.
// snarkjs prints the point at infinity with a "1" coordinate, which the
// gnark encoding expects as zero.
func coordinateBytes(s string) ([]byte, error) {
	if s == "1" {
		s = "0"
	}
	bi, err := stringToBigInt(s)
	if err != nil {
		return nil, err
	}
	if bi.BitLen() > 256 {
		return nil, fmt.Errorf("coordinate %q too large", s)
	}
	return bi.FillBytes(make([]byte, 32)), nil
}

// stringToG1 decodes [x, y, z] in affine form, ignoring z.
func stringToG1(h []string) (*curve.G1Affine, error) {
	if len(h) < 2 {
		return nil, fmt.Errorf("not enough coordinates for a G1 point")
	}
	var b []byte
	for _, s := range h[:2] {
		cb, err := coordinateBytes(s)
		if err != nil {
			return nil, err
		}
		b = append(b, cb...)
	}
	p := new(curve.G1Affine)
	if _, err := p.SetBytes(b); err != nil {
		return nil, err
	}
	return p, nil
}

// stringToG2 decodes [[x0, x1], [y0, y1], z]. gnark serializes each E2
// coordinate with the imaginary part first.
func stringToG2(h [][]string) (*curve.G2Affine, error) {
	if len(h) < 2 || len(h[0]) < 2 || len(h[1]) < 2 {
		return nil, fmt.Errorf("not enough coordinates for a G2 point")
	}
	var b []byte
	for _, s := range []string{h[0][1], h[0][0], h[1][1], h[1][0]} {
		cb, err := coordinateBytes(s)
		if err != nil {
			return nil, err
		}
		b = append(b, cb...)
	}
	p := new(curve.G2Affine)
	if _, err := p.SetBytes(b); err != nil {
		return nil, err
	}
	return p, nil
}

