package dca

import (
	"fmt"

	"github.com/gagliardetto/solana-go"
)

// VaultAuthority is the program-derived identity that controls a position's
// custody holdings. It has no private key and is never stored.
type VaultAuthority struct {
	Address   solana.PublicKey
	Bump      uint8
	ProgramID solana.PublicKey
	Owner     solana.PublicKey
	Position  solana.PublicKey
}

// DeriveVaultAuthority computes the vault authority for (owner, position)
// under programID. The result is deterministic.
func DeriveVaultAuthority(programID, owner, position solana.PublicKey) (VaultAuthority, error) {
	addr, bump, err := solana.FindProgramAddress(vaultSeeds(owner, position), programID)
	if err != nil {
		return VaultAuthority{}, fmt.Errorf("deriving vault authority: %w", err)
	}
	return VaultAuthority{
		Address:   addr,
		Bump:      bump,
		ProgramID: programID,
		Owner:     owner,
		Position:  position,
	}, nil
}

func vaultSeeds(owner, position solana.PublicKey) [][]byte {
	return [][]byte{owner.Bytes(), position.Bytes()}
}

// Proof returns the program proof that authorizes spends from this vault.
func (v VaultAuthority) Proof() ProgramProof {
	return ProgramProof{
		ProgramID: v.ProgramID,
		Seeds:     vaultSeeds(v.Owner, v.Position),
		Bump:      v.Bump,
	}
}

// Holding returns the vault's associated holding for mint.
func (v VaultAuthority) Holding(mint solana.PublicKey) (solana.PublicKey, error) {
	addr, _, err := solana.FindAssociatedTokenAddress(v.Address, mint)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("finding vault holding: %w", err)
	}
	return addr, nil
}

// ProgramProof is program-proved authorization: the seeds and bump from
// which ProgramID derives an address. Only ProgramID itself may present it.
type ProgramProof struct {
	ProgramID solana.PublicKey
	Seeds     [][]byte
	Bump      uint8
}

// Address recomputes the address the proof authorizes.
func (p ProgramProof) Address() (solana.PublicKey, error) {
	seeds := make([][]byte, 0, len(p.Seeds)+1)
	seeds = append(seeds, p.Seeds...)
	seeds = append(seeds, []byte{p.Bump})
	addr, err := solana.CreateProgramAddress(seeds, p.ProgramID)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("%w: %v", ErrAuthorityDerivationMismatch, err)
	}
	return addr, nil
}
