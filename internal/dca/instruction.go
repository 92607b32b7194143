package dca

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"

	"github.com/gagliardetto/solana-go"
)

// Instruction names.
const (
	InstructionDepositNative      = "deposit_native"
	InstructionDepositToken       = "deposit_token"
	InstructionInitializeSchedule = "initialize_schedule"
	InstructionExecuteSwap        = "execute_swap"
)

var instructionNames = []string{
	InstructionDepositNative,
	InstructionDepositToken,
	InstructionInitializeSchedule,
	InstructionExecuteSwap,
}

func instructionDiscriminator(name string) [8]byte {
	sum := sha256.Sum256([]byte("global:" + name))
	var d [8]byte
	copy(d[:], sum[:8])
	return d
}

// AccountMeta is one ordered account reference of an instruction.
type AccountMeta struct {
	PublicKey  solana.PublicKey
	IsSigner   bool
	IsWritable bool
}

// Instruction is the wire form of a program call: an 8-byte discriminator
// followed by little-endian arguments, plus ordered account references.
type Instruction struct {
	ProgramID solana.PublicKey
	Accounts  []AccountMeta
	Data      []byte
}

// Name returns the instruction name encoded in the discriminator, or "" if unknown.
func (ix Instruction) Name() string {
	if len(ix.Data) < 8 {
		return ""
	}
	for _, name := range instructionNames {
		if [8]byte(ix.Data[0:8]) == instructionDiscriminator(name) {
			return name
		}
	}
	return ""
}

// Message is the byte string signers sign over.
func (ix Instruction) Message() []byte {
	msg := make([]byte, 0, 32+2+len(ix.Accounts)*33+len(ix.Data))
	msg = append(msg, ix.ProgramID.Bytes()...)
	msg = binary.LittleEndian.AppendUint16(msg, uint16(len(ix.Accounts)))
	for _, a := range ix.Accounts {
		msg = append(msg, a.PublicKey.Bytes()...)
		var flags byte
		if a.IsSigner {
			flags |= 1
		}
		if a.IsWritable {
			flags |= 2
		}
		msg = append(msg, flags)
	}
	return append(msg, ix.Data...)
}

// SignedInstruction carries one signature per signer account, in account order.
type SignedInstruction struct {
	Instruction Instruction
	Signatures  []solana.Signature
}

// Sign signs ix with the keys matching its signer accounts.
func Sign(ix Instruction, keys ...solana.PrivateKey) (SignedInstruction, error) {
	msg := ix.Message()
	signed := SignedInstruction{Instruction: ix}
	for _, a := range ix.Accounts {
		if !a.IsSigner {
			continue
		}
		var found bool
		for _, k := range keys {
			if !k.PublicKey().Equals(a.PublicKey) {
				continue
			}
			sig, err := k.Sign(msg)
			if err != nil {
				return SignedInstruction{}, fmt.Errorf("signing instruction: %w", err)
			}
			signed.Signatures = append(signed.Signatures, sig)
			found = true
			break
		}
		if !found {
			return SignedInstruction{}, fmt.Errorf("%w: no key for %s", ErrMissingSignature, a.PublicKey)
		}
	}
	return signed, nil
}

// Verify checks every signature and returns the verified signer set.
func (s SignedInstruction) Verify() (Signers, error) {
	msg := s.Instruction.Message()
	var signers Signers
	i := 0
	for _, a := range s.Instruction.Accounts {
		if !a.IsSigner {
			continue
		}
		if i >= len(s.Signatures) {
			return nil, fmt.Errorf("%w: %s", ErrMissingSignature, a.PublicKey)
		}
		if !s.Signatures[i].Verify(a.PublicKey, msg) {
			return nil, fmt.Errorf("%w: bad signature for %s", ErrMissingSignature, a.PublicKey)
		}
		signers = append(signers, a.PublicKey)
		i++
	}
	if i != len(s.Signatures) {
		return nil, fmt.Errorf("%w: %d signatures for %d signer accounts", ErrInvalidInstruction, len(s.Signatures), i)
	}
	return signers, nil
}

// accountSlot binds one position in an account list to a request field.
type accountSlot struct {
	key      *solana.PublicKey
	signer   bool
	writable bool
}

func encodeAccounts(slots []accountSlot) []AccountMeta {
	metas := make([]AccountMeta, len(slots))
	for i, s := range slots {
		metas[i] = AccountMeta{PublicKey: *s.key, IsSigner: s.signer, IsWritable: s.writable}
	}
	return metas
}

func decodeAccounts(name string, metas []AccountMeta, slots []accountSlot) error {
	if len(metas) != len(slots) {
		return fmt.Errorf("%w: %s expects %d accounts, got %d", ErrInvalidInstruction, name, len(slots), len(metas))
	}
	for i, s := range slots {
		*s.key = metas[i].PublicKey
	}
	return nil
}

func encodeArgs(name string, args ...uint64) []byte {
	d := instructionDiscriminator(name)
	data := make([]byte, 0, 8+8*len(args))
	data = append(data, d[:]...)
	for _, a := range args {
		data = binary.LittleEndian.AppendUint64(data, a)
	}
	return data
}

// decodeArgs reads count u64 arguments after the discriminator and returns
// any remaining bytes.
func decodeArgs(name string, data []byte, count int) ([]uint64, []byte, error) {
	if len(data) < 8 || [8]byte(data[0:8]) != instructionDiscriminator(name) {
		return nil, nil, fmt.Errorf("%w: not a %s instruction", ErrInvalidInstruction, name)
	}
	data = data[8:]
	if len(data) < 8*count {
		return nil, nil, fmt.Errorf("%w: %s data too short", ErrInvalidInstruction, name)
	}
	args := make([]uint64, count)
	for i := range args {
		args[i] = binary.LittleEndian.Uint64(data[8*i:])
	}
	return args, data[8*count:], nil
}

// DepositMode selects how a repeat deposit treats the recorded total.
type DepositMode uint8

const (
	// DepositModeReset overwrites the recorded total with the new amount.
	DepositModeReset DepositMode = 0
	// DepositModeAccumulate adds the new amount to the recorded total.
	DepositModeAccumulate DepositMode = 1
)

func (m DepositMode) String() string {
	if m == DepositModeAccumulate {
		return "accumulate"
	}
	return "reset"
}

func encodeMode(data []byte, m DepositMode) []byte {
	if m == DepositModeReset {
		return data
	}
	return append(data, byte(m))
}

func decodeMode(name string, rest []byte) (DepositMode, error) {
	switch {
	case len(rest) == 0:
		return DepositModeReset, nil
	case len(rest) == 1 && rest[0] <= byte(DepositModeAccumulate):
		return DepositMode(rest[0]), nil
	default:
		return 0, fmt.Errorf("%w: %s has trailing data", ErrInvalidInstruction, name)
	}
}

// DepositNativeAccounts are the accounts of deposit_native, in wire order.
type DepositNativeAccounts struct {
	Owner               solana.PublicKey
	Position            solana.PublicKey
	Vault               solana.PublicKey
	TokenProgram        solana.PublicKey
	AssetMint           solana.PublicKey
	WrappedMint         solana.PublicKey
	OwnerWrappedHolding solana.PublicKey
	VaultWrappedHolding solana.PublicKey
	VaultTargetHolding  solana.PublicKey
}

func (a *DepositNativeAccounts) slots() []accountSlot {
	return []accountSlot{
		{&a.Owner, true, true},
		{&a.Position, false, true},
		{&a.Vault, false, true},
		{&a.TokenProgram, false, false},
		{&a.AssetMint, false, false},
		{&a.WrappedMint, false, false},
		{&a.OwnerWrappedHolding, false, true},
		{&a.VaultWrappedHolding, false, true},
		{&a.VaultTargetHolding, false, true},
	}
}

// DepositNativeRequest moves native currency from the owner into custody.
type DepositNativeRequest struct {
	Amount   uint64
	Mode     DepositMode
	Accounts DepositNativeAccounts
}

func (r DepositNativeRequest) Instruction(programID solana.PublicKey) Instruction {
	return Instruction{
		ProgramID: programID,
		Accounts:  encodeAccounts(r.Accounts.slots()),
		Data:      encodeMode(encodeArgs(InstructionDepositNative, r.Amount), r.Mode),
	}
}

func DecodeDepositNative(ix Instruction) (DepositNativeRequest, error) {
	var r DepositNativeRequest
	args, rest, err := decodeArgs(InstructionDepositNative, ix.Data, 1)
	if err != nil {
		return r, err
	}
	if r.Mode, err = decodeMode(InstructionDepositNative, rest); err != nil {
		return r, err
	}
	r.Amount = args[0]
	return r, decodeAccounts(InstructionDepositNative, ix.Accounts, r.Accounts.slots())
}

// DepositTokenAccounts are the accounts of deposit_token, in wire order.
type DepositTokenAccounts struct {
	Owner        solana.PublicKey
	Position     solana.PublicKey
	Vault        solana.PublicKey
	TokenProgram solana.PublicKey
	AssetMint    solana.PublicKey
	OwnerHolding solana.PublicKey
	VaultHolding solana.PublicKey
}

func (a *DepositTokenAccounts) slots() []accountSlot {
	return []accountSlot{
		{&a.Owner, true, true},
		{&a.Position, false, true},
		{&a.Vault, false, true},
		{&a.TokenProgram, false, false},
		{&a.AssetMint, false, false},
		{&a.OwnerHolding, false, true},
		{&a.VaultHolding, false, true},
	}
}

// DepositTokenRequest moves a token balance from the owner into custody.
type DepositTokenRequest struct {
	Amount   uint64
	Mode     DepositMode
	Accounts DepositTokenAccounts
}

func (r DepositTokenRequest) Instruction(programID solana.PublicKey) Instruction {
	return Instruction{
		ProgramID: programID,
		Accounts:  encodeAccounts(r.Accounts.slots()),
		Data:      encodeMode(encodeArgs(InstructionDepositToken, r.Amount), r.Mode),
	}
}

func DecodeDepositToken(ix Instruction) (DepositTokenRequest, error) {
	var r DepositTokenRequest
	args, rest, err := decodeArgs(InstructionDepositToken, ix.Data, 1)
	if err != nil {
		return r, err
	}
	if r.Mode, err = decodeMode(InstructionDepositToken, rest); err != nil {
		return r, err
	}
	r.Amount = args[0]
	return r, decodeAccounts(InstructionDepositToken, ix.Accounts, r.Accounts.slots())
}

// InitializeAccounts are the accounts of initialize_schedule. Owner is
// optional; when set it must sign and match the record.
type InitializeAccounts struct {
	Position solana.PublicKey
	Owner    solana.PublicKey
}

func (a *InitializeAccounts) slots() []accountSlot {
	s := []accountSlot{{&a.Position, false, true}}
	if !a.Owner.IsZero() {
		s = append(s, accountSlot{&a.Owner, true, false})
	}
	return s
}

// InitializeRequest writes the conversion schedule of a position.
type InitializeRequest struct {
	StartTime        uint64
	StepAmount       uint64
	StepInterval     uint64
	MinimumAmountOut uint64
	Accounts         InitializeAccounts
}

func (r InitializeRequest) Instruction(programID solana.PublicKey) Instruction {
	data := encodeArgs(InstructionInitializeSchedule, r.StartTime, r.StepAmount, r.StepInterval)
	if r.MinimumAmountOut != 0 {
		data = binary.LittleEndian.AppendUint64(data, r.MinimumAmountOut)
	}
	return Instruction{
		ProgramID: programID,
		Accounts:  encodeAccounts(r.Accounts.slots()),
		Data:      data,
	}
}

func DecodeInitialize(ix Instruction) (InitializeRequest, error) {
	var r InitializeRequest
	args, rest, err := decodeArgs(InstructionInitializeSchedule, ix.Data, 3)
	if err != nil {
		return r, err
	}
	switch len(rest) {
	case 0:
	case 8:
		r.MinimumAmountOut = binary.LittleEndian.Uint64(rest)
	default:
		return r, fmt.Errorf("%w: %s has trailing data", ErrInvalidInstruction, InstructionInitializeSchedule)
	}
	r.StartTime, r.StepAmount, r.StepInterval = args[0], args[1], args[2]

	switch len(ix.Accounts) {
	case 1:
		r.Accounts.Position = ix.Accounts[0].PublicKey
	case 2:
		r.Accounts.Position = ix.Accounts[0].PublicKey
		r.Accounts.Owner = ix.Accounts[1].PublicKey
		if !ix.Accounts[1].IsSigner {
			return r, fmt.Errorf("%w: %s owner must be a signer", ErrInvalidInstruction, InstructionInitializeSchedule)
		}
	default:
		return r, fmt.Errorf("%w: %s expects 1 or 2 accounts, got %d", ErrInvalidInstruction, InstructionInitializeSchedule, len(ix.Accounts))
	}
	return r, nil
}

// ExecuteSwapAccounts are the accounts of execute_swap, in wire order.
type ExecuteSwapAccounts struct {
	Route          Route
	Source         solana.PublicKey
	Destination    solana.PublicKey
	VaultAuthority solana.PublicKey
	TokenProgram   solana.PublicKey
	Position       solana.PublicKey
	Owner          solana.PublicKey
}

func (a *ExecuteSwapAccounts) slots() []accountSlot {
	amm, market := &a.Route.AMM, &a.Route.Market
	return []accountSlot{
		{&amm.ProgramID, false, false},
		{&amm.Pool, false, true},
		{&amm.Authority, false, false},
		{&amm.OpenOrders, false, true},
		{&amm.TargetOrders, false, true},
		{&amm.CoinVault, false, true},
		{&amm.PCVault, false, true},
		{&market.ProgramID, false, false},
		{&market.Market, false, true},
		{&market.Bids, false, true},
		{&market.Asks, false, true},
		{&market.EventQueue, false, true},
		{&market.CoinVault, false, true},
		{&market.PCVault, false, true},
		{&market.VaultSigner, false, false},
		{&a.Source, false, true},
		{&a.Destination, false, true},
		{&a.VaultAuthority, false, false},
		{&a.TokenProgram, false, false},
		{&a.Position, false, true},
		{&a.Owner, true, false},
	}
}

// ExecuteSwapRequest converts one step of custody through the exchange.
// AmountIn of 0 means the position's step amount; MinimumAmountOut of 0
// means the position's recorded floor.
type ExecuteSwapRequest struct {
	AmountIn         uint64
	MinimumAmountOut uint64
	Accounts         ExecuteSwapAccounts
}

func (r ExecuteSwapRequest) Instruction(programID solana.PublicKey) Instruction {
	return Instruction{
		ProgramID: programID,
		Accounts:  encodeAccounts(r.Accounts.slots()),
		Data:      encodeArgs(InstructionExecuteSwap, r.AmountIn, r.MinimumAmountOut),
	}
}

func DecodeExecuteSwap(ix Instruction) (ExecuteSwapRequest, error) {
	var r ExecuteSwapRequest
	args, rest, err := decodeArgs(InstructionExecuteSwap, ix.Data, 2)
	if err != nil {
		return r, err
	}
	if len(rest) != 0 {
		return r, fmt.Errorf("%w: %s has trailing data", ErrInvalidInstruction, InstructionExecuteSwap)
	}
	r.AmountIn, r.MinimumAmountOut = args[0], args[1]
	return r, decodeAccounts(InstructionExecuteSwap, ix.Accounts, r.Accounts.slots())
}
