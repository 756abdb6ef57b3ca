package staking

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/rlp"

	"stakingrewards/crypto"
	"stakingrewards/storage"
)

const (
	programKey       = "staking/program"
	accountKeyPrefix = "staking/account/"
)

// programRecord is the RLP layout of Program. Optional caps carry an explicit
// presence flag because RLP cannot distinguish a nil big.Int from zero.
type programRecord struct {
	Owner                []byte
	OwnerPrefix          string
	Distributor          []byte
	DistributorPrefix    string
	Address              []byte
	AddressPrefix        string
	StakeAsset           string
	RewardAsset          string
	RewardRate           *big.Int
	RewardsDuration      uint64
	PeriodStart          uint64
	PeriodFinish         uint64
	LastUpdateTime       uint64
	RewardPerTokenStored *big.Int
	TotalStaked          *big.Int
	HasAccountCap        bool
	MaxStakePerAccount   *big.Int
	HasProgramCap        bool
	MaxProgramCap        *big.Int
	Mode                 uint8
	SingleStake          bool
	ProgramStart         uint64
	TotalRewardInjected  *big.Int
	TotalRewardAccrued   *big.Int
	TotalRewardPaid      *big.Int
}

type accountRecord struct {
	Address            []byte
	AddressPrefix      string
	Staked             *big.Int
	RewardPerTokenPaid *big.Int
	Settled            *big.Int
	HasParticipated    bool
	StakeStartTime     uint64
	TotalClaimed       *big.Int
}

// dbState persists records in a storage.Database.
type dbState struct {
	db storage.Database
}

// NewDBState returns a State backed by db. Existing records are picked up, so
// an engine built on the same database resumes where it stopped.
func NewDBState(db storage.Database) (State, error) {
	if db == nil {
		return nil, fmt.Errorf("staking store: database not configured")
	}
	return &dbState{db: db}, nil
}

func (s *dbState) Program() (*Program, bool, error) {
	raw, err := s.db.Get([]byte(programKey))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("staking store: load program: %w", err)
	}
	var rec programRecord
	if err := rlp.DecodeBytes(raw, &rec); err != nil {
		return nil, false, fmt.Errorf("staking store: decode program: %w", err)
	}
	program, err := rec.toProgram()
	if err != nil {
		return nil, false, err
	}
	return program, true, nil
}

func (s *dbState) Account(addr crypto.Address) (*Account, bool, error) {
	raw, err := s.db.Get(accountKey(addr))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("staking store: load account %s: %w", addr, err)
	}
	acct, err := decodeAccount(raw)
	if err != nil {
		return nil, false, err
	}
	return acct, true, nil
}

func (s *dbState) Accounts() ([]*Account, error) {
	var (
		out       []*Account
		decodeErr error
	)
	err := s.db.Iterate([]byte(accountKeyPrefix), func(_, value []byte) bool {
		acct, err := decodeAccount(value)
		if err != nil {
			decodeErr = err
			return false
		}
		out = append(out, acct)
		return true
	})
	if err != nil {
		return nil, fmt.Errorf("staking store: iterate accounts: %w", err)
	}
	if decodeErr != nil {
		return nil, decodeErr
	}
	sortAccounts(out)
	return out, nil
}

func (s *dbState) Commit(cs ChangeSet) error {
	batch := s.db.NewBatch()
	if cs.Program != nil {
		encoded, err := rlp.EncodeToBytes(newProgramRecord(cs.Program))
		if err != nil {
			return fmt.Errorf("staking store: encode program: %w", err)
		}
		batch.Put([]byte(programKey), encoded)
	}
	for _, acct := range cs.Accounts {
		encoded, err := rlp.EncodeToBytes(newAccountRecord(acct))
		if err != nil {
			return fmt.Errorf("staking store: encode account %s: %w", acct.Address, err)
		}
		batch.Put(accountKey(acct.Address), encoded)
	}
	for _, addr := range cs.Deleted {
		batch.Delete(accountKey(addr))
	}
	if err := batch.Write(); err != nil {
		return fmt.Errorf("staking store: commit: %w", err)
	}
	return nil
}

func accountKey(addr crypto.Address) []byte {
	return []byte(accountKeyPrefix + addr.Hex())
}

func decodeAccount(raw []byte) (*Account, error) {
	var rec accountRecord
	if err := rlp.DecodeBytes(raw, &rec); err != nil {
		return nil, fmt.Errorf("staking store: decode account: %w", err)
	}
	addr, err := decodeStoredAddress(rec.AddressPrefix, rec.Address)
	if err != nil {
		return nil, err
	}
	return &Account{
		Address:            addr,
		Staked:             cloneBig(rec.Staked),
		RewardPerTokenPaid: cloneBig(rec.RewardPerTokenPaid),
		Settled:            cloneBig(rec.Settled),
		HasParticipated:    rec.HasParticipated,
		StakeStartTime:     rec.StakeStartTime,
		TotalClaimed:       cloneBig(rec.TotalClaimed),
	}, nil
}

func newAccountRecord(a *Account) accountRecord {
	return accountRecord{
		Address:            a.Address.Bytes(),
		AddressPrefix:      string(a.Address.Prefix()),
		Staked:             cloneBig(a.Staked),
		RewardPerTokenPaid: cloneBig(a.RewardPerTokenPaid),
		Settled:            cloneBig(a.Settled),
		HasParticipated:    a.HasParticipated,
		StakeStartTime:     a.StakeStartTime,
		TotalClaimed:       cloneBig(a.TotalClaimed),
	}
}

func newProgramRecord(p *Program) programRecord {
	rec := programRecord{
		Owner:                p.Owner.Bytes(),
		OwnerPrefix:          string(p.Owner.Prefix()),
		Distributor:          p.Distributor.Bytes(),
		DistributorPrefix:    string(p.Distributor.Prefix()),
		Address:              p.Address.Bytes(),
		AddressPrefix:        string(p.Address.Prefix()),
		StakeAsset:           p.StakeAsset,
		RewardAsset:          p.RewardAsset,
		RewardRate:           cloneBig(p.RewardRate),
		RewardsDuration:      p.RewardsDuration,
		PeriodStart:          p.PeriodStart,
		PeriodFinish:         p.PeriodFinish,
		LastUpdateTime:       p.LastUpdateTime,
		RewardPerTokenStored: cloneBig(p.RewardPerTokenStored),
		TotalStaked:          cloneBig(p.TotalStaked),
		HasAccountCap:        p.MaxStakePerAccount != nil,
		MaxStakePerAccount:   cloneBig(p.MaxStakePerAccount),
		HasProgramCap:        p.MaxProgramCap != nil,
		MaxProgramCap:        cloneBig(p.MaxProgramCap),
		Mode:                 uint8(p.Mode),
		SingleStake:          p.SingleStake,
		ProgramStart:         p.ProgramStart,
		TotalRewardInjected:  cloneBig(p.TotalRewardInjected),
		TotalRewardAccrued:   cloneBig(p.TotalRewardAccrued),
		TotalRewardPaid:      cloneBig(p.TotalRewardPaid),
	}
	return rec
}

func (rec programRecord) toProgram() (*Program, error) {
	owner, err := decodeStoredAddress(rec.OwnerPrefix, rec.Owner)
	if err != nil {
		return nil, err
	}
	distributor, err := decodeStoredAddress(rec.DistributorPrefix, rec.Distributor)
	if err != nil {
		return nil, err
	}
	custody, err := decodeStoredAddress(rec.AddressPrefix, rec.Address)
	if err != nil {
		return nil, err
	}
	if rec.Mode > uint8(ModeTerminated) {
		return nil, fmt.Errorf("staking store: unknown mode %d", rec.Mode)
	}
	program := &Program{
		Owner:                owner,
		Distributor:          distributor,
		Address:              custody,
		StakeAsset:           rec.StakeAsset,
		RewardAsset:          rec.RewardAsset,
		RewardRate:           cloneBig(rec.RewardRate),
		RewardsDuration:      rec.RewardsDuration,
		PeriodStart:          rec.PeriodStart,
		PeriodFinish:         rec.PeriodFinish,
		LastUpdateTime:       rec.LastUpdateTime,
		RewardPerTokenStored: cloneBig(rec.RewardPerTokenStored),
		TotalStaked:          cloneBig(rec.TotalStaked),
		Mode:                 Mode(rec.Mode),
		SingleStake:          rec.SingleStake,
		ProgramStart:         rec.ProgramStart,
		TotalRewardInjected:  cloneBig(rec.TotalRewardInjected),
		TotalRewardAccrued:   cloneBig(rec.TotalRewardAccrued),
		TotalRewardPaid:      cloneBig(rec.TotalRewardPaid),
	}
	if rec.HasAccountCap {
		program.MaxStakePerAccount = cloneBig(rec.MaxStakePerAccount)
	}
	if rec.HasProgramCap {
		program.MaxProgramCap = cloneBig(rec.MaxProgramCap)
	}
	return program, nil
}

func decodeStoredAddress(prefix string, raw []byte) (crypto.Address, error) {
	if len(raw) == 0 {
		return crypto.Address{}, nil
	}
	addr, err := crypto.NewAddress(crypto.AddressPrefix(prefix), raw)
	if err != nil {
		return crypto.Address{}, fmt.Errorf("staking store: %w", err)
	}
	return addr, nil
}
