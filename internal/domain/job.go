package domain

import (
	"math/big"

	"github.com/gagliardetto/solana-go"
)

// FeeBuffer is the per-transfer fee estimate reserved by funding jobs, in lamports.
const FeeBuffer uint64 = 5000

// JobKind identifies the type of value movement.
type JobKind string

const (
	JobKindFunding    JobKind = "FUNDING"
	JobKindCollection JobKind = "COLLECTION"
)

// JobState is the lifecycle state of the funding slot.
type JobState string

const (
	JobStateIdle       JobState = "IDLE"
	JobStateReserving  JobState = "RESERVING"
	JobStateInitiated  JobState = "INITIATED"
	JobStateCompleting JobState = "COMPLETING"
)

// FundingJob moves a fixed amount from one freshly generated distribution
// wallet to every target address.
type FundingJob struct {
	ID                string
	Distribution      Wallet
	Targets           []solana.PublicKey
	LamportsPerTarget uint64
	RentExemptMinimum uint64
	TotalRequired     *big.Int // (LamportsPerTarget + FeeBuffer) * len(Targets) + RentExemptMinimum
	CreatedAt         int64    // Unix timestamp in milliseconds
}

// TotalFundingRequired computes the lamports a distribution wallet must hold
// to fund count targets and remain rent exempt. Uses a wide integer so the
// product cannot overflow.
func TotalFundingRequired(lamportsPerTarget uint64, count int, rentExemptMinimum uint64) *big.Int {
	perTarget := new(big.Int).SetUint64(lamportsPerTarget)
	perTarget.Add(perTarget, new(big.Int).SetUint64(FeeBuffer))

	total := new(big.Int).Mul(perTarget, big.NewInt(int64(count)))
	return total.Add(total, new(big.Int).SetUint64(rentExemptMinimum))
}

// DistributionAddress returns the address the caller must fund.
func (j *FundingJob) DistributionAddress() solana.PublicKey {
	return j.Distribution.Address()
}

// IsFunded reports whether balance covers TotalRequired.
func (j *FundingJob) IsFunded(balance uint64) bool {
	return new(big.Int).SetUint64(balance).Cmp(j.TotalRequired) >= 0
}

// Snapshot returns a copy safe to hand out of the coordinator.
func (j *FundingJob) Snapshot() FundingJob {
	cp := *j
	cp.Targets = append([]solana.PublicKey(nil), j.Targets...)
	cp.TotalRequired = new(big.Int).Set(j.TotalRequired)
	return cp
}

// CollectionJob sweeps an equal share from every source wallet to one destination.
// It is one-shot and never stored in the job slot.
type CollectionJob struct {
	ID          string
	Sources     []Wallet
	Destination solana.PublicKey
	Total       uint64 // requested total
	PerSource   uint64 // Total / len(Sources), floor
}

// PerSourceAmount splits total evenly across count sources.
// The remainder of a non-divisible total is not collected from anyone.
func PerSourceAmount(total uint64, count int) uint64 {
	if count <= 0 {
		return 0
	}
	return total / uint64(count)
}

// Collected returns the lamports that will actually move (PerSource * len(Sources)).
func (j *CollectionJob) Collected() uint64 {
	return j.PerSource * uint64(len(j.Sources))
}
