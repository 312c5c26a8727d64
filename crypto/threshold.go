package crypto

import (
	"errors"
	"fmt"

	"go.dedis.ch/kyber/v4"
	"go.dedis.ch/kyber/v4/share"
	"go.dedis.ch/kyber/v4/suites"

	"github.com/VanDung-dev/HieraChain-Replica/types"
)

// ErrInvalidThreshold is returned when a dealing is requested with a
// threshold outside [1, n].
var ErrInvalidThreshold = errors.New("invalid threshold")

// ThresholdParams carries the random beacon material of a replica. The
// contents are opaque to the bootstrap layer: they are loaded, held and
// handed to the engine untouched.
type ThresholdParams struct {
	// Public holds one public parameter blob per replica.
	Public map[types.Replica][]byte
	// Private is this replica's private parameter, if any.
	Private []byte
	// Beacon is the beacon parameter, if any.
	Beacon []byte
	// Queue holds pending shares per replica.
	Queue map[types.Replica][][]byte
	// History lists completed share batches with their commitments.
	History []ShareBatch
}

// ShareBatch is one completed round of beacon shares.
type ShareBatch struct {
	Shares  [][][]byte
	Commits [][]byte
}

// Empty reports whether no threshold material is present.
func (p *ThresholdParams) Empty() bool {
	return len(p.Public) == 0 && len(p.Private) == 0 && len(p.Beacon) == 0 &&
		len(p.Queue) == 0 && len(p.History) == 0
}

var thresholdSuite = suites.MustFind("Ed25519")

// Dealing is the output of a trusted dealer: a degree t-1 polynomial
// committed point by point, and one evaluation per replica.
type Dealing struct {
	Threshold int
	// Commits[j] is a_j*G for coefficient j.
	Commits [][]byte
	// Shares[i] is f(i+1), the share of replica i.
	Shares [][]byte
}

// Deal samples a random polynomial of degree t-1 over the Ed25519 scalar
// field and returns its commitments and n shares.
func Deal(n, t int) (*Dealing, error) {
	if n <= 0 || t <= 0 || t > n {
		return nil, fmt.Errorf("%w: t=%d n=%d", ErrInvalidThreshold, t, n)
	}

	poly := share.NewPriPoly(thresholdSuite, t, nil, thresholdSuite.RandomStream())
	_, commits := poly.Commit(nil).Info()

	d := &Dealing{
		Threshold: t,
		Commits:   make([][]byte, len(commits)),
		Shares:    make([][]byte, n),
	}
	for j, c := range commits {
		b, err := c.MarshalBinary()
		if err != nil {
			return nil, fmt.Errorf("failed to marshal commitment %d: %w", j, err)
		}
		d.Commits[j] = b
	}
	for _, s := range poly.Shares(n) {
		b, err := s.V.MarshalBinary()
		if err != nil {
			return nil, fmt.Errorf("failed to marshal share %d: %w", s.I, err)
		}
		d.Shares[s.I] = b
	}
	return d, nil
}

// CheckShare verifies replica i's share against the dealing commitments.
func CheckShare(commits [][]byte, i int, shareBytes []byte) (bool, error) {
	if len(commits) == 0 {
		return false, fmt.Errorf("%w: no commitments", ErrInvalidThreshold)
	}
	if i < 0 {
		return false, fmt.Errorf("%w: share index %d", ErrInvalidThreshold, i)
	}
	v := thresholdSuite.Scalar()
	if err := v.UnmarshalBinary(shareBytes); err != nil {
		return false, fmt.Errorf("invalid share: %w", err)
	}

	points := make([]kyber.Point, len(commits))
	for j, raw := range commits {
		points[j] = thresholdSuite.Point()
		if err := points[j].UnmarshalBinary(raw); err != nil {
			return false, fmt.Errorf("invalid commitment %d: %w", j, err)
		}
	}

	pub := share.NewPubPoly(thresholdSuite, nil, points)
	return pub.Check(&share.PriShare{I: i, V: v}), nil
}

// PublicShare returns share*G, the public counterpart of a dealt share.
func PublicShare(shareBytes []byte) ([]byte, error) {
	v := thresholdSuite.Scalar()
	if err := v.UnmarshalBinary(shareBytes); err != nil {
		return nil, fmt.Errorf("invalid share: %w", err)
	}
	return thresholdSuite.Point().Mul(v, nil).MarshalBinary()
}
