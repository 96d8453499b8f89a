package network

import (
	"errors"

	"github.com/edp1096/toy-powerflow/pkg/device"
	"github.com/edp1096/toy-powerflow/pkg/matrix"
	"github.com/edp1096/toy-powerflow/pkg/pferr"
)

// BuildAdmittance assembles the nodal admittance matrix Y = Dᴴ·diag(y)·D from
// branch stamps. Each branch admittance is brought onto the sBaseMVA system
// base with its own voltage level (y·V²/S) as it is stamped. Every diagonal
// position is part of the pattern, even for nodes without any branch.
func BuildAdmittance(n int, sBaseMVA float64, branches []device.Branch) (*matrix.CSR[complex128], error) {
	if n <= 0 {
		return nil, pferr.Topology("invalid node count %d", n)
	}
	if err := checkSBase(sBaseMVA); err != nil {
		return nil, err
	}

	t := matrix.NewTriplet[complex128](n)
	for i := 0; i < n; i++ {
		t.AddElement(i, i, 0)
	}

	for k, br := range branches {
		if err := checkBranchBase(k, br); err != nil {
			return nil, err
		}
		if err := br.PerUnit(sBaseMVA).Stamp(t); err != nil {
			var te *pferr.TopologyError
			if errors.As(err, &te) {
				te.Element = k
				return nil, te
			}
			return nil, err
		}
	}

	return t.ToCSR(), nil
}
