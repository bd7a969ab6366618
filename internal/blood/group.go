package blood

import "fmt"

// Group is an ABO/Rh blood group.
type Group string

const (
	APos  Group = "A+"
	ANeg  Group = "A-"
	BPos  Group = "B+"
	BNeg  Group = "B-"
	OPos  Group = "O+"
	ONeg  Group = "O-"
	ABPos Group = "AB+"
	ABNeg Group = "AB-"
)

// AllGroups lists every group in display order. Inventory views always
// report all eight, including those with zero stock.
var AllGroups = []Group{APos, ANeg, BPos, BNeg, OPos, ONeg, ABPos, ABNeg}

// compatibleDonors maps a recipient group to the donor groups whose blood
// it can receive.
var compatibleDonors = map[Group][]Group{
	APos:  {APos, ANeg, OPos, ONeg},
	ANeg:  {ANeg, ONeg},
	BPos:  {BPos, BNeg, OPos, ONeg},
	BNeg:  {BNeg, ONeg},
	OPos:  {OPos, ONeg},
	ONeg:  {ONeg},
	ABPos: {APos, ANeg, BPos, BNeg, OPos, ONeg, ABPos, ABNeg},
	ABNeg: {ANeg, BNeg, ONeg, ABNeg},
}

// ParseGroup validates a raw blood group string.
func ParseGroup(raw string) (Group, error) {
	g := Group(raw)
	if _, ok := compatibleDonors[g]; !ok {
		return "", fmt.Errorf("unknown blood group %q", raw)
	}
	return g, nil
}

// CompatibleDonors returns the donor groups able to give to recipient.
func CompatibleDonors(recipient Group) []Group {
	donors := compatibleDonors[recipient]
	out := make([]Group, len(donors))
	copy(out, donors)
	return out
}

// CanDonate reports whether donor blood can be given to recipient.
func CanDonate(donor, recipient Group) bool {
	for _, g := range compatibleDonors[recipient] {
		if g == donor {
			return true
		}
	}
	return false
}
