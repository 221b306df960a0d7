package strategy

import (
	"math/rand"
	"strconv"

	"github.com/twmb/murmur3"
)

// VariantSeed is the murmur3 seed used for variant bucketing. Rollout
// bucketing uses seed 0. Both match the other client SDKs for the service.
const VariantSeed uint32 = 86028157

// Normalize maps (group, id) onto [1, modulus] with a 32-bit murmur3 hash
// of "group:id". Returns 0 when modulus is 0.
func Normalize(id, group string, modulus uint32, seed uint32) uint32 {
	if modulus == 0 {
		return 0
	}
	return murmur3.SeedStringSum32(seed, group+":"+id)%modulus + 1
}

// InRollout reports whether id falls inside a percentage rollout for group.
// This is hash%100 < percentage expressed on the 1-based normalized value.
func InRollout(id, group string, percentage int) bool {
	return percentage > 0 && int(Normalize(id, group, 100, 0)) <= percentage
}

// RandomID is a fresh stickiness value for the "random" rollout paths.
func RandomID() string {
	return strconv.Itoa(rand.Intn(1_000_000) + 1)
}
