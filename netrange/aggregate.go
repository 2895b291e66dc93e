package netrange

import (
	"net/netip"
	"slices"

	"github.com/mikioh/ipaddr"
)

// Aggregate merges duplicate, nested and adjacent blocks into the smallest
// equivalent list. IPv4 blocks come first, each family ordered by address.
// IPv4-mapped IPv6 blocks are merged among themselves and stay IPv6.
func Aggregate(blocks []Block) []Block {
	var v4, v6, mapped []ipaddr.Prefix
	for _, b := range blocks {
		switch addr := b.prefix.Addr(); {
		case addr.Is4():
			v4 = append(v4, *ipaddr.NewPrefix(b.IPNet()))
		case addr.Is4In6():
			// A canonical mapped block is never wider than ::ffff:0:0/96.
			v4b := Block{prefix: netip.PrefixFrom(addr.Unmap(), b.prefix.Bits()-96)}
			mapped = append(mapped, *ipaddr.NewPrefix(v4b.IPNet()))
		default:
			v6 = append(v6, *ipaddr.NewPrefix(b.IPNet()))
		}
	}

	out := aggregate(v4)
	tail := aggregate(v6)
	for _, b := range aggregate(mapped) {
		addr := netip.AddrFrom16(b.prefix.Addr().As16())
		tail = append(tail, Block{prefix: netip.PrefixFrom(addr, b.prefix.Bits()+96)})
	}
	slices.SortFunc(tail, compareBlocks)
	return append(out, tail...)
}

func aggregate(family []ipaddr.Prefix) []Block {
	if len(family) == 0 {
		return nil
	}
	var merged []Block
	for _, p := range ipaddr.Aggregate(family) {
		b, err := fromIPNet(&p.IPNet)
		if err != nil {
			continue
		}
		merged = append(merged, b)
	}
	slices.SortFunc(merged, compareBlocks)
	return merged
}

func compareBlocks(a, b Block) int {
	if c := a.prefix.Addr().Compare(b.prefix.Addr()); c != 0 {
		return c
	}
	return a.prefix.Bits() - b.prefix.Bits()
}
