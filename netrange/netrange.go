// Package netrange converts registry address ranges into canonical CIDR
// blocks.
//
// A range is either written as "<first> - <last>" with both bounds included,
// or as a single network in CIDR notation:
//
//	192.0.2.0 - 192.0.2.7     -> 192.0.2.0/29
//	10.0.0.0 - 10.0.0.2       -> 10.0.0.0/31, 10.0.0.2/32
//	2001:db8::/32             -> 2001:db8::/32
package netrange

import (
	"errors"
	"fmt"
	"math/big"
	"net"
	"net/netip"
	"strings"

	"github.com/mikioh/ipaddr"
)

var (
	ErrFamilyMismatch = errors.New("address family mismatch")      // range bounds are IPv4 and IPv6
	ErrReversedRange  = errors.New("range start is after range end") // range bounds swapped
	ErrNonCanonical   = errors.New("non-zero host bits")             // CIDR format error: the address part is not canonical
	ErrZone           = errors.New("scoped address not allowed")
)

// InvalidNetworkError reports an input that is neither an address range nor a
// CIDR network.
type InvalidNetworkError struct {
	Input string
	Err   error
}

func (e *InvalidNetworkError) Error() string {
	if e.Err == nil {
		return "invalid network: " + e.Input
	}
	return fmt.Sprintf("invalid network: %s: %v", e.Input, e.Err)
}

func (e *InvalidNetworkError) Unwrap() error {
	return e.Err
}

// Block is a canonical network: a base address with all host bits cleared
// and a prefix length.
type Block struct {
	prefix netip.Prefix
}

// String uses the CIDR format <ip>/<bits>.
//
// String implements interface [fmt.Stringer].
func (b Block) String() string {
	return b.prefix.String()
}

// Prefix returns the block as a [netip.Prefix].
func (b Block) Prefix() netip.Prefix {
	return b.prefix
}

// IPNet returns the block as a [net.IPNet]. IPv4 blocks use 4-byte addresses.
func (b Block) IPNet() *net.IPNet {
	addr := b.prefix.Addr()
	return &net.IPNet{
		IP:   net.IP(addr.AsSlice()),
		Mask: net.CIDRMask(b.prefix.Bits(), addr.BitLen()),
	}
}

func (b Block) Is4() bool {
	return b.prefix.Addr().Is4()
}

// NumAddresses returns the number of addresses in the block. IPv6 blocks
// may hold more than 2^64 addresses.
func (b Block) NumAddresses() *big.Int {
	hostBits := b.prefix.Addr().BitLen() - b.prefix.Bits()
	return new(big.Int).Lsh(big.NewInt(1), uint(hostBits))
}

// Total returns the number of addresses covered by blocks, which are
// expected not to overlap.
func Total(blocks []Block) *big.Int {
	sum := new(big.Int)
	for _, b := range blocks {
		sum.Add(sum, b.NumAddresses())
	}
	return sum
}

// Summarize returns the fewest blocks that exactly cover input, ordered by
// address. Every failure is an *InvalidNetworkError; check the cause with
// [errors.Is] against [ErrFamilyMismatch], [ErrReversedRange],
// [ErrNonCanonical] and [ErrZone].
func Summarize(input string) ([]Block, error) {
	s := strings.TrimSpace(input)

	if first, last, ok := strings.Cut(s, "-"); ok && !strings.Contains(last, "-") {
		start, err1 := netip.ParseAddr(strings.TrimSpace(first))
		end, err2 := netip.ParseAddr(strings.TrimSpace(last))
		if err1 == nil && err2 == nil {
			blocks, err := summarizeRange(start, end)
			if err != nil {
				return nil, &InvalidNetworkError{Input: input, Err: err}
			}
			return blocks, nil
		}
	}

	b, err := ParseBlock(s)
	if err != nil {
		return nil, &InvalidNetworkError{Input: input, Err: err}
	}
	return []Block{b}, nil
}

// ParseBlock parses a network in CIDR notation. The address must not have
// bits set beyond the prefix length: "192.0.2.5/24" is rejected with
// [ErrNonCanonical]. A bare address is a single-address network.
func ParseBlock(s string) (Block, error) {
	if !strings.Contains(s, "/") {
		addr, err := netip.ParseAddr(s)
		if err != nil {
			return Block{}, err
		}
		if addr.Zone() != "" {
			return Block{}, ErrZone
		}
		return Block{prefix: netip.PrefixFrom(addr, addr.BitLen())}, nil
	}

	p, err := netip.ParsePrefix(s)
	if err != nil {
		return Block{}, err
	}
	if masked := p.Masked(); masked != p {
		return Block{}, fmt.Errorf("%s: %w (%s expected)", s, ErrNonCanonical, masked)
	}
	return Block{prefix: p}, nil
}

func summarizeRange(start, end netip.Addr) ([]Block, error) {
	if start.Zone() != "" || end.Zone() != "" {
		return nil, ErrZone
	}
	if start.Is4() != end.Is4() {
		return nil, fmt.Errorf("%w: %s, %s", ErrFamilyMismatch, start, end)
	}
	if start.Compare(end) > 0 {
		return nil, fmt.Errorf("%w: %s > %s", ErrReversedRange, start, end)
	}
	if start.Is4In6() || end.Is4In6() {
		// ipaddr would turn ::ffff:0:0/96 bounds into IPv4 blocks.
		return summarize6(start, end), nil
	}

	prefixes := ipaddr.Summarize(net.IP(start.AsSlice()), net.IP(end.AsSlice()))
	if len(prefixes) == 0 {
		return nil, fmt.Errorf("cannot summarize %s - %s", start, end)
	}

	blocks := make([]Block, 0, len(prefixes))
	for i := range prefixes {
		b, err := fromIPNet(&prefixes[i].IPNet)
		if err != nil {
			return nil, err
		}
		blocks = append(blocks, b)
	}
	return blocks, nil
}

func fromIPNet(n *net.IPNet) (Block, error) {
	addr, ok := netip.AddrFromSlice(n.IP)
	if !ok {
		return Block{}, fmt.Errorf("invalid address %v", n.IP)
	}
	ones, bits := n.Mask.Size()
	if bits == 32 {
		addr = addr.Unmap()
	}
	p, err := addr.Prefix(ones)
	if err != nil {
		return Block{}, err
	}
	return Block{prefix: p}, nil
}

// summarize6 walks start..end as 128-bit addresses, taking at each step the
// largest aligned block that does not pass end.
func summarize6(start, end netip.Addr) []Block {
	var blocks []Block
	for {
		bits := 128
		for bits > 0 {
			p := netip.PrefixFrom(start, bits-1)
			if p.Masked().Addr() != start || lastAddr(p).Compare(end) > 0 {
				break
			}
			bits--
		}
		p := netip.PrefixFrom(start, bits)
		blocks = append(blocks, Block{prefix: p})

		last := lastAddr(p)
		if last == end {
			return blocks
		}
		start = last.Next()
	}
}

// lastAddr returns the highest address of p.
func lastAddr(p netip.Prefix) netip.Addr {
	a := p.Addr().As16()
	for i := p.Bits(); i < 128; i++ {
		a[i/8] |= 0x80 >> (i % 8)
	}
	return netip.AddrFrom16(a)
}
