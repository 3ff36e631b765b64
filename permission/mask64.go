package permission

// Mask64 is a set of up to 64 permission bits.
type Mask64 uint64

func (m Mask64) Has(bit int) bool {
	if bit < 0 || bit >= 64 {
		return false
	}
	return m&(1<<bit) != 0
}

func (m *Mask64) Set(bit int) {
	if bit < 0 || bit >= 64 {
		return
	}
	*m |= 1 << bit
}

func (m *Mask64) Clear(bit int) {
	if bit < 0 || bit >= 64 {
		return
	}
	*m &^= 1 << bit
}

// Contains reports whether every bit of other is also set in m.
func (m Mask64) Contains(other Mask64) bool {
	return m&other == other
}

func (m Mask64) Raw() uint64 {
	return uint64(m)
}
