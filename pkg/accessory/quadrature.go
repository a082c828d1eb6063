// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package accessory

// Quadrature decodes the two phase inputs of a rotary encoder into detents.
type Quadrature struct {
	state     uint8
	count     int
	perDetent int
}

// quadSteps maps (previous<<2 | current) Gray states to a direction
var quadSteps = [16]int8{
	0b0001: 1, 0b0111: 1, 0b1110: 1, 0b1000: 1,
	0b0010: -1, 0b1011: -1, 0b1101: -1, 0b0100: -1,
}

// NewQuadrature returns a decoder starting at the given levels. Encoders with
// double resolution give two transitions per detent, others four.
func NewQuadrature(a, b, double bool) *Quadrature {
	q := &Quadrature{state: gray(a, b), perDetent: 4}
	if double {
		q.perDetent = 2
	}
	return q
}

func gray(a, b bool) uint8 {
	var s uint8
	if a {
		s |= 2
	}
	if b {
		s |= 1
	}
	return s
}

// Update feeds the current input levels and returns the detents completed
// since the last call: -1, 0 or 1. Invalid jumps are ignored.
func (q *Quadrature) Update(a, b bool) int {
	next := gray(a, b)
	if next == q.state {
		return 0
	}
	q.count += int(quadSteps[q.state<<2|next])
	q.state = next

	switch {
	case q.count >= q.perDetent:
		q.count = 0
		return 1
	case q.count <= -q.perDetent:
		q.count = 0
		return -1
	}
	return 0
}
