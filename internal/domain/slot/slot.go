// Package slot finds the next free numbered stage environment.
//
// Stage environments are stacks named stage1 .. stage9. The allocator takes
// the numbers currently in use in a region and proposes the first gap.
package slot

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// ErrNoFreeSlot is matched when a region's sequence has no gap. Empty and
// single-element sequences have no gap either.
var ErrNoFreeSlot = errors.New("no free slot")

var (
	stagePattern = regexp.MustCompile(`(?i)^stage\d$`)
	digitPattern = regexp.MustCompile(`^\w+(\d)`)
)

// IsStage reports whether name is a stage environment stack name.
func IsStage(name string) bool {
	return stagePattern.MatchString(name)
}

// Extract returns the slot digit ending the leading word of a stack name.
// Only a single digit is captured, so stage10 yields 0, and names whose
// first word has no digit, such as prod-stage3, yield nothing.
func Extract(name string) (int, bool) {
	m := digitPattern.FindStringSubmatch(name)
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return n, true
}

// Sequence filters stack names down to stage environments and returns their
// slot numbers in ascending order.
func Sequence(names []string) []int {
	var seq []int
	for _, name := range names {
		if !IsStage(name) {
			continue
		}
		if n, ok := Extract(name); ok {
			seq = append(seq, n)
		}
	}
	sort.Ints(seq)
	return seq
}

// Gap is a pair of adjacent slot numbers that leaves room between them.
type Gap struct {
	Low  int
	High int
}

// Candidate is the slot proposed for a gap.
func (g Gap) Candidate() int {
	return g.Low + 1
}

// FirstGap returns the first adjacent pair in an ascending sequence whose
// difference exceeds one.
func FirstGap(seq []int) (Gap, bool) {
	for i := 1; i < len(seq); i++ {
		if seq[i]-seq[i-1] > 1 {
			return Gap{Low: seq[i-1], High: seq[i]}, true
		}
	}
	return Gap{}, false
}

// NoFreeSlotError carries the region and sequence that had no gap.
type NoFreeSlotError struct {
	Region   string
	Sequence []int
}

// Error implements the error interface.
func (e *NoFreeSlotError) Error() string {
	return fmt.Sprintf("no free slot in %s (in use: %v)", e.Region, e.Sequence)
}

// Is reports whether target is ErrNoFreeSlot.
func (e *NoFreeSlotError) Is(target error) bool {
	return target == ErrNoFreeSlot
}

// Next computes the next free slot for a region from its stack names.
func Next(region string, names []string) (int, error) {
	seq := Sequence(names)
	gap, ok := FirstGap(seq)
	if !ok {
		return 0, &NoFreeSlotError{Region: region, Sequence: seq}
	}
	return gap.Candidate(), nil
}

// Label is the display name of a slot, e.g. Stage3.
func Label(n int) string {
	return "Stage" + strconv.Itoa(n)
}

// Environment is the chef environment name of a slot, e.g. stage3.
func Environment(n int) string {
	return strings.ToLower(Label(n))
}
