package memutils

import (
	cerrors "github.com/cockroachdb/errors"
)

type Number interface {
	~int | ~uint | ~uint32
}

func CheckPow2[T Number](number T, name string) error {
	if number&(number-1) != 0 {
		return cerrors.Wrapf(PowerOfTwoError, "%s is %d", name, number)
	}
	return nil
}

// CheckMultiple verifies that number is a positive multiple of alignment, which must itself be a
// power of two
func CheckMultiple[T Number](number T, alignment uint, name string) error {
	err := CheckPow2(alignment, "alignment")
	if err != nil {
		return err
	}

	if number <= 0 || uint(number)&(alignment-1) != 0 {
		return cerrors.Newf("%s must be a positive multiple of %d, but was %d", name, alignment, number)
	}
	return nil
}

func AlignUp(value int, alignment uint) int {
	return (value + int(alignment) - 1) & int(^(alignment - 1))
}

func AlignDown(value int, alignment uint) int {
	return value & int(^(alignment - 1))
}

func Max[T Number](left, right T) T {
	if left > right {
		return left
	}
	return right
}

func Min[T Number](left, right T) T {
	if left < right {
		return left
	}
	return right
}
