package util

import (
	"errors"
	"fmt"
	"strconv"
	"unsafe"
)

var ErrBadHexArray = errors.New("bad hex array")

func ArrayToString[T uint8 | uint16 | uint32 | uint64](arr []T) string {
	ret := ""

	for _, v := range arr {
		bitWidth := int(unsafe.Sizeof(v) * 8)
		ret += fmt.Sprintf("%0[1]*[2]x", bitWidth/4, v)
	}

	return ret
}

// ParseHexArray is the inverse of ArrayToString. Every element takes exactly
// bitWidth/4 hex digits.
func ParseHexArray[T uint8 | uint16 | uint32 | uint64](str string, arr []T) error {
	var zero T
	digits := int(unsafe.Sizeof(zero) * 2)

	if len(str) != digits*len(arr) {
		return fmt.Errorf("%w: expected %d digits, got %d", ErrBadHexArray, digits*len(arr), len(str))
	}

	for i := range arr {
		v, err := strconv.ParseUint(str[i*digits:(i+1)*digits], 16, digits*4)
		if err != nil {
			return fmt.Errorf("%w: element %d: %s", ErrBadHexArray, i, err)
		}

		arr[i] = T(v)
	}

	return nil
}
