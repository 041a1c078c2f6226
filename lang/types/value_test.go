package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNumberString(t *testing.T) {
	cases := map[float64]string{
		7:       "7",
		0:       "0",
		-3:      "-3",
		42:      "42",
		2.5:     "2.5",
		3.14:    "3.14",
		0.5:     "0.5",
		-0.25:   "-0.25",
		1e6:     "1000000",
	}
	for in, want := range cases {
		assert.Equal(t, want, Number(in).String(), "%v", in)
	}
}

func TestTruthiness(t *testing.T) {
	// only nil and false are falsy
	assert.False(t, Nil.Truth())
	assert.False(t, False.Truth())
	assert.True(t, True.Truth())
	assert.True(t, Number(0).Truth())
	assert.True(t, String("").Truth())
	assert.True(t, Number(-1).Truth())
}

func TestEqual(t *testing.T) {
	assert.True(t, Equal(Nil, Nil))
	assert.True(t, Equal(Number(1), Number(1)))
	assert.True(t, Equal(String("a"), String("a")))
	assert.True(t, Equal(True, True))

	assert.False(t, Equal(Number(1), Number(2)))
	assert.False(t, Equal(String("a"), String("b")))
	assert.False(t, Equal(True, False))

	// never cross-type
	assert.False(t, Equal(Number(0), False))
	assert.False(t, Equal(String(""), Nil))
	assert.False(t, Equal(Number(1), String("1")))
	assert.False(t, Equal(Nil, False))
}

func TestRuntimeErrorFormat(t *testing.T) {
	err := &RuntimeError{Msg: "undefined variable 'x'", Line: 3}
	assert.Equal(t, "Error: line 3: undefined variable 'x'", err.Error())

	err.Frames = []StackFrame{{Function: "inner", Line: 3}, {Function: "", Line: 1}}
	assert.Equal(t, "  at inner (line 3)\n  at <script> (line 1)\n", err.Backtrace())
}
